// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"fmt"
	"sync"
)

const (
	// SequenceLength is the fixed length of a submitted sequence.
	SequenceLength = 32

	// MarkerLength is the fixed length of a marker pattern.
	MarkerLength = 4

	// MaxWeight is the largest allowed marker weight.
	MaxWeight = 100
)

// MarkerConfig describes one marker pattern at service construction time.
// Pattern content is immutable after construction; weight and the active flag
// are mutable by the administrator.
type MarkerConfig struct {
	ID      uint8
	Pattern [MarkerLength]uint8
	Weight  uint8
	Active  bool
}

// DefaultMarkers returns the reference marker set: five nucleotide patterns
// over the {A,T,C,G} ASCII alphabet.
func DefaultMarkers() []MarkerConfig {
	return []MarkerConfig{
		{ID: 1, Pattern: [MarkerLength]uint8{65, 84, 67, 71}, Weight: 85, Active: true},
		{ID: 2, Pattern: [MarkerLength]uint8{71, 67, 84, 65}, Weight: 70, Active: true},
		{ID: 3, Pattern: [MarkerLength]uint8{84, 84, 65, 65}, Weight: 60, Active: true},
		{ID: 4, Pattern: [MarkerLength]uint8{67, 71, 71, 67}, Weight: 75, Active: true},
		{ID: 5, Pattern: [MarkerLength]uint8{65, 65, 84, 71}, Weight: 50, Active: true},
	}
}

// MarkerInfo is the public view of a marker.
type MarkerInfo struct {
	ID     uint8 `json:"id"`
	Weight uint8 `json:"weight"`
	Active bool  `json:"active"`
}

// marker is one registered pattern with its encrypted content.
type marker struct {
	id      uint8
	pattern [MarkerLength]Handle
	weight  uint8
	active  bool
}

// markerView is an immutable snapshot of a marker taken for one analysis run.
type markerView struct {
	id      uint8
	pattern [MarkerLength]Handle
	weight  uint8
}

// markerSet is the registry of marker patterns. Analysis takes the read lock
// for its whole run; administrative updates take the write lock, so a weight
// or active-flag change never interleaves with an in-flight analysis.
type markerSet struct {
	mu      sync.RWMutex
	markers []*marker
}

func newMarkerSet(ops arith, configs []MarkerConfig) (*markerSet, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("%w: no markers configured", ErrInvalidInput)
	}
	ms := &markerSet{}
	seen := make(map[uint8]struct{}, len(configs))
	for _, cfg := range configs {
		if cfg.ID == 0 {
			return nil, fmt.Errorf("%w: marker id 0", ErrInvalidInput)
		}
		if _, dup := seen[cfg.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate marker id %d", ErrInvalidInput, cfg.ID)
		}
		if cfg.Weight > MaxWeight {
			return nil, fmt.Errorf("%w: marker %d weight %d", ErrInvalidInput, cfg.ID, cfg.Weight)
		}
		seen[cfg.ID] = struct{}{}

		m := &marker{id: cfg.ID, weight: cfg.Weight, active: cfg.Active}
		for i, plain := range cfg.Pattern {
			h, err := ops.encrypt(uint64(plain))
			if err != nil {
				return nil, fmt.Errorf("encrypt marker %d element %d: %w", cfg.ID, i, err)
			}
			m.pattern[i] = h
		}
		ms.markers = append(ms.markers, m)
	}
	return ms, nil
}

// activeViews returns snapshots of the active markers in registration order.
// The caller must hold the read lock for the duration of the analysis run;
// use with rlock/runlock around the whole computation.
func (ms *markerSet) activeViews() []markerView {
	views := make([]markerView, 0, len(ms.markers))
	for _, m := range ms.markers {
		if !m.active {
			continue
		}
		views = append(views, markerView{id: m.id, pattern: m.pattern, weight: m.weight})
	}
	return views
}

func (ms *markerSet) byID(id uint8) *marker {
	for _, m := range ms.markers {
		if m.id == id {
			return m
		}
	}
	return nil
}

// infos returns the public view of every marker in registration order.
func (ms *markerSet) infos() []MarkerInfo {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	out := make([]MarkerInfo, len(ms.markers))
	for i, m := range ms.markers {
		out[i] = MarkerInfo{ID: m.id, Weight: m.weight, Active: m.active}
	}
	return out
}

func (ms *markerSet) info(id uint8) (MarkerInfo, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	m := ms.byID(id)
	if m == nil {
		return MarkerInfo{}, fmt.Errorf("%w: unknown marker id %d", ErrInvalidInput, id)
	}
	return MarkerInfo{ID: m.id, Weight: m.weight, Active: m.active}, nil
}

func (ms *markerSet) setWeight(id uint8, weight uint8) error {
	if weight > MaxWeight {
		return fmt.Errorf("%w: weight %d exceeds %d", ErrInvalidInput, weight, MaxWeight)
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m := ms.byID(id)
	if m == nil {
		return fmt.Errorf("%w: unknown marker id %d", ErrInvalidInput, id)
	}
	m.weight = weight
	return nil
}

// toggle flips the active flag and returns the new state.
func (ms *markerSet) toggle(id uint8) (bool, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	m := ms.byID(id)
	if m == nil {
		return false, fmt.Errorf("%w: unknown marker id %d", ErrInvalidInput, id)
	}
	m.active = !m.active
	return m.active, nil
}

// setAll sets every marker's active flag. Used by the global pause/resume
// emergency controls.
func (ms *markerSet) setAll(active bool) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	for _, m := range ms.markers {
		m.active = active
	}
}
