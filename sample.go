// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"sync"
	"time"
)

// SampleState is the lifecycle state of a subject's sample. States only ever
// advance; there is no reset or resubmit path.
type SampleState uint8

const (
	StateEmpty SampleState = iota
	StateSubmitted
	StateAnalyzed
	StateDecryptionRequested
	StateDecrypted
)

func (s SampleState) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateSubmitted:
		return "submitted"
	case StateAnalyzed:
		return "analyzed"
	case StateDecryptionRequested:
		return "decryption-requested"
	case StateDecrypted:
		return "decrypted"
	default:
		return "unknown"
	}
}

// sample is the per-subject record. Its mutex serializes every operation on
// the record, so no caller observes a transition's intermediate values.
type sample struct {
	mu sync.Mutex

	state       SampleState
	sequence    []Handle
	submittedAt time.Time

	// Analysis outputs; written once when state reaches StateAnalyzed.
	overall    Handle
	perMarker  map[uint8]Handle // marker id -> risk score, active markers only
	markerIDs  []uint8          // ascending, fixes the decryption batch order
	analyzedAt time.Time

	// Decryption flow.
	requestID      string
	requestHandles []Handle // overall first, then per-marker in markerIDs order
	overallPlain   uint64
	perMarkerPlain map[uint8]uint64
	decryptedAt    time.Time
}

// Status is the externally visible view of a sample's lifecycle.
type Status struct {
	State        SampleState `json:"state"`
	Submitted    bool        `json:"submitted"`
	Analyzed     bool        `json:"analyzed"`
	ResultsReady bool        `json:"resultsReady"`
	Decrypted    bool        `json:"decrypted"`
	SubmittedAt  time.Time   `json:"submittedAt,omitzero"`
	AnalyzedAt   time.Time   `json:"analyzedAt,omitzero"`
	DecryptedAt  time.Time   `json:"decryptedAt,omitzero"`
}

// Results exposes the analysis outputs. The handles are only useful to
// principals holding grants on them (the system, the subject, and the oracle
// once decryption is requested). Plaintext fields are populated once the
// sample reaches StateDecrypted.
type Results struct {
	Overall        Handle           `json:"overall"`
	PerMarker      map[uint8]Handle `json:"perMarker"`
	Decrypted      bool             `json:"decrypted"`
	OverallPlain   uint64           `json:"overallPlain,omitempty"`
	PerMarkerPlain map[uint8]uint64 `json:"perMarkerPlain,omitempty"`
	DecryptedAt    time.Time        `json:"decryptedAt,omitzero"`
}

func (s *sample) status() Status {
	return Status{
		State:        s.state,
		Submitted:    s.state >= StateSubmitted,
		Analyzed:     s.state >= StateAnalyzed,
		ResultsReady: s.state >= StateAnalyzed,
		Decrypted:    s.state == StateDecrypted,
		SubmittedAt:  s.submittedAt,
		AnalyzedAt:   s.analyzedAt,
		DecryptedAt:  s.decryptedAt,
	}
}

func (s *sample) results() Results {
	per := make(map[uint8]Handle, len(s.perMarker))
	for id, h := range s.perMarker {
		per[id] = h
	}
	res := Results{
		Overall:   s.overall,
		PerMarker: per,
		Decrypted: s.state == StateDecrypted,
	}
	if res.Decrypted {
		res.OverallPlain = s.overallPlain
		res.PerMarkerPlain = make(map[uint8]uint64, len(s.perMarkerPlain))
		for id, v := range s.perMarkerPlain {
			res.PerMarkerPlain[id] = v
		}
		res.DecryptedAt = s.decryptedAt
	}
	return res
}
