// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"fmt"
	"sync"
)

// PlainBackend implements Backend with plaintext arithmetic while enforcing
// the full grant protocol: it fails ErrPermissionDenied exactly where a real
// confidential backend would. Intended for tests and development; it provides
// no confidentiality whatsoever.
type PlainBackend struct {
	mu     sync.RWMutex
	seq    uint64
	values map[Handle]uint64
	grants map[Handle]map[PrincipalID]struct{}
}

// NewPlainBackend creates an empty plaintext backend.
func NewPlainBackend() *PlainBackend {
	return &PlainBackend{
		values: make(map[Handle]uint64),
		grants: make(map[Handle]map[PrincipalID]struct{}),
	}
}

// newValue stores v under a fresh handle with no grants. Callers must hold mu.
func (b *PlainBackend) newValue(v uint64) Handle {
	b.seq++
	h := Handle(fmt.Sprintf("plain:%016x", b.seq))
	b.values[h] = v
	b.grants[h] = make(map[PrincipalID]struct{})
	return h
}

// operand returns the plaintext of h, requiring the mandatory self grant.
// Callers must hold mu.
func (b *PlainBackend) operand(h Handle) (uint64, error) {
	v, ok := b.values[h]
	if !ok {
		return 0, ErrInvalidInput
	}
	if _, ok := b.grants[h][System]; !ok {
		return 0, ErrPermissionDenied
	}
	return v, nil
}

func (b *PlainBackend) Encrypt(plain uint64) (Handle, error) {
	if plain > PlainMax {
		return "", ErrInvalidInput
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newValue(plain), nil
}

func (b *PlainBackend) Grant(h Handle, principal PrincipalID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.grants[h]
	if !ok {
		return ErrInvalidInput
	}
	g[principal] = struct{}{} // idempotent
	return nil
}

func (b *PlainBackend) GrantSelf(h Handle) error {
	return b.Grant(h, System)
}

func (b *PlainBackend) HasGrant(h Handle, principal PrincipalID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.grants[h][principal]
	return ok
}

func (b *PlainBackend) Eq(x, y Handle) (Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 {
		if a == c {
			return 1
		}
		return 0
	})
}

func (b *PlainBackend) Add(x, y Handle) (Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 { return a + c })
}

func (b *PlainBackend) Mul(x, y Handle) (Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 { return a * c })
}

func (b *PlainBackend) Min(x, y Handle) (Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 {
		if a < c {
			return a
		}
		return c
	})
}

func (b *PlainBackend) Shr(x Handle, n uint) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	v, err := b.operand(x)
	if err != nil {
		return "", err
	}
	return b.newValue(v >> n), nil
}

func (b *PlainBackend) Select(cond, x, y Handle) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, err := b.operand(cond)
	if err != nil {
		return "", err
	}
	vx, err := b.operand(x)
	if err != nil {
		return "", err
	}
	vy, err := b.operand(y)
	if err != nil {
		return "", err
	}
	if c != 0 {
		return b.newValue(vx), nil
	}
	return b.newValue(vy), nil
}

func (b *PlainBackend) binary(x, y Handle, f func(a, c uint64) uint64) (Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	vx, err := b.operand(x)
	if err != nil {
		return "", err
	}
	vy, err := b.operand(y)
	if err != nil {
		return "", err
	}
	return b.newValue(f(vx, vy)), nil
}

// Decrypt implements Decryptor.
func (b *PlainBackend) Decrypt(h Handle, as PrincipalID) (uint64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.values[h]
	if !ok {
		return 0, ErrInvalidInput
	}
	if _, ok := b.grants[h][as]; !ok {
		return 0, ErrPermissionDenied
	}
	return v, nil
}
