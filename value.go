// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import "fmt"

// arith wraps a Backend and applies the mandatory self grant immediately
// after every value creation, so results are usable as operands in the next
// operation. Disclosure grants remain explicit: nothing here shares a value
// with any principal other than System.
type arith struct {
	b Backend
}

func (a arith) encrypt(v uint64) (Handle, error) {
	h, err := a.b.Encrypt(v)
	if err != nil {
		return "", fmt.Errorf("encrypt: %w", err)
	}
	if err := a.b.GrantSelf(h); err != nil {
		return "", fmt.Errorf("self grant: %w", err)
	}
	return h, nil
}

func (a arith) selfGranted(h Handle, err error) (Handle, error) {
	if err != nil {
		return "", err
	}
	if err := a.b.GrantSelf(h); err != nil {
		return "", fmt.Errorf("self grant: %w", err)
	}
	return h, nil
}

func (a arith) eq(x, y Handle) (Handle, error) {
	return a.selfGranted(a.b.Eq(x, y))
}

func (a arith) add(x, y Handle) (Handle, error) {
	return a.selfGranted(a.b.Add(x, y))
}

func (a arith) mul(x, y Handle) (Handle, error) {
	return a.selfGranted(a.b.Mul(x, y))
}

func (a arith) shr(x Handle, n uint) (Handle, error) {
	return a.selfGranted(a.b.Shr(x, n))
}

func (a arith) min(x, y Handle) (Handle, error) {
	return a.selfGranted(a.b.Min(x, y))
}

func (a arith) sel(cond, x, y Handle) (Handle, error) {
	return a.selfGranted(a.b.Select(cond, x, y))
}
