// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"errors"
	"testing"
)

func TestPlainBackendTwoStepProtocol(t *testing.T) {
	b := NewPlainBackend()

	x, err := b.Encrypt(7)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	y, err := b.Encrypt(5)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Fresh values carry no grants: using them as operands fails.
	if _, err := b.Add(x, y); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Add on ungranted operands: got %v, want ErrPermissionDenied", err)
	}

	if err := b.GrantSelf(x); err != nil {
		t.Fatalf("grant self x: %v", err)
	}

	// One granted operand is not enough.
	if _, err := b.Add(x, y); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Add with one ungranted operand: got %v, want ErrPermissionDenied", err)
	}

	if err := b.GrantSelf(y); err != nil {
		t.Fatalf("grant self y: %v", err)
	}

	sum, err := b.Add(x, y)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	// The result itself is fresh and ungranted.
	if b.HasGrant(sum, System) {
		t.Fatal("operation result must not be self-granted implicitly")
	}
	if _, err := b.Shr(sum, 1); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Shr on ungranted result: got %v, want ErrPermissionDenied", err)
	}

	if err := b.GrantSelf(sum); err != nil {
		t.Fatalf("grant self sum: %v", err)
	}
	if v, err := b.Decrypt(sum, System); err != nil || v != 12 {
		t.Fatalf("Decrypt(sum) = %d, %v; want 12", v, err)
	}
}

func TestPlainBackendOperations(t *testing.T) {
	b := NewPlainBackend()
	ops := arith{b: b}

	enc := func(v uint64) Handle {
		h, err := ops.encrypt(v)
		if err != nil {
			t.Fatalf("encrypt %d: %v", v, err)
		}
		return h
	}
	dec := func(h Handle, err error) uint64 {
		if err != nil {
			t.Fatalf("op: %v", err)
		}
		v, err := b.Decrypt(h, System)
		if err != nil {
			t.Fatalf("decrypt: %v", err)
		}
		return v
	}

	if got := dec(ops.eq(enc(9), enc(9))); got != 1 {
		t.Errorf("Eq(9,9) = %d, want 1", got)
	}
	if got := dec(ops.eq(enc(9), enc(8))); got != 0 {
		t.Errorf("Eq(9,8) = %d, want 0", got)
	}
	if got := dec(ops.mul(enc(12), enc(12))); got != 144 {
		t.Errorf("Mul(12,12) = %d, want 144", got)
	}
	if got := dec(ops.shr(enc(255), 3)); got != 31 {
		t.Errorf("Shr(255,3) = %d, want 31", got)
	}
	if got := dec(ops.min(enc(100), enc(42))); got != 42 {
		t.Errorf("Min(100,42) = %d, want 42", got)
	}
	if got := dec(ops.sel(enc(1), enc(10), enc(20))); got != 10 {
		t.Errorf("Select(1,10,20) = %d, want 10", got)
	}
	if got := dec(ops.sel(enc(0), enc(10), enc(20))); got != 20 {
		t.Errorf("Select(0,10,20) = %d, want 20", got)
	}
}

func TestPlainBackendEncryptBounds(t *testing.T) {
	b := NewPlainBackend()
	if _, err := b.Encrypt(PlainMax); err != nil {
		t.Fatalf("Encrypt(PlainMax): %v", err)
	}
	if _, err := b.Encrypt(PlainMax + 1); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Encrypt(PlainMax+1): got %v, want ErrInvalidInput", err)
	}
}

func TestPlainBackendGrants(t *testing.T) {
	b := NewPlainBackend()
	alice := PrincipalID{0: 0xA1}
	bob := PrincipalID{0: 0xB0}

	h, err := b.Encrypt(33)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Disclosure needs an explicit grant for the requesting principal.
	if _, err := b.Decrypt(h, alice); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("Decrypt without grant: got %v, want ErrPermissionDenied", err)
	}

	if err := b.Grant(h, alice); err != nil {
		t.Fatalf("grant: %v", err)
	}
	// Idempotent.
	if err := b.Grant(h, alice); err != nil {
		t.Fatalf("repeated grant: %v", err)
	}

	if v, err := b.Decrypt(h, alice); err != nil || v != 33 {
		t.Fatalf("Decrypt(alice) = %d, %v; want 33", v, err)
	}

	// Additive, not exclusive.
	if err := b.Grant(h, bob); err != nil {
		t.Fatalf("grant bob: %v", err)
	}
	if !b.HasGrant(h, alice) || !b.HasGrant(h, bob) {
		t.Fatal("grants must be additive")
	}

	// Unknown handles are rejected.
	if err := b.Grant("plain:ffffffffffffffff", alice); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("Grant on unknown handle: got %v, want ErrInvalidInput", err)
	}
}
