// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/storage"
)

var (
	testSubject = riskscore.PrincipalID{0: 0x5B}
	testOracle  = riskscore.PrincipalID{0: 0x0E}
)

func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	store := storage.NewMemoryStore(256)
	t.Cleanup(func() { store.Close() })
	b, err := New(PN11QP54, store)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}
	return b
}

// sealOpen encrypts, self-grants and discloses as System.
func sealOpen(t *testing.T, b *Backend, v uint64) uint64 {
	t.Helper()
	h, err := b.Encrypt(v)
	if err != nil {
		t.Fatalf("encrypt %d: %v", v, err)
	}
	if err := b.GrantSelf(h); err != nil {
		t.Fatalf("grant self: %v", err)
	}
	got, err := b.Decrypt(h, riskscore.System)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	return got
}

func TestBackendRoundTrip(t *testing.T) {
	b := newTestBackend(t)
	for _, v := range []uint64{0, 1, 42, 'A', 'T', 'C', 'G', riskscore.PlainMax} {
		if got := sealOpen(t, b, v); got != v {
			t.Errorf("round trip %d: got %d", v, got)
		}
	}
}

func TestBackendEncryptBounds(t *testing.T) {
	b := newTestBackend(t)
	if _, err := b.Encrypt(riskscore.PlainMax + 1); !errors.Is(err, riskscore.ErrInvalidInput) {
		t.Fatalf("Encrypt above PlainMax: got %v, want ErrInvalidInput", err)
	}
}

func TestBackendOperations(t *testing.T) {
	b := newTestBackend(t)
	ready := func(v uint64) riskscore.Handle {
		h, err := b.Encrypt(v)
		if err != nil {
			t.Fatalf("encrypt %d: %v", v, err)
		}
		if err := b.GrantSelf(h); err != nil {
			t.Fatalf("grant self: %v", err)
		}
		return h
	}
	check := func(name string, h riskscore.Handle, err error, want uint64) {
		t.Helper()
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if err := b.GrantSelf(h); err != nil {
			t.Fatalf("%s grant: %v", name, err)
		}
		got, err := b.Decrypt(h, riskscore.System)
		if err != nil {
			t.Fatalf("%s decrypt: %v", name, err)
		}
		if got != want {
			t.Errorf("%s = %d, want %d", name, got, want)
		}
	}

	x, y := ready(200), ready(55)

	h, err := b.Add(x, y)
	check("Add", h, err, 255)
	h, err = b.Mul(x, y)
	check("Mul", h, err, 11000)
	h, err = b.Min(x, y)
	check("Min", h, err, 55)
	h, err = b.Shr(x, 3)
	check("Shr", h, err, 25)

	eq, err := b.Eq(x, x)
	check("Eq same", eq, err, 1)
	ne, err := b.Eq(x, y)
	check("Eq differ", ne, err, 0)

	if err := b.GrantSelf(eq); err != nil {
		t.Fatalf("grant eq: %v", err)
	}
	h, err = b.Select(eq, x, y)
	check("Select true", h, err, 200)
	if err := b.GrantSelf(ne); err != nil {
		t.Fatalf("grant ne: %v", err)
	}
	h, err = b.Select(ne, x, y)
	check("Select false", h, err, 55)
}

func TestBackendArithmeticHeadroom(t *testing.T) {
	// count*weight*C for the largest realistic inputs must not wrap:
	// 112*100*64 = 716800 fits comfortably in the 32-bit value width.
	b := newTestBackend(t)
	ready := func(v uint64) riskscore.Handle {
		h, err := b.Encrypt(v)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		if err := b.GrantSelf(h); err != nil {
			t.Fatalf("grant: %v", err)
		}
		return h
	}

	prod, err := b.Mul(ready(112), ready(100))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if err := b.GrantSelf(prod); err != nil {
		t.Fatalf("grant: %v", err)
	}
	prod, err = b.Mul(prod, ready(64))
	if err != nil {
		t.Fatalf("mul: %v", err)
	}
	if err := b.GrantSelf(prod); err != nil {
		t.Fatalf("grant: %v", err)
	}
	scaled, err := b.Shr(prod, 8)
	if err != nil {
		t.Fatalf("shr: %v", err)
	}
	if err := b.GrantSelf(scaled); err != nil {
		t.Fatalf("grant: %v", err)
	}
	got, err := b.Decrypt(scaled, riskscore.System)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got != 2800 {
		t.Errorf("(112*100*64)>>8 = %d, want 2800", got)
	}
}

func TestBackendGrantProtocol(t *testing.T) {
	b := newTestBackend(t)

	x, err := b.Encrypt(7)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	y, err := b.Encrypt(5)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	// Fresh ciphertexts are unusable until self-granted.
	if _, err := b.Add(x, y); !errors.Is(err, riskscore.ErrPermissionDenied) {
		t.Fatalf("Add on ungranted: got %v, want ErrPermissionDenied", err)
	}
	if _, err := b.Decrypt(x, testSubject); !errors.Is(err, riskscore.ErrPermissionDenied) {
		t.Fatalf("Decrypt without grant: got %v, want ErrPermissionDenied", err)
	}

	if err := b.GrantSelf(x); err != nil {
		t.Fatalf("grant self: %v", err)
	}
	if err := b.GrantSelf(y); err != nil {
		t.Fatalf("grant self: %v", err)
	}
	sum, err := b.Add(x, y)
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if b.HasGrant(sum, riskscore.System) {
		t.Fatal("result must not be self-granted implicitly")
	}

	// Grants on unknown handles are rejected.
	if err := b.Grant("deadbeef", testSubject); !errors.Is(err, riskscore.ErrInvalidInput) {
		t.Fatalf("Grant unknown: got %v, want ErrInvalidInput", err)
	}
}

func TestOracleDecryptorSharesKeyMaterial(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.NewFileStore(filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer store.Close()

	b, err := New(PN11QP54, store)
	if err != nil {
		t.Fatalf("new backend: %v", err)
	}

	// Persist and reload the key the way the two processes share it.
	keyPath := filepath.Join(dir, "secret.key")
	if err := SaveSecretKey(keyPath, b.SecretKey()); err != nil {
		t.Fatalf("save key: %v", err)
	}
	sk, err := LoadSecretKey(keyPath)
	if err != nil {
		t.Fatalf("load key: %v", err)
	}

	dec, err := NewOracleDecryptor(PN11QP54, store, sk)
	if err != nil {
		t.Fatalf("new decryptor: %v", err)
	}

	h, err := b.Encrypt(79)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	got, err := dec.Decrypt(h, testOracle)
	if err != nil {
		t.Fatalf("oracle decrypt: %v", err)
	}
	if got != 79 {
		t.Errorf("oracle decrypt = %d, want 79", got)
	}
}

func TestLoadSecretKeyMissing(t *testing.T) {
	if _, err := LoadSecretKey(filepath.Join(t.TempDir(), "absent.key")); err == nil {
		t.Fatal("loading a missing key must fail")
	}
}
