// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

// Handle identifies a confidential value held by a Backend. Handles are
// opaque: nothing about the plaintext is recoverable from the handle itself.
type Handle string

// PlainMax is the largest plaintext accepted by Backend.Encrypt. Inputs are
// 8-bit unsigned scalars; operation results may grow wider internally.
const PlainMax = 255

// Backend is the confidential-arithmetic boundary the scorer computes over.
// Implementations may be an FHE runtime, a secure enclave, or an MPC network;
// the scorer only ever sees handles.
//
// Access model: a freshly created value (from Encrypt or from any operation)
// carries no grants. The creator must call GrantSelf before the value can be
// used as an operand, a mandatory two-step protocol. Operations on a value
// without the self grant fail with ErrPermissionDenied. Operations never
// grant access to their result implicitly.
type Backend interface {
	// Encrypt wraps a plaintext scalar into a confidential value.
	// Plaintexts above PlainMax fail with ErrInvalidInput.
	Encrypt(plain uint64) (Handle, error)

	// Grant records that principal may request plaintext disclosure of the
	// value. Granting is idempotent, additive, and irrevocable for the
	// lifetime of the value.
	Grant(h Handle, principal PrincipalID) error

	// GrantSelf grants the computing system itself; shorthand for
	// Grant(h, System).
	GrantSelf(h Handle) error

	// HasGrant reports whether principal holds a grant on the value.
	HasGrant(h Handle, principal PrincipalID) bool

	// Eq compares two values for equality, producing an encrypted boolean
	// (0 or 1) under a new handle.
	Eq(a, b Handle) (Handle, error)

	// Add returns a new value holding a+b.
	Add(a, b Handle) (Handle, error)

	// Mul returns a new value holding a*b.
	Mul(a, b Handle) (Handle, error)

	// Shr returns a new value holding a >> n (truncating).
	Shr(a Handle, n uint) (Handle, error)

	// Min returns a new value holding the smaller of a and b.
	Min(a, b Handle) (Handle, error)

	// Select returns a new value holding x when cond is non-zero, y
	// otherwise. cond is an encrypted boolean from Eq.
	Select(cond, x, y Handle) (Handle, error)
}

// Decryptor is the disclosure side of a backend, held by the decryption
// oracle collaborator. Disclosure requires a grant for the requesting
// principal on the value.
type Decryptor interface {
	// Decrypt returns the plaintext of h on behalf of principal as. Fails
	// with ErrPermissionDenied when as holds no grant on h.
	Decrypt(h Handle, as PrincipalID) (uint64, error)
}
