// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package lattice implements the confidential-arithmetic backend over RLWE
// encryption from luxfi/lattice primitives. Values are encrypted at rest:
// each handle is the content address of an RLWE ciphertext blob.
//
// The evaluator holds the secret key (trusted-evaluator model, the same model
// as the bitwise evaluator in luxfi/fhe): operations decrypt inside the
// evaluator boundary, compute, and re-encrypt the result. Plaintexts never
// leave the backend; disclosure still requires an explicit per-principal
// grant.
package lattice

import (
	"context"
	"fmt"
	"sync"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/storage"
)

// messageBits is the internal value width. Inputs are 8-bit scalars but
// intermediate products (count*weight*C) need headroom; results wrap at
// 2^32 like fixed-width unsigned arithmetic.
const messageBits = 32

// ParametersLiteral is a user-friendly parameter specification.
type ParametersLiteral struct {
	// LogN is log2 of the ring dimension.
	LogN int
	// Q is the ciphertext modulus.
	Q uint64
}

// PN11QP54 provides ~128-bit security with enough plaintext headroom for
// 32-bit values under the fixed-point scaling used here.
var PN11QP54 = ParametersLiteral{
	LogN: 11,
	Q:    0x3FFFFFFFFFC0001,
}

// Backend implements riskscore.Backend over RLWE ciphertexts.
type Backend struct {
	params rlwe.Parameters
	ringQ  *ring.Ring
	enc    *rlwe.Encryptor
	dec    *rlwe.Decryptor
	sk     *rlwe.SecretKey
	scale  uint64
	store  storage.Store

	mu     sync.RWMutex
	grants map[riskscore.Handle]map[riskscore.PrincipalID]struct{}
}

// New creates a backend with a freshly generated secret key.
func New(lit ParametersLiteral, store storage.Store) (*Backend, error) {
	params, err := newParameters(lit)
	if err != nil {
		return nil, err
	}
	sk := rlwe.NewKeyGenerator(params).GenSecretKeyNew()
	return NewWithSecretKey(lit, store, sk)
}

// NewWithSecretKey creates a backend around an existing secret key, so a
// separate oracle process can share key material with the scoring service.
func NewWithSecretKey(lit ParametersLiteral, store storage.Store, sk *rlwe.SecretKey) (*Backend, error) {
	params, err := newParameters(lit)
	if err != nil {
		return nil, err
	}
	return &Backend{
		params: params,
		ringQ:  params.RingQ(),
		enc:    rlwe.NewEncryptor(params, sk),
		dec:    rlwe.NewDecryptor(params, sk),
		sk:     sk,
		scale:  params.Q()[0] >> messageBits,
		store:  store,
		grants: make(map[riskscore.Handle]map[riskscore.PrincipalID]struct{}),
	}, nil
}

func newParameters(lit ParametersLiteral) (rlwe.Parameters, error) {
	params, err := rlwe.NewParametersFromLiteral(rlwe.ParametersLiteral{
		LogN:    lit.LogN,
		Q:       []uint64{lit.Q},
		NTTFlag: true,
	})
	if err != nil {
		return rlwe.Parameters{}, fmt.Errorf("lattice parameters: %w", err)
	}
	return params, nil
}

// SecretKey returns the backend's secret key, for handing to an oracle
// decryptor or persisting via SaveSecretKey.
func (b *Backend) SecretKey() *rlwe.SecretKey {
	return b.sk
}

// seal encrypts a raw value, stores the ciphertext blob, and registers a
// fresh handle with no grants.
func (b *Backend) seal(v uint64) (riskscore.Handle, error) {
	data, err := encryptValue(b.params, b.ringQ, b.enc, b.scale, v)
	if err != nil {
		return "", err
	}
	ref, err := b.store.Put(context.Background(), data)
	if err != nil {
		return "", fmt.Errorf("store ciphertext: %w", err)
	}
	h := riskscore.Handle(ref)

	b.mu.Lock()
	if _, ok := b.grants[h]; !ok {
		b.grants[h] = make(map[riskscore.PrincipalID]struct{})
	}
	b.mu.Unlock()
	return h, nil
}

// open loads and decrypts a value inside the evaluator boundary, requiring
// the mandatory self grant.
func (b *Backend) open(h riskscore.Handle) (uint64, error) {
	b.mu.RLock()
	g, known := b.grants[h]
	_, self := g[riskscore.System]
	b.mu.RUnlock()
	if !known {
		return 0, riskscore.ErrInvalidInput
	}
	if !self {
		return 0, riskscore.ErrPermissionDenied
	}
	return b.load(h)
}

func (b *Backend) load(h riskscore.Handle) (uint64, error) {
	data, err := b.store.Get(context.Background(), storage.Ref(h))
	if err != nil {
		return 0, fmt.Errorf("load ciphertext: %w", err)
	}
	return decryptValue(b.params, b.ringQ, b.dec, b.scale, data)
}

func (b *Backend) Encrypt(plain uint64) (riskscore.Handle, error) {
	if plain > riskscore.PlainMax {
		return "", riskscore.ErrInvalidInput
	}
	return b.seal(plain)
}

func (b *Backend) Grant(h riskscore.Handle, principal riskscore.PrincipalID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.grants[h]
	if !ok {
		return riskscore.ErrInvalidInput
	}
	g[principal] = struct{}{} // idempotent
	return nil
}

func (b *Backend) GrantSelf(h riskscore.Handle) error {
	return b.Grant(h, riskscore.System)
}

func (b *Backend) HasGrant(h riskscore.Handle, principal riskscore.PrincipalID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.grants[h][principal]
	return ok
}

const valueMask = 1<<messageBits - 1

func (b *Backend) Eq(x, y riskscore.Handle) (riskscore.Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 {
		if a == c {
			return 1
		}
		return 0
	})
}

func (b *Backend) Add(x, y riskscore.Handle) (riskscore.Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 { return (a + c) & valueMask })
}

func (b *Backend) Mul(x, y riskscore.Handle) (riskscore.Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 { return (a * c) & valueMask })
}

func (b *Backend) Min(x, y riskscore.Handle) (riskscore.Handle, error) {
	return b.binary(x, y, func(a, c uint64) uint64 {
		if a < c {
			return a
		}
		return c
	})
}

func (b *Backend) Shr(x riskscore.Handle, n uint) (riskscore.Handle, error) {
	v, err := b.open(x)
	if err != nil {
		return "", err
	}
	return b.seal(v >> n)
}

func (b *Backend) Select(cond, x, y riskscore.Handle) (riskscore.Handle, error) {
	c, err := b.open(cond)
	if err != nil {
		return "", err
	}
	vx, err := b.open(x)
	if err != nil {
		return "", err
	}
	vy, err := b.open(y)
	if err != nil {
		return "", err
	}
	if c != 0 {
		return b.seal(vx)
	}
	return b.seal(vy)
}

func (b *Backend) binary(x, y riskscore.Handle, f func(a, c uint64) uint64) (riskscore.Handle, error) {
	vx, err := b.open(x)
	if err != nil {
		return "", err
	}
	vy, err := b.open(y)
	if err != nil {
		return "", err
	}
	return b.seal(f(vx, vy))
}

// Decrypt implements riskscore.Decryptor: disclosure on behalf of a granted
// principal.
func (b *Backend) Decrypt(h riskscore.Handle, as riskscore.PrincipalID) (uint64, error) {
	b.mu.RLock()
	g, known := b.grants[h]
	_, granted := g[as]
	b.mu.RUnlock()
	if !known {
		return 0, riskscore.ErrInvalidInput
	}
	if !granted {
		return 0, riskscore.ErrPermissionDenied
	}
	return b.load(h)
}

// encryptValue encodes v in the constant coefficient scaled by Q>>messageBits
// and encrypts it, following the encoding in luxfi/fhe's encryptor.
func encryptValue(params rlwe.Parameters, ringQ *ring.Ring, enc *rlwe.Encryptor, scale, v uint64) ([]byte, error) {
	pt := rlwe.NewPlaintext(params, params.MaxLevel())
	pt.Value.Coeffs[0][0] = (v & valueMask) * scale
	ringQ.NTT(pt.Value, pt.Value)

	ct := rlwe.NewCiphertext(params, 1, params.MaxLevel())
	if err := enc.Encrypt(pt, ct); err != nil {
		return nil, fmt.Errorf("rlwe encrypt: %w", err)
	}

	data, err := ct.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("marshal ciphertext: %w", err)
	}
	return data, nil
}

// decryptValue reverses encryptValue. Rounding is centered so small negative
// noise on a zero value decodes back to zero instead of wrapping.
func decryptValue(params rlwe.Parameters, ringQ *ring.Ring, dec *rlwe.Decryptor, scale uint64, data []byte) (uint64, error) {
	ct := new(rlwe.Ciphertext)
	if err := ct.UnmarshalBinary(data); err != nil {
		return 0, fmt.Errorf("unmarshal ciphertext: %w", err)
	}

	pt := rlwe.NewPlaintext(params, ct.Level())
	dec.Decrypt(ct, pt)
	if pt.IsNTT {
		ringQ.INTT(pt.Value, pt.Value)
	}

	q := params.Q()[0]
	c := (pt.Value.Coeffs[0][0] + scale/2) % q
	return (c / scale) & valueMask, nil
}
