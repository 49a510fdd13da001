// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package lattice

import (
	"context"
	"fmt"
	"os"

	"github.com/luxfi/lattice/v7/core/rlwe"
	"github.com/luxfi/lattice/v7/ring"

	"github.com/luxfi/riskscore"
	"github.com/luxfi/riskscore/internal/storage"
)

// SaveSecretKey persists a secret key so a separate oracle process can share
// it with the scoring service.
func SaveSecretKey(path string, sk *rlwe.SecretKey) error {
	data, err := sk.MarshalBinary()
	if err != nil {
		return fmt.Errorf("encode secret key: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write secret key: %w", err)
	}
	return nil
}

// LoadSecretKey reads a secret key written by SaveSecretKey.
func LoadSecretKey(path string) (*rlwe.SecretKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read secret key: %w", err)
	}
	sk := new(rlwe.SecretKey)
	if err := sk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("decode secret key: %w", err)
	}
	return sk, nil
}

// OracleDecryptor discloses values for the decryption oracle. It holds the
// key material directly: the oracle is the trust anchor of the disclosure
// path, so grant bookkeeping (which lives in the service-side backend) is not
// re-checked here.
type OracleDecryptor struct {
	params rlwe.Parameters
	ringQ  *ring.Ring
	dec    *rlwe.Decryptor
	scale  uint64
	store  storage.Store
}

// NewOracleDecryptor builds a decryptor from shared key material and the
// shared ciphertext store.
func NewOracleDecryptor(lit ParametersLiteral, store storage.Store, sk *rlwe.SecretKey) (*OracleDecryptor, error) {
	params, err := newParameters(lit)
	if err != nil {
		return nil, err
	}
	return &OracleDecryptor{
		params: params,
		ringQ:  params.RingQ(),
		dec:    rlwe.NewDecryptor(params, sk),
		scale:  params.Q()[0] >> messageBits,
		store:  store,
	}, nil
}

// Decrypt implements riskscore.Decryptor.
func (d *OracleDecryptor) Decrypt(h riskscore.Handle, as riskscore.PrincipalID) (uint64, error) {
	data, err := d.store.Get(context.Background(), storage.Ref(h))
	if err != nil {
		return 0, fmt.Errorf("load ciphertext: %w", err)
	}
	return decryptValue(d.params, d.ringQ, d.dec, d.scale, data)
}
