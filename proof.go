// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
)

// decryptionDigest binds a plaintext batch to its originating request: the
// request id, the exact handle set, and the plaintexts in request order.
// Any substitution of values or reordering changes the digest.
func decryptionDigest(requestID string, handles []Handle, plaintexts []uint64) [32]byte {
	h := sha256.New()
	h.Write([]byte(requestID))

	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(handles)))
	h.Write(n[:])
	for _, handle := range handles {
		binary.BigEndian.PutUint64(n[:], uint64(len(handle)))
		h.Write(n[:])
		h.Write([]byte(handle))
	}

	binary.BigEndian.PutUint64(n[:], uint64(len(plaintexts)))
	h.Write(n[:])
	for _, v := range plaintexts {
		binary.BigEndian.PutUint64(n[:], v)
		h.Write(n[:])
	}

	var digest [32]byte
	h.Sum(digest[:0])
	return digest
}

// SignDecryption produces the oracle's proof over a decrypted batch.
func SignDecryption(key ed25519.PrivateKey, requestID string, handles []Handle, plaintexts []uint64) []byte {
	digest := decryptionDigest(requestID, handles, plaintexts)
	return ed25519.Sign(key, digest[:])
}

// VerifyDecryption checks an oracle proof against the original request.
func VerifyDecryption(pub ed25519.PublicKey, requestID string, handles []Handle, plaintexts []uint64, proof []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(proof) != ed25519.SignatureSize {
		return false
	}
	digest := decryptionDigest(requestID, handles, plaintexts)
	return ed25519.Verify(pub, digest[:], proof)
}
