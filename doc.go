// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

// Package riskscore implements a confidential pattern-risk scorer: it scans an
// encrypted fixed-length sequence for occurrences of short encrypted marker
// patterns, converts occurrence counts into bounded per-marker risk scores, and
// aggregates them into one overall score, all without decrypting the data.
//
// The scorer is backend-agnostic. Every encrypted scalar is an opaque Handle
// owned by a Backend (the confidential-arithmetic boundary), and plaintext
// disclosure is only possible for principals holding an explicit grant on the
// value. Results leave the system through a two-phase protocol: a decryption
// request is queued for an external oracle, which later delivers the plaintext
// batch together with a signature binding it to the original request.
//
// Two backends ship with the module:
//   - PlainBackend (this package): plaintext arithmetic with exact grant
//     enforcement, for tests and development.
//   - lattice.Backend: RLWE-encrypted values built on luxfi/lattice primitives.
package riskscore
