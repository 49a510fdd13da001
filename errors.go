// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

import "errors"

// Common errors. All are synchronous and terminal for the call that raised
// them; no partial state mutation survives an error return.
var (
	// ErrInvalidInput indicates an out-of-range plaintext, a malformed
	// sequence, or an unknown marker id.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadySubmitted indicates the subject already has a sample;
	// submission is write-once.
	ErrAlreadySubmitted = errors.New("sample already submitted")

	// ErrNoSample indicates the subject has not submitted a sample.
	ErrNoSample = errors.New("no sample submitted")

	// ErrAlreadyAnalyzed indicates analysis already ran for the sample.
	ErrAlreadyAnalyzed = errors.New("sample already analyzed")

	// ErrNotAnalyzed indicates the sample has not been analyzed yet.
	ErrNotAnalyzed = errors.New("sample not analyzed")

	// ErrAlreadyDecrypted indicates decryption was already requested or
	// completed for the sample.
	ErrAlreadyDecrypted = errors.New("decryption already requested or completed")

	// ErrInvalidProof indicates the oracle's proof over a plaintext batch
	// does not verify against the original request.
	ErrInvalidProof = errors.New("invalid decryption proof")

	// ErrNotAuthorized indicates the caller is neither the subject, an
	// authorized reviewer, nor the administrator.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrPermissionDenied indicates an operand was used without the
	// mandatory self-grant, or a disclosure was attempted without a grant.
	ErrPermissionDenied = errors.New("permission denied for confidential value")

	// ErrUnknownRequest indicates a decryption completion referenced a
	// request id that was never issued.
	ErrUnknownRequest = errors.New("unknown decryption request")
)
