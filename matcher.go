// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

// PatternMatcher counts occurrences of marker elements across a sequence
// using only confidential operations: each comparison is a homomorphic
// equality producing an encrypted boolean, converted to an encrypted 0/1 via
// select and accumulated with encrypted additions. Neither the sequence nor
// the pattern is ever decrypted.
type PatternMatcher struct {
	ops arith
}

func newPatternMatcher(ops arith) *PatternMatcher {
	return &PatternMatcher{ops: ops}
}

// Count returns the encrypted number of equal pairs between every pattern
// element and every non-tail sequence position: pattern offsets i in
// [0, MarkerLength) against sequence offsets j in [0, SequenceLength-MarkerLength),
// 4x28 = 112 comparisons for the reference dimensions.
//
// The double loop is the semantic contract, not an implementation accident:
// the count is "any marker element equals any non-tail position", not exact
// substring matching.
func (pm *PatternMatcher) Count(seq []Handle, pattern [MarkerLength]Handle) (Handle, error) {
	one, err := pm.ops.encrypt(1)
	if err != nil {
		return "", err
	}
	zero, err := pm.ops.encrypt(0)
	if err != nil {
		return "", err
	}
	count := zero

	for i := 0; i < MarkerLength; i++ {
		for j := 0; j < SequenceLength-MarkerLength; j++ {
			hit, err := pm.ops.eq(seq[j], pattern[i])
			if err != nil {
				return "", err
			}
			bit, err := pm.ops.sel(hit, one, zero)
			if err != nil {
				return "", err
			}
			count, err = pm.ops.add(count, bit)
			if err != nil {
				return "", err
			}
		}
	}
	return count, nil
}
