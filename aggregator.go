// Copyright (c) 2025, Lux Industries Inc
// SPDX-License-Identifier: BSD-3-Clause

package riskscore

const (
	// DefaultScaleC is the fixed scaling constant applied to
	// matchCount*weight before the >>8 fixed-point truncation.
	DefaultScaleC = 64

	// DefaultNormK is the overall-score normalization constant. 51 ~ 256/5
	// approximates dividing by five active markers; it is configurable
	// because the hardcoded five-marker assumption is a known quirk of the
	// reference encoding.
	DefaultNormK = 51

	// riskCap is the per-marker risk ceiling.
	riskCap = 100
)

// RiskAggregator converts encrypted match counts into bounded percentage
// risks and combines them into one overall score. All arithmetic is
// fixed-point with truncating (floor) right shifts; reproducing truncation
// rather than rounding is required for bit-exact compatibility with the
// reference encoding.
type RiskAggregator struct {
	ops    arith
	scaleC uint64
	normK  uint64

	// clampOverall bounds the overall score at 100. The reference system
	// applies no such clamp; enabling it is a corrected-mode deviation.
	clampOverall bool
}

func newRiskAggregator(ops arith, scaleC, normK uint64, clampOverall bool) *RiskAggregator {
	if scaleC == 0 {
		scaleC = DefaultScaleC
	}
	if normK == 0 {
		normK = DefaultNormK
	}
	return &RiskAggregator{ops: ops, scaleC: scaleC, normK: normK, clampOverall: clampOverall}
}

// MarkerRisk computes min(100, (count * weight * C) >> 8) for one marker.
func (ra *RiskAggregator) MarkerRisk(count Handle, weight uint8) (Handle, error) {
	w, err := ra.ops.encrypt(uint64(weight))
	if err != nil {
		return "", err
	}
	c, err := ra.ops.encrypt(ra.scaleC)
	if err != nil {
		return "", err
	}
	prod, err := ra.ops.mul(count, w)
	if err != nil {
		return "", err
	}
	prod, err = ra.ops.mul(prod, c)
	if err != nil {
		return "", err
	}
	scaled, err := ra.ops.shr(prod, 8)
	if err != nil {
		return "", err
	}
	cap100, err := ra.ops.encrypt(riskCap)
	if err != nil {
		return "", err
	}
	return ra.ops.min(cap100, scaled)
}

// Overall computes (sum(risks) * K) >> 8 over the active markers' risks.
// Inactive markers are excluded entirely by the caller: they contribute no
// term, not a zero term.
func (ra *RiskAggregator) Overall(risks []Handle) (Handle, error) {
	sum, err := ra.ops.encrypt(0)
	if err != nil {
		return "", err
	}
	for _, r := range risks {
		sum, err = ra.ops.add(sum, r)
		if err != nil {
			return "", err
		}
	}
	k, err := ra.ops.encrypt(ra.normK)
	if err != nil {
		return "", err
	}
	scaled, err := ra.ops.mul(sum, k)
	if err != nil {
		return "", err
	}
	overall, err := ra.ops.shr(scaled, 8)
	if err != nil {
		return "", err
	}
	if !ra.clampOverall {
		return overall, nil
	}
	cap100, err := ra.ops.encrypt(riskCap)
	if err != nil {
		return "", err
	}
	return ra.ops.min(cap100, overall)
}
