/*

This file contains the weight assignment steps: the amount factor, the first normalization
and the diversification floor with its second normalization.

All functions take and return slices aligned with the eligible protocol order so the floating-point
summation order is fixed.

*/

package analyzer

import (
	"math"

	"github.com/elys-network/yield-aggregator/internal/types"
	"gonum.org/v1/gonum/floats"
)

// AmountFactor scales raw weights with the deposit size, clamped at MaxAmountFactor.
func AmountFactor(amount float64, params types.OptimizerParameters) float64 {
	return math.Min(amount/params.AmountNormalizer, params.MaxAmountFactor)
}

// Normalize rescales raw weights to sum to 1. A non-positive total is returned unchanged.
// The caps were already applied to the raw weights, so a capped protocol can end above its cap here
// when the other raw weights are small.
func Normalize(raw []float64) []float64 {
	weights := make([]float64, len(raw))
	copy(weights, raw)
	total := floats.Sum(weights)
	if total > 0 {
		floats.Scale(1/total, weights)
	}
	return weights
}

// ApplyDiversificationFloor raises every weight below minDiversification/n to that floor and renormalizes.
// It is a no-op for a single protocol. The floor is applied independently of the caps, so a floored
// weight may end above its protocol's cap.
func ApplyDiversificationFloor(weights []float64, minDiversification float64) []float64 {
	floored := make([]float64, len(weights))
	copy(floored, weights)
	if len(floored) <= 1 {
		return floored
	}

	minAllocation := minDiversification / float64(len(floored))
	for i, w := range floored {
		if w < minAllocation {
			floored[i] = minAllocation
		}
	}

	total := floats.Sum(floored)
	if total > 0 {
		for i := range floored {
			floored[i] /= total
		}
	}
	return floored
}
