/*

This file contains the allocation policies. A policy turns a protocol's metrics into a score and a raw
(pre-normalization) weight; eligibility, capping, the diversification floor and aggregation stay in the optimizer.

*/

package analyzer

import (
	"github.com/elys-network/yield-aggregator/internal/types"
)

// AllocationPolicy scores eligible protocols and converts scores into raw weights.
type AllocationPolicy interface {
	Name() string
	// Score must be a pure function of its inputs.
	Score(metric types.ProtocolMetric, profile types.RiskProfile) types.AllocationWeight
	// RawWeight returns the capped, unnormalized weight for a scored protocol.
	RawWeight(score types.AllocationWeight, metric types.ProtocolMetric, amountFactor float64) float64
}

// MultiFactorPolicy blends safety, return and diversification into a single score.
type MultiFactorPolicy struct {
	params types.OptimizerParameters
}

func NewMultiFactorPolicy(params types.OptimizerParameters) *MultiFactorPolicy {
	return &MultiFactorPolicy{params: params}
}

func (p *MultiFactorPolicy) Name() string {
	return "multi_factor"
}

// Score computes, in order:
//
//	risk_adjusted_return  = apy / (risk + 1)
//	diversification_score = benefit * liquidity / 10
//	risk_weight           = 1 / (risk + 1)
//	return_weight         = apy / 20
//	ai_weight             = 0.4*risk_weight + 0.4*return_weight + 0.2*diversification_score
//
// and halves ai_weight for prefer_stable profiles when risk > 3.
func (p *MultiFactorPolicy) Score(metric types.ProtocolMetric, profile types.RiskProfile) types.AllocationWeight {
	riskDenominator := metric.RiskScore + 1

	score := types.AllocationWeight{ProtocolID: metric.ID}
	score.RiskAdjustedReturn = metric.APY / riskDenominator
	score.DiversificationScore = metric.DiversificationBenefit * metric.LiquidityScore / p.params.LiquidityScale
	score.RiskWeight = 1 / riskDenominator
	score.ReturnWeight = metric.APY / p.params.ReturnNormalizer

	score.AIWeight = score.RiskWeight*p.params.RiskFactorWeight +
		score.ReturnWeight*p.params.ReturnFactorWeight +
		score.DiversificationScore*p.params.DiversificationWeight

	if profile.PreferStable && metric.RiskScore > p.params.StableRiskThreshold {
		score.AIWeight *= p.params.StablePenalty
	}

	return score
}

// RawWeight scales the score by the base allocation and amount factor, then applies the protocol cap.
// Negative scores (negative APY) contribute nothing.
func (p *MultiFactorPolicy) RawWeight(score types.AllocationWeight, metric types.ProtocolMetric, amountFactor float64) float64 {
	weight := score.AIWeight * p.params.BaseAllocation * amountFactor
	if weight > metric.MaxAllocation {
		weight = metric.MaxAllocation
	}
	if weight < 0 {
		return 0
	}
	return weight
}
