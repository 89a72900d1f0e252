/*

This file contains the aggregation of final weights into portfolio level metrics.

*/

package analyzer

import (
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/elys-network/yield-aggregator/internal/utils"
	"gonum.org/v1/gonum/floats"
)

const (
	daysPerYear   = 365
	monthsPerYear = 12
)

// PortfolioRiskLevel labels a weighted risk score.
func PortfolioRiskLevel(weightedRisk float64) string {
	switch {
	case weightedRisk < 3.0:
		return types.RiskLevelConservative
	case weightedRisk < 5.0:
		return types.RiskLevelModerate
	default:
		return types.RiskLevelAggressive
	}
}

// ProtocolRiskLevel labels a single protocol's risk score.
func ProtocolRiskLevel(riskScore float64) string {
	switch {
	case riskScore <= 2.5:
		return types.ProtocolRiskLow
	case riskScore <= 3.5:
		return types.ProtocolRiskMedium
	default:
		return types.ProtocolRiskHigh
	}
}

// SharpeLikeRatio is expected APY per unit of weighted risk. It involves no return variance and is not a Sharpe ratio.
func SharpeLikeRatio(expectedAPY, weightedRisk float64) float64 {
	if weightedRisk <= 0 {
		return 0
	}
	return expectedAPY / (weightedRisk + 1)
}

// AggregatePortfolio fills the plan's weights, dollar recommendations, allocations and metrics from the final weights.
// eligible and weights must be aligned. catalogSize is the number of protocols the optimizer was given.
func AggregatePortfolio(plan *types.PortfolioPlan, eligible []types.ProtocolMetric, weights []float64, catalogSize int, params types.OptimizerParameters) {
	apys := make([]float64, len(eligible))
	risks := make([]float64, len(eligible))
	for i, metric := range eligible {
		apys[i] = metric.APY
		risks[i] = metric.RiskScore
	}

	expectedAPY := floats.Dot(weights, apys)
	weightedRisk := floats.Dot(weights, risks)
	sharpe := SharpeLikeRatio(expectedAPY, weightedRisk)

	plan.Weights = make(map[types.ProtocolID]float64, len(eligible))
	plan.Recommendations = make(map[types.ProtocolID]float64, len(eligible))
	plan.Allocations = make([]types.ProtocolAllocation, 0, len(eligible))
	allocated := 0
	for i, metric := range eligible {
		plan.Weights[metric.ID] = weights[i]
		plan.Recommendations[metric.ID] = utils.RoundCents(plan.Amount * weights[i])
		if weights[i] <= 0 {
			continue
		}
		allocated++
		plan.Allocations = append(plan.Allocations, types.ProtocolAllocation{
			ProtocolID: metric.ID,
			Name:       metric.Name,
			Weight:     utils.RoundTo(weights[i], 4),
			Percentage: utils.Round2(weights[i] * 100),
			Amount:     utils.RoundCents(plan.Amount * weights[i]),
			APY:        utils.Round2(metric.APY),
			RiskScore:  utils.Round2(metric.RiskScore),
			RiskLevel:  ProtocolRiskLevel(metric.RiskScore),
		})
	}

	annualYield := plan.Amount * expectedAPY / 100

	plan.ExpectedAPY = utils.Round2(expectedAPY)
	plan.ExpectedDaily = utils.RoundCents(annualYield / daysPerYear)
	plan.ExpectedMonthly = utils.RoundCents(annualYield / monthsPerYear)
	plan.EstimatedAnnual = utils.RoundCents(annualYield)
	plan.EstimatedFees = utils.RoundCents(annualYield * params.ExecutionFeeRate)
	plan.WeightedRiskScore = utils.Round2(weightedRisk)
	plan.RiskLevel = PortfolioRiskLevel(weightedRisk)
	plan.SharpeLikeRatio = utils.Round2(sharpe)
	if catalogSize > 0 {
		plan.DiversificationScore = utils.Round2(float64(allocated) / float64(catalogSize) * 100)
	}
	confidence := params.ConfidenceBase + sharpe*params.ConfidenceSharpeMult
	if confidence > params.ConfidenceCap {
		confidence = params.ConfidenceCap
	}
	plan.Confidence = utils.Round2(confidence)
}
