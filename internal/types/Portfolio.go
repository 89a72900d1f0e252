/*

This file contains the types for portfolio plans, the output of the allocation optimizer.

*/

package types

import "time"

// Portfolio level risk labels derived from the weighted risk score.
const (
	RiskLevelConservative = "Conservative"
	RiskLevelModerate     = "Moderate"
	RiskLevelAggressive   = "Aggressive"
)

// Per-protocol risk labels derived from the raw risk score.
const (
	ProtocolRiskLow    = "Low"
	ProtocolRiskMedium = "Medium"
	ProtocolRiskHigh   = "High"
)

// ProtocolAllocation is the dollar breakdown of a single weight in a plan.
type ProtocolAllocation struct {
	ProtocolID ProtocolID `json:"protocol"`
	Name       string     `json:"name"`
	Weight     float64    `json:"weight"`     // Fraction of the amount, rounded to 4 decimals
	Percentage float64    `json:"percentage"` // Weight * 100, rounded to 2 decimals
	Amount     float64    `json:"amount"`     // Dollars, rounded to cents
	APY        float64    `json:"apy"`
	RiskScore  float64    `json:"risk_score"`
	RiskLevel  string     `json:"risk_level"`
}

// PortfolioPlan is the result of one optimization. All metrics are rounded to 2 decimals.
type PortfolioPlan struct {
	PlanID               string                          `json:"plan_id,omitempty"`
	Policy               string                          `json:"policy"`
	RiskTolerance        RiskTolerance                   `json:"risk_tolerance"`
	Amount               float64                         `json:"amount"`
	AmountFactor         float64                         `json:"amount_factor"`
	Weights              map[ProtocolID]float64          `json:"weights"`
	Recommendations      map[ProtocolID]float64          `json:"recommendations"` // Dollars per protocol, rounded to cents
	Allocations          []ProtocolAllocation            `json:"allocations"`
	ExpectedAPY          float64                         `json:"expected_apy"`
	ExpectedDaily        float64                         `json:"expected_daily"`
	ExpectedMonthly      float64                         `json:"expected_monthly"`
	EstimatedAnnual      float64                         `json:"estimated_annual_yield"`
	EstimatedFees        float64                         `json:"estimated_fees"`
	WeightedRiskScore    float64                         `json:"weighted_risk_score"`
	RiskLevel            string                          `json:"risk_level"`
	SharpeLikeRatio      float64                         `json:"sharpe_like_ratio"`
	DiversificationScore float64                         `json:"diversification_score"`
	Confidence           float64                         `json:"confidence"`
	Scores               map[ProtocolID]AllocationWeight `json:"scores,omitempty"`
	Timestamp            time.Time                       `json:"timestamp"`
}

// IsEmpty reports whether the plan allocates nothing (no eligible protocol).
func (p PortfolioPlan) IsEmpty() bool {
	return len(p.Weights) == 0
}

// PlanAnalytics summarizes the stored plan history.
type PlanAnalytics struct {
	TotalPlans         int            `json:"total_plans"`
	AverageExpectedAPY float64        `json:"average_expected_apy"`
	AverageConfidence  float64        `json:"average_confidence"`
	TotalAmount        float64        `json:"total_amount"`
	ByRiskLevel        map[string]int `json:"by_risk_level"`
	ByRiskTolerance    map[string]int `json:"by_risk_tolerance"`
	LastPlanAt         *time.Time     `json:"last_plan_at,omitempty"`
}
