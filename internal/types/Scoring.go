/*

This file contains the types for risk profiles, per-protocol scoring results and the tunable optimizer parameters.

*/

package types

type RiskTolerance string

const (
	RiskLow    RiskTolerance = "low"
	RiskMedium RiskTolerance = "medium"
	RiskHigh   RiskTolerance = "high"
)

// RiskProfile is the policy derived from a risk tolerance label.
type RiskProfile struct {
	Tolerance          RiskTolerance `json:"tolerance"`
	MaxRisk            float64       `json:"max_risk"`            // Eligibility threshold on RiskScore (inclusive)
	MinDiversification float64       `json:"min_diversification"` // Spread across the eligible set as the per-protocol floor
	PreferStable       bool          `json:"prefer_stable"`       // Halve the score of protocols above the stable threshold
}

// AllocationWeight is the intermediate scoring record for one eligible protocol.
type AllocationWeight struct {
	ProtocolID           ProtocolID `json:"protocol_id"`
	RiskAdjustedReturn   float64    `json:"risk_adjusted_return"`
	DiversificationScore float64    `json:"diversification_score"`
	RiskWeight           float64    `json:"risk_weight"`
	ReturnWeight         float64    `json:"return_weight"`
	AIWeight             float64    `json:"ai_weight"`
}

// OptimizerParameters holds every constant of the multi-factor allocation algorithm.
type OptimizerParameters struct {
	// --- Eligibility ---
	SafeRiskThreshold float64 `json:"safe_risk_threshold"` // Fallback eligibility threshold when no protocol fits the profile

	// --- Scoring ---
	ReturnNormalizer      float64 `json:"return_normalizer"`      // APY divisor for the return weight (not clamped)
	LiquidityScale        float64 `json:"liquidity_scale"`        // Liquidity divisor for the diversification score
	RiskFactorWeight      float64 `json:"risk_factor_weight"`     // Weight of 1/(risk+1)
	ReturnFactorWeight    float64 `json:"return_factor_weight"`   // Weight of apy/ReturnNormalizer
	DiversificationWeight float64 `json:"diversification_weight"` // Weight of the diversification score
	StableRiskThreshold   float64 `json:"stable_risk_threshold"`  // Protocols above this are penalised for prefer_stable profiles
	StablePenalty         float64 `json:"stable_penalty"`         // Multiplier applied by the penalty

	// --- Weights ---
	BaseAllocation       float64 `json:"base_allocation"`        // Scale applied to the AI weight before capping
	AmountNormalizer     float64 `json:"amount_normalizer"`      // Amount divisor for the amount factor
	MaxAmountFactor      float64 `json:"max_amount_factor"`      // Clamp on the amount factor
	ConfidenceBase       float64 `json:"confidence_base"`        // Confidence before the Sharpe-like contribution
	ConfidenceSharpeMult float64 `json:"confidence_sharpe_mult"` // Confidence gained per unit of Sharpe-like ratio
	ConfidenceCap        float64 `json:"confidence_cap"`         // Upper bound on confidence

	// --- Execution estimate ---
	ExecutionFeeRate float64 `json:"execution_fee_rate"` // Fraction of the annual yield charged as execution fee
}
