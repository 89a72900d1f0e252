/*

This file contains the default parameters for the allocation optimizer and the risk profile table.

The multi-factor model is deliberately simple: it blends safety, return and diversification with fixed weights
and relies on per-protocol caps plus a diversification floor instead of covariance estimates.

*/

package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/elys-network/yield-aggregator/internal/types"
	"go.uber.org/multierr"
)

var ErrInvalidOptimizerParameters = errors.New("invalid optimizer parameters")

// DefaultOptimizerParameters provides the constants of the multi-factor allocation policy.
var DefaultOptimizerParameters = types.OptimizerParameters{
	// --- Eligibility ---
	SafeRiskThreshold: 3.0, // Used when nothing fits the requested profile.
	// Rationale: An unsatisfiable profile still gets the safest protocols instead of an empty plan.

	// --- Scoring ---
	ReturnNormalizer: 20.0, // APY of 20% maps to a return weight of 1.0.
	// Rationale: Stablecoin lending rarely exceeds 20%. Values above it are allowed to exceed 1.0
	// so that an outlier yield still ranks first, but the risk factor keeps it in check.

	LiquidityScale: 10.0, // Liquidity scores are expressed on a 0-10 scale.

	RiskFactorWeight:      0.4, // Weight of 1/(risk+1).
	ReturnFactorWeight:    0.4, // Weight of apy/20.
	DiversificationWeight: 0.2, // Weight of benefit*liquidity/10.
	// Rationale: Safety and return are weighted equally. Diversification is a tie-breaker between
	// protocols of similar quality.

	StableRiskThreshold: 3.0, // Protocols above this risk score are not "stable".
	StablePenalty:       0.5, // Halve their score for prefer_stable profiles.
	// Rationale: A conservative profile may still hold a riskier protocol, but only as a minority.

	// --- Weights ---
	BaseAllocation: 0.25, // Raw weight scale before capping.
	// Rationale: With four protocols a neutral score lands close to an even split.

	AmountNormalizer: 10000, // Amount factor reaches 1.0 at $10k.
	MaxAmountFactor:  2.0,   // And stops growing at $20k.
	// Rationale: Larger deposits can afford positions closer to the caps, so raw weights grow with
	// size. Beyond $20k the caps and the floor dominate anyway.

	ConfidenceBase:       70, // Every plan starts at 70% confidence.
	ConfidenceSharpeMult: 10, // +10 points per unit of Sharpe-like ratio.
	ConfidenceCap:        95, // Never claim more than 95%.

	// --- Execution estimate ---
	ExecutionFeeRate: 0.005, // 0.5% of the annual yield.
}

// RiskProfiles maps each tolerance label to its allocation policy.
var RiskProfiles = map[types.RiskTolerance]types.RiskProfile{
	types.RiskLow: {
		Tolerance: types.RiskLow, MaxRisk: 3.0, MinDiversification: 0.7, PreferStable: true,
		// Rationale: Only blue-chip lending, spread widely, with riskier protocols penalised.
	},
	types.RiskMedium: {
		Tolerance: types.RiskMedium, MaxRisk: 5.0, MinDiversification: 0.5, PreferStable: false,
	},
	types.RiskHigh: {
		Tolerance: types.RiskHigh, MaxRisk: 8.0, MinDiversification: 0.3, PreferStable: false,
		// Rationale: Every catalog protocol is eligible and the floor is loose enough for the
		// highest-yield protocol to dominate.
	},
}

// ResolveRiskProfile maps a free-form label to a profile. Unknown labels resolve to medium.
func ResolveRiskProfile(label string) types.RiskProfile {
	tolerance := types.RiskTolerance(strings.ToLower(strings.TrimSpace(label)))
	if profile, ok := RiskProfiles[tolerance]; ok {
		return profile
	}
	return RiskProfiles[types.RiskMedium]
}

// ValidateOptimizerParameters reports every invalid parameter at once.
func ValidateOptimizerParameters(params types.OptimizerParameters) error {
	var errs error
	positive := map[string]float64{
		"ReturnNormalizer": params.ReturnNormalizer,
		"LiquidityScale":   params.LiquidityScale,
		"BaseAllocation":   params.BaseAllocation,
		"AmountNormalizer": params.AmountNormalizer,
		"MaxAmountFactor":  params.MaxAmountFactor,
	}
	for _, name := range []string{"ReturnNormalizer", "LiquidityScale", "BaseAllocation", "AmountNormalizer", "MaxAmountFactor"} {
		if positive[name] <= 0 {
			errs = multierr.Append(errs, fmt.Errorf("%w: %s must be positive, got %f", ErrInvalidOptimizerParameters, name, positive[name]))
		}
	}
	if params.RiskFactorWeight < 0 || params.ReturnFactorWeight < 0 || params.DiversificationWeight < 0 {
		errs = multierr.Append(errs, fmt.Errorf("%w: factor weights cannot be negative", ErrInvalidOptimizerParameters))
	}
	if params.StablePenalty < 0 || params.StablePenalty > 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: StablePenalty must be in [0, 1], got %f", ErrInvalidOptimizerParameters, params.StablePenalty))
	}
	if params.ConfidenceCap <= 0 || params.ConfidenceCap > 100 {
		errs = multierr.Append(errs, fmt.Errorf("%w: ConfidenceCap must be in (0, 100], got %f", ErrInvalidOptimizerParameters, params.ConfidenceCap))
	}
	if params.ExecutionFeeRate < 0 || params.ExecutionFeeRate >= 1 {
		errs = multierr.Append(errs, fmt.Errorf("%w: ExecutionFeeRate must be in [0, 1), got %f", ErrInvalidOptimizerParameters, params.ExecutionFeeRate))
	}
	return errs
}
