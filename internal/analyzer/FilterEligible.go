/*

This file contains the eligibility filter: which protocols a risk profile may allocate to.

*/

package analyzer

import (
	"sort"

	"github.com/elys-network/yield-aggregator/internal/types"
)

// FilterEligible keeps the protocols whose risk score is within the profile's max risk.
// When none qualify it falls back to protocols at or below safeRiskThreshold.
// The result is sorted by protocol ID so downstream iteration never depends on map order.
// An empty result means nothing in the catalog is safe enough to allocate to.
func FilterEligible(metrics map[types.ProtocolID]types.ProtocolMetric, profile types.RiskProfile, safeRiskThreshold float64) []types.ProtocolMetric {
	eligible := filterByRisk(metrics, profile.MaxRisk)
	if len(eligible) > 0 {
		return eligible
	}

	optimizerLogger.Debug().
		Str("riskTolerance", string(profile.Tolerance)).
		Float64("maxRisk", profile.MaxRisk).
		Float64("safeRiskThreshold", safeRiskThreshold).
		Msg("No protocol within profile risk, falling back to safe threshold")

	return filterByRisk(metrics, safeRiskThreshold)
}

func filterByRisk(metrics map[types.ProtocolID]types.ProtocolMetric, maxRisk float64) []types.ProtocolMetric {
	eligible := make([]types.ProtocolMetric, 0, len(metrics))
	for _, metric := range metrics {
		if metric.RiskScore <= maxRisk {
			eligible = append(eligible, metric)
		}
	}
	sort.Slice(eligible, func(i, j int) bool {
		return eligible[i].ID < eligible[j].ID
	})
	return eligible
}
