/*

This file contains the types for lending/yield protocols and the metric snapshots the optimizer consumes.

*/

package types

import "time"

type ProtocolID string

// MetricSource records where a protocol's numbers came from.
type MetricSource string

const (
	SourceLive     MetricSource = "live"     // Fetched from the protocol API during the last refresh
	SourceFallback MetricSource = "fallback" // Documented constants substituted after a failed fetch
)

// ProtocolMetric is the per-protocol input of the allocation optimizer.
// Invariants: RiskScore > 0, MaxAllocation in (0, 1].
type ProtocolMetric struct {
	ID                     ProtocolID   `json:"id"`
	Name                   string       `json:"name"`
	APY                    float64      `json:"apy"`                     // Annual percentage yield (8.5 = 8.5%)
	TVL                    float64      `json:"tvl"`                     // Total value locked in USD
	RiskScore              float64      `json:"risk_score"`              // Higher is riskier
	RiskBucket             string       `json:"risk_bucket"`             // Coarse label shown to clients (low / medium)
	LiquidityScore         float64      `json:"liquidity_score"`         // 0-10
	DiversificationBenefit float64      `json:"diversification_benefit"` // 0-1
	MaxAllocation          float64      `json:"max_allocation"`          // Upper bound on the protocol's weight before the floor
	Tokens                 []string     `json:"tokens"`
	Source                 MetricSource `json:"source"`
}

// MetricsSnapshot is a complete view of every known protocol at one point in time.
type MetricsSnapshot struct {
	Protocols map[ProtocolID]ProtocolMetric `json:"protocols"`
	FetchedAt time.Time                     `json:"fetched_at"`
}

// LiveCount returns how many protocols in the snapshot carry live data.
func (s MetricsSnapshot) LiveCount() int {
	count := 0
	for _, metric := range s.Protocols {
		if metric.Source == SourceLive {
			count++
		}
	}
	return count
}

// Clone returns a deep copy so callers can mutate the result without touching cached state.
func (s MetricsSnapshot) Clone() MetricsSnapshot {
	protocols := make(map[ProtocolID]ProtocolMetric, len(s.Protocols))
	for id, metric := range s.Protocols {
		metric.Tokens = append([]string(nil), metric.Tokens...)
		protocols[id] = metric
	}
	return MetricsSnapshot{Protocols: protocols, FetchedAt: s.FetchedAt}
}
