/*

This file contains the catalog of supported protocols.

The APY and TVL figures are the fallback values served whenever a protocol API cannot be reached.
The risk, liquidity, diversification and cap figures are the optimizer's static view of each protocol
and are never overridden by live data.

Keep this list in sync with the fetchers in datafetcher/ProtocolRetriever.go.

*/

package config

import "github.com/elys-network/yield-aggregator/internal/types"

const (
	ProtocolCompound = "compound"
	ProtocolAave     = "aave"
	ProtocolYearn    = "yearn"
	ProtocolCurve    = "curve"
)

// UpdaterFallbackAPY is the APY (percent) a protocol contributes to the on-chain rate when its fetch failed.
const UpdaterFallbackAPY = 8.0

// DefaultAPYBps is the on-chain rate assumed before the first update and when no protocol carries weight.
const DefaultAPYBps int64 = 922

// YieldUpdateSource is the source tag written alongside every on-chain update.
const YieldUpdateSource = "real_defi_data"

// ProtocolSpec describes one protocol: its fallback metrics, its optimizer constants and its updater weight.
type ProtocolSpec struct {
	ID                     types.ProtocolID
	Name                   string
	FallbackAPY            float64
	FallbackTVL            float64
	RiskBucket             string
	RiskScore              float64
	LiquidityScore         float64
	DiversificationBenefit float64
	MaxAllocation          float64
	Tokens                 []string
	UpdaterWeight          float64 // Share of the on-chain weighted APY
	Endpoint               string
}

var protocolCatalog = []ProtocolSpec{
	{
		ID: ProtocolCompound, Name: "Compound",
		FallbackAPY: 8.5, FallbackTVL: 2_500_000_000, RiskBucket: "low",
		RiskScore: 2.1, LiquidityScore: 9.5, DiversificationBenefit: 0.8, MaxAllocation: 0.4,
		Tokens:        []string{"USDC", "USDT", "DAI"},
		UpdaterWeight: 0.3,
	},
	{
		ID: ProtocolAave, Name: "Aave",
		FallbackAPY: 12.3, FallbackTVL: 1_800_000_000, RiskBucket: "medium",
		RiskScore: 4.2, LiquidityScore: 8.8, DiversificationBenefit: 0.9, MaxAllocation: 0.5,
		Tokens:        []string{"USDC", "USDT", "DAI", "ETH"},
		UpdaterWeight: 0.4,
	},
	{
		ID: ProtocolYearn, Name: "Yearn Finance",
		FallbackAPY: 15.7, FallbackTVL: 800_000_000, RiskBucket: "medium",
		RiskScore: 6.8, LiquidityScore: 7.2, DiversificationBenefit: 0.7, MaxAllocation: 0.3,
		Tokens:        []string{"USDC", "USDT", "DAI", "WETH"},
		UpdaterWeight: 0.2,
	},
	{
		ID: ProtocolCurve, Name: "Curve Finance",
		FallbackAPY: 6.2, FallbackTVL: 3_200_000_000, RiskBucket: "low",
		RiskScore: 1.8, LiquidityScore: 9.8, DiversificationBenefit: 0.6, MaxAllocation: 0.6,
		Tokens:        []string{"USDC", "USDT", "DAI", "FRAX"},
		UpdaterWeight: 0.1,
	},
}

// ProtocolCatalog returns a copy of the catalog with endpoints resolved from the current configuration.
func ProtocolCatalog() []ProtocolSpec {
	catalog := make([]ProtocolSpec, len(protocolCatalog))
	for i, spec := range protocolCatalog {
		spec.Tokens = append([]string(nil), spec.Tokens...)
		spec.Endpoint = endpointFor(string(spec.ID))
		catalog[i] = spec
	}
	return catalog
}

// FallbackMetric builds the optimizer input for a protocol from its documented constants.
func (s ProtocolSpec) FallbackMetric() types.ProtocolMetric {
	return types.ProtocolMetric{
		ID:                     s.ID,
		Name:                   s.Name,
		APY:                    s.FallbackAPY,
		TVL:                    s.FallbackTVL,
		RiskScore:              s.RiskScore,
		RiskBucket:             s.RiskBucket,
		LiquidityScore:         s.LiquidityScore,
		DiversificationBenefit: s.DiversificationBenefit,
		MaxAllocation:          s.MaxAllocation,
		Tokens:                 append([]string(nil), s.Tokens...),
		Source:                 types.SourceFallback,
	}
}

// FallbackMetrics returns the full catalog as optimizer inputs, all marked as fallback data.
func FallbackMetrics(catalog []ProtocolSpec) map[types.ProtocolID]types.ProtocolMetric {
	metrics := make(map[types.ProtocolID]types.ProtocolMetric, len(catalog))
	for _, spec := range catalog {
		metrics[spec.ID] = spec.FallbackMetric()
	}
	return metrics
}
