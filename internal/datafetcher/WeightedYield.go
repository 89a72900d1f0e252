/*

This file contains the blended APY written on-chain by the yield updater.

*/

package datafetcher

import (
	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/elys-network/yield-aggregator/internal/utils"
)

// WeightedAPY blends protocol APYs with the catalog updater weights.
// Protocols without live data contribute config.UpdaterFallbackAPY instead of their catalog value.
// A live APY of zero or less is left out of the blend along with its weight.
// ok is false when no protocol carries weight.
func WeightedAPY(snapshot types.MetricsSnapshot, catalog []config.ProtocolSpec) (apy float64, ok bool) {
	totalWeighted := 0.0
	totalWeight := 0.0
	for _, spec := range catalog {
		if spec.UpdaterWeight <= 0 {
			continue
		}
		protocolAPY := config.UpdaterFallbackAPY
		if metric, found := snapshot.Protocols[spec.ID]; found && metric.Source == types.SourceLive {
			if metric.APY <= 0 {
				continue
			}
			protocolAPY = metric.APY
		}
		totalWeighted += protocolAPY * spec.UpdaterWeight
		totalWeight += spec.UpdaterWeight
	}
	if totalWeight <= 0 {
		return 0, false
	}
	return totalWeighted / totalWeight, true
}

// WeightedAPYBasisPoints is WeightedAPY truncated to basis points, or config.DefaultAPYBps when nothing carries weight.
func WeightedAPYBasisPoints(snapshot types.MetricsSnapshot, catalog []config.ProtocolSpec) (int64, error) {
	apy, ok := WeightedAPY(snapshot, catalog)
	if !ok {
		return config.DefaultAPYBps, nil
	}
	return utils.PercentToBasisPoints(apy)
}
