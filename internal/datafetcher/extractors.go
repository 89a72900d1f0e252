package datafetcher

import (
	"fmt"
	"strings"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/tidwall/gjson"
)

type protocolReading struct {
	apy float64 // percent
	tvl float64 // USD, 0 when unknown
}

type extractor func(body []byte) (protocolReading, error)

func defaultExtractors() map[types.ProtocolID]extractor {
	return map[types.ProtocolID]extractor{
		config.ProtocolCompound: extractCompound,
		config.ProtocolAave:     extractAave,
		config.ProtocolYearn:    extractYearn,
		config.ProtocolCurve:    extractCurve,
	}
}

// extractCompound reads the cUSDC market. Rates are fractions; TVL is supply times underlying price when present.
func extractCompound(body []byte) (protocolReading, error) {
	if !gjson.ValidBytes(body) {
		return protocolReading{}, fmt.Errorf("%w: compound response is not JSON", ErrInvalidProtocolData)
	}
	market := gjson.GetBytes(body, `cToken.#(symbol=="cUSDC")`)
	if !market.Exists() {
		return protocolReading{}, ErrMarketNotFound
	}
	rate := market.Get("supply_rate.value")
	if !rate.Exists() {
		return protocolReading{}, fmt.Errorf("%w: compound cUSDC has no supply_rate", ErrInvalidProtocolData)
	}

	tvl := market.Get("total_supply.value").Float()
	if price := market.Get("underlying_price.value"); price.Exists() {
		tvl *= price.Float()
	}
	return protocolReading{apy: rate.Float() * 100, tvl: tvl}, nil
}

// extractAave reads the USDC reserve. liquidityRate is a fraction.
func extractAave(body []byte) (protocolReading, error) {
	if !gjson.ValidBytes(body) {
		return protocolReading{}, fmt.Errorf("%w: aave response is not JSON", ErrInvalidProtocolData)
	}
	reserve := gjson.GetBytes(body, `reserves.#(symbol=="USDC")`)
	if !reserve.Exists() {
		return protocolReading{}, ErrMarketNotFound
	}
	rate := reserve.Get("liquidityRate")
	if !rate.Exists() {
		return protocolReading{}, fmt.Errorf("%w: aave USDC has no liquidityRate", ErrInvalidProtocolData)
	}

	tvl := reserve.Get("totalLiquidityUSD")
	if !tvl.Exists() {
		tvl = reserve.Get("totalLiquidity")
	}
	return protocolReading{apy: rate.Float() * 100, tvl: tvl.Float()}, nil
}

// extractYearn reads the first USDC vault. net_apy is a fraction.
func extractYearn(body []byte) (protocolReading, error) {
	if !gjson.ValidBytes(body) {
		return protocolReading{}, fmt.Errorf("%w: yearn response is not JSON", ErrInvalidProtocolData)
	}
	var vault gjson.Result
	gjson.ParseBytes(body).ForEach(func(_, candidate gjson.Result) bool {
		if candidate.Get("token.symbol").String() == "USDC" || strings.Contains(candidate.Get("name").String(), "USDC") {
			vault = candidate
			return false
		}
		return true
	})
	if !vault.Exists() {
		return protocolReading{}, ErrMarketNotFound
	}
	apy := vault.Get("apy.net_apy")
	if !apy.Exists() {
		return protocolReading{}, fmt.Errorf("%w: yearn USDC vault has no net_apy", ErrInvalidProtocolData)
	}
	return protocolReading{apy: apy.Float() * 100, tvl: vault.Get("tvl.tvl").Float()}, nil
}

// extractCurve reads the first pool whose name mentions USDC. Its apy is already a percentage.
func extractCurve(body []byte) (protocolReading, error) {
	if !gjson.ValidBytes(body) {
		return protocolReading{}, fmt.Errorf("%w: curve response is not JSON", ErrInvalidProtocolData)
	}
	var pool gjson.Result
	gjson.GetBytes(body, "data.poolData").ForEach(func(_, candidate gjson.Result) bool {
		if strings.Contains(strings.ToLower(candidate.Get("name").String()), "usdc") {
			pool = candidate
			return false
		}
		return true
	})
	if !pool.Exists() {
		return protocolReading{}, ErrMarketNotFound
	}
	return protocolReading{apy: pool.Get("apy").Float(), tvl: pool.Get("tvl").Float()}, nil
}
