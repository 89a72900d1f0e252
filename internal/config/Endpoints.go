package config

import (
	"github.com/rs/zerolog/log"
)

// Protocol API endpoints. Each can be overridden from the environment (e.g. to point at a mirror).
var (
	CompoundAPI string
	AaveAPI     string
	YearnAPI    string
	CurveAPI    string
)

const (
	defaultCompoundAPI = "https://api.compound.finance/api/v2/ctoken"
	defaultAaveAPI     = "https://aave-api-v2.aave.com/data/liquidity/v2?poolId=mainnet"
	defaultYearnAPI    = "https://api.yearn.finance/v1/chains/1/vaults/all"
	defaultCurveAPI    = "https://api.curve.fi/api/getPools/ethereum/main"
)

// loadEndpointConfig loads endpoint configuration from environment variables.
// This function is called by LoadConfig() in General.go.
func loadEndpointConfig() error {
	CompoundAPI = getEnvOrDefault("COMPOUND_API_URL", defaultCompoundAPI)
	AaveAPI = getEnvOrDefault("AAVE_API_URL", defaultAaveAPI)
	YearnAPI = getEnvOrDefault("YEARN_API_URL", defaultYearnAPI)
	CurveAPI = getEnvOrDefault("CURVE_API_URL", defaultCurveAPI)

	log.Debug().
		Str("CompoundAPI", CompoundAPI).
		Str("AaveAPI", AaveAPI).
		Str("YearnAPI", YearnAPI).
		Str("CurveAPI", CurveAPI).
		Msg("Endpoint configuration loaded successfully.")

	return nil
}

// endpointFor returns the configured URL for a protocol, falling back to the public default.
func endpointFor(id string) string {
	switch id {
	case ProtocolCompound:
		return firstNonEmpty(CompoundAPI, defaultCompoundAPI)
	case ProtocolAave:
		return firstNonEmpty(AaveAPI, defaultAaveAPI)
	case ProtocolYearn:
		return firstNonEmpty(YearnAPI, defaultYearnAPI)
	case ProtocolCurve:
		return firstNonEmpty(CurveAPI, defaultCurveAPI)
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
