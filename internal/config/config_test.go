package config

import (
	"errors"
	"testing"
	"time"

	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t, "LOG_LEVEL", "WEB_PORT", "DB_HOST", "DB_PORT", "DB_SSLMODE", "METRICS_CACHE_TTL",
		"PROTOCOL_FETCH_TIMEOUT", "REDIS_ADDR", "COMPOUND_API_URL", "AAVE_API_URL", "YEARN_API_URL", "CURVE_API_URL")

	require.NoError(t, LoadConfig())

	assert.Equal(t, "info", LogLevel)
	assert.Equal(t, "8080", WebPort)
	assert.Equal(t, 5432, DBPort)
	assert.Equal(t, "disable", DBSSLMode)
	assert.Equal(t, 300*time.Second, MetricsCacheTTL)
	assert.Equal(t, 10*time.Second, ProtocolFetchTimeout)
	assert.False(t, PersistenceEnabled())
	assert.Empty(t, RedisAddr)
	assert.Equal(t, defaultCompoundAPI, CompoundAPI)
	assert.Equal(t, defaultCurveAPI, CurveAPI)
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("WEB_PORT", "9090")
	t.Setenv("DB_HOST", "localhost")
	t.Setenv("METRICS_CACHE_TTL", "90s")
	t.Setenv("PROTOCOL_FETCH_TIMEOUT", "3")
	t.Setenv("AAVE_API_URL", "http://mirror.local/aave")

	require.NoError(t, LoadConfig())

	assert.Equal(t, "9090", WebPort)
	assert.True(t, PersistenceEnabled())
	assert.Equal(t, 90*time.Second, MetricsCacheTTL)
	assert.Equal(t, 3*time.Second, ProtocolFetchTimeout)

	for _, spec := range ProtocolCatalog() {
		if spec.ID == ProtocolAave {
			assert.Equal(t, "http://mirror.local/aave", spec.Endpoint)
		}
	}
}

func TestLoadConfigRejectsMalformedValues(t *testing.T) {
	t.Setenv("DB_PORT", "five")
	assert.Error(t, LoadConfig())

	t.Setenv("DB_PORT", "")
	t.Setenv("METRICS_CACHE_TTL", "soon")
	assert.Error(t, LoadConfig())
}

func TestValidateUpdaterConfig(t *testing.T) {
	clearEnv(t, "UPDATER_RPC_URL", "UPDATER_PRIVATE_KEY", "UPDATER_CONTRACT_ADDRESS", "UPDATER_CHAIN_ID",
		"UPDATER_INTERVAL", "UPDATER_RETRY_BACKOFF", "UPDATER_TX_TIMEOUT", "UPDATER_MIN_CHANGE_BPS", "UPDATER_GAS_LIMIT")

	err := LoadUpdaterConfig()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMissingUpdaterConfig))
	assert.Len(t, multierr.Errors(err), 3, "rpc url, private key and contract address are all reported")

	assert.Equal(t, int64(11155111), UpdaterChainID)
	assert.Equal(t, 300*time.Second, UpdaterInterval)
	assert.Equal(t, 60*time.Second, UpdaterRetryBackoff)
	assert.Equal(t, 120*time.Second, UpdaterTxTimeout)
	assert.Equal(t, int64(100), UpdaterMinChangeBps)
	assert.Equal(t, uint64(200000), UpdaterGasLimit)

	t.Setenv("UPDATER_RPC_URL", "http://localhost:8545")
	t.Setenv("UPDATER_PRIVATE_KEY", "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318")
	t.Setenv("UPDATER_CONTRACT_ADDRESS", "0x5FbDB2315678afecb367f032d93F642f64180aa3")
	require.NoError(t, LoadUpdaterConfig())

	t.Setenv("UPDATER_TX_TIMEOUT", "0s")
	err = LoadUpdaterConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "UPDATER_TX_TIMEOUT")

	t.Setenv("UPDATER_TX_TIMEOUT", "")
	t.Setenv("UPDATER_MIN_CHANGE_BPS", "-1")
	err = LoadUpdaterConfig()
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMissingUpdaterConfig))
}

func TestResolveRiskProfile(t *testing.T) {
	assert.Equal(t, types.RiskHigh, ResolveRiskProfile(" HIGH ").Tolerance)
	assert.Equal(t, types.RiskLow, ResolveRiskProfile("low").Tolerance)
	assert.Equal(t, types.RiskMedium, ResolveRiskProfile("aggressive").Tolerance)
	assert.Equal(t, types.RiskMedium, ResolveRiskProfile("").Tolerance)

	assert.True(t, ResolveRiskProfile("low").PreferStable)
	assert.Equal(t, 8.0, ResolveRiskProfile("high").MaxRisk)
}

func TestValidateOptimizerParameters(t *testing.T) {
	require.NoError(t, ValidateOptimizerParameters(DefaultOptimizerParameters))

	params := DefaultOptimizerParameters
	params.StablePenalty = 2
	params.ConfidenceCap = 0
	params.LiquidityScale = -1

	err := ValidateOptimizerParameters(params)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidOptimizerParameters))
	assert.Len(t, multierr.Errors(err), 3)
}

func TestProtocolCatalog(t *testing.T) {
	catalog := ProtocolCatalog()
	require.Len(t, catalog, 4)

	var totalWeight float64
	for _, spec := range catalog {
		totalWeight += spec.UpdaterWeight
		assert.NotEmpty(t, spec.Endpoint, spec.ID)
		assert.Greater(t, spec.MaxAllocation, 0.0)
	}
	assert.InDelta(t, 1.0, totalWeight, 1e-9)

	catalog[0].Tokens[0] = "MUTATED"
	assert.Equal(t, "USDC", ProtocolCatalog()[0].Tokens[0])

	metrics := FallbackMetrics(catalog)
	require.Len(t, metrics, 4)
	yearn := metrics[ProtocolYearn]
	assert.Equal(t, 15.7, yearn.APY)
	assert.Equal(t, types.SourceFallback, yearn.Source)
}
