package datafetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	compoundBody = `{"cToken":[
		{"symbol":"cDAI","supply_rate":{"value":"0.031"}},
		{"symbol":"cUSDC","supply_rate":{"value":"0.0512"},"total_supply":{"value":"1000000"},"underlying_price":{"value":"1.5"}}
	]}`
	aaveBody  = `{"reserves":[{"symbol":"DAI","liquidityRate":0.02},{"symbol":"USDC","liquidityRate":0.0421,"totalLiquidityUSD":"2500000"}]}`
	yearnBody = `[
		{"name":"yvDAI","token":{"symbol":"DAI"},"apy":{"net_apy":0.05}},
		{"name":"yvUSDC 0.4.3","token":{"symbol":"USDC"},"apy":{"net_apy":0.0733},"tvl":{"tvl":4200000}}
	]`
	curveBody = `{"data":{"poolData":[{"name":"3pool-DAI","apy":2.0},{"name":"FRAX/USDC","apy":4.25,"tvl":"9000000"}]}}`
)

func testCatalog(baseURL string) []config.ProtocolSpec {
	catalog := config.ProtocolCatalog()
	for i := range catalog {
		catalog[i].Endpoint = baseURL + "/" + string(catalog[i].ID)
	}
	return catalog
}

func newTestRetriever(client *http.Client, catalog []config.ProtocolSpec) *ProtocolRetriever {
	r := NewProtocolRetriever(client, catalog)
	r.retryDelay = time.Millisecond
	return r
}

func TestProtocolRetriever_FetchAllLive(t *testing.T) {
	bodies := map[string]string{
		"/compound": compoundBody,
		"/aave":     aaveBody,
		"/yearn":    yearnBody,
		"/curve":    curveBody,
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := bodies[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	defer server.Close()

	snapshot, err := newTestRetriever(server.Client(), testCatalog(server.URL)).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Protocols, 4)
	assert.Equal(t, 4, snapshot.LiveCount())

	compound := snapshot.Protocols["compound"]
	assert.InDelta(t, 5.12, compound.APY, 1e-9)
	assert.InDelta(t, 1_500_000, compound.TVL, 1e-6)
	assert.Equal(t, 2.1, compound.RiskScore, "risk comes from the catalog")
	assert.Equal(t, types.SourceLive, compound.Source)

	assert.InDelta(t, 4.21, snapshot.Protocols["aave"].APY, 1e-9)
	assert.InDelta(t, 2_500_000, snapshot.Protocols["aave"].TVL, 1e-6)
	assert.InDelta(t, 7.33, snapshot.Protocols["yearn"].APY, 1e-9)
	assert.InDelta(t, 4_200_000, snapshot.Protocols["yearn"].TVL, 1e-6)
	assert.InDelta(t, 4.25, snapshot.Protocols["curve"].APY, 1e-9)
	assert.InDelta(t, 9_000_000, snapshot.Protocols["curve"].TVL, 1e-6)
}

func TestProtocolRetriever_PartialFailureUsesFallback(t *testing.T) {
	var aaveCalls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/compound":
			_, _ = w.Write([]byte(compoundBody))
		case "/aave":
			aaveCalls.Add(1)
			w.WriteHeader(http.StatusBadGateway)
		case "/yearn":
			_, _ = w.Write([]byte(`[{"name":"yvDAI","token":{"symbol":"DAI"}}]`))
		default:
			_, _ = w.Write([]byte(`not json`))
		}
	}))
	defer server.Close()

	snapshot, err := newTestRetriever(server.Client(), testCatalog(server.URL)).Fetch(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProtocolUnavailable)
	assert.ErrorIs(t, err, ErrMarketNotFound)
	assert.ErrorIs(t, err, ErrInvalidProtocolData)

	require.Len(t, snapshot.Protocols, 4)
	assert.Equal(t, 1, snapshot.LiveCount())
	assert.Equal(t, types.SourceLive, snapshot.Protocols["compound"].Source)

	aave := snapshot.Protocols["aave"]
	assert.Equal(t, types.SourceFallback, aave.Source)
	assert.Equal(t, 12.3, aave.APY)
	assert.Equal(t, 1_800_000_000.0, aave.TVL)
	assert.Equal(t, []string{"USDC", "USDT", "DAI", "ETH"}, aave.Tokens)

	assert.Equal(t, int32(MAX_RETRIES), aaveCalls.Load(), "transport errors are retried")
	assert.Equal(t, 15.7, snapshot.Protocols["yearn"].APY)
	assert.Equal(t, 6.2, snapshot.Protocols["curve"].APY)
}

func TestProtocolRetriever_RejectsNegativeAPY(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"poolData":[{"name":"usdc pool","apy":-3}]}}`))
	}))
	defer server.Close()

	catalog := testCatalog(server.URL)
	var curveOnly []config.ProtocolSpec
	for _, spec := range catalog {
		if spec.ID == config.ProtocolCurve {
			curveOnly = append(curveOnly, spec)
		}
	}

	snapshot, err := newTestRetriever(server.Client(), curveOnly).Fetch(context.Background())
	assert.ErrorIs(t, err, ErrInvalidProtocolData)
	assert.Equal(t, types.SourceFallback, snapshot.Protocols["curve"].Source)
}

func TestProtocolRetriever_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte(`{"cToken":[]}`))
	}))
	defer server.Close()

	catalog := testCatalog(server.URL)[:1] // compound only
	retriever := newTestRetriever(server.Client(), catalog)

	for i := 0; i < 3; i++ {
		_, err := retriever.Fetch(context.Background())
		require.Error(t, err)
	}
	require.Equal(t, int32(3), calls.Load(), "market-not-found is not retried")

	snapshot, err := retriever.Fetch(context.Background())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "open breaker short-circuits the request")
	assert.Equal(t, types.SourceFallback, snapshot.Protocols["compound"].Source)
}

func TestProtocolRetriever_CancelledContextFallsBack(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snapshot, err := newTestRetriever(nil, testCatalog("http://127.0.0.1:1")).Fetch(ctx)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Len(t, snapshot.Protocols, 4)
	assert.Zero(t, snapshot.LiveCount())
}

func TestStaticProvider(t *testing.T) {
	now := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	snapshot, err := StaticProvider{Catalog: config.ProtocolCatalog(), Now: func() time.Time { return now }}.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Protocols, 4)
	assert.Equal(t, now, snapshot.FetchedAt)
	assert.Zero(t, snapshot.LiveCount())
}

func TestWeightedAPYBasisPoints(t *testing.T) {
	catalog := config.ProtocolCatalog()
	live := func(apys map[types.ProtocolID]float64) types.MetricsSnapshot {
		snapshot := types.MetricsSnapshot{Protocols: config.FallbackMetrics(catalog)}
		for id, apy := range apys {
			m := snapshot.Protocols[id]
			m.APY = apy
			m.Source = types.SourceLive
			snapshot.Protocols[id] = m
		}
		return snapshot
	}

	bps, err := WeightedAPYBasisPoints(live(map[types.ProtocolID]float64{"compound": 5, "aave": 4, "yearn": 10, "curve": 3}), catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(540), bps)

	bps, err = WeightedAPYBasisPoints(live(nil), catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(800), bps, "every protocol falls back to 8%")

	bps, err = WeightedAPYBasisPoints(live(map[types.ProtocolID]float64{"compound": 10}), catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(860), bps)

	bps, err = WeightedAPYBasisPoints(live(map[types.ProtocolID]float64{"compound": 3.1234, "aave": 12.3, "yearn": 15.7, "curve": 6.2}), catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(961), bps, "truncated, not rounded")

	// a live zero APY drops compound and its 0.3 weight: (1.6 + 2.0 + 0.3) / 0.7
	bps, err = WeightedAPYBasisPoints(live(map[types.ProtocolID]float64{"compound": 0, "aave": 4, "yearn": 10, "curve": 3}), catalog)
	require.NoError(t, err)
	assert.Equal(t, int64(557), bps)

	bps, err = WeightedAPYBasisPoints(live(map[types.ProtocolID]float64{"compound": 0, "aave": 0, "yearn": 0, "curve": 0}), catalog)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAPYBps, bps, "nothing left to blend")

	unweighted := config.ProtocolCatalog()
	for i := range unweighted {
		unweighted[i].UpdaterWeight = 0
	}
	bps, err = WeightedAPYBasisPoints(live(nil), unweighted)
	require.NoError(t, err)
	assert.Equal(t, config.DefaultAPYBps, bps)
}
