package state

import (
	"context"
	"testing"
	"time"

	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDBConfigDSN(t *testing.T) {
	cfg := DBConfig{Host: "db", Port: 5433, User: "svc", Password: "pw", DBName: "yields"}
	assert.Equal(t, "host=db port=5433 user=svc password=pw dbname=yields sslmode=disable", cfg.DSN())

	cfg.SSLMode = "require"
	assert.Contains(t, cfg.DSN(), "sslmode=require")
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, 10, clampLimit(0))
	assert.Equal(t, 10, clampLimit(-5))
	assert.Equal(t, 10, clampLimit(101))
	assert.Equal(t, 1, clampLimit(1))
	assert.Equal(t, 100, clampLimit(100))
}

func TestPlanProtocols(t *testing.T) {
	plan := types.PortfolioPlan{Allocations: []types.ProtocolAllocation{{ProtocolID: "curve"}, {ProtocolID: "compound"}}}
	assert.Equal(t, []string{"curve", "compound"}, planProtocols(plan))
	assert.Empty(t, planProtocols(types.PortfolioPlan{}))
}

func TestSortedProtocolIDs(t *testing.T) {
	snapshot := types.MetricsSnapshot{Protocols: map[types.ProtocolID]types.ProtocolMetric{
		"yearn": {}, "aave": {}, "curve": {}, "compound": {},
	}}
	assert.Equal(t, []types.ProtocolID{"aave", "compound", "curve", "yearn"}, sortedProtocolIDs(snapshot))
}

func TestWithoutDatabase(t *testing.T) {
	require.Nil(t, DB)
	ctx := context.Background()
	recorder := PostgresRecorder{}

	assert.ErrorIs(t, recorder.RecordPlan(ctx, types.PortfolioPlan{PlanID: "p", Timestamp: time.Now()}), ErrDBNotInitialized)
	assert.ErrorIs(t, recorder.RecordSnapshot(ctx, types.MetricsSnapshot{}), ErrDBNotInitialized)
	assert.ErrorIs(t, recorder.RecordYieldUpdate(ctx, types.YieldUpdate{}), ErrDBNotInitialized)
	assert.ErrorIs(t, recorder.Ping(), ErrDBNotInitialized)

	_, err := recorder.RecentPlans(ctx, 5)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	_, err = recorder.RecentYieldUpdates(ctx, 5)
	assert.ErrorIs(t, err, ErrDBNotInitialized)

	analytics, err := recorder.PlanAnalytics(ctx)
	assert.ErrorIs(t, err, ErrDBNotInitialized)
	assert.NotNil(t, analytics.ByRiskLevel)

	assert.ErrorIs(t, EnsureSchema(), ErrDBNotInitialized)
	assert.ErrorIs(t, DropSchema(), ErrDBNotInitialized)
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	assert.Equal(t, "0xabc", nullString("0xabc").String)
}
