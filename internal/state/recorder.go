/*

This file adapts the package level persistence functions to the recorder interfaces used by the
web server, the snapshot cache and the yield updater.

*/

package state

import (
	"context"

	"github.com/elys-network/yield-aggregator/internal/types"
)

// PostgresRecorder persists through the global DB pool.
type PostgresRecorder struct{}

func (PostgresRecorder) RecordPlan(ctx context.Context, plan types.PortfolioPlan) error {
	return SavePlan(ctx, plan)
}

func (PostgresRecorder) RecentPlans(ctx context.Context, limit int) ([]types.PortfolioPlan, error) {
	return GetRecentPlans(ctx, limit)
}

func (PostgresRecorder) PlanAnalytics(ctx context.Context) (types.PlanAnalytics, error) {
	return GetPlanAnalytics(ctx)
}

func (PostgresRecorder) RecordSnapshot(ctx context.Context, snapshot types.MetricsSnapshot) error {
	_, err := SaveMetricSnapshot(ctx, snapshot)
	return err
}

func (PostgresRecorder) RecordYieldUpdate(ctx context.Context, update types.YieldUpdate) error {
	_, err := SaveYieldUpdate(ctx, update)
	return err
}

func (PostgresRecorder) RecentYieldUpdates(ctx context.Context, limit int) ([]types.YieldUpdate, error) {
	return GetRecentYieldUpdates(ctx, limit)
}

func (PostgresRecorder) Ping() error {
	return TestDBConnection()
}
