// ./internal/state/snapshot_store.go
package state

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/google/uuid"
	"github.com/lib/pq" // PostgreSQL driver for array support
	"github.com/rs/zerolog/log"
)

// SavePlan stores a computed plan. Plans without an ID are rejected.
func SavePlan(ctx context.Context, plan types.PortfolioPlan) error {
	if DB == nil {
		return ErrDBNotInitialized
	}
	if plan.PlanID == "" {
		return fmt.Errorf("plan has no plan_id")
	}

	planJSON, err := json.Marshal(plan)
	if err != nil {
		return fmt.Errorf("failed to marshal plan: %w", err)
	}

	query := `
		INSERT INTO portfolio_plans (
			plan_id, created_at, risk_tolerance, policy, amount_usd,
			expected_apy, weighted_risk_score, risk_level, confidence,
			protocols, plan
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (plan_id) DO NOTHING;
	`
	_, err = DB.ExecContext(ctx, query,
		plan.PlanID, plan.Timestamp, string(plan.RiskTolerance), plan.Policy, plan.Amount,
		plan.ExpectedAPY, plan.WeightedRiskScore, plan.RiskLevel, plan.Confidence,
		pq.Array(planProtocols(plan)), planJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to save plan %s: %w", plan.PlanID, err)
	}

	log.Debug().
		Str("plan_id", plan.PlanID).
		Float64("expected_apy", plan.ExpectedAPY).
		Msg("Portfolio plan saved to database")
	return nil
}

// SaveMetricSnapshot stores one row per protocol under a fresh refresh ID and returns that ID.
func SaveMetricSnapshot(ctx context.Context, snapshot types.MetricsSnapshot) (string, error) {
	if DB == nil {
		return "", ErrDBNotInitialized
	}

	refreshID := uuid.NewString()
	tx, err := DB.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO metric_snapshots (refresh_id, fetched_at, protocol_id, apy, tvl_usd, risk_score, source, tokens)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8);
	`)
	if err != nil {
		return "", fmt.Errorf("failed to prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for _, id := range sortedProtocolIDs(snapshot) {
		metric := snapshot.Protocols[id]
		if _, err := stmt.ExecContext(ctx,
			refreshID, snapshot.FetchedAt, string(id), metric.APY, metric.TVL, metric.RiskScore,
			string(metric.Source), pq.Array(metric.Tokens),
		); err != nil {
			return "", fmt.Errorf("failed to save metric for %s: %w", id, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("failed to commit metric snapshot: %w", err)
	}

	log.Debug().
		Str("refresh_id", refreshID).
		Int("protocols", len(snapshot.Protocols)).
		Int("live", snapshot.LiveCount()).
		Msg("Metric snapshot saved to database")
	return refreshID, nil
}

// planProtocols lists the allocated protocol IDs in allocation order.
func planProtocols(plan types.PortfolioPlan) []string {
	ids := make([]string, 0, len(plan.Allocations))
	for _, allocation := range plan.Allocations {
		ids = append(ids, string(allocation.ProtocolID))
	}
	return ids
}

func sortedProtocolIDs(snapshot types.MetricsSnapshot) []types.ProtocolID {
	ids := make([]types.ProtocolID, 0, len(snapshot.Protocols))
	for id := range snapshot.Protocols {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
