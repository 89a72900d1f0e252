package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/rs/zerolog/log"
)

// GetRecentPlans retrieves the most recent plans, newest first.
func GetRecentPlans(ctx context.Context, limit int) ([]types.PortfolioPlan, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT plan
		FROM portfolio_plans
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error().Err(err).Msg("Failed to query recent plans")
		return nil, fmt.Errorf("failed to query recent plans: %w", err)
	}
	defer rows.Close()

	plans := make([]types.PortfolioPlan, 0, limit)
	for rows.Next() {
		var planJSON []byte
		if err := rows.Scan(&planJSON); err != nil {
			log.Error().Err(err).Msg("Failed to scan plan row")
			continue // Skip this row and continue with others
		}

		var plan types.PortfolioPlan
		if err := json.Unmarshal(planJSON, &plan); err != nil {
			log.Error().Err(err).Msg("Failed to unmarshal stored plan")
			continue
		}
		plans = append(plans, plan)
	}

	if err := rows.Err(); err != nil {
		log.Error().Err(err).Msg("Error occurred during row iteration")
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	log.Debug().Int("count", len(plans)).Int("limit", limit).Msg("Retrieved recent plans")
	return plans, nil
}

// GetPlanAnalytics aggregates the stored plan history.
func GetPlanAnalytics(ctx context.Context) (types.PlanAnalytics, error) {
	analytics := types.PlanAnalytics{
		ByRiskLevel:     map[string]int{},
		ByRiskTolerance: map[string]int{},
	}
	if DB == nil {
		return analytics, ErrDBNotInitialized
	}

	query := `
		SELECT
			COUNT(*) AS total_plans,
			COALESCE(AVG(expected_apy), 0) AS avg_expected_apy,
			COALESCE(AVG(confidence), 0) AS avg_confidence,
			COALESCE(SUM(amount_usd), 0) AS total_amount,
			MAX(created_at) AS last_plan_at
		FROM portfolio_plans
	`
	var lastPlanAt sql.NullTime
	err := DB.QueryRowContext(ctx, query).Scan(
		&analytics.TotalPlans,
		&analytics.AverageExpectedAPY,
		&analytics.AverageConfidence,
		&analytics.TotalAmount,
		&lastPlanAt,
	)
	if err != nil {
		return analytics, fmt.Errorf("failed to get plan analytics: %w", err)
	}
	if lastPlanAt.Valid {
		last := lastPlanAt.Time.UTC()
		analytics.LastPlanAt = &last
	}

	if err := countBy(ctx, "risk_level", analytics.ByRiskLevel); err != nil {
		return analytics, err
	}
	if err := countBy(ctx, "risk_tolerance", analytics.ByRiskTolerance); err != nil {
		return analytics, err
	}

	log.Debug().
		Int("totalPlans", analytics.TotalPlans).
		Float64("avgExpectedAPY", analytics.AverageExpectedAPY).
		Msg("Retrieved plan analytics")
	return analytics, nil
}

// countBy fills counts with the number of plans per value of column. column is never user input.
func countBy(ctx context.Context, column string, counts map[string]int) error {
	rows, err := DB.QueryContext(ctx, fmt.Sprintf(`SELECT %s, COUNT(*) FROM portfolio_plans GROUP BY %s`, column, column))
	if err != nil {
		return fmt.Errorf("failed to count plans by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var count int
		if err := rows.Scan(&key, &count); err != nil {
			return fmt.Errorf("failed to scan %s count: %w", column, err)
		}
		counts[key] = count
	}
	return rows.Err()
}

// SaveYieldUpdate records one yield updater decision and returns its row ID.
func SaveYieldUpdate(ctx context.Context, update types.YieldUpdate) (int64, error) {
	if DB == nil {
		return 0, ErrDBNotInitialized
	}

	timestamp := update.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO yield_updates (
			cycle_id, update_timestamp, apy_bps, previous_bps, source, status, tx_hash, message, live_protocols
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING update_id;
	`
	var updateID int64
	err := DB.QueryRowContext(ctx, query,
		update.CycleID, timestamp, update.APYBps, update.PreviousBps, update.Source,
		string(update.Status), nullString(update.TxHash), nullString(update.Message), update.LiveProtocols,
	).Scan(&updateID)
	if err != nil {
		return 0, fmt.Errorf("failed to save yield update: %w", err)
	}

	log.Info().
		Int64("update_id", updateID).
		Str("status", string(update.Status)).
		Int64("apy_bps", update.APYBps).
		Msg("Yield update saved to database")
	return updateID, nil
}

// GetRecentYieldUpdates retrieves the most recent updater decisions, newest first.
func GetRecentYieldUpdates(ctx context.Context, limit int) ([]types.YieldUpdate, error) {
	if DB == nil {
		return nil, ErrDBNotInitialized
	}
	limit = clampLimit(limit)

	query := `
		SELECT
			update_id, cycle_id, update_timestamp, apy_bps, previous_bps,
			source, status, tx_hash, message, live_protocols
		FROM yield_updates
		ORDER BY update_timestamp DESC
		LIMIT $1
	`
	rows, err := DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query yield updates: %w", err)
	}
	defer rows.Close()

	updates := make([]types.YieldUpdate, 0, limit)
	for rows.Next() {
		var update types.YieldUpdate
		var status string
		var txHash, message sql.NullString
		if err := rows.Scan(
			&update.ID, &update.CycleID, &update.Timestamp, &update.APYBps, &update.PreviousBps,
			&update.Source, &status, &txHash, &message, &update.LiveProtocols,
		); err != nil {
			log.Error().Err(err).Msg("Failed to scan yield update row")
			continue
		}
		update.Status = types.YieldUpdateStatus(status)
		update.TxHash = txHash.String
		update.Message = message.String
		updates = append(updates, update)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return updates, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}
