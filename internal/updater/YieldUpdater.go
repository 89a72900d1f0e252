/*

This file contains the yield updater loop.

Every cycle blends the protocol APYs into one weighted rate and writes it to the yield oracle contract,
unless it moved by less than the configured minimum change. A failed submission is retried after the
retry backoff instead of the normal interval. A submission that is not mined within the transaction
timeout counts as failed. The last written rate starts at config.DefaultAPYBps.

*/

package updater

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/datafetcher"
	"github.com/elys-network/yield-aggregator/internal/logger"
	"github.com/elys-network/yield-aggregator/internal/metrics"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidUpdaterConfig = errors.New("invalid yield updater configuration")

// DEFAULT_TX_TIMEOUT bounds a submission when Config.TxTimeout is zero.
const DEFAULT_TX_TIMEOUT = 120 * time.Second

// YieldOracle is the on-chain contract the updater writes to.
type YieldOracle interface {
	GetStats(ctx context.Context) (types.ContractStats, error)
	UpdateYieldData(ctx context.Context, bps int64, source string) (string, error)
}

// UpdateRecorder stores every updater decision. Optional.
type UpdateRecorder interface {
	RecordYieldUpdate(ctx context.Context, update types.YieldUpdate) error
}

// Config holds the dependencies and timing of a YieldUpdater.
type Config struct {
	Oracle       YieldOracle
	Provider     datafetcher.Provider
	Catalog      []config.ProtocolSpec
	Recorder     UpdateRecorder
	Interval     time.Duration
	RetryBackoff time.Duration
	TxTimeout    time.Duration // Bound on one submission including the receipt wait
	MinChangeBps int64
	Source       string
}

// YieldUpdater keeps the contract APY in line with the protocol market.
type YieldUpdater struct {
	logger       zerolog.Logger
	oracle       YieldOracle
	provider     datafetcher.Provider
	catalog      []config.ProtocolSpec
	recorder     UpdateRecorder
	interval     time.Duration
	retryBackoff time.Duration
	txTimeout    time.Duration
	minChangeBps int64
	source       string

	mu      sync.Mutex
	lastBps int64
	cycles  int
	now     func() time.Time
}

// NewYieldUpdater validates cfg and creates an updater whose last written rate is config.DefaultAPYBps.
func NewYieldUpdater(cfg Config) (*YieldUpdater, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, fmt.Errorf("yield updater configuration validation failed: %w", err)
	}
	source := cfg.Source
	if source == "" {
		source = config.YieldUpdateSource
	}
	txTimeout := cfg.TxTimeout
	if txTimeout == 0 {
		txTimeout = DEFAULT_TX_TIMEOUT
	}

	u := &YieldUpdater{
		logger:       logger.GetForComponent("yield_updater"),
		oracle:       cfg.Oracle,
		provider:     cfg.Provider,
		catalog:      cfg.Catalog,
		recorder:     cfg.Recorder,
		interval:     cfg.Interval,
		retryBackoff: cfg.RetryBackoff,
		txTimeout:    txTimeout,
		minChangeBps: cfg.MinChangeBps,
		source:       source,
		lastBps:      config.DefaultAPYBps,
		now:          time.Now,
	}

	u.logger.Info().
		Dur("interval", u.interval).
		Dur("retryBackoff", u.retryBackoff).
		Dur("txTimeout", u.txTimeout).
		Int64("minChangeBps", u.minChangeBps).
		Int64("initialBps", u.lastBps).
		Msg("Yield updater created")
	return u, nil
}

func validateConfig(cfg Config) error {
	if cfg.Oracle == nil {
		return fmt.Errorf("%w: oracle cannot be nil", ErrInvalidUpdaterConfig)
	}
	if cfg.Provider == nil {
		return fmt.Errorf("%w: metrics provider cannot be nil", ErrInvalidUpdaterConfig)
	}
	if len(cfg.Catalog) == 0 {
		return fmt.Errorf("%w: protocol catalog cannot be empty", ErrInvalidUpdaterConfig)
	}
	if cfg.Interval <= 0 || cfg.RetryBackoff <= 0 {
		return fmt.Errorf("%w: interval and retry backoff must be positive", ErrInvalidUpdaterConfig)
	}
	if cfg.TxTimeout < 0 {
		return fmt.Errorf("%w: transaction timeout cannot be negative", ErrInvalidUpdaterConfig)
	}
	if cfg.MinChangeBps < 0 {
		return fmt.Errorf("%w: minimum change cannot be negative", ErrInvalidUpdaterConfig)
	}
	return nil
}

// LastBps returns the last rate successfully written (or the initial default).
func (u *YieldUpdater) LastBps() int64 {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastBps
}

// RunLoop ticks immediately and then every interval until ctx is cancelled.
// A failed tick is retried after the retry backoff.
func (u *YieldUpdater) RunLoop(ctx context.Context) {
	u.logger.Info().Dur("interval", u.interval).Msg("Starting yield updater loop")

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			u.logger.Info().Msg("Yield updater loop stopped due to context cancellation")
			return
		case <-timer.C:
			wait := u.interval
			if _, err := u.Tick(ctx); err != nil {
				if ctx.Err() != nil {
					continue
				}
				u.logger.Warn().Err(err).Dur("retryIn", u.retryBackoff).Msg("Yield update cycle failed")
				wait = u.retryBackoff
			}
			timer.Reset(wait)
		}
	}
}

// Tick runs one update cycle and returns the decision it made.
// Only a failed submission is an error; a skipped update is not.
func (u *YieldUpdater) Tick(ctx context.Context) (types.YieldUpdate, error) {
	u.mu.Lock()
	u.cycles++
	cycle := u.cycles
	previous := u.lastBps
	u.mu.Unlock()

	cycleID := uuid.New().String()
	cycleLogger := u.logger.With().Str("cycle_id", cycleID).Int("cycle", cycle).Logger()
	cycleLogger.Info().Msg("--- Starting yield update cycle ---")

	stats, err := u.oracle.GetStats(ctx)
	if err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to read contract stats, continuing")
	} else {
		metrics.OnchainAPYBps.Set(float64(stats.CurrentAPYBps))
		cycleLogger.Info().
			Float64("currentAPY", stats.CurrentAPY).
			Float64("totalDeposits", stats.TotalDeposits).
			Float64("totalFees", stats.TotalFeesCollected).
			Msg("Current contract stats")
	}

	snapshot, fetchErr := u.provider.Fetch(ctx)
	if fetchErr != nil {
		cycleLogger.Warn().Err(fetchErr).Int("live", snapshot.LiveCount()).Msg("Some protocols fell back to the default APY")
	}

	update := types.YieldUpdate{
		CycleID:       cycleID,
		PreviousBps:   previous,
		Source:        u.source,
		LiveProtocols: snapshot.LiveCount(),
		Timestamp:     u.now().UTC(),
	}

	bps, err := datafetcher.WeightedAPYBasisPoints(snapshot, u.catalog)
	if err != nil {
		update.Status = types.YieldUpdateFailed
		update.Message = err.Error()
		u.finish(ctx, cycleLogger, update)
		return update, fmt.Errorf("compute weighted APY: %w", err)
	}
	update.APYBps = bps
	cycleLogger.Info().Int64("newBps", bps).Int64("lastBps", previous).Msg("Weighted APY computed")

	if change := absInt64(bps - previous); change < u.minChangeBps {
		update.Status = types.YieldUpdateSkipped
		update.Message = fmt.Sprintf("change of %d bps is below the %d bps minimum", change, u.minChangeBps)
		u.finish(ctx, cycleLogger, update)
		return update, nil
	}

	submitCtx, cancel := context.WithTimeout(ctx, u.txTimeout)
	txHash, err := u.oracle.UpdateYieldData(submitCtx, bps, u.source)
	cancel()
	update.TxHash = txHash
	if err != nil {
		update.Status = types.YieldUpdateFailed
		update.Message = err.Error()
		u.finish(ctx, cycleLogger, update)
		return update, fmt.Errorf("submit yield update: %w", err)
	}

	u.mu.Lock()
	u.lastBps = bps
	u.mu.Unlock()
	metrics.OnchainAPYBps.Set(float64(bps))

	update.Status = types.YieldUpdateSubmitted
	u.finish(ctx, cycleLogger, update)
	return update, nil
}

// finish logs, counts and records the decision. Recording failures are logged only.
func (u *YieldUpdater) finish(ctx context.Context, cycleLogger zerolog.Logger, update types.YieldUpdate) {
	metrics.YieldUpdatesTotal.WithLabelValues(string(update.Status)).Inc()

	event := cycleLogger.Info()
	if update.Status == types.YieldUpdateFailed {
		event = cycleLogger.Error()
	}
	event.
		Str("status", string(update.Status)).
		Int64("apyBps", update.APYBps).
		Str("txHash", update.TxHash).
		Str("message", update.Message).
		Msg("--- Yield update cycle finished ---")

	if u.recorder == nil {
		return
	}
	if err := u.recorder.RecordYieldUpdate(ctx, update); err != nil {
		cycleLogger.Warn().Err(err).Msg("Failed to record yield update")
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
