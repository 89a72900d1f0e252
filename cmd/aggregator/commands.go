package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/elys-network/yield-aggregator/internal/analyzer"
	"github.com/elys-network/yield-aggregator/internal/cache"
	"github.com/elys-network/yield-aggregator/internal/chain"
	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/datafetcher"
	"github.com/elys-network/yield-aggregator/internal/state"
	"github.com/elys-network/yield-aggregator/internal/types"
	"github.com/elys-network/yield-aggregator/internal/updater"
	"github.com/elys-network/yield-aggregator/internal/web"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	INITIAL_REFRESH_TIMEOUT = 15 * time.Second
	SHUTDOWN_TIMEOUT        = 10 * time.Second
	SNAPSHOT_SAVE_TIMEOUT   = 5 * time.Second
)

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx)
		},
	}
}

func runServe(ctx context.Context) error {
	log.Info().Msg("Yield aggregator starting...")

	optimizer, err := analyzer.NewOptimizer(config.DefaultOptimizerParameters)
	if err != nil {
		return fmt.Errorf("create optimizer: %w", err)
	}

	catalog := config.ProtocolCatalog()
	retriever := datafetcher.NewProtocolRetriever(&http.Client{Timeout: config.ProtocolFetchTimeout}, catalog)
	fallback := types.MetricsSnapshot{Protocols: config.FallbackMetrics(catalog)}

	recorder, err := openPersistence()
	if err != nil {
		return err
	}
	defer state.CloseDB()

	var cacheOpts []cache.Option
	if recorder != nil {
		cacheOpts = append(cacheOpts, cache.WithStoreHook(func(snapshot types.MetricsSnapshot) {
			saveCtx, cancel := context.WithTimeout(context.Background(), SNAPSHOT_SAVE_TIMEOUT)
			defer cancel()
			if err := recorder.RecordSnapshot(saveCtx, snapshot); err != nil {
				log.Warn().Err(err).Msg("Failed to save metric snapshot")
			}
		}))
	}
	if config.RedisAddr != "" {
		mirror, err := cache.NewRedisMirror(ctx, config.RedisAddr, config.RedisPassword)
		if err != nil {
			log.Warn().Err(err).Msg("Redis mirror unavailable, continuing without it")
		} else {
			defer mirror.Close()
			cacheOpts = append(cacheOpts, cache.WithMirror(mirror))
		}
	}

	snapshots := cache.NewSnapshotCache(retriever, config.MetricsCacheTTL, fallback, cacheOpts...)
	if _, err := snapshots.Seed(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to seed snapshot cache from mirror")
	}
	refreshCtx, cancel := context.WithTimeout(ctx, INITIAL_REFRESH_TIMEOUT)
	if _, err := snapshots.Refresh(refreshCtx); err != nil {
		log.Warn().Err(err).Msg("Initial protocol refresh failed, serving fallback data until the next refresh")
	}
	cancel()

	webCfg := web.Config{
		Port:      config.WebPort,
		Optimizer: optimizer,
		Snapshots: snapshots,
	}
	if recorder != nil {
		webCfg.Plans = recorder
		webCfg.Updates = recorder
		webCfg.HealthCheck = recorder.Ping
	}
	webServer := web.NewWebServer(webCfg)

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", config.WebPort).Str("url", "http://localhost:"+config.WebPort).Msg("Starting yield aggregator API")
		serveErr <- webServer.Start()
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("web server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), SHUTDOWN_TIMEOUT)
	defer cancelShutdown()
	if err := webServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("web server shutdown: %w", err)
	}
	log.Info().Msg("Yield aggregator stopped")
	return nil
}

func newUpdateYieldCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update-yield",
		Short: "Run the on-chain yield updater loop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runUpdateYield(ctx)
		},
	}
}

func runUpdateYield(ctx context.Context) error {
	if err := config.LoadUpdaterConfig(); err != nil {
		log.Error().Err(err).Msg("Invalid yield updater configuration")
		return err
	}

	contract, err := chain.NewYieldContract(ctx, config.UpdaterRPCURL, config.UpdaterContractAddress,
		config.UpdaterPrivateKey, config.UpdaterChainID, config.UpdaterGasLimit)
	if err != nil {
		return fmt.Errorf("create yield contract client: %w", err)
	}
	defer contract.Close()

	recorder, err := openPersistence()
	if err != nil {
		return err
	}
	defer state.CloseDB()

	catalog := config.ProtocolCatalog()
	updaterCfg := updater.Config{
		Oracle:       contract,
		Provider:     datafetcher.NewProtocolRetriever(&http.Client{Timeout: config.ProtocolFetchTimeout}, catalog),
		Catalog:      catalog,
		Interval:     config.UpdaterInterval,
		RetryBackoff: config.UpdaterRetryBackoff,
		TxTimeout:    config.UpdaterTxTimeout,
		MinChangeBps: config.UpdaterMinChangeBps,
		Source:       config.YieldUpdateSource,
	}
	if recorder != nil {
		updaterCfg.Recorder = recorder
	}

	yieldUpdater, err := updater.NewYieldUpdater(updaterCfg)
	if err != nil {
		return err
	}
	yieldUpdater.RunLoop(ctx)
	return nil
}

func newOptimizeCommand() *cobra.Command {
	var amount float64
	var risk string
	var offline bool

	cmd := &cobra.Command{
		Use:   "optimize",
		Short: "Compute one portfolio plan and print it as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			optimizer, err := analyzer.NewOptimizer(config.DefaultOptimizerParameters)
			if err != nil {
				return err
			}

			catalog := config.ProtocolCatalog()
			var provider datafetcher.Provider = datafetcher.StaticProvider{Catalog: catalog}
			if !offline {
				provider = datafetcher.NewProtocolRetriever(&http.Client{Timeout: config.ProtocolFetchTimeout}, catalog)
			}

			snapshot, err := provider.Fetch(cmd.Context())
			if err != nil {
				log.Warn().Err(err).Int("live", snapshot.LiveCount()).Msg("Some protocols use fallback metrics")
			}

			plan, err := optimizer.Optimize(amount, risk, snapshot.Protocols)
			if err != nil {
				return err
			}
			plan.PlanID = uuid.New().String()

			encoder := json.NewEncoder(cmd.OutOrStdout())
			encoder.SetIndent("", "  ")
			return encoder.Encode(plan)
		},
	}
	cmd.Flags().Float64Var(&amount, "amount", web.DEFAULT_AMOUNT, "amount to allocate in USD")
	cmd.Flags().StringVar(&risk, "risk", web.DEFAULT_TOLERANCE, "risk tolerance: low, medium or high")
	cmd.Flags().BoolVar(&offline, "offline", false, "use the catalog fallback metrics instead of the protocol APIs")
	return cmd
}

// openPersistence connects to Postgres when DB_HOST is set. A nil recorder means persistence is disabled.
func openPersistence() (*state.PostgresRecorder, error) {
	if !config.PersistenceEnabled() {
		log.Info().Msg("DB_HOST not set, running without persistence")
		return nil, nil
	}

	dbCfg := state.DBConfig{
		Host: config.DBHost, Port: config.DBPort,
		User: config.DBUser, Password: config.DBPassword,
		DBName: config.DBName, SSLMode: config.DBSSLMode,
	}
	if err := state.InitDB(dbCfg); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := state.EnsureSchema(); err != nil {
		return nil, fmt.Errorf("failed to ensure database schema: %w", err)
	}
	return &state.PostgresRecorder{}, nil
}
