package main

import (
	"os"

	"github.com/elys-network/yield-aggregator/internal/config"
	"github.com/elys-network/yield-aggregator/internal/logger"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var logFormat string

// main is the entry point for the yield aggregator.
func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "aggregator",
		Short:        "Yield allocation optimizer and on-chain yield updater",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := godotenv.Load(); err != nil {
				log.Warn().Msg("Warning: .env file not found. Relying on OS environment variables.")
			}

			// Load configuration from environment variables
			if err := config.LoadConfig(); err != nil {
				log.Error().Err(err).Msg("Failed to load configuration")
				return err
			}
			logger.Initialize(config.LogLevel, logFormat)
			return nil
		},
	}
	root.PersistentFlags().StringVar(&logFormat, "log-format", "console", "log output format: console or json")

	root.AddCommand(newServeCommand(), newUpdateYieldCommand(), newOptimizeCommand())
	return root
}
