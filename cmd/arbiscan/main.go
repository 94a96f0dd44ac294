package main

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/arbiscan/arbiscan/internal/config"
	"github.com/arbiscan/arbiscan/internal/errs"
)

const (
	appName = "arbiscan"
	version = "v1.2.0"
)

// Exit codes: 0 success, 1 configuration error, 2 transient backend
// failure.
const (
	exitOK        = 0
	exitConfig    = 1
	exitTransient = 2
)

var (
	flagConfig = "config/exchanges.yaml"
	flagPolicy = "config/notifications.json"
)

func main() {
	// A local .env is a convenience for development; absence is normal.
	_ = godotenv.Load()

	setupLogging()

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cross-venue crypto arbitrage monitor",
		Version: version,
		Long: `arbiscan polls Japanese and international crypto venues, persists a
price time series, detects cross-venue arbitrage opportunities and
alerts a Discord channel when one clears the configured thresholds.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", flagConfig, "venue configuration file")
	rootCmd.PersistentFlags().StringVar(&flagPolicy, "policy", flagPolicy, "notification policy file")

	rootCmd.AddCommand(
		newCollectCmd(),
		newAnalyzeCmd(),
		newDashboardCmd(),
		newSetupDBCmd(),
		newTestConnectionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(exitCode(err))
	}
}

func setupLogging() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	level := zerolog.InfoLevel
	if raw := os.Getenv(config.EnvLogLevel); raw != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(raw)); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errs.ErrConfigInvalid):
		return exitConfig
	default:
		return exitTransient
	}
}
