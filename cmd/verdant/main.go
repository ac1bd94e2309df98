package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	appName = "verdant"
	version = "v1.2.0"
)

func main() {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Grow environment monitoring pipeline",
		Version: version,
		Long: `Verdant runs the continuous decision pipeline for grow environments:
periodic evaluation of every active unit through the analysis stages,
quality-gated model predictions, and clustered alert delivery.`,
	}

	rootCmd.PersistentFlags().String("config", "config/verdant.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().String("log-level", "", "Override configured log level (debug|info|warn|error)")

	rootCmd.AddCommand(newMonitorCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newResolveCmd())

	if err := rootCmd.Execute(); err != nil {
		log.Error().Err(err).Msg("command failed")
		os.Exit(1)
	}
}

func setLogLevel(level string) {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		log.Warn().Str("level", level).Msg("unknown log level, keeping info")
		return
	}
	zerolog.SetGlobalLevel(parsed)
}
