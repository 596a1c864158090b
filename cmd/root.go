// Package cmd implements the sahayak command line interface.
package cmd

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/sahayak-ai/sahayak/internal/config"
	"github.com/sahayak-ai/sahayak/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "sahayak",
	Short: "Sahayak - curriculum retrieval service",
	Long: `Sahayak ingests curriculum documents into a local vector index and
retrieves grade- and subject-filtered context for teaching questions.

Run 'sahayak serve' to expose the retrieval API over HTTP, or use
'sahayak ingest' and 'sahayak query' directly from the terminal.`,
	SilenceUsage: true,
}

// Execute is the entry point called from main.
func Execute() error {
	// Local development convenience; a missing .env file is not an error.
	_ = godotenv.Load()
	return rootCmd.Execute()
}

// loadConfig loads and validates configuration for a subcommand.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from configuration.
func newLogger(cfg *config.Config) log.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
