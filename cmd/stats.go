package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sahayak-ai/sahayak/internal/app"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show corpus statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// Stats never touches the embedding backend.
	a, err := app.SetupLocal(cfg, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		_ = a.Close()
	}()

	stats, err := a.Index.Stats(ctx)
	if err != nil {
		return fmt.Errorf("reading statistics: %w", err)
	}

	fmt.Printf("Documents: %d\n", stats.TotalDocuments)
	fmt.Printf("Grades:    %s\n", joinOrNone(stats.Grades))
	fmt.Printf("Subjects:  %s\n", joinOrNone(stats.Subjects))
	fmt.Printf("Doc types: %s\n", joinOrNone(stats.DocTypes))
	return nil
}

func joinOrNone(values []string) string {
	if len(values) == 0 {
		return "(none)"
	}
	return strings.Join(values, ", ")
}
