package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sahayak-ai/sahayak/internal/app"
)

var clearYes bool

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete all indexed documents and cached responses",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runClear(cmd.Context())
	},
}

func init() {
	clearCmd.Flags().BoolVar(&clearYes, "yes", false, "skip the confirmation prompt")
	rootCmd.AddCommand(clearCmd)
}

func runClear(ctx context.Context) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if !clearYes {
		fmt.Print("This deletes every indexed document and cached response. Continue? [y/N] ")
		line, _ := bufio.NewReader(os.Stdin).ReadString('\n')
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Println("Aborted.")
			return nil
		}
	}

	a, err := app.SetupLocal(cfg, newLogger(cfg))
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		_ = a.Close()
	}()

	if err := a.Index.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}
	if err := a.Cache.Clear(ctx); err != nil {
		return fmt.Errorf("clearing cache: %w", err)
	}

	fmt.Println("Index and cache cleared.")
	return nil
}
