package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sahayak-ai/sahayak/internal/app"
	"github.com/sahayak-ai/sahayak/internal/retriever"
)

var queryFlags struct {
	grade   int
	subject string
	docType string
	topK    int
}

var queryCmd = &cobra.Command{
	Use:   "query <question>",
	Short: "Retrieve curriculum context for a question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runQuery(strings.Join(args, " "))
	},
}

func init() {
	queryCmd.Flags().IntVar(&queryFlags.grade, "grade", 0, "restrict to a grade level")
	queryCmd.Flags().StringVar(&queryFlags.subject, "subject", "", "restrict to a subject")
	queryCmd.Flags().StringVar(&queryFlags.docType, "doc-type", "", "restrict to a document type")
	queryCmd.Flags().IntVar(&queryFlags.topK, "top-k", 0, "number of chunks to retrieve")

	rootCmd.AddCommand(queryCmd)
}

func runQuery(question string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if closeErr := a.Close(); closeErr != nil {
			logger.Warn("shutdown error", "error", closeErr)
		}
	}()

	var opts []retriever.SearchOption
	if queryFlags.topK > 0 {
		opts = append(opts, retriever.WithTopK(queryFlags.topK))
	} else {
		opts = append(opts, retriever.WithTopK(cfg.TopK))
	}
	if queryFlags.grade > 0 {
		opts = append(opts, retriever.WithGrade(queryFlags.grade))
	}
	if queryFlags.subject != "" {
		opts = append(opts, retriever.WithSubject(queryFlags.subject))
	}
	if queryFlags.docType != "" {
		opts = append(opts, retriever.WithDocType(queryFlags.docType))
	}

	text, err := a.Retriever.ContextString(ctx, question, opts...)
	if err != nil {
		return fmt.Errorf("retrieving context: %w", err)
	}

	fmt.Println(text)
	return nil
}
