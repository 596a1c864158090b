package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/sahayak-ai/sahayak/internal/app"
	"github.com/sahayak-ai/sahayak/internal/retriever"
)

var ingestFlags struct {
	grade   int
	subject string
	chapter string
	docType string
}

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Chunk, embed, and index curriculum documents",
	Long: `Ingest reads plain-text documents, splits them into overlapping chunks,
embeds each chunk, and stores the vectors in the local index.

Only one ingestion can run at a time; a cross-process lock guards the index.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIngest(args)
	},
}

func init() {
	ingestCmd.Flags().IntVar(&ingestFlags.grade, "grade", 0, "grade level of the material (required)")
	ingestCmd.Flags().StringVar(&ingestFlags.subject, "subject", "", "subject of the material (required)")
	ingestCmd.Flags().StringVar(&ingestFlags.chapter, "chapter", "", "chapter or unit name")
	ingestCmd.Flags().StringVar(&ingestFlags.docType, "doc-type", "ncert", "document type, e.g. ncert or notes")
	_ = ingestCmd.MarkFlagRequired("grade")
	_ = ingestCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(ingestCmd)
}

func runIngest(paths []string) error {
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

	release, err := a.LockIngest()
	if err != nil {
		return err
	}
	defer release()

	for _, path := range paths {
		text, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}

		meta := retriever.Metadata{
			SourceID: filepath.Base(path),
			Grade:    ingestFlags.grade,
			Subject:  ingestFlags.subject,
			Chapter:  ingestFlags.chapter,
			DocType:  ingestFlags.docType,
		}

		logger.Info("ingesting document", "source", meta.SourceID, "grade", meta.Grade, "subject", meta.Subject)
		if err := a.Retriever.Ingest(ctx, string(text), meta); err != nil {
			return fmt.Errorf("ingesting %s: %w", path, err)
		}
		fmt.Printf("Ingested %s\n", path)
	}
	return nil
}
