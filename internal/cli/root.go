// Package cli implements legalctl, the operator command line for ingesting
// sources and asking research questions without the HTTP server.
package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/legalrag/backend/internal/bootstrap"
	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/evaluation"
	"github.com/legalrag/backend/internal/ingestion"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/storage/models"
	"github.com/legalrag/backend/pkg/config"
	"github.com/legalrag/backend/pkg/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, ref domain.SourceReference, kind domain.DocumentKind) (*ingestion.IngestResult, error)
	Reindex(ctx context.Context, ref domain.SourceReference, doc domain.LegislationDocument) (*ingestion.IngestResult, error)
	Regenerate(ctx context.Context, ref domain.SourceReference) (*ingestion.IngestResult, error)
	Delete(ctx context.Context, ref domain.SourceReference) error
}

type Asker interface {
	Ask(ctx context.Context, req query.Request) (query.Result, []domain.SourceReference, error)
	Collections(ctx context.Context) []string
}

type DocumentStore interface {
	GetDocument(ctx context.Context, collection, sourceID string) (*models.Document, error)
	ListDocuments(ctx context.Context, collection string) ([]models.Document, error)
}

type FileStore interface {
	Save(ref domain.SourceReference, data []byte) (string, error)
}

// Services are set by the root command from configuration, or directly
// by tests.
var (
	ingester  Ingester
	asker     Asker
	documents DocumentStore
	files     FileStore
	embedder  evaluation.Embedder
	shutdown  func() error
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:           "legalctl",
	Short:         "Legal research engine operator tool",
	Long:          `Ingest rulings and legislation into the research index and ask questions against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if ingester != nil || cmd.Name() == "help" {
			return nil
		}
		return connect(cmd.Context())
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if shutdown == nil {
			return nil
		}
		err := shutdown()
		shutdown = nil
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level")
}

func connect(ctx context.Context) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logger.Init(logLevel, "console", "stderr"); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	if ctx == nil {
		ctx = context.Background()
	}
	buildCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	c, err := bootstrap.Build(buildCtx, cfg)
	if err != nil {
		return err
	}

	ingester = c.Processor
	asker = c.Engine
	documents = c.SQLite
	files = c.Files
	embedder = c.Oracle
	shutdown = c.Close
	return nil
}

// Execute runs legalctl with os.Args.
func Execute() error {
	return rootCmd.Execute()
}

// lookup resolves a stored document's source reference.
func lookup(ctx context.Context, collection, sourceID string) (domain.SourceReference, error) {
	if documents == nil {
		return domain.SourceReference{}, errors.New("document store not configured")
	}
	doc, err := documents.GetDocument(ctx, collection, sourceID)
	if err != nil {
		return domain.SourceReference{}, fmt.Errorf("failed to find %s/%s: %w", collection, sourceID, err)
	}
	return doc.Ref(), nil
}
