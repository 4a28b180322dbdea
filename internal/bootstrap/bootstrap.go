// Package bootstrap builds the research and ingestion components from
// configuration. Both the API server and legalctl start here.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/cache/redis"
	"github.com/legalrag/backend/internal/chunker"
	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/ingestion"
	"github.com/legalrag/backend/internal/kg/builder"
	"github.com/legalrag/backend/internal/kg/neo4j"
	"github.com/legalrag/backend/internal/llm"
	"github.com/legalrag/backend/internal/loader"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/storage/sqlite"
	"github.com/legalrag/backend/internal/vector/milvus"
	"github.com/legalrag/backend/pkg/config"
	"github.com/legalrag/backend/pkg/logger"
)

type Components struct {
	Config    *config.Config
	Oracle    domain.Oracle
	Index     *milvus.Client
	SQLite    *sqlite.Client
	Files     *loader.Store
	Graph     *builder.Builder
	Engine    *query.Engine
	Processor *ingestion.Processor

	closers []func() error
}

// Build connects every backing service named in cfg. Redis and Neo4j are
// optional; the rest are required.
func Build(ctx context.Context, cfg *config.Config) (*Components, error) {
	c := &Components{Config: cfg}

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to create SQLite client: %w", err)
	}
	c.closers = append(c.closers, sqliteClient.Close)
	if err := sqliteClient.InitSchema(); err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	c.SQLite = sqliteClient

	var oracle domain.Oracle = llm.NewClient(llm.Config{
		APIKey:          cfg.LLM.APIKey,
		BaseURL:         cfg.LLM.BaseURL,
		Model:           cfg.LLM.Model,
		EmbeddingModel:  cfg.LLM.EmbeddingModel,
		JSONTemperature: cfg.LLM.JSONTemperature,
		TextTemperature: cfg.LLM.TextTemperature,
		Timeout:         time.Duration(cfg.LLM.TimeoutSec) * time.Second,
	})

	if cfg.Redis.Enabled {
		redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, embeddings will not be cached", zap.Error(err))
		} else {
			c.closers = append(c.closers, redisClient.Close)
			ttl := time.Duration(cfg.Redis.EmbeddingTTLHours) * time.Hour
			oracle = llm.NewCachingOracle(oracle, redisClient, cfg.LLM.EmbeddingModel, ttl)
		}
	}
	c.Oracle = oracle

	index, err := milvus.NewClient(ctx, cfg.Milvus.Endpoint, cfg.Milvus.APIKey, cfg.Milvus.VectorDim, cfg.Milvus.NProbe, oracle)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.closers = append(c.closers, index.Close)
	for _, name := range cfg.Milvus.Collections {
		if err := index.EnsureCollection(ctx, name); err != nil {
			c.Close()
			return nil, fmt.Errorf("failed to prepare collection %s: %w", name, err)
		}
	}
	c.Index = index

	if cfg.Neo4j.Enabled {
		neo4jClient, err := neo4j.NewClient(cfg.Neo4j.URI, cfg.Neo4j.Username, cfg.Neo4j.Password, cfg.Neo4j.Database)
		if err != nil {
			logger.Warn("Neo4j unavailable, citation graph disabled", zap.Error(err))
		} else {
			c.closers = append(c.closers, func() error { return neo4jClient.Close(context.Background()) })
			c.Graph = builder.NewBuilder(neo4jClient)
		}
	}

	c.Files = loader.NewStore(cfg.Documents.Root)
	ch := chunker.New(cfg.Chunking.SentenceAware)

	c.Engine = query.NewEngine(oracle, index, c.Files, ch, cfg.Milvus.Collections, query.Options{
		K:               cfg.Query.K,
		Scope:           cfg.Query.Scope,
		MultiScope:      cfg.Query.MultiScope,
		Concurrency:     cfg.Query.Concurrency,
		Attempts:        cfg.Query.Attempts,
		ResearchTokens:  cfg.Chunking.ResearchTokens,
		ResearchOverlap: cfg.Chunking.ResearchOverlap,
	}).WithRecorder(sqliteClient)

	c.Processor = ingestion.NewProcessor(oracle, index, c.Files, ch, ingestion.Options{
		SectionCoarseTokens: cfg.Chunking.SectionCoarseTokens,
		SectionFineTokens:   cfg.Chunking.SectionFineTokens,
		SectionOverlap:      cfg.Chunking.SectionOverlap,
		EmbedTokens:         cfg.Chunking.EmbedTokens,
		EmbedOverlap:        cfg.Chunking.EmbedOverlap,
	}).WithStore(sqliteClient)
	if c.Graph != nil {
		c.Processor.WithGraph(c.Graph)
	}

	return c, nil
}

// Close releases connections in reverse order of creation.
func (c *Components) Close() error {
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	return errors.Join(errs...)
}
