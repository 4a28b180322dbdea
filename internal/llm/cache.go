package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/pkg/logger"
	"github.com/legalrag/backend/pkg/utils"
)

// EmbeddingStore is the cache behind CachingOracle.
type EmbeddingStore interface {
	GetEmbedding(ctx context.Context, textHash string) ([]float32, bool, error)
	SetEmbedding(ctx context.Context, textHash string, embedding []float32, ttl time.Duration) error
}

// CachingOracle serves Embed from a cache keyed by model and text.
// Completions pass straight through.
type CachingOracle struct {
	domain.Oracle
	store EmbeddingStore
	model string
	ttl   time.Duration
}

func NewCachingOracle(inner domain.Oracle, store EmbeddingStore, model string, ttl time.Duration) *CachingOracle {
	return &CachingOracle{Oracle: inner, store: store, model: model, ttl: ttl}
}

func (c *CachingOracle) Embed(ctx context.Context, text string) ([]float32, error) {
	key := utils.HashParts(c.model, text)

	if cached, ok, err := c.store.GetEmbedding(ctx, key); err != nil {
		logger.Warn("Embedding cache read failed", zap.Error(err))
	} else if ok {
		metrics.EmbeddingCache.WithLabelValues("hit").Inc()
		return cached, nil
	}
	metrics.EmbeddingCache.WithLabelValues("miss").Inc()

	emb, err := c.Oracle.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetEmbedding(ctx, key, emb, c.ttl); err != nil {
		logger.Warn("Embedding cache write failed", zap.Error(err))
	}
	return emb, nil
}
