package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/pkg/logger"
)

type phrasesResponse struct {
	Phrases []domain.SearchPhrase `json:"phrases" validate:"required,dive"`
}

// GeneratePhrases asks the oracle for about count search phrases, each bound
// to one of collections. count is advisory. Phrases naming a collection
// outside the list are kept for the retriever to handle.
func (e *Engine) GeneratePhrases(ctx context.Context, prompt string, history []domain.Turn, collections []string, count int) ([]domain.SearchPhrase, error) {
	user := fmt.Sprintf("Tables available: %s, Number of phrases needed: %d. User question: %s",
		strings.Join(collections, ", "), count, prompt)

	raw, err := e.oracle.CompleteJSON(ctx, domain.Conversation(phraserPolicy, history, user), phraseMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("phraser: %w", err)
	}

	var resp phrasesResponse
	if err := schema.Decode("phraser", raw, &resp); err != nil {
		return nil, err
	}

	known := make(map[string]struct{}, len(collections))
	for _, c := range collections {
		known[c] = struct{}{}
	}
	for _, p := range resp.Phrases {
		if _, ok := known[p.Collection]; !ok {
			logger.Warn("Phrase targets unknown collection",
				zap.String("collection", p.Collection),
				zap.String("phrase", p.Phrase),
			)
		}
	}

	metrics.PhrasesGenerated.Observe(float64(len(resp.Phrases)))
	logger.Debug("Search phrases generated", zap.Int("requested", count), zap.Int("generated", len(resp.Phrases)))
	return resp.Phrases, nil
}
