package query

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/pkg/logger"
)

// Retrieve runs one search of up to k results per phrase, concurrently,
// and concatenates the hits in phrase order then rank order. A phrase
// whose search fails contributes nothing; only cancellation aborts.
func (e *Engine) Retrieve(ctx context.Context, phrases []domain.SearchPhrase, k int) ([]domain.RetrievedHit, error) {
	perPhrase := make([][]domain.RetrievedHit, len(phrases))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, p := range phrases {
		i, p := i, p
		g.Go(func() error {
			matches, err := e.index.Search(gctx, p.Collection, p.Phrase, k)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				metrics.PhraseSearchFailures.WithLabelValues(p.Collection).Inc()
				logger.Warn("Phrase search failed, skipping",
					zap.String("collection", p.Collection),
					zap.String("phrase", p.Phrase),
					zap.Error(err),
				)
				return nil
			}

			hits := make([]domain.RetrievedHit, len(matches))
			for j, m := range matches {
				hits[j] = m.Hit(p.Collection)
			}
			perPhrase[i] = hits
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []domain.RetrievedHit
	for _, hits := range perPhrase {
		out = append(out, hits...)
	}
	metrics.RetrievedHits.Observe(float64(len(out)))
	return out, nil
}
