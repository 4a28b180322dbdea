package query

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/loader"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/pkg/logger"
)

// Research loads the full document behind source, splits it at the
// research budget and extracts what each chunk says about question. Chunk
// outputs are joined with newlines in document order.
func (e *Engine) Research(ctx context.Context, question string, source domain.SourceReference) (string, error) {
	ctx = e.withOracleSlots(ctx)
	frags, err := e.loader.Load(ctx, source)
	if err != nil {
		return "", fmt.Errorf("research %s: %w", source.Citation, err)
	}

	chunks := e.chunker.Split(loader.JoinLines(frags), e.opts.ResearchTokens, e.opts.ResearchOverlap)
	if len(chunks) == 0 {
		logger.Warn("Source has no text to research", zap.String("citation", source.Citation))
		return domain.NoRelevantContent, nil
	}

	outputs := make([]string, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, chunk := range chunks {
		i, chunk := i, chunk
		g.Go(func() error {
			user := "Research topic (Question): " + question +
				"\n\n\n Document Name(Citation): " + source.Citation +
				"\nDocument/ Part of Document: " + chunk

			out, err := e.oracleCall(gctx, func(ctx context.Context) (string, error) {
				return e.oracle.CompleteText(ctx, domain.Conversation(researcherPolicy, nil, user), researchMaxTokens)
			})
			if err != nil {
				return fmt.Errorf("research %s chunk %d: %w", source.Citation, i+1, err)
			}
			outputs[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", err
	}

	metrics.ResearchChunks.Add(float64(len(chunks)))
	logger.Debug("Source researched", zap.String("citation", source.Citation), zap.Int("chunks", len(chunks)))
	return strings.Join(outputs, "\n"), nil
}

// ResearchAll researches every source concurrently. The result order
// matches sources. Any failure cancels the rest.
func (e *Engine) ResearchAll(ctx context.Context, question string, sources []domain.SourceReference) ([]domain.ResearchResult, error) {
	ctx = e.withOracleSlots(ctx)
	results := make([]domain.ResearchResult, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for i, src := range sources {
		i, src := i, src
		g.Go(func() error {
			answer, err := e.Research(gctx, question, src)
			if err != nil {
				return err
			}
			results[i] = domain.ResearchResult{Citation: src.Citation, ResearchAnswer: answer}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// researchQuestion is the topic handed to the researcher: the prompt and
// the phrases it was searched by.
func researchQuestion(prompt string, phrases []domain.SearchPhrase) string {
	if len(phrases) == 0 {
		return prompt
	}
	parts := make([]string, len(phrases))
	for i, p := range phrases {
		parts[i] = p.Phrase
	}
	return prompt + "\nSearch focus: " + strings.Join(parts, "; ")
}
