package query

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/legalrag/backend/internal/domain"
)

// SynthesizeSingle answers prompt straight from retrieved excerpts.
func (e *Engine) SynthesizeSingle(ctx context.Context, prompt string, history []domain.Turn, excerpts []domain.Excerpt) (domain.StructuredAnswer, error) {
	if excerpts == nil {
		excerpts = []domain.Excerpt{}
	}
	data, err := json.Marshal(excerpts)
	if err != nil {
		return domain.StructuredAnswer{}, fmt.Errorf("encode excerpts: %w", err)
	}

	user := "Data: " + string(data) + "\n Prompt:" + prompt
	return e.synthesize(ctx, "synthesize_single", singleStepPolicy, history, user, singleMaxTokens)
}

// SynthesizeMulti combines per-source research into one cited answer.
func (e *Engine) SynthesizeMulti(ctx context.Context, prompt string, history []domain.Turn, research []domain.ResearchResult) (domain.StructuredAnswer, error) {
	if research == nil {
		research = []domain.ResearchResult{}
	}
	data, err := json.Marshal(research)
	if err != nil {
		return domain.StructuredAnswer{}, fmt.Errorf("encode research: %w", err)
	}

	user := "Research: " + string(data) + "\n Prompt:" + prompt
	return e.synthesize(ctx, "synthesize_multi", multiStepPolicy, history, user, multiMaxTokens)
}

func (e *Engine) synthesize(ctx context.Context, stage, policy string, history []domain.Turn, user string, maxTokens int) (domain.StructuredAnswer, error) {
	raw, err := e.oracle.CompleteJSON(ctx, domain.Conversation(policy, history, user), maxTokens)
	if err != nil {
		return domain.StructuredAnswer{}, fmt.Errorf("%s: %w", stage, err)
	}
	return domain.ParseStructuredAnswer(stage, raw)
}

func excerptsOf(hits []domain.RetrievedHit) []domain.Excerpt {
	out := make([]domain.Excerpt, len(hits))
	for i, h := range hits {
		out[i] = domain.Excerpt{Citation: h.Citation, Content: h.DocumentExcerpt}
	}
	return out
}
