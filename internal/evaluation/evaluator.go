// Package evaluation scores research answers against a labelled dataset.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/pkg/logger"
)

const (
	ClassIrrelevant    = "irrelevant"
	ClassModerate      = "moderate"
	ClassFullyRelevant = "fully_relevant"
)

type Asker interface {
	Ask(ctx context.Context, req query.Request) (query.Result, []domain.SourceReference, error)
}

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Evaluator struct {
	engine   Asker
	embedder Embedder

	// Similarity at or above Full is fully relevant, at or above Moderate
	// is moderate.
	Full     float64
	Moderate float64
}

type Dataset struct {
	Items []DatasetItem `json:"items"`
}

type DatasetItem struct {
	Prompt            string   `json:"prompt"`
	Mode              string   `json:"mode"`
	ExpectedAnswer    string   `json:"expected_answer"`
	ExpectedCitations []string `json:"expected_citations"`
}

type ItemResult struct {
	Prompt           string  `json:"prompt"`
	QueryID          string  `json:"query_id"`
	CosineSimilarity float64 `json:"cosine_similarity"`
	CitationRecall   float64 `json:"citation_recall"`
	Classification   string  `json:"classification"`
	Error            string  `json:"error,omitempty"`
}

type Report struct {
	TotalQueries            int          `json:"total_queries"`
	FailedCount             int          `json:"failed"`
	IrrelevantCount         int          `json:"irrelevant"`
	ModerateCount           int          `json:"moderate"`
	FullyRelevantCount      int          `json:"fully_relevant"`
	AvgCosineSimilarity     float64      `json:"avg_cosine_similarity"`
	AvgCitationRecall       float64      `json:"avg_citation_recall"`
	IrrelevantPercentage    float64      `json:"irrelevant_pct"`
	ModeratePercentage      float64      `json:"moderate_pct"`
	FullyRelevantPercentage float64      `json:"fully_relevant_pct"`
	Items                   []ItemResult `json:"items"`
}

func NewEvaluator(engine Asker, embedder Embedder) *Evaluator {
	return &Evaluator{
		engine:   engine,
		embedder: embedder,
		Full:     0.85,
		Moderate: 0.6,
	}
}

// EvaluateItem asks one dataset question and scores the answer. An engine
// failure is recorded on the result rather than returned.
func (e *Evaluator) EvaluateItem(ctx context.Context, item DatasetItem) ItemResult {
	out := ItemResult{Prompt: item.Prompt}

	mode := query.ModeSingle
	if item.Mode == string(query.ModeMulti) {
		mode = query.ModeMulti
	}

	res, sources, err := e.engine.Ask(ctx, query.Request{Mode: mode, Prompt: item.Prompt})
	out.QueryID = res.ID
	if err != nil {
		out.Error = err.Error()
		out.Classification = ClassIrrelevant
		return out
	}

	if item.ExpectedAnswer != "" {
		sim, err := e.similarity(ctx, AnswerText(res.Answer), item.ExpectedAnswer)
		if err != nil {
			logger.Warn("Failed to calculate cosine similarity", zap.String("prompt", item.Prompt), zap.Error(err))
		}
		out.CosineSimilarity = sim
	}
	out.CitationRecall = citationRecall(item.ExpectedCitations, sources)
	out.Classification = e.classify(out.CosineSimilarity)

	logger.Info("Query evaluated",
		zap.String("query_id", out.QueryID),
		zap.String("classification", out.Classification),
		zap.Float64("cosine_similarity", out.CosineSimilarity),
	)
	return out
}

// Run evaluates every item in order and aggregates the scores.
func (e *Evaluator) Run(ctx context.Context, dataset *Dataset) (*Report, error) {
	logger.Info("Running dataset evaluation", zap.Int("items", len(dataset.Items)))

	report := &Report{TotalQueries: len(dataset.Items)}
	var totalCosine, totalRecall float64

	for i, item := range dataset.Items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		logger.Debug("Evaluating item", zap.Int("index", i+1), zap.Int("total", len(dataset.Items)))

		r := e.EvaluateItem(ctx, item)
		if r.Error != "" {
			report.FailedCount++
		}
		switch r.Classification {
		case ClassIrrelevant:
			report.IrrelevantCount++
		case ClassModerate:
			report.ModerateCount++
		case ClassFullyRelevant:
			report.FullyRelevantCount++
		}
		totalCosine += r.CosineSimilarity
		totalRecall += r.CitationRecall
		report.Items = append(report.Items, r)
	}

	if n := float64(report.TotalQueries); n > 0 {
		report.AvgCosineSimilarity = totalCosine / n
		report.AvgCitationRecall = totalRecall / n
		report.IrrelevantPercentage = float64(report.IrrelevantCount) / n * 100
		report.ModeratePercentage = float64(report.ModerateCount) / n * 100
		report.FullyRelevantPercentage = float64(report.FullyRelevantCount) / n * 100
	}

	logger.Info("Dataset evaluation completed",
		zap.Int("total", report.TotalQueries),
		zap.Int("failed", report.FailedCount),
		zap.Int("irrelevant", report.IrrelevantCount),
		zap.Int("moderate", report.ModerateCount),
		zap.Int("fully_relevant", report.FullyRelevantCount),
	)
	return report, nil
}

func (e *Evaluator) classify(sim float64) string {
	switch {
	case sim >= e.Full:
		return ClassFullyRelevant
	case sim >= e.Moderate:
		return ClassModerate
	default:
		return ClassIrrelevant
	}
}

func (e *Evaluator) similarity(ctx context.Context, a, b string) (float64, error) {
	embA, err := e.embedder.Embed(ctx, a)
	if err != nil {
		return 0, err
	}
	embB, err := e.embedder.Embed(ctx, b)
	if err != nil {
		return 0, err
	}
	return cosineSimilarity(embA, embB), nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// citationRecall is the share of expected citations present in sources.
// With nothing expected it is 1.
func citationRecall(expected []string, sources []domain.SourceReference) float64 {
	if len(expected) == 0 {
		return 1
	}
	got := make(map[string]bool, len(sources))
	for _, s := range sources {
		got[strings.ToLower(strings.TrimSpace(s.Citation))] = true
	}
	hit := 0
	for _, c := range expected {
		if got[strings.ToLower(strings.TrimSpace(c))] {
			hit++
		}
	}
	return float64(hit) / float64(len(expected))
}

// AnswerText flattens a structured answer to plain text, one line per
// header, paragraph, list item or table row.
func AnswerText(sections []domain.Section) string {
	var lines []string
	for _, s := range sections {
		switch s.Type {
		case domain.SectionHeader, domain.SectionParagraph:
			lines = append(lines, s.Text)
		case domain.SectionList:
			lines = append(lines, s.Items...)
		case domain.SectionTable:
			if s.Table == nil {
				continue
			}
			for _, row := range s.Table.Rows {
				var cells []string
				for _, col := range s.Table.Columns {
					if v, ok := row[col.DataIndex]; ok {
						cells = append(cells, fmt.Sprint(v))
					}
				}
				lines = append(lines, strings.Join(cells, " "))
			}
		}
	}
	return strings.Join(lines, "\n")
}

func LoadDataset(data []byte) (*Dataset, error) {
	var dataset Dataset
	if err := json.Unmarshal(data, &dataset); err != nil {
		return nil, fmt.Errorf("failed to unmarshal dataset: %w", err)
	}
	return &dataset, nil
}

// FormatReport renders a report for terminal output.
func FormatReport(report *Report) string {
	return fmt.Sprintf(`
Evaluation Report
=================

Total Queries: %d (failed: %d)

Classifications:
- Irrelevant: %d (%.1f%%)
- Moderately Relevant: %d (%.1f%%)
- Fully Relevant: %d (%.1f%%)

Cosine Similarity: %.3f
Citation Recall:   %.3f
`,
		report.TotalQueries, report.FailedCount,
		report.IrrelevantCount, report.IrrelevantPercentage,
		report.ModerateCount, report.ModeratePercentage,
		report.FullyRelevantCount, report.FullyRelevantPercentage,
		report.AvgCosineSimilarity,
		report.AvgCitationRecall,
	)
}
