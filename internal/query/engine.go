package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/legalrag/backend/internal/chunker"
	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/pkg/logger"
	"github.com/legalrag/backend/pkg/retry"
)

type Mode string

const (
	ModeSingle Mode = "single"
	ModeMulti  Mode = "multi"
)

// Stage names a pipeline step reported to a StageFunc.
type Stage string

const (
	StageValidating   Stage = "validating"
	StagePhrasing     Stage = "phrasing"
	StageRetrieving   Stage = "retrieving"
	StageResearching  Stage = "researching"
	StageSynthesizing Stage = "synthesizing"
)

// StageFunc observes pipeline progress. count is stage specific: phrases
// generated, hits retrieved, sources to research.
type StageFunc func(stage Stage, count int)

type Options struct {
	K               int
	Scope           int
	MultiScope      int
	Concurrency     int
	Attempts        int
	ResearchTokens  int
	ResearchOverlap int
}

// Recorder persists a summary of each answered query.
type Recorder interface {
	RecordQuery(ctx context.Context, rec Record) error
}

type Record struct {
	ID        string
	Mode      Mode
	Prompt    string
	Phrases   int
	Sources   []domain.SourceReference
	Status    string
	LatencyMS int64
	CreatedAt time.Time
}

// Result is the answer document returned to callers. Research is only
// set in multi-step mode.
type Result struct {
	ID        string                   `json:"id,omitempty"`
	Answer    []domain.Section         `json:"answer"`
	Research  []domain.ResearchResult  `json:"research,omitempty"`
	Phrases   []domain.SearchPhrase    `json:"phrases"`
	Citations []domain.SourceReference `json:"citations"`
}

type Engine struct {
	oracle      domain.Oracle
	index       domain.SimilarityIndex
	loader      domain.DocumentLoader
	chunker     *chunker.Chunker
	collections []string
	opts        Options
	recorder    Recorder
}

func NewEngine(oracle domain.Oracle, index domain.SimilarityIndex, loader domain.DocumentLoader, ch *chunker.Chunker, collections []string, opts Options) *Engine {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Attempts < 1 {
		opts.Attempts = 1
	}
	if opts.ResearchTokens < 1 {
		opts.ResearchTokens = 125000
	}
	if ch == nil {
		ch = chunker.New(false)
	}
	return &Engine{
		oracle:      oracle,
		index:       index,
		loader:      loader,
		chunker:     ch,
		collections: collections,
		opts:        opts,
	}
}

// WithRecorder makes the engine record every Ask.
func (e *Engine) WithRecorder(r Recorder) *Engine {
	e.recorder = r
	return e
}

func (e *Engine) Options() Options { return e.opts }

// Collections lists searchable collections from the index, falling back
// to the configured list when the index cannot be reached.
func (e *Engine) Collections(ctx context.Context) []string {
	names, err := e.index.ListCollections(ctx)
	if err != nil || len(names) == 0 {
		if err != nil {
			logger.Warn("Listing collections failed, using configured list", zap.Error(err))
		}
		return e.collections
	}
	return names
}

type oracleSlotsKey struct{}

// withOracleSlots gives ctx a research budget of Concurrency oracle calls
// unless an enclosing call already set one. Budgets are per request.
func (e *Engine) withOracleSlots(ctx context.Context) context.Context {
	if _, ok := ctx.Value(oracleSlotsKey{}).(*semaphore.Weighted); ok {
		return ctx
	}
	return context.WithValue(ctx, oracleSlotsKey{}, semaphore.NewWeighted(int64(e.opts.Concurrency)))
}

// oracleCall bounds the number of research calls in flight across all
// sources of one request.
func (e *Engine) oracleCall(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	slots, ok := ctx.Value(oracleSlotsKey{}).(*semaphore.Weighted)
	if !ok {
		return fn(ctx)
	}
	if err := slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer slots.Release(1)
	return fn(ctx)
}

// SingleStep answers from retrieved excerpts in one synthesis call.
func (e *Engine) SingleStep(ctx context.Context, prompt string, history []domain.Turn, k, scope int) (Result, []domain.SourceReference, error) {
	return e.run(ctx, Request{Mode: ModeSingle, Prompt: prompt, History: history, K: k, Scope: scope})
}

// MultiStep researches every unique source in full before synthesis.
func (e *Engine) MultiStep(ctx context.Context, prompt string, history []domain.Turn, k, scope int) (Result, []domain.SourceReference, error) {
	return e.run(ctx, Request{Mode: ModeMulti, Prompt: prompt, History: history, K: k, Scope: scope})
}

type Request struct {
	Mode    Mode
	Prompt  string
	History []domain.Turn
	K       int
	Scope   int
	OnStage StageFunc
}

func (r Request) stage(s Stage, n int) {
	if r.OnStage != nil {
		r.OnStage(s, n)
	}
}

func (e *Engine) run(ctx context.Context, req Request) (Result, []domain.SourceReference, error) {
	if req.K <= 0 {
		req.K = e.opts.K
	}
	if req.Scope <= 0 {
		req.Scope = e.opts.Scope
		if req.Mode == ModeMulti {
			req.Scope = e.opts.MultiScope
		}
	}

	req.stage(StageValidating, 0)
	verdict, err := e.Validate(ctx, req.Prompt, req.History)
	if err != nil {
		return Result{}, nil, err
	}
	if !verdict.Complete() {
		return Result{
			Answer:    domain.MessageAnswer(verdict.Message).Answer,
			Phrases:   []domain.SearchPhrase{},
			Citations: []domain.SourceReference{},
		}, []domain.SourceReference{}, nil
	}

	req.stage(StagePhrasing, 0)
	phrases, err := e.GeneratePhrases(ctx, req.Prompt, req.History, e.Collections(ctx), req.Scope)
	if err != nil {
		return Result{}, nil, err
	}

	req.stage(StageRetrieving, len(phrases))
	hits, err := e.Retrieve(ctx, phrases, req.K)
	if err != nil {
		return Result{}, nil, err
	}
	sources := LoadUnique(hits)
	metrics.UniqueSources.Observe(float64(len(sources)))

	logger.Info("Sources retrieved",
		zap.String("mode", string(req.Mode)),
		zap.Int("phrases", len(phrases)),
		zap.Int("hits", len(hits)),
		zap.Int("sources", len(sources)),
	)

	res := Result{Phrases: phrases, Citations: sources}
	var answer domain.StructuredAnswer

	switch req.Mode {
	case ModeMulti:
		req.stage(StageResearching, len(sources))
		research, err := e.ResearchAll(ctx, researchQuestion(req.Prompt, phrases), sources)
		if err != nil {
			return Result{}, nil, err
		}
		req.stage(StageSynthesizing, len(research))
		answer, err = e.SynthesizeMulti(ctx, req.Prompt, req.History, research)
		if err != nil {
			return Result{}, nil, err
		}
		res.Research = research
	default:
		excerpts := excerptsOf(LoadUniqueDocu(hits))
		req.stage(StageSynthesizing, len(excerpts))
		answer, err = e.SynthesizeSingle(ctx, req.Prompt, req.History, excerpts)
		if err != nil {
			return Result{}, nil, err
		}
	}

	res.Answer = answer.Answer
	if res.Phrases == nil {
		res.Phrases = []domain.SearchPhrase{}
	}
	return res, sources, nil
}

// Ask is the caller boundary: it retries the whole pipeline on schema
// violations up to the configured attempts and turns any remaining
// failure into the apology answer. The error is returned for logging only.
func (e *Engine) Ask(ctx context.Context, req Request) (Result, []domain.SourceReference, error) {
	start := time.Now()
	id := uuid.NewString()
	logger.Info("Processing query", zap.String("query_id", id), zap.String("mode", string(req.Mode)))

	type outcome struct {
		res     Result
		sources []domain.SourceReference
	}
	out, err := retry.DoWithResult(ctx, retry.Config{
		MaxAttempts:     e.opts.Attempts,
		InitialDelay:    250 * time.Millisecond,
		RetryableErrors: []error{domain.ErrSchemaViolation},
		Logger:          logger.GetLogger(),
	}, func() (outcome, error) {
		res, sources, err := e.run(ctx, req)
		return outcome{res, sources}, err
	})

	status := "ok"
	if err != nil {
		status = "error"
		if errors.Is(err, domain.ErrSchemaViolation) {
			status = "schema_error"
		}
		logger.Error("Query failed", zap.String("query_id", id), zap.Error(err))
		out = outcome{
			res: Result{
				Answer:    domain.ApologyAnswer().Answer,
				Phrases:   []domain.SearchPhrase{},
				Citations: []domain.SourceReference{},
			},
			sources: []domain.SourceReference{},
		}
	}

	out.res.ID = id

	elapsed := time.Since(start)
	metrics.QueryDuration.WithLabelValues(string(req.Mode)).Observe(elapsed.Seconds())
	metrics.QueryTotal.WithLabelValues(string(req.Mode), status).Inc()

	if e.recorder != nil {
		rec := Record{
			ID:        id,
			Mode:      req.Mode,
			Prompt:    req.Prompt,
			Phrases:   len(out.res.Phrases),
			Sources:   out.sources,
			Status:    status,
			LatencyMS: elapsed.Milliseconds(),
			CreatedAt: time.Now(),
		}
		if rerr := e.recorder.RecordQuery(context.WithoutCancel(ctx), rec); rerr != nil {
			logger.Warn("Failed to record query", zap.String("query_id", id), zap.Error(rerr))
		}
	}

	logger.Info("Query processed",
		zap.String("query_id", id),
		zap.String("status", status),
		zap.Int64("latency_ms", elapsed.Milliseconds()),
	)
	return out.res, out.sources, err
}

type nameResponse struct {
	Name string `json:"name" validate:"required"`
}

// Naming produces a short title for a conversation from its first prompt.
func (e *Engine) Naming(ctx context.Context, prompt string) (string, error) {
	raw, err := e.oracle.CompleteJSON(ctx, domain.Conversation(namerPolicy, nil, prompt), namingMaxTokens)
	if err != nil {
		return "", fmt.Errorf("naming: %w", err)
	}
	var resp nameResponse
	if err := schema.Decode("naming", raw, &resp); err != nil {
		return "", err
	}
	return resp.Name, nil
}
