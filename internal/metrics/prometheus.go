package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	QueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "legal_rag_query_duration_seconds",
			Help:    "End-to-end query duration in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80, 160},
		},
		[]string{"mode"},
	)

	QueryTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_query_total",
			Help: "Queries processed by mode and outcome",
		},
		[]string{"mode", "status"},
	)

	PhrasesGenerated = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legal_rag_phrases_generated",
			Help:    "Search phrases generated per query",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	PhraseSearchFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_phrase_search_failures_total",
			Help: "Phrase searches that failed and contributed no hits",
		},
		[]string{"collection"},
	)

	RetrievedHits = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legal_rag_retrieved_hits",
			Help:    "Hits retrieved per query before deduplication",
			Buckets: []float64{0, 1, 3, 6, 10, 15, 25, 50},
		},
	)

	UniqueSources = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legal_rag_unique_sources",
			Help:    "Unique sources per query after deduplication",
			Buckets: []float64{0, 1, 2, 3, 5, 8, 13, 21},
		},
	)

	ResearchChunks = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "legal_rag_research_chunks_total",
			Help: "Document chunks sent for research extraction",
		},
	)

	OracleCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_oracle_calls_total",
			Help: "Oracle calls by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	LLMTokensUsed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_llm_tokens_used",
			Help: "Total LLM tokens used",
		},
		[]string{"model", "type"},
	)

	DocumentsIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_documents_ingested_total",
			Help: "Documents ingested by kind and outcome",
		},
		[]string{"kind", "status"},
	)

	ChunksIndexed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_chunks_indexed_total",
			Help: "Chunks embedded and inserted into the index",
		},
		[]string{"collection"},
	)

	EmbeddingCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legal_rag_embedding_cache_total",
			Help: "Embedding cache lookups by result",
		},
		[]string{"result"},
	)

	CircuitState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "legal_rag_circuit_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)
)

var once sync.Once

// Init registers every collector with the default registry. Safe to call
// more than once.
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			QueryDuration,
			QueryTotal,
			PhrasesGenerated,
			PhraseSearchFailures,
			RetrievedHits,
			UniqueSources,
			ResearchChunks,
			OracleCalls,
			LLMTokensUsed,
			DocumentsIngested,
			ChunksIndexed,
			EmbeddingCache,
			CircuitState,
		)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
