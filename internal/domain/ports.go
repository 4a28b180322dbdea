package domain

import "context"

// Oracle is the language-model service.
type Oracle interface {
	// CompleteJSON returns JSON text. Callers own schema validation.
	CompleteJSON(ctx context.Context, msgs []Message, maxTokens int) (string, error)
	CompleteText(ctx context.Context, msgs []Message, maxTokens int) (string, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SimilarityIndex is a keyed vector store partitioned into collections.
type SimilarityIndex interface {
	Search(ctx context.Context, collection, query string, k int) ([]Match, error)
	Insert(ctx context.Context, collection, text string, meta map[string]string, embedding []float32) error
	Delete(ctx context.Context, collection, field, value string) error
	ListCollections(ctx context.Context) ([]string, error)
}

// DocumentLoader reads a source file into ordered fragments.
type DocumentLoader interface {
	Load(ctx context.Context, ref SourceReference) ([]Fragment, error)
}
