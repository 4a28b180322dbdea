package milvus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/pkg/logger"
)

const (
	fieldID        = "chunk_id"
	fieldEmbedding = "embedding"
	fieldText      = "text"
	fieldCreatedAt = "created_at"
)

// metaFields are the scalar metadata columns, in schema order.
var metaFields = []string{
	domain.MetaCitation,
	domain.MetaCollectionID,
	domain.MetaSourceID,
	domain.MetaFilename,
}

var maxLength = map[string]string{
	fieldText:               "65535",
	domain.MetaCitation:     "1024",
	domain.MetaCollectionID: "128",
	domain.MetaSourceID:     "128",
	domain.MetaFilename:     "512",
}

// Embedder turns query text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Client implements domain.SimilarityIndex with one Milvus collection per
// legal collection.
type Client struct {
	client    client.Client
	embedder  Embedder
	vectorDim int
	nprobe    int
}

var _ domain.SimilarityIndex = (*Client)(nil)

func NewClient(ctx context.Context, endpoint, apiKey string, vectorDim, nprobe int, embedder Embedder) (*Client, error) {
	c, err := client.NewClient(ctx, client.Config{
		Address: endpoint,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	if nprobe <= 0 {
		nprobe = 16
	}

	logger.Info("Milvus client initialized",
		zap.String("endpoint", endpoint),
		zap.Int("vector_dim", vectorDim),
	)

	return &Client{client: c, embedder: embedder, vectorDim: vectorDim, nprobe: nprobe}, nil
}

func (m *Client) Close() error {
	return m.client.Close()
}

// EnsureCollection creates, indexes and loads a collection if missing.
func (m *Client) EnsureCollection(ctx context.Context, name string) error {
	has, err := m.client.HasCollection(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if has {
		logger.Debug("Collection already exists", zap.String("collection", name))
		return m.client.LoadCollection(ctx, name, false)
	}

	fields := []*entity.Field{
		{
			Name:       fieldID,
			DataType:   entity.FieldTypeVarChar,
			PrimaryKey: true,
			TypeParams: map[string]string{"max_length": "64"},
		},
		{
			Name:       fieldEmbedding,
			DataType:   entity.FieldTypeFloatVector,
			TypeParams: map[string]string{"dim": fmt.Sprintf("%d", m.vectorDim)},
		},
		{
			Name:       fieldText,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": maxLength[fieldText]},
		},
	}
	for _, f := range metaFields {
		fields = append(fields, &entity.Field{
			Name:       f,
			DataType:   entity.FieldTypeVarChar,
			TypeParams: map[string]string{"max_length": maxLength[f]},
		})
	}
	fields = append(fields, &entity.Field{Name: fieldCreatedAt, DataType: entity.FieldTypeInt64})

	schema := &entity.Schema{
		CollectionName: name,
		Description:    "legal passages for " + name,
		Fields:         fields,
	}
	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	idx, err := entity.NewIndexIvfFlat(entity.L2, 1024)
	if err != nil {
		return fmt.Errorf("failed to build index params: %w", err)
	}
	if err := m.client.CreateIndex(ctx, name, fieldEmbedding, idx, false); err != nil {
		return fmt.Errorf("failed to create index on %s: %w", name, err)
	}
	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		return fmt.Errorf("failed to load collection %s: %w", name, err)
	}

	logger.Info("Collection created and loaded", zap.String("collection", name))
	return nil
}

func (m *Client) ListCollections(ctx context.Context) ([]string, error) {
	colls, err := m.client.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	names := make([]string, 0, len(colls))
	for _, c := range colls {
		names = append(names, c.Name)
	}
	return names, nil
}

// Insert writes one chunk. Call Flush once a document is complete.
func (m *Client) Insert(ctx context.Context, collection, text string, meta map[string]string, embedding []float32) error {
	if len(embedding) != m.vectorDim {
		return fmt.Errorf("embedding has %d dimensions, collection expects %d", len(embedding), m.vectorDim)
	}

	cols := []entity.Column{
		entity.NewColumnVarChar(fieldID, []string{uuid.NewString()}),
		entity.NewColumnFloatVector(fieldEmbedding, m.vectorDim, [][]float32{embedding}),
		entity.NewColumnVarChar(fieldText, []string{text}),
	}
	for _, f := range metaFields {
		cols = append(cols, entity.NewColumnVarChar(f, []string{meta[f]}))
	}
	cols = append(cols, entity.NewColumnInt64(fieldCreatedAt, []int64{time.Now().Unix()}))

	if _, err := m.client.Insert(ctx, collection, "", cols...); err != nil {
		return m.wrap(ctx, collection, fmt.Errorf("failed to insert into %s: %w", collection, err))
	}

	logger.Debug("Chunk inserted", zap.String("collection", collection), zap.String("citation", meta[domain.MetaCitation]))
	return nil
}

func (m *Client) Flush(ctx context.Context, collection string) error {
	if err := m.client.Flush(ctx, collection, false); err != nil {
		return fmt.Errorf("failed to flush %s: %w", collection, err)
	}
	return nil
}

// Delete removes every row whose metadata field equals value.
func (m *Client) Delete(ctx context.Context, collection, field, value string) error {
	expr, err := equalsExpr(field, value)
	if err != nil {
		return err
	}
	if err := m.client.Delete(ctx, collection, "", expr); err != nil {
		return m.wrap(ctx, collection, fmt.Errorf("failed to delete from %s: %w", collection, err))
	}
	logger.Info("Vectors deleted", zap.String("collection", collection), zap.String("expr", expr))
	return nil
}

func (m *Client) Search(ctx context.Context, collection, query string, k int) ([]domain.Match, error) {
	vec, err := m.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	sp, err := entity.NewIndexIvfFlatSearchParam(m.nprobe)
	if err != nil {
		return nil, fmt.Errorf("failed to build search params: %w", err)
	}

	outputFields := append([]string{fieldText}, metaFields...)
	results, err := m.client.Search(
		ctx,
		collection,
		[]string{},
		"",
		outputFields,
		[]entity.Vector{entity.FloatVector(vec)},
		fieldEmbedding,
		entity.L2,
		k,
		sp,
	)
	if err != nil {
		return nil, m.wrap(ctx, collection, fmt.Errorf("failed to search %s: %w", collection, err))
	}

	matches := make([]domain.Match, 0, k)
	for _, sr := range results {
		for i := 0; i < sr.ResultCount; i++ {
			match := domain.Match{Metadata: make(map[string]string, len(metaFields)), Score: sr.Scores[i]}
			match.Text = columnString(sr.Fields.GetColumn(fieldText), i)
			for _, f := range metaFields {
				match.Metadata[f] = columnString(sr.Fields.GetColumn(f), i)
			}
			matches = append(matches, match)
		}
	}

	logger.Debug("Vector search completed",
		zap.String("collection", collection),
		zap.Int("k", k),
		zap.Int("results", len(matches)),
	)
	return matches, nil
}

// wrap tags err with ErrUnknownCollection when the collection is missing.
func (m *Client) wrap(ctx context.Context, collection string, err error) error {
	has, herr := m.client.HasCollection(ctx, collection)
	if herr == nil && !has {
		return fmt.Errorf("%w %q: %v", domain.ErrUnknownCollection, collection, err)
	}
	return err
}

func columnString(col entity.Column, i int) string {
	if col == nil {
		return ""
	}
	v, err := col.Get(i)
	if err != nil {
		return ""
	}
	s, _ := v.(string)
	return s
}

func equalsExpr(field, value string) (string, error) {
	allowed := false
	for _, f := range metaFields {
		if f == field {
			allowed = true
			break
		}
	}
	if !allowed {
		return "", errors.New("cannot filter on field " + field)
	}
	escaped := strings.NewReplacer(`\`, `\\`, `"`, `\"`).Replace(value)
	return fmt.Sprintf(`%s == "%s"`, field, escaped), nil
}
