package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/storage/models"
	"github.com/legalrag/backend/pkg/logger"
)

type Client struct {
	db *sql.DB
}

func NewClient(dbPath string) (*Client, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec("PRAGMA foreign_keys = ON")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	_, err = db.Exec("PRAGMA journal_mode = WAL")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	logger.Info("SQLite client initialized", zap.String("path", dbPath))

	return &Client{db: db}, nil
}

func (c *Client) Close() error {
	return c.db.Close()
}

func (c *Client) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		collection_id TEXT NOT NULL,
		source_id TEXT NOT NULL,
		filename TEXT NOT NULL,
		kind TEXT NOT NULL,
		citation TEXT NOT NULL,
		jurisdiction TEXT,
		sections TEXT,
		ruling TEXT,
		chunks INTEGER DEFAULT 0,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (collection, source_id)
	);
	CREATE INDEX IF NOT EXISTS idx_documents_citation ON documents(citation);
	CREATE INDEX IF NOT EXISTS idx_documents_kind ON documents(kind);

	CREATE TABLE IF NOT EXISTS query_history (
		id TEXT PRIMARY KEY,
		mode TEXT NOT NULL,
		prompt TEXT NOT NULL,
		phrases INTEGER,
		sources INTEGER,
		status TEXT NOT NULL,
		latency_ms INTEGER,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_query_created ON query_history(created_at);

	CREATE TABLE IF NOT EXISTS query_sources (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query_id TEXT NOT NULL,
		citation TEXT NOT NULL,
		collection TEXT NOT NULL,
		collection_id TEXT,
		source_id TEXT NOT NULL,
		filename TEXT,
		FOREIGN KEY (query_id) REFERENCES query_history(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_sources_query ON query_sources(query_id);
	`

	_, err := c.db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Info("SQLite schema initialized")
	return nil
}

// SaveDocument inserts or replaces the stored copy of an ingested document.
func (c *Client) SaveDocument(ctx context.Context, doc *models.Document) error {
	sections, err := json.Marshal(doc.Sections)
	if err != nil {
		return fmt.Errorf("failed to encode sections: %w", err)
	}

	var ruling sql.NullString
	if doc.Ruling != nil {
		raw, err := json.Marshal(doc.Ruling)
		if err != nil {
			return fmt.Errorf("failed to encode ruling metadata: %w", err)
		}
		ruling = sql.NullString{String: string(raw), Valid: true}
	}

	now := time.Now()
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = now
	}
	doc.UpdatedAt = now

	query := `
		INSERT INTO documents (collection, collection_id, source_id, filename, kind, citation,
			jurisdiction, sections, ruling, chunks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection, source_id) DO UPDATE SET
			collection_id = excluded.collection_id,
			filename = excluded.filename,
			kind = excluded.kind,
			citation = excluded.citation,
			jurisdiction = excluded.jurisdiction,
			sections = excluded.sections,
			ruling = excluded.ruling,
			chunks = excluded.chunks,
			updated_at = excluded.updated_at
	`

	_, err = c.db.ExecContext(ctx, query,
		doc.Collection,
		doc.CollectionID,
		doc.SourceID,
		doc.Filename,
		string(doc.Kind),
		doc.Citation,
		doc.Jurisdiction,
		string(sections),
		ruling,
		doc.Chunks,
		doc.CreatedAt.Unix(),
		doc.UpdatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to save document: %w", err)
	}

	logger.Debug("Document saved",
		zap.String("collection", doc.Collection),
		zap.String("source_id", doc.SourceID),
		zap.String("citation", doc.Citation),
	)
	return nil
}

func (c *Client) GetDocument(ctx context.Context, collection, sourceID string) (*models.Document, error) {
	query := `
		SELECT collection, collection_id, source_id, filename, kind, citation, jurisdiction,
			sections, ruling, chunks, created_at, updated_at
		FROM documents WHERE collection = ? AND source_id = ?
	`

	var doc models.Document
	var kind string
	var jurisdiction, sections, ruling sql.NullString
	var createdAt, updatedAt int64

	err := c.db.QueryRowContext(ctx, query, collection, sourceID).Scan(
		&doc.Collection,
		&doc.CollectionID,
		&doc.SourceID,
		&doc.Filename,
		&kind,
		&doc.Citation,
		&jurisdiction,
		&sections,
		&ruling,
		&doc.Chunks,
		&createdAt,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("document %s/%s: %w", collection, sourceID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	doc.Kind = domain.DocumentKind(kind)
	doc.Jurisdiction = jurisdiction.String
	if sections.Valid && sections.String != "" {
		if err := json.Unmarshal([]byte(sections.String), &doc.Sections); err != nil {
			return nil, fmt.Errorf("failed to decode sections: %w", err)
		}
	}
	if ruling.Valid {
		doc.Ruling = &domain.RulingMetadata{}
		if err := json.Unmarshal([]byte(ruling.String), doc.Ruling); err != nil {
			return nil, fmt.Errorf("failed to decode ruling metadata: %w", err)
		}
	}
	doc.CreatedAt = time.Unix(createdAt, 0)
	doc.UpdatedAt = time.Unix(updatedAt, 0)

	return &doc, nil
}

// DeleteDocument removes the stored document. Deleting a missing document
// is not an error.
func (c *Client) DeleteDocument(ctx context.Context, collection, sourceID string) error {
	res, err := c.db.ExecContext(ctx, `DELETE FROM documents WHERE collection = ? AND source_id = ?`, collection, sourceID)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}

	n, _ := res.RowsAffected()
	logger.Debug("Document deleted",
		zap.String("collection", collection),
		zap.String("source_id", sourceID),
		zap.Int64("rows", n),
	)
	return nil
}

func (c *Client) ListDocuments(ctx context.Context, collection string) ([]models.Document, error) {
	query := `
		SELECT collection, collection_id, source_id, filename, kind, citation, chunks, updated_at
		FROM documents WHERE collection = ?
		ORDER BY updated_at DESC, source_id
	`

	rows, err := c.db.QueryContext(ctx, query, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []models.Document
	for rows.Next() {
		var d models.Document
		var kind string
		var updatedAt int64

		err := rows.Scan(&d.Collection, &d.CollectionID, &d.SourceID, &d.Filename, &kind, &d.Citation, &d.Chunks, &updatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		d.Kind = domain.DocumentKind(kind)
		d.UpdatedAt = time.Unix(updatedAt, 0)
		docs = append(docs, d)
	}

	return docs, rows.Err()
}

// RecordQuery stores one answered query and its unique sources.
func (c *Client) RecordQuery(ctx context.Context, rec query.Record) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO query_history (id, mode, prompt, phrases, sources, status, latency_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		string(rec.Mode),
		rec.Prompt,
		rec.Phrases,
		len(rec.Sources),
		rec.Status,
		rec.LatencyMS,
		rec.CreatedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert query record: %w", err)
	}

	for _, src := range rec.Sources {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO query_sources (query_id, citation, collection, collection_id, source_id, filename)
			VALUES (?, ?, ?, ?, ?, ?)
		`, rec.ID, src.Citation, src.Collection, src.CollectionID, src.SourceID, src.Filename)
		if err != nil {
			return fmt.Errorf("failed to insert query source: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit query record: %w", err)
	}

	logger.Info("Query recorded",
		zap.String("query_id", rec.ID),
		zap.String("mode", string(rec.Mode)),
		zap.String("status", rec.Status),
		zap.Int("sources", len(rec.Sources)),
	)
	return nil
}

func (c *Client) GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error) {
	query := `
		SELECT id, mode, prompt, phrases, sources, status, latency_ms, created_at
		FROM query_history
		ORDER BY created_at DESC
		LIMIT ?
	`

	rows, err := c.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get query history: %w", err)
	}
	defer rows.Close()

	var records []models.QueryRecord
	for rows.Next() {
		var r models.QueryRecord
		var createdAt int64

		err := rows.Scan(&r.ID, &r.Mode, &r.Prompt, &r.Phrases, &r.Sources, &r.Status, &r.LatencyMS, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.CreatedAt = time.Unix(createdAt, 0)
		records = append(records, r)
	}

	return records, rows.Err()
}

func (c *Client) GetQuerySources(ctx context.Context, queryID string) ([]models.QuerySource, error) {
	query := `
		SELECT id, query_id, citation, collection, collection_id, source_id, filename
		FROM query_sources WHERE query_id = ? ORDER BY id
	`

	rows, err := c.db.QueryContext(ctx, query, queryID)
	if err != nil {
		return nil, fmt.Errorf("failed to get query sources: %w", err)
	}
	defer rows.Close()

	var sources []models.QuerySource
	for rows.Next() {
		var s models.QuerySource
		err := rows.Scan(&s.ID, &s.QueryID, &s.Citation, &s.Collection, &s.CollectionID, &s.SourceID, &s.Filename)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		sources = append(sources, s)
	}

	return sources, rows.Err()
}
