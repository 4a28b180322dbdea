package models

import (
	"time"

	"github.com/legalrag/backend/internal/domain"
)

// Document is an ingested source as persisted alongside its vectors.
// Sections is set for legislation, Ruling for court rulings.
type Document struct {
	Collection   string
	CollectionID string
	SourceID     string
	Filename     string
	Kind         domain.DocumentKind
	Citation     string
	Jurisdiction string
	Sections     []domain.DocumentSection
	Ruling       *domain.RulingMetadata
	Chunks       int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (d *Document) Ref() domain.SourceReference {
	return domain.SourceReference{
		Citation:     d.Citation,
		Collection:   d.Collection,
		CollectionID: d.CollectionID,
		SourceID:     d.SourceID,
		Filename:     d.Filename,
	}
}

type QueryRecord struct {
	ID        string    `json:"id"`
	Mode      string    `json:"mode"`
	Prompt    string    `json:"prompt"`
	Phrases   int       `json:"phrases"`
	Sources   int       `json:"sources"`
	Status    string    `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	CreatedAt time.Time `json:"created_at"`
}

type QuerySource struct {
	ID           int
	QueryID      string
	Citation     string
	Collection   string
	CollectionID string
	SourceID     string
	Filename     string
}
