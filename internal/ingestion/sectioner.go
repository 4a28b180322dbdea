package ingestion

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/pkg/logger"
)

// Sectioning variants reported on IngestResult.
const (
	SectioningStyle = "style"
	SectioningModel = "model"
)

// SectionByStyle groups fragments under headings whose style equals marker.
// Fragments before the first heading form an untitled leading section. The
// first three fragments hold jurisdiction, title and citation. It reports
// false when the stream is too short or carries no heading, in which case
// the caller should fall back to SectionByModel.
func SectionByStyle(frags []domain.Fragment, marker string) (domain.LegislationDocument, bool) {
	if len(frags) < 3 || !hasStyle(frags, marker) {
		return domain.LegislationDocument{}, false
	}

	doc := domain.LegislationDocument{
		Jurisdiction: strings.TrimSpace(frags[0].Text),
		Citation:     strings.TrimSpace(frags[1].Text) + ", " + strings.TrimSpace(frags[2].Text),
	}

	var current *domain.DocumentSection
	for _, f := range frags {
		if f.Style == marker {
			if current != nil {
				doc.Sections = append(doc.Sections, *current)
			}
			current = &domain.DocumentSection{Title: f.Text}
			continue
		}
		if current == nil {
			current = &domain.DocumentSection{}
		}
		current.Lines = append(current.Lines, f.Text)
	}
	if current != nil {
		doc.Sections = append(doc.Sections, *current)
	}

	return doc, true
}

func hasStyle(frags []domain.Fragment, style string) bool {
	for _, f := range frags {
		if f.Style == style {
			return true
		}
	}
	return false
}

type actMetadata struct {
	Metadata *struct {
		Juris    string `json:"juris"`
		Citation string `json:"citation" validate:"required"`
	} `json:"metadata" validate:"required"`
}

// SectionByModel asks the oracle for citation and jurisdiction from the
// first coarse chunk, then splits the whole text into numbered sections.
func (p *Processor) SectionByModel(ctx context.Context, frags []domain.Fragment) (domain.LegislationDocument, error) {
	texts := make([]string, len(frags))
	for i, f := range frags {
		texts[i] = f.Text
	}
	text := strings.Join(texts, "\n")
	if strings.TrimSpace(text) == "" {
		return domain.LegislationDocument{}, domain.ErrEmptyDocument
	}

	coarse := p.chunker.Split(text, p.opts.SectionCoarseTokens, p.opts.SectionOverlap)

	raw, err := p.oracle.CompleteJSON(ctx, domain.Conversation(actPolicy, nil, coarse[0]), analysisMaxTokens)
	if err != nil {
		return domain.LegislationDocument{}, fmt.Errorf("failed to extract legislation metadata: %w", err)
	}

	var meta actMetadata
	if err := schema.Decode("section_metadata", raw, &meta); err != nil {
		return domain.LegislationDocument{}, err
	}

	doc := domain.LegislationDocument{
		Citation:     strings.TrimSpace(meta.Metadata.Citation),
		Jurisdiction: strings.TrimSpace(meta.Metadata.Juris),
	}
	for i, chunk := range p.chunker.Split(text, p.opts.SectionFineTokens, p.opts.SectionOverlap) {
		doc.Sections = append(doc.Sections, domain.DocumentSection{
			Title: "Chunk number " + strconv.Itoa(i+1),
			Lines: []string{chunk},
		})
	}

	logger.Debug("Legislation sectioned by model",
		zap.String("citation", doc.Citation),
		zap.Int("coarse_chunks", len(coarse)),
		zap.Int("sections", len(doc.Sections)),
	)
	return doc, nil
}
