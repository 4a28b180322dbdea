package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/chunker"
	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/loader"
	"github.com/legalrag/backend/internal/metrics"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/internal/storage/models"
	"github.com/legalrag/backend/pkg/logger"
)

type Options struct {
	SectionCoarseTokens int
	SectionFineTokens   int
	SectionOverlap      int
	EmbedTokens         int
	EmbedOverlap        int
	HeadingMarker       string
}

func DefaultOptions() Options {
	return Options{
		SectionCoarseTokens: 4000,
		SectionFineTokens:   1500,
		SectionOverlap:      200,
		EmbedTokens:         500,
		EmbedOverlap:        150,
		HeadingMarker:       "h1",
	}
}

// DocumentStore persists ingested documents.
type DocumentStore interface {
	SaveDocument(ctx context.Context, doc *models.Document) error
	GetDocument(ctx context.Context, collection, sourceID string) (*models.Document, error)
	DeleteDocument(ctx context.Context, collection, sourceID string) error
}

type CitationGraph interface {
	BuildFromRuling(ctx context.Context, ref domain.SourceReference, meta *domain.RulingMetadata) error
	RemoveRuling(ctx context.Context, citation string) error
}

type collectionEnsurer interface {
	EnsureCollection(ctx context.Context, name string) error
}

type flusher interface {
	Flush(ctx context.Context, collection string) error
}

type fileRemover interface {
	Remove(ref domain.SourceReference) error
}

// IngestResult describes what ingestion produced for one document.
type IngestResult struct {
	Kind         domain.DocumentKind      `json:"kind"`
	Citation     string                   `json:"citation"`
	Jurisdiction string                   `json:"jurisdiction,omitempty"`
	Sectioning   string                   `json:"sectioning,omitempty"`
	Sections     []domain.DocumentSection `json:"sections,omitempty"`
	Ruling       *domain.RulingMetadata   `json:"ruling,omitempty"`
	Chunks       int                      `json:"chunks"`
}

type Processor struct {
	oracle  domain.Oracle
	index   domain.SimilarityIndex
	loader  domain.DocumentLoader
	chunker *chunker.Chunker
	opts    Options

	store DocumentStore
	graph CitationGraph

	ensurer collectionEnsurer
	flusher flusher
	files   fileRemover
}

func NewProcessor(oracle domain.Oracle, index domain.SimilarityIndex, docs domain.DocumentLoader, ch *chunker.Chunker, opts Options) *Processor {
	def := DefaultOptions()
	if opts.SectionCoarseTokens <= 0 {
		opts.SectionCoarseTokens = def.SectionCoarseTokens
	}
	if opts.SectionFineTokens <= 0 {
		opts.SectionFineTokens = def.SectionFineTokens
	}
	if opts.SectionOverlap < 0 {
		opts.SectionOverlap = def.SectionOverlap
	}
	if opts.EmbedTokens <= 0 {
		opts.EmbedTokens = def.EmbedTokens
	}
	if opts.EmbedOverlap < 0 {
		opts.EmbedOverlap = def.EmbedOverlap
	}
	if opts.HeadingMarker == "" {
		opts.HeadingMarker = def.HeadingMarker
	}

	p := &Processor{
		oracle:  oracle,
		index:   index,
		loader:  docs,
		chunker: ch,
		opts:    opts,
	}
	p.ensurer, _ = index.(collectionEnsurer)
	p.flusher, _ = index.(flusher)
	p.files, _ = docs.(fileRemover)
	return p
}

// WithStore makes the processor persist every ingested document.
func (p *Processor) WithStore(store DocumentStore) *Processor {
	p.store = store
	return p
}

// WithGraph makes court-ruling ingestion write the citation graph.
func (p *Processor) WithGraph(graph CitationGraph) *Processor {
	p.graph = graph
	return p
}

// Ingest loads the source document and runs the ingestion path for kind.
func (p *Processor) Ingest(ctx context.Context, ref domain.SourceReference, kind domain.DocumentKind) (*IngestResult, error) {
	switch kind {
	case domain.KindRuling:
		return p.IngestCourtRuling(ctx, ref)
	case domain.KindLegislation:
		return p.IngestLegislation(ctx, ref)
	default:
		return nil, fmt.Errorf("unknown document kind %q", kind)
	}
}

// IngestLegislation sections a statute by heading style when it has one,
// by model otherwise, and indexes every section.
func (p *Processor) IngestLegislation(ctx context.Context, ref domain.SourceReference) (res *IngestResult, err error) {
	defer func() { observe(domain.KindLegislation, err) }()

	frags, err := p.loader.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	doc, ok := SectionByStyle(frags, p.opts.HeadingMarker)
	sectioning := SectioningStyle
	if !ok {
		sectioning = SectioningModel
		doc, err = p.SectionByModel(ctx, frags)
		if err != nil {
			return nil, err
		}
	}

	ref.Citation = doc.Citation
	if err := p.prepare(ctx, ref.Collection); err != nil {
		return nil, err
	}

	chunks, err := p.indexSections(ctx, ref, doc, sectioning == SectioningModel)
	if err != nil {
		p.discard(ctx, ref)
		return nil, err
	}

	res = &IngestResult{
		Kind:         domain.KindLegislation,
		Citation:     doc.Citation,
		Jurisdiction: doc.Jurisdiction,
		Sectioning:   sectioning,
		Sections:     doc.Sections,
		Chunks:       chunks,
	}
	if err := p.save(ctx, ref, res); err != nil {
		p.discard(ctx, ref)
		return nil, err
	}

	logger.Info("Legislation ingested",
		zap.String("collection", ref.Collection),
		zap.String("source_id", ref.SourceID),
		zap.String("citation", doc.Citation),
		zap.String("sectioning", sectioning),
		zap.Int("sections", len(doc.Sections)),
		zap.Int("chunks", chunks),
	)
	return res, nil
}

// IngestCourtRuling extracts structured metadata from the whole ruling in
// one oracle call and indexes the summary strings derived from it.
func (p *Processor) IngestCourtRuling(ctx context.Context, ref domain.SourceReference) (res *IngestResult, err error) {
	defer func() { observe(domain.KindRuling, err) }()

	meta, err := p.analyseRuling(ctx, ref)
	if err != nil {
		return nil, err
	}
	return p.indexRuling(ctx, ref, meta)
}

func (p *Processor) analyseRuling(ctx context.Context, ref domain.SourceReference) (*domain.RulingMetadata, error) {
	frags, err := p.loader.Load(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}

	text := loader.JoinText(frags)
	if strings.TrimSpace(text) == "" {
		return nil, domain.ErrEmptyDocument
	}

	raw, err := p.oracle.CompleteJSON(ctx, domain.Conversation(rulingPolicy, nil, text), analysisMaxTokens)
	if err != nil {
		return nil, fmt.Errorf("failed to analyse ruling: %w", err)
	}

	var meta domain.RulingMetadata
	if err := schema.Decode("ruling_metadata", raw, &meta); err != nil {
		return nil, err
	}
	meta.Citation = strings.TrimSpace(meta.Citation)
	return &meta, nil
}

// indexRuling writes the vectors, stored document and graph node for an
// analysed ruling. Vectors already inserted are removed if it fails.
func (p *Processor) indexRuling(ctx context.Context, ref domain.SourceReference, meta *domain.RulingMetadata) (*IngestResult, error) {
	ref.Citation = meta.Citation
	if err := p.prepare(ctx, ref.Collection); err != nil {
		return nil, err
	}

	chunks := 0
	for _, s := range RulingStrings(meta) {
		if err := p.indexChunk(ctx, ref, s); err != nil {
			p.discard(ctx, ref)
			return nil, err
		}
		chunks++
	}
	p.flush(ctx, ref.Collection)

	res := &IngestResult{
		Kind:         domain.KindRuling,
		Citation:     meta.Citation,
		Jurisdiction: meta.Jurisdiction,
		Ruling:       meta,
		Chunks:       chunks,
	}
	if err := p.save(ctx, ref, res); err != nil {
		p.discard(ctx, ref)
		return nil, err
	}

	if p.graph != nil {
		if err := p.graph.BuildFromRuling(ctx, ref, meta); err != nil {
			logger.Warn("Failed to build citation graph", zap.String("citation", meta.Citation), zap.Error(err))
		}
	}

	logger.Info("Court ruling ingested",
		zap.String("collection", ref.Collection),
		zap.String("source_id", ref.SourceID),
		zap.String("citation", meta.Citation),
		zap.Int("chunks", chunks),
	)
	return res, nil
}

// RulingStrings returns the texts indexed for a ruling: the citation with
// its summary, then the case law, legislation and new precedent
// descriptions. Empty lists contribute nothing.
func RulingStrings(meta *domain.RulingMetadata) []string {
	out := []string{meta.Citation + " : " + meta.Summary}

	if len(meta.CaseLaw) > 0 {
		descs := make([]string, len(meta.CaseLaw))
		for i, c := range meta.CaseLaw {
			descs[i] = c.Desc
		}
		out = append(out, strings.Join(descs, "; "))
	}

	if len(meta.Legislation) > 0 {
		entries := make([]string, len(meta.Legislation))
		for i, l := range meta.Legislation {
			entries[i] = l.Citation + ": " + l.Desc
		}
		out = append(out, strings.Join(entries, "; "))
	}

	if len(meta.SetPrecedent) > 0 {
		descs := make([]string, len(meta.SetPrecedent))
		for i, s := range meta.SetPrecedent {
			descs[i] = s.Desc
		}
		out = append(out, strings.Join(descs, "; "))
	}

	return out
}

// Reindex replaces a document's vectors with the given, possibly edited,
// sections. The stored copy is replaced too.
func (p *Processor) Reindex(ctx context.Context, ref domain.SourceReference, doc domain.LegislationDocument) (*IngestResult, error) {
	if strings.TrimSpace(doc.Citation) == "" {
		return nil, fmt.Errorf("reindex %s: %w", ref.SourceID, domain.ErrIncompleteMetadata)
	}

	if err := p.index.Delete(ctx, ref.Collection, domain.MetaSourceID, ref.SourceID); err != nil {
		return nil, fmt.Errorf("failed to delete previous vectors: %w", err)
	}

	ref.Citation = doc.Citation
	chunks, err := p.indexSections(ctx, ref, doc, false)
	if err != nil {
		p.discard(ctx, ref)
		return nil, err
	}

	res := &IngestResult{
		Kind:         domain.KindLegislation,
		Citation:     doc.Citation,
		Jurisdiction: doc.Jurisdiction,
		Sections:     doc.Sections,
		Chunks:       chunks,
	}
	if err := p.save(ctx, ref, res); err != nil {
		p.discard(ctx, ref)
		return nil, err
	}

	logger.Info("Document reindexed",
		zap.String("collection", ref.Collection),
		zap.String("source_id", ref.SourceID),
		zap.Int("chunks", chunks),
	)
	return res, nil
}

// Regenerate analyses a ruling again and replaces its vectors. The old
// vectors are only deleted once the new analysis has succeeded. A citation
// that changed drops the old graph node.
func (p *Processor) Regenerate(ctx context.Context, ref domain.SourceReference) (res *IngestResult, err error) {
	defer func() { observe(domain.KindRuling, err) }()

	previous := p.storedCitation(ctx, ref)

	meta, err := p.analyseRuling(ctx, ref)
	if err != nil {
		return nil, err
	}

	if err := p.index.Delete(ctx, ref.Collection, domain.MetaSourceID, ref.SourceID); err != nil {
		return nil, fmt.Errorf("failed to delete previous vectors: %w", err)
	}

	res, err = p.indexRuling(ctx, ref, meta)
	if err != nil {
		return nil, err
	}

	if p.graph != nil && previous != "" && previous != res.Citation {
		if err := p.graph.RemoveRuling(ctx, previous); err != nil {
			logger.Warn("Failed to remove stale graph node", zap.String("citation", previous), zap.Error(err))
		}
	}
	return res, nil
}

// Delete removes everything held for a source: vectors, the stored
// document, its graph node and the uploaded file.
func (p *Processor) Delete(ctx context.Context, ref domain.SourceReference) error {
	citation := ref.Citation
	if stored := p.storedCitation(ctx, ref); stored != "" {
		citation = stored
	}

	if err := p.index.Delete(ctx, ref.Collection, domain.MetaSourceID, ref.SourceID); err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}

	var errs []error
	if p.store != nil {
		if err := p.store.DeleteDocument(ctx, ref.Collection, ref.SourceID); err != nil {
			errs = append(errs, err)
		}
	}
	if p.graph != nil && citation != "" {
		if err := p.graph.RemoveRuling(ctx, citation); err != nil {
			errs = append(errs, err)
		}
	}
	if p.files != nil && ref.Filename != "" {
		if err := p.files.Remove(ref); err != nil {
			errs = append(errs, err)
		}
	}

	logger.Info("Document deleted",
		zap.String("collection", ref.Collection),
		zap.String("source_id", ref.SourceID),
		zap.String("citation", citation),
		zap.Int("errors", len(errs)),
	)
	return errors.Join(errs...)
}

func (p *Processor) storedCitation(ctx context.Context, ref domain.SourceReference) string {
	if p.store == nil {
		return ""
	}
	doc, err := p.store.GetDocument(ctx, ref.Collection, ref.SourceID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			logger.Warn("Failed to read stored document", zap.String("source_id", ref.SourceID), zap.Error(err))
		}
		return ""
	}
	return doc.Citation
}

// indexSections splits every section at the embedding budget and inserts
// each chunk. prefix puts the citation in front of each section's text.
func (p *Processor) indexSections(ctx context.Context, ref domain.SourceReference, doc domain.LegislationDocument, prefix bool) (int, error) {
	chunks := 0
	for _, sec := range doc.Sections {
		text := sec.Text()
		if prefix {
			text = doc.Citation + " : " + text
		}
		for _, chunk := range p.chunker.Split(text, p.opts.EmbedTokens, p.opts.EmbedOverlap) {
			if err := p.indexChunk(ctx, ref, chunk); err != nil {
				return chunks, err
			}
			chunks++
		}
	}
	p.flush(ctx, ref.Collection)
	return chunks, nil
}

func (p *Processor) indexChunk(ctx context.Context, ref domain.SourceReference, text string) error {
	embedding, err := p.oracle.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed chunk: %w", err)
	}

	meta := map[string]string{
		domain.MetaCitation:     ref.Citation,
		domain.MetaCollectionID: ref.CollectionID,
		domain.MetaSourceID:     ref.SourceID,
		domain.MetaFilename:     ref.Filename,
	}
	if err := p.index.Insert(ctx, ref.Collection, text, meta, embedding); err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}

	metrics.ChunksIndexed.WithLabelValues(ref.Collection).Inc()
	return nil
}

func (p *Processor) prepare(ctx context.Context, collection string) error {
	if p.ensurer == nil {
		return nil
	}
	if err := p.ensurer.EnsureCollection(ctx, collection); err != nil {
		return fmt.Errorf("failed to prepare collection %s: %w", collection, err)
	}
	return nil
}

func (p *Processor) flush(ctx context.Context, collection string) {
	if p.flusher == nil {
		return
	}
	if err := p.flusher.Flush(ctx, collection); err != nil {
		logger.Warn("Failed to flush collection", zap.String("collection", collection), zap.Error(err))
	}
}

// discard removes whatever vectors a failed ingestion left for ref.
func (p *Processor) discard(ctx context.Context, ref domain.SourceReference) {
	ctx = context.WithoutCancel(ctx)
	if err := p.index.Delete(ctx, ref.Collection, domain.MetaSourceID, ref.SourceID); err != nil {
		logger.Warn("Failed to discard partial vectors",
			zap.String("collection", ref.Collection),
			zap.String("source_id", ref.SourceID),
			zap.Error(err),
		)
		return
	}
	p.flush(ctx, ref.Collection)
}

func (p *Processor) save(ctx context.Context, ref domain.SourceReference, res *IngestResult) error {
	if p.store == nil {
		return nil
	}
	err := p.store.SaveDocument(ctx, &models.Document{
		Collection:   ref.Collection,
		CollectionID: ref.CollectionID,
		SourceID:     ref.SourceID,
		Filename:     ref.Filename,
		Kind:         res.Kind,
		Citation:     res.Citation,
		Jurisdiction: res.Jurisdiction,
		Sections:     res.Sections,
		Ruling:       res.Ruling,
		Chunks:       res.Chunks,
	})
	if err != nil {
		return fmt.Errorf("failed to store document: %w", err)
	}
	return nil
}

func observe(kind domain.DocumentKind, err error) {
	status := "success"
	switch {
	case errors.Is(err, domain.ErrSchemaViolation):
		status = "schema_error"
	case err != nil:
		status = "error"
	}
	metrics.DocumentsIngested.WithLabelValues(string(kind), status).Inc()
}
