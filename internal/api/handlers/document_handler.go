package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/ingestion"
	"github.com/legalrag/backend/internal/kg/neo4j"
	"github.com/legalrag/backend/internal/loader"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/internal/storage/models"
	"github.com/legalrag/backend/pkg/logger"
)

type Ingester interface {
	Ingest(ctx context.Context, ref domain.SourceReference, kind domain.DocumentKind) (*ingestion.IngestResult, error)
	Reindex(ctx context.Context, ref domain.SourceReference, doc domain.LegislationDocument) (*ingestion.IngestResult, error)
	Regenerate(ctx context.Context, ref domain.SourceReference) (*ingestion.IngestResult, error)
	Delete(ctx context.Context, ref domain.SourceReference) error
}

type DocumentReader interface {
	GetDocument(ctx context.Context, collection, sourceID string) (*models.Document, error)
	ListDocuments(ctx context.Context, collection string) ([]models.Document, error)
}

type FileStore interface {
	Save(ref domain.SourceReference, data []byte) (string, error)
}

type GraphReader interface {
	Neighbours(ctx context.Context, citation string) ([]neo4j.Neighbour, error)
}

type DocumentHandler struct {
	processor Ingester
	docs      DocumentReader
	files     FileStore
	graph     GraphReader
}

func NewDocumentHandler(processor Ingester, docs DocumentReader, files FileStore) *DocumentHandler {
	return &DocumentHandler{
		processor: processor,
		docs:      docs,
		files:     files,
	}
}

// WithGraph adds citation-graph neighbours to document views.
func (h *DocumentHandler) WithGraph(graph GraphReader) *DocumentHandler {
	h.graph = graph
	return h
}

type uploadForm struct {
	Collection   string `json:"collection" validate:"required,collection"`
	CollectionID string `json:"collection_id" validate:"required"`
	Kind         string `json:"kind" validate:"required,oneof=ruling legislation"`
}

type uploadOutcome struct {
	SourceID string                  `json:"file_id"`
	Filename string                  `json:"filename"`
	Result   *ingestion.IngestResult `json:"result,omitempty"`
	Error    string                  `json:"error,omitempty"`
}

// UploadDocuments stores every uploaded file and ingests it.
func (h *DocumentHandler) UploadDocuments(c *fiber.Ctx) error {
	form := uploadForm{
		Collection:   c.FormValue("collection"),
		CollectionID: c.FormValue("collection_id"),
		Kind:         c.FormValue("kind"),
	}
	if err := schema.Struct(&form); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	mf, err := c.MultipartForm()
	if err != nil || len(mf.File["files"]) == 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "At least one file is required",
		})
	}

	var outcomes []uploadOutcome
	var firstErr error
	succeeded := 0
	for _, fh := range mf.File["files"] {
		ref := domain.SourceReference{
			Collection:   form.Collection,
			CollectionID: form.CollectionID,
			SourceID:     uuid.NewString(),
			Filename:     filepath.Base(fh.Filename),
		}
		out := uploadOutcome{SourceID: ref.SourceID, Filename: ref.Filename}

		res, err := h.ingestUpload(c.UserContext(), ref, domain.DocumentKind(form.Kind), fh)
		if err != nil {
			logger.Error("Failed to ingest upload",
				zap.String("collection", ref.Collection),
				zap.String("filename", ref.Filename),
				zap.Error(err),
			)
			out.Error = err.Error()
			if firstErr == nil {
				firstErr = err
			}
		} else {
			out.Result = res
			succeeded++
		}
		outcomes = append(outcomes, out)
	}

	status := fiber.StatusOK
	if succeeded == 0 {
		status = errorStatus(firstErr)
	}
	return c.Status(status).JSON(fiber.Map{"files": outcomes})
}

func (h *DocumentHandler) ingestUpload(ctx context.Context, ref domain.SourceReference, kind domain.DocumentKind, fh *multipart.FileHeader) (*ingestion.IngestResult, error) {
	if _, err := loader.ForFilename(ref.Filename); err != nil {
		return nil, err
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if _, err := h.files.Save(ref, data); err != nil {
		return nil, fmt.Errorf("failed to store upload: %w", err)
	}

	return h.processor.Ingest(ctx, ref, kind)
}

type documentView struct {
	domain.SourceReference
	Kind         domain.DocumentKind      `json:"kind"`
	Jurisdiction string                   `json:"jurisdiction,omitempty"`
	Sections     []domain.DocumentSection `json:"sections,omitempty"`
	Ruling       *domain.RulingMetadata   `json:"ruling,omitempty"`
	Chunks       int                      `json:"chunks"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Neighbours   []neo4j.Neighbour        `json:"neighbours,omitempty"`
}

func viewOf(doc *models.Document) documentView {
	return documentView{
		SourceReference: doc.Ref(),
		Kind:            doc.Kind,
		Jurisdiction:    doc.Jurisdiction,
		Sections:        doc.Sections,
		Ruling:          doc.Ruling,
		Chunks:          doc.Chunks,
		UpdatedAt:       doc.UpdatedAt,
	}
}

func (h *DocumentHandler) GetDocument(c *fiber.Ctx) error {
	doc, err := h.docs.GetDocument(c.UserContext(), c.Params("collection"), c.Params("sourceID"))
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Document not available"})
	}

	view := viewOf(doc)
	if h.graph != nil && doc.Kind == domain.KindRuling {
		neighbours, err := h.graph.Neighbours(c.UserContext(), doc.Citation)
		if err != nil {
			logger.Warn("Failed to load citation graph", zap.String("citation", doc.Citation), zap.Error(err))
		}
		view.Neighbours = neighbours
	}

	return c.JSON(view)
}

func (h *DocumentHandler) ListDocuments(c *fiber.Ctx) error {
	docs, err := h.docs.ListDocuments(c.UserContext(), c.Params("collection"))
	if err != nil {
		logger.Error("Failed to list documents", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "Failed to list documents"})
	}

	views := make([]documentView, len(docs))
	for i := range docs {
		views[i] = viewOf(&docs[i])
	}
	return c.JSON(fiber.Map{"documents": views})
}

// resolve builds the source reference from the stored document, falling
// back to query parameters for sources that were never stored.
func (h *DocumentHandler) resolve(c *fiber.Ctx) (domain.SourceReference, error) {
	collection, sourceID := c.Params("collection"), c.Params("sourceID")

	doc, err := h.docs.GetDocument(c.UserContext(), collection, sourceID)
	if err == nil {
		return doc.Ref(), nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return domain.SourceReference{}, err
	}

	ref := domain.SourceReference{
		Collection:   collection,
		CollectionID: c.Query("collection_id"),
		SourceID:     sourceID,
		Filename:     c.Query("filename"),
	}
	if ref.CollectionID == "" || ref.Filename == "" {
		return ref, err
	}
	return ref, nil
}

func (h *DocumentHandler) DeleteDocument(c *fiber.Ctx) error {
	ref, err := h.resolve(c)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Failed to delete document"})
	}

	if err := h.processor.Delete(c.UserContext(), ref); err != nil {
		logger.Error("Failed to delete document", zap.String("source_id", ref.SourceID), zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Failed to delete document"})
	}

	return c.JSON(fiber.Map{"result": "success", "file_id": ref.SourceID})
}

// ReindexDocument replaces a document's sections and re-embeds them.
func (h *DocumentHandler) ReindexDocument(c *fiber.Ctx) error {
	var req ReindexRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}

	ref, err := h.resolve(c)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) || req.CollectionID == "" || req.Filename == "" {
			return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Document not available"})
		}
		ref.CollectionID, ref.Filename = req.CollectionID, req.Filename
	}

	res, err := h.processor.Reindex(c.UserContext(), ref, req.Document)
	if err != nil {
		logger.Error("Failed to reindex document", zap.String("source_id", ref.SourceID), zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Failed to reindex document"})
	}

	return c.JSON(fiber.Map{"result": "success", "document": res})
}

// RegenerateDocument re-runs ruling analysis for a stored source.
func (h *DocumentHandler) RegenerateDocument(c *fiber.Ctx) error {
	ref, err := h.resolve(c)
	if err != nil {
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Document not available"})
	}

	res, err := h.processor.Regenerate(c.UserContext(), ref)
	if err != nil {
		logger.Error("Failed to regenerate document", zap.String("source_id", ref.SourceID), zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{"error": "Failed to regenerate document"})
	}

	return c.JSON(fiber.Map{"result": "success", "document": res})
}
