package handlers

import (
	"context"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/middleware/validation"
	"github.com/legalrag/backend/internal/query"
	"github.com/legalrag/backend/internal/storage/models"
	"github.com/legalrag/backend/pkg/logger"
)

// QueryService is the research engine as seen by the HTTP layer.
type QueryService interface {
	Ask(ctx context.Context, req query.Request) (query.Result, []domain.SourceReference, error)
	Validate(ctx context.Context, prompt string, history []domain.Turn) (query.Validation, error)
	Naming(ctx context.Context, prompt string) (string, error)
	Collections(ctx context.Context) []string
}

type HistoryReader interface {
	GetQueryHistory(ctx context.Context, limit int) ([]models.QueryRecord, error)
}

type QueryHandler struct {
	engine  QueryService
	index   domain.SimilarityIndex
	history HistoryReader
}

func NewQueryHandler(engine QueryService, index domain.SimilarityIndex, history HistoryReader) *QueryHandler {
	return &QueryHandler{
		engine:  engine,
		index:   index,
		history: history,
	}
}

// HandleQuery answers a research question. Failures still produce a 200
// with the apology answer so clients always render a StructuredAnswer.
func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req QueryRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}

	mode := query.ModeSingle
	if req.Mode == string(query.ModeMulti) {
		mode = query.ModeMulti
	}

	res, _, err := h.engine.Ask(c.UserContext(), query.Request{
		Mode:    mode,
		Prompt:  req.Prompt,
		History: req.History,
		K:       req.K,
		Scope:   req.Scope,
	})
	if err != nil {
		logger.Error("Failed to process query", zap.String("query_id", res.ID), zap.Error(err))
	}

	return c.JSON(res)
}

func (h *QueryHandler) HandleValidate(c *fiber.Ctx) error {
	var req PromptRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}

	verdict, err := h.engine.Validate(c.UserContext(), req.Prompt, req.History)
	if err != nil {
		logger.Error("Failed to validate prompt", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to validate prompt",
		})
	}

	return c.JSON(verdict)
}

func (h *QueryHandler) HandleNaming(c *fiber.Ctx) error {
	var req PromptRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}

	name, err := h.engine.Naming(c.UserContext(), req.Prompt)
	if err != nil {
		logger.Error("Failed to name conversation", zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Failed to name conversation",
		})
	}

	return c.JSON(fiber.Map{"name": name})
}

func (h *QueryHandler) ListCollections(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"collections": h.engine.Collections(c.UserContext()),
	})
}

// RawSearch returns the top ten index matches for one collection.
func (h *QueryHandler) RawSearch(c *fiber.Ctx) error {
	var req SearchRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}

	matches, err := h.index.Search(c.UserContext(), req.Collection, req.Query, 10)
	if err != nil {
		logger.Error("Raw search failed", zap.String("collection", req.Collection), zap.Error(err))
		return c.Status(errorStatus(err)).JSON(fiber.Map{
			"error": "Search failed",
		})
	}
	if matches == nil {
		matches = []domain.Match{}
	}

	return c.JSON(fiber.Map{"results": matches})
}

func (h *QueryHandler) GetQueryHistory(c *fiber.Ctx) error {
	if h.history == nil {
		return c.JSON(fiber.Map{"history": []models.QueryRecord{}})
	}

	limit, err := strconv.Atoi(c.Query("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be between 1 and 500",
		})
	}

	records, err := h.history.GetQueryHistory(c.UserContext(), limit)
	if err != nil {
		logger.Error("Failed to load query history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load query history",
		})
	}
	if records == nil {
		records = []models.QueryRecord{}
	}

	return c.JSON(fiber.Map{"history": records})
}
