package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/middleware/validation"
)

type QueryRequest struct {
	Prompt  string        `json:"prompt" validate:"required"`
	Mode    string        `json:"mode" validate:"omitempty,oneof=single multi"`
	History []domain.Turn `json:"history" validate:"max=50"`
	K       int           `json:"k" validate:"omitempty,min=1,max=50"`
	Scope   int           `json:"scope" validate:"omitempty,min=1,max=20"`
}

func (r *QueryRequest) Sanitize() { r.Prompt = validation.Sanitize(r.Prompt) }

type PromptRequest struct {
	Prompt  string        `json:"prompt" validate:"required"`
	History []domain.Turn `json:"history" validate:"max=50"`
}

func (r *PromptRequest) Sanitize() { r.Prompt = validation.Sanitize(r.Prompt) }

type SearchRequest struct {
	Collection string `json:"collection" validate:"required,collection"`
	Query      string `json:"query" validate:"required"`
}

func (r *SearchRequest) Sanitize() { r.Query = validation.Sanitize(r.Query) }

type ReindexRequest struct {
	CollectionID string                     `json:"collection_id"`
	Filename     string                     `json:"filename"`
	Document     domain.LegislationDocument `json:"document"`
}

// errorStatus maps domain failures onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrUnknownCollection):
		return fiber.StatusNotFound
	case errors.Is(err, domain.ErrUnsupportedFormat):
		return fiber.StatusUnsupportedMediaType
	case errors.Is(err, domain.ErrEmptyDocument), errors.Is(err, domain.ErrIncompleteMetadata):
		return fiber.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrSchemaViolation):
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
