package query

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/legalrag/backend/internal/domain"
	"github.com/legalrag/backend/internal/schema"
	"github.com/legalrag/backend/pkg/logger"
)

const (
	ResultComplete   = "complete"
	ResultIncomplete = "incomplete"
)

// Validation is the gate verdict for a prompt.
type Validation struct {
	Result  string `json:"result" validate:"required,oneof=complete incomplete"`
	Message string `json:"message" validate:"required_if=Result incomplete"`
}

func (v Validation) Complete() bool {
	return v.Result == ResultComplete
}

// Validate asks the oracle whether prompt, in the context of history, is
// in scope and specific enough to research. Unparseable verdicts are
// errors, never an implicit pass.
func (e *Engine) Validate(ctx context.Context, prompt string, history []domain.Turn) (Validation, error) {
	raw, err := e.oracle.CompleteJSON(ctx, domain.Conversation(validatorPolicy, history, prompt), validateMaxTokens)
	if err != nil {
		return Validation{}, fmt.Errorf("validate: %w", err)
	}

	var v Validation
	if err := schema.Decode("validate", raw, &v); err != nil {
		return Validation{}, err
	}

	logger.Debug("Prompt validated", zap.String("result", v.Result))
	return v, nil
}
