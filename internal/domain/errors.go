package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaViolation means oracle output did not parse into the
	// shape the caller asked for.
	ErrSchemaViolation    = errors.New("oracle response violates schema")
	ErrUnknownCollection  = errors.New("unknown collection")
	ErrUnsupportedFormat  = errors.New("unsupported document format")
	ErrEmptyDocument      = errors.New("document has no text")
	ErrNotFound           = errors.New("not found")
	ErrIncompleteMetadata = errors.New("incomplete document metadata")
)

// SchemaError records which pipeline stage received a malformed response.
type SchemaError struct {
	Stage string
	Err   error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Stage, ErrSchemaViolation, e.Err)
}

func (e *SchemaError) Unwrap() []error {
	return []error{ErrSchemaViolation, e.Err}
}

func NewSchemaError(stage string, err error) error {
	return &SchemaError{Stage: stage, Err: err}
}
