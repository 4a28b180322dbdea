// Package schema validates structs with go-playground/validator and
// decodes model JSON into validated structs.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/legalrag/backend/internal/domain"
)

var collectionName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,254}$`)

var validate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})

	// collection names double as index collection identifiers
	_ = v.RegisterValidation("collection", func(fl validator.FieldLevel) bool {
		return collectionName.MatchString(fl.Field().String())
	})

	return v
}

// ValidationError maps json field names to messages.
type ValidationError struct {
	Errors map[string]string `json:"errors"`
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Errors))
	for f := range e.Errors {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	msgs := make([]string, len(fields))
	for i, f := range fields {
		msgs[i] = e.Errors[f]
	}
	return "validation failed: " + strings.Join(msgs, ", ")
}

func newValidationError(errs validator.ValidationErrors) *ValidationError {
	out := make(map[string]string, len(errs))
	for _, err := range errs {
		field := err.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}
		switch err.Tag() {
		case "required":
			out[field] = field + " is required"
		case "required_if":
			out[field] = fmt.Sprintf("%s is required when %s", field, strings.ToLower(strings.Replace(err.Param(), " ", " is ", 1)))
		case "oneof":
			out[field] = fmt.Sprintf("%s must be one of [%s]", field, err.Param())
		case "min":
			out[field] = fmt.Sprintf("%s must have at least %s elements or characters", field, err.Param())
		case "max":
			out[field] = fmt.Sprintf("%s must have at most %s elements or characters", field, err.Param())
		case "collection":
			out[field] = field + " must be a valid collection name"
		default:
			out[field] = field + " is invalid"
		}
	}
	return &ValidationError{Errors: out}
}

// Struct validates v against its validate tags.
func Struct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return newValidationError(verrs)
	}
	return err
}

// Decode parses raw model output into v and validates it. Any failure is
// a schema violation attributed to stage.
func Decode(stage, raw string, v any) error {
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return domain.NewSchemaError(stage, err)
	}
	if err := Struct(v); err != nil {
		return domain.NewSchemaError(stage, err)
	}
	return nil
}
