// Package apperr defines the error taxonomy shared by the service layers.
package apperr

import (
	"errors"
	"strings"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// Planning failure kinds. Match them with errors.Is.
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrGeneration        = errors.New("generation failure")
	ErrGenerationTimeout = errors.New("generation timed out")
	ErrMalformedOutput   = errors.New("malformed model output")
	ErrSchemaViolation   = errors.New("schema validation failure")
)

// PlanError is a planning failure of a specific kind. Reasons lists the
// violated constraints for schema failures.
type PlanError struct {
	Kind    error
	Reasons []string
	Err     error
}

func (e *PlanError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Error())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Reasons) > 0 {
		b.WriteString(": ")
		b.WriteString(strings.Join(e.Reasons, "; "))
	}
	return b.String()
}

func (e *PlanError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// InvalidInput reports a request that never reached the pipeline.
func InvalidInput(msg string) error {
	return &PlanError{Kind: ErrInvalidInput, Err: errors.New(msg)}
}

// Generation wraps a failed call to the generation service.
func Generation(err error) error {
	return &PlanError{Kind: ErrGeneration, Err: err}
}

// GenerationTimeout wraps a generation call that ran past its deadline.
func GenerationTimeout(err error) error {
	return &PlanError{Kind: ErrGenerationTimeout, Err: err}
}

// MalformedOutput wraps a model response that is not parseable JSON.
func MalformedOutput(err error) error {
	return &PlanError{Kind: ErrMalformedOutput, Err: err}
}

// SchemaViolation reports parsed output that breaks the plan schema.
func SchemaViolation(reasons []string) error {
	return &PlanError{Kind: ErrSchemaViolation, Reasons: reasons}
}

// Reasons returns the violated constraints carried by err, if any.
func Reasons(err error) []string {
	var pe *PlanError
	if errors.As(err, &pe) {
		return pe.Reasons
	}
	return nil
}

// KindName returns a stable machine-readable name for the failure kind of err.
func KindName(err error) string {
	switch {
	case errors.Is(err, ErrInvalidInput):
		return "input"
	case errors.Is(err, ErrGenerationTimeout):
		return "generation_timeout"
	case errors.Is(err, ErrGeneration):
		return "generation"
	case errors.Is(err, ErrMalformedOutput):
		return "malformed_output"
	case errors.Is(err, ErrSchemaViolation):
		return "schema_violation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrConflict):
		return "conflict"
	default:
		return "internal"
	}
}
