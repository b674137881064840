package template

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateNotFound is returned when no template exists for the id.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrUnsupportedDialect is returned when a template declares a dialect no
	// registered engine understands. This is a configuration error, never a
	// retryable one.
	ErrUnsupportedDialect = errors.New("unsupported template dialect")

	// ErrNoContent is returned when a template has no locale content at all.
	ErrNoContent = errors.New("template has no content")

	// ErrSourceRequired indicates a nil template source.
	ErrSourceRequired = errors.New("template source is required")
)

// FieldError describes one variable validation failure.
type FieldError struct {
	Name   string `json:"name"`
	Reason string `json:"reason"`
}

func (e FieldError) String() string {
	return e.Name + ": " + e.Reason
}

// ValidationError aggregates every variable problem found during a render so
// callers can fix them in one pass instead of replaying the render per field.
type ValidationError struct {
	TemplateID string
	Fields     []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return fmt.Sprintf("template %q variable validation failed: %s", e.TemplateID, strings.Join(parts, "; "))
}

// Missing returns the names of required variables that were absent.
func (e *ValidationError) Missing() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Reason == reasonMissing {
			names = append(names, f.Name)
		}
	}
	return names
}

const (
	reasonMissing   = "required variable missing"
	reasonWrongType = "wrong type"
)
