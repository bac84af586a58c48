package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports user-correctable bad input with per-field detail.
// It surfaces to callers as a 400 with a structured body.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError creates a field-level validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ValidationErrors aggregates field errors from a single validation pass.
type ValidationErrors []*ValidationError

func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, ve := range e {
		msgs[i] = ve.Error()
	}
	return strings.Join(msgs, "; ")
}

// Fields returns the per-field messages keyed by field name.
func (e ValidationErrors) Fields() map[string][]string {
	fields := make(map[string][]string, len(e))
	for _, ve := range e {
		fields[ve.Field] = append(fields[ve.Field], ve.Message)
	}
	return fields
}

// ConflictError indicates a uniqueness violation that the idempotent retry
// path could not resolve. This is a storage contract breach, not user error.
type ConflictError struct {
	Resource string
	Detail   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: %s", e.Resource, e.Detail)
}

// AlreadyResolvedError indicates a dispatch token that already reached a
// terminal state was resolved again while overwriting is disabled.
type AlreadyResolvedError struct {
	Token string
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("dispatch token %s already resolved", e.Token)
}

// InvariantError indicates a programming error such as reusing a correlation
// token at schedule time. Never user-facing.
type InvariantError struct {
	Detail string
}

func (e *InvariantError) Error() string {
	return "invariant violated: " + e.Detail
}
