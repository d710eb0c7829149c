package model

import (
	"fmt"
	"strings"
)

// ValidationError holds a list of field-level validation errors.
type ValidationError struct {
	Errors []FieldError
}

// FieldError represents a single validation failure on a named field.
type FieldError struct {
	Field   string
	Message string
}

// Error formats the validation error as a semicolon-separated list of field messages.
func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Errors))
	for i, fe := range e.Errors {
		parts[i] = fe.Field + ": " + fe.Message
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// HasErrors reports whether the validation error contains any field errors.
func (e *ValidationError) HasErrors() bool {
	return len(e.Errors) > 0
}

// ValidateSession checks a new Session before it is stored.
func ValidateSession(s *Session) error {
	var ve ValidationError

	if strings.TrimSpace(s.ID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "id", Message: "is required"})
	}
	if strings.TrimSpace(s.PresenterUID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "presenterUid", Message: "is required"})
	}
	if s.SlideIndex < 0 {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "slideIndex",
			Message: fmt.Sprintf("must not be negative, got %d", s.SlideIndex),
		})
	}
	if s.Command != "" && !s.Command.IsValid() {
		ve.Errors = append(ve.Errors, FieldError{
			Field:   "command",
			Message: fmt.Sprintf("invalid value %q", s.Command),
		})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}

// ValidateActivePointer checks a pointer before it overwrites the current one.
func ValidateActivePointer(p *ActivePointer) error {
	var ve ValidationError

	if strings.TrimSpace(p.SessionID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "sessionId", Message: "is required"})
	}
	if strings.TrimSpace(p.PresenterUID) == "" {
		ve.Errors = append(ve.Errors, FieldError{Field: "presenterUid", Message: "is required"})
	}

	if ve.HasErrors() {
		return &ve
	}
	return nil
}
