package validation

import (
	"errors"
	"fmt"
	"strings"
)

// Error is a rejected input field. Handlers map it to 400 responses.
type Error struct {
	Field   string
	Message string
}

func (e *Error) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewError builds a field error.
func NewError(field, message string) *Error {
	return &Error{Field: field, Message: message}
}

// Errors collects several field errors from one input.
type Errors []*Error

func (e Errors) Error() string {
	parts := make([]string, 0, len(e))
	for _, item := range e {
		parts = append(parts, item.Error())
	}
	return strings.Join(parts, "; ")
}

// Fields returns the errors keyed by field, as rendered in problem responses.
func (e Errors) Fields() map[string]interface{} {
	out := make(map[string]interface{}, len(e))
	for _, item := range e {
		out[item.Field] = item.Message
	}
	return out
}

// IsValidationError reports whether err is, or wraps, a validation failure.
func IsValidationError(err error) bool {
	var single *Error
	var many Errors
	return errors.As(err, &single) || errors.As(err, &many)
}

// FieldErrors flattens err into field messages, or nil if it is not a
// validation failure.
func FieldErrors(err error) map[string]interface{} {
	var many Errors
	if errors.As(err, &many) {
		return many.Fields()
	}
	var single *Error
	if errors.As(err, &single) && single.Field != "" {
		return map[string]interface{}{single.Field: single.Message}
	}
	return nil
}
