package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/validation"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// decodeJSON reads a single JSON object from the request body. Syntax and
// type errors become validation errors; an oversized body is returned as
// the *http.MaxBytesError produced by the request size limit.
func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return validation.NewError("body", "request body is required")
	}
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		var maxBytes *http.MaxBytesError
		var typeErr *json.UnmarshalTypeError
		switch {
		case errors.As(err, &maxBytes):
			return err
		case errors.Is(err, io.EOF):
			return validation.NewError("body", "request body is required")
		case errors.As(err, &typeErr) && typeErr.Field != "":
			return validation.NewError(typeErr.Field, "has the wrong type")
		default:
			return validation.NewError("body", "request body must be valid JSON")
		}
	}
	if decoder.More() {
		return validation.NewError("body", "request body must contain a single JSON object")
	}
	return nil
}

func pathParam(r *http.Request, key string) string {
	if r == nil {
		return ""
	}
	return strings.TrimSpace(r.PathValue(key))
}
