package problem

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/validation"
	"github.com/rs/zerolog"
)

const contentType = "application/problem+json"

const typeBase = "https://rsvp.togather.foundation/problems/"

// Problem type URIs.
const (
	TypeValidation      = typeBase + "validation-error"
	TypeUnauthorized    = typeBase + "unauthorized"
	TypeForbidden       = typeBase + "forbidden"
	TypeNotFound        = typeBase + "not-found"
	TypeConflict        = typeBase + "conflict"
	TypePayloadTooLarge = typeBase + "payload-too-large"
	TypeRateLimited     = typeBase + "rate-limited"
	TypeCSRF            = typeBase + "csrf-failure"
	TypeServerError     = typeBase + "server-error"
)

type ProblemDetails struct {
	Type     string                 `json:"type"`
	Title    string                 `json:"title"`
	Status   int                    `json:"status"`
	Detail   string                 `json:"detail,omitempty"`
	Instance string                 `json:"instance,omitempty"`
	Errors   map[string]interface{} `json:"errors,omitempty"`
}

type Option func(*ProblemDetails)

func WithDetail(detail string) Option {
	return func(p *ProblemDetails) {
		p.Detail = detail
	}
}

func WithInstance(instance string) Option {
	return func(p *ProblemDetails) {
		p.Instance = instance
	}
}

func WithErrors(errs map[string]interface{}) Option {
	return func(p *ProblemDetails) {
		p.Errors = errs
	}
}

func Write(w http.ResponseWriter, r *http.Request, status int, typ, title string, err error, env string, opts ...Option) {
	problem := ProblemDetails{
		Type:   typ,
		Title:  title,
		Status: status,
	}

	for _, opt := range opts {
		opt(&problem)
	}

	if problem.Detail == "" && err != nil {
		if env == "development" || env == "test" {
			problem.Detail = err.Error()
		} else {
			problem.Detail = http.StatusText(status)
		}
	}

	if problem.Instance == "" && r != nil {
		problem.Instance = r.URL.Path
	}

	if err != nil && r != nil {
		logger := zerolog.Ctx(r.Context())
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		}
		if event != nil {
			event.
				Err(err).
				Int("status", status).
				Str("type", typ).
				Str("path", r.URL.Path).
				Str("method", r.Method).
				Msg(title)
		}
	}

	WriteProblem(w, problem)
}

// FromError maps a domain error onto its HTTP status. Validation and
// conflict messages are written for the client in every environment; any
// unrecognised error is a 500 whose detail is hidden outside development.
func FromError(w http.ResponseWriter, r *http.Request, err error, env string) {
	var maxBytes *http.MaxBytesError
	switch {
	case errors.Is(err, access.ErrUnauthenticated):
		Write(w, r, http.StatusUnauthorized, TypeUnauthorized, "Unauthorized", err, env)
	case errors.Is(err, access.ErrForbidden):
		Write(w, r, http.StatusForbidden, TypeForbidden, "Forbidden", err, env)
	case errors.Is(err, events.ErrNotFound):
		Write(w, r, http.StatusNotFound, TypeNotFound, "Not found", err, env, WithDetail(events.ErrNotFound.Error()))
	case errors.Is(err, users.ErrNotFound):
		Write(w, r, http.StatusNotFound, TypeNotFound, "Not found", err, env, WithDetail(users.ErrNotFound.Error()))
	case validation.IsValidationError(err):
		Write(w, r, http.StatusBadRequest, TypeValidation, "Invalid request", err, env,
			WithDetail(err.Error()), WithErrors(validation.FieldErrors(err)))
	case errors.Is(err, rsvps.ErrConflict):
		Write(w, r, http.StatusConflict, TypeConflict, "Conflict", err, env, WithDetail(rsvps.ErrConflict.Error()))
	case errors.Is(err, users.ErrEmailTaken):
		Write(w, r, http.StatusConflict, TypeConflict, "Conflict", err, env, WithDetail(users.ErrEmailTaken.Error()))
	case errors.As(err, &maxBytes):
		Write(w, r, http.StatusRequestEntityTooLarge, TypePayloadTooLarge, "Request body too large", err, env,
			WithDetail(fmt.Sprintf("request body must not exceed %d bytes", maxBytes.Limit)))
	default:
		Write(w, r, http.StatusInternalServerError, TypeServerError, "Server error", err, env)
	}
}

func WriteProblem(w http.ResponseWriter, problem ProblemDetails) {
	payload, err := json.Marshal(problem)
	if err != nil {
		fallback := fmt.Sprintf("{\"type\":\"about:blank\",\"title\":\"%s\",\"status\":500}", http.StatusText(http.StatusInternalServerError))
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(fallback))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(problem.Status)
	_, _ = w.Write(payload)
}
