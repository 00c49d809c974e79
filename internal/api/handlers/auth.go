package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/validation"
)

// SessionHandler exchanges an identity token from the auth provider for an
// HttpOnly session cookie, so browser clients never keep the token in script
// reachable storage.
type SessionHandler struct {
	Resolver middleware.UserResolver
	Session  config.SessionConfig
	Audit    *audit.Logger
	Env      string
}

func NewSessionHandler(resolver middleware.UserResolver, session config.SessionConfig, auditLogger *audit.Logger, env string) *SessionHandler {
	if auditLogger == nil {
		auditLogger = audit.Nop()
	}
	return &SessionHandler{Resolver: resolver, Session: session, Audit: auditLogger, Env: env}
}

type createSessionRequest struct {
	AccessToken string `json:"accessToken"`
}

type csrfResponse struct {
	CSRFToken string `json:"csrfToken"`
}

func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		problem.FromError(w, r, err, h.Env)
		return
	}
	token := strings.TrimSpace(req.AccessToken)
	if token == "" {
		problem.FromError(w, r, validation.NewError("accessToken", "is required"), h.Env)
		return
	}

	user, err := h.Resolver.Resolve(r.Context(), token)
	if err != nil {
		h.Audit.LogFailure(r.Context(), "session.create", "", "user", "", map[string]string{"reason": err.Error()})
		problem.FromError(w, r, err, h.Env)
		return
	}

	http.SetCookie(w, h.cookie(token, int(h.Session.MaxAge/time.Second)))
	h.Audit.LogSuccess(r.Context(), "session.create", user.ID, "user", user.ID, nil)
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}

// Delete clears the session cookie. It succeeds whether or not a session
// existed.
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, h.cookie("", -1))
	w.WriteHeader(http.StatusNoContent)
}

// CSRF returns the token cookie-authenticated clients must echo in the
// X-CSRF-Token header on unsafe requests.
func (h *SessionHandler) CSRF(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, csrfResponse{CSRFToken: middleware.CSRFToken(r)})
}

func (h *SessionHandler) cookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     h.Session.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.Session.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	}
}
