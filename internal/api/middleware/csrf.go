package middleware

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/gorilla/csrf"
)

// CSRFHeader carries the token returned by GET /api/v1/auth/csrf.
const CSRFHeader = "X-CSRF-Token"

// CSRFProtection guards routes that accept the session cookie. It runs
// after RequireUser; callers that RequireUser identified by a bearer token
// skip the check, as browsers never attach those automatically. Requests
// with no resolved user are always checked.
//
// Clients fetch a token with GET /api/v1/auth/csrf and echo it in the
// X-CSRF-Token header on POST, PUT and DELETE.
func CSRFProtection(authKey []byte, secure bool, trustedOrigins []string, env string) func(http.Handler) http.Handler {
	opts := []csrf.Option{
		csrf.Secure(secure),
		csrf.Path("/"),
		csrf.HttpOnly(true),
		csrf.SameSite(csrf.SameSiteLaxMode),
		csrf.RequestHeader(CSRFHeader),
		csrf.ErrorHandler(csrfErrorHandler(env)),
	}
	if hosts := originHosts(trustedOrigins); len(hosts) > 0 {
		opts = append(opts, csrf.TrustedOrigins(hosts))
	}
	protect := csrf.Protect(authKey, opts...)

	return func(next http.Handler) http.Handler {
		protected := protect(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if User(r) != nil && !AuthenticatedByCookie(r) {
				next.ServeHTTP(w, r)
				return
			}
			if !secure {
				r = csrf.PlaintextHTTPRequest(r)
			}
			protected.ServeHTTP(w, r)
		})
	}
}

func csrfErrorHandler(env string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reason := csrf.FailureReason(r)
		if reason == nil {
			reason = errors.New("csrf token invalid")
		}
		problem.Write(w, r, http.StatusForbidden, problem.TypeCSRF, "CSRF token validation failed", reason, env)
	})
}

// CSRFToken returns the masked token for the current request.
func CSRFToken(r *http.Request) string {
	return csrf.Token(r)
}

// originHosts reduces configured origins such as https://app.example.com to
// the host form the csrf package compares against.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "" {
			continue
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			hosts = append(hosts, parsed.Host)
			continue
		}
		hosts = append(hosts, origin)
	}
	return hosts
}
