package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/domain/access"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/rs/zerolog"
)

// UserResolver turns an identity token into the local user record.
type UserResolver interface {
	Resolve(ctx context.Context, token string) (*users.User, error)
}

type contextKeyAuth string

const (
	userKey       contextKeyAuth = "user"
	cookieAuthKey contextKeyAuth = "cookieAuth"
)

// RequireUser resolves the caller from an "Authorization: Bearer" header,
// falling back to the session cookie. Requests without a valid identity
// are rejected with 401 before reaching the handler.
func RequireUser(resolver UserResolver, cookieName string, env string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if resolver == nil {
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", access.ErrUnauthenticated, env)
				return
			}

			token, viaCookie, err := requestToken(r, cookieName)
			if err != nil {
				metrics.IdentityResolutions.WithLabelValues("missing").Inc()
				problem.Write(w, r, http.StatusUnauthorized, problem.TypeUnauthorized, "Unauthorized", err, env)
				return
			}

			user, err := resolver.Resolve(r.Context(), token)
			if err != nil {
				outcome := "error"
				switch {
				case errors.Is(err, access.ErrUnauthenticated):
					outcome = "invalid"
				case errors.Is(err, users.ErrEmailTaken):
					outcome = "conflict"
				}
				metrics.IdentityResolutions.WithLabelValues(outcome).Inc()
				problem.FromError(w, r, err, env)
				return
			}
			metrics.IdentityResolutions.WithLabelValues("resolved").Inc()

			ctx := ContextWithUser(r.Context(), user)
			ctx = context.WithValue(ctx, cookieAuthKey, viaCookie)
			logger := zerolog.Ctx(ctx).With().Str("user_id", user.ID).Logger()
			ctx = logger.WithContext(ctx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// requestToken prefers the Authorization header. A malformed header is an
// error even when a cookie is also present.
func requestToken(r *http.Request, cookieName string) (token string, viaCookie bool, err error) {
	if header := r.Header.Get("Authorization"); strings.TrimSpace(header) != "" {
		bearer, err := auth.TokenFromHeader(header)
		if err != nil {
			return "", false, err
		}
		return bearer, false, nil
	}
	if cookieName != "" {
		if cookie, err := r.Cookie(cookieName); err == nil && strings.TrimSpace(cookie.Value) != "" {
			return strings.TrimSpace(cookie.Value), true, nil
		}
	}
	return "", false, auth.ErrMissingToken
}

func ContextWithUser(ctx context.Context, user *users.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// User returns the resolved caller, or nil on public routes.
func User(r *http.Request) *users.User {
	if r == nil {
		return nil
	}
	if user, ok := r.Context().Value(userKey).(*users.User); ok {
		return user
	}
	return nil
}

// Actor returns the authorization view of the caller; the zero Actor when
// the request is anonymous.
func Actor(r *http.Request) access.Actor {
	if user := User(r); user != nil {
		return user.Actor()
	}
	return access.Actor{}
}

// AuthenticatedByCookie reports whether the caller was identified by the
// session cookie rather than a bearer token.
func AuthenticatedByCookie(r *http.Request) bool {
	if r == nil {
		return false
	}
	viaCookie, _ := r.Context().Value(cookieAuthKey).(bool)
	return viaCookie
}
