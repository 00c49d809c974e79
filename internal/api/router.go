package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Togather-Foundation/rsvp/internal/api/handlers"
	"github.com/Togather-Foundation/rsvp/internal/api/middleware"
	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/events"
	"github.com/Togather-Foundation/rsvp/internal/domain/rsvps"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/Togather-Foundation/rsvp/internal/metrics"
	"github.com/Togather-Foundation/rsvp/internal/storage"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Dependencies are the collaborators the HTTP surface is built from. Pool
// is only used by the health endpoints and may be nil in tests.
type Dependencies struct {
	Config     config.Config
	Logger     zerolog.Logger
	Repository storage.Repository
	Verifier   auth.IdentityVerifier
	Pool       *pgxpool.Pool
	Audit      *audit.Logger
	Build      BuildInfo
}

// Router is the root handler. Close releases the rate limiter's cleanup
// goroutine and its Redis connection, if any.
type Router struct {
	http.Handler
	limiter *middleware.RateLimiter
	redis   *redis.Client
}

func (r *Router) Close() {
	r.limiter.Stop()
	if r.redis != nil {
		_ = r.redis.Close()
	}
}

func NewRouter(deps Dependencies) (*Router, error) {
	if deps.Repository == nil {
		return nil, errors.New("router: repository is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("router: identity verifier is required")
	}
	if deps.Audit == nil {
		deps.Audit = audit.NewLogger(deps.Logger)
	}
	cfg := deps.Config
	env := cfg.Environment
	logger := deps.Logger

	csrfKey, err := auth.DeriveCSRFKey([]byte(cfg.Auth.JWTSecret))
	if err != nil {
		return nil, fmt.Errorf("router: derive csrf key: %w", err)
	}

	resolver := users.NewResolver(deps.Verifier, deps.Repository.Users(), logger)
	eventService := events.NewService(deps.Repository.Events(), deps.Audit, logger)
	rsvpService := rsvps.NewService(deps.Repository.RSVPs(), eventService, deps.Audit, logger)

	sessionHandler := handlers.NewSessionHandler(resolver, cfg.Session, deps.Audit, env)
	usersHandler := handlers.NewUsersHandler(env)
	eventsHandler := handlers.NewEventsHandler(eventService, env)
	rsvpsHandler := handlers.NewRSVPsHandler(rsvpService, env)
	health := handlers.NewHealthChecker(deps.Repository, deps.Pool, deps.Build.Version, deps.Build.GitCommit)

	limiter, redisClient, err := newRateLimiter(cfg.RateLimit, env)
	if err != nil {
		return nil, err
	}
	requireUser := middleware.RequireUser(resolver, cfg.Session.CookieName, env)
	csrf := middleware.CSRFProtection(csrfKey, cfg.Session.CookieSecure, cfg.CORS.AllowedOrigins, env)

	public := func(h http.HandlerFunc) http.Handler {
		return limiter.Limit(middleware.TierPublic)(h)
	}
	authenticated := func(h http.HandlerFunc) http.Handler {
		return requireUser(limiter.Limit(middleware.TierAuthenticated)(csrf(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", handlers.Healthz())
	mux.Handle("GET /readyz", health.Readyz())
	mux.Handle("GET /health", health.Health())
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.Handle("POST /api/v1/auth/session", limiter.Limit(middleware.TierSignIn)(http.HandlerFunc(sessionHandler.Create)))
	mux.Handle("DELETE /api/v1/auth/session", public(sessionHandler.Delete))
	mux.Handle("GET /api/v1/auth/csrf", authenticated(sessionHandler.CSRF))

	mux.Handle("GET /api/v1/users/profile", authenticated(usersHandler.Profile))

	mux.Handle("GET /api/v1/events", authenticated(eventsHandler.List))
	mux.Handle("POST /api/v1/events", authenticated(eventsHandler.Create))
	mux.Handle("GET /api/v1/events/{id}", public(eventsHandler.Get))
	mux.Handle("PUT /api/v1/events/{id}", authenticated(eventsHandler.Update))
	mux.Handle("DELETE /api/v1/events/{id}", authenticated(eventsHandler.Delete))
	mux.Handle("PUT /api/v1/events/{id}/active", authenticated(eventsHandler.SetActive))
	mux.Handle("GET /api/v1/public/events/{publicUrl}", public(eventsHandler.GetPublic))

	mux.Handle("GET /api/v1/events/{id}/rsvps", authenticated(rsvpsHandler.List))
	mux.Handle("POST /api/v1/events/{id}/rsvps", public(rsvpsHandler.Create))
	mux.Handle("GET /api/v1/events/{id}/rsvps/export", authenticated(rsvpsHandler.Export))

	var handler http.Handler = mux
	handler = middleware.RequestSize(middleware.DefaultMaxBodySize, env)(handler)
	handler = middleware.CORS(cfg.CORS, logger)(handler)
	handler = middleware.SecurityHeaders(env == "production")(handler)
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(logger)(handler)

	return &Router{Handler: handler, limiter: limiter, redis: redisClient}, nil
}

// newRateLimiter keeps budgets in memory unless a Redis URL is configured.
func newRateLimiter(cfg config.RateLimitConfig, env string) (*middleware.RateLimiter, *redis.Client, error) {
	if cfg.RedisURL == "" {
		return middleware.NewRateLimiter(cfg, env), nil, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("router: parse RATE_LIMIT_REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	return middleware.NewRedisRateLimiter(cfg, client, env), client, nil
}
