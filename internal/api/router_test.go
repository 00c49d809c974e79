package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/audit"
	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/storage/postgres"
	"github.com/Togather-Foundation/rsvp/internal/testauth"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

const testSecret = "router-test-secret-0123456789abcdef"

var (
	dbOnce    sync.Once
	dbURL     string
	dbPool    *pgxpool.Pool
	dbInitErr error
)

func testConfig() config.Config {
	return config.Config{
		Environment: "test",
		Auth:        config.AuthConfig{JWTSecret: testSecret, JWTExpiry: time.Hour},
		Session: config.SessionConfig{
			CookieName: "rsvp_session",
			MaxAge:     time.Hour,
		},
		CORS: config.CORSConfig{AllowAllOrigins: true},
	}
}

func projectRoot() string {
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(file), "..", ".."))
}

// setupDatabase starts one migrated PostgreSQL container for the package
// and empties its tables for every test.
func setupDatabase(t *testing.T) (*pgxpool.Pool, *postgres.Repository) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping database test in short mode")
	}

	dbOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		container, err := tcpostgres.Run(ctx,
			"postgres:16-alpine",
			tcpostgres.WithDatabase("rsvp"),
			tcpostgres.WithUsername("rsvp"),
			tcpostgres.WithPassword("rsvp_dev"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
			testcontainers.WithReuseByName("rsvp-api-db"),
		)
		if err != nil {
			dbInitErr = err
			return
		}
		dbURL, dbInitErr = container.ConnectionString(ctx, "sslmode=disable")
		if dbInitErr != nil {
			return
		}
		if dbInitErr = postgres.MigrateUp(dbURL, filepath.Join(projectRoot(), postgres.DefaultMigrationsPath)); dbInitErr != nil {
			return
		}
		dbPool, dbInitErr = pgxpool.New(ctx, dbURL)
	})
	require.NoError(t, dbInitErr)

	_, err := dbPool.Exec(context.Background(), `TRUNCATE TABLE rsvps, events, users CASCADE`)
	require.NoError(t, err)

	repo, err := postgres.NewRepository(dbPool)
	require.NoError(t, err)
	return dbPool, repo
}

type testServer struct {
	*httptest.Server
	tokens *testauth.Authenticator
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	pool, repo := setupDatabase(t)
	cfg := testConfig()
	verifier := auth.NewJWTVerifier(cfg.Auth.JWTSecret, "", "", time.Hour)

	router, err := NewRouter(Dependencies{
		Config:     cfg,
		Logger:     zerolog.Nop(),
		Repository: repo,
		Verifier:   verifier,
		Pool:       pool,
		Audit:      audit.Nop(),
		Build:      BuildInfo{Version: "test"},
	})
	require.NoError(t, err)
	t.Cleanup(router.Close)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return &testServer{Server: server, tokens: testauth.New(testauth.Config{Secret: cfg.Auth.JWTSecret})}
}

func (s *testServer) token(t *testing.T, subject, email, name string) string {
	t.Helper()
	token, err := s.tokens.Token(subject, email, name)
	require.NoError(t, err)
	return token
}

func (s *testServer) call(t *testing.T, client *http.Client, method, path, token, body string) (*http.Response, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.URL+path, reader)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if client == nil {
		client = s.Client()
	}
	resp, err := client.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(data, &out), string(data))
	return out
}

type eventBody struct {
	ID        string `json:"id"`
	PublicURL string `json:"publicUrl"`
	RSVPCount int    `json:"rsvpCount"`
	CreatedBy string `json:"createdBy"`
}

func TestRouter_OwnershipScenario(t *testing.T) {
	srv := newTestServer(t)
	ownerA := srv.token(t, "user-a", "a@example.com", "Alice")
	userB := srv.token(t, "user-b", "b@example.com", "Bruno")

	resp, data := srv.call(t, nil, http.MethodPost, "/api/v1/events", ownerA,
		`{"title":"Launch","location":"Hall A","dateTime":"2030-06-01T18:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))
	event := decode[eventBody](t, data)
	require.NotEmpty(t, event.PublicURL)
	require.Equal(t, 0, event.RSVPCount)
	require.Equal(t, "user-a", event.CreatedBy)

	resp, data = srv.call(t, nil, http.MethodPost, "/api/v1/events/"+event.ID+"/rsvps", "",
		`{"name":"Bob","email":"bob@x.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(data))

	resp, data = srv.call(t, nil, http.MethodGet, "/api/v1/public/events/"+event.PublicURL, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, decode[eventBody](t, data).RSVPCount)
	require.NotContains(t, string(data), "a@example.com")

	resp, _ = srv.call(t, nil, http.MethodPost, "/api/v1/events/"+event.ID+"/rsvps", "",
		`{"name":"Bob again","email":"bob@x.com"}`)
	require.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, data = srv.call(t, nil, http.MethodGet, "/api/v1/events/"+event.ID, "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, 1, decode[eventBody](t, data).RSVPCount)

	resp, _ = srv.call(t, nil, http.MethodPut, "/api/v1/events/"+event.ID, userB, `{"title":"Mine now"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, _ = srv.call(t, nil, http.MethodGet, "/api/v1/events/"+event.ID+"/rsvps/export", userB, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp, data = srv.call(t, nil, http.MethodGet, "/api/v1/events/"+event.ID+"/rsvps/export", ownerA, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(data), "bob@x.com")

	resp, data = srv.call(t, nil, http.MethodDelete, "/api/v1/events/"+event.ID, ownerA, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"message":"Event deleted successfully"}`, string(data))

	resp, _ = srv.call(t, nil, http.MethodGet, "/api/v1/events/"+event.ID, "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_AdminOverride(t *testing.T) {
	srv := newTestServer(t)
	owner := srv.token(t, "user-a", "a@example.com", "Alice")
	admin := srv.token(t, "user-admin", "admin@example.com", "Ada")

	// First sight creates the admin as an event owner; promote it directly.
	resp, _ := srv.call(t, nil, http.MethodGet, "/api/v1/users/profile", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	_, err := dbPool.Exec(context.Background(), `UPDATE users SET role = 'ADMIN' WHERE id = 'user-admin'`)
	require.NoError(t, err)

	resp, data := srv.call(t, nil, http.MethodPost, "/api/v1/events", owner, `{"title":"Launch","dateTime":"2030-06-01T18:00:00Z"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	event := decode[eventBody](t, data)

	resp, data = srv.call(t, nil, http.MethodGet, "/api/v1/events", admin, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, decode[[]eventBody](t, data), 1)

	resp, _ = srv.call(t, nil, http.MethodPut, "/api/v1/events/"+event.ID+"/active", admin, `{"isActive":false}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = srv.call(t, nil, http.MethodGet, "/api/v1/public/events/"+event.PublicURL, "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRouter_Unauthenticated(t *testing.T) {
	srv := newTestServer(t)

	for _, tc := range []struct{ method, path, token string }{
		{http.MethodGet, "/api/v1/events", ""},
		{http.MethodGet, "/api/v1/users/profile", "not-a-jwt"},
		{http.MethodPost, "/api/v1/events", ""},
	} {
		resp, data := srv.call(t, nil, tc.method, tc.path, tc.token, "")
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode, tc.path)
		require.Equal(t, "application/problem+json", resp.Header.Get("Content-Type"))
		require.Contains(t, string(data), "unauthorized")
	}
}

func TestRouter_CookieSessionRequiresCSRF(t *testing.T) {
	srv := newTestServer(t)
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := srv.Client()
	client.Jar = jar

	resp, data := srv.call(t, client, http.MethodPost, "/api/v1/auth/session", "",
		`{"accessToken":"`+srv.token(t, "user-c", "c@example.com", "Cleo")+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, _ = srv.call(t, client, http.MethodGet, "/api/v1/users/profile", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, "the session cookie authenticates")

	resp, data = srv.call(t, client, http.MethodPost, "/api/v1/events", "", `{"title":"Launch","dateTime":"2030-06-01T18:00:00Z"}`)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
	require.Contains(t, string(data), "csrf")

	resp, data = srv.call(t, client, http.MethodGet, "/api/v1/auth/csrf", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	csrfToken := decode[map[string]string](t, data)["csrfToken"]
	require.NotEmpty(t, csrfToken)

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/events", strings.NewReader(`{"title":"Launch","dateTime":"2030-06-01T18:00:00Z"}`))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrfToken)
	created, err := client.Do(req)
	require.NoError(t, err)
	_ = created.Body.Close()
	require.Equal(t, http.StatusCreated, created.StatusCode)

	resp, _ = srv.call(t, client, http.MethodDelete, "/api/v1/auth/session", "", "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	resp, _ = srv.call(t, client, http.MethodGet, "/api/v1/users/profile", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRouter_OperationalEndpoints(t *testing.T) {
	srv := newTestServer(t)

	resp, data := srv.call(t, nil, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.JSONEq(t, `{"status":"ok"}`, string(data))

	resp, _ = srv.call(t, nil, http.MethodGet, "/readyz", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = srv.call(t, nil, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode, string(data))

	resp, _ = srv.call(t, nil, http.MethodGet, "/version", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, data = srv.call(t, nil, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, string(data), "rsvp_http_requests_total")
}

func TestRouter_MiddlewareChain(t *testing.T) {
	srv := newTestServer(t)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/v1/events/01HYX3KQW7ERTV9XNBM2P8QJZF", nil)
	require.NoError(t, err)
	req.Header.Set("X-Request-ID", "trace-abc-123")
	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	require.Equal(t, http.StatusNotFound, resp.StatusCode)
	require.Equal(t, "trace-abc-123", resp.Header.Get("X-Request-ID"))
	require.Equal(t, "nosniff", resp.Header.Get("X-Content-Type-Options"))
	require.Equal(t, "no-store", resp.Header.Get("Cache-Control"))

	resp, _ = srv.call(t, nil, http.MethodPatch, "/api/v1/events/01HYX3KQW7ERTV9XNBM2P8QJZF", "", "")
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)

	big := `{"title":"` + strings.Repeat("x", 2<<20) + `"}`
	resp, _ = srv.call(t, nil, http.MethodPost, "/api/v1/events/01HYX3KQW7ERTV9XNBM2P8QJZF/rsvps", "", big)
	require.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{Config: testConfig()})
	require.ErrorContains(t, err, "repository")
}

func TestNewRateLimiter_Store(t *testing.T) {
	limiter, client, err := newRateLimiter(config.RateLimitConfig{PublicPerMinute: 10}, "test")
	require.NoError(t, err)
	require.Nil(t, client)
	limiter.Stop()

	_, _, err = newRateLimiter(config.RateLimitConfig{RedisURL: "not a url"}, "test")
	require.ErrorContains(t, err, "RATE_LIMIT_REDIS_URL")

	limiter, client, err = newRateLimiter(config.RateLimitConfig{RedisURL: "redis://localhost:6379/2"}, "test")
	require.NoError(t, err)
	require.NotNil(t, client)
	require.Equal(t, 2, client.Options().DB)
	limiter.Stop()
	require.NoError(t, client.Close())
}
