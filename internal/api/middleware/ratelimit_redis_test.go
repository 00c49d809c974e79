package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Togather-Foundation/rsvp/internal/auth"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/Togather-Foundation/rsvp/internal/domain/users"
	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/require"
)

func newRedisLimitedHandler(t *testing.T, cfg config.RateLimitConfig, tier RateLimitTier) (http.Handler, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	limiter := NewRedisRateLimiter(cfg, client, "test")
	t.Cleanup(limiter.Stop)
	return limiter.Limit(tier)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})), mock
}

func TestRedisRateLimit_BlocksOverWindowBudget(t *testing.T) {
	handler, mock := newRedisLimitedHandler(t, config.RateLimitConfig{SignInPerMinute: 2}, TierSignIn)
	key := []string{"rsvp:ratelimit:sign_in:192.168.1.100"}

	mock.ExpectEval(fixedWindowScript, key, int64(60000)).SetVal([]interface{}{int64(1), int64(60000)})
	mock.ExpectEval(fixedWindowScript, key, int64(60000)).SetVal([]interface{}{int64(2), int64(59000)})
	mock.ExpectEval(fixedWindowScript, key, int64(60000)).SetVal([]interface{}{int64(3), int64(42000)})

	codes := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/session", nil)
		req.RemoteAddr = "192.168.1.100:12345"
		last = httptest.NewRecorder()
		handler.ServeHTTP(last, req)
		codes = append(codes, last.Code)
	}

	require.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
	require.Equal(t, "42", last.Header().Get("Retry-After"))
	require.Equal(t, "application/problem+json", last.Header().Get("Content-Type"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRateLimit_KeyedByUser(t *testing.T) {
	handler, mock := newRedisLimitedHandler(t, config.RateLimitConfig{AuthenticatedPerMinute: 5}, TierAuthenticated)
	mock.ExpectEval(fixedWindowScript, []string{"rsvp:ratelimit:authenticated:user:alice"}, int64(60000)).
		SetVal([]interface{}{int64(1), int64(60000)})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req.RemoteAddr = "10.0.0.1:1000"
	req = req.WithContext(ContextWithUser(req.Context(), &users.User{ID: "alice", Role: auth.RoleEventOwner}))
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRateLimit_StoreErrorAllowsRequest(t *testing.T) {
	handler, mock := newRedisLimitedHandler(t, config.RateLimitConfig{PublicPerMinute: 1}, TierPublic)
	mock.ExpectEval(fixedWindowScript, []string{"rsvp:ratelimit:public:203.0.113.5"}, int64(60000)).
		SetErr(errors.New("connection refused"))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/public/events/abc", nil)
	req.RemoteAddr = "203.0.113.5:4000"
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)

	require.Equal(t, http.StatusOK, res.Code)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisRateLimit_UnlimitedTierSkipsStore(t *testing.T) {
	handler, mock := newRedisLimitedHandler(t, config.RateLimitConfig{}, TierPublic)

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/public/events/abc", nil)
		res := httptest.NewRecorder()
		handler.ServeHTTP(res, req)
		require.Equal(t, http.StatusOK, res.Code)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisKey(t *testing.T) {
	require.Equal(t, "rsvp:ratelimit:public", redisKey(TierPublic, ""))
	require.Equal(t, "rsvp:ratelimit:sign_in:198.51.100.7", redisKey(TierSignIn, "198.51.100.7"))
}
