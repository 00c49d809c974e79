package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/api/problem"
	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type RateLimitTier string

const (
	TierPublic        RateLimitTier = "public"
	TierAuthenticated RateLimitTier = "authenticated"
	TierSignIn        RateLimitTier = "sign_in"
)

var errRateLimited = errors.New("rate limit exceeded")

// RateLimiter applies a per-minute budget per tier and client. Authenticated
// requests are keyed by user id, everything else by client address.
type RateLimiter struct {
	backend           limitBackend
	trustedProxyCIDRs []*net.IPNet
	env               string
}

// limitBackend counts requests for one tier and key. retryAfter is only
// meaningful when allowed is false.
type limitBackend interface {
	allow(ctx context.Context, tier RateLimitTier, key string) (allowed bool, retryAfter time.Duration, err error)
	stop()
}

// NewRateLimiter keeps token buckets in process memory.
func NewRateLimiter(cfg config.RateLimitConfig, env string) *RateLimiter {
	return &RateLimiter{
		backend:           newLimiterStore(cfg),
		trustedProxyCIDRs: parseCIDRs(cfg.TrustedProxyCIDRs),
		env:               env,
	}
}

// Limit applies the tier's budget to the wrapped handler. A tier configured
// with a non-positive rate is unlimited.
func (l *RateLimiter) Limit(tier RateLimitTier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := clientKey(r, l.trustedProxyCIDRs)
			if user := User(r); user != nil && tier == TierAuthenticated {
				key = "user:" + user.ID
			}

			allowed, retryAfter, err := l.backend.allow(r.Context(), tier, key)
			if err != nil {
				// Store errors fail open.
				zerolog.Ctx(r.Context()).Warn().Err(err).Str("tier", string(tier)).Msg("rate limit store unavailable, allowing request")
				allowed = true
			}

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(wholeSeconds(retryAfter)))
				problem.Write(w, r, http.StatusTooManyRequests, problem.TypeRateLimited, "Too many requests", errRateLimited, l.env)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Stop ends the background cleanup of idle buckets.
func (l *RateLimiter) Stop() {
	l.backend.stop()
}

// wholeSeconds rounds a Retry-After delay, never going below one second.
func wholeSeconds(d time.Duration) int {
	seconds := int(d.Round(time.Second) / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	return seconds
}

// tokenInterval is the time until the limiter earns one token back.
func tokenInterval(limiter *rate.Limiter) time.Duration {
	return time.Duration(float64(time.Second) / float64(limiter.Limit()))
}

type limiterStore struct {
	mu          sync.Mutex
	limiters    map[string]*limiterEntry
	perMinute   map[RateLimitTier]int
	stopOnce    sync.Once
	stopCleanup chan struct{}
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newLimiterStore(cfg config.RateLimitConfig) *limiterStore {
	store := &limiterStore{
		limiters: make(map[string]*limiterEntry),
		perMinute: map[RateLimitTier]int{
			TierPublic:        cfg.PublicPerMinute,
			TierAuthenticated: cfg.AuthenticatedPerMinute,
			TierSignIn:        cfg.SignInPerMinute,
		},
		stopCleanup: make(chan struct{}),
	}

	// Entries idle for 15 minutes are dropped so memory stays bounded.
	go store.cleanupLoop()

	return store
}

func (s *limiterStore) allow(_ context.Context, tier RateLimitTier, key string) (bool, time.Duration, error) {
	limiter := s.limiter(tier, key)
	if limiter == nil || limiter.Allow() {
		return true, 0, nil
	}
	return false, tokenInterval(limiter), nil
}

func (s *limiterStore) limiter(tier RateLimitTier, key string) *rate.Limiter {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return nil
	}

	lookup := string(tier) + ":" + key
	if key == "" {
		lookup = string(tier)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if entry, ok := s.limiters[lookup]; ok {
		entry.lastSeen = time.Now()
		return entry.limiter
	}

	interval := time.Minute / time.Duration(limit)
	limiter := rate.NewLimiter(rate.Every(interval), limit)
	s.limiters[lookup] = &limiterEntry{
		limiter:  limiter,
		lastSeen: time.Now(),
	}
	return limiter
}

func (s *limiterStore) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *limiterStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	ttl := 15 * time.Minute

	for key, entry := range s.limiters {
		if now.Sub(entry.lastSeen) > ttl {
			delete(s.limiters, key)
		}
	}
}

func (s *limiterStore) stop() {
	s.stopOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// clientKey identifies the caller by address. X-Forwarded-For and X-Real-IP
// are only honoured when the connection comes from a trusted proxy.
func clientKey(r *http.Request, trustedProxies []*net.IPNet) string {
	if r == nil {
		return ""
	}

	remoteIP := r.RemoteAddr
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		remoteIP = host
	}

	if isTrustedProxy(remoteIP, trustedProxies) {
		if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
			first, _, _ := strings.Cut(forwarded, ",")
			if first = strings.TrimSpace(first); first != "" {
				return first
			}
		}
		if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
			return strings.TrimSpace(realIP)
		}
	}

	return remoteIP
}

func isTrustedProxy(ip string, trusted []*net.IPNet) bool {
	if len(trusted) == 0 {
		return false
	}
	parsedIP := net.ParseIP(ip)
	if parsedIP == nil {
		return false
	}
	for _, cidr := range trusted {
		if cidr.Contains(parsedIP) {
			return true
		}
	}
	return false
}

// parseCIDRs skips malformed entries; config validation reports them.
func parseCIDRs(values []string) []*net.IPNet {
	out := make([]*net.IPNet, 0, len(values))
	for _, value := range values {
		_, cidr, err := net.ParseCIDR(strings.TrimSpace(value))
		if err != nil {
			continue
		}
		out = append(out, cidr)
	}
	return out
}
