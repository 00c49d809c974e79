package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/Togather-Foundation/rsvp/internal/config"
	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "rsvp:ratelimit:"
	redisWindow    = time.Minute
)

// fixedWindowScript increments the window counter, starting the window on
// the first hit, and returns the count with the window's remaining TTL in ms.
const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return {count, redis.call("PTTL", KEYS[1])}
`

// NewRedisRateLimiter shares budgets between server replicas through Redis
// using one-minute fixed windows. The caller owns client and closes it.
func NewRedisRateLimiter(cfg config.RateLimitConfig, client redis.Cmdable, env string) *RateLimiter {
	return &RateLimiter{
		backend: &redisStore{
			client: client,
			perMinute: map[RateLimitTier]int{
				TierPublic:        cfg.PublicPerMinute,
				TierAuthenticated: cfg.AuthenticatedPerMinute,
				TierSignIn:        cfg.SignInPerMinute,
			},
		},
		trustedProxyCIDRs: parseCIDRs(cfg.TrustedProxyCIDRs),
		env:               env,
	}
}

type redisStore struct {
	client    redis.Cmdable
	perMinute map[RateLimitTier]int
}

func redisKey(tier RateLimitTier, key string) string {
	if key == "" {
		return redisKeyPrefix + string(tier)
	}
	return redisKeyPrefix + string(tier) + ":" + key
}

func (s *redisStore) allow(ctx context.Context, tier RateLimitTier, key string) (bool, time.Duration, error) {
	limit := s.perMinute[tier]
	if limit <= 0 {
		return true, 0, nil
	}

	result, err := s.client.Eval(ctx, fixedWindowScript, []string{redisKey(tier, key)}, redisWindow.Milliseconds()).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("rate limit script: %w", err)
	}
	if len(result) != 2 {
		return false, 0, fmt.Errorf("rate limit script: unexpected reply %v", result)
	}

	count, ttl := result[0], time.Duration(result[1])*time.Millisecond
	if count <= int64(limit) {
		return true, 0, nil
	}
	if ttl <= 0 {
		ttl = redisWindow
	}
	return false, ttl, nil
}

func (s *redisStore) stop() {}
