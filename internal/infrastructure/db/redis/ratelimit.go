package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/99minutos/starter/internal/infrastructure/ratelimit"
)

const rateLimitTimeout = 500 * time.Millisecond

// RateLimitStore is a fixed-window limiter shared by every instance that
// talks to the same Redis. Each window admits policy.Burst requests and
// lasts policy.Window().
// Key format: ratelimit:<policy>:<identifier>
type RateLimitStore struct {
	client *redis.Client
	policy ratelimit.Policy
	window time.Duration
}

// NewRateLimitStore creates a RateLimitStore wrapping the given Redis client.
func NewRateLimitStore(client *redis.Client, policy ratelimit.Policy) *RateLimitStore {
	window := policy.Window()
	if window < time.Second {
		window = time.Second
	}
	return &RateLimitStore{client: client, policy: policy, window: window}
}

func (s *RateLimitStore) Policy() ratelimit.Policy { return s.policy }

// Allow increments the identifier's counter for the current window. It
// satisfies echo's middleware.RateLimiterStore.
//
// INCR and EXPIRE NX run in one MULTI/EXEC, so a counter never exists without
// a TTL. EXPIRE NX on every call leaves a running window untouched and puts a
// TTL back on any key that lost it.
func (s *RateLimitStore) Allow(identifier string) (bool, error) {
	ctx, cancel := context.WithTimeout(context.Background(), rateLimitTimeout)
	defer cancel()

	key := s.key(identifier)
	var incr *redis.IntCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, s.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rate limit: %w", err)
	}
	return incr.Val() <= int64(s.policy.Burst), nil
}

func (s *RateLimitStore) key(identifier string) string {
	return fmt.Sprintf("ratelimit:%s:%s", s.policy.Name, identifier)
}
