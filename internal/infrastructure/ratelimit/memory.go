package ratelimit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/99minutos/starter/internal/api/metrics"
)

const minIdleTTL = time.Minute

type client struct {
	limiter  *rate.Limiter
	lastSeen atomic.Int64 // unix nanos
}

// MemoryStore keeps one token bucket per identifier. Buckets live in a
// sync.Map and each rate.Limiter carries its own lock, so requests from
// different addresses never contend on a shared mutex.
type MemoryStore struct {
	policy  Policy
	idleTTL time.Duration
	now     func() time.Time

	clients sync.Map // identifier -> *client
	size    atomic.Int64
}

type Option func(*MemoryStore)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *MemoryStore) { s.now = now }
}

// WithIdleTTL sets how long an untouched bucket is kept before Sweep drops it.
// Values shorter than the policy window are raised to it so a dropped bucket
// is always indistinguishable from a fresh one.
func WithIdleTTL(d time.Duration) Option {
	return func(s *MemoryStore) { s.idleTTL = d }
}

func NewMemoryStore(policy Policy, opts ...Option) *MemoryStore {
	s := &MemoryStore{policy: policy, idleTTL: minIdleTTL, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	if w := policy.Window(); s.idleTTL < w {
		s.idleTTL = w
	}
	return s
}

func (s *MemoryStore) Policy() Policy { return s.policy }

// Allow consumes one token from identifier's bucket. It satisfies
// echo's middleware.RateLimiterStore.
func (s *MemoryStore) Allow(identifier string) (bool, error) {
	now := s.now()

	v, ok := s.clients.Load(identifier)
	if !ok {
		var loaded bool
		v, loaded = s.clients.LoadOrStore(identifier, &client{
			limiter: rate.NewLimiter(s.policy.Rate, s.policy.Burst),
		})
		if !loaded {
			metrics.RateLimitTrackedClients.WithLabelValues(s.policy.Name).Set(float64(s.size.Add(1)))
		}
	}
	cl := v.(*client)
	cl.lastSeen.Store(now.UnixNano())
	return cl.limiter.AllowN(now, 1), nil
}

// Len reports the number of tracked identifiers.
func (s *MemoryStore) Len() int { return int(s.size.Load()) }

// Sweep drops buckets idle for longer than the idle TTL and returns how many
// were removed.
func (s *MemoryStore) Sweep() int {
	cutoff := s.now().Add(-s.idleTTL).UnixNano()
	removed := 0
	s.clients.Range(func(key, value any) bool {
		if value.(*client).lastSeen.Load() < cutoff {
			if s.clients.CompareAndDelete(key, value) {
				removed++
				s.size.Add(-1)
			}
		}
		return true
	})
	if removed > 0 {
		metrics.RateLimitTrackedClients.WithLabelValues(s.policy.Name).Set(float64(s.size.Load()))
	}
	return removed
}

// Run sweeps periodically until ctx is cancelled.
func (s *MemoryStore) Run(ctx context.Context) {
	ticker := time.NewTicker(s.idleTTL)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}
