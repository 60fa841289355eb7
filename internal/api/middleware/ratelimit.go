package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"

	"github.com/99minutos/starter/internal/api/metrics"
)

// RateLimitConfig binds a named policy to the store that enforces it.
type RateLimitConfig struct {
	Policy     string
	Store      echomiddleware.RateLimiterStore
	RetryAfter time.Duration
	Skipper    echomiddleware.Skipper
}

// RateLimit rejects requests over the store's quota with 429 before they
// reach any handler. Clients are keyed by c.RealIP(), so the echo instance's
// IPExtractor decides whether proxy headers are trusted. A store error fails
// open.
func RateLimit(cfg RateLimitConfig, log zerolog.Logger) echo.MiddlewareFunc {
	retryAfter := strconv.Itoa(int(cfg.RetryAfter.Round(time.Second) / time.Second))
	skipper := cfg.Skipper
	if skipper == nil {
		skipper = echomiddleware.DefaultSkipper
	}

	return echomiddleware.RateLimiterWithConfig(echomiddleware.RateLimiterConfig{
		Skipper: skipper,
		Store:   failOpenStore{store: cfg.Store, policy: cfg.Policy, log: log},
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusForbidden, "unable to identify client").SetInternal(err)
		},
		DenyHandler: func(c echo.Context, identifier string, _ error) error {
			metrics.RateLimitRejectionsTotal.WithLabelValues(cfg.Policy).Inc()
			log.Warn().Str("policy", cfg.Policy).Str("client_ip", identifier).Msg("rate limit exceeded")
			c.Response().Header().Set("Retry-After", retryAfter)
			return echo.NewHTTPError(http.StatusTooManyRequests, "too many requests")
		},
	})
}

// failOpenStore admits the request when the underlying store errors.
type failOpenStore struct {
	store  echomiddleware.RateLimiterStore
	policy string
	log    zerolog.Logger
}

func (s failOpenStore) Allow(identifier string) (bool, error) {
	ok, err := s.store.Allow(identifier)
	if err != nil {
		s.log.Error().Err(err).Str("policy", s.policy).Msg("rate limit store failed, allowing request")
		return true, nil
	}
	return ok, nil
}
