// Package ratelimit holds per-client token buckets for the HTTP rate limiter.
package ratelimit

import (
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Policy is a token-bucket quota applied per client address.
type Policy struct {
	Name  string
	Rate  rate.Limit
	Burst int
}

// LoginPolicy admits one attempt per 120 seconds per address.
func LoginPolicy() Policy {
	return Policy{Name: "login", Rate: rate.Every(120 * time.Second), Burst: 1}
}

// GeneralPolicy admits 100 requests per second with a burst of 100.
func GeneralPolicy() Policy {
	return Policy{Name: "general", Rate: 100, Burst: 100}
}

// Window is how long an empty bucket takes to refill completely. Fixed-window
// stores use it as their window length.
func (p Policy) Window() time.Duration {
	if p.Rate == rate.Inf || p.Rate <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(p.Burst) / float64(p.Rate) * float64(time.Second)))
}

// RetryAfter is the whole number of seconds until one more token is
// available, never less than one.
func (p Policy) RetryAfter() time.Duration {
	if p.Rate == rate.Inf || p.Rate <= 0 {
		return time.Second
	}
	secs := math.Ceil(math.Round(1000/float64(p.Rate)) / 1000)
	return time.Duration(math.Max(secs, 1)) * time.Second
}
