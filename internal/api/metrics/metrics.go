// Package metrics defines and registers all custom Prometheus metrics for the
// starter application. It is the single source of truth for metric names,
// labels, and help strings.
//
// Metrics are registered with the default Prometheus registry at package
// init through promauto; /metrics exposes them next to the HTTP metrics
// collected by echoprometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "starter"

// ── Authentication ────────────────────────────────────────────────────────────

// LoginAttemptsTotal counts login attempts by result.
// Label:
//   - result: "success", "rejected" (generic credential failure) or "error"
var LoginAttemptsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "login_attempts_total",
		Help:      "Total number of login attempts, by result.",
	},
	[]string{"result"},
)

// RegistrationsTotal counts registration attempts by result.
// Label:
//   - result: "created", "exists", "invalid" or "error"
var RegistrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "registrations_total",
		Help:      "Total number of registration attempts, by result.",
	},
	[]string{"result"},
)

// GuardOutcomesTotal counts protected-route evaluations.
// Label:
//   - outcome: "granted" or a failure kind such as "token_expired"
var GuardOutcomesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "guard_outcomes_total",
		Help:      "Total number of protected-route authorization decisions, by outcome.",
	},
	[]string{"outcome"},
)

// PasswordHashDuration measures argon2id work (hash and verify).
// Label:
//   - op: "hash" or "verify"
var PasswordHashDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "auth",
		Name:      "password_hash_duration_seconds",
		Help:      "Duration of password hashing operations.",
		Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
	},
	[]string{"op"},
)

// ── Infrastructure ────────────────────────────────────────────────────────────

// RateLimitRejectionsTotal counts requests refused by a rate limiter.
// Label:
//   - policy: "login" or "general"
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "rejections_total",
		Help:      "Total number of requests rejected by the rate limiter, by policy.",
	},
	[]string{"policy"},
)

// RateLimitTrackedClients reports how many client addresses the in-memory
// limiter currently holds buckets for.
// Label:
//   - policy: "login" or "general"
var RateLimitTrackedClients = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "ratelimit",
		Name:      "tracked_clients",
		Help:      "Number of client addresses with a live token bucket.",
	},
	[]string{"policy"},
)

// HashPoolWaiting tracks jobs waiting for a free hashing worker.
var HashPoolWaiting = promauto.NewGauge(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "hashpool",
		Name:      "waiting_jobs",
		Help:      "Number of password hashing jobs waiting for a worker.",
	},
)
