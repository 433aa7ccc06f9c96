// Package metrics provides Prometheus metrics for LearnQuest: event
// throughput and latency, point grants, badge awards, gate decisions,
// leaderboard cache efficiency and health.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "learnquest"

// ─── Events ─────────────────────────────────────────────────────────────────

// EventsProcessed counts engine events by trigger and outcome
// (ok, retry, duplicate, rejected, failed).
var EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "events_processed_total",
	Help:      "Total gamification events processed.",
}, []string{"event", "outcome"})

// EventLatency tracks event processing duration in seconds.
var EventLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Name:      "event_latency_seconds",
	Help:      "Gamification event processing duration in seconds.",
	Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
}, []string{"event"})

// ─── Progression ────────────────────────────────────────────────────────────

// PointsGranted counts points written to the ledger by source type.
var PointsGranted = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "points_granted_total",
	Help:      "Total points granted.",
}, []string{"source"})

// PointsSpent counts points deducted from learners.
var PointsSpent = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "points_spent_total",
	Help:      "Total points spent.",
})

// BadgesAwarded counts badge awards by badge.
var BadgesAwarded = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "badges_awarded_total",
	Help:      "Total badges awarded.",
}, []string{"badge"})

// LevelUps counts level transitions by the level reached.
var LevelUps = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "level_ups_total",
	Help:      "Total level-ups by new level.",
}, []string{"level"})

// AccessDecisions counts progression gate results (allowed, denied).
var AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "access_decisions_total",
	Help:      "Progression gate decisions.",
}, []string{"result"})

// ─── Leaderboards ───────────────────────────────────────────────────────────

// LeaderboardCache counts cache lookups (hit, miss, error).
var LeaderboardCache = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "leaderboard_cache_total",
	Help:      "Leaderboard cache lookups by result.",
}, []string{"result"})

// LeaderboardRefreshes counts scheduled warm-up runs by outcome.
var LeaderboardRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "leaderboard_refreshes_total",
	Help:      "Scheduled leaderboard refresh runs.",
}, []string{"outcome"})

// ─── Health ─────────────────────────────────────────────────────────────────

// HealthCheckStatus tracks health check results (1=healthy, 0=unhealthy).
var HealthCheckStatus = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: namespace,
	Name:      "health_check_status",
	Help:      "Health check result per component (1=healthy, 0=unhealthy).",
}, []string{"check"})

// HealthRecoveries tracks auto-recovery attempts.
var HealthRecoveries = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Name:      "health_recoveries_total",
	Help:      "Total auto-recovery attempts per check.",
}, []string{"check"})
