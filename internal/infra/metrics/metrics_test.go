package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func gatheredNames(t *testing.T) map[string]bool {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}
	return names
}

func TestEventMetrics(t *testing.T) {
	EventsProcessed.WithLabelValues("activity_completed", "ok").Inc()
	EventLatency.WithLabelValues("activity_completed").Observe(0.004)

	names := gatheredNames(t)
	for _, name := range []string{
		"learnquest_events_processed_total",
		"learnquest_event_latency_seconds",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestProgressionMetrics(t *testing.T) {
	before := testutil.ToFloat64(PointsGranted.WithLabelValues("activity"))
	PointsGranted.WithLabelValues("activity").Add(12)
	if got := testutil.ToFloat64(PointsGranted.WithLabelValues("activity")) - before; got != 12 {
		t.Errorf("points granted delta = %v, want 12", got)
	}

	PointsSpent.Add(5)
	BadgesAwarded.WithLabelValues("first-steps").Inc()
	LevelUps.WithLabelValues("2").Inc()
	AccessDecisions.WithLabelValues("denied").Inc()

	names := gatheredNames(t)
	for _, name := range []string{
		"learnquest_points_granted_total",
		"learnquest_points_spent_total",
		"learnquest_badges_awarded_total",
		"learnquest_level_ups_total",
		"learnquest_access_decisions_total",
	} {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestHealthGauge(t *testing.T) {
	HealthCheckStatus.WithLabelValues("store").Set(1)
	HealthCheckStatus.WithLabelValues("cache").Set(0)

	if v := testutil.ToFloat64(HealthCheckStatus.WithLabelValues("store")); v != 1 {
		t.Errorf("store gauge = %v, want 1", v)
	}
	if v := testutil.ToFloat64(HealthCheckStatus.WithLabelValues("cache")); v != 0 {
		t.Errorf("cache gauge = %v, want 0", v)
	}
}
