package daemon

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/infra/metrics"
	"github.com/tutu-network/learnquest/internal/logger"
)

// refreshConcurrency bounds parallel leaderboard recomputation.
const refreshConcurrency = 3

// Refresher keeps the configured leaderboards warm in the cache.
type Refresher struct {
	board   *engagement.LeaderboardBuilder
	targets []Target
	limit   int
	cron    *cron.Cron
	log     *logger.Logger
}

// NewRefresher creates a refresher that runs on the given schedule in loc.
func NewRefresher(board *engagement.LeaderboardBuilder, targets []Target, limit int,
	loc *time.Location, log *logger.Logger) *Refresher {
	if log == nil {
		log = logger.Nop()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Refresher{
		board:   board,
		targets: targets,
		limit:   engagement.NormalizeLimit(limit),
		cron:    cron.New(cron.WithLocation(loc)),
		log:     log.With("component", "refresher"),
	}
}

// Start schedules RefreshAll and runs it once immediately.
func (r *Refresher) Start(ctx context.Context, schedule string) error {
	if _, err := r.cron.AddFunc(schedule, func() {
		if err := r.RefreshAll(ctx); err != nil {
			r.log.Warn("leaderboard refresh failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("refresh schedule %q: %w", schedule, err)
	}
	r.cron.Start()

	go func() {
		if err := r.RefreshAll(ctx); err != nil {
			r.log.Warn("initial leaderboard refresh failed", "error", err)
		}
	}()
	r.log.Info("leaderboard refresher started", "schedule", schedule, "targets", len(r.targets))
	return nil
}

// Stop stops the schedule and waits for a running refresh to finish.
func (r *Refresher) Stop() {
	<-r.cron.Stop().Done()
}

// RefreshAll recomputes every target and returns the first error. A failure
// cancels the targets still running.
func (r *Refresher) RefreshAll(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(refreshConcurrency)

	start := time.Now()
	for _, t := range r.targets {
		g.Go(func() error {
			if err := r.board.Refresh(gctx, t.Metric, t.Period, r.limit); err != nil {
				metrics.LeaderboardRefreshes.WithLabelValues("error").Inc()
				return fmt.Errorf("refresh %s: %w", t, err)
			}
			metrics.LeaderboardRefreshes.WithLabelValues("ok").Inc()
			return nil
		})
	}
	err := g.Wait()
	r.log.Debug("leaderboards refreshed", "targets", len(r.targets), "duration", time.Since(start), "error", err)
	return err
}
