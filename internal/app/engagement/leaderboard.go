package engagement

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/metrics"
	"github.com/tutu-network/learnquest/internal/logger"
)

// Leaderboard limits.
const (
	DefaultLeaderboardLimit = 10
	MaxLeaderboardLimit     = 100
)

// LeaderboardBuilder ranks users by a metric over a period. Reads take no
// locks and may observe a slightly stale snapshot.
type LeaderboardBuilder struct {
	store domain.Reader
	cache domain.LeaderboardCache
	cal   calendar
	now   func() time.Time
	log   *logger.Logger

	// mu orders cache writes against invalidation. gen counts invalidations.
	mu  sync.Mutex
	gen uint64
}

// NewLeaderboardBuilder creates a builder. cache may be nil.
func NewLeaderboardBuilder(store domain.Reader, cache domain.LeaderboardCache,
	loc *time.Location, now func() time.Time, log *logger.Logger) *LeaderboardBuilder {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	return &LeaderboardBuilder{store: store, cache: cache, cal: newCalendar(loc), now: now, log: log}
}

// PeriodStart returns the start of the window for a period, or the zero
// time for all_time. Weeks start on Monday.
func (b *LeaderboardBuilder) PeriodStart(p domain.Period) time.Time {
	t := b.now()
	switch p {
	case domain.PeriodDaily:
		return b.cal.day(t)
	case domain.PeriodWeekly:
		return b.cal.weekStart(t)
	case domain.PeriodMonthly:
		return b.cal.monthStart(t)
	}
	return time.Time{}
}

// since returns the window start used for a metric: only points are
// windowed.
func (b *LeaderboardBuilder) since(metric domain.Metric, period domain.Period) time.Time {
	if metric != domain.MetricPoints {
		return time.Time{}
	}
	return b.PeriodStart(period)
}

// Key returns the cache key of a board as of now.
func (b *LeaderboardBuilder) Key(metric domain.Metric, period domain.Period, limit int) domain.BoardKey {
	return domain.BoardKey{
		Metric: metric,
		Period: period,
		Since:  b.since(metric, period),
		Limit:  NormalizeLimit(limit),
	}
}

// NormalizeLimit clamps a requested size into [1, MaxLeaderboardLimit].
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLeaderboardLimit
	}
	if limit > MaxLeaderboardLimit {
		return MaxLeaderboardLimit
	}
	return limit
}

// Build returns the ranked standings, serving from the cache when possible.
func (b *LeaderboardBuilder) Build(ctx context.Context, metric domain.Metric, period domain.Period, limit int) ([]domain.RankedEntry, error) {
	key := b.Key(metric, period, limit)

	if b.cache != nil {
		entries, ok, err := b.cache.Get(ctx, key)
		switch {
		case err != nil:
			metrics.LeaderboardCache.WithLabelValues("error").Inc()
			b.log.Warn("leaderboard cache read failed", "metric", metric, "period", period, "error", err)
		case ok:
			metrics.LeaderboardCache.WithLabelValues("hit").Inc()
			return entries, nil
		default:
			metrics.LeaderboardCache.WithLabelValues("miss").Inc()
		}
	}

	gen := b.generation()
	entries, err := b.compute(ctx, key)
	if err != nil {
		return nil, err
	}

	if b.cache != nil {
		if _, err := b.put(ctx, gen, key, entries); err != nil {
			b.log.Warn("leaderboard cache write failed", "metric", metric, "period", period, "error", err)
		}
	}
	return entries, nil
}

func (b *LeaderboardBuilder) compute(ctx context.Context, key domain.BoardKey) ([]domain.RankedEntry, error) {
	var (
		rows []domain.Standing
		err  error
	)
	switch {
	case key.Metric == domain.MetricPoints && !key.Since.IsZero():
		rows, err = b.store.StandingsByEarnedSince(ctx, key.Since, key.Limit)
	case key.Metric == domain.MetricPoints:
		rows, err = b.store.StandingsByPoints(ctx, key.Limit)
	case key.Metric == domain.MetricLevel:
		rows, err = b.store.StandingsByLevel(ctx, key.Limit)
	case key.Metric == domain.MetricBadges:
		rows, err = b.store.StandingsByBadges(ctx, key.Limit)
	default:
		return nil, domain.ErrInvalidMetric
	}
	if err != nil {
		return nil, fmt.Errorf("load standings: %w", err)
	}
	return RankStandings(rows), nil
}

// RankStandings assigns competition ranks to rows sorted by value
// descending: equal values share a rank and the next rank skips.
func RankStandings(rows []domain.Standing) []domain.RankedEntry {
	out := make([]domain.RankedEntry, 0, len(rows))
	for i, r := range rows {
		rank := i + 1
		if i > 0 && r.Value == rows[i-1].Value {
			rank = out[i-1].Rank
		}
		out = append(out, domain.RankedEntry{
			Rank:   rank,
			UserID: r.UserID,
			Name:   r.Name,
			Value:  r.Value,
			Level:  r.Level,
		})
	}
	return out
}

// RankOf returns the user's 1-based rank: one more than the number of
// users with a strictly greater value.
func (b *LeaderboardBuilder) RankOf(ctx context.Context, userID string, metric domain.Metric, period domain.Period) (int, int64, error) {
	user, err := b.store.GetUser(ctx, userID)
	if err != nil {
		return 0, 0, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return 0, 0, domain.ErrUserNotFound
	}

	since := b.since(metric, period)
	value, err := b.store.MetricValue(ctx, userID, metric, since)
	if err != nil {
		return 0, 0, fmt.Errorf("metric value: %w", err)
	}
	above, err := b.store.CountAbove(ctx, metric, since, value)
	if err != nil {
		return 0, 0, fmt.Errorf("count above: %w", err)
	}
	return above + 1, value, nil
}

// Invalidate drops cached leaderboards after a committed event. Boards
// computed before the call are not written back afterwards.
func (b *LeaderboardBuilder) Invalidate(ctx context.Context) {
	if b.cache == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.gen++
	if err := b.cache.Invalidate(ctx); err != nil {
		b.log.Warn("leaderboard cache invalidation failed", "error", err)
	}
}

func (b *LeaderboardBuilder) generation() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.gen
}

// put writes a board computed at generation gen. It reports false and
// skips the write when an invalidation happened in between.
func (b *LeaderboardBuilder) put(ctx context.Context, gen uint64, key domain.BoardKey, entries []domain.RankedEntry) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.gen != gen {
		return false, nil
	}
	return true, b.cache.Set(ctx, key, entries)
}

// Refresh recomputes one leaderboard and stores it in the cache,
// bypassing any cached copy.
func (b *LeaderboardBuilder) Refresh(ctx context.Context, metric domain.Metric, period domain.Period, limit int) error {
	key := b.Key(metric, period, limit)
	gen := b.generation()
	entries, err := b.compute(ctx, key)
	if err != nil {
		return err
	}
	if b.cache == nil {
		return nil
	}
	stored, err := b.put(ctx, gen, key, entries)
	if err == nil && !stored {
		b.log.Debug("stale leaderboard dropped", "metric", metric, "period", period)
	}
	return err
}
