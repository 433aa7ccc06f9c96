package rediscache_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/rediscache"
)

func newTestCache(t *testing.T) (*rediscache.Cache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return rediscache.NewWithClient(client, time.Minute), mr
}

func key(m domain.Metric, p domain.Period, limit int) domain.BoardKey {
	return domain.BoardKey{Metric: m, Period: p, Limit: limit}
}

var board = []domain.RankedEntry{
	{Rank: 1, UserID: "u1", Name: "Ada", Value: 40, Level: 1},
	{Rank: 2, UserID: "u2", Name: "Bob", Value: 30, Level: 1},
}

func TestCache_MissThenHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, key(domain.MetricPoints, domain.PeriodWeekly, 10))
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, key(domain.MetricPoints, domain.PeriodWeekly, 10), board))
	got, ok, err := c.Get(ctx, key(domain.MetricPoints, domain.PeriodWeekly, 10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, board, got)

	_, ok, err = c.Get(ctx, key(domain.MetricPoints, domain.PeriodWeekly, 5))
	require.NoError(t, err)
	assert.False(t, ok, "limit is part of the key")
}

func TestCache_WindowIsPartOfKey(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	thisWeek := key(domain.MetricPoints, domain.PeriodWeekly, 10)
	thisWeek.Since = time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC)
	nextWeek := thisWeek
	nextWeek.Since = thisWeek.Since.AddDate(0, 0, 7)

	require.NoError(t, c.Set(ctx, thisWeek, board))
	_, ok, err := c.Get(ctx, nextWeek)
	require.NoError(t, err)
	assert.False(t, ok, "a new window starts empty")

	assert.Equal(t, "learnquest:leaderboard:points:weekly:1715558400:10", rediscache.Key(thisWeek))
	assert.True(t, mr.Exists(rediscache.Key(thisWeek)))
	assert.Equal(t, "learnquest:leaderboard:level:all_time:0:10",
		rediscache.Key(key(domain.MetricLevel, domain.PeriodAllTime, 10)))
}

func TestCache_EmptyBoardIsAHit(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key(domain.MetricBadges, domain.PeriodAllTime, 10), nil))
	got, ok, err := c.Get(ctx, key(domain.MetricBadges, domain.PeriodAllTime, 10))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestCache_TTL(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, key(domain.MetricLevel, domain.PeriodAllTime, 10), board))
	assert.Equal(t, time.Minute, mr.TTL(rediscache.Key(key(domain.MetricLevel, domain.PeriodAllTime, 10))))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.Get(ctx, key(domain.MetricLevel, domain.PeriodAllTime, 10))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCache_InvalidateKeepsForeignKeys(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	for limit := 1; limit <= 150; limit++ {
		require.NoError(t, c.Set(ctx, key(domain.MetricPoints, domain.PeriodDaily, limit), board))
	}
	require.NoError(t, mr.Set("session:abc", "keep"))

	require.NoError(t, c.Invalidate(ctx))
	assert.Equal(t, []string{"session:abc"}, mr.Keys())
}

func TestCache_CorruptPayload(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set(rediscache.Key(key(domain.MetricPoints, domain.PeriodAllTime, 10)), "{not json"))

	_, ok, err := c.Get(context.Background(), key(domain.MetricPoints, domain.PeriodAllTime, 10))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestCache_ServerDown(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), key(domain.MetricPoints, domain.PeriodAllTime, 10))
	assert.Error(t, err)
	assert.Error(t, c.Ping(context.Background()))
}

func TestNew_Unreachable(t *testing.T) {
	_, err := rediscache.New(context.Background(), rediscache.Config{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
	})
	assert.Error(t, err)
}
