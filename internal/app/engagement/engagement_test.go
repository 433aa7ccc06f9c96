package engagement_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tutu-network/learnquest/internal/app/engagement"
	"github.com/tutu-network/learnquest/internal/domain"
)

// ═══════════════════════════════════════════════════════════════════════════
// Level Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestLevelForPoints_Table(t *testing.T) {
	cases := []struct {
		points int64
		level  int
	}{
		{-50, 1}, {0, 1}, {99, 1}, {100, 2}, {249, 2}, {250, 3}, {500, 4},
		{999, 4}, {1000, 5}, {2000, 6}, {3500, 7}, {5500, 8}, {8000, 9},
		{11999, 9}, {12000, 10}, {1_000_000, 10},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.level, engagement.LevelForPoints(tc.points), "points=%d", tc.points)
	}
}

func TestLevelForPoints_Monotonic(t *testing.T) {
	prev := engagement.LevelForPoints(-1)
	for p := int64(0); p <= 13000; p += 7 {
		l := engagement.LevelForPoints(p)
		require.GreaterOrEqual(t, l, prev, "level dropped at %d points", p)
		// Pure: same input, same output.
		require.Equal(t, l, engagement.LevelForPoints(p))
		prev = l
	}
}

func TestLevelFor_Info(t *testing.T) {
	info := engagement.LevelFor(175)
	assert.Equal(t, 2, info.Level)
	assert.EqualValues(t, 75, info.PointsToNext)
	assert.InDelta(t, 50.0, info.ProgressPct, 0.001)
	assert.False(t, info.MaxLevel)

	top := engagement.LevelFor(15000)
	assert.Equal(t, engagement.MaxLevel, top.Level)
	assert.Zero(t, top.PointsToNext)
	assert.True(t, top.MaxLevel)
}

// ═══════════════════════════════════════════════════════════════════════════
// Scoring Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestActivityPoints_Scenario(t *testing.T) {
	// Score 96, expected 30 minutes, spent 20 minutes.
	assert.EqualValues(t, 18, engagement.ActivityPoints(10, 96, 20*60, 30))
}

func TestScoreBonus(t *testing.T) {
	assert.Equal(t, 1.5, engagement.ScoreBonus(95))
	assert.Equal(t, 1.3, engagement.ScoreBonus(94))
	assert.Equal(t, 1.3, engagement.ScoreBonus(85))
	assert.Equal(t, 1.1, engagement.ScoreBonus(75))
	assert.Equal(t, 1.0, engagement.ScoreBonus(74))
}

func TestTimeBonus(t *testing.T) {
	assert.Equal(t, 1.2, engagement.TimeBonus(480, 10))
	assert.Equal(t, 1.1, engagement.TimeBonus(600, 10))
	assert.Equal(t, 1.0, engagement.TimeBonus(900, 10))
	assert.Equal(t, 0.9, engagement.TimeBonus(901, 10))
	assert.Equal(t, 1.0, engagement.TimeBonus(5, 0), "no expected duration")
}

func TestCompletionBonus(t *testing.T) {
	assert.EqualValues(t, 50, engagement.CompletionBonus(5))
	assert.EqualValues(t, 50, engagement.CompletionBonus(7))
	assert.EqualValues(t, 30, engagement.CompletionBonus(14))
	assert.EqualValues(t, 15, engagement.CompletionBonus(21))
	assert.EqualValues(t, 0, engagement.CompletionBonus(22))
}

// ═══════════════════════════════════════════════════════════════════════════
// Streak Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestApplyStreak_FirstCompletion(t *testing.T) {
	u := &domain.User{}
	at := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	info := engagement.ApplyStreak(u, time.Time{}, at, time.UTC)
	assert.Equal(t, 1, info.Current)
	assert.Equal(t, 1, u.LongestStreak)
	assert.Equal(t, at, u.LastActivityAt)
}

func TestApplyStreak_SameDayUnchanged(t *testing.T) {
	u := &domain.User{CurrentStreak: 4, LongestStreak: 6}
	prev := time.Date(2025, 7, 1, 8, 0, 0, 0, time.UTC)

	info := engagement.ApplyStreak(u, prev, prev.Add(10*time.Hour), time.UTC)
	assert.Equal(t, 4, info.Current)
	assert.False(t, info.Extended)
	assert.False(t, info.Reset)
	assert.True(t, info.Milestone, "a held streak of 3+ is still announced")
	assert.Equal(t, 6, u.LongestStreak)
}

func TestApplyStreak_MilestoneThreshold(t *testing.T) {
	prev := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	u := &domain.User{CurrentStreak: 1, LongestStreak: 1}
	info := engagement.ApplyStreak(u, prev, prev.AddDate(0, 0, 1), time.UTC)
	assert.Equal(t, 2, info.Current)
	assert.False(t, info.Milestone)

	u = &domain.User{CurrentStreak: 5, LongestStreak: 5}
	info = engagement.ApplyStreak(u, prev, prev.AddDate(0, 0, 3), time.UTC)
	assert.True(t, info.Reset)
	assert.False(t, info.Milestone, "a reset streak is below the threshold")
}

func TestApplyStreak_ConsecutiveDay(t *testing.T) {
	u := &domain.User{CurrentStreak: 2, LongestStreak: 2}
	prev := time.Date(2025, 7, 1, 23, 30, 0, 0, time.UTC)

	info := engagement.ApplyStreak(u, prev, prev.Add(time.Hour), time.UTC)
	assert.Equal(t, 3, info.Current)
	assert.True(t, info.Extended)
	assert.True(t, info.Milestone)
	assert.Equal(t, 3, u.LongestStreak)
}

func TestApplyStreak_GapResets(t *testing.T) {
	u := &domain.User{CurrentStreak: 5, LongestStreak: 5}
	prev := time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC)

	info := engagement.ApplyStreak(u, prev, prev.AddDate(0, 0, 2), time.UTC)
	assert.Equal(t, 1, info.Current)
	assert.True(t, info.Reset)
	assert.Equal(t, 5, u.LongestStreak)
}

func TestApplyStreak_TimeZoneDays(t *testing.T) {
	tokyo, err := time.LoadLocation("Asia/Tokyo")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// 14:00 UTC and 16:00 UTC straddle midnight in Tokyo (23:00 → 01:00).
	prev := time.Date(2025, 7, 1, 14, 0, 0, 0, time.UTC)
	now := time.Date(2025, 7, 1, 16, 0, 0, 0, time.UTC)

	u := &domain.User{CurrentStreak: 1, LongestStreak: 1}
	info := engagement.ApplyStreak(u, prev, now, tokyo)
	assert.Equal(t, 2, info.Current, "next calendar day in Tokyo")

	u = &domain.User{CurrentStreak: 1, LongestStreak: 1}
	info = engagement.ApplyStreak(u, prev, now, time.UTC)
	assert.Equal(t, 1, info.Current, "same calendar day in UTC")
}

func TestStreaksFromHistory(t *testing.T) {
	d := func(day, hour int) time.Time { return time.Date(2025, 3, day, hour, 0, 0, 0, time.UTC) }

	current, longest := engagement.StreaksFromHistory([]time.Time{
		d(1, 9), d(2, 9), d(2, 18), d(3, 7), // run of 3
		d(6, 9), d(7, 9), // run of 2, ends at latest day
	}, time.UTC)
	assert.Equal(t, 2, current)
	assert.Equal(t, 3, longest)

	current, longest = engagement.StreaksFromHistory(nil, time.UTC)
	assert.Zero(t, current)
	assert.Zero(t, longest)
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Rule Tests
// ═══════════════════════════════════════════════════════════════════════════

func badgeIDs(badges []domain.Badge) []string {
	ids := make([]string, 0, len(badges))
	for _, b := range badges {
		ids = append(ids, b.ID)
	}
	return ids
}

func TestEvaluateBadges_TriggerFiltering(t *testing.T) {
	catalogue := engagement.DefaultBadges()
	stats := engagement.Stats{
		CompletedActivities: 1,
		TotalPoints:         120,
		Enrollments:         1,
		Score:               100,
		Efficiency:          0.5,
		Level:               2,
	}

	got := engagement.EvaluateBadges(catalogue, nil, stats, domain.TriggerActivityCompleted)
	assert.ElementsMatch(t, []string{"first-steps", "perfectionist", "speed-learner", "century"}, badgeIDs(got))

	got = engagement.EvaluateBadges(catalogue, nil, stats, domain.TriggerCourseEnrolled)
	assert.ElementsMatch(t, []string{"welcome", "century"}, badgeIDs(got))

	got = engagement.EvaluateBadges(catalogue, nil, stats, domain.TriggerPointsSpent)
	assert.Empty(t, got)
}

func TestEvaluateBadges_Idempotent(t *testing.T) {
	catalogue := engagement.DefaultBadges()
	stats := engagement.Stats{CompletedActivities: 12, CurrentStreak: 7}

	first := engagement.EvaluateBadges(catalogue, nil, stats, domain.TriggerActivityCompleted)
	require.NotEmpty(t, first)

	held := make(map[string]bool)
	for _, b := range first {
		held[b.ID] = true
	}
	again := engagement.EvaluateBadges(catalogue, held, stats, domain.TriggerActivityCompleted)
	assert.Empty(t, again)
}

func TestEvaluateBadges_SkipsMalformedAndInactive(t *testing.T) {
	badges := []domain.Badge{
		{ID: "broken", IsActive: true},
		{ID: "retired", IsActive: false, Criteria: domain.CompletionCount{N: 1}},
		{ID: "ok", IsActive: true, Criteria: domain.CompletionCount{N: 1}},
	}
	got := engagement.EvaluateBadges(badges, nil, engagement.Stats{CompletedActivities: 1}, domain.TriggerActivityCompleted)
	assert.Equal(t, []string{"ok"}, badgeIDs(got))
}

func TestEvaluateBadges_SpeedLearnerNeedsDuration(t *testing.T) {
	badges := []domain.Badge{{ID: "fast", IsActive: true, Criteria: domain.Special{Tag: domain.TagSpeedLearner}}}
	got := engagement.EvaluateBadges(badges, nil, engagement.Stats{Efficiency: 0}, domain.TriggerActivityCompleted)
	assert.Empty(t, got)
}

func TestEvaluateBadges_LevelSpecials(t *testing.T) {
	catalogue := engagement.DefaultBadges()
	got := engagement.EvaluateBadges(catalogue, nil, engagement.Stats{Level: 10, TotalPoints: 12000}, domain.TriggerLevelUp)
	assert.ElementsMatch(t, []string{"rising-star", "legend", "century", "high-achiever"}, badgeIDs(got))
}

// ═══════════════════════════════════════════════════════════════════════════
// Ranking Tests
// ═══════════════════════════════════════════════════════════════════════════

func TestRankStandings_CompetitionRanking(t *testing.T) {
	rows := []domain.Standing{
		{UserID: "a", Value: 50},
		{UserID: "b", Value: 50},
		{UserID: "c", Value: 30},
		{UserID: "d", Value: 10},
		{UserID: "e", Value: 10},
	}
	ranked := engagement.RankStandings(rows)
	ranks := make([]int, len(ranked))
	for i, r := range ranked {
		ranks[i] = r.Rank
	}
	assert.Equal(t, []int{1, 1, 3, 4, 4}, ranks)
}

func TestNormalizeLimit(t *testing.T) {
	assert.Equal(t, engagement.DefaultLeaderboardLimit, engagement.NormalizeLimit(0))
	assert.Equal(t, 25, engagement.NormalizeLimit(25))
	assert.Equal(t, engagement.MaxLeaderboardLimit, engagement.NormalizeLimit(5000))
}

func TestEncouragement_ByAttempt(t *testing.T) {
	first := engagement.Encouragement(1, 60)
	second := engagement.Encouragement(2, 65)
	later := engagement.Encouragement(6, 40)
	assert.Contains(t, first, "60")
	assert.NotEqual(t, first, second)
	assert.NotEqual(t, second, later)
}
