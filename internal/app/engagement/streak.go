// Package engagement implements the LearnQuest gamification engine:
// points, levels, streaks, badges, progression gating and leaderboards.
package engagement

import (
	"sort"
	"time"

	"github.com/jinzhu/now"

	"github.com/tutu-network/learnquest/internal/domain"
)

// StreakMilestone is the streak length from which every passing
// completion is announced.
const StreakMilestone = 3

// calendar resolves day, week and month boundaries in one time zone.
type calendar struct {
	loc *time.Location
}

func newCalendar(loc *time.Location) calendar {
	if loc == nil {
		loc = time.UTC
	}
	return calendar{loc: loc}
}

func (c calendar) at(t time.Time) *now.Now {
	return now.With(t.In(c.loc))
}

// day returns midnight of t's calendar day.
func (c calendar) day(t time.Time) time.Time {
	return c.at(t).BeginningOfDay()
}

// weekStart returns the Monday midnight of t's week.
func (c calendar) weekStart(t time.Time) time.Time {
	cfg := &now.Config{WeekStartDay: time.Monday, TimeLocation: c.loc}
	return cfg.With(t.In(c.loc)).BeginningOfWeek()
}

func (c calendar) monthStart(t time.Time) time.Time {
	return c.at(t).BeginningOfMonth()
}

// daysBetween counts calendar days from a to b.
func (c calendar) daysBetween(a, b time.Time) int {
	da, db := c.day(a), c.day(b)
	ay, am, ad := da.Date()
	by, bm, bd := db.Date()
	ua := time.Date(ay, am, ad, 0, 0, 0, 0, time.UTC)
	ub := time.Date(by, bm, bd, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ApplyStreak updates the user's streak for a passing completion at t.
// lastOther is the latest completion of any other activity, zero if none.
func ApplyStreak(u *domain.User, lastOther, t time.Time, loc *time.Location) domain.StreakInfo {
	cal := newCalendar(loc)
	info := domain.StreakInfo{}

	switch {
	case lastOther.IsZero():
		u.CurrentStreak = 1
		info.Reset = true
	case cal.daysBetween(lastOther, t) == 0:
		if u.CurrentStreak < 1 {
			u.CurrentStreak = 1
		}
	case cal.daysBetween(lastOther, t) == 1:
		u.CurrentStreak++
		info.Extended = true
	default:
		u.CurrentStreak = 1
		info.Reset = true
	}

	if u.CurrentStreak > u.LongestStreak {
		u.LongestStreak = u.CurrentStreak
	}
	u.LastActivityAt = t

	info.Current = u.CurrentStreak
	info.Longest = u.LongestStreak
	info.Milestone = u.CurrentStreak >= StreakMilestone
	return info
}

// StreaksFromHistory derives (current, longest) from completion times.
// The current run is the one ending on the latest completion day.
func StreaksFromHistory(times []time.Time, loc *time.Location) (current, longest int) {
	if len(times) == 0 {
		return 0, 0
	}
	cal := newCalendar(loc)

	sorted := make([]time.Time, len(times))
	copy(sorted, times)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	run := 1
	longest = 1
	prev := sorted[0]
	for _, t := range sorted[1:] {
		switch cal.daysBetween(prev, t) {
		case 0:
		case 1:
			run++
		default:
			run = 1
		}
		if run > longest {
			longest = run
		}
		prev = t
	}
	return run, longest
}
