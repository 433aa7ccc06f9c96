package engagement

import (
	"fmt"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Notification Builders ──────────────────────────────────────────────────
// The engine only describes notifications; delivery belongs to the caller.

const (
	colorPoints  = "#4CAF50"
	colorLevelUp = "#FFC107"
	colorStreak  = "#FF5722"
	colorWelcome = "#2196F3"
	colorRetry   = "#9E9E9E"
	colorCourse  = "#673AB7"
)

func pointsNotification(points int64, title string) domain.Notification {
	return domain.Notification{
		Type:    domain.NotifyPoints,
		Title:   "Points earned",
		Message: fmt.Sprintf("You earned %d points for %s", points, title),
		Icon:    "⭐",
		Color:   colorPoints,
	}
}

func badgeNotification(b domain.Badge) domain.Notification {
	icon := b.Icon
	if icon == "" {
		icon = "🏅"
	}
	return domain.Notification{
		Type:    domain.NotifyBadge,
		Title:   "Badge earned",
		Message: fmt.Sprintf("You earned the %s badge!", b.Name),
		Icon:    icon,
		Color:   b.Color,
	}
}

func levelUpNotification(change domain.LevelChange) domain.Notification {
	return domain.Notification{
		Type:    domain.NotifyLevelUp,
		Title:   "Level up",
		Message: fmt.Sprintf("You reached level %d!", change.To),
		Icon:    "🚀",
		Color:   colorLevelUp,
	}
}

func streakNotification(days int) domain.Notification {
	return domain.Notification{
		Type:    domain.NotifyStreak,
		Title:   "Streak",
		Message: fmt.Sprintf("%d-day learning streak! Keep it going", days),
		Icon:    "🔥",
		Color:   colorStreak,
	}
}

func welcomeNotification(points int64, courseTitle string) domain.Notification {
	return domain.Notification{
		Type:    domain.NotifyWelcome,
		Title:   "Welcome",
		Message: fmt.Sprintf("Welcome to %s! You earned %d points for enrolling", courseTitle, points),
		Icon:    "👋",
		Color:   colorWelcome,
	}
}

func retryNotification(message string) domain.Notification {
	return domain.Notification{
		Type:    domain.NotifyRetry,
		Title:   "Keep trying",
		Message: message,
		Icon:    "💪",
		Color:   colorRetry,
	}
}

func courseNotification(points int64, courseTitle string) domain.Notification {
	return domain.Notification{
		Type:    domain.NotifyCourse,
		Title:   "Course completed",
		Message: fmt.Sprintf("You completed %s and earned %d points", courseTitle, points),
		Icon:    "🎓",
		Color:   colorCourse,
	}
}

// Encouragement returns the retry message for a failed attempt number.
func Encouragement(attempts, score int) string {
	switch {
	case attempts <= 1:
		return fmt.Sprintf("You scored %d. You need %d to pass; review the material and try again.",
			score, domain.PassThreshold)
	case attempts == 2:
		return fmt.Sprintf("Closer! %d this time. Focus on the parts you missed.", score)
	case attempts <= 4:
		return "Persistence pays off. Take a short break, then give it another go."
	}
	return "Don't give up! Consider revisiting earlier activities or asking for help."
}
