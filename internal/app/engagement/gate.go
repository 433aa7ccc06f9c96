package engagement

import (
	"context"
	"fmt"

	"github.com/tutu-network/learnquest/internal/domain"
)

// ─── Progression Gate ───────────────────────────────────────────────────────
// An activity at position k > 0 of the active sequence unlocks once at
// least PassThreshold percent of the k earlier activities are passed.

// CheckAccess decides whether a user may start an activity. Unknown users
// or activities are errors; every other refusal is a denial. It only reads.
func CheckAccess(ctx context.Context, r domain.Reader, userID, activityID string) (domain.AccessDecision, error) {
	user, err := r.GetUser(ctx, userID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("get user: %w", err)
	}
	if user == nil {
		return domain.AccessDecision{}, domain.ErrUserNotFound
	}
	act, err := r.GetActivity(ctx, activityID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("get activity: %w", err)
	}
	if act == nil {
		return domain.AccessDecision{}, domain.ErrActivityNotFound
	}

	if !act.IsActive {
		return domain.AccessDecision{Reason: "activity is not active"}, nil
	}
	enrollment, err := r.GetEnrollment(ctx, userID, act.CourseID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("get enrollment: %w", err)
	}
	if enrollment == nil {
		return domain.AccessDecision{Reason: "not enrolled in this course"}, nil
	}

	all, err := r.ListCourseActivities(ctx, act.CourseID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("list activities: %w", err)
	}
	completions, err := r.ListCourseCompletions(ctx, userID, act.CourseID)
	if err != nil {
		return domain.AccessDecision{}, fmt.Errorf("list completions: %w", err)
	}
	byActivity := make(map[string]domain.Completion, len(completions))
	for _, c := range completions {
		byActivity[c.ActivityID] = c
	}

	var (
		sequence []domain.ActivityProgress
		position = -1
	)
	for _, a := range all {
		if !a.IsActive {
			continue
		}
		p := domain.ActivityProgress{ActivityID: a.ID, Title: a.Title, Order: a.Order}
		if c, ok := byActivity[a.ID]; ok {
			p.Score = c.Score
			p.Attempts = c.Attempts
			p.Passed = c.Passed()
		}
		if a.ID == act.ID {
			position = len(sequence)
		}
		sequence = append(sequence, p)
	}

	decision := domain.AccessDecision{PreviousActivities: []domain.ActivityProgress{}}
	for i := range sequence {
		if !sequence[i].Passed {
			next := sequence[i]
			decision.NextActivity = &next
			break
		}
	}

	if position <= 0 {
		decision.Allowed = true
		decision.CurrentProgressPct = 100
		decision.Reason = "first activity in the course"
		return decision, nil
	}

	decision.PreviousActivities = sequence[:position]
	passed := 0
	for _, p := range decision.PreviousActivities {
		if p.Passed {
			passed++
		}
	}
	decision.CurrentProgressPct = float64(passed) / float64(position) * 100
	decision.Allowed = passed*100 >= domain.PassThreshold*position
	if decision.Allowed {
		decision.Reason = fmt.Sprintf("%d of %d previous activities passed", passed, position)
	} else {
		decision.Reason = fmt.Sprintf("pass at least %d%% of previous activities to unlock (%d of %d passed)",
			domain.PassThreshold, passed, position)
	}
	return decision, nil
}
