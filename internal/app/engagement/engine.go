package engagement

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tutu-network/learnquest/internal/app/ledger"
	"github.com/tutu-network/learnquest/internal/domain"
	"github.com/tutu-network/learnquest/internal/infra/metrics"
	"github.com/tutu-network/learnquest/internal/logger"
)

// DefaultEnrollmentBonus is the flat grant for enrolling in a course.
const DefaultEnrollmentBonus = 5

const tracerName = "github.com/tutu-network/learnquest/internal/app/engagement"

// Config tunes an Engine. Zero values select the defaults.
type Config struct {
	// Location defines calendar days for streaks and leaderboard windows.
	Location *time.Location
	// EnrollmentBonus is granted on every enrollment. Negative disables it.
	EnrollmentBonus int64
	// Cache is an optional leaderboard read-through cache.
	Cache  domain.LeaderboardCache
	Logger *logger.Logger
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Engine turns learning events into points, levels, streaks, badges and
// notifications, and answers access and leaderboard queries.
type Engine struct {
	store  domain.Store
	ledger *ledger.Service
	badges *BadgeEvaluator
	board  *LeaderboardBuilder
	cal    calendar
	bonus  int64
	now    func() time.Time
	log    *logger.Logger
	tracer trace.Tracer
}

// NewEngine creates an engine over a store.
func NewEngine(store domain.Store, cfg Config) *Engine {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Nop()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	switch {
	case cfg.EnrollmentBonus == 0:
		cfg.EnrollmentBonus = DefaultEnrollmentBonus
	case cfg.EnrollmentBonus < 0:
		cfg.EnrollmentBonus = 0
	}

	log := cfg.Logger.With("component", "engine")
	return &Engine{
		store:  store,
		ledger: ledger.NewService(cfg.Now),
		badges: NewBadgeEvaluator(log, cfg.Now),
		board:  NewLeaderboardBuilder(store, cfg.Cache, cfg.Location, cfg.Now, log),
		cal:    newCalendar(cfg.Location),
		bonus:  cfg.EnrollmentBonus,
		now:    cfg.Now,
		log:    log,
		tracer: otel.Tracer(tracerName),
	}
}

// Leaderboards exposes the builder for cache warm-up.
func (e *Engine) Leaderboards() *LeaderboardBuilder {
	return e.board
}

// ─── Transaction Runner ─────────────────────────────────────────────────────

// isDomainError reports errors that describe the request rather than a
// processing failure. They are returned unwrapped.
func isDomainError(err error) bool {
	return domain.IsValidation(err) || domain.IsNotFound(err) || domain.IsConflict(err) ||
		errors.Is(err, domain.ErrInvalidCriteria)
}

// runTx executes fn in one transaction and records tracing, metrics and
// logs. Unexpected failures come back as *domain.EventError.
func runTx[T any](ctx context.Context, e *Engine, event domain.Trigger, userID string,
	fn func(ctx context.Context, tx domain.Tx) (T, error)) (T, error) {
	ctx, span := e.tracer.Start(ctx, "engagement."+string(event),
		trace.WithAttributes(attribute.String("user.id", userID)))
	defer span.End()

	start := time.Now()
	var out T
	err := e.store.WithTx(ctx, func(tx domain.Tx) error {
		v, err := fn(ctx, tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	metrics.EventLatency.WithLabelValues(string(event)).Observe(time.Since(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		var zero T
		if isDomainError(err) {
			metrics.EventsProcessed.WithLabelValues(string(event), "rejected").Inc()
			e.log.Debug("event rejected", "event", event, "user_id", userID, "error", err)
			return zero, err
		}
		metrics.EventsProcessed.WithLabelValues(string(event), "failed").Inc()
		e.log.Error("event rolled back", "event", event, "user_id", userID, "error", err)
		return zero, &domain.EventError{Event: event, Err: err}
	}

	e.board.Invalidate(ctx)
	return out, nil
}

// recordResult publishes metrics for a committed event.
func (e *Engine) recordResult(res *domain.EventResult, source domain.SourceType) {
	outcome := "ok"
	switch {
	case res.NeedsRetry:
		outcome = "retry"
	case res.AlreadyCompleted:
		outcome = "duplicate"
	}
	metrics.EventsProcessed.WithLabelValues(string(res.Trigger), outcome).Inc()
	if res.PointsAwarded > 0 {
		metrics.PointsGranted.WithLabelValues(string(source)).Add(float64(res.PointsAwarded))
	}
	for _, b := range res.BadgesEarned {
		metrics.BadgesAwarded.WithLabelValues(b.ID).Inc()
	}
	if res.LevelChange != nil {
		metrics.LevelUps.WithLabelValues(strconv.Itoa(res.LevelChange.To)).Inc()
	}

	e.log.Info("event processed",
		"event", res.Trigger,
		"user_id", res.UserID,
		"outcome", outcome,
		"points", res.PointsAwarded,
		"total", res.TotalPoints,
		"badges", len(res.BadgesEarned),
	)
}

func newResult(userID string, trigger domain.Trigger, total int64) *domain.EventResult {
	return &domain.EventResult{
		UserID:        userID,
		Trigger:       trigger,
		TotalPoints:   total,
		BadgesEarned:  []domain.Badge{},
		Notifications: []domain.Notification{},
	}
}

// ─── Shared Steps ───────────────────────────────────────────────────────────

func (e *Engine) lockUser(ctx context.Context, tx domain.Tx, userID string) (*domain.User, error) {
	user, err := tx.LockUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("lock user: %w", err)
	}
	if user == nil {
		return nil, domain.ErrUserNotFound
	}
	return user, nil
}

func (e *Engine) activeCourse(ctx context.Context, r domain.Reader, courseID string) (*domain.Course, error) {
	course, err := r.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, domain.ErrCourseNotFound
	}
	if !course.IsActive {
		return nil, domain.ErrCourseInactive
	}
	return course, nil
}

// grant writes points and keeps the in-memory user in step.
func (e *Engine) grant(ctx context.Context, tx domain.Tx, user *domain.User, amount int64,
	source domain.SourceType, sourceID, reason string) error {
	if amount <= 0 {
		return nil
	}
	if _, err := e.ledger.Grant(ctx, tx, user.ID, amount, source, sourceID, reason); err != nil {
		return fmt.Errorf("grant points: %w", err)
	}
	user.TotalPoints += amount
	return nil
}

// applyLevel recomputes the user's level from lifetime earned points and
// reports an increase. Levels never go down.
func (e *Engine) applyLevel(ctx context.Context, tx domain.Tx, user *domain.User) (*domain.LevelChange, error) {
	earned, err := ledger.EarnedFor(ctx, tx, user.ID)
	if err != nil {
		return nil, fmt.Errorf("sum earned: %w", err)
	}
	level := LevelForPoints(earned)
	if level <= user.Level {
		return nil, nil
	}
	change := &domain.LevelChange{From: user.Level, To: level}
	user.Level = level
	return change, nil
}

// stats loads the aggregate snapshot used for badge evaluation.
func (e *Engine) stats(ctx context.Context, tx domain.Tx, user *domain.User) (Stats, error) {
	s := Stats{
		TotalPoints:   user.TotalPoints,
		CurrentStreak: user.CurrentStreak,
		Level:         user.Level,
	}
	var err error
	if s.CompletedActivities, err = tx.CountCompletedActivities(ctx, user.ID); err != nil {
		return s, fmt.Errorf("count completions: %w", err)
	}
	if s.Enrollments, err = tx.CountEnrollments(ctx, user.ID); err != nil {
		return s, fmt.Errorf("count enrollments: %w", err)
	}
	if s.CompletedCourses, err = tx.CountCompletedCourses(ctx, user.ID); err != nil {
		return s, fmt.Errorf("count completed courses: %w", err)
	}
	return s, nil
}

// awardBadges evaluates the trigger's badges plus level-up badges when the
// level rose, and appends badge and level notifications.
func (e *Engine) awardBadges(ctx context.Context, tx domain.Tx, res *domain.EventResult,
	trigger domain.Trigger, s Stats) error {
	if res.LevelChange != nil {
		earned, err := e.badges.Evaluate(ctx, tx, res.UserID, domain.TriggerLevelUp, s)
		if err != nil {
			return fmt.Errorf("level-up badges: %w", err)
		}
		res.BadgesEarned = append(res.BadgesEarned, earned...)
	}

	earned, err := e.badges.Evaluate(ctx, tx, res.UserID, trigger, s)
	if err != nil {
		return fmt.Errorf("%s badges: %w", trigger, err)
	}
	res.BadgesEarned = append(res.BadgesEarned, earned...)

	for _, b := range res.BadgesEarned {
		res.Notifications = append(res.Notifications, badgeNotification(b))
	}
	if res.LevelChange != nil {
		res.Notifications = append(res.Notifications, levelUpNotification(*res.LevelChange))
	}
	return nil
}

// courseProgress returns the share of active activities the user passed.
func courseProgress(ctx context.Context, r domain.Reader, userID, courseID string) (float64, error) {
	acts, err := r.ListCourseActivities(ctx, courseID)
	if err != nil {
		return 0, err
	}
	comps, err := r.ListCourseCompletions(ctx, userID, courseID)
	if err != nil {
		return 0, err
	}
	passed := make(map[string]bool, len(comps))
	for _, c := range comps {
		passed[c.ActivityID] = c.Passed()
	}

	total, done := 0, 0
	for _, a := range acts {
		if !a.IsActive {
			continue
		}
		total++
		if passed[a.ID] {
			done++
		}
	}
	if total == 0 {
		return 0, nil
	}
	return math.Round(float64(done)/float64(total)*10000) / 100, nil
}

// ─── Activity Completion ────────────────────────────────────────────────────

// OnActivityCompleted processes one attempt at an activity.
func (e *Engine) OnActivityCompleted(ctx context.Context, userID, activityID string, score, timeSpentSeconds int) (*domain.EventResult, error) {
	if score < 0 || score > 100 {
		return nil, domain.ErrInvalidScore
	}
	if timeSpentSeconds < 0 {
		return nil, domain.ErrInvalidTimeSpent
	}

	res, err := runTx(ctx, e, domain.TriggerActivityCompleted, userID,
		func(ctx context.Context, tx domain.Tx) (*domain.EventResult, error) {
			return e.completeActivity(ctx, tx, userID, activityID, score, timeSpentSeconds)
		})
	if err != nil {
		return nil, err
	}
	e.recordResult(res, domain.SourceActivity)
	return res, nil
}

func (e *Engine) completeActivity(ctx context.Context, tx domain.Tx, userID, activityID string,
	score, timeSpent int) (*domain.EventResult, error) {
	user, err := e.lockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	act, err := tx.GetActivity(ctx, activityID)
	if err != nil {
		return nil, fmt.Errorf("get activity: %w", err)
	}
	if act == nil {
		return nil, domain.ErrActivityNotFound
	}
	if !act.IsActive {
		return nil, domain.ErrActivityInactive
	}
	if _, err := e.activeCourse(ctx, tx, act.CourseID); err != nil {
		return nil, err
	}
	enrollment, err := tx.GetEnrollment(ctx, userID, act.CourseID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, domain.ErrNotEnrolled
	}
	decision, err := CheckAccess(ctx, tx, userID, activityID)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", domain.ErrActivityLocked, decision.Reason)
	}

	now := e.now()
	completion, err := tx.GetCompletion(ctx, userID, activityID)
	if err != nil {
		return nil, fmt.Errorf("get completion: %w", err)
	}
	if completion == nil {
		completion = &domain.Completion{UserID: userID, ActivityID: activityID, CourseID: act.CourseID}
	}
	wasCompleted := completion.IsCompleted()
	lastOther, err := tx.LastCompletionExcluding(ctx, userID, activityID)
	if err != nil {
		return nil, fmt.Errorf("last completion: %w", err)
	}

	completion.RecordAttempt(score, timeSpent, now)
	if err := tx.SaveCompletion(ctx, *completion); err != nil {
		return nil, err
	}

	res := newResult(userID, domain.TriggerActivityCompleted, user.TotalPoints)
	res.Score = completion.Score
	res.Attempts = completion.Attempts

	// A completed activity stays completed whatever the new score.
	if wasCompleted {
		res.AlreadyCompleted = true
		res.Message = "Activity already completed; your best score is kept."
		return res, nil
	}
	if score < domain.PassThreshold {
		res.Score = score
		res.NeedsRetry = true
		res.CanRetry = true
		res.Message = Encouragement(completion.Attempts, score)
		res.Notifications = append(res.Notifications, retryNotification(res.Message))
		return res, nil
	}

	res.ScoreBonus = ScoreBonus(score)
	res.TimeBonus = TimeBonus(timeSpent, act.DurationMinutes)
	points := ActivityPoints(act.PointsValue, score, timeSpent, act.DurationMinutes)
	if err := e.grant(ctx, tx, user, points, domain.SourceActivity, act.ID, "Completed "+act.Title); err != nil {
		return nil, err
	}
	res.PointsAwarded = points
	if res.LevelChange, err = e.applyLevel(ctx, tx, user); err != nil {
		return nil, err
	}
	streak := ApplyStreak(user, lastOther, now, e.cal.loc)
	res.Streak = &streak

	if err := tx.UpdateUserStats(ctx, *user); err != nil {
		return nil, err
	}
	res.TotalPoints = user.TotalPoints

	s, err := e.stats(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	s.Score = score
	s.Efficiency = Efficiency(timeSpent, act.DurationMinutes)

	if points > 0 {
		res.Notifications = append(res.Notifications, pointsNotification(points, act.Title))
	}
	if err := e.awardBadges(ctx, tx, res, domain.TriggerActivityCompleted, s); err != nil {
		return nil, err
	}
	if streak.Milestone {
		res.Notifications = append(res.Notifications, streakNotification(streak.Current))
	}

	progress, err := courseProgress(ctx, tx, userID, act.CourseID)
	if err != nil {
		return nil, fmt.Errorf("course progress: %w", err)
	}
	enrollment.ProgressPct = progress
	if err := tx.UpdateEnrollment(ctx, *enrollment); err != nil {
		return nil, err
	}
	res.CourseProgress = progress
	res.Message = fmt.Sprintf("Great job! You earned %d points.", points)
	return res, nil
}

// ─── Course Enrollment ──────────────────────────────────────────────────────

// OnCourseEnrolled enrolls a user and grants the enrollment bonus.
func (e *Engine) OnCourseEnrolled(ctx context.Context, userID, courseID string) (*domain.EventResult, error) {
	res, err := runTx(ctx, e, domain.TriggerCourseEnrolled, userID,
		func(ctx context.Context, tx domain.Tx) (*domain.EventResult, error) {
			return e.enroll(ctx, tx, userID, courseID)
		})
	if err != nil {
		return nil, err
	}
	e.recordResult(res, domain.SourceEnrollment)
	return res, nil
}

func (e *Engine) enroll(ctx context.Context, tx domain.Tx, userID, courseID string) (*domain.EventResult, error) {
	user, err := e.lockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	course, err := e.activeCourse(ctx, tx, courseID)
	if err != nil {
		return nil, err
	}
	existing, err := tx.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	if existing != nil {
		return nil, domain.ErrAlreadyEnrolled
	}

	if err := tx.InsertEnrollment(ctx, domain.Enrollment{
		UserID:     userID,
		CourseID:   courseID,
		EnrolledAt: e.now(),
	}); err != nil {
		return nil, err
	}

	if err := e.grant(ctx, tx, user, e.bonus, domain.SourceEnrollment, courseID, "Enrolled in "+course.Title); err != nil {
		return nil, err
	}
	res := newResult(userID, domain.TriggerCourseEnrolled, user.TotalPoints)
	res.PointsAwarded = e.bonus
	if res.LevelChange, err = e.applyLevel(ctx, tx, user); err != nil {
		return nil, err
	}
	if err := tx.UpdateUserStats(ctx, *user); err != nil {
		return nil, err
	}

	s, err := e.stats(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	res.WelcomeBonus = s.Enrollments == 1
	if res.WelcomeBonus {
		res.Notifications = append(res.Notifications, welcomeNotification(e.bonus, course.Title))
	} else if e.bonus > 0 {
		res.Notifications = append(res.Notifications, pointsNotification(e.bonus, "enrolling in "+course.Title))
	}
	if err := e.awardBadges(ctx, tx, res, domain.TriggerCourseEnrolled, s); err != nil {
		return nil, err
	}
	res.Message = fmt.Sprintf("Enrolled in %s.", course.Title)
	return res, nil
}

// ─── Course Completion ──────────────────────────────────────────────────────

// OnCourseCompleted marks a course completed and grants the completion
// points plus the speed bonus.
func (e *Engine) OnCourseCompleted(ctx context.Context, userID, courseID string) (*domain.EventResult, error) {
	res, err := runTx(ctx, e, domain.TriggerCourseCompleted, userID,
		func(ctx context.Context, tx domain.Tx) (*domain.EventResult, error) {
			return e.completeCourse(ctx, tx, userID, courseID)
		})
	if err != nil {
		return nil, err
	}
	e.recordResult(res, domain.SourceCourse)
	return res, nil
}

func (e *Engine) completeCourse(ctx context.Context, tx domain.Tx, userID, courseID string) (*domain.EventResult, error) {
	user, err := e.lockUser(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	course, err := tx.GetCourse(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("get course: %w", err)
	}
	if course == nil {
		return nil, domain.ErrCourseNotFound
	}
	enrollment, err := tx.GetEnrollment(ctx, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("get enrollment: %w", err)
	}
	if enrollment == nil {
		return nil, domain.ErrNotEnrolled
	}
	if enrollment.IsCompleted() {
		return nil, domain.ErrCourseAlreadyCompleted
	}

	now := e.now()
	days := e.cal.daysBetween(enrollment.EnrolledAt, now)
	bonus := CompletionBonus(days)
	total := course.PointsPerCompletion + bonus

	enrollment.CompletedAt = now
	enrollment.ProgressPct = 100
	if err := tx.UpdateEnrollment(ctx, *enrollment); err != nil {
		return nil, err
	}

	if err := e.grant(ctx, tx, user, total, domain.SourceCourse, courseID, "Completed course "+course.Title); err != nil {
		return nil, err
	}
	res := newResult(userID, domain.TriggerCourseCompleted, user.TotalPoints)
	res.PointsAwarded = total
	res.CompletionBonus = bonus
	res.DaysToComplete = days
	res.CourseProgress = 100
	if res.LevelChange, err = e.applyLevel(ctx, tx, user); err != nil {
		return nil, err
	}
	if err := tx.UpdateUserStats(ctx, *user); err != nil {
		return nil, err
	}

	s, err := e.stats(ctx, tx, user)
	if err != nil {
		return nil, err
	}
	s.DaysToComplete = days

	res.Notifications = append(res.Notifications, courseNotification(total, course.Title))
	if err := e.awardBadges(ctx, tx, res, domain.TriggerCourseCompleted, s); err != nil {
		return nil, err
	}
	res.Message = fmt.Sprintf("Course completed in %d days.", days)
	return res, nil
}

// ─── Redemption ─────────────────────────────────────────────────────────────

// Redeem spends points on a reward. The level is kept since it follows
// lifetime earned points.
func (e *Engine) Redeem(ctx context.Context, userID string, amount int64, rewardID, reason string) (*domain.LedgerEntry, error) {
	if amount <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	entry, err := runTx(ctx, e, domain.TriggerPointsSpent, userID,
		func(ctx context.Context, tx domain.Tx) (*domain.LedgerEntry, error) {
			user, err := e.lockUser(ctx, tx, userID)
			if err != nil {
				return nil, err
			}
			entry, err := e.ledger.Spend(ctx, tx, userID, amount, domain.SourceReward, rewardID, reason)
			if err != nil {
				return nil, err
			}
			user.TotalPoints -= amount
			if err := tx.UpdateUserStats(ctx, *user); err != nil {
				return nil, err
			}
			return &entry, nil
		})
	if err != nil {
		return nil, err
	}
	metrics.EventsProcessed.WithLabelValues(string(domain.TriggerPointsSpent), "ok").Inc()
	metrics.PointsSpent.Add(float64(amount))
	e.log.Info("points redeemed", "user_id", userID, "amount", amount, "reward", rewardID)
	return entry, nil
}

// ─── Read Paths ─────────────────────────────────────────────────────────────

// CheckAccess answers whether a user may start an activity.
func (e *Engine) CheckAccess(ctx context.Context, userID, activityID string) (domain.AccessDecision, error) {
	ctx, span := e.tracer.Start(ctx, "engagement.check_access", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("activity.id", activityID),
	))
	defer span.End()

	decision, err := CheckAccess(ctx, e.store, userID, activityID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return decision, err
	}
	result := "denied"
	if decision.Allowed {
		result = "allowed"
	}
	span.SetAttributes(attribute.Bool("access.allowed", decision.Allowed))
	metrics.AccessDecisions.WithLabelValues(result).Inc()
	return decision, nil
}

// Leaderboard returns ranked standings.
func (e *Engine) Leaderboard(ctx context.Context, metric domain.Metric, period domain.Period, limit int) ([]domain.RankedEntry, error) {
	ctx, span := e.tracer.Start(ctx, "engagement.leaderboard", trace.WithAttributes(
		attribute.String("leaderboard.metric", string(metric)),
		attribute.String("leaderboard.period", string(period)),
	))
	defer span.End()

	entries, err := e.board.Build(ctx, metric, period, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return entries, err
}

// RankOf returns the user's rank and metric value.
func (e *Engine) RankOf(ctx context.Context, userID string, metric domain.Metric, period domain.Period) (int, int64, error) {
	ctx, span := e.tracer.Start(ctx, "engagement.rank_of", trace.WithAttributes(
		attribute.String("user.id", userID),
		attribute.String("leaderboard.metric", string(metric)),
	))
	defer span.End()
	return e.board.RankOf(ctx, userID, metric, period)
}
