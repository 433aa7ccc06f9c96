package domain

import (
	"errors"
	"fmt"
)

// ─── Sentinel Errors ────────────────────────────────────────────────────────
// Domain errors are pure: no infrastructure dependency.

var (
	// Validation errors: rejected before any side effect
	ErrInvalidScore     = errors.New("score must be between 0 and 100")
	ErrInvalidTimeSpent = errors.New("time spent cannot be negative")
	ErrInvalidAmount    = errors.New("point amount must be positive")
	ErrInvalidMetric    = errors.New("leaderboard metric must be points, level or badges")
	ErrInvalidPeriod    = errors.New("leaderboard period must be daily, weekly, monthly or all_time")
	ErrInvalidCriteria  = errors.New("invalid badge criteria")
	ErrUserNotFound     = errors.New("user not found")
	ErrActivityNotFound = errors.New("activity not found")
	ErrCourseNotFound   = errors.New("course not found")
	ErrActivityInactive = errors.New("activity is not active")
	ErrCourseInactive   = errors.New("course is not active")

	// State errors
	ErrNotEnrolled            = errors.New("user is not enrolled in this course")
	ErrAlreadyEnrolled        = errors.New("user is already enrolled in this course")
	ErrCourseAlreadyCompleted = errors.New("course already completed")
	ErrActivityLocked         = errors.New("activity is locked: complete earlier activities first")
	ErrInsufficientPoints     = errors.New("insufficient points")

	// Event processing
	ErrEventFailed = errors.New("gamification event failed, nothing was committed")
)

// EventError reports an event whose transaction was rolled back.
type EventError struct {
	Event Trigger
	Err   error
}

func (e *EventError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Event, ErrEventFailed, e.Err)
}

// Unwrap returns the underlying cause.
func (e *EventError) Unwrap() error { return e.Err }

// Is matches ErrEventFailed.
func (e *EventError) Is(target error) bool { return target == ErrEventFailed }

// IsValidation reports whether err rejects the input itself.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidScore) ||
		errors.Is(err, ErrInvalidTimeSpent) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidMetric) ||
		errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrActivityInactive) ||
		errors.Is(err, ErrCourseInactive)
}

// IsNotFound reports whether err names a missing entity.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrActivityNotFound) ||
		errors.Is(err, ErrCourseNotFound)
}

// IsConflict reports whether err is a state conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrNotEnrolled) ||
		errors.Is(err, ErrAlreadyEnrolled) ||
		errors.Is(err, ErrCourseAlreadyCompleted) ||
		errors.Is(err, ErrActivityLocked) ||
		errors.Is(err, ErrInsufficientPoints)
}
