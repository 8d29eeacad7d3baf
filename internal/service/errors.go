package service

import "errors"

var (
	// ErrPastSchedule rejects one-shot schedules that are not strictly in
	// the future.
	ErrPastSchedule = errors.New("schedule is in the past")

	// ErrNegativeDuration rejects negative misfire windows.
	ErrNegativeDuration = errors.New("duration must not be negative")
)
