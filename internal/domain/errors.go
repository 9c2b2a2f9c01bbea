package domain

import "errors"

var (
	// ErrBadDateTime means the date/time input did not split into the
	// expected numeric fields.
	ErrBadDateTime = errors.New("invalid date/time")

	// ErrPastSchedule means the requested instant is not strictly in the
	// future.
	ErrPastSchedule = errors.New("scheduled time is in the past")

	// ErrNoSession means the user has no pending registration (it may have
	// timed out or already been finalized).
	ErrNoSession = errors.New("no pending registration")

	// ErrChannelNotFound means the delivery channel could not be resolved
	// to a sendable target.
	ErrChannelNotFound = errors.New("channel not found")
)
