package domain

import "time"

// Reminder is a persisted one-time scheduled message delivery.
type Reminder struct {
	ID             int64
	UserID         string
	ChannelID      string
	Message        string
	ScheduledAt    time.Time // UTC
	MentionUserIDs []string  // delivery-display order; duplicates are kept
	Notified       bool
}

// Due reports whether the reminder is a delivery candidate at now.
func (r Reminder) Due(now time.Time) bool {
	return !r.Notified && !r.ScheduledAt.After(now)
}
