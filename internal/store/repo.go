package store

import (
	"context"
	"errors"
	"time"

	"github.com/Yamamotonasu/remindbot/internal/domain"
)

// ErrNotFound is returned when an update targets a row that does not exist.
var ErrNotFound = errors.New("reminder not found")

// Repo defines storage operations for reminders.
type Repo interface {
	// Insert persists a new reminder and returns it with its assigned ID.
	// The stored row always starts with notified = false.
	Insert(ctx context.Context, r domain.Reminder) (domain.Reminder, error)

	// ListDue returns reminders with notified = false and scheduled_at <= now.
	ListDue(ctx context.Context, now time.Time) ([]domain.Reminder, error)

	// ListByUser returns a user's unnotified reminders ordered by
	// scheduled_at ascending.
	ListByUser(ctx context.Context, userID string) ([]domain.Reminder, error)

	// MarkNotified sets notified = true for the given reminder.
	MarkNotified(ctx context.Context, id int64) error

	Close() error
}
