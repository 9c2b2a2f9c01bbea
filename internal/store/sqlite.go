package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/Yamamotonasu/remindbot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct{ db *sql.DB }

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
func OpenSQLite(ctx context.Context, path string) (*SQLiteRepo, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// SQLite is a single-writer engine; keep the pool at one connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Insert persists a new reminder. The Notified flag on the argument is
// ignored; rows always start unnotified.
func (r *SQLiteRepo) Insert(ctx context.Context, rem domain.Reminder) (domain.Reminder, error) {
	mentions, err := encodeMentions(rem.MentionUserIDs)
	if err != nil {
		return domain.Reminder{}, err
	}

	res, err := r.db.ExecContext(ctx, `
		INSERT INTO reminders (user_id, channel_id, message, scheduled_at, mention_user_ids, notified)
		VALUES (?, ?, ?, ?, ?, 0)`,
		rem.UserID, rem.ChannelID, rem.Message, encodeTime(rem.ScheduledAt), mentions,
	)
	if err != nil {
		return domain.Reminder{}, err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return domain.Reminder{}, err
	}

	rem.ID = id
	rem.Notified = false
	rem.ScheduledAt = rem.ScheduledAt.UTC()
	return rem, nil
}

// ListDue returns reminders with notified = false and scheduled_at <= now.
// No ordering is guaranteed beyond what the due index provides.
func (r *SQLiteRepo) ListDue(ctx context.Context, now time.Time) ([]domain.Reminder, error) {
	return r.list(ctx, `
		SELECT id, user_id, channel_id, message, scheduled_at, mention_user_ids, notified
		FROM reminders
		WHERE notified = 0
		  AND scheduled_at <= ?`,
		encodeTime(now),
	)
}

// ListByUser returns a user's unnotified reminders, soonest first.
func (r *SQLiteRepo) ListByUser(ctx context.Context, userID string) ([]domain.Reminder, error) {
	return r.list(ctx, `
		SELECT id, user_id, channel_id, message, scheduled_at, mention_user_ids, notified
		FROM reminders
		WHERE notified = 0
		  AND user_id = ?
		ORDER BY scheduled_at ASC`,
		userID,
	)
}

func (r *SQLiteRepo) list(ctx context.Context, query string, arg any) ([]domain.Reminder, error) {
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Reminder
	for rows.Next() {
		var (
			rem         domain.Reminder
			scheduledAt string
			mentions    string
			notified    int
		)
		if err := rows.Scan(
			&rem.ID, &rem.UserID, &rem.ChannelID, &rem.Message,
			&scheduledAt, &mentions, &notified,
		); err != nil {
			return nil, err
		}
		if rem.ScheduledAt, err = decodeTime(scheduledAt); err != nil {
			return nil, err
		}
		if rem.MentionUserIDs, err = decodeMentions(mentions); err != nil {
			return nil, err
		}
		rem.Notified = notified != 0
		res = append(res, rem)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// MarkNotified flips the notified flag to true. The transition is one-way;
// nothing in the schema or code ever resets it.
func (r *SQLiteRepo) MarkNotified(ctx context.Context, id int64) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE reminders
		SET notified = 1
		WHERE id = ?`,
		id,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("reminder %d: %w", id, ErrNotFound)
	}
	return nil
}
