// Package scheduler polls the store on a fixed interval and delivers due
// reminders. Delivery is at-least-once: a reminder is marked notified only
// after a successful send, so any failure leaves the row to be retried on a
// later tick.
package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Yamamotonasu/remindbot/internal/chat"
	"github.com/Yamamotonasu/remindbot/internal/domain"
	"github.com/Yamamotonasu/remindbot/internal/store"
)

// Scheduler owns the recurring delivery-check task.
type Scheduler struct {
	repo     store.Repo
	gw       chat.Gateway
	log      *zap.Logger
	interval time.Duration
	cron     *cron.Cron
}

// New builds a Scheduler polling at the given interval.
func New(repo store.Repo, gw chat.Gateway, log *zap.Logger, interval time.Duration) *Scheduler {
	return &Scheduler{
		repo:     repo,
		gw:       gw,
		log:      log,
		interval: interval,
	}
}

// Start registers and starts the recurring tick. A tick still running when
// the next fires causes the next to be skipped.
func (s *Scheduler) Start(ctx context.Context) error {
	c := cron.New(cron.WithChain(
		cron.SkipIfStillRunning(cron.DiscardLogger),
		cron.Recover(cron.DiscardLogger),
	))
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), func() {
		s.Tick(ctx)
	}); err != nil {
		return fmt.Errorf("register tick: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.Info("scheduler started", zap.Duration("interval", s.interval))
	return nil
}

// Stop halts the tick schedule and returns a context that is done once any
// in-flight tick has finished.
func (s *Scheduler) Stop() context.Context {
	if s.cron == nil {
		return context.Background()
	}
	s.log.Info("scheduler stopping")
	return s.cron.Stop()
}

// Tick runs one delivery cycle. A failed due-query skips the whole tick;
// nothing was consumed, so the next tick retries naturally.
func (s *Scheduler) Tick(ctx context.Context) {
	now := time.Now().UTC()

	due, err := s.repo.ListDue(ctx, now)
	if err != nil {
		s.log.Error("due query failed, skipping tick", zap.Error(err))
		return
	}
	if len(due) == 0 {
		return
	}

	s.log.Debug("processing due reminders", zap.Int("count", len(due)), zap.Time("now", now))
	for _, rem := range due {
		// Per-item isolation: one reminder's failure must not block the rest.
		s.deliver(ctx, rem)
	}
}

// deliver sends one reminder and durably marks it notified. Every failure
// path leaves notified = false so the row comes back next tick; a reminder
// with a permanently-invalid channel retries forever. Accepted behavior.
func (s *Scheduler) deliver(ctx context.Context, rem domain.Reminder) {
	log := s.log.With(
		zap.Int64("id", rem.ID),
		zap.String("attempt", uuid.NewString()),
	)

	ch, err := s.gw.ResolveChannel(ctx, rem.ChannelID)
	if err != nil {
		log.Error("channel resolution failed", zap.String("channel", rem.ChannelID), zap.Error(err))
		return
	}

	if err := ch.Send(ctx, s.compose(rem)); err != nil {
		log.Error("send failed", zap.Error(err))
		return
	}

	if err := s.repo.MarkNotified(ctx, rem.ID); err != nil {
		// The send succeeded but the row stays unnotified, so the next tick
		// will deliver it again. At-least-once, not exactly-once.
		log.Error("mark notified failed, duplicate delivery likely", zap.Error(err))
		return
	}

	log.Info("reminder delivered", zap.Time("scheduled_at", rem.ScheduledAt))
}

// compose renders the outbound text: the message plus a mention block in
// list order when recipients were tagged. The message is user-supplied and
// must be escaped so its content cannot break the platform's parse mode.
func (s *Scheduler) compose(rem domain.Reminder) string {
	var sb strings.Builder
	sb.WriteString("🔔 Reminder: ")
	sb.WriteString(s.gw.Escape(rem.Message))
	if len(rem.MentionUserIDs) > 0 {
		sb.WriteString("\n")
		for i, id := range rem.MentionUserIDs {
			if i > 0 {
				sb.WriteString(" ")
			}
			sb.WriteString(s.gw.Mention(id))
		}
	}
	return sb.String()
}
