package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/Yamamotonasu/remindbot/internal/domain"
	"github.com/Yamamotonasu/remindbot/internal/session"
	"github.com/Yamamotonasu/remindbot/internal/store"
)

// Router drives the registration flow and the read-only queries from inbound
// events. It is platform-agnostic: everything outbound goes through Gateway.
type Router struct {
	clock    domain.Clock
	sessions *session.Manager
	repo     store.Repo
	gw       Gateway
	log      *zap.Logger
}

// NewRouter wires the command surface.
func NewRouter(clock domain.Clock, sessions *session.Manager, repo store.Repo, gw Gateway, log *zap.Logger) *Router {
	return &Router{
		clock:    clock,
		sessions: sessions,
		repo:     repo,
		gw:       gw,
		log:      log,
	}
}

// Sessions exposes the session manager so adapters can ask which step a
// user's next free-form message belongs to.
func (r *Router) Sessions() *session.Manager {
	return r.sessions
}

// HandleCommand routes /time, !remind and !list.
func (r *Router) HandleCommand(ctx context.Context, ev Command) {
	text := strings.TrimSpace(ev.Text)

	switch {
	case text == "/time":
		r.reply(ctx, ev.ChannelID, r.clock.FormatLocal(time.Now()))

	case text == "!remind":
		r.sessions.BeginDetails(ev.AuthorID)
		if err := r.gw.PromptDetails(ctx, ev.ChannelID, ev.AuthorID); err != nil {
			r.log.Error("details prompt failed", zap.Error(err), zap.String("user", ev.AuthorID))
		}

	case strings.HasPrefix(text, "!remind "):
		args := strings.Fields(strings.TrimPrefix(text, "!remind "))
		if len(args) < 3 {
			r.reply(ctx, ev.ChannelID, textUsage)
			return
		}
		// Legacy single-step path: details arrive in one command and the
		// flow jumps straight to the recipient step.
		r.handleDetails(ctx, ev.AuthorID, ev.ChannelID, args[0], args[1], strings.Join(args[2:], " "))

	case text == "!list":
		r.handleList(ctx, ev.AuthorID, ev.ChannelID)
	}
}

// HandleButton routes button interactions.
func (r *Router) HandleButton(ctx context.Context, ev ButtonPressed) {
	switch ev.CustomID {
	case CustomIDStart:
		r.sessions.BeginDetails(ev.UserID)
		if err := r.gw.PromptDetails(ctx, ev.ChannelID, ev.UserID); err != nil {
			r.log.Error("details prompt failed", zap.Error(err), zap.String("user", ev.UserID))
		}
	case CustomIDNoMention:
		r.finalize(ctx, ev.UserID, ev.ChannelID, nil)
	}
}

// HandleSelection routes recipient selections. An empty selection is a valid
// "zero recipients" choice.
func (r *Router) HandleSelection(ctx context.Context, ev SelectionMade) {
	if ev.CustomID != CustomIDRecipients {
		return
	}
	r.finalize(ctx, ev.UserID, ev.ChannelID, ev.UserIDs)
}

// HandleForm routes the details form submission.
func (r *Router) HandleForm(ctx context.Context, ev FormSubmitted) {
	if ev.CustomID != CustomIDDetails {
		return
	}
	r.handleDetails(ctx, ev.UserID, ev.ChannelID,
		ev.Fields[FieldDate], ev.Fields[FieldTime], ev.Fields[FieldMessage])
}

// HandleExpiry delivers the cancellation notice after the idle timer fires.
func (r *Router) HandleExpiry(userID string, reg session.Registration) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	r.reply(ctx, reg.ChannelID, textExpired)
}

// handleDetails validates the date/time/message step. On success the user
// moves to AwaitingRecipients; on failure no pending entry is retained and
// the user stays in (or returns to) the details step.
func (r *Router) handleDetails(ctx context.Context, userID, channelID, dateStr, timeStr, message string) {
	if strings.TrimSpace(message) == "" {
		r.reply(ctx, channelID, textUsage)
		return
	}

	local, err := r.clock.ParseLocal(dateStr, timeStr)
	if err != nil {
		r.log.Debug("date/time rejected",
			zap.String("user", userID),
			zap.String("date", dateStr),
			zap.String("time", timeStr),
		)
		r.reply(ctx, channelID, textBadDateTime)
		return
	}

	if err := domain.ValidateFuture(local, r.clock.Now()); err != nil {
		r.reply(ctx, channelID, textPastDate)
		return
	}

	r.sessions.AwaitRecipients(userID, session.Registration{
		ChannelID:      channelID,
		Message:        message,
		ScheduledLocal: local,
		ScheduledUTC:   r.clock.ToUTC(local),
	})

	if err := r.gw.PromptRecipients(ctx, channelID, userID); err != nil {
		r.log.Error("recipient prompt failed", zap.Error(err), zap.String("user", userID))
	}
}

// finalize inserts the reminder for the user's pending registration with the
// given recipients. The entry is claimed (timer stopped) before the insert so
// the idle timeout cannot fire mid-finalization; a failed insert puts the
// registration back so the user can retry.
func (r *Router) finalize(ctx context.Context, userID, channelID string, mentionIDs []string) {
	reg, err := r.sessions.Claim(userID)
	if errors.Is(err, domain.ErrNoSession) {
		r.reply(ctx, channelID, textNoSession)
		return
	}

	saved, err := r.repo.Insert(ctx, domain.Reminder{
		UserID:         userID,
		ChannelID:      reg.ChannelID,
		Message:        reg.Message,
		ScheduledAt:    reg.ScheduledUTC,
		MentionUserIDs: mentionIDs,
	})
	if err != nil {
		r.log.Error("reminder insert failed", zap.Error(err), zap.String("user", userID))
		r.sessions.AwaitRecipients(userID, reg)
		r.reply(ctx, channelID, textStoreError)
		return
	}

	mentions := "none"
	if len(mentionIDs) > 0 {
		tags := make([]string, len(mentionIDs))
		for i, id := range mentionIDs {
			tags[i] = r.gw.Mention(id)
		}
		mentions = strings.Join(tags, " ")
	}

	r.log.Info("reminder registered",
		zap.Int64("id", saved.ID),
		zap.String("user", userID),
		zap.Time("scheduled_at", saved.ScheduledAt),
		zap.Int("mentions", len(mentionIDs)),
	)
	r.reply(ctx, channelID, fmt.Sprintf(
		"✅ Reminder registered!\nWhen: %s\nMessage: %s\nMentions: %s",
		r.clock.FormatLocal(saved.ScheduledAt), r.gw.Escape(saved.Message), mentions,
	))
}

func (r *Router) handleList(ctx context.Context, userID, channelID string) {
	reminders, err := r.repo.ListByUser(ctx, userID)
	if err != nil {
		r.log.Error("list query failed", zap.Error(err), zap.String("user", userID))
		r.reply(ctx, channelID, textListError)
		return
	}

	if len(reminders) == 0 {
		r.reply(ctx, channelID, textNoReminders)
		return
	}

	var sb strings.Builder
	sb.WriteString(textListHeader)
	for i, rem := range reminders {
		fmt.Fprintf(&sb, "%d. %s — %s\n", i+1, r.clock.FormatLocal(rem.ScheduledAt), r.gw.Escape(rem.Message))
	}
	r.reply(ctx, channelID, sb.String())
}

// reply resolves a channel and sends; failures are logged, never propagated.
func (r *Router) reply(ctx context.Context, channelID, text string) {
	ch, err := r.gw.ResolveChannel(ctx, channelID)
	if err != nil {
		r.log.Error("reply channel resolution failed", zap.Error(err), zap.String("channel", channelID))
		return
	}
	if err := ch.Send(ctx, text); err != nil {
		r.log.Error("reply send failed", zap.Error(err), zap.String("channel", channelID))
	}
}
