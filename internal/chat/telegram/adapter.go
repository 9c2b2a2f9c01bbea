// Package telegram adapts the platform-agnostic chat contracts to the
// Telegram Bot API. Telegram has no modal forms or user select menus, so the
// adapter synthesizes form and selection events from the user's free-form
// replies while a registration step is active.
package telegram

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/Yamamotonasu/remindbot/internal/chat"
	"github.com/Yamamotonasu/remindbot/internal/domain"
	"github.com/Yamamotonasu/remindbot/internal/session"
)

const (
	textDetailsPrompt = "🗓 Send the date, time and message in one line:\n" +
		"`YYYY/MM/DD HH:mm message`"
	textRecipientsPrompt = "👥 Who should be tagged? Reply with @mentions, " +
		"or press the button to register without any."
	textRecipientsHint = "Reply with @mentions of the users to tag, or press the button."
)

// Adapter implements chat.Gateway over tgbotapi and feeds inbound updates to
// the router. All outbound sends pass through a shared rate limiter.
type Adapter struct {
	bot     *tgbotapi.BotAPI
	limiter *rate.Limiter
	log     *zap.Logger
	router  *chat.Router
}

// New builds an Adapter. The router is attached afterwards with Bind because
// the router itself needs the adapter as its gateway.
func New(bot *tgbotapi.BotAPI, ratePerSec int, log *zap.Logger) *Adapter {
	if ratePerSec <= 0 {
		ratePerSec = 25
	}
	return &Adapter{
		bot:     bot,
		limiter: rate.NewLimiter(rate.Limit(ratePerSec), ratePerSec),
		log:     log,
	}
}

// Bind attaches the router that consumes inbound events.
func (a *Adapter) Bind(router *chat.Router) {
	a.router = router
}

// ResolveChannel verifies the chat exists and returns a sendable handle.
func (a *Adapter) ResolveChannel(_ context.Context, channelID string) (chat.Channel, error) {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
	}
	if _, err := a.bot.GetChat(tgbotapi.ChatInfoConfig{
		ChatConfig: tgbotapi.ChatConfig{ChatID: id},
	}); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrChannelNotFound, channelID, err)
	}
	return &channel{a: a, id: id}, nil
}

// Mention renders a tag Telegram will highlight. Numeric ids become
// tg://user links; usernames stay plain @mentions.
func (a *Adapter) Mention(userID string) string {
	if _, err := strconv.ParseInt(userID, 10, 64); err == nil {
		return fmt.Sprintf("[@%s](tg://user?id=%s)", userID, userID)
	}
	return "@" + strings.TrimPrefix(userID, "@")
}

// Escape neutralizes Markdown metacharacters in user-supplied text. A lone
// "_" or "*" in a reminder message would otherwise make the API reject the
// whole send with an entity-parse error.
func (a *Adapter) Escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}

// PromptDetails asks for the date/time/message line.
func (a *Adapter) PromptDetails(ctx context.Context, channelID, _ string) error {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
	}
	return a.send(ctx, id, textDetailsPrompt, nil)
}

// PromptRecipients presents the recipient step with the no-mention button.
func (a *Adapter) PromptRecipients(ctx context.Context, channelID, _ string) error {
	id, err := strconv.ParseInt(channelID, 10, 64)
	if err != nil {
		return fmt.Errorf("%w: %s", domain.ErrChannelNotFound, channelID)
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("🔕 No mentions", chat.CustomIDNoMention),
			tgbotapi.NewInlineKeyboardButtonData("↩️ Start over", chat.CustomIDStart),
		),
	)
	return a.send(ctx, id, textRecipientsPrompt, markup)
}

// HandleUpdate translates one Telegram update into router events.
func (a *Adapter) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	switch {
	case upd.Message != nil:
		a.handleMessage(ctx, upd.Message)
	case upd.CallbackQuery != nil:
		a.handleCallback(ctx, upd.CallbackQuery)
	}
}

func (a *Adapter) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil || msg.From.IsBot {
		return
	}
	userID := strconv.FormatInt(msg.From.ID, 10)
	channelID := strconv.FormatInt(msg.Chat.ID, 10)
	text := strings.TrimSpace(msg.Text)

	if text == "/time" || text == "!list" || text == "!remind" || strings.HasPrefix(text, "!remind ") {
		a.router.HandleCommand(ctx, chat.Command{Text: text, AuthorID: userID, ChannelID: channelID})
		return
	}

	// Free-form text belongs to whichever registration step the user is in.
	switch a.router.Sessions().Stage(userID) {
	case session.StageAwaitingDetails:
		a.routeDetails(ctx, userID, channelID, text)
	case session.StageAwaitingRecipients:
		a.routeRecipients(ctx, msg, userID, channelID)
	}
}

// routeDetails turns a "YYYY/MM/DD HH:mm message" line into the form event
// the router validates. Missing parts surface as empty fields.
func (a *Adapter) routeDetails(ctx context.Context, userID, channelID, text string) {
	fields := map[string]string{}
	parts := strings.Fields(text)
	if len(parts) > 0 {
		fields[chat.FieldDate] = parts[0]
	}
	if len(parts) > 1 {
		fields[chat.FieldTime] = parts[1]
	}
	if len(parts) > 2 {
		fields[chat.FieldMessage] = strings.Join(parts[2:], " ")
	}
	a.router.HandleForm(ctx, chat.FormSubmitted{
		CustomID:  chat.CustomIDDetails,
		UserID:    userID,
		ChannelID: channelID,
		Fields:    fields,
	})
}

func (a *Adapter) routeRecipients(ctx context.Context, msg *tgbotapi.Message, userID, channelID string) {
	ids := collectMentionIDs(msg)
	if len(ids) == 0 {
		if err := a.send(ctx, msg.Chat.ID, textRecipientsHint, nil); err != nil {
			a.log.Warn("hint send failed", zap.Error(err))
		}
		return
	}
	a.router.HandleSelection(ctx, chat.SelectionMade{
		CustomID:  chat.CustomIDRecipients,
		UserID:    userID,
		ChannelID: channelID,
		UserIDs:   ids,
	})
}

func (a *Adapter) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if _, err := a.bot.Request(tgbotapi.NewCallback(cb.ID, "")); err != nil {
		a.log.Warn("callback ack failed", zap.Error(err))
	}
	if cb.From == nil || cb.Message == nil {
		return
	}
	a.router.HandleButton(ctx, chat.ButtonPressed{
		CustomID:  cb.Data,
		UserID:    strconv.FormatInt(cb.From.ID, 10),
		ChannelID: strconv.FormatInt(cb.Message.Chat.ID, 10),
	})
}

// collectMentionIDs gathers tagged users in display order: text_mention
// entities carry real user ids (users without a username), @tokens carry
// usernames.
func collectMentionIDs(msg *tgbotapi.Message) []string {
	var ids []string
	for _, e := range msg.Entities {
		if e.Type == "text_mention" && e.User != nil {
			ids = append(ids, strconv.FormatInt(e.User.ID, 10))
		}
	}
	for _, tok := range strings.Fields(msg.Text) {
		if strings.HasPrefix(tok, "@") && len(tok) > 1 {
			ids = append(ids, strings.TrimPrefix(tok, "@"))
		}
	}
	return ids
}

func (a *Adapter) send(ctx context.Context, chatID int64, text string, markup interface{}) error {
	if err := a.limiter.Wait(ctx); err != nil {
		return err
	}
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if markup != nil {
		msg.ReplyMarkup = markup
	}
	_, err := a.bot.Send(msg)
	return err
}

// channel is a resolved, sendable Telegram chat.
type channel struct {
	a  *Adapter
	id int64
}

func (c *channel) Send(ctx context.Context, text string) error {
	return c.a.send(ctx, c.id, text, nil)
}
