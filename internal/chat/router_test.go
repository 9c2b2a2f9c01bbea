package chat

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Yamamotonasu/remindbot/internal/domain"
	"github.com/Yamamotonasu/remindbot/internal/session"
)

type sentMsg struct {
	channel string
	text    string
}

type fakeChannel struct {
	gw *fakeGateway
	id string
}

func (c *fakeChannel) Send(_ context.Context, text string) error {
	c.gw.mu.Lock()
	defer c.gw.mu.Unlock()
	c.gw.sent = append(c.gw.sent, sentMsg{channel: c.id, text: text})
	return nil
}

// fakeGateway is sent to from the expiry timer goroutine as well as the test
// goroutine, so the sent log is mutex-guarded.
type fakeGateway struct {
	mu               sync.Mutex
	sent             []sentMsg
	detailsPrompts   []string
	recipientPrompts []string
}

func (g *fakeGateway) ResolveChannel(_ context.Context, channelID string) (Channel, error) {
	return &fakeChannel{gw: g, id: channelID}, nil
}

func (g *fakeGateway) Mention(userID string) string { return "@" + userID }

func (g *fakeGateway) Escape(text string) string {
	return strings.NewReplacer("_", `\_`, "*", `\*`, "`", "\\`", "[", `\[`).Replace(text)
}

func (g *fakeGateway) PromptDetails(_ context.Context, _, userID string) error {
	g.detailsPrompts = append(g.detailsPrompts, userID)
	return nil
}

func (g *fakeGateway) PromptRecipients(_ context.Context, _, userID string) error {
	g.recipientPrompts = append(g.recipientPrompts, userID)
	return nil
}

func (g *fakeGateway) lastSent(t *testing.T) sentMsg {
	t.Helper()
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.sent) == 0 {
		t.Fatal("nothing was sent")
	}
	return g.sent[len(g.sent)-1]
}

func (g *fakeGateway) sentTexts() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	texts := make([]string, len(g.sent))
	for i, m := range g.sent {
		texts[i] = m.text
	}
	return texts
}

// waitForText polls until the gateway has sent the given text, giving the
// expiry goroutine a happens-before edge through the gateway mutex.
func waitForText(t *testing.T, gw *fakeGateway, text string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for {
		for _, got := range gw.sentTexts() {
			if got == text {
				return
			}
		}
		if time.Now().After(deadline) {
			t.Fatalf("text %q was never sent; sent = %v", text, gw.sentTexts())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

type fakeRepo struct {
	inserted  []domain.Reminder
	insertErr error
	listErr   error
	byUser    []domain.Reminder
}

func (r *fakeRepo) Insert(_ context.Context, rem domain.Reminder) (domain.Reminder, error) {
	if r.insertErr != nil {
		return domain.Reminder{}, r.insertErr
	}
	rem.ID = int64(len(r.inserted) + 1)
	r.inserted = append(r.inserted, rem)
	return rem, nil
}

func (r *fakeRepo) ListDue(context.Context, time.Time) ([]domain.Reminder, error) {
	return nil, nil
}

func (r *fakeRepo) ListByUser(context.Context, string) ([]domain.Reminder, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	return r.byUser, nil
}

func (r *fakeRepo) MarkNotified(context.Context, int64) error { return nil }
func (r *fakeRepo) Close() error                              { return nil }

type fixture struct {
	router *Router
	repo   *fakeRepo
	gw     *fakeGateway
}

func newFixture(t *testing.T, ttl time.Duration) *fixture {
	t.Helper()
	f := &fixture{repo: &fakeRepo{}, gw: &fakeGateway{}}

	var router *Router
	sessions := session.NewManager(ttl, zap.NewNop(), func(userID string, reg session.Registration) {
		router.HandleExpiry(userID, reg)
	})
	router = NewRouter(domain.NewClock(9), sessions, f.repo, f.gw, zap.NewNop())
	f.router = router
	return f
}

func TestRemindThenNoMention(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.router.HandleCommand(ctx, Command{
		Text:      "!remind 2999/01/01 09:00 Test message",
		AuthorID:  "u1",
		ChannelID: "c1",
	})
	if len(f.gw.recipientPrompts) != 1 {
		t.Fatalf("recipient prompts = %d, want 1", len(f.gw.recipientPrompts))
	}
	if len(f.repo.inserted) != 0 {
		t.Fatal("insert happened before finalization")
	}

	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})

	if len(f.repo.inserted) != 1 {
		t.Fatalf("inserted %d reminders, want 1", len(f.repo.inserted))
	}
	rem := f.repo.inserted[0]
	if rem.Message != "Test message" {
		t.Errorf("message = %q", rem.Message)
	}
	if len(rem.MentionUserIDs) != 0 {
		t.Errorf("mentions = %v, want empty", rem.MentionUserIDs)
	}
	if rem.Notified {
		t.Error("inserted reminder already notified")
	}
	// 09:00 local is midnight UTC with the fixed +9 offset.
	want := time.Date(2999, time.January, 1, 0, 0, 0, 0, time.UTC)
	if !rem.ScheduledAt.Equal(want) {
		t.Errorf("scheduled_at = %v, want %v", rem.ScheduledAt, want)
	}
	if !strings.Contains(f.gw.lastSent(t).text, "Mentions: none") {
		t.Errorf("confirmation = %q, want mention list 'none'", f.gw.lastSent(t).text)
	}

	// Second finalize finds no session.
	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})
	if len(f.repo.inserted) != 1 {
		t.Fatal("double finalize inserted twice")
	}
	if f.gw.lastSent(t).text != textNoSession {
		t.Errorf("reply = %q, want no-session notice", f.gw.lastSent(t).text)
	}
}

func TestRemindThenSelection(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.router.HandleCommand(ctx, Command{
		Text:      "!remind 2999/06/15 12:30 Standup",
		AuthorID:  "u1",
		ChannelID: "c1",
	})
	f.router.HandleSelection(ctx, SelectionMade{
		CustomID:  CustomIDRecipients,
		UserID:    "u1",
		ChannelID: "c1",
		UserIDs:   []string{"a", "b"},
	})

	if len(f.repo.inserted) != 1 {
		t.Fatalf("inserted %d reminders, want 1", len(f.repo.inserted))
	}
	rem := f.repo.inserted[0]
	if len(rem.MentionUserIDs) != 2 || rem.MentionUserIDs[0] != "a" || rem.MentionUserIDs[1] != "b" {
		t.Errorf("mentions = %v, want [a b]", rem.MentionUserIDs)
	}
	if !strings.Contains(f.gw.lastSent(t).text, "@a @b") {
		t.Errorf("confirmation = %q, want rendered mentions", f.gw.lastSent(t).text)
	}
}

func TestPastDateRejected(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.router.HandleCommand(context.Background(), Command{
		Text:      "!remind 2020/01/01 09:00 Old",
		AuthorID:  "u1",
		ChannelID: "c1",
	})

	if len(f.repo.inserted) != 0 {
		t.Fatal("past-dated reminder was inserted")
	}
	if f.gw.lastSent(t).text != textPastDate {
		t.Errorf("reply = %q, want past-date error", f.gw.lastSent(t).text)
	}
	if got := f.router.Sessions().Stage("u1"); got != session.StageIdle {
		t.Errorf("stage = %v, want idle (no pending entry retained)", got)
	}
}

func TestMalformedDateRejected(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.router.HandleCommand(context.Background(), Command{
		Text:      "!remind yesterday 09:00 Oops",
		AuthorID:  "u1",
		ChannelID: "c1",
	})

	if len(f.repo.inserted) != 0 {
		t.Fatal("malformed reminder was inserted")
	}
	if f.gw.lastSent(t).text != textBadDateTime {
		t.Errorf("reply = %q, want validation error", f.gw.lastSent(t).text)
	}
}

func TestUsageOnTooFewArgs(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.router.HandleCommand(context.Background(), Command{
		Text:      "!remind 2999/01/01 09:00",
		AuthorID:  "u1",
		ChannelID: "c1",
	})

	if f.gw.lastSent(t).text != textUsage {
		t.Errorf("reply = %q, want usage", f.gw.lastSent(t).text)
	}
}

func TestGuidedFlow(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.router.HandleCommand(ctx, Command{Text: "!remind", AuthorID: "u1", ChannelID: "c1"})
	if len(f.gw.detailsPrompts) != 1 {
		t.Fatalf("details prompts = %d, want 1", len(f.gw.detailsPrompts))
	}
	if got := f.router.Sessions().Stage("u1"); got != session.StageAwaitingDetails {
		t.Fatalf("stage = %v, want awaiting details", got)
	}

	f.router.HandleForm(ctx, FormSubmitted{
		CustomID:  CustomIDDetails,
		UserID:    "u1",
		ChannelID: "c1",
		Fields: map[string]string{
			FieldDate:    "2999/03/03",
			FieldTime:    "08:15",
			FieldMessage: "Ship it",
		},
	})
	if got := f.router.Sessions().Stage("u1"); got != session.StageAwaitingRecipients {
		t.Fatalf("stage = %v, want awaiting recipients", got)
	}

	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})
	if len(f.repo.inserted) != 1 {
		t.Fatalf("inserted %d reminders, want 1", len(f.repo.inserted))
	}
}

func TestTimeoutCancelsRegistration(t *testing.T) {
	f := newFixture(t, 15*time.Millisecond)
	ctx := context.Background()

	f.router.HandleCommand(ctx, Command{
		Text:      "!remind 2999/01/01 09:00 Late",
		AuthorID:  "u1",
		ChannelID: "c1",
	})

	// The cancellation notice is the last thing the expiry path does, so
	// waiting for it also orders the stage check after the timer goroutine.
	waitForText(t, f.gw, textExpired)

	if got := f.router.Sessions().Stage("u1"); got != session.StageIdle {
		t.Errorf("stage = %v, want idle after expiry", got)
	}
	if len(f.repo.inserted) != 0 {
		t.Fatal("expired registration was inserted")
	}
}

func TestFinalizeWinsOverExpiryTimer(t *testing.T) {
	f := newFixture(t, 15*time.Millisecond)
	ctx := context.Background()

	f.router.HandleCommand(ctx, Command{
		Text:      "!remind 2999/01/01 09:00 Close call",
		AuthorID:  "u1",
		ChannelID: "c1",
	})
	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})

	// Finalization claims the entry and stops the timer, so even long after
	// the ttl no cancellation notice may appear.
	time.Sleep(60 * time.Millisecond)

	if len(f.repo.inserted) != 1 {
		t.Fatalf("inserted %d reminders, want 1", len(f.repo.inserted))
	}
	for _, text := range f.gw.sentTexts() {
		if text == textExpired {
			t.Fatal("expiry notice sent for a finalized registration")
		}
	}
}

func TestInsertFailureKeepsSession(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()
	f.repo.insertErr = errors.New("db down")

	f.router.HandleCommand(ctx, Command{
		Text:      "!remind 2999/01/01 09:00 Retry me",
		AuthorID:  "u1",
		ChannelID: "c1",
	})
	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})

	if f.gw.lastSent(t).text != textStoreError {
		t.Errorf("reply = %q, want generic store failure", f.gw.lastSent(t).text)
	}
	if got := f.router.Sessions().Stage("u1"); got != session.StageAwaitingRecipients {
		t.Errorf("stage = %v, want awaiting recipients (entry kept for retry)", got)
	}

	f.repo.insertErr = nil
	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})
	if len(f.repo.inserted) != 1 {
		t.Fatalf("retry inserted %d reminders, want 1", len(f.repo.inserted))
	}
}

func TestListEmpty(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.router.HandleCommand(context.Background(), Command{Text: "!list", AuthorID: "u1", ChannelID: "c1"})

	if f.gw.lastSent(t).text != textNoReminders {
		t.Errorf("reply = %q, want distinct empty message", f.gw.lastSent(t).text)
	}
}

func TestListRendersLocalTime(t *testing.T) {
	f := newFixture(t, time.Minute)
	f.repo.byUser = []domain.Reminder{
		{ID: 1, UserID: "u1", Message: "first", ScheduledAt: time.Date(2999, time.January, 1, 0, 0, 0, 0, time.UTC)},
		{ID: 2, UserID: "u1", Message: "second", ScheduledAt: time.Date(2999, time.January, 2, 3, 30, 0, 0, time.UTC)},
	}

	f.router.HandleCommand(context.Background(), Command{Text: "!list", AuthorID: "u1", ChannelID: "c1"})

	got := f.gw.lastSent(t).text
	if !strings.Contains(got, "1. 2999/01/01 09:00 — first") {
		t.Errorf("list = %q, want local display time for first row", got)
	}
	if !strings.Contains(got, "2. 2999/01/02 12:30 — second") {
		t.Errorf("list = %q, want local display time for second row", got)
	}
}

func TestUserTextEscapedInReplies(t *testing.T) {
	f := newFixture(t, time.Minute)
	ctx := context.Background()

	f.router.HandleCommand(ctx, Command{
		Text:      "!remind 2999/01/01 09:00 check snake_case build",
		AuthorID:  "u1",
		ChannelID: "c1",
	})
	f.router.HandleButton(ctx, ButtonPressed{CustomID: CustomIDNoMention, UserID: "u1", ChannelID: "c1"})

	if got := f.gw.lastSent(t).text; !strings.Contains(got, `check snake\_case build`) {
		t.Errorf("confirmation = %q, want escaped message text", got)
	}
	if rem := f.repo.inserted[0]; rem.Message != "check snake_case build" {
		t.Errorf("stored message = %q, want the raw text", rem.Message)
	}

	f.repo.byUser = f.repo.inserted
	f.router.HandleCommand(ctx, Command{Text: "!list", AuthorID: "u1", ChannelID: "c1"})
	if got := f.gw.lastSent(t).text; !strings.Contains(got, `check snake\_case build`) {
		t.Errorf("list = %q, want escaped message text", got)
	}
}

func TestTimeCommand(t *testing.T) {
	f := newFixture(t, time.Minute)

	f.router.HandleCommand(context.Background(), Command{Text: "/time", AuthorID: "u1", ChannelID: "c1"})

	got := f.gw.lastSent(t).text
	if _, err := time.Parse(domain.DisplayLayout, got); err != nil {
		t.Errorf("/time reply %q is not in the local display layout: %v", got, err)
	}
}
