package bot

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
	_ "modernc.org/sqlite"

	tg "github.com/m3rciful/eventbot/core/telegram"
	"github.com/m3rciful/eventbot/core/telegram/router"
	"github.com/m3rciful/eventbot/core/telegram/state"
	"github.com/m3rciful/eventbot/internal/dialogue"
	"github.com/m3rciful/eventbot/internal/events"
	"github.com/m3rciful/eventbot/internal/shortener"
)

const userID int64 = 7

type sentMessage struct {
	text string
	opts []any
}

func (m sentMessage) markup() *tele.ReplyMarkup {
	for _, o := range m.opts {
		if so, ok := o.(*tele.SendOptions); ok {
			return so.ReplyMarkup
		}
	}
	return nil
}

func (m sentMessage) parseMode() tele.ParseMode {
	for _, o := range m.opts {
		if so, ok := o.(*tele.SendOptions); ok {
			return so.ParseMode
		}
	}
	return tele.ModeDefault
}

type fakeContext struct {
	tele.Context
	update    tele.Update
	store     map[string]any
	sent      []sentMessage
	edited    []string
	responses []*tele.CallbackResponse
}

func (f *fakeContext) Update() tele.Update { return f.update }
func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }
func (f *fakeContext) Get(key string) any { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }
func (f *fakeContext) Message() *tele.Message { return f.update.Message }
func (f *fakeContext) Edit(what any, _ ...any) error {
	f.edited = append(f.edited, what.(string))
	return nil
}

func (f *fakeContext) Sender() *tele.User {
	if f.update.Callback != nil {
		return f.update.Callback.Sender
	}
	return f.update.Message.Sender
}

func (f *fakeContext) Chat() *tele.Chat {
	if f.update.Callback != nil {
		return f.update.Callback.Message.Chat
	}
	return f.update.Message.Chat
}

func (f *fakeContext) Text() string {
	if f.update.Message == nil {
		return ""
	}
	return f.update.Message.Text
}

func (f *fakeContext) Send(what any, opts ...any) error {
	f.sent = append(f.sent, sentMessage{text: what.(string), opts: opts})
	return nil
}

func (f *fakeContext) Respond(resp ...*tele.CallbackResponse) error {
	f.responses = append(f.responses, resp...)
	return nil
}

func (f *fakeContext) lastText() string {
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

type harness struct {
	t        *testing.T
	store    *events.Store
	sessions state.Manager
	onText   tele.HandlerFunc
	onButton tele.HandlerFunc
	nextID   int
}

type failingInsert struct {
	*events.Store
}

func (failingInsert) InsertEvent(context.Context, events.NewEvent) error {
	return errors.New("connection refused")
}

func newHarness(t *testing.T, configure func(*Deps)) *harness {
	t.Helper()
	db, err := sqlx.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	store := events.NewStore(db)
	require.NoError(t, store.EnsureSchema(context.Background()))

	deps := Deps{Events: store, Sessions: state.NewMemoryManager()}
	if configure != nil {
		configure(&deps)
	}
	h := New(deps)
	reg := tg.NewRegistry()
	require.NoError(t, Register(reg, h))

	routes := router.Routes(reg, deps.Sessions, h, h.ReportError)

	return &harness{
		t:        t,
		store:    store,
		sessions: deps.Sessions,
		onText:   routes[0].Handler,
		onButton: routes[2].Handler,
	}
}

func (h *harness) message(text string) *fakeContext {
	h.nextID++
	return &fakeContext{
		update: tele.Update{ID: h.nextID, Message: &tele.Message{
			Text:   text,
			Sender: &tele.User{ID: userID, FirstName: "Ada"},
			Chat:   &tele.Chat{ID: userID},
		}},
		store: make(map[string]any),
	}
}

func (h *harness) say(text string) *fakeContext {
	h.t.Helper()
	c := h.message(text)
	require.NoError(h.t, h.onText(c))
	return c
}

func (h *harness) press(data string) *fakeContext {
	h.t.Helper()
	h.nextID++
	c := &fakeContext{
		update: tele.Update{ID: h.nextID, Callback: &tele.Callback{
			Data:    data,
			Sender:  &tele.User{ID: userID},
			Message: &tele.Message{Chat: &tele.Chat{ID: userID}},
		}},
		store: make(map[string]any),
	}
	require.NoError(h.t, h.onButton(c))
	return c
}

func (h *harness) state() state.State {
	h.t.Helper()
	st, err := h.sessions.GetState(context.Background(), userID)
	require.NoError(h.t, err)
	return st
}

var meetup = []string{
	"Meetup",
	"http://x.test/e1",
	"Room 5",
	"desc",
	"2025-01-01 10:00:00",
	"2025-01-01 12:00:00",
}

func TestMeetupScenario(t *testing.T) {
	h := newHarness(t, nil)

	c := h.say("/add_event")
	require.Len(t, c.sent, 2)
	assert.Equal(t, TextAddEventIntro, c.sent[0].text)
	assert.Equal(t, Prompt(dialogue.FieldSummary), c.sent[1].text)

	var last *fakeContext
	for i, v := range meetup {
		last = h.say(v)
		if i+1 < len(meetup) {
			assert.Equal(t, Prompt(dialogue.Steps[i+1].Field), last.lastText())
		}
	}
	require.Equal(t, dialogue.StateConfirmation, h.state())

	summary := last.sent[0]
	want := "Confirm the entered data:\n\n" +
		"Title: Meetup\n" +
		"Event link: http://x.test/e1\n" +
		"Location: Room 5\n" +
		"Description: desc\n" +
		"Start: 2025-01-01 10:00:00\n" +
		"End: 2025-01-01 12:00:00\n\n"
	assert.Equal(t, want, summary.text)
	kb := summary.markup()
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, CallbackConfirm, kb.InlineKeyboard[0][0].Data)
	assert.Equal(t, CallbackCancel, kb.InlineKeyboard[1][0].Data)

	done := h.press(CallbackConfirm)
	assert.Equal(t, []string{TextSaved}, done.edited)
	assert.Equal(t, state.StateIdle, h.state())

	ctx := context.Background()
	list, err := h.store.ListEvents(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Meetup", list[0].Summary)
	assert.Equal(t, "http://x.test/e1", list[0].LongURL)

	stats, err := h.store.ListUsageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []events.UsageStat{{Summary: "Meetup", UsageCount: 0}}, stats)

	hashed, err := h.store.ListAllHashed(ctx)
	require.NoError(t, err)
	assert.Empty(t, hashed)
}

func TestCancelFromEveryStateStartsFresh(t *testing.T) {
	for filled := 0; filled <= len(meetup); filled++ {
		h := newHarness(t, nil)
		h.say("/add_event")
		for _, v := range meetup[:filled] {
			h.say(v)
		}
		require.NotEqual(t, state.StateIdle, h.state())

		c := h.say("/cancel")
		assert.Equal(t, TextCancelled, c.lastText())
		assert.Equal(t, state.StateIdle, h.state())

		h.say("/add_event")
		sess, err := h.sessions.Get(context.Background(), userID)
		require.NoError(t, err)
		assert.Equal(t, dialogue.StateFillSummary, sess.State)
		assert.Empty(t, sess.Data)
	}
}

func TestCancelOutsideDialogueFallsBack(t *testing.T) {
	h := newHarness(t, nil)
	c := h.say("/cancel")
	assert.Equal(t, TextUnknown, c.lastText())
}

func TestCommandTextDuringFillIsStoredVerbatim(t *testing.T) {
	h := newHarness(t, nil)
	h.say("/add_event")
	h.say("/add_event")

	sess, err := h.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateFillLongURL, sess.State)
	assert.Equal(t, "/add_event", sess.Data[dialogue.FieldSummary])
}

func TestCancelButtonDiscardsEvent(t *testing.T) {
	h := newHarness(t, nil)
	h.say("/add_event")
	for _, v := range meetup {
		h.say(v)
	}

	c := h.press(CallbackCancel)
	assert.Equal(t, []string{TextRejected}, c.edited)
	assert.Equal(t, state.StateIdle, h.state())

	list, err := h.store.ListEvents(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestConfirmOutsideConfirmationIsIgnored(t *testing.T) {
	h := newHarness(t, nil)
	h.say("/add_event")

	c := h.press(CallbackConfirm)
	assert.Empty(t, c.edited)
	assert.Empty(t, c.sent)
	assert.Equal(t, dialogue.StateFillSummary, h.state())
}

func TestConfirmFailureKeepsSession(t *testing.T) {
	h := newHarness(t, func(d *Deps) {
		d.Events = failingInsert{Store: d.Events.(*events.Store)}
	})
	h.say("/add_event")
	for _, v := range meetup {
		h.say(v)
	}

	c := h.press(CallbackConfirm)
	assert.Empty(t, c.edited)
	assert.Equal(t, TextInternalError, c.lastText())
	assert.Equal(t, dialogue.StateConfirmation, h.state())
}

func TestGetEvents(t *testing.T) {
	h := newHarness(t, nil)

	c := h.say("/get_events")
	require.Len(t, c.sent, 1)
	assert.Equal(t, TextNoEvents, c.sent[0].text)
	assert.Nil(t, c.sent[0].markup())

	ctx := context.Background()
	require.NoError(t, h.store.InsertEvent(ctx, events.NewEvent{Summary: "Meetup", LongURL: "http://x.test/e1"}))
	require.NoError(t, h.store.InsertEvent(ctx, events.NewEvent{Summary: "Talk", LongURL: "http://x.test/e2"}))

	c = h.say("/get_events")
	require.Len(t, c.sent, 1)
	assert.Equal(t, TextPickEvent, c.sent[0].text)
	kb := c.sent[0].markup()
	require.NotNil(t, kb)
	require.Len(t, kb.InlineKeyboard, 2)
	assert.Equal(t, "Event: Meetup", kb.InlineKeyboard[0][0].Text)
	assert.Equal(t, "used_url=1", kb.InlineKeyboard[0][0].Data)
	assert.Equal(t, "Event: Talk", kb.InlineKeyboard[1][0].Text)
}

func TestOpenEventCountsUsage(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.store.InsertEvent(ctx, events.NewEvent{Summary: "Go.Meetup", LongURL: "http://x.test/e1"}))

	c := h.press("used_url=1")
	require.Len(t, c.sent, 1)
	assert.Equal(t, `Link to the event [Go\.Meetup](http://x.test/e1)`, c.sent[0].text)
	assert.Equal(t, tele.ModeMarkdownV2, c.sent[0].parseMode())
	h.press("used_url=1")

	c = h.say("/get_usages_count")
	assert.Equal(t, TextStatsHeader+"Link to the event Go.Meetup - used 2 time(s)\n", c.lastText())
}

func TestOpenMissingEvent(t *testing.T) {
	h := newHarness(t, nil)
	c := h.press("used_url=99")
	assert.Equal(t, TextEventNotFound, c.lastText())

	c = h.press("used_url=x")
	assert.Equal(t, TextEventNotFound, c.lastText())
}

// slowSessions stalls after every read, as a remote backend would.
type slowSessions struct {
	state.Manager
}

func (s slowSessions) Get(ctx context.Context, id int64) (*state.Session, error) {
	sess, err := s.Manager.Get(ctx, id)
	time.Sleep(5 * time.Millisecond)
	return sess, err
}

func TestSameUserMessagesDoNotLoseSteps(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Sessions = slowSessions{Manager: d.Sessions} })
	h.say("/add_event")

	first, second := h.message(meetup[0]), h.message(meetup[1])
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for _, c := range []*fakeContext{first, second} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- h.onText(c)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	sess, err := h.sessions.Get(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, dialogue.StateFillLocation, sess.State)
	assert.Len(t, sess.Data, 2)
	assert.ElementsMatch(t, meetup[:2], []string{
		sess.Data[dialogue.FieldSummary],
		sess.Data[dialogue.FieldLongURL],
	})
	assert.ElementsMatch(t,
		[]string{Prompt(dialogue.FieldLongURL), Prompt(dialogue.FieldLocation)},
		[]string{first.lastText(), second.lastText()},
	)
}

func TestEventButtonIgnoredWhileConfirming(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	require.NoError(t, h.store.InsertEvent(ctx, events.NewEvent{Summary: "Old", LongURL: "http://x.test/old"}))

	h.say("/add_event")
	for _, v := range meetup {
		h.say(v)
	}
	require.Equal(t, dialogue.StateConfirmation, h.state())

	c := h.press("used_url=1")
	assert.Empty(t, c.sent)
	assert.Empty(t, c.edited)
	assert.Equal(t, dialogue.StateConfirmation, h.state())

	stats, err := h.store.ListUsageStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, []events.UsageStat{{Summary: "Old", UsageCount: 0}}, stats)

	h.press(CallbackConfirm)
	c = h.press("used_url=1")
	assert.Equal(t, `Link to the event [Old](http://x.test/old)`, c.lastText())
}

func TestUsageStatsEmpty(t *testing.T) {
	h := newHarness(t, nil)
	c := h.say("/get_usages_count")
	assert.Equal(t, TextNoStats, c.lastText())
}

func TestUnknownButton(t *testing.T) {
	h := newHarness(t, nil)
	c := h.press("other=1")
	require.Len(t, c.responses, 1)
	assert.Equal(t, "Unsupported action", c.responses[0].Text)
}

func TestStartAndHelp(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, Welcome("Ada"), h.say("/start").lastText())
	assert.Equal(t, TextHelp, h.say("/help@eventbot").lastText())
	assert.Equal(t, TextUnknown, h.say("hello").lastText())
}

func TestValidateDatesReprompts(t *testing.T) {
	h := newHarness(t, func(d *Deps) { d.Dialogue.ValidateDates = true })
	h.say("/add_event")
	for _, v := range meetup[:4] {
		h.say(v)
	}

	c := h.say("tomorrow")
	assert.Equal(t, TextBadDate, c.lastText())
	assert.Equal(t, dialogue.StateFillDateStart, h.state())

	h.say("2025-01-01 10:00:00")
	assert.Equal(t, dialogue.StateFillDateEnd, h.state())
}

func TestShortenerMode(t *testing.T) {
	var svc *shortener.Service
	h := newHarness(t, func(d *Deps) {
		hasher, err := shortener.NewHasher("salt", 6)
		require.NoError(t, err)
		svc = shortener.NewService(d.Events.(*events.Store), hasher, "https://s.test/")
		d.Shortener = svc
	})

	c := h.say("https://example.com/very/long")
	reply := c.lastText()
	require.True(t, strings.HasPrefix(reply, "Original link: https://example.com/very/long\nShort link: https://s.test/"), reply)
	h.say("https://example.com/very/long")

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Len(t, stats, 1)
	assert.EqualValues(t, 2, stats[0].UsageCount)

	c = h.say("/get_usages_count")
	assert.Equal(t, LinkStatsText(stats), c.lastText())
	assert.Equal(t, TextUnknownShortener, h.say("hello").lastText())
}
