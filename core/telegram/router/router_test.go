package router

import (
	"context"
	"errors"
	"testing"

	"github.com/m3rciful/eventbot/core/logger"
	tg "github.com/m3rciful/eventbot/core/telegram"
	"github.com/m3rciful/eventbot/core/telegram/callbacks"
	"github.com/m3rciful/eventbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/eventbot/core/telegram/helpers"
	"github.com/m3rciful/eventbot/core/telegram/state"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"
)

type fakeContext struct {
	tele.Context
	update    tele.Update
	store     map[string]any
	sent      []any
	responded int
}

func textUpdate(userID int64, text string) *fakeContext {
	return &fakeContext{
		update: tele.Update{ID: 10, Message: &tele.Message{
			Text:   text,
			Sender: &tele.User{ID: userID},
			Chat:   &tele.Chat{ID: userID},
		}},
		store: make(map[string]any),
	}
}

func callbackUpdate(userID int64, data string) *fakeContext {
	return &fakeContext{
		update: tele.Update{ID: 11, Callback: &tele.Callback{
			Data:    data,
			Sender:  &tele.User{ID: userID},
			Message: &tele.Message{Chat: &tele.Chat{ID: userID}},
		}},
		store: make(map[string]any),
	}
}

func (f *fakeContext) Update() tele.Update { return f.update }
func (f *fakeContext) Callback() *tele.Callback { return f.update.Callback }
func (f *fakeContext) Get(key string) any { return f.store[key] }
func (f *fakeContext) Set(key string, v any) { f.store[key] = v }

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

func (f *fakeContext) Send(what any, _ ...any) error {
	f.sent = append(f.sent, what)
	return nil
}

func (f *fakeContext) Respond(_ ...*tele.CallbackResponse) error {
	f.responded++
	return nil
}

func recordInto(dst *[]string, name string) tele.HandlerFunc {
	return func(tele.Context) error {
		*dst = append(*dst, name)
		return nil
	}
}

func TestTextRoutesResolveAgainstSessionState(t *testing.T) {
	var calls []string
	reg := tg.NewRegistry()
	reg.RegisterCommand("/add_event", commands.Command{
		Handler:     recordInto(&calls, "add_event"),
		Description: "Add",
		Guard:       commands.OnlyIn(state.StateIdle),
	})
	reg.RegisterStateHandler("fill_summary", recordInto(&calls, "summary"))
	reg.SetTextFallback(recordInto(&calls, "fallback"))

	mgr := state.NewMemoryManager()
	routes := TextRoutes(reg, TextOptions{Sessions: mgr})
	require.Len(t, routes, 2)
	onText := routes[0].Handler

	require.NoError(t, onText(textUpdate(1, "/add_event")))

	sess := state.NewSession()
	sess.State = "fill_summary"
	require.NoError(t, mgr.Save(context.Background(), 1, sess))

	require.NoError(t, onText(textUpdate(1, "/add_event")))
	require.NoError(t, onText(textUpdate(2, "hello")))

	assert.Equal(t, []string{"add_event", "summary", "fallback"}, calls)
}

func TestTextRoutesTagContextWithState(t *testing.T) {
	reg := tg.NewRegistry()
	reg.RegisterStateHandler("fill_location", func(tele.Context) error { return nil })
	mgr := state.NewMemoryManager()
	sess := state.NewSession()
	sess.State = "fill_location"
	require.NoError(t, mgr.Save(context.Background(), 3, sess))

	c := textUpdate(3, "Berlin")
	require.NoError(t, TextRoutes(reg, TextOptions{Sessions: mgr})[0].Handler(c))

	ctx, ok := tghelpers.ContextFrom(c)
	require.True(t, ok)
	assert.Equal(t, "fill_location", logger.StateFrom(ctx))
	assert.Equal(t, "state.fill_location", logger.HandlerFrom(ctx))
	assert.Equal(t, int64(3), logger.ChatIDFrom(ctx))
}

type fallbacks struct{ calls *[]string }

func (f fallbacks) UnknownText() tele.HandlerFunc { return recordInto(f.calls, "text") }
func (f fallbacks) UnknownDocument() tele.HandlerFunc { return recordInto(f.calls, "document") }
func (f fallbacks) UnknownCallback() tele.HandlerFunc { return recordInto(f.calls, "callback") }

func TestRoutesUseFallbacks(t *testing.T) {
	var calls []string
	routes := Routes(tg.NewRegistry(), state.NewMemoryManager(), fallbacks{&calls}, nil)
	require.Len(t, routes, 3)
	assert.Equal(t, []any{tele.OnText, tele.OnDocument, tele.OnCallback},
		[]any{routes[0].Endpoint, routes[1].Endpoint, routes[2].Endpoint})

	require.NoError(t, routes[0].Handler(textUpdate(1, "hi")))
	require.NoError(t, routes[2].Handler(callbackUpdate(1, "nope")))
	assert.Equal(t, []string{"text", "callback"}, calls)
}

func TestTextRoutesReportErrors(t *testing.T) {
	reg := tg.NewRegistry()
	reg.SetTextFallback(func(tele.Context) error { return errors.New("db is gone") })

	var reported error
	routes := TextRoutes(reg, TextOptions{
		Sessions: state.NewMemoryManager(),
		OnError: func(c tele.Context, err error) error {
			reported = err
			return c.Send("internal error")
		},
	})

	c := textUpdate(1, "hi")
	require.NoError(t, routes[0].Handler(c))
	require.Error(t, reported)
	assert.Equal(t, []any{"internal error"}, c.sent)
}

func TestCallbackRouteParsesRawKeyValue(t *testing.T) {
	reg := tg.NewRegistry()
	var payload string
	require.NoError(t, reg.RegisterCallback("used_url", func(c tele.Context) error {
		_, payload = callbacks.Parse(c.Callback())
		return nil
	}))

	route := CallbackRoute(reg, CallbackOptions{})
	c := callbackUpdate(1, "used_url=42")
	require.NoError(t, route.Handler(c))
	assert.Equal(t, "42", payload)
	assert.Equal(t, 1, c.responded)
}

func TestCallbackRouteUnknownKey(t *testing.T) {
	reg := tg.NewRegistry()
	route := CallbackRoute(reg, CallbackOptions{})
	c := callbackUpdate(1, "nope")
	require.NoError(t, route.Handler(c))
	assert.Equal(t, 1, c.responded)
}

func TestNormalizeHandlerName(t *testing.T) {
	assert.Equal(t, "add_event", normalizeHandlerName("/add_event"))
	assert.Equal(t, "state.fill_summary", normalizeHandlerName("state.fill_summary"))
	assert.Equal(t, "unknown", normalizeHandlerName(" "))
}

type codedErr struct{}

func (codedErr) Error() string { return "coded" }
func (codedErr) Code() string { return "not found" }

func TestDeriveErrorCode(t *testing.T) {
	assert.Equal(t, "NOT_FOUND", deriveErrorCode(codedErr{}))
	assert.Equal(t, "", deriveErrorCode(nil))
}

