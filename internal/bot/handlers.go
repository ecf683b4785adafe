// Package bot holds the chat handlers of the event bot and wires them into
// the command registry.
package bot

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/eventbot/core/telegram/helpers"
	"github.com/m3rciful/eventbot/core/telegram/router"
	"github.com/m3rciful/eventbot/core/telegram/state"
	"github.com/m3rciful/eventbot/internal/dialogue"
	"github.com/m3rciful/eventbot/internal/events"
	"github.com/m3rciful/eventbot/internal/shortener"

	tele "gopkg.in/telebot.v4"
)

// EventStore is the part of the events store used by the handlers.
type EventStore interface {
	InsertEvent(ctx context.Context, e events.NewEvent) error
	ListEvents(ctx context.Context) ([]events.EventRef, error)
	IncrementUsageByID(ctx context.Context, id int64) (events.EventLink, error)
	ListUsageStats(ctx context.Context) ([]events.UsageStat, error)
}

// Deps are the collaborators of Handlers. Shortener is nil while the
// shortener is disabled.
type Deps struct {
	Events    EventStore
	Sessions  state.Manager
	Shortener *shortener.Service
	Dialogue  dialogue.Options
}

// Handlers serves every command, dialogue step and button of the bot.
type Handlers struct {
	events    EventStore
	sessions  state.Manager
	shortener *shortener.Service
	opts      dialogue.Options
}

var _ router.Fallbacks = (*Handlers)(nil)

// New builds Handlers.
func New(deps Deps) *Handlers {
	return &Handlers{
		events:    deps.Events,
		sessions:  deps.Sessions,
		shortener: deps.Shortener,
		opts:      deps.Dialogue,
	}
}

// ShortenerEnabled reports whether http links are shortened.
func (h *Handlers) ShortenerEnabled() bool {
	return h.shortener != nil
}

func (h *Handlers) Start(c tele.Context) error {
	name := ""
	if u := c.Sender(); u != nil {
		name = u.FirstName
	}
	return tghelpers.SendText(c, Welcome(name))
}

func (h *Handlers) Help(c tele.Context) error {
	return tghelpers.SendText(c, TextHelp)
}

// AddEvent opens a fresh form and asks for the first field.
func (h *Handlers) AddEvent(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	form, err := h.form(ctx, c)
	if err != nil {
		return err
	}
	if err := form.Start(ctx); err != nil {
		return err
	}
	if err := state.Persist(ctx, c, h.sessions, form.Session()); err != nil {
		return err
	}
	if err := tghelpers.SendText(c, TextAddEventIntro); err != nil {
		return err
	}
	return tghelpers.SendText(c, Prompt(dialogue.Steps[0].Field))
}

// Cancel drops the form the user is filling.
func (h *Handlers) Cancel(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	form, err := h.form(ctx, c)
	if err != nil {
		return err
	}
	if err := form.Cancel(ctx); err != nil {
		return err
	}
	if err := state.Reset(ctx, c, h.sessions); err != nil {
		return err
	}
	return tghelpers.SendText(c, TextCancelled)
}

// Fill stores the answer for the current step and asks the next question,
// or shows the summary once every field is known.
func (h *Handlers) Fill(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	form, err := h.form(ctx, c)
	if err != nil {
		return err
	}
	next, err := form.Fill(ctx, c.Text())
	if errors.Is(err, dialogue.ErrInvalidDate) {
		return tghelpers.SendText(c, TextBadDate)
	}
	if err != nil {
		return err
	}
	if err := state.Persist(ctx, c, h.sessions, form.Session()); err != nil {
		return err
	}
	if next == dialogue.StateConfirmation {
		return tghelpers.SendText(c, ConfirmationText(form.Values()), &tele.SendOptions{ReplyMarkup: ConfirmKeyboard()})
	}
	field, _ := dialogue.FieldOf(next)
	return tghelpers.SendText(c, Prompt(field))
}

// Confirm stores the collected event. A failed insert keeps the session so
// the button can be pressed again.
func (h *Handlers) Confirm(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	form, err := h.form(ctx, c)
	if err != nil {
		return err
	}
	draft, err := form.Draft()
	if errors.Is(err, dialogue.ErrNotConfirming) {
		return nil
	}
	if err != nil {
		return err
	}
	if err := h.events.InsertEvent(ctx, draft); err != nil {
		return err
	}
	if err := form.Confirm(ctx); err != nil {
		return err
	}
	if err := state.Reset(ctx, c, h.sessions); err != nil {
		return err
	}
	logger.Dialogue.LogAttrs(ctx, slog.LevelInfo, "event stored",
		slog.String("event", "dialogue.stored"),
		slog.String("summary", logger.SanitizeLimit(draft.Summary, 64)),
	)
	return tghelpers.EditText(c, TextSaved)
}

// Reject handles the cancel button under the summary.
func (h *Handlers) Reject(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	form, err := h.form(ctx, c)
	if err != nil {
		return err
	}
	if err := form.Reject(ctx); err != nil {
		if form.State() != dialogue.StateConfirmation {
			return nil
		}
		return err
	}
	if err := state.Reset(ctx, c, h.sessions); err != nil {
		return err
	}
	return tghelpers.EditText(c, TextRejected)
}

// GetEvents lists the stored events as link buttons.
func (h *Handlers) GetEvents(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	list, err := h.events.ListEvents(ctx)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, TextNoEvents)
	}
	return tghelpers.SendText(c, TextPickEvent, &tele.SendOptions{ReplyMarkup: EventsKeyboard(list)})
}

// OpenEvent counts one usage of the chosen event and sends its link.
func (h *Handlers) OpenEvent(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	id, err := callbacks.PayloadInt64(c)
	if err != nil {
		logger.Warn(ctx, "tg", "callback.bad_payload",
			slog.String("payload", logger.SanitizeLimit(callbacks.Payload(c), 32)),
		)
		return tghelpers.SendText(c, TextEventNotFound)
	}
	link, err := h.events.IncrementUsageByID(ctx, id)
	if errors.Is(err, events.ErrNotFound) {
		return tghelpers.SendText(c, TextEventNotFound)
	}
	if err != nil {
		return err
	}
	return tghelpers.SendMarkdown(c, EventLinkText(link))
}

// UsageStats reports event usage, or short link usage in shortener mode.
func (h *Handlers) UsageStats(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	if h.shortener != nil {
		stats, err := h.shortener.Stats(ctx)
		if err != nil {
			return err
		}
		return tghelpers.SendText(c, LinkStatsText(stats))
	}
	stats, err := h.events.ListUsageStats(ctx)
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, UsageStatsText(stats))
}

// IsLink selects the texts handed to Shorten.
func IsLink(text string) bool {
	return strings.HasPrefix(text, "http")
}

// Shorten replies to a long link with its short form.
func (h *Handlers) Shorten(c tele.Context) error {
	if h.shortener == nil {
		return h.unknownText(c)
	}
	ctx := tghelpers.BuildContext(c)
	link, err := h.shortener.Shorten(ctx, c.Text())
	if err != nil {
		return err
	}
	return tghelpers.SendText(c, ShortLinkText(link), &tele.SendOptions{ReplyTo: c.Message()})
}

// ReportError tells the user that the update failed. The failure itself is
// logged by the router.
func (h *Handlers) ReportError(c tele.Context, _ error) error {
	return tghelpers.SendText(c, TextInternalError)
}

func (h *Handlers) UnknownText() tele.HandlerFunc { return h.unknownText }

func (h *Handlers) UnknownDocument() tele.HandlerFunc { return h.unknownText }

func (h *Handlers) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
	}
}

func (h *Handlers) unknownText(c tele.Context) error {
	if h.shortener != nil {
		return tghelpers.SendText(c, TextUnknownShortener)
	}
	return tghelpers.SendText(c, TextUnknown)
}

func (h *Handlers) form(ctx context.Context, c tele.Context) (*dialogue.Form, error) {
	sess, err := state.FromContext(ctx, c, h.sessions)
	if err != nil {
		return nil, err
	}
	return dialogue.Restore(sess, h.opts), nil
}
