package helpers

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/telegram/sender"

	tele "gopkg.in/telebot.v4"
)

var dispatcher atomic.Pointer[sender.Dispatcher]

// SetDispatcher routes the Send and Edit helpers through d. With no
// dispatcher they call the Bot API inline.
func SetDispatcher(d *sender.Dispatcher) {
	dispatcher.Store(d)
}

// call is one outbound Bot API request made on behalf of an update.
type call struct {
	action   string
	endpoint string
	run      func() error
}

// do hands the call to the dispatcher. A full or closed queue degrades to
// an inline call so the reply is not lost.
func (k call) do(c tele.Context) error {
	d := dispatcher.Load()
	if d == nil {
		return k.run()
	}
	ctx := BuildContext(c)
	err := d.Enqueue(ctx, k.action, k.endpoint, k.run)
	if errors.Is(err, sender.ErrQueueFull) || errors.Is(err, sender.ErrQueueClosed) {
		logger.Warn(ctx, "tg.sender", "queue.fallback",
			slog.String("action", k.action),
			slog.String("endpoint", k.endpoint),
			slog.String("err", err.Error()),
		)
		return k.run()
	}
	return err
}

// SendText sends plain text to the chat of the update.
func SendText(c tele.Context, text string, opts ...*tele.SendOptions) error {
	args := make([]any, 0, 1)
	if len(opts) > 0 && opts[0] != nil {
		args = append(args, opts[0])
	}
	return call{"send.text", "sendMessage", func() error {
		return c.Send(text, args...)
	}}.do(c)
}

// SendMarkdown sends text already escaped for MarkdownV2.
func SendMarkdown(c tele.Context, text string) error {
	return SendText(c, text, &tele.SendOptions{ParseMode: tele.ModeMarkdownV2})
}

// EditText replaces the text of the message the callback came from and
// drops its inline keyboard.
func EditText(c tele.Context, text string) error {
	return call{"edit.text", "editMessageText", func() error {
		return c.Edit(text)
	}}.do(c)
}
