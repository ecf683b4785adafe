package router

import (
	"log/slog"

	"github.com/m3rciful/eventbot/core/logger"
	tg "github.com/m3rciful/eventbot/core/telegram"
	tghelpers "github.com/m3rciful/eventbot/core/telegram/helpers"
	"github.com/m3rciful/eventbot/core/telegram/middleware"
	"github.com/m3rciful/eventbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// ErrorReporter turns a failed handler into a user-facing reply.
type ErrorReporter func(c tele.Context, err error) error

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	Sessions        state.Manager
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
	OnError         ErrorReporter
}

// TextRoutes builds handlers for text and document routing. Every text
// message, commands included, is resolved through the registry against the
// sender's current dialogue state.
func TextRoutes(reg *tg.Registry, opts TextOptions) []tg.Route {
	onText := func(c tele.Context) error {
		st := state.StateIdle
		if opts.Sessions != nil {
			sess, err := state.FromContext(tghelpers.BuildContext(c), c, opts.Sessions)
			if err != nil {
				begin(c, "session").fail(err)
				return report(c, opts.OnError, err)
			}
			st = sess.State
		}
		tghelpers.WithState(c, string(st))

		if reg != nil {
			if name, h, ok := reg.ResolveText(c.Text(), st); ok {
				return report(c, opts.OnError, begin(c, normalizeHandlerName(name)).run(h))
			}
		}
		if opts.UnknownText == nil {
			begin(c, "unknown_text").skip()
			return nil
		}
		return begin(c, "unknown_text").run(opts.UnknownText)
	}

	onDocument := func(c tele.Context) error {
		if opts.UnknownDocument == nil {
			begin(c, "unexpected_document").skip()
			return nil
		}
		return begin(c, "unexpected_document").run(opts.UnknownDocument)
	}

	if reg != nil {
		logger.TWire.Info("tg.wire",
			slog.String("event", "complete"),
			slog.Int("commands", len(reg.Commands())),
			slog.Int("callbacks", len(reg.ListCallbacks())),
		)
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(onText)},
		{Endpoint: tele.OnDocument, Handler: wrap(onDocument)},
	}
}

// perUser is shared by every route so a button press and a text message
// of one user never run at the same time.
var perUser = middleware.SerializePerUser()

func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(perUser(middleware.LoggerMiddleware(h)))
}

// report hands err to the reporter. The failure itself is already logged,
// so a successful reply ends the update without an error.
func report(c tele.Context, reporter ErrorReporter, err error) error {
	if err == nil || reporter == nil {
		return err
	}
	return reporter(c, err)
}
