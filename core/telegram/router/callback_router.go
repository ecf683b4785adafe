package router

import (
	"log/slog"

	tg "github.com/m3rciful/eventbot/core/telegram"
	"github.com/m3rciful/eventbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
	OnError  ErrorReporter
}

// CallbackRoute routes button presses by the key part of their data.
// Unknown keys go to the registry's not-found handler, then NotFound.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	onCallback := func(c tele.Context) error {
		cb := c.Callback()
		if cb == nil {
			return nil
		}
		key, _ := callbacks.Parse(cb)
		name := "callback." + normalizeHandlerName(key)

		h, ok := reg.GetCallback(key)
		if !ok || h == nil {
			fallback := reg.CallbackNotFound()
			if fallback == nil {
				fallback = opts.NotFound
			}
			if fallback == nil {
				fallback = func(c tele.Context) error { return c.Respond() }
			}
			return begin(c, name, slog.String("cb_key", key), slog.String("reason", "not_found")).run(fallback)
		}

		_ = c.Respond()
		return report(c, opts.OnError, begin(c, name, slog.String("cb_key", key)).run(h))
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(onCallback)}
}
