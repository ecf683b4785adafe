package router

import (
	tg "github.com/m3rciful/eventbot/core/telegram"
	"github.com/m3rciful/eventbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Fallbacks answers updates that match no command, state or button.
type Fallbacks interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}

// Routes builds every update route of a bot. Leftover updates go to fb and
// failed handlers to onError.
func Routes(reg *tg.Registry, sessions state.Manager, fb Fallbacks, onError ErrorReporter) []tg.Route {
	routes := TextRoutes(reg, TextOptions{
		Sessions:        sessions,
		UnknownText:     fb.UnknownText(),
		UnknownDocument: fb.UnknownDocument(),
		OnError:         onError,
	})
	return append(routes, CallbackRoute(reg, CallbackOptions{
		NotFound: fb.UnknownCallback(),
		OnError:  onError,
	}))
}
