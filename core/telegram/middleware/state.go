package middleware

import (
	"context"
	"log/slog"

	"github.com/m3rciful/eventbot/core/logger"
	tghelpers "github.com/m3rciful/eventbot/core/telegram/helpers"
	"github.com/m3rciful/eventbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// StateGetter reads the dialogue state of a user.
type StateGetter interface {
	GetState(ctx context.Context, userID int64) (state.State, error)
}

// State gates next on the sender being in want. Updates arriving in any
// other state are dropped without a reply.
func State(mgr StateGetter, want state.State) tele.MiddlewareFunc {
	return gate(mgr, want, "", func(got state.State) bool { return got == want })
}

// NotState drops updates while the sender is in blocked and runs next in
// every other state.
func NotState(mgr StateGetter, blocked state.State) tele.MiddlewareFunc {
	return gate(mgr, "", blocked, func(got state.State) bool { return got != blocked })
}

func gate(mgr StateGetter, want, blocked state.State, admit func(state.State) bool) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			ctx := tghelpers.BuildContext(c)
			got, err := mgr.GetState(ctx, logger.UserIDFrom(ctx))
			if err != nil {
				return err
			}
			ok := admit(got)
			event := "fsm.skip"
			if ok {
				event = "fsm.match"
			}
			attrs := []slog.Attr{slog.String("state", string(got))}
			if want != "" {
				attrs = append(attrs, slog.String("expected", string(want)))
			}
			if blocked != "" {
				attrs = append(attrs, slog.String("blocked", string(blocked)))
			}
			logger.TG.LogAttrs(ctx, slog.LevelDebug, event, attrs...)
			if !ok {
				return nil
			}
			return next(c)
		}
	}
}
