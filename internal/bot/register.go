package bot

import (
	"fmt"

	tg "github.com/m3rciful/eventbot/core/telegram"
	"github.com/m3rciful/eventbot/core/telegram/commands"
	"github.com/m3rciful/eventbot/core/telegram/middleware"
	"github.com/m3rciful/eventbot/core/telegram/state"
	"github.com/m3rciful/eventbot/internal/dialogue"

	tele "gopkg.in/telebot.v4"
)

// Register binds every command, dialogue step and button of h to reg.
func Register(reg *tg.Registry, h *Handlers) error {
	idle := state.StateIdle

	reg.RegisterCommand("/start", commands.Command{Handler: h.Start, Description: DescStart, Hidden: true})
	reg.RegisterCommand("/help", commands.Command{Handler: h.Help, Description: DescHelp})
	reg.RegisterCommand("/add_event", commands.Command{
		Handler:     h.AddEvent,
		Description: DescAddEvent,
		Guard:       commands.OnlyIn(idle),
	})
	reg.RegisterCommand("/cancel", commands.Command{
		Handler:     h.Cancel,
		Description: DescCancel,
		Hidden:      true,
		Guard:       commands.NotIn(idle),
	})
	reg.RegisterCommand("/get_events", commands.Command{Handler: h.GetEvents, Description: DescGetEvents})
	reg.RegisterCommand("/get_usages_count", commands.Command{Handler: h.UsageStats, Description: DescGetUsagesCount})

	for _, step := range dialogue.Steps {
		reg.RegisterStateHandler(step.State, h.Fill)
	}

	if h.ShortenerEnabled() {
		reg.RegisterTextMatcher(tg.TextMatcher{Name: "shorten", Match: IsLink, Handler: h.Shorten})
	}
	reg.SetTextFallback(h.UnknownText())
	reg.SetCallbackNotFound(h.UnknownCallback())

	// In confirmation only the confirm and cancel buttons act; any other
	// press is answered and dropped.
	confirming := middleware.State(h.sessions, dialogue.StateConfirmation)
	notConfirming := middleware.NotState(h.sessions, dialogue.StateConfirmation)
	cbs := []struct {
		key string
		fn  tele.HandlerFunc
	}{
		{CallbackUsedURL, notConfirming(h.OpenEvent)},
		{CallbackConfirm, confirming(h.Confirm)},
		{CallbackCancel, confirming(h.Reject)},
	}
	for _, cb := range cbs {
		if err := reg.RegisterCallback(cb.key, cb.fn); err != nil {
			return fmt.Errorf("register callback %s: %w", cb.key, err)
		}
	}
	return nil
}
