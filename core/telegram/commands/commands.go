package commands

import (
	"strings"

	"github.com/m3rciful/eventbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	Hidden      bool
	Aliases     []string

	// Guard restricts the command to some dialogue states. Nil allows every state.
	Guard func(state.State) bool
}

// Allows reports whether the command may run while the user is in st.
func (c Command) Allows(st state.State) bool {
	if c.Guard == nil {
		return true
	}
	return c.Guard(st)
}

// OnlyIn builds a guard accepting only the listed states.
func OnlyIn(states ...state.State) func(state.State) bool {
	set := make(map[state.State]struct{}, len(states))
	for _, s := range states {
		set[s] = struct{}{}
	}
	return func(st state.State) bool {
		_, ok := set[normalize(st)]
		return ok
	}
}

// NotIn builds a guard rejecting the listed states.
func NotIn(states ...state.State) func(state.State) bool {
	only := OnlyIn(states...)
	return func(st state.State) bool { return !only(st) }
}

func normalize(st state.State) state.State {
	if st == "" {
		return state.StateIdle
	}
	return st
}

// Parse splits "/name@bot args" into "/name" and "args".
// ok is false when text is not a command.
func Parse(text string) (name, args string, ok bool) {
	text = strings.TrimSpace(text)
	if len(text) < 2 || text[0] != '/' {
		return "", "", false
	}
	head, rest, _ := strings.Cut(text, " ")
	if at := strings.IndexByte(head, '@'); at > 0 {
		head = head[:at]
	}
	if len(head) < 2 {
		return "", "", false
	}
	return strings.ToLower(head), strings.TrimSpace(rest), true
}
