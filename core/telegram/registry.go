package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/telegram/commands"
	"github.com/m3rciful/eventbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

// TextMatcher routes free text that satisfies Match to Handler.
type TextMatcher struct {
	Name    string
	Match   func(text string) bool
	Handler tele.HandlerFunc
}

// Registry maps incoming text and button presses to handlers. It is filled
// once at startup and read concurrently afterwards.
type Registry struct {
	mu sync.RWMutex

	commands map[string]commands.Command
	aliases  map[string]string
	states   map[state.State]tele.HandlerFunc
	matchers []TextMatcher
	buttons  map[string]tele.HandlerFunc

	unknownButton tele.HandlerFunc
	unknownText   tele.HandlerFunc
}

// NewRegistry returns an empty registry. Unknown buttons get a short
// "Unsupported action" notice until SetCallbackNotFound replaces it.
func NewRegistry() *Registry {
	return &Registry{
		commands: make(map[string]commands.Command),
		aliases:  make(map[string]string),
		states:   make(map[state.State]tele.HandlerFunc),
		buttons:  make(map[string]tele.HandlerFunc),
		unknownButton: func(c tele.Context) error {
			return c.Respond(&tele.CallbackResponse{Text: "Unsupported action"})
		},
	}
}

func wireWarn(event string, attrs ...slog.Attr) {
	logger.TWire.LogAttrs(context.Background(), slog.LevelWarn, event, attrs...)
}

// RegisterCommand adds cmd under name, which must start with a slash.
// Invalid and duplicate registrations are logged and ignored.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) {
	switch {
	case cmd.Handler == nil || cmd.Description == "":
		wireWarn("register.command.skip", slog.String("name", name), slog.String("reason", "invalid"))
		return
	case !strings.HasPrefix(name, "/") || len(name) < 2:
		wireWarn("register.command.skip", slog.String("name", name), slog.String("reason", "no_slash_prefix"))
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.commands[name]; dup {
		wireWarn("register.command.duplicate", slog.String("name", name))
		return
	}
	r.commands[name] = cmd
	for _, a := range cmd.Aliases {
		a = "/" + strings.TrimPrefix(a, "/")
		if _, taken := r.aliases[a]; taken {
			wireWarn("register.alias.duplicate", slog.String("name", name), slog.String("alias", a))
			continue
		}
		r.aliases[a] = name
	}
}

// RegisterStateHandler binds the handler that consumes free text while a
// user sits in st.
func (r *Registry) RegisterStateHandler(st state.State, h tele.HandlerFunc) {
	if st == "" || h == nil {
		wireWarn("register.state.skip", slog.String("state", string(st)))
		return
	}
	r.mu.Lock()
	r.states[st] = h
	r.mu.Unlock()
}

// RegisterTextMatcher appends m. Matchers are tried in registration order.
func (r *Registry) RegisterTextMatcher(m TextMatcher) {
	if m.Match == nil || m.Handler == nil {
		wireWarn("register.matcher.skip", slog.String("name", m.Name))
		return
	}
	r.mu.Lock()
	r.matchers = append(r.matchers, m)
	r.mu.Unlock()
}

// ListCommands returns the command menu sorted by name. Hidden commands
// are left out when visibleOnly is set.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]tele.Command, 0, len(r.commands))
	for name, cmd := range r.commands {
		if visibleOnly && cmd.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: strings.TrimPrefix(name, "/"), Description: cmd.Description})
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Text < list[j].Text })
	return list
}

// LookupCommand finds a command by name or alias, with or without the
// leading slash, and returns its canonical name.
func (r *Registry) LookupCommand(name string) (string, commands.Command, bool) {
	name = "/" + strings.TrimPrefix(name, "/")
	r.mu.RLock()
	defer r.mu.RUnlock()
	if canonical, ok := r.aliases[name]; ok {
		if _, own := r.commands[name]; !own {
			name = canonical
		}
	}
	cmd, ok := r.commands[name]
	if !ok {
		return "", commands.Command{}, false
	}
	return name, cmd, true
}

// ResolveText picks the handler for a text message sent while the user is in
// st. Order: a command whose guard admits st, the handler bound to st, the
// text matchers, then the text fallback. name identifies the winner for logs.
func (r *Registry) ResolveText(text string, st state.State) (name string, h tele.HandlerFunc, ok bool) {
	if st == "" {
		st = state.StateIdle
	}
	if cmdName, _, isCmd := commands.Parse(text); isCmd {
		if key, cmd, found := r.LookupCommand(cmdName); found && cmd.Allows(st) {
			return key, cmd.Handler, true
		}
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if h, found := r.states[st]; found {
		return "state." + string(st), h, true
	}
	for _, m := range r.matchers {
		if m.Match(text) {
			return "match." + m.Name, m.Handler, true
		}
	}
	if r.unknownText != nil {
		return "fallback", r.unknownText, true
	}
	return "", nil, false
}

// Commands returns a copy of the registered commands by name.
func (r *Registry) Commands() map[string]commands.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]commands.Command, len(r.commands))
	for k, v := range r.commands {
		out[k] = v
	}
	return out
}

// RegisterCallback binds a button key to handler. Keys are unique.
func (r *Registry) RegisterCallback(key string, handler tele.HandlerFunc) error {
	if key == "" || handler == nil {
		wireWarn("register.callback.skip", slog.String("key", key), slog.Bool("handler_nil", handler == nil))
		return errors.New("invalid callback registration")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.buttons[key]; dup {
		wireWarn("register.callback.duplicate", slog.String("key", key))
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.buttons[key] = handler
	return nil
}

func (r *Registry) GetCallback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.buttons[key]
	return h, ok
}

// ListCallbacks returns the registered button keys in order.
func (r *Registry) ListCallbacks() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.buttons))
	for k := range r.buttons {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// SetCallbackNotFound replaces the handler of unknown buttons. Nil is
// ignored.
func (r *Registry) SetCallbackNotFound(h tele.HandlerFunc) {
	if h == nil {
		return
	}
	r.mu.Lock()
	r.unknownButton = h
	r.mu.Unlock()
}

func (r *Registry) CallbackNotFound() tele.HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.unknownButton
}

// SetTextFallback sets the handler of text nothing else claims.
func (r *Registry) SetTextFallback(h tele.HandlerFunc) {
	r.mu.Lock()
	r.unknownText = h
	r.mu.Unlock()
}

// InitBotCommands publishes the visible commands as the bot's menu.
func InitBotCommands(bot *tele.Bot, reg *Registry) {
	menu := reg.ListCommands(true)
	if err := bot.SetCommands(menu); err != nil {
		logger.TWire.Error("set commands failed",
			slog.String("event", "register.commands.set_failed"),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.TWire.Info("tg.wire",
		slog.String("event", "commands.set"),
		slog.Int("commands", len(menu)),
	)
}
