package middleware

import (
	"log/slog"
	"sync"

	"github.com/m3rciful/eventbot/core/logger"
	"github.com/m3rciful/eventbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/eventbot/core/telegram/helpers"

	tele "gopkg.in/telebot.v4"
)

// seenWindow is how many recent update ids are remembered for dedup.
const seenWindow = 256

// recentIDs remembers the last seenWindow update ids in a ring.
type recentIDs struct {
	mu   sync.Mutex
	ring [seenWindow]int
	used int
	next int
}

// mark records id and reports whether it was already present.
func (r *recentIDs) mark(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.used {
		if r.ring[i] == id {
			return true
		}
	}
	r.ring[r.next] = id
	r.next = (r.next + 1) % seenWindow
	r.used = min(r.used+1, seenWindow)
	return false
}

var received recentIDs

// LoggerMiddleware attaches the update context (rid and ids) to c and
// writes a sampled update.received line. The line is written once per
// update even when the middleware wraps several routes.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		upd := c.Update()
		if logger.ShouldSampleDebug() && !received.mark(upd.ID) {
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", receiptAttrs(c, upd)...)
		}
		return next(c)
	}
}

func receiptAttrs(c tele.Context, upd tele.Update) []slog.Attr {
	attrs := []slog.Attr{slog.String("status", "ok")}
	if chat := c.Chat(); chat != nil {
		attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
	}
	if u := c.Sender(); u != nil {
		if u.Username != "" {
			attrs = append(attrs, slog.String("username", logger.SanitizeLimit(u.Username, 64)))
		}
		if u.LanguageCode != "" {
			attrs = append(attrs, slog.String("lang", u.LanguageCode))
		}
	}

	switch {
	case upd.Callback != nil:
		key, payload := callbacks.Parse(upd.Callback)
		attrs = appendNonEmpty(attrs, "cb_key", logger.SanitizeLimit(key, 128))
		attrs = appendNonEmpty(attrs, "payload", logger.SanitizeLimit(payload, 256))
	case upd.Message != nil:
		attrs = appendNonEmpty(attrs, "payload", logger.SanitizeLimit(c.Text(), 256))
	}
	return attrs
}

func appendNonEmpty(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}
