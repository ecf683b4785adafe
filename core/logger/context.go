package logger

import (
	"context"
	"log/slog"
)

type ctxKey int

const (
	metaKey ctxKey = iota
	loggerKey
)

// updateMeta is the per-update correlation data attached to every line
// logged with the context.
type updateMeta struct {
	rid      string
	updateID int
	userID   int64
	chatID   int64
	handler  string
	state    string
}

func metaFrom(ctx context.Context) updateMeta {
	if ctx == nil {
		return updateMeta{}
	}
	m, _ := ctx.Value(metaKey).(updateMeta)
	return m
}

func withMeta(ctx context.Context, edit func(*updateMeta)) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	m := metaFrom(ctx)
	edit(&m)
	return context.WithValue(ctx, metaKey, m)
}

// WithLogger stores log in ctx. A nil logger leaves ctx untouched.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return L
}

// WithRID attaches the update correlation id.
func WithRID(ctx context.Context, rid string) context.Context {
	return withMeta(ctx, func(m *updateMeta) { m.rid = rid })
}

func RIDFrom(ctx context.Context) string { return metaFrom(ctx).rid }

// WithUpdateMeta attaches the update, user and chat identifiers.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	return withMeta(ctx, func(m *updateMeta) {
		m.updateID = updateID
		m.userID = userID
		m.chatID = chatID
	})
}

// WithHandler names the handler serving the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return withMeta(ctx, func(m *updateMeta) { m.handler = handler })
}

func HandlerFrom(ctx context.Context) string { return metaFrom(ctx).handler }

// WithState records the dialogue state the sender was in when the update
// arrived.
func WithState(ctx context.Context, state string) context.Context {
	return withMeta(ctx, func(m *updateMeta) { m.state = state })
}

func StateFrom(ctx context.Context) string { return metaFrom(ctx).state }

func UserIDFrom(ctx context.Context) int64 { return metaFrom(ctx).userID }

func ChatIDFrom(ctx context.Context) int64 { return metaFrom(ctx).chatID }

func UpdateIDFrom(ctx context.Context) int { return metaFrom(ctx).updateID }

// attrs lists the set identifiers in key order.
func (m updateMeta) attrs() []slog.Attr {
	out := make([]slog.Attr, 0, 6)
	if m.rid != "" {
		out = append(out, slog.String("rid", m.rid))
	}
	if m.updateID != 0 {
		out = append(out, slog.Int("update_id", m.updateID))
	}
	if m.userID != 0 {
		out = append(out, slog.Int64("user_id", m.userID))
	}
	if m.chatID != 0 {
		out = append(out, slog.Int64("chat_id", m.chatID))
	}
	if m.handler != "" {
		out = append(out, slog.String("handler", m.handler))
	}
	if m.state != "" {
		out = append(out, slog.String("state", m.state))
	}
	return out
}
