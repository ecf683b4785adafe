package helpers

import (
	"context"

	"github.com/m3rciful/eventbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

const ctxStoreKey = "log_ctx"

// StoreContext keeps ctx on c for the remaining handlers of the update.
func StoreContext(c tele.Context, ctx context.Context) {
	if c != nil && ctx != nil {
		c.Set(ctxStoreKey, ctx)
	}
}

// ContextFrom returns the context stored by StoreContext.
func ContextFrom(c tele.Context) (context.Context, bool) {
	if c == nil {
		return nil, false
	}
	ctx, ok := c.Get(ctxStoreKey).(context.Context)
	return ctx, ok && ctx != nil
}

// BuildContext returns the update context, creating it on first use with
// the rid and the update, user and chat ids.
func BuildContext(c tele.Context) context.Context {
	if ctx, ok := ContextFrom(c); ok {
		return ctx
	}
	var chatID, userID int64
	if chat := c.Chat(); chat != nil {
		chatID = chat.ID
	}
	if user := c.Sender(); user != nil {
		userID = user.ID
	}
	updateID := c.Update().ID
	ctx := logger.WithRID(context.Background(), logger.BuildRID(updateID, chatID, userID))
	ctx = logger.WithUpdateMeta(ctx, updateID, userID, chatID)
	ctx = logger.WithLogger(ctx, logger.TG)
	StoreContext(c, ctx)
	return ctx
}

// WithHandler names the handler in the update context.
func WithHandler(c tele.Context, handler string) context.Context {
	return amend(c, func(ctx context.Context) context.Context {
		return logger.WithHandler(ctx, handler)
	})
}

// WithState records the sender's dialogue state in the update context.
func WithState(c tele.Context, state string) context.Context {
	return amend(c, func(ctx context.Context) context.Context {
		return logger.WithState(ctx, state)
	})
}

func amend(c tele.Context, fn func(context.Context) context.Context) context.Context {
	ctx := fn(BuildContext(c))
	StoreContext(c, ctx)
	return ctx
}
