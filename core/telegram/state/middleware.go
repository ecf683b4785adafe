package state

import (
	"context"

	tele "gopkg.in/telebot.v4"
)

const ctxSessionKey = "fsm_session"

// FromContext returns the user's session, loading it from mgr at most once
// per update and caching it on the telebot context.
func FromContext(ctx context.Context, c tele.Context, mgr Manager) (*Session, error) {
	if cached, ok := c.Get(ctxSessionKey).(*Session); ok && cached != nil {
		return cached, nil
	}
	sess, err := mgr.Get(ctx, senderID(c))
	if err != nil {
		return nil, err
	}
	c.Set(ctxSessionKey, sess)
	return sess, nil
}

// Persist saves s and refreshes the cached copy for later handlers.
func Persist(ctx context.Context, c tele.Context, mgr Manager, s *Session) error {
	if err := mgr.Save(ctx, senderID(c), s); err != nil {
		return err
	}
	c.Set(ctxSessionKey, s)
	return nil
}

// Reset removes the user's session and caches an idle one.
func Reset(ctx context.Context, c tele.Context, mgr Manager) error {
	if err := mgr.Clear(ctx, senderID(c)); err != nil {
		return err
	}
	c.Set(ctxSessionKey, NewSession())
	return nil
}

func senderID(c tele.Context) int64 {
	if u := c.Sender(); u != nil {
		return u.ID
	}
	return 0
}
