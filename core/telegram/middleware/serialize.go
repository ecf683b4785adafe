package middleware

import (
	"sync"

	tele "gopkg.in/telebot.v4"
)

// userLocks hands out one mutex per user. Entries are dropped once no
// update of that user holds or waits for the lock.
type userLocks struct {
	mu    sync.Mutex
	locks map[int64]*userLock
}

type userLock struct {
	sync.Mutex
	refs int
}

func (l *userLocks) acquire(id int64) *userLock {
	l.mu.Lock()
	if l.locks == nil {
		l.locks = make(map[int64]*userLock)
	}
	lk, ok := l.locks[id]
	if !ok {
		lk = &userLock{}
		l.locks[id] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.Lock()
	return lk
}

func (l *userLocks) release(id int64, lk *userLock) {
	lk.Unlock()
	l.mu.Lock()
	if lk.refs--; lk.refs == 0 {
		delete(l.locks, id)
	}
	l.mu.Unlock()
}

func (l *userLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}

// SerializePerUser runs the updates of one user one at a time, so a
// dialogue step always sees the session written by the previous one.
// Updates of different users still run in parallel. Updates without a
// sender are keyed by chat.
func SerializePerUser() tele.MiddlewareFunc {
	locks := &userLocks{}
	return serializeWith(locks)
}

func serializeWith(locks *userLocks) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			id := updateOwner(c)
			if id == 0 {
				return next(c)
			}
			lk := locks.acquire(id)
			defer locks.release(id, lk)
			return next(c)
		}
	}
}

func updateOwner(c tele.Context) int64 {
	if u := c.Sender(); u != nil && u.ID != 0 {
		return u.ID
	}
	if chat := c.Chat(); chat != nil {
		return chat.ID
	}
	return 0
}
