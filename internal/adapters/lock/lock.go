// Package lock guards work that must have a single in-flight run, within a
// process or across engine instances.
package lock

import (
	"context"
	"sync"
	"time"
)

// Release gives up a held lock.
type Release func(ctx context.Context) error

// Locker acquires named locks without blocking.
type Locker interface {
	// TryAcquire returns ok=false when another holder owns key.
	TryAcquire(ctx context.Context, key string, ttl time.Duration) (release Release, ok bool, err error)
}

// Local is a process-local Locker. Expired holds may be taken over.
type Local struct {
	mu   sync.Mutex
	held map[string]hold
	seq  uint64
	now  func() time.Time
}

type hold struct {
	token   uint64
	expires time.Time
}

var _ Locker = (*Local)(nil)

// NewLocal constructs a process-local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]hold), now: time.Now}
}

func (l *Local) TryAcquire(_ context.Context, key string, ttl time.Duration) (Release, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if h, ok := l.held[key]; ok && (h.expires.IsZero() || now.Before(h.expires)) {
		return nil, false, nil
	}
	l.seq++
	h := hold{token: l.seq}
	if ttl > 0 {
		h.expires = now.Add(ttl)
	}
	l.held[key] = h

	return func(context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		if cur, ok := l.held[key]; ok && cur.token == h.token {
			delete(l.held, key)
		}
		return nil
	}, true, nil
}
