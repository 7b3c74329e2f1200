// Package lock serializes work per key, such as a class ranking scope.
package lock

import (
	"context"
	"errors"
	"sync"
)

// ErrTimeout is returned when a key could not be acquired before the wait
// budget or the caller's context ran out.
var ErrTimeout = errors.New("lock: timed out waiting for key")

// Unlock releases a held key. It is safe to call more than once.
type Unlock func()

// Locker hands out exclusive ownership of a key.
type Locker interface {
	Acquire(ctx context.Context, key string) (Unlock, error)
}

// Local is an in-process keyed mutex. It is enough for a single API replica.
type Local struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	ch   chan struct{}
	refs int
}

// NewLocal returns an empty keyed mutex.
func NewLocal() *Local {
	return &Local{slots: make(map[string]*slot)}
}

// Acquire blocks until key is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{ch: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	l.mu.Unlock()

	select {
	case s.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, s)
		return nil, ErrTimeout
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-s.ch
			l.release(key, s)
		})
	}, nil
}

func (l *Local) release(key string, s *slot) {
	l.mu.Lock()
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
	l.mu.Unlock()
}

// held reports how many callers hold or wait on key.
func (l *Local) held(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.slots[key]; ok {
		return s.refs
	}
	return 0
}
