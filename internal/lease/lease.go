// Package lease serializes scoring runs for the same subject.
package lease

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"
)

// Locker hands out exclusive per-key leases. Acquire blocks until the lease
// is held or ctx is done; the returned release must be called exactly once.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Local is an in-process Locker.
type Local struct {
	mu    sync.Mutex
	locks map[string]*localLock
}

type localLock struct {
	sem  chan struct{}
	refs int
}

// NewLocal returns an empty in-process Locker.
func NewLocal() *Local {
	return &Local{locks: make(map[string]*localLock)}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	lk, ok := l.locks[key]
	if !ok {
		lk = &localLock{sem: make(chan struct{}, 1)}
		l.locks[key] = lk
	}
	lk.refs++
	l.mu.Unlock()

	select {
	case lk.sem <- struct{}{}:
	case <-ctx.Done():
		l.unref(key, lk)
		return nil, eris.Wrap(ctx.Err(), "lease: acquire "+key)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-lk.sem
			l.unref(key, lk)
		})
	}, nil
}

func (l *Local) unref(key string, lk *localLock) {
	l.mu.Lock()
	defer l.mu.Unlock()
	lk.refs--
	if lk.refs == 0 {
		delete(l.locks, key)
	}
}

// held reports how many keys currently have holders or waiters.
func (l *Local) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
