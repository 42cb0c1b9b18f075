package lock

import (
	"context"
	"sync"
)

// MutexLocker is an in-process Locker keyed by string. It is sufficient when
// a single api-server owns the store (standalone mode, tests); unlike the
// Redis locker it blocks until the key is free instead of failing fast.
type MutexLocker struct {
	mu    sync.Mutex
	locks map[string]*keyLock
}

// keyLock counts holders and waiters so an idle key's entry can be removed
// instead of piling up one mutex per day ever scheduled.
type keyLock struct {
	sync.Mutex
	refs int
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{locks: make(map[string]*keyLock)}
}

func (l *MutexLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	kl, ok := l.locks[key]
	if !ok {
		kl = &keyLock{}
		l.locks[key] = kl
	}
	kl.refs++
	l.mu.Unlock()

	kl.Lock()
	defer func() {
		kl.Unlock()
		l.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
