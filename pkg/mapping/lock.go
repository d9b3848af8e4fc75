package mapping

import (
	"context"
	"sync"
)

// KeyedLocker is an in-process lock per integration name for stores that
// have no lock of their own.
type KeyedLocker struct {
	mu    sync.Mutex
	slots map[string]chan struct{}
}

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{slots: map[string]chan struct{}{}}
}

// Lock blocks until the integration is free or ctx is done.
func (l *KeyedLocker) Lock(ctx context.Context, integration string) (func(), error) {
	l.mu.Lock()
	slot, ok := l.slots[integration]
	if !ok {
		slot = make(chan struct{}, 1)
		l.slots[integration] = slot
	}
	l.mu.Unlock()

	select {
	case slot <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { <-slot })
	}, nil
}
