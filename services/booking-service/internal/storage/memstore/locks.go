package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/md-rashed-zaman/slotbook/services/booking-service/internal/model"
)

// lockSet hands out one exclusive lock per key. Waiting is bounded so a stuck holder
// turns into ErrUpstreamUnavailable instead of a pile-up.
type lockSet struct {
	mu      sync.Mutex
	locks   map[string]chan struct{}
	timeout time.Duration
}

func newLockSet(timeout time.Duration) *lockSet {
	return &lockSet{locks: map[string]chan struct{}{}, timeout: timeout}
}

func (l *lockSet) get(key string) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[key] = ch
	}
	return ch
}

func (l *lockSet) acquire(ctx context.Context, key string) (func(), error) {
	ch := l.get(key)
	timer := time.NewTimer(l.timeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timer.C:
		return nil, fmt.Errorf("%w: lock timeout on %s", model.ErrUpstreamUnavailable, key)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %v", model.ErrUpstreamUnavailable, ctx.Err())
	}
}
