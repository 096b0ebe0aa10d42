package redisclient

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// slotSem is a one-place semaphore plus the number of callers holding or
// waiting on it. The entry leaves the map when refs drops to zero.
type slotSem struct {
	ch   chan struct{}
	refs int
}

type localSlotLocker struct {
	wait  time.Duration
	mu    sync.Mutex
	slots map[uuid.UUID]*slotSem
}

// NewLocalSlotLocker serializes writers per slot inside one process. It is the
// fallback when no Redis is configured, and what tests run against.
func NewLocalSlotLocker(wait time.Duration) Locker {
	return &localSlotLocker{
		wait:  wait,
		slots: make(map[uuid.UUID]*slotSem),
	}
}

func (l *localSlotLocker) ref(slotID uuid.UUID) *slotSem {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.slots[slotID]
	if !ok {
		s = &slotSem{ch: make(chan struct{}, 1)}
		l.slots[slotID] = s
	}
	s.refs++
	return s
}

func (l *localSlotLocker) unref(slotID uuid.UUID, s *slotSem) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(l.slots, slotID)
	}
}

func (l *localSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	s := l.ref(slotID)
	defer l.unref(slotID, s)

	select {
	case s.ch <- struct{}{}:
	default:
		timer := time.NewTimer(l.wait)
		defer timer.Stop()

		select {
		case s.ch <- struct{}{}:
		case <-timer.C:
			return ErrLockNotAcquired
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	defer func() { <-s.ch }()

	return fn(ctx)
}
