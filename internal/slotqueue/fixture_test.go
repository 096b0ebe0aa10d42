package slotqueue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	redisclient "github.com/hackgods/slot-token-queue/internal/redis"
)

// 2026-03-02 is a Monday.
var monday = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	svc   *Service
	repo  *MemoryRepository
	clock *testClock
	owner Identity
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		repo:  NewMemoryRepository(),
		clock: &testClock{now: monday},
		owner: Identity{ID: uuid.New(), Role: RoleOwner},
	}
	opts = append([]Option{WithClock(f.clock)}, opts...)
	f.svc = NewService(f.repo, redisclient.NewLocalSlotLocker(5*time.Second), opts...)
	return f
}

func (f *fixture) createSlot(t *testing.T, capacity Capacity) Slot {
	t.Helper()

	slots, err := f.svc.CreateSlots(context.Background(), f.owner, CreateSlotInput{
		Date:           f.clock.Now(),
		StartTime:      NewTimeOfDay(9, 0),
		EndTime:        NewTimeOfDay(12, 0),
		Period:         PeriodMorning,
		Capacity:       capacity,
		AverageMinutes: 10,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)
	return slots[0]
}

func (f *fixture) book(t *testing.T, slotID uuid.UUID, n int) []Token {
	t.Helper()

	tokens := make([]Token, 0, n)
	for i := 0; i < n; i++ {
		tok, err := f.svc.Book(context.Background(), participant(), slotID)
		require.NoError(t, err)
		tokens = append(tokens, *tok)
	}
	return tokens
}

func (f *fixture) load(t *testing.T, slotID uuid.UUID) (*Slot, []Token) {
	t.Helper()

	slot, tokens, err := f.repo.LoadQueue(context.Background(), slotID)
	require.NoError(t, err)
	return slot, tokens
}

func participant() Identity {
	return Identity{ID: uuid.New(), Role: RoleParticipant}
}

func intPtr(n int) *int { return &n }

func countStatus(tokens []Token, status TokenStatus) int {
	n := 0
	for _, tok := range tokens {
		if tok.Status == status {
			n++
		}
	}
	return n
}
