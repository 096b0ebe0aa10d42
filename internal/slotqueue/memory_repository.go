package slotqueue

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository keeps everything in process memory. Reads take a copy under
// a shared lock, so they never observe a half-applied SaveQueue.
type MemoryRepository struct {
	mu     sync.RWMutex
	slots  map[uuid.UUID]Slot
	tokens map[uuid.UUID]Token
	bySlot map[uuid.UUID][]uuid.UUID // token ids in index order
	events []EventLog
	nextEv int64
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		slots:  make(map[uuid.UUID]Slot),
		tokens: make(map[uuid.UUID]Token),
		bySlot: make(map[uuid.UUID][]uuid.UUID),
	}
}

func (r *MemoryRepository) CreateSlots(ctx context.Context, slots []Slot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, s := range slots {
		if _, ok := r.slots[s.ID]; ok {
			return fmt.Errorf("slot %s already exists", s.ID)
		}
	}
	for _, s := range slots {
		r.slots[s.ID] = s
	}
	return nil
}

func (r *MemoryRepository) GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[id]
	if !ok {
		return nil, ErrSlotNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]Slot, error) {
	return r.listSlots(ctx, func(s Slot) bool {
		return s.OwnerID == ownerID && s.Date.Equal(CalendarDate(date))
	})
}

func (r *MemoryRepository) ListSlotsByDate(ctx context.Context, date time.Time) ([]Slot, error) {
	return r.listSlots(ctx, func(s Slot) bool {
		return s.Date.Equal(CalendarDate(date))
	})
}

func (r *MemoryRepository) listSlots(ctx context.Context, keep func(Slot) bool) ([]Slot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var result []Slot
	for _, s := range r.slots {
		if keep(s) {
			result = append(result, s)
		}
	}
	sortSlots(result)
	return result, nil
}

func (r *MemoryRepository) GetToken(ctx context.Context, id uuid.UUID) (*Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[id]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return &t, nil
}

func (r *MemoryRepository) LoadQueue(ctx context.Context, slotID uuid.UUID) (*Slot, []Token, error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.slots[slotID]
	if !ok {
		return nil, nil, ErrSlotNotFound
	}
	ids := r.bySlot[slotID]
	tokens := make([]Token, 0, len(ids))
	for _, id := range ids {
		tokens = append(tokens, r.tokens[id])
	}
	return &s, tokens, nil
}

func (r *MemoryRepository) SaveQueue(ctx context.Context, slot Slot, changed []Token, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.slots[slot.ID]
	if !ok {
		return ErrSlotNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionMismatch
	}

	// Validate the whole write before touching anything.
	ids := r.bySlot[slot.ID]
	var appended []Token
	for _, t := range changed {
		if t.SlotID != slot.ID {
			return fmt.Errorf("token %s belongs to slot %s, not %s", t.ID, t.SlotID, slot.ID)
		}
		if _, exists := r.tokens[t.ID]; exists {
			continue
		}
		if t.Index != len(ids)+len(appended)+1 {
			return fmt.Errorf("%w: token index %d is not next in slot %s", ErrConcurrencyConflict, t.Index, slot.ID)
		}
		appended = append(appended, t)
	}

	for _, t := range changed {
		r.tokens[t.ID] = t
	}
	for _, t := range appended {
		ids = append(ids, t.ID)
	}
	r.bySlot[slot.ID] = ids
	r.slots[slot.ID] = slot
	return nil
}

func (r *MemoryRepository) DeleteSlot(ctx context.Context, id uuid.UUID, expectedVersion int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.slots[id]
	if !ok {
		return ErrSlotNotFound
	}
	if current.Version != expectedVersion {
		return ErrVersionMismatch
	}

	for _, tid := range r.bySlot[id] {
		delete(r.tokens, tid)
	}
	delete(r.bySlot, id)
	delete(r.slots, id)
	return nil
}

func (r *MemoryRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextEv++
	ev.ID = r.nextEv
	r.events = append(r.events, ev)
	return nil
}

// Events returns a copy of the event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]EventLog, len(r.events))
	copy(out, r.events)
	return out
}

func sortSlots(slots []Slot) {
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if a.StartTime != b.StartTime {
			return a.StartTime < b.StartTime
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID.String() < b.ID.String()
	})
}
