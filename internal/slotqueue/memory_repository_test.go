package slotqueue

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedSlot(t *testing.T, repo *MemoryRepository) Slot {
	t.Helper()

	slot := Slot{
		ID:             uuid.New(),
		OwnerID:        uuid.New(),
		Date:           CalendarDate(monday),
		StartTime:      NewTimeOfDay(9, 0),
		EndTime:        NewTimeOfDay(10, 0),
		Period:         PeriodMorning,
		AverageMinutes: 10,
		Active:         true,
	}
	require.NoError(t, repo.CreateSlots(context.Background(), []Slot{slot}))
	return slot
}

func TestMemoryRepository_SaveQueueVersionCheck(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	slot := seedSlot(t, repo)

	tok := Token{ID: uuid.New(), SlotID: slot.ID, Index: 1, Status: StatusBooked}
	slot.Version = 1
	slot.Queue.TokenCount = 1
	require.NoError(t, repo.SaveQueue(ctx, slot, []Token{tok}, 0))

	// a second writer that read version 0 loses
	err := repo.SaveQueue(ctx, slot, nil, 0)
	assert.ErrorIs(t, err, ErrVersionMismatch)
	assert.True(t, IsRetryable(err))

	err = repo.DeleteSlot(ctx, slot.ID, 0)
	assert.ErrorIs(t, err, ErrVersionMismatch)

	err = repo.SaveQueue(ctx, Slot{ID: uuid.New()}, nil, 0)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}

func TestMemoryRepository_RejectsIndexGap(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	slot := seedSlot(t, repo)

	gap := Token{ID: uuid.New(), SlotID: slot.ID, Index: 2, Status: StatusBooked}
	err := repo.SaveQueue(ctx, slot, []Token{gap}, 0)
	assert.ErrorIs(t, err, ErrConcurrencyConflict)

	stored, tokens, err := repo.LoadQueue(ctx, slot.ID)
	require.NoError(t, err)
	assert.Equal(t, slot, *stored)
	assert.Empty(t, tokens)
}

func TestMemoryRepository_CreateSlotsAllOrNothing(t *testing.T) {
	repo := NewMemoryRepository()
	existing := seedSlot(t, repo)

	fresh := existing
	fresh.ID = uuid.New()
	err := repo.CreateSlots(context.Background(), []Slot{fresh, existing})
	require.Error(t, err)

	_, err = repo.GetSlot(context.Background(), fresh.ID)
	assert.ErrorIs(t, err, ErrSlotNotFound)
}
