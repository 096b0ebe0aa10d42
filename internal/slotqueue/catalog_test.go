package slotqueue

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSlots_Single(t *testing.T) {
	f := newFixture(t)

	slot := f.createSlot(t, LimitOf(5))

	assert.Equal(t, f.owner.ID, slot.OwnerID)
	assert.Equal(t, CalendarDate(monday), slot.Date)
	assert.True(t, slot.Active)
	assert.Nil(t, slot.RecurrenceBatchID)
	assert.Equal(t, int64(0), slot.Version)

	stored, err := f.svc.GetSlot(context.Background(), slot.ID)
	require.NoError(t, err)
	assert.Equal(t, slot, *stored)

	events := f.repo.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventSlotCreated, events[0].EventType)
}

func TestCreateSlots_EndsAtMidnight(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.CreateSlots(context.Background(), f.owner, CreateSlotInput{
		Date:           monday,
		StartTime:      NewTimeOfDay(20, 0),
		EndTime:        EndOfDay,
		Period:         PeriodEvening,
		AverageMinutes: 15,
	})
	require.NoError(t, err)
	require.Len(t, slots, 1)

	assert.Equal(t, EndOfDay, slots[0].EndTime)
	assert.Equal(t, CalendarDate(monday).AddDate(0, 0, 1), slots[0].EndsAt(time.UTC))
}

func TestCreateSlots_Validation(t *testing.T) {
	yesterday := monday.AddDate(0, 0, -1)

	tests := []struct {
		name string
		in   CreateSlotInput
	}{
		{
			name: "past date",
			in: CreateSlotInput{Date: yesterday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: PeriodMorning, AverageMinutes: 10},
		},
		{
			name: "start equals end",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(9, 0),
				Period: PeriodMorning, AverageMinutes: 10},
		},
		{
			name: "start after end",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(11, 0), EndTime: NewTimeOfDay(9, 0),
				Period: PeriodMorning, AverageMinutes: 10},
		},
		{
			name: "zero capacity",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: PeriodMorning, Capacity: LimitOf(0), AverageMinutes: 10},
		},
		{
			name: "unknown period",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: Period("NIGHT"), AverageMinutes: 10},
		},
		{
			name: "zero average",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: PeriodMorning},
		},
		{
			name: "recurrence until in the past",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: PeriodMorning, AverageMinutes: 10,
				Recurrence: &RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatUntil: &yesterday}},
		},
		{
			name: "recurrence without a bound",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: PeriodMorning, AverageMinutes: 10,
				Recurrence: &RecurrencePattern{Weekdays: []time.Weekday{time.Monday}}},
		},
		{
			name: "recurrence count past the horizon",
			in: CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
				Period: PeriodMorning, AverageMinutes: 10,
				Recurrence: &RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatCount: intPtr(60)}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)

			slots, err := f.svc.CreateSlots(context.Background(), f.owner, tt.in)

			assert.ErrorIs(t, err, ErrValidation)
			assert.Nil(t, slots)
			assert.Empty(t, f.repo.Events())
		})
	}
}

func TestCreateSlots_Forbidden(t *testing.T) {
	f := newFixture(t)
	in := CreateSlotInput{Date: monday, StartTime: NewTimeOfDay(9, 0), EndTime: NewTimeOfDay(10, 0),
		Period: PeriodMorning, AverageMinutes: 10}

	_, err := f.svc.CreateSlots(context.Background(), participant(), in)
	assert.ErrorIs(t, err, ErrForbidden)

	in.OwnerID = uuid.New()
	_, err = f.svc.CreateSlots(context.Background(), f.owner, in)
	assert.ErrorIs(t, err, ErrForbidden)

	admin := Identity{ID: uuid.New(), Role: RoleAdmin}
	slots, err := f.svc.CreateSlots(context.Background(), admin, in)
	require.NoError(t, err)
	assert.Equal(t, in.OwnerID, slots[0].OwnerID)
}

func TestCreateSlots_RecurrenceProducesIndependentSlots(t *testing.T) {
	f := newFixture(t)

	slots, err := f.svc.CreateSlots(context.Background(), f.owner, CreateSlotInput{
		Date:           monday,
		StartTime:      NewTimeOfDay(14, 0),
		EndTime:        NewTimeOfDay(17, 0),
		Period:         PeriodAfternoon,
		Capacity:       LimitOf(8),
		AverageMinutes: 15,
		Recurrence: &RecurrencePattern{
			Weekdays:    []time.Weekday{time.Monday, time.Wednesday},
			RepeatCount: intPtr(4),
		},
	})
	require.NoError(t, err)
	require.Len(t, slots, 4)

	wantDates := []string{"2026-03-02", "2026-03-04", "2026-03-09", "2026-03-11"}
	for i, s := range slots {
		assert.Equal(t, wantDates[i], s.Date.Format(time.DateOnly))
		require.NotNil(t, s.RecurrenceBatchID)
		assert.Equal(t, *slots[0].RecurrenceBatchID, *s.RecurrenceBatchID)
		assert.Equal(t, NewTimeOfDay(14, 0), s.StartTime)
		assert.Equal(t, 15, s.AverageMinutes)
	}

	avg := 30
	_, err = f.svc.UpdateSlot(context.Background(), f.owner, slots[0].ID, SlotUpdate{AverageMinutes: &avg})
	require.NoError(t, err)

	sibling, err := f.svc.GetSlot(context.Background(), slots[1].ID)
	require.NoError(t, err)
	assert.Equal(t, 15, sibling.AverageMinutes)
}

func TestUpdateSlot_CapacityBelowOpenTokensRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, LimitOf(5))
	f.book(t, slot.ID, 3)
	before, _ := f.load(t, slot.ID)

	_, err := f.svc.UpdateSlot(ctx, f.owner, slot.ID, SlotUpdate{Capacity: capPtr(LimitOf(2))})
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	after, _ := f.load(t, slot.ID)
	assert.Equal(t, before, after)

	// finishing one token frees a place
	serving, err := f.svc.StartSession(ctx, f.owner, slot.ID)
	require.NoError(t, err)
	_, err = f.svc.MarkCompleted(ctx, f.owner, serving.ID, intPtr(5))
	require.NoError(t, err)

	updated, err := f.svc.UpdateSlot(ctx, f.owner, slot.ID, SlotUpdate{Capacity: capPtr(LimitOf(2))})
	require.NoError(t, err)
	assert.Equal(t, LimitOf(2), updated.Capacity)

	updated, err = f.svc.UpdateSlot(ctx, f.owner, slot.ID, SlotUpdate{Capacity: capPtr(Unlimited())})
	require.NoError(t, err)
	assert.Equal(t, Unlimited(), updated.Capacity)
}

func TestUpdateSlot_ValidatesMergedFields(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, Unlimited())

	early := NewTimeOfDay(8, 0)
	_, err := f.svc.UpdateSlot(context.Background(), f.owner, slot.ID, SlotUpdate{EndTime: &early})
	assert.ErrorIs(t, err, ErrValidation)

	past := monday.AddDate(0, 0, -3)
	_, err = f.svc.UpdateSlot(context.Background(), f.owner, slot.ID, SlotUpdate{Date: &past})
	assert.ErrorIs(t, err, ErrValidation)

	other := Identity{ID: uuid.New(), Role: RoleOwner}
	_, err = f.svc.UpdateSlot(context.Background(), other, slot.ID, SlotUpdate{EndTime: &early})
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = f.svc.UpdateSlot(context.Background(), f.owner, uuid.New(), SlotUpdate{})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateSlot_AppliesFields(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, Unlimited())

	end := NewTimeOfDay(13, 30)
	period := PeriodCustom
	inactive := false
	updated, err := f.svc.UpdateSlot(context.Background(), f.owner, slot.ID, SlotUpdate{
		EndTime: &end,
		Period:  &period,
		Active:  &inactive,
	})
	require.NoError(t, err)

	assert.Equal(t, end, updated.EndTime)
	assert.Equal(t, PeriodCustom, updated.Period)
	assert.False(t, updated.Active)
	assert.Equal(t, slot.Version+1, updated.Version)

	_, err = f.svc.Book(context.Background(), participant(), slot.ID)
	assert.ErrorIs(t, err, ErrSlotInactive)
}

func TestDeleteSlot(t *testing.T) {
	f := newFixture(t)
	slot := f.createSlot(t, Unlimited())
	tokens := f.book(t, slot.ID, 2)

	require.NoError(t, f.svc.DeleteSlot(context.Background(), f.owner, slot.ID))

	_, err := f.svc.GetSlot(context.Background(), slot.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.repo.GetToken(context.Background(), tokens[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteSlot_WhileServingFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	slot := f.createSlot(t, Unlimited())
	f.book(t, slot.ID, 3)
	_, err := f.svc.StartSession(ctx, f.owner, slot.ID)
	require.NoError(t, err)

	beforeSlot, beforeTokens := f.load(t, slot.ID)

	err = f.svc.DeleteSlot(ctx, f.owner, slot.ID)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.ErrorIs(t, err, ErrSlotServing)

	afterSlot, afterTokens := f.load(t, slot.ID)
	assert.Equal(t, beforeSlot, afterSlot)
	assert.Equal(t, beforeTokens, afterTokens)
}

func TestListSlots_ChronologicalForOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for _, start := range []TimeOfDay{NewTimeOfDay(15, 0), NewTimeOfDay(8, 0), NewTimeOfDay(11, 30)} {
		_, err := f.svc.CreateSlots(ctx, f.owner, CreateSlotInput{
			Date: monday, StartTime: start, EndTime: start + 60, Period: PeriodCustom, AverageMinutes: 10,
		})
		require.NoError(t, err)
	}

	other := Identity{ID: uuid.New(), Role: RoleOwner}
	_, err := f.svc.CreateSlots(ctx, other, CreateSlotInput{
		Date: monday, StartTime: NewTimeOfDay(7, 0), EndTime: NewTimeOfDay(8, 0), Period: PeriodMorning, AverageMinutes: 10,
	})
	require.NoError(t, err)

	slots, err := f.svc.ListSlots(ctx, f.owner.ID, monday)
	require.NoError(t, err)
	require.Len(t, slots, 3)
	assert.Equal(t, NewTimeOfDay(8, 0), slots[0].StartTime)
	assert.Equal(t, NewTimeOfDay(11, 30), slots[1].StartTime)
	assert.Equal(t, NewTimeOfDay(15, 0), slots[2].StartTime)

	all, err := f.svc.ListSlotsOn(ctx, monday)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := f.svc.ListSlots(ctx, f.owner.ID, monday.AddDate(0, 0, 1))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func capPtr(c Capacity) *Capacity { return &c }
