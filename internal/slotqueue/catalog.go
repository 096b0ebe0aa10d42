package slotqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CreateSlotInput struct {
	// OwnerID defaults to the acting identity. Only admins may create for someone else.
	OwnerID        uuid.UUID
	Date           time.Time
	StartTime      TimeOfDay
	EndTime        TimeOfDay
	Period         Period
	Capacity       Capacity
	AverageMinutes int
	Recurrence     *RecurrencePattern
}

// SlotUpdate lists the fields to change. Nil fields are left as they are.
type SlotUpdate struct {
	Date           *time.Time
	StartTime      *TimeOfDay
	EndTime        *TimeOfDay
	Period         *Period
	Capacity       *Capacity
	AverageMinutes *int
	Active         *bool
}

func validateSlotFields(start, end TimeOfDay, period Period, capacity Capacity, avgMinutes int) error {
	if !start.Valid() || !end.validEnd() {
		return validationf("times must fall within one day")
	}
	if start >= end {
		return validationf("start time %s must be before end time %s", start, end)
	}
	if !period.Valid() {
		return validationf("unknown period %q", period)
	}
	if n, ok := capacity.Limit(); ok && n < 1 {
		return validationf("capacity must be at least 1, got %d", n)
	}
	if avgMinutes < 1 {
		return validationf("average consultation duration must be at least 1 minute, got %d", avgMinutes)
	}
	return nil
}

// CreateSlots defines one slot, or one per date selected by in.Recurrence.
func (s *Service) CreateSlots(ctx context.Context, actor Identity, in CreateSlotInput) (slots []Slot, err error) {
	defer func() { s.observe("create_slots", err) }()

	owner := in.OwnerID
	if owner == uuid.Nil {
		owner = actor.ID
	}
	if actor.Role != RoleAdmin && (actor.Role != RoleOwner || owner != actor.ID) {
		return nil, errorf(ErrForbidden, "only an owner may create slots, and only their own")
	}
	if owner == uuid.Nil {
		return nil, validationf("owner is required")
	}

	if err := validateSlotFields(in.StartTime, in.EndTime, in.Period, in.Capacity, in.AverageMinutes); err != nil {
		return nil, err
	}

	today := s.Today()
	base := CalendarDate(in.Date)
	if base.Before(today) {
		return nil, validationf("date %s is in the past", base.Format(time.DateOnly))
	}

	dates := []time.Time{base}
	var batchID *uuid.UUID
	if in.Recurrence != nil {
		if err := in.Recurrence.validate(today); err != nil {
			return nil, err
		}
		dates, err = in.Recurrence.occurrences(base)
		if err != nil {
			return nil, err
		}
		if len(dates) == 0 {
			return nil, validationf("recurrence selects no dates from %s", base.Format(time.DateOnly))
		}
		id := uuid.New()
		batchID = &id
	}

	now := s.now()
	slots = make([]Slot, 0, len(dates))
	for _, d := range dates {
		slots = append(slots, Slot{
			ID:                uuid.New(),
			OwnerID:           owner,
			Date:              d,
			StartTime:         in.StartTime,
			EndTime:           in.EndTime,
			Period:            in.Period,
			Capacity:          in.Capacity,
			AverageMinutes:    in.AverageMinutes,
			Active:            true,
			RecurrenceBatchID: batchID,
			CreatedAt:         now,
			UpdatedAt:         now,
		})
	}

	if err := s.repo.CreateSlots(ctx, slots); err != nil {
		return nil, loadErr("create slots", err)
	}

	for _, slot := range slots {
		s.logEvent(ctx, slot.ID, nil, EventSlotCreated, map[string]any{
			"owner_id":   owner.String(),
			"date":       slot.Date.Format(time.DateOnly),
			"start_time": slot.StartTime.String(),
			"end_time":   slot.EndTime.String(),
			"capacity":   slot.Capacity.String(),
		})
	}
	s.logger.Info("slots created",
		zap.Stringer("owner_id", owner),
		zap.Int("count", len(slots)),
		zap.Bool("recurring", batchID != nil),
	)

	return slots, nil
}

// UpdateSlot applies upd atomically. Capacity may not drop below the number of
// tokens still waiting or being served.
func (s *Service) UpdateSlot(ctx context.Context, actor Identity, slotID uuid.UUID, upd SlotUpdate) (updated *Slot, err error) {
	defer func() { s.observe("update_slot", err) }()

	err = s.withSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, tokens, err := s.repo.LoadQueue(lockCtx, slotID)
		if err != nil {
			return loadErr("slot", err)
		}
		if err := authorizeOwner(actor, slot); err != nil {
			return err
		}

		next := *slot
		if upd.Date != nil {
			d := CalendarDate(*upd.Date)
			if !d.Equal(slot.Date) && d.Before(s.Today()) {
				return validationf("date %s is in the past", d.Format(time.DateOnly))
			}
			next.Date = d
		}
		if upd.StartTime != nil {
			next.StartTime = *upd.StartTime
		}
		if upd.EndTime != nil {
			next.EndTime = *upd.EndTime
		}
		if upd.Period != nil {
			next.Period = *upd.Period
		}
		if upd.Capacity != nil {
			next.Capacity = *upd.Capacity
		}
		if upd.AverageMinutes != nil {
			next.AverageMinutes = *upd.AverageMinutes
		}
		if upd.Active != nil {
			next.Active = *upd.Active
		}

		if err := validateSlotFields(next.StartTime, next.EndTime, next.Period, next.Capacity, next.AverageMinutes); err != nil {
			return err
		}
		if limit, ok := next.Capacity.Limit(); ok {
			if open := countOpen(tokens); limit < open {
				return errorf(ErrInvalidStateTransition, "capacity %d is below the %d tokens still queued", limit, open)
			}
		}

		if err := s.commit(lockCtx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, slotID, nil, EventSlotUpdated, map[string]any{
		"capacity":                     updated.Capacity.String(),
		"average_consultation_minutes": updated.AverageMinutes,
		"active":                       updated.Active,
	})
	s.logger.Info("slot updated", zap.Stringer("slot_id", slotID), zap.Int64("version", updated.Version))

	return updated, nil
}

// DeleteSlot removes a slot and its tokens unless a token is being served.
func (s *Service) DeleteSlot(ctx context.Context, actor Identity, slotID uuid.UUID) (err error) {
	defer func() { s.observe("delete_slot", err) }()

	err = s.withSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, tokens, err := s.repo.LoadQueue(lockCtx, slotID)
		if err != nil {
			return loadErr("slot", err)
		}
		if err := authorizeOwner(actor, slot); err != nil {
			return err
		}
		if slot.Queue.ServingTokenID != nil || servingToken(tokens) != nil {
			return ErrSlotServing
		}
		if err := s.repo.DeleteSlot(lockCtx, slotID, slot.Version); err != nil {
			return loadErr("delete slot", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logEvent(ctx, slotID, nil, EventSlotDeleted, map[string]any{})
	s.logger.Info("slot deleted", zap.Stringer("slot_id", slotID))
	return nil
}

// ListSlots returns the owner's slots on date in chronological order.
func (s *Service) ListSlots(ctx context.Context, ownerID uuid.UUID, date time.Time) (slots []Slot, err error) {
	defer func() { s.observe("list_slots", err) }()

	slots, err = s.repo.ListSlotsByOwner(ctx, ownerID, CalendarDate(date))
	if err != nil {
		return nil, loadErr("slots", err)
	}
	sortSlots(slots)
	return slots, nil
}

// ListSlotsOn returns every slot on date, for all owners.
func (s *Service) ListSlotsOn(ctx context.Context, date time.Time) ([]Slot, error) {
	slots, err := s.repo.ListSlotsByDate(ctx, CalendarDate(date))
	if err != nil {
		return nil, loadErr("slots", err)
	}
	sortSlots(slots)
	return slots, nil
}

func (s *Service) GetSlot(ctx context.Context, slotID uuid.UUID) (*Slot, error) {
	slot, err := s.repo.GetSlot(ctx, slotID)
	if err != nil {
		return nil, loadErr("slot", err)
	}
	return slot, nil
}
