package api

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

type RecurrenceRequest struct {
	DaysOfWeek  []time.Weekday `json:"days_of_week"` // 0 = Sunday
	RepeatUntil string         `json:"repeat_until,omitempty"`
	RepeatCount *int           `json:"repeat_count,omitempty"`
}

type CreateSlotRequest struct {
	OwnerID        string              `json:"owner_id,omitempty"`
	Date           string              `json:"date"`
	StartTime      slotqueue.TimeOfDay `json:"start_time"`
	EndTime        slotqueue.TimeOfDay `json:"end_time"`
	Period         slotqueue.Period    `json:"period"`
	Capacity       slotqueue.Capacity  `json:"capacity"`
	AverageMinutes int                 `json:"average_consultation_minutes"`
	Recurrence     *RecurrenceRequest  `json:"recurrence,omitempty"`
}

// UpdateSlotRequest only changes the fields present in the body.
// "capacity": null switches the slot to unlimited.
type UpdateSlotRequest struct {
	Date           *string              `json:"date,omitempty"`
	StartTime      *slotqueue.TimeOfDay `json:"start_time,omitempty"`
	EndTime        *slotqueue.TimeOfDay `json:"end_time,omitempty"`
	Period         *slotqueue.Period    `json:"period,omitempty"`
	Capacity       json.RawMessage      `json:"capacity,omitempty"`
	AverageMinutes *int                 `json:"average_consultation_minutes,omitempty"`
	Active         *bool                `json:"active,omitempty"`
}

type CompleteTokenRequest struct {
	ActualMinutes *int `json:"actual_duration_minutes,omitempty"`
}

type SlotsResponse struct {
	Slots []slotqueue.Slot `json:"slots"`
}

type TokensResponse struct {
	SlotID uuid.UUID         `json:"slot_id"`
	Tokens []slotqueue.Token `json:"tokens"`
}

type SessionResponse struct {
	SlotID  uuid.UUID        `json:"slot_id"`
	Serving *slotqueue.Token `json:"serving"`
}

type EstimatesResponse struct {
	SlotID    uuid.UUID            `json:"slot_id"`
	Estimates []slotqueue.Estimate `json:"estimates"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	Details   string `json:"details,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func (req CreateSlotRequest) toInput() (slotqueue.CreateSlotInput, error) {
	in := slotqueue.CreateSlotInput{
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Period:         req.Period,
		Capacity:       req.Capacity,
		AverageMinutes: req.AverageMinutes,
	}

	if req.OwnerID != "" {
		id, err := uuid.Parse(req.OwnerID)
		if err != nil {
			return in, errInvalidField("owner_id")
		}
		in.OwnerID = id
	}

	date, err := slotqueue.ParseDate(req.Date)
	if err != nil {
		return in, err
	}
	in.Date = date

	if rec := req.Recurrence; rec != nil {
		pattern := &slotqueue.RecurrencePattern{
			Weekdays:    rec.DaysOfWeek,
			RepeatCount: rec.RepeatCount,
		}
		if rec.RepeatUntil != "" {
			until, err := slotqueue.ParseDate(rec.RepeatUntil)
			if err != nil {
				return in, err
			}
			pattern.RepeatUntil = &until
		}
		in.Recurrence = pattern
	}

	return in, nil
}

func (req UpdateSlotRequest) toUpdate() (slotqueue.SlotUpdate, error) {
	upd := slotqueue.SlotUpdate{
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Period:         req.Period,
		AverageMinutes: req.AverageMinutes,
		Active:         req.Active,
	}

	if req.Date != nil {
		date, err := slotqueue.ParseDate(*req.Date)
		if err != nil {
			return upd, err
		}
		upd.Date = &date
	}

	if len(req.Capacity) > 0 {
		var c slotqueue.Capacity
		if err := json.Unmarshal(req.Capacity, &c); err != nil {
			return upd, err
		}
		upd.Capacity = &c
	}

	return upd, nil
}
