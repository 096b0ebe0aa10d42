package slotqueue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Period string

const (
	PeriodMorning   Period = "MORNING"
	PeriodAfternoon Period = "AFTERNOON"
	PeriodEvening   Period = "EVENING"
	PeriodCustom    Period = "CUSTOM"
)

func (p Period) Valid() bool {
	switch p {
	case PeriodMorning, PeriodAfternoon, PeriodEvening, PeriodCustom:
		return true
	}
	return false
}

type TokenStatus string

const (
	StatusBooked    TokenStatus = "BOOKED"
	StatusServing   TokenStatus = "SERVING"
	StatusCompleted TokenStatus = "COMPLETED"
	StatusWrong     TokenStatus = "WRONG"
)

// Terminal reports whether the token has left the queue for good.
func (s TokenStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusWrong
}

type Role string

const (
	RoleOwner       Role = "owner"
	RoleParticipant Role = "participant"
	RoleAdmin       Role = "admin"
)

// Identity is the acting caller, resolved once by whatever authenticates the request.
type Identity struct {
	ID   uuid.UUID
	Role Role
}

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

func NewTimeOfDay(hour, minute int) TimeOfDay {
	return TimeOfDay(hour*60 + minute)
}

// EndOfDay is midnight at the close of the day, "24:00". Only valid as an end time.
const EndOfDay TimeOfDay = 24 * 60

// ParseTimeOfDay accepts "HH:MM", and "24:00" for EndOfDay.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	if s == "24:00" {
		return EndOfDay, nil
	}
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("%w: time %q must be HH:MM", ErrValidation, s)
	}
	return NewTimeOfDay(t.Hour(), t.Minute()), nil
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) Valid() bool { return t >= 0 && t < EndOfDay }

func (t TimeOfDay) validEnd() bool { return t > 0 && t <= EndOfDay }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: time must be a \"HH:MM\" string", ErrValidation)
	}
	parsed, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Capacity is an optional booking limit. The zero value is unlimited.
type Capacity struct {
	limit   int
	limited bool
}

func Unlimited() Capacity { return Capacity{} }

func LimitOf(n int) Capacity { return Capacity{limit: n, limited: true} }

// Limit returns the limit and whether one is set.
func (c Capacity) Limit() (int, bool) { return c.limit, c.limited }

// Allows reports whether one more token fits next to count existing tokens.
func (c Capacity) Allows(count int) bool {
	return !c.limited || count < c.limit
}

func (c Capacity) String() string {
	if !c.limited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", c.limit)
}

func (c Capacity) MarshalJSON() ([]byte, error) {
	if !c.limited {
		return []byte("null"), nil
	}
	return json.Marshal(c.limit)
}

func (c *Capacity) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*c = Unlimited()
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: capacity must be an integer or null", ErrValidation)
	}
	*c = LimitOf(n)
	return nil
}

// QueueState tracks serving progress for one slot.
type QueueState struct {
	SessionStarted bool       `json:"session_started"`
	ServingTokenID *uuid.UUID `json:"serving_token_id,omitempty"`
	TokenCount     int        `json:"total_tokens"`
	ProcessedCount int        `json:"processed_count"` // tokens that have left BOOKED
}

type Slot struct {
	ID                uuid.UUID  `json:"id"`
	OwnerID           uuid.UUID  `json:"owner_id"`
	Date              time.Time  `json:"date"`
	StartTime         TimeOfDay  `json:"start_time"`
	EndTime           TimeOfDay  `json:"end_time"`
	Period            Period     `json:"period"`
	Capacity          Capacity   `json:"capacity"`
	AverageMinutes    int        `json:"average_consultation_minutes"`
	Active            bool       `json:"active"`
	RecurrenceBatchID *uuid.UUID `json:"recurrence_batch_id,omitempty"`
	Queue             QueueState `json:"queue"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// StartsAt is the scheduled start of the slot in loc.
func (s Slot) StartsAt(loc *time.Location) time.Time {
	return atTimeOfDay(s.Date, s.StartTime, loc)
}

func (s Slot) EndsAt(loc *time.Location) time.Time {
	return atTimeOfDay(s.Date, s.EndTime, loc)
}

func (s Slot) averageDuration() time.Duration {
	return time.Duration(s.AverageMinutes) * time.Minute
}

type Token struct {
	ID               uuid.UUID   `json:"id"`
	SlotID           uuid.UUID   `json:"slot_id"`
	Index            int         `json:"token_index"`
	ParticipantID    uuid.UUID   `json:"participant_id"`
	Status           TokenStatus `json:"status"`
	ServingStartedAt *time.Time  `json:"serving_started_at,omitempty"`
	ActualMinutes    *int        `json:"actual_duration_minutes,omitempty"`
	EstimatedStart   *time.Time  `json:"estimated_start,omitempty"`
	BookedAt         time.Time   `json:"booked_at"`
	UpdatedAt        time.Time   `json:"updated_at"`
}

// ServingElapsed is how long the token has been in service at now.
// Zero for tokens that are not being served.
func ServingElapsed(t Token, now time.Time) time.Duration {
	if t.Status != StatusServing || t.ServingStartedAt == nil {
		return 0
	}
	if d := now.Sub(*t.ServingStartedAt); d > 0 {
		return d
	}
	return 0
}

type EventLog struct {
	ID        int64
	EventType string
	SlotID    uuid.UUID
	TokenID   *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}

// CalendarDate drops the clock part of t, keeping the y/m/d it has in its own location.
func CalendarDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate accepts "YYYY-MM-DD".
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrValidation, s)
	}
	return d, nil
}

func atTimeOfDay(date time.Time, t TimeOfDay, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := date.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}
