package slotqueue

import "time"

// maxRecurrenceDays bounds how far past the base date an expansion may walk.
const maxRecurrenceDays = 366

// RecurrencePattern is a weekly pattern used once, at creation time, to stamp out
// independent slots. At least one of RepeatUntil and RepeatCount must be set;
// expansion stops at whichever limit is reached first.
type RecurrencePattern struct {
	Weekdays    []time.Weekday `json:"days_of_week"`
	RepeatUntil *time.Time     `json:"repeat_until,omitempty"`
	RepeatCount *int           `json:"repeat_count,omitempty"`
}

func (p RecurrencePattern) validate(today time.Time) error {
	if len(p.Weekdays) == 0 {
		return validationf("recurrence needs at least one weekday")
	}
	for _, wd := range p.Weekdays {
		if wd < time.Sunday || wd > time.Saturday {
			return validationf("recurrence weekday %d out of range", int(wd))
		}
	}
	if p.RepeatUntil == nil && p.RepeatCount == nil {
		return validationf("recurrence needs repeat_until or repeat_count")
	}
	if p.RepeatUntil != nil && CalendarDate(*p.RepeatUntil).Before(today) {
		return validationf("repeat_until %s is in the past", p.RepeatUntil.Format(time.DateOnly))
	}
	if p.RepeatCount != nil && (*p.RepeatCount < 1 || *p.RepeatCount > maxRecurrenceDays) {
		return validationf("repeat_count must be between 1 and %d", maxRecurrenceDays)
	}
	return nil
}

// Expand lists the dates selected by p, walking forward day by day from base.
// base itself is the first occurrence only when its weekday is selected.
func (p RecurrencePattern) Expand(base time.Time) []time.Time {
	base = CalendarDate(base)

	selected := make(map[time.Weekday]bool, len(p.Weekdays))
	for _, wd := range p.Weekdays {
		selected[wd] = true
	}

	var until time.Time
	if p.RepeatUntil != nil {
		until = CalendarDate(*p.RepeatUntil)
	}

	var dates []time.Time
	for i := 0; i <= maxRecurrenceDays; i++ {
		d := base.AddDate(0, 0, i)
		if p.RepeatUntil != nil && d.After(until) {
			break
		}
		if p.RepeatCount != nil && len(dates) >= *p.RepeatCount {
			break
		}
		if selected[d.Weekday()] {
			dates = append(dates, d)
		}
	}

	return dates
}

// occurrences expands p from base and rejects a repeat_count that the expansion
// horizon cuts short. Stopping early at repeat_until is not an error.
func (p RecurrencePattern) occurrences(base time.Time) ([]time.Time, error) {
	dates := p.Expand(base)
	if p.RepeatCount == nil || len(dates) >= *p.RepeatCount {
		return dates, nil
	}

	horizon := CalendarDate(base).AddDate(0, 0, maxRecurrenceDays)
	if p.RepeatUntil != nil && !CalendarDate(*p.RepeatUntil).After(horizon) {
		return dates, nil
	}
	return nil, validationf("repeat_count %d cannot be reached within %d days of %s, only %d dates match",
		*p.RepeatCount, maxRecurrenceDays, CalendarDate(base).Format(time.DateOnly), len(dates))
}
