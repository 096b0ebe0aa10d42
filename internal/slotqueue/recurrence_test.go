package slotqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dates(ts []time.Time) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.Format(time.DateOnly)
	}
	return out
}

func TestRecurrenceExpand(t *testing.T) {
	until := time.Date(2026, time.March, 16, 0, 0, 0, 0, time.UTC)
	tuesday := monday.AddDate(0, 0, 1)

	tests := []struct {
		name    string
		base    time.Time
		pattern RecurrencePattern
		want    []string
	}{
		{
			name:    "count includes matching base date",
			base:    monday,
			pattern: RecurrencePattern{Weekdays: []time.Weekday{time.Monday, time.Wednesday}, RepeatCount: intPtr(2)},
			want:    []string{"2026-03-02", "2026-03-04"},
		},
		{
			name:    "base date skipped when weekday not selected",
			base:    tuesday,
			pattern: RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatCount: intPtr(1)},
			want:    []string{"2026-03-09"},
		},
		{
			name:    "until is inclusive",
			base:    monday,
			pattern: RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatUntil: &until},
			want:    []string{"2026-03-02", "2026-03-09", "2026-03-16"},
		},
		{
			name: "count reached before until",
			base: monday,
			pattern: RecurrencePattern{Weekdays: []time.Weekday{time.Monday, time.Friday},
				RepeatUntil: &until, RepeatCount: intPtr(3)},
			want: []string{"2026-03-02", "2026-03-06", "2026-03-09"},
		},
		{
			name:    "until before first match",
			base:    tuesday,
			pattern: RecurrencePattern{Weekdays: []time.Weekday{time.Sunday}, RepeatUntil: &tuesday},
			want:    []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, dates(tt.pattern.Expand(tt.base)))
		})
	}
}

func TestRecurrenceExpand_Bounded(t *testing.T) {
	p := RecurrencePattern{
		Weekdays:    []time.Weekday{time.Sunday, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday},
		RepeatCount: intPtr(maxRecurrenceDays),
	}

	got := p.Expand(monday)
	require.Len(t, got, maxRecurrenceDays)
	assert.Equal(t, CalendarDate(monday).AddDate(0, 0, maxRecurrenceDays-1), got[len(got)-1])
}

func TestRecurrenceValidate(t *testing.T) {
	today := CalendarDate(monday)
	yesterday := today.AddDate(0, 0, -1)

	assert.NoError(t, RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatCount: intPtr(1)}.validate(today))
	assert.NoError(t, RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatUntil: &today}.validate(today))

	assert.ErrorIs(t, RecurrencePattern{RepeatCount: intPtr(1)}.validate(today), ErrValidation)
	assert.ErrorIs(t, RecurrencePattern{Weekdays: []time.Weekday{7}, RepeatCount: intPtr(1)}.validate(today), ErrValidation)
	assert.ErrorIs(t, RecurrencePattern{Weekdays: []time.Weekday{time.Monday}}.validate(today), ErrValidation)
	assert.ErrorIs(t, RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatCount: intPtr(0)}.validate(today), ErrValidation)
	assert.ErrorIs(t, RecurrencePattern{Weekdays: []time.Weekday{time.Monday}, RepeatUntil: &yesterday}.validate(today), ErrValidation)
}

func TestRecurrenceOccurrences_CountBeyondHorizon(t *testing.T) {
	mondays := []time.Weekday{time.Monday}
	inHorizon := monday.AddDate(0, 0, 70)
	pastHorizon := monday.AddDate(0, 0, 400)

	got, err := RecurrencePattern{Weekdays: mondays, RepeatCount: intPtr(53)}.occurrences(monday)
	require.NoError(t, err)
	assert.Len(t, got, 53)

	_, err = RecurrencePattern{Weekdays: mondays, RepeatCount: intPtr(60)}.occurrences(monday)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = RecurrencePattern{Weekdays: mondays, RepeatCount: intPtr(60), RepeatUntil: &pastHorizon}.occurrences(monday)
	assert.ErrorIs(t, err, ErrValidation)

	// repeat_until is the limit reached first, so a short list is the answer
	got, err = RecurrencePattern{Weekdays: mondays, RepeatCount: intPtr(60), RepeatUntil: &inHorizon}.occurrences(monday)
	require.NoError(t, err)
	assert.Len(t, got, 11)
}
