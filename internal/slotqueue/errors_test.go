package slotqueue

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{ErrSlotNotFound, ErrNotFound},
		{ErrTokenNotFound, ErrNotFound},
		{ErrSlotBusy, ErrConcurrencyConflict},
		{ErrVersionMismatch, ErrConcurrencyConflict},
		{ErrSlotServing, ErrInvalidStateTransition},
		{ErrSlotInactive, ErrInvalidStateTransition},
		{fmt.Errorf("wrapped: %w", ErrTokenNotServing), ErrInvalidStateTransition},
		{validationf("bad %s", "input"), ErrValidation},
		{errorf(ErrCapacityExceeded, "full"), ErrCapacityExceeded},
		{errors.New("disk on fire"), nil},
		{nil, nil},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Kind(tt.err), "%v", tt.err)
	}
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(ErrSlotBusy))
	assert.True(t, IsRetryable(fmt.Errorf("save: %w", ErrVersionMismatch)))
	assert.False(t, IsRetryable(ErrAlreadyStarted))
	assert.False(t, IsRetryable(ErrSlotNotFound))
	assert.False(t, IsRetryable(nil))
}

func TestErrorDetailSurvivesWrapping(t *testing.T) {
	err := errorf(ErrCapacityExceeded, "slot %s is full at %d tokens", "abc", 5)
	assert.EqualError(t, err, "capacity exceeded: slot abc is full at 5 tokens")
}
