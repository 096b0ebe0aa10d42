package slotqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	// CreateSlots inserts every slot or none of them.
	CreateSlots(ctx context.Context, slots []Slot) error
	GetSlot(ctx context.Context, id uuid.UUID) (*Slot, error)
	ListSlotsByOwner(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]Slot, error)
	ListSlotsByDate(ctx context.Context, date time.Time) ([]Slot, error)

	GetToken(ctx context.Context, id uuid.UUID) (*Token, error)

	// LoadQueue reads a slot and its tokens, ordered by index, as of one instant.
	LoadQueue(ctx context.Context, slotID uuid.UUID) (*Slot, []Token, error)

	// SaveQueue stores slot and the changed tokens in one step, but only while
	// the stored slot version still equals expectedVersion.
	SaveQueue(ctx context.Context, slot Slot, changed []Token, expectedVersion int64) error

	// DeleteSlot removes the slot and its tokens under the same version rule.
	DeleteSlot(ctx context.Context, id uuid.UUID, expectedVersion int64) error

	InsertEvent(ctx context.Context, ev EventLog) error
}
