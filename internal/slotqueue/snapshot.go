package slotqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Snapshot is a read-only view of one slot's queue at a single point in time.
type Snapshot struct {
	Slot           Slot       `json:"slot"`
	TotalTokens    int        `json:"total_tokens"`
	CurrentIndex   int        `json:"current_index"`
	Remaining      int        `json:"remaining"`
	SessionStarted bool       `json:"session_started"`
	ServingTokenID *uuid.UUID `json:"serving_token_id,omitempty"`
	ServingElapsed *int64     `json:"serving_elapsed_seconds,omitempty"`
	Tokens         []Token    `json:"tokens"`
	GeneratedAt    time.Time  `json:"generated_at"`
}

// Snapshot composes slot metadata, queue progress and estimates. It only reads.
func (s *Service) Snapshot(ctx context.Context, slotID uuid.UUID) (snap *Snapshot, err error) {
	defer func() { s.observe("snapshot", err) }()

	slot, tokens, err := s.repo.LoadQueue(ctx, slotID)
	if err != nil {
		return nil, loadErr("slot", err)
	}
	return project(*slot, tokens, s.loc, s.now()), nil
}

func project(slot Slot, tokens []Token, loc *time.Location, now time.Time) *Snapshot {
	ordered := annotate(slot, tokens, loc)

	snap := &Snapshot{
		Slot:           slot,
		TotalTokens:    len(ordered),
		SessionStarted: slot.Queue.SessionStarted,
		Tokens:         ordered,
		GeneratedAt:    now,
	}

	lastTerminal := 0
	for _, t := range ordered {
		if t.Status.Terminal() {
			if t.Index > lastTerminal {
				lastTerminal = t.Index
			}
			continue
		}
		snap.Remaining++
	}

	if cur := servingToken(ordered); cur != nil {
		id := cur.ID
		elapsed := int64(ServingElapsed(*cur, now) / time.Second)
		snap.CurrentIndex = cur.Index
		snap.ServingTokenID = &id
		snap.ServingElapsed = &elapsed
	} else {
		snap.CurrentIndex = lastTerminal + 1
	}
	return snap
}
