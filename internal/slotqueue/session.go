package slotqueue

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StartSession opens serving for a slot and promotes its first booked token,
// if any. A session can be started once; later calls fail with
// ErrAlreadyStarted and change nothing.
func (s *Service) StartSession(ctx context.Context, actor Identity, slotID uuid.UUID) (serving *Token, err error) {
	defer func() { s.observe("start_session", err) }()

	err = s.withSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, tokens, err := s.repo.LoadQueue(lockCtx, slotID)
		if err != nil {
			return loadErr("slot", err)
		}
		if err := authorizeOwner(actor, slot); err != nil {
			return err
		}
		if slot.Queue.SessionStarted {
			return fmt.Errorf("%w: slot %s", ErrAlreadyStarted, slot.ID)
		}

		now := s.now()
		slot.Queue.SessionStarted = true
		next, err := promoteNext(slot, tokens, now)
		if err != nil {
			return err
		}

		var changed []Token
		if next != nil {
			changed = append(changed, *next)
		}
		if err := s.commit(lockCtx, slot, changed...); err != nil {
			return err
		}
		serving = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, slotID, nil, EventSessionStarted, map[string]any{})
	if serving != nil {
		s.logEvent(ctx, slotID, &serving.ID, EventTokenServing, map[string]any{"token_index": serving.Index})
		s.logger.Info("session started", zap.Stringer("slot_id", slotID), zap.Int("serving_index", serving.Index))
	} else {
		s.logger.Info("session started with empty queue", zap.Stringer("slot_id", slotID))
	}

	return serving, nil
}
