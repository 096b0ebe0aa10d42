package slotqueue

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Advance is the result of closing the serving token.
type Advance struct {
	Finished Token  `json:"finished"`
	Next     *Token `json:"next,omitempty"`
}

// Book appends a token for participant at the end of the slot's queue.
func (s *Service) Book(ctx context.Context, participant Identity, slotID uuid.UUID) (booked *Token, err error) {
	defer func() { s.observe("book", err) }()

	if participant.ID == uuid.Nil {
		return nil, validationf("participant is required")
	}

	var promoted bool
	err = s.withSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		slot, tokens, err := s.repo.LoadQueue(lockCtx, slotID)
		if err != nil {
			return loadErr("slot", err)
		}
		if !slot.Active {
			return ErrSlotInactive
		}
		count := len(tokens)
		if !slot.Capacity.Allows(count) {
			return errorf(ErrCapacityExceeded, "slot %s is full at %s tokens", slot.ID, slot.Capacity)
		}

		now := s.now()
		tok := Token{
			ID:            uuid.New(),
			SlotID:        slot.ID,
			Index:         count + 1,
			ParticipantID: participant.ID,
			Status:        StatusBooked,
			BookedAt:      now,
			UpdatedAt:     now,
		}
		slot.Queue.TokenCount = count + 1

		// a started session with nobody in service picks the newcomer up at once
		if slot.Queue.SessionStarted && slot.Queue.ServingTokenID == nil {
			startServing(slot, &tok, now)
			promoted = true
		}

		if err := s.commit(lockCtx, slot, tok); err != nil {
			return err
		}

		tokens = append(tokens, tok)
		if est, ok := EstimateStarts(*slot, tokens, s.loc)[tok.ID]; ok {
			tok.EstimatedStart = &est
		}
		booked = &tok
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logEvent(ctx, slotID, &booked.ID, EventTokenBooked, map[string]any{
		"participant_id": participant.ID.String(),
		"token_index":    booked.Index,
	})
	if promoted {
		s.logEvent(ctx, slotID, &booked.ID, EventTokenServing, map[string]any{"token_index": booked.Index})
	}
	s.logger.Info("token booked",
		zap.Stringer("slot_id", slotID),
		zap.Int("token_index", booked.Index),
		zap.Bool("serving", promoted),
	)

	return booked, nil
}

// OrderedView lists the slot's tokens in service order, each with its estimated start.
func (s *Service) OrderedView(ctx context.Context, slotID uuid.UUID) (tokens []Token, err error) {
	defer func() { s.observe("ordered_view", err) }()

	slot, tokens, err := s.repo.LoadQueue(ctx, slotID)
	if err != nil {
		return nil, loadErr("slot", err)
	}
	return annotate(*slot, tokens, s.loc), nil
}

// MarkCompleted closes the serving token and promotes the next booked one.
// With actualMinutes nil the duration is the wall time since service began.
func (s *Service) MarkCompleted(ctx context.Context, actor Identity, tokenID uuid.UUID, actualMinutes *int) (adv *Advance, err error) {
	defer func() { s.observe("mark_completed", err) }()

	if actualMinutes != nil && *actualMinutes < 0 {
		return nil, validationf("actual duration must not be negative, got %d", *actualMinutes)
	}
	return s.finish(ctx, actor, tokenID, StatusCompleted, actualMinutes)
}

// MarkWrong closes the serving token without a duration and promotes the next booked one.
func (s *Service) MarkWrong(ctx context.Context, actor Identity, tokenID uuid.UUID) (adv *Advance, err error) {
	defer func() { s.observe("mark_wrong", err) }()

	return s.finish(ctx, actor, tokenID, StatusWrong, nil)
}

func (s *Service) finish(ctx context.Context, actor Identity, tokenID uuid.UUID, to TokenStatus, actualMinutes *int) (*Advance, error) {
	ref, err := s.repo.GetToken(ctx, tokenID)
	if err != nil {
		return nil, loadErr("token", err)
	}

	var adv Advance
	err = s.withSlotLock(ctx, ref.SlotID, func(lockCtx context.Context) error {
		slot, tokens, err := s.repo.LoadQueue(lockCtx, ref.SlotID)
		if err != nil {
			return loadErr("slot", err)
		}
		if err := authorizeOwner(actor, slot); err != nil {
			return err
		}

		pos := indexOf(tokens, tokenID)
		if pos < 0 {
			return ErrTokenNotFound
		}
		tok := tokens[pos]
		if tok.Status != StatusServing {
			return fmt.Errorf("%w: token %d is %s and cannot become %s", ErrTokenNotServing, tok.Index, tok.Status, to)
		}

		now := s.now()
		tok.Status = to
		tok.UpdatedAt = now
		if to == StatusCompleted {
			minutes := elapsedMinutes(tok, now)
			if actualMinutes != nil {
				minutes = *actualMinutes
			}
			tok.ActualMinutes = &minutes
		}
		tokens[pos] = tok
		slot.Queue.ServingTokenID = nil

		changed := []Token{tok}
		next, err := promoteNext(slot, tokens, now)
		if err != nil {
			return err
		}
		if next != nil {
			changed = append(changed, *next)
		}

		if err := s.commit(lockCtx, slot, changed...); err != nil {
			return err
		}

		adv = Advance{Finished: tok, Next: next}
		return nil
	})
	if err != nil {
		return nil, err
	}

	eventType := EventTokenCompleted
	if to == StatusWrong {
		eventType = EventTokenWrong
	}
	payload := map[string]any{"token_index": adv.Finished.Index}
	if adv.Finished.ActualMinutes != nil {
		payload["actual_duration_minutes"] = *adv.Finished.ActualMinutes
	}
	s.logEvent(ctx, ref.SlotID, &adv.Finished.ID, eventType, payload)
	if adv.Next != nil {
		s.logEvent(ctx, ref.SlotID, &adv.Next.ID, EventTokenServing, map[string]any{"token_index": adv.Next.Index})
	}

	fields := []zap.Field{
		zap.Stringer("slot_id", ref.SlotID),
		zap.Int("token_index", adv.Finished.Index),
		zap.String("status", string(to)),
	}
	if adv.Next != nil {
		fields = append(fields, zap.Int("next_index", adv.Next.Index))
	}
	s.logger.Info("token finished", fields...)

	return &adv, nil
}

// promoteNext moves the lowest-index BOOKED token into service. It refuses to
// run while another token is still SERVING.
func promoteNext(slot *Slot, tokens []Token, now time.Time) (*Token, error) {
	if cur := servingToken(tokens); cur != nil {
		return nil, errorf(ErrInvalidStateTransition, "token %d is still being served", cur.Index)
	}
	for i := range tokens {
		if tokens[i].Status == StatusBooked {
			startServing(slot, &tokens[i], now)
			next := tokens[i]
			return &next, nil
		}
	}
	slot.Queue.ServingTokenID = nil
	return nil, nil
}

func startServing(slot *Slot, tok *Token, now time.Time) {
	started := now
	tok.Status = StatusServing
	tok.ServingStartedAt = &started
	tok.UpdatedAt = now

	id := tok.ID
	slot.Queue.ServingTokenID = &id
	slot.Queue.ProcessedCount++
}

func servingToken(tokens []Token) *Token {
	for i := range tokens {
		if tokens[i].Status == StatusServing {
			return &tokens[i]
		}
	}
	return nil
}

// countOpen counts tokens that are waiting or being served.
func countOpen(tokens []Token) int {
	n := 0
	for _, t := range tokens {
		if !t.Status.Terminal() {
			n++
		}
	}
	return n
}

func indexOf(tokens []Token, id uuid.UUID) int {
	for i := range tokens {
		if tokens[i].ID == id {
			return i
		}
	}
	return -1
}

// elapsedMinutes rounds the time in service to whole minutes, never below one.
func elapsedMinutes(tok Token, now time.Time) int {
	if tok.ServingStartedAt == nil {
		return 1
	}
	minutes := int(math.Round(now.Sub(*tok.ServingStartedAt).Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}
