package slotqueue

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
)

type Estimate struct {
	TokenID        uuid.UUID   `json:"token_id"`
	Index          int         `json:"token_index"`
	Status         TokenStatus `json:"status"`
	EstimatedStart time.Time   `json:"estimated_start"`
}

// EstimateStarts predicts when each open token begins service. Estimates run
// forward from the serving token's start, or from the slot start when nothing
// is being served, adding one average duration per token ahead.
// Tokens that have finished get no estimate.
func EstimateStarts(slot Slot, tokens []Token, loc *time.Location) map[uuid.UUID]time.Time {
	ordered := make([]Token, len(tokens))
	copy(ordered, tokens)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Index < ordered[j].Index })

	cursor := slot.StartsAt(loc)
	if cur := servingToken(ordered); cur != nil && cur.ServingStartedAt != nil {
		cursor = *cur.ServingStartedAt
	}

	out := make(map[uuid.UUID]time.Time, len(ordered))
	for _, t := range ordered {
		if t.Status.Terminal() {
			continue
		}
		if t.Status == StatusServing && t.ServingStartedAt != nil {
			out[t.ID] = *t.ServingStartedAt
		} else {
			out[t.ID] = cursor
		}
		cursor = cursor.Add(durationOf(slot, t))
	}
	return out
}

func durationOf(slot Slot, t Token) time.Duration {
	if t.ActualMinutes != nil {
		return time.Duration(*t.ActualMinutes) * time.Minute
	}
	return slot.averageDuration()
}

// annotate returns tokens in index order with EstimatedStart filled in.
func annotate(slot Slot, tokens []Token, loc *time.Location) []Token {
	starts := EstimateStarts(slot, tokens, loc)

	out := make([]Token, len(tokens))
	copy(out, tokens)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	for i := range out {
		if at, ok := starts[out[i].ID]; ok {
			out[i].EstimatedStart = &at
		} else {
			out[i].EstimatedStart = nil
		}
	}
	return out
}

// Estimate lists expected start times for every open token of the slot.
func (s *Service) Estimate(ctx context.Context, slotID uuid.UUID) (estimates []Estimate, err error) {
	defer func() { s.observe("estimate", err) }()

	slot, tokens, err := s.repo.LoadQueue(ctx, slotID)
	if err != nil {
		return nil, loadErr("slot", err)
	}

	estimates = []Estimate{}
	for _, t := range annotate(*slot, tokens, s.loc) {
		if t.EstimatedStart == nil {
			continue
		}
		estimates = append(estimates, Estimate{
			TokenID:        t.ID,
			Index:          t.Index,
			Status:         t.Status,
			EstimatedStart: *t.EstimatedStart,
		})
	}
	return estimates, nil
}
