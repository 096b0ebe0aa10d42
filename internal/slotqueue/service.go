package slotqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/slot-token-queue/internal/metrics"
	redisclient "github.com/hackgods/slot-token-queue/internal/redis"
)

const (
	EventSlotCreated    = "SLOT_CREATED"
	EventSlotUpdated    = "SLOT_UPDATED"
	EventSlotDeleted    = "SLOT_DELETED"
	EventTokenBooked    = "TOKEN_BOOKED"
	EventSessionStarted = "SESSION_STARTED"
	EventTokenServing   = "TOKEN_SERVING"
	EventTokenCompleted = "TOKEN_COMPLETED"
	EventTokenWrong     = "TOKEN_WRONG"
)

// Service is the slot queue engine. Writers on one slot are serialized through
// the locker and committed with a version check; slots never coordinate with
// each other.
type Service struct {
	repo    Repository
	locker  redisclient.Locker
	clock   Clock
	loc     *time.Location
	logger  *zap.Logger
	metrics *metrics.Metrics
}

type Option func(*Service)

func WithClock(c Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLocation sets the zone slot dates and times of day are interpreted in.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.loc = loc
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func NewService(repo Repository, locker redisclient.Locker, opts ...Option) *Service {
	s := &Service{
		repo:   repo,
		locker: locker,
		clock:  SystemClock,
		loc:    time.UTC,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) now() time.Time { return s.clock.Now() }

// Today is the service clock's calendar date in the zone slot dates are read in.
func (s *Service) Today() time.Time {
	return CalendarDate(s.now().In(s.loc))
}

// withSlotLock runs fn as the only writer of slotID.
func (s *Service) withSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := s.locker.WithSlotLock(ctx, slotID, func(lockCtx context.Context) error {
		s.metrics.ObserveLockWait(time.Since(start))
		return fn(lockCtx)
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrSlotBusy
	}
	return err
}

func (s *Service) observe(operation string, err error) {
	s.metrics.ObserveOperation(operation, outcome(err))
	if err != nil && Kind(err) == nil {
		s.logger.Error("slot queue operation failed", zap.String("operation", operation), zap.Error(err))
	}
}

func outcome(err error) string {
	switch Kind(err) {
	case nil:
		if err != nil {
			return "error"
		}
		return "ok"
	case ErrValidation:
		return "validation"
	case ErrCapacityExceeded:
		return "capacity_exceeded"
	case ErrAlreadyStarted:
		return "already_started"
	case ErrInvalidStateTransition:
		return "invalid_state_transition"
	case ErrNotFound:
		return "not_found"
	case ErrConcurrencyConflict:
		return "conflict"
	case ErrForbidden:
		return "forbidden"
	}
	return "error"
}

// authorizeOwner lets admins through and otherwise requires actor to own slot.
func authorizeOwner(actor Identity, slot *Slot) error {
	if actor.Role == RoleAdmin {
		return nil
	}
	if actor.ID == uuid.Nil || actor.ID != slot.OwnerID {
		return fmt.Errorf("%w: slot %s is not owned by %s", ErrForbidden, slot.ID, actor.ID)
	}
	return nil
}

// commit bumps the slot version and stores slot with its changed tokens.
func (s *Service) commit(ctx context.Context, slot *Slot, changed ...Token) error {
	expected := slot.Version
	slot.Version++
	slot.UpdatedAt = s.now()
	if err := s.repo.SaveQueue(ctx, *slot, changed, expected); err != nil {
		slot.Version = expected
		if Kind(err) != nil {
			return err
		}
		return fmt.Errorf("save queue: %w", err)
	}
	return nil
}

func (s *Service) logEvent(ctx context.Context, slotID uuid.UUID, tokenID *uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn("failed to marshal event payload", zap.String("event", eventType), zap.Error(err))
		data = nil
	}

	ev := EventLog{
		EventType: eventType,
		SlotID:    slotID,
		TokenID:   tokenID,
		Payload:   data,
		CreatedAt: s.now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Warn("failed to insert event log",
			zap.String("event", eventType),
			zap.Stringer("slot_id", slotID),
			zap.Error(err),
		)
	}
}

func loadErr(what string, err error) error {
	if Kind(err) != nil {
		return err
	}
	return fmt.Errorf("load %s: %w", what, err)
}
