package monitor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/slot-token-queue/internal/metrics"
	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

// Source is the read side of the slot queue service.
type Source interface {
	Today() time.Time
	ListSlotsOn(ctx context.Context, date time.Time) ([]slotqueue.Slot, error)
	Snapshot(ctx context.Context, slotID uuid.UUID) (*slotqueue.Snapshot, error)
}

// Monitor samples today's queues into the per-slot gauges.
type Monitor struct {
	src     Source
	metrics *metrics.Metrics
	logger  *zap.Logger
	seen    map[string]bool
}

func New(src Source, m *metrics.Metrics, logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		src:     src,
		metrics: m,
		logger:  logger,
		seen:    make(map[string]bool),
	}
}

// Run samples once at startup and then every interval until ctx is done.
func (m *Monitor) Run(ctx context.Context, interval time.Duration) {
	m.runOnce(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("shutdown signal received, stopping queue monitor")
			return
		case <-ticker.C:
			m.runOnce(ctx)
		}
	}
}

func (m *Monitor) runOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	sampled, err := m.Sample(runCtx)
	if err != nil {
		m.logger.Error("queue sample failed", zap.Error(err))
		return
	}
	m.logger.Info("queue sample complete", zap.Int("slots", sampled), zap.Duration("took", time.Since(start)))
}

// Sample refreshes the gauges for every slot dated today and drops the series
// of slots that are no longer listed. It returns the number of slots sampled.
func (m *Monitor) Sample(ctx context.Context) (int, error) {
	today := m.src.Today()

	slots, err := m.src.ListSlotsOn(ctx, today)
	if err != nil {
		return 0, err
	}

	current := make(map[string]bool, len(slots))
	for _, slot := range slots {
		snap, err := m.src.Snapshot(ctx, slot.ID)
		if err != nil {
			// deleted between list and read
			m.logger.Warn("skipping slot", zap.Stringer("slot_id", slot.ID), zap.Error(err))
			continue
		}

		waiting := snap.Remaining
		if snap.ServingTokenID != nil {
			waiting--
		}

		id := slot.ID.String()
		m.metrics.SetQueueDepth(id, waiting, snap.SessionStarted)
		current[id] = true
	}

	for id := range m.seen {
		if !current[id] {
			m.metrics.ForgetSlot(id)
		}
	}
	m.seen = current

	return len(current), nil
}
