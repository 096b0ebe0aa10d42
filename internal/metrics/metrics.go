package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	operations     *prometheus.CounterVec
	lockWait       prometheus.Histogram
	tokensWaiting  *prometheus.GaugeVec
	sessionStarted *prometheus.GaugeVec
}

func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "slotqueue_operations_total",
				Help: "Engine operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		lockWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "slotqueue_lock_wait_seconds",
				Help:    "Time spent waiting for a per-slot lock",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
			},
		),
		tokensWaiting: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slotqueue_tokens_waiting",
				Help: "Tokens not yet served per slot",
			},
			[]string{"slot_id"},
		),
		sessionStarted: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "slotqueue_session_started",
				Help: "1 when the slot's serving session has started",
			},
			[]string{"slot_id"},
		),
	}
}

func (m *Metrics) ObserveOperation(operation, outcome string) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

func (m *Metrics) SetQueueDepth(slotID string, waiting int, started bool) {
	if m == nil {
		return
	}
	m.tokensWaiting.WithLabelValues(slotID).Set(float64(waiting))
	v := 0.0
	if started {
		v = 1
	}
	m.sessionStarted.WithLabelValues(slotID).Set(v)
}

// ForgetSlot drops the per-slot series, e.g. once the slot's day has passed.
func (m *Metrics) ForgetSlot(slotID string) {
	if m == nil {
		return
	}
	m.tokensWaiting.DeleteLabelValues(slotID)
	m.sessionStarted.DeleteLabelValues(slotID)
}
