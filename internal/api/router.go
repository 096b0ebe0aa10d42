package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

// Service is the slot queue engine as the HTTP layer uses it.
type Service interface {
	Today() time.Time

	CreateSlots(ctx context.Context, actor slotqueue.Identity, in slotqueue.CreateSlotInput) ([]slotqueue.Slot, error)
	UpdateSlot(ctx context.Context, actor slotqueue.Identity, slotID uuid.UUID, upd slotqueue.SlotUpdate) (*slotqueue.Slot, error)
	DeleteSlot(ctx context.Context, actor slotqueue.Identity, slotID uuid.UUID) error
	ListSlots(ctx context.Context, ownerID uuid.UUID, date time.Time) ([]slotqueue.Slot, error)
	GetSlot(ctx context.Context, slotID uuid.UUID) (*slotqueue.Slot, error)

	Book(ctx context.Context, participant slotqueue.Identity, slotID uuid.UUID) (*slotqueue.Token, error)
	OrderedView(ctx context.Context, slotID uuid.UUID) ([]slotqueue.Token, error)
	MarkCompleted(ctx context.Context, actor slotqueue.Identity, tokenID uuid.UUID, actualMinutes *int) (*slotqueue.Advance, error)
	MarkWrong(ctx context.Context, actor slotqueue.Identity, tokenID uuid.UUID) (*slotqueue.Advance, error)
	StartSession(ctx context.Context, actor slotqueue.Identity, slotID uuid.UUID) (*slotqueue.Token, error)

	Estimate(ctx context.Context, slotID uuid.UUID) ([]slotqueue.Estimate, error)
	Snapshot(ctx context.Context, slotID uuid.UUID) (*slotqueue.Snapshot, error)
}

type RouterConfig struct {
	Service  Service
	PgPool   *pgxpool.Pool // nil when running in memory
	Redis    *redis.Client // nil when using the local locker
	Gatherer prometheus.Gatherer
	Logger   *zap.Logger
	Env      string
	Version  string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	gatherer := cfg.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))
	r.Use(middleware.Recoverer)

	health := NewHealthHandler(cfg.PgPool, cfg.Redis, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	svc := cfg.Service
	r.Group(func(r chi.Router) {
		r.Use(IdentityMiddleware)

		// reads are open
		r.Get("/owners/{ownerID}/slots", listOwnerSlotsHandler(svc))
		r.Get("/slots/{id}", getSlotHandler(svc))
		r.Get("/slots/{id}/tokens", listTokensHandler(svc))
		r.Get("/slots/{id}/estimates", estimatesHandler(svc))
		r.Get("/slots/{id}/snapshot", snapshotHandler(svc))

		r.Group(func(r chi.Router) {
			r.Use(RequireIdentity)

			r.Post("/slots", createSlotsHandler(svc))
			r.Patch("/slots/{id}", updateSlotHandler(svc))
			r.Delete("/slots/{id}", deleteSlotHandler(svc))
			r.Post("/slots/{id}/tokens", bookTokenHandler(svc))
			r.Post("/slots/{id}/session", startSessionHandler(svc))
			r.Post("/tokens/{id}/complete", completeTokenHandler(svc))
			r.Post("/tokens/{id}/wrong", markWrongHandler(svc))
		})
	})

	return r
}
