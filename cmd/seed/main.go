package main

import (
	"context"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/slot-token-queue/internal/config"
	"github.com/hackgods/slot-token-queue/internal/db"
	"github.com/hackgods/slot-token-queue/internal/logging"
	redisclient "github.com/hackgods/slot-token-queue/internal/redis"
	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

type shift struct {
	period slotqueue.Period
	start  slotqueue.TimeOfDay
	end    slotqueue.TimeOfDay
}

var shifts = []shift{
	{slotqueue.PeriodMorning, slotqueue.NewTimeOfDay(9, 0), slotqueue.NewTimeOfDay(12, 0)},
	{slotqueue.PeriodAfternoon, slotqueue.NewTimeOfDay(14, 0), slotqueue.NewTimeOfDay(17, 0)},
	{slotqueue.PeriodEvening, slotqueue.NewTimeOfDay(18, 0), slotqueue.NewTimeOfDay(20, 30)},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if !cfg.UsesPostgres() {
		log.Fatal("POSTGRES_DSN is required")
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	pool, err := db.Open(ctx, cfg.PostgresDSN, cfg.PoolOptions("slotqueue-seed"))
	cancel()
	if err != nil {
		logger.Fatal("connect postgres", zap.Error(err))
	}
	defer pool.Close()

	locker, rdb, err := redisclient.NewSlotLocker(context.Background(), cfg.RedisOptions(), cfg.LockTTL, cfg.LockWait)
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	if rdb != nil {
		defer func() { _ = rdb.Close() }()
	}

	svc := slotqueue.NewService(
		slotqueue.NewPgRepository(pool),
		locker,
		slotqueue.WithLocation(cfg.Location),
		slotqueue.WithLogger(logger.Named("slotqueue")),
	)

	owners := getInt("SEED_OWNERS", 20)
	weeks := getInt("SEED_WEEKS", 2)
	bookings := getInt("SEED_BOOKINGS_PER_SLOT", 15)

	gofakeit.Seed(time.Now().UnixNano())

	logger.Info("seed starting",
		zap.Int("owners", owners),
		zap.Int("weeks", weeks),
		zap.Int("bookings_per_slot", bookings),
	)

	slotIDs, err := seedSlots(context.Background(), logger, svc, owners, weeks)
	if err != nil {
		logger.Fatal("seed slots", zap.Error(err))
	}
	if err := seedTokens(context.Background(), logger, svc, slotIDs, bookings); err != nil {
		logger.Fatal("seed tokens", zap.Error(err))
	}

	logger.Info("seed complete", zap.Int("slots", len(slotIDs)))
}

// seedSlots gives every owner one recurring series per shift, on a random
// set of weekdays, starting today.
func seedSlots(ctx context.Context, logger *zap.Logger, svc *slotqueue.Service, owners, weeks int) ([]uuid.UUID, error) {
	today := svc.Today()

	var ids []uuid.UUID
	for i := 0; i < owners; i++ {
		owner := slotqueue.Identity{ID: uuid.New(), Role: slotqueue.RoleOwner}

		for _, sh := range shifts {
			if gofakeit.Bool() {
				continue
			}

			capacity := slotqueue.Unlimited()
			if gofakeit.Number(0, 3) > 0 {
				capacity = slotqueue.LimitOf(gofakeit.Number(10, 40))
			}
			until := today.AddDate(0, 0, 7*weeks)

			slots, err := svc.CreateSlots(ctx, owner, slotqueue.CreateSlotInput{
				Date:           today,
				StartTime:      sh.start,
				EndTime:        sh.end,
				Period:         sh.period,
				Capacity:       capacity,
				AverageMinutes: 5 * gofakeit.Number(1, 4),
				Recurrence: &slotqueue.RecurrencePattern{
					Weekdays:    weekdays(),
					RepeatUntil: &until,
				},
			})
			if err != nil {
				return nil, err
			}
			for _, s := range slots {
				ids = append(ids, s.ID)
			}
		}

		logger.Debug("owner seeded", zap.Stringer("owner_id", owner.ID))
	}

	logger.Info("slots seeded", zap.Int("count", len(ids)))
	return ids, nil
}

func seedTokens(ctx context.Context, logger *zap.Logger, svc *slotqueue.Service, slotIDs []uuid.UUID, perSlot int) error {
	booked := 0
	for n, id := range slotIDs {
		want := gofakeit.Number(0, perSlot)
		for i := 0; i < want; i++ {
			participant := slotqueue.Identity{ID: uuid.New(), Role: slotqueue.RoleParticipant}
			if err := book(ctx, svc, participant, id); err != nil {
				if slotqueue.Kind(err) == slotqueue.ErrCapacityExceeded {
					break
				}
				return err
			}
			booked++
		}

		if (n+1)%100 == 0 {
			logger.Info("tokens seeded", zap.Int("slots_done", n+1), zap.Int("of", len(slotIDs)))
		}
	}

	logger.Info("tokens seeded", zap.Int("count", booked))
	return nil
}

// book retries contended bookings so a seed run alongside a live server
// does not stop on the first lock collision.
func book(ctx context.Context, svc *slotqueue.Service, participant slotqueue.Identity, slotID uuid.UUID) error {
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if _, err = svc.Book(ctx, participant, slotID); !slotqueue.IsRetryable(err) {
			return err
		}
	}
	return err
}

func weekdays() []time.Weekday {
	var days []time.Weekday
	for wd := time.Monday; wd <= time.Saturday; wd++ {
		if gofakeit.Bool() {
			days = append(days, wd)
		}
	}
	if len(days) == 0 {
		days = append(days, time.Weekday(gofakeit.Number(1, 5)))
	}
	return days
}

func getInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return def
}
