package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hackgods/slot-token-queue/internal/api"
	"github.com/hackgods/slot-token-queue/internal/logging"
	"github.com/hackgods/slot-token-queue/internal/slotqueue"
)

type SimConfig struct {
	APIBaseURL   string        `env:"SIM_API_BASE_URL" envDefault:"http://localhost:8080"`
	Duration     time.Duration `env:"SIM_DURATION" envDefault:"30s"`
	Workers      int           `env:"SIM_WORKERS" envDefault:"10"`
	Owners       int           `env:"SIM_OWNERS" envDefault:"5"`
	Capacity     int           `env:"SIM_SLOT_CAPACITY" envDefault:"0"` // 0 is unlimited
	BookingRatio float64       `env:"SIM_BOOKING_RATIO" envDefault:"0.5"`
	ServeRatio   float64       `env:"SIM_SERVE_RATIO" envDefault:"0.2"`
	ReadRatio    float64       `env:"SIM_READ_RATIO" envDefault:"0.3"`
	WrongRatio   float64       `env:"SIM_WRONG_RATIO" envDefault:"0.1"` // share of serves that mark WRONG
	Env          string        `env:"APP_ENV" envDefault:"dev"`
	LogLevel     string        `env:"LOG_LEVEL" envDefault:"info"`
}

type simSlot struct {
	id    uuid.UUID
	owner uuid.UUID
}

// outcome of a single API call as the simulator counts it.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeConflict
	outcomeRejected
	outcomeError
)

type OperationMetrics struct {
	Total     int64
	Success   int64
	Conflict  int64
	Rejected  int64
	Error     int64
	Latencies []time.Duration
	mu        sync.Mutex
}

func (om *OperationMetrics) Record(latency time.Duration, o outcome) {
	atomic.AddInt64(&om.Total, 1)
	switch o {
	case outcomeOK:
		atomic.AddInt64(&om.Success, 1)
	case outcomeConflict:
		atomic.AddInt64(&om.Conflict, 1)
	case outcomeRejected:
		atomic.AddInt64(&om.Rejected, 1)
	default:
		atomic.AddInt64(&om.Error, 1)
	}

	om.mu.Lock()
	om.Latencies = append(om.Latencies, latency)
	om.mu.Unlock()
}

type LatencyStats struct {
	Avg, Min, Max, P50, P95, P99 time.Duration
}

func (om *OperationMetrics) Stats() LatencyStats {
	om.mu.Lock()
	latencies := make([]time.Duration, len(om.Latencies))
	copy(latencies, om.Latencies)
	om.mu.Unlock()

	if len(latencies) == 0 {
		return LatencyStats{}
	}

	sort.Slice(latencies, func(i, j int) bool {
		return latencies[i] < latencies[j]
	})

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}

	return LatencyStats{
		Avg: sum / time.Duration(len(latencies)),
		Min: latencies[0],
		Max: latencies[len(latencies)-1],
		P50: percentile(latencies, 50),
		P95: percentile(latencies, 95),
		P99: percentile(latencies, 99),
	}
}

func percentile(sorted []time.Duration, p int) time.Duration {
	idx := len(sorted) * p / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

type Metrics struct {
	Book     OperationMetrics
	Start    OperationMetrics
	Complete OperationMetrics
	Wrong    OperationMetrics
	Snapshot OperationMetrics
	Estimate OperationMetrics
	List     OperationMetrics
}

type Simulator struct {
	config  SimConfig
	logger  *zap.Logger
	client  *http.Client
	slots   []simSlot
	metrics Metrics
}

func main() {
	_ = godotenv.Load()

	var cfg SimConfig
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("parse env: %v", err)
	}
	if err := validateConfig(&cfg); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("simulator starting",
		zap.String("api", cfg.APIBaseURL),
		zap.Duration("duration", cfg.Duration),
		zap.Int("workers", cfg.Workers),
		zap.Float64("booking", cfg.BookingRatio),
		zap.Float64("serve", cfg.ServeRatio),
		zap.Float64("read", cfg.ReadRatio),
	)

	sim := &Simulator{
		config: cfg,
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}

	setupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = sim.setup(setupCtx)
	cancel()
	if err != nil {
		logger.Fatal("create slots", zap.Error(err))
	}
	logger.Info("slots created", zap.Int("count", len(sim.slots)))

	if err := sim.Run(context.Background()); err != nil {
		logger.Error("simulation aborted", zap.Error(err))
	}

	sim.PrintReport()
}

func validateConfig(cfg *SimConfig) error {
	if cfg.Workers <= 0 {
		return fmt.Errorf("SIM_WORKERS must be > 0")
	}
	if cfg.Owners <= 0 {
		return fmt.Errorf("SIM_OWNERS must be > 0")
	}
	if cfg.Duration <= 0 {
		return fmt.Errorf("SIM_DURATION must be > 0")
	}
	if cfg.Capacity < 0 {
		return fmt.Errorf("SIM_SLOT_CAPACITY must not be negative")
	}

	total := cfg.BookingRatio + cfg.ServeRatio + cfg.ReadRatio
	if total <= 0 {
		return fmt.Errorf("at least one of the operation ratios must be > 0")
	}
	cfg.BookingRatio /= total
	cfg.ServeRatio /= total
	cfg.ReadRatio /= total
	return nil
}

// setup gives every simulated owner one all-day slot dated tomorrow.
func (s *Simulator) setup(ctx context.Context) error {
	capacity := slotqueue.Unlimited()
	if s.config.Capacity > 0 {
		capacity = slotqueue.LimitOf(s.config.Capacity)
	}

	for i := 0; i < s.config.Owners; i++ {
		owner := uuid.New()
		body := api.CreateSlotRequest{
			Date:           time.Now().AddDate(0, 0, 1).Format(time.DateOnly),
			StartTime:      slotqueue.NewTimeOfDay(0, 0),
			EndTime:        slotqueue.NewTimeOfDay(23, 59),
			Period:         slotqueue.PeriodCustom,
			Capacity:       capacity,
			AverageMinutes: 5,
		}

		var resp api.SlotsResponse
		status, err := s.call(ctx, http.MethodPost, "/slots", owner, slotqueue.RoleOwner, body, &resp)
		if err != nil {
			return err
		}
		if status != http.StatusCreated || len(resp.Slots) == 0 {
			return fmt.Errorf("create slot: unexpected status %d", status)
		}
		s.slots = append(s.slots, simSlot{id: resp.Slots[0].ID, owner: owner})
	}
	return nil
}

func (s *Simulator) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.Duration)
	defer cancel()

	s.logger.Info("starting simulation", zap.Duration("duration", s.config.Duration), zap.Int("workers", s.config.Workers))

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < s.config.Workers; i++ {
		workerID := i
		g.Go(func() error {
			s.worker(gctx, workerID)
			return nil
		})
	}

	err := g.Wait()
	s.logger.Info("simulation complete")
	return err
}

func (s *Simulator) worker(ctx context.Context, workerID int) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano() + int64(workerID)))

	for ctx.Err() == nil {
		slot := s.slots[rng.Intn(len(s.slots))]

		r := rng.Float64()
		switch {
		case r < s.config.BookingRatio:
			s.doBook(ctx, slot)
		case r < s.config.BookingRatio+s.config.ServeRatio:
			s.doServe(ctx, rng, slot)
		default:
			switch rng.Intn(3) {
			case 0:
				s.doRead(ctx, &s.metrics.Snapshot, "/slots/"+slot.id.String()+"/snapshot")
			case 1:
				s.doRead(ctx, &s.metrics.Estimate, "/slots/"+slot.id.String()+"/estimates")
			case 2:
				s.doRead(ctx, &s.metrics.List, "/slots/"+slot.id.String()+"/tokens")
			}
		}
	}
}

func (s *Simulator) doBook(ctx context.Context, slot simSlot) {
	start := time.Now()
	status, err := s.call(ctx, http.MethodPost, "/slots/"+slot.id.String()+"/tokens", uuid.New(), slotqueue.RoleParticipant, nil, nil)
	s.metrics.Book.Record(time.Since(start), classify(status, err, http.StatusCreated))
}

// doServe plays the owner: start the session if needed, otherwise close
// whichever token is currently being served.
func (s *Simulator) doServe(ctx context.Context, rng *rand.Rand, slot simSlot) {
	var snap slotqueue.Snapshot
	status, err := s.call(ctx, http.MethodGet, "/slots/"+slot.id.String()+"/snapshot", uuid.Nil, "", nil, &snap)
	if err != nil || status != http.StatusOK {
		return
	}

	if !snap.SessionStarted {
		start := time.Now()
		status, err := s.call(ctx, http.MethodPost, "/slots/"+slot.id.String()+"/session", slot.owner, slotqueue.RoleOwner, nil, nil)
		s.metrics.Start.Record(time.Since(start), classify(status, err, http.StatusOK))
		return
	}
	if snap.ServingTokenID == nil {
		return
	}

	path := "/tokens/" + snap.ServingTokenID.String()
	om := &s.metrics.Complete
	var body any
	if rng.Float64() < s.config.WrongRatio {
		path += "/wrong"
		om = &s.metrics.Wrong
	} else {
		path += "/complete"
		body = map[string]int{"actual_duration_minutes": 1 + rng.Intn(15)}
	}

	start := time.Now()
	status, err = s.call(ctx, http.MethodPost, path, slot.owner, slotqueue.RoleOwner, body, nil)
	om.Record(time.Since(start), classify(status, err, http.StatusOK))
}

func (s *Simulator) doRead(ctx context.Context, om *OperationMetrics, path string) {
	start := time.Now()
	status, err := s.call(ctx, http.MethodGet, path, uuid.Nil, "", nil, nil)
	om.Record(time.Since(start), classify(status, err, http.StatusOK))
}

// call sends one request. uuid.Nil as actor sends no identity headers; out, when
// set, receives the decoded response body on success.
func (s *Simulator) call(ctx context.Context, method, path string, actor uuid.UUID, role slotqueue.Role, in, out any) (int, error) {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return 0, err
		}
		body = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.config.APIBaseURL+path, body)
	if err != nil {
		return 0, err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if actor != uuid.Nil {
		req.Header.Set("X-Actor-ID", actor.String())
		req.Header.Set("X-Actor-Role", string(role))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, err
		}
		return resp.StatusCode, nil
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}

func classify(status int, err error, want int) outcome {
	switch {
	case err != nil:
		return outcomeError
	case status == want:
		return outcomeOK
	case status == http.StatusConflict:
		return outcomeConflict
	case status >= 400 && status < 500:
		return outcomeRejected
	default:
		return outcomeError
	}
}

func (s *Simulator) PrintReport() {
	fmt.Println("\n" + strings.Repeat("=", 80))
	fmt.Println("SIMULATION REPORT")
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Duration: %s\n", s.config.Duration)
	fmt.Printf("Workers: %d\n", s.config.Workers)
	fmt.Printf("Slots: %d\n", len(s.slots))
	fmt.Println()

	printOperationReport("Book", &s.metrics.Book)
	printOperationReport("Start session", &s.metrics.Start)
	printOperationReport("Complete", &s.metrics.Complete)
	printOperationReport("Mark wrong", &s.metrics.Wrong)
	printOperationReport("Snapshot", &s.metrics.Snapshot)
	printOperationReport("Estimates", &s.metrics.Estimate)
	printOperationReport("List tokens", &s.metrics.List)
}

func printOperationReport(name string, om *OperationMetrics) {
	total := atomic.LoadInt64(&om.Total)
	if total == 0 {
		return
	}

	pct := func(n int64) float64 { return float64(n) / float64(total) * 100 }
	success := atomic.LoadInt64(&om.Success)
	conflict := atomic.LoadInt64(&om.Conflict)
	rejected := atomic.LoadInt64(&om.Rejected)
	failed := atomic.LoadInt64(&om.Error)

	st := om.Stats()

	fmt.Printf("%s:\n", name)
	fmt.Printf("  Total: %d\n", total)
	fmt.Printf("  Success: %d (%.1f%%)\n", success, pct(success))
	if conflict > 0 {
		fmt.Printf("  Conflicts: %d (%.1f%%)\n", conflict, pct(conflict))
	}
	if rejected > 0 {
		fmt.Printf("  Rejected: %d (%.1f%%)\n", rejected, pct(rejected))
	}
	if failed > 0 {
		fmt.Printf("  Errors: %d (%.1f%%)\n", failed, pct(failed))
	}
	fmt.Printf("  Latency: avg=%s min=%s max=%s p50=%s p95=%s p99=%s\n",
		st.Avg.Round(time.Millisecond), st.Min.Round(time.Millisecond), st.Max.Round(time.Millisecond),
		st.P50.Round(time.Millisecond), st.P95.Round(time.Millisecond), st.P99.Round(time.Millisecond))
	fmt.Println()
}
