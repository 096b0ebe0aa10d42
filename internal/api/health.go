package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const probeTimeout = time.Second

// probe checks one backend. A nil ping marks the backend as not configured.
type probe struct {
	name     string
	ping     func(ctx context.Context) error
	critical bool
}

type HealthHandler struct {
	probes  []probe
	env     string
	version string
}

// NewHealthHandler probes Postgres (critical) and Redis (lock store only).
// Either may be nil when the process runs with the in-memory fallbacks.
func NewHealthHandler(pgPool *pgxpool.Pool, rdb *redis.Client, env, version string) *HealthHandler {
	pg := probe{name: "postgres", critical: true}
	if pgPool != nil {
		pg.ping = pgPool.Ping
	}
	rd := probe{name: "redis"}
	if rdb != nil {
		rd.ping = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}

	return &HealthHandler{
		probes:  []probe{pg, rd},
		env:     env,
		version: version,
	}
}

type LivenessResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Env     string `json:"env,omitempty"`
}

type ReadinessResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version,omitempty"`
	Env          string            `json:"env,omitempty"`
	Dependencies map[string]string `json:"dependencies"`
}

func (h *HealthHandler) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, LivenessResponse{
		Status:  "ok",
		Version: h.version,
		Env:     h.env,
	})
}

// Readiness answers 503 when a critical backend is down. A failing
// non-critical backend only degrades the status.
func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	resp := ReadinessResponse{
		Status:       "ok",
		Version:      h.version,
		Env:          h.env,
		Dependencies: make(map[string]string, len(h.probes)),
	}

	for _, p := range h.probes {
		if p.ping == nil {
			resp.Dependencies[p.name] = "disabled"
			continue
		}

		ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
		err := p.ping(ctx)
		cancel()
		if err == nil {
			resp.Dependencies[p.name] = "ok"
			continue
		}

		resp.Dependencies[p.name] = "down"
		switch {
		case p.critical:
			resp.Status = "error"
		case resp.Status == "ok":
			resp.Status = "degraded"
		}
	}

	code := http.StatusOK
	if resp.Status == "error" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}
