package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadiness_Probes(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name     string
		probes   []probe
		code     int
		status   string
		postgres string
		redis    string
	}{
		{
			name:     "all up",
			probes:   []probe{{name: "postgres", ping: up, critical: true}, {name: "redis", ping: up}},
			code:     http.StatusOK,
			status:   "ok",
			postgres: "ok",
			redis:    "ok",
		},
		{
			name:     "lock store down",
			probes:   []probe{{name: "postgres", ping: up, critical: true}, {name: "redis", ping: down}},
			code:     http.StatusOK,
			status:   "degraded",
			postgres: "ok",
			redis:    "down",
		},
		{
			name:     "database down",
			probes:   []probe{{name: "postgres", ping: down, critical: true}, {name: "redis", ping: down}},
			code:     http.StatusServiceUnavailable,
			status:   "error",
			postgres: "down",
			redis:    "down",
		},
		{
			name:     "memory mode",
			probes:   []probe{{name: "postgres", critical: true}, {name: "redis"}},
			code:     http.StatusOK,
			status:   "ok",
			postgres: "disabled",
			redis:    "disabled",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := &HealthHandler{probes: tt.probes, version: "test"}

			rec := httptest.NewRecorder()
			h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))

			require.Equal(t, tt.code, rec.Code)
			var resp ReadinessResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, tt.status, resp.Status)
			assert.Equal(t, "test", resp.Version)
			assert.Equal(t, tt.postgres, resp.Dependencies["postgres"])
			assert.Equal(t, tt.redis, resp.Dependencies["redis"])
		})
	}
}
