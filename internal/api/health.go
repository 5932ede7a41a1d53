package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthHandler probes the engine's two stores. The ledger is the source
// of truth; the lock store is a fast-path filter in front of the ledger's
// unique indexes, so losing it degrades readiness instead of failing it.
type HealthHandler struct {
	ledger  *pgxpool.Pool
	locks   *redis.Client
	env     string
	version string
}

func NewHealthHandler(ledger *pgxpool.Pool, locks *redis.Client, env, version string) *HealthHandler {
	return &HealthHandler{
		ledger:  ledger,
		locks:   locks,
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

func (h *HealthHandler) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	deps := make(map[string]string)
	status := "ok"

	if err := h.probe(ctx, h.ledger.Ping); err != nil {
		deps["ledger"] = "down"
		status = "error"
	} else {
		deps["ledger"] = "ok"
	}

	if err := h.probe(ctx, func(ctx context.Context) error { return h.locks.Ping(ctx).Err() }); err != nil {
		deps["lock_store"] = "down"
		if status == "ok" {
			status = "degraded"
		}
	} else {
		deps["lock_store"] = "ok"
	}

	httpStatus := http.StatusOK
	if status == "error" {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, ReadinessResponse{
		Status:       status,
		Version:      h.version,
		Env:          h.env,
		Dependencies: deps,
	})
}

func (h *HealthHandler) probe(ctx context.Context, ping func(context.Context) error) error {
	probeCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	return ping(probeCtx)
}
