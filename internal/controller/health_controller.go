package controller

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// HealthController reports liveness and dependency readiness. Readiness gates
// on PostgreSQL and Redis; a gateway that cannot persist transactions or read
// correlations must not receive traffic.
type HealthController struct {
	pool  *pgxpool.Pool
	redis *redis.Client
}

func NewHealthController(pool *pgxpool.Pool, redis *redis.Client) *HealthController {
	return &HealthController{pool: pool, redis: redis}
}

func (h *HealthController) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "mpesa-gateway",
	})
}

func (h *HealthController) Liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (h *HealthController) Readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	components := map[string]string{
		"postgres": "ok",
		"redis":    "ok",
	}
	ready := true

	if err := h.pool.Ping(ctx); err != nil {
		components["postgres"] = "unavailable"
		ready = false
	}
	if err := h.redis.Ping(ctx).Err(); err != nil {
		components["redis"] = "unavailable"
		ready = false
	}

	if !ready {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status":     "not ready",
			"components": components,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ready",
		"components": components,
	})
}
