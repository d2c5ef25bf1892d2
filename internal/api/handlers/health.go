package handlers

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/nikhilbhutani/transcriptionsvc/internal/worker"
)

// Pinger is satisfied by *pgxpool.Pool; redis clients are adapted with
// RedisPinger.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RedisPinger struct {
	Client *redis.Client
}

func (p RedisPinger) Ping(ctx context.Context) error {
	return p.Client.Ping(ctx).Err()
}

// PoolStats is satisfied by *worker.Pool.
type PoolStats interface {
	Stats() worker.Stats
}

type HealthHandler struct {
	version string
	db      Pinger
	redis   Pinger
	pool    PoolStats
}

func NewHealthHandler(version string, db, rdb Pinger, pool PoolStats) *HealthHandler {
	return &HealthHandler{version: version, db: db, redis: rdb, pool: pool}
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "audio-transcription"})
}

func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Audio Transcription Service",
		"version": h.version,
		"health":  "/health",
	})
}

func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	checks := map[string]string{}

	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	if h.redis != nil {
		if err := h.redis.Ping(r.Context()); err != nil {
			checks["redis"] = "unhealthy: " + err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	status := http.StatusOK
	for _, v := range checks {
		if v != "ok" {
			status = http.StatusServiceUnavailable
			break
		}
	}

	body := map[string]any{"status": statusStr(status), "checks": checks}
	if h.pool != nil {
		body["pool"] = h.pool.Stats()
	}
	writeJSON(w, status, body)
}

func statusStr(code int) string {
	if code == http.StatusOK {
		return "ok"
	}
	return "unhealthy"
}
