package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/nikhilbhutani/transcriptionsvc/internal/stats"
)

// Snapshotter is satisfied by *stats.Counters.
type Snapshotter interface {
	Snapshot(ctx context.Context) (stats.Snapshot, error)
}

type StatsHandler struct {
	pool     PoolStats
	counters Snapshotter
}

func NewStatsHandler(pool PoolStats, counters Snapshotter) *StatsHandler {
	return &StatsHandler{pool: pool, counters: counters}
}

// Stats reports live pool occupancy and, when Redis is configured, the
// cumulative run counters.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	body := map[string]any{"pool": h.pool.Stats()}
	if h.counters != nil {
		snap, err := h.counters.Snapshot(r.Context())
		if err != nil {
			slog.Warn("read run counters failed", "error", err)
			body["runs_error"] = err.Error()
		} else {
			body["runs"] = snap
		}
	}
	writeJSON(w, http.StatusOK, body)
}
