package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/nikhilbhutani/transcriptionsvc/internal/audit"
	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

// RunLister is satisfied by *audit.Store.
type RunLister interface {
	Recent(ctx context.Context, q audit.Query) ([]models.RunRecord, error)
}

type AdminHandler struct {
	runs RunLister
}

func NewAdminHandler(runs RunLister) *AdminHandler {
	return &AdminHandler{runs: runs}
}

func (h *AdminHandler) Runs(w http.ResponseWriter, r *http.Request) {
	if h.runs == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "run history requires DATABASE_URL"})
		return
	}

	q := audit.Query{
		Outcome:   r.URL.Query().Get("outcome"),
		RequestID: r.URL.Query().Get("request_id"),
	}
	q.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	q.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))
	if q.Limit <= 0 {
		q.Limit = 50
	}

	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err == nil {
			q.Since = &t
		}
	}

	runs, err := h.runs.Recent(r.Context(), q)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}
