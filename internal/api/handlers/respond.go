package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/nikhilbhutani/transcriptionsvc/internal/models"
)

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, requestID string, status int, category, detail string) {
	writeJSON(w, status, models.ErrorResponse{
		RequestID:  requestID,
		Error:      category,
		Detail:     detail,
		StatusCode: status,
	})
}
