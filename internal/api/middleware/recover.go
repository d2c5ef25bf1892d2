package middleware

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Recover turns a handler panic into a JSON 500. The panic value is only
// exposed to the client when debug is on.
func Recover(debugMode bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				reqID := chimiddleware.GetReqID(r.Context())
				slog.Error("unhandled panic",
					"request_id", reqID,
					"panic", rec,
					"error_type", fmt.Sprintf("%T", rec),
					"stack", string(debug.Stack()),
				)

				detail := "An unexpected error occurred"
				if debugMode {
					detail = fmt.Sprint(rec)
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusInternalServerError)
				json.NewEncoder(w).Encode(map[string]any{
					"request_id":  reqID,
					"error":       "Internal server error",
					"detail":      detail,
					"status_code": http.StatusInternalServerError,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
