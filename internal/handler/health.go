package handler

import (
	"context"
	"encoding/json"
	"net/http"
)

// HealthHandler answers liveness checks without touching dependencies.
func HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "OK"})
	}
}

// ReadinessHandler reports whether the database answers.
func ReadinessHandler(check func(ctx context.Context) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := check(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			json.NewEncoder(w).Encode(map[string]any{
				"ok":    false,
				"error": err.Error(),
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"ok": true})
	}
}
