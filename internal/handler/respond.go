package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"payment-console/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// writeEnvelope relays a backend envelope. Failures keep the backend status
// when there was one and map local failures to 502.
func writeEnvelope(w http.ResponseWriter, env *domain.Envelope) {
	status := http.StatusOK
	if !env.Success {
		status = http.StatusBadGateway
		if env.StatusCode >= http.StatusBadRequest {
			status = env.StatusCode
		}
	}
	writeJSON(w, status, env)
}
