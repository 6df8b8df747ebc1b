package middleware

import (
	"encoding/json"
	"net/http"

	"payment-console/internal/observability"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// RequestContext copies chi's request id into the logging context. Mount it
// after chimw.RequestID.
func RequestContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := chimw.GetReqID(ctx); id != "" {
			ctx = observability.WithRequestID(ctx, id)
			w.Header().Set(chimw.RequestIDHeader, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// writeError writes the JSON error body shared by the middleware.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
