package middleware

import (
	"net/http"

	"payment-console/internal/security"
)

// ControlTokenHeader carries the shared secret UI layers present.
const ControlTokenHeader = "X-Control-Token"

// ControlToken rejects requests whose X-Control-Token does not match
// expected. An empty expected token disables the check. WebSocket clients
// that cannot set headers may pass the token as the "control_token" query
// parameter.
func ControlToken(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if expected == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := r.Header.Get(ControlTokenHeader)
			if presented == "" {
				presented = r.URL.Query().Get("control_token")
			}
			if !security.TokenMatches(expected, presented) {
				writeError(w, http.StatusUnauthorized, "Invalid or missing control token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
