package handler

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Health returns basic health check
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HealthCheckResult represents the result of a health check
type HealthCheckResult struct {
	Status    string                 `json:"status"`
	LatencyMs int64                  `json:"latency_ms,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// ReadinessCheck probes one dependency. Check may return metadata for the report.
type ReadinessCheck struct {
	Name  string
	Check func(ctx context.Context) (map[string]interface{}, error)
}

// Ready runs every check in parallel and reports 503 if any is down.
func Ready(checks ...ReadinessCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		results := make([]HealthCheckResult, len(checks))
		var g errgroup.Group
		for i, c := range checks {
			i, c := i, c
			g.Go(func() error {
				results[i] = runCheck(ctx, c)
				return nil
			})
		}
		_ = g.Wait()

		report := make(map[string]HealthCheckResult, len(checks))
		allHealthy := true
		for i, c := range checks {
			report[c.Name] = results[i]
			allHealthy = allHealthy && results[i].Status == "up"
		}

		response := map[string]interface{}{
			"timestamp": time.Now().Format(time.RFC3339),
			"checks":    report,
		}

		status := http.StatusOK
		if allHealthy {
			response["status"] = "ready"
		} else {
			response["status"] = "not_ready"
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	}
}

func runCheck(ctx context.Context, c ReadinessCheck) HealthCheckResult {
	start := time.Now()
	metadata, err := c.Check(ctx)
	latency := time.Since(start)

	if err != nil {
		return HealthCheckResult{
			Status:    "down",
			LatencyMs: latency.Milliseconds(),
			Metadata:  metadata,
			Error:     err.Error(),
		}
	}
	return HealthCheckResult{
		Status:    "up",
		LatencyMs: latency.Milliseconds(),
		Metadata:  metadata,
	}
}
