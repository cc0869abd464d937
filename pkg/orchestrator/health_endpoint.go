package orchestrator

import (
	"encoding/json"
	"net/http"
)

// healthBanner is the /health response shape (spec.md §4.4 Health
// protocol): {status, components}.
type healthBanner struct {
	Status     string                 `json:"status"`
	Components map[string]interface{} `json:"components"`
}

// healthHandler serves the orchestrator's aggregated health banner,
// grounded on pkg/health/http.go's Result shape and the teacher's
// metrics.HealthHandler JSON-response pattern.
func healthHandler(o *Orchestrator) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		report := o.HealthReport()

		components := make(map[string]interface{}, len(report.Components))
		for name, ch := range report.Components {
			components[name] = ch
		}
		banner := healthBanner{Status: string(report.Status), Components: components}

		status := http.StatusOK
		if report.Status == "unhealthy" {
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(banner)
	})
}
