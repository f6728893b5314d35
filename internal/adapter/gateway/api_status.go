package gateway

import (
	"encoding/json"
	"net/http"
	"time"

	"agency-ai/internal/usecase"
)

// StatusResponse is the JSON body returned by GET /api/status.
type StatusResponse struct {
	Service   ServiceStatus           `json:"service"`
	Workforce usecase.WorkforceStatus `json:"workforce"`
}

// ServiceStatus holds process overview info.
type ServiceStatus struct {
	Name          string `json:"name"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// healthzHandler returns an HTTP handler for GET /healthz. It reports
// process liveness only, so it stays unauthenticated for probes.
func healthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	}
}

// statusHandler returns an HTTP handler for GET /api/status.
func statusHandler(deps HandlerDeps, startTime time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}

		version := deps.Version
		if version == "" {
			version = "dev"
		}

		resp := StatusResponse{
			Service: ServiceStatus{
				Name:          "agency-ai",
				Version:       version,
				UptimeSeconds: int64(time.Since(startTime).Seconds()),
			},
			Workforce: deps.Workforce.Status(),
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}
