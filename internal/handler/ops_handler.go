package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/boddenberg/agent-relay/internal/infra/observability"
)

func healthzHandler(backendState func() string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().Format(time.RFC3339)

		services := []domain.ServiceHealth{
			{Name: "relay-api", Status: "healthy", LastChecked: now},
		}

		if backendState != nil {
			state := backendState()
			status := "healthy"
			switch state {
			case "open":
				status = "unhealthy"
			case "half-open":
				status = "degraded"
			}
			services = append(services, domain.ServiceHealth{
				Name: "agent-backend", Status: status, Detail: "circuit " + state, LastChecked: now,
			})
		}

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status == "unhealthy" {
				overallStatus = "unhealthy"
				break
			}
			if s.Status == "degraded" {
				overallStatus = "degraded"
			}
		}

		code := http.StatusOK
		if overallStatus == "unhealthy" {
			code = http.StatusServiceUnavailable
		}
		writeJSON(w, code, domain.HealthStatus{Status: overallStatus, Services: services})
	}
}

func readyzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func metricsSummaryHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.GetRelaySnapshot())
	}
}
