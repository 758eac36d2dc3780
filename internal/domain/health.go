package domain

// ============================================================
// Health & Metrics API Responses
// ============================================================

// HealthStatus is returned by GET /healthz.
type HealthStatus struct {
	Status   string          `json:"status"` // healthy, degraded, unhealthy
	Services []ServiceHealth `json:"services"`
}

// ServiceHealth represents the health of an individual service.
type ServiceHealth struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	Detail      string `json:"detail,omitempty"`
	LastChecked string `json:"lastChecked"`
}

// RelayMetrics is returned by GET /api/metrics/summary.
type RelayMetrics struct {
	TotalQueries     int64   `json:"totalQueries"`
	Completed        int64   `json:"completed"`
	RunFailures      int64   `json:"runFailures"`
	Timeouts         int64   `json:"timeouts"`
	Errors           int64   `json:"errors"`
	ErrorRate        float64 `json:"errorRate"`
	ThreadsCreated   int64   `json:"threadsCreated"`
	ThreadsRecreated int64   `json:"threadsRecreated"`
	Uploads          int64   `json:"uploads"`
	Period           string  `json:"period"`
}
