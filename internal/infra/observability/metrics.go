package observability

import (
	"time"

	"github.com/boddenberg/agent-relay/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Query outcomes, used as the "outcome" label on relay_queries_total.
const (
	OutcomeCompleted  = "completed"
	OutcomeRunFailed  = "run_failed"
	OutcomeNoResponse = "no_response"
	OutcomeTimeout    = "timeout"
	OutcomeError      = "error"
)

// Thread creation reasons.
const (
	ThreadReasonNew      = "new"
	ThreadReasonNotFound = "not_found"
)

// Metrics holds all Prometheus metrics for the relay.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	queryDuration  *prometheus.HistogramVec
	queriesTotal   *prometheus.CounterVec
	backendErrors  *prometheus.CounterVec
	threadsCreated *prometheus.CounterVec
	runPolls       prometheus.Histogram
	uploadsTotal   *prometheus.CounterVec
	inFlight       prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		queryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "relay_query_duration_seconds",
				Help:    "End-to-end duration of relayed queries by outcome.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
			},
			[]string{"outcome"},
		),
		queriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_queries_total",
				Help: "Total queries processed by outcome.",
			},
			[]string{"outcome"},
		),
		backendErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_backend_errors_total",
				Help: "Total agent backend errors by operation.",
			},
			[]string{"operation"},
		),
		threadsCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_threads_created_total",
				Help: "Threads created, labelled by why a new one was needed.",
			},
			[]string{"reason"},
		),
		runPolls: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "relay_run_polls",
				Help:    "Status checks needed before a run left the pending states.",
				Buckets: []float64{1, 2, 3, 5, 10, 20, 40, 80, 120},
			},
		),
		uploadsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "relay_uploads_total",
				Help: "Total file uploads by status.",
			},
			[]string{"status"},
		),
		inFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "relay_queries_in_flight",
				Help: "Queries currently being orchestrated.",
			},
		),
	}
}

// RecordQuery records the outcome and duration of one orchestrated query.
func (m *Metrics) RecordQuery(outcome string, d time.Duration) {
	m.queriesTotal.WithLabelValues(outcome).Inc()
	m.queryDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

// IncrBackendError increments the backend error counter.
func (m *Metrics) IncrBackendError(operation string) {
	m.backendErrors.WithLabelValues(operation).Inc()
}

// IncrThreadCreated counts a thread creation.
func (m *Metrics) IncrThreadCreated(reason string) {
	m.threadsCreated.WithLabelValues(reason).Inc()
}

// ObserveRunPolls records how many status checks a run needed.
func (m *Metrics) ObserveRunPolls(n int) {
	m.runPolls.Observe(float64(n))
}

// IncrUpload increments the upload counter with a status label.
func (m *Metrics) IncrUpload(status string) {
	m.uploadsTotal.WithLabelValues(status).Inc()
}

// QueryStarted and QueryFinished bracket an orchestration for the in-flight gauge.
func (m *Metrics) QueryStarted()  { m.inFlight.Inc() }
func (m *Metrics) QueryFinished() { m.inFlight.Dec() }

// GetRelaySnapshot returns a snapshot of relay counters suitable for the
// GET /api/metrics/summary endpoint.
func (m *Metrics) GetRelaySnapshot() *domain.RelayMetrics {
	completed := getCounterValue(m.queriesTotal, OutcomeCompleted)
	noResponse := getCounterValue(m.queriesTotal, OutcomeNoResponse)
	runFailed := getCounterValue(m.queriesTotal, OutcomeRunFailed)
	timeouts := getCounterValue(m.queriesTotal, OutcomeTimeout)
	errs := getCounterValue(m.queriesTotal, OutcomeError)

	total := completed + noResponse + runFailed + timeouts + errs
	errorRate := float64(0)
	if total > 0 {
		errorRate = (runFailed + timeouts + errs) / total
	}

	return &domain.RelayMetrics{
		TotalQueries:     int64(total),
		Completed:        int64(completed + noResponse),
		RunFailures:      int64(runFailed),
		Timeouts:         int64(timeouts),
		Errors:           int64(errs),
		ErrorRate:        errorRate,
		ThreadsCreated:   int64(getCounterValue(m.threadsCreated, ThreadReasonNew)),
		ThreadsRecreated: int64(getCounterValue(m.threadsCreated, ThreadReasonNotFound)),
		Uploads:          int64(getCounterValue(m.uploadsTotal, "accepted")),
		Period:           "all_time",
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
