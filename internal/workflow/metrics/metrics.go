package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the workflow module.
// Tracks request lifecycle counts and the duration of the approval apply path.
type Metrics struct {
	RequestsCreated   prometheus.Counter
	StatusTransitions *prometheus.CounterVec
	ApplyFailures     prometheus.Counter
	ApplyDuration     prometheus.Histogram
	ListDuration      prometheus.Histogram
}

// New creates a new Metrics instance with all workflow module metrics registered.
func New() *Metrics {
	return &Metrics{
		RequestsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civica_requests_created_total",
			Help: "Total number of change requests created",
		}),
		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "civica_request_transitions_total",
			Help: "Total number of request status transitions by resulting status",
		}, []string{"status"}),
		ApplyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "civica_request_apply_failures_total",
			Help: "Total number of approvals whose change application failed",
		}),
		ApplyDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civica_request_apply_duration_seconds",
			Help:    "Duration of approval change application (recursive entity write path)",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		}),
		ListDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "civica_request_list_duration_seconds",
			Help:    "Duration of request listing (visibility scoped queries)",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// IncrementRequestsCreated records a successful request creation.
func (m *Metrics) IncrementRequestsCreated() {
	m.RequestsCreated.Inc()
}

// IncrementTransition records one status transition by its resulting status.
func (m *Metrics) IncrementTransition(status string) {
	m.StatusTransitions.WithLabelValues(status).Inc()
}

// IncrementApplyFailures records an approval whose entity write failed.
func (m *Metrics) IncrementApplyFailures() {
	m.ApplyFailures.Inc()
}

// ObserveApply records the duration of an approval apply pass.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveApply(start time.Time) {
	m.ApplyDuration.Observe(time.Since(start).Seconds())
}

// ObserveList records the duration of a List operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveList(start time.Time) {
	m.ListDuration.Observe(time.Since(start).Seconds())
}
