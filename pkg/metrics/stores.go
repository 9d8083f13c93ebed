package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics records mutation and backend-request metadata for the client
// state stores.
type StoreMetrics struct {
	mutations       *prometheus.CounterVec
	rollbacks       *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	requestFailures *prometheus.CounterVec
}

// NewStoreMetrics registers the store metrics on the provided registerer.
func NewStoreMetrics(reg prometheus.Registerer) *StoreMetrics {
	if reg == nil {
		return &StoreMetrics{}
	}
	mutations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_mutations_total",
		Help: "Store mutations applied, optimistic or local.",
	}, []string{"store", "op"})
	rollbacks := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "store_rollbacks_total",
		Help: "Optimistic mutations rolled back after a rejected server call.",
	}, []string{"store", "op"})
	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "backend_request_duration_seconds",
		Help:    "Duration of backend REST calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})
	requestFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "backend_request_failures_total",
		Help: "Failed backend REST calls by error code.",
	}, []string{"endpoint", "code"})
	reg.MustRegister(mutations, rollbacks, requestDuration, requestFailures)
	return &StoreMetrics{
		mutations:       mutations,
		rollbacks:       rollbacks,
		requestDuration: requestDuration,
		requestFailures: requestFailures,
	}
}

// IncMutation counts one applied mutation for the named store operation.
func (m *StoreMetrics) IncMutation(store, op string) {
	if m == nil || m.mutations == nil {
		return
	}
	m.mutations.WithLabelValues(normalizeLabel(store), normalizeLabel(op)).Inc()
}

// IncRollback counts one rolled-back mutation for the named store operation.
func (m *StoreMetrics) IncRollback(store, op string) {
	if m == nil || m.rollbacks == nil {
		return
	}
	m.rollbacks.WithLabelValues(normalizeLabel(store), normalizeLabel(op)).Inc()
}

// ObserveRequest records the duration of one backend call.
func (m *StoreMetrics) ObserveRequest(endpoint string, duration time.Duration) {
	if m == nil || m.requestDuration == nil {
		return
	}
	m.requestDuration.WithLabelValues(normalizeLabel(endpoint)).Observe(duration.Seconds())
}

// IncRequestFailure counts one failed backend call.
func (m *StoreMetrics) IncRequestFailure(endpoint, code string) {
	if m == nil || m.requestFailures == nil {
		return
	}
	m.requestFailures.WithLabelValues(normalizeLabel(endpoint), normalizeLabel(code)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
