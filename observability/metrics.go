// Package observability holds the Prometheus collectors of the SDK.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	registry = prometheus.NewRegistry()

	connectAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callkit_connect_attempts_total",
			Help: "Transport connect attempts by result",
		},
		[]string{"result"},
	)

	connectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callkit_connect_duration_seconds",
			Help:    "Time from Connect to a terminal outcome",
			Buckets: []float64{.1, .25, .5, 1, 2, 4, 8, 16},
		},
		[]string{"result"},
	)

	negotiationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callkit_negotiations_total",
			Help: "Connection details resolutions by source",
		},
		[]string{"source"},
	)

	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callkit_api_requests_total",
			Help: "REST API requests",
		},
		[]string{"method", "path", "status"},
	)

	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callkit_api_request_duration_seconds",
			Help:    "REST API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	agentStateTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callkit_agent_state_transitions_total",
			Help: "Agent state transitions by target state",
		},
		[]string{"state"},
	)

	callEndNotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callkit_call_end_notifications_total",
			Help: "Best-effort call termination notifications by result",
		},
		[]string{"result"},
	)
)

func init() {
	registry.MustRegister(
		connectAttemptsTotal,
		connectDuration,
		negotiationsTotal,
		apiRequestsTotal,
		apiRequestDuration,
		agentStateTransitionsTotal,
		callEndNotificationsTotal,
	)
}

// Registry exposes the SDK collectors, e.g. to merge into an application registry.
func Registry() *prometheus.Registry {
	return registry
}

// Handler serves the SDK collectors in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func RecordConnectAttempt(err error) {
	connectAttemptsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func RecordConnect(start time.Time, err error) {
	connectDuration.WithLabelValues(resultLabel(err)).Observe(time.Since(start).Seconds())
}

// RecordNegotiation counts a details resolution; source is "override", "cache" or "api".
func RecordNegotiation(source string) {
	negotiationsTotal.WithLabelValues(source).Inc()
}

func RecordAPIRequest(method, path, status string, duration time.Duration) {
	apiRequestsTotal.WithLabelValues(method, path, status).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

func RecordAgentState(state string) {
	agentStateTransitionsTotal.WithLabelValues(state).Inc()
}

func RecordCallEnd(err error) {
	callEndNotificationsTotal.WithLabelValues(resultLabel(err)).Inc()
}

func resultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
