package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towdesk_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "towdesk_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	callsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towdesk_calls_created_total",
		Help: "Count of dispatch calls created, by priority and service type",
	}, []string{"priority", "service_type"})

	callTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towdesk_call_transitions_total",
		Help: "Count of call status transitions, by target status and result",
	}, []string{"to_status", "result"})

	claimAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towdesk_claim_attempts_total",
		Help: "Count of driver claim attempts by result (won or lost the race)",
	}, []string{"result"})

	openCalls = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "towdesk_open_calls",
		Help: "Number of unassigned open calls, refreshed on dashboard reads",
	})

	impoundPayments = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towdesk_impound_payments_total",
		Help: "Count of impound payments recorded, by resulting payment status",
	}, []string{"payment_status"})

	logins = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "towdesk_logins_total",
		Help: "Count of login attempts by result",
	}, []string{"result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveCallCreated increments the created-calls counter.
func ObserveCallCreated(priority, serviceType string) {
	callsCreated.WithLabelValues(priority, serviceType).Inc()
}

// ObserveTransition records a status transition attempt.
func ObserveTransition(toStatus, result string) {
	callTransitions.WithLabelValues(toStatus, result).Inc()
}

// ObserveClaim records a claim attempt. result is "won" or "lost".
func ObserveClaim(result string) {
	claimAttempts.WithLabelValues(result).Inc()
}

// SetOpenCalls sets the open-call gauge.
func SetOpenCalls(count int) {
	if count < 0 {
		count = 0
	}
	openCalls.Set(float64(count))
}

// ObserveImpoundPayment records a payment against an impound.
func ObserveImpoundPayment(paymentStatus string) {
	impoundPayments.WithLabelValues(paymentStatus).Inc()
}

// ObserveLogin records a login attempt by result.
func ObserveLogin(result string) {
	logins.WithLabelValues(result).Inc()
}
