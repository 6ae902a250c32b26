package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counts inbound callback signature checks by result ("valid", "invalid").
	SignatureChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackgw_signature_checks_total",
			Help: "Inbound callback signature verifications by result.",
		},
		[]string{"result"},
	)

	// Counts verified callbacks by inner event type.
	EventsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackgw_events_received_total",
			Help: "Verified Events API callbacks by event type.",
		},
		[]string{"event_type"},
	)

	// Counts install handshakes by outcome.
	Installs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackgw_installs_total",
			Help: "Install handshakes by outcome.",
		},
		[]string{"outcome"},
	)

	// Counts reply attempts by outcome.
	Replies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackgw_replies_total",
			Help: "Outbound reply attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// Tracks Slack Web API calls.
	SlackRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "slackgw_slack_api_requests_total",
			Help: "Slack Web API requests by method and status.",
		},
		[]string{"method", "status"},
	)

	SlackRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "slackgw_slack_api_request_duration_seconds",
			Help:    "Duration of Slack Web API requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms → ~10s
		},
		[]string{"method"},
	)

	AdminResets = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "slackgw_admin_resets_total",
			Help: "Administrative delete-all operations.",
		},
	)
)

// ObserveSlackRequest records one Slack API call.
func ObserveSlackRequest(method, status string, start time.Time) {
	SlackRequestsTotal.WithLabelValues(method, status).Inc()
	SlackRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
