// Package metrics holds the Prometheus collectors of the dispatch engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var HTTPRequestsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests received",
	},
	[]string{"route", "method", "status"},
)

var HTTPRequestDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"route", "method"},
)

var HTTPRateLimitRejectionsTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "http_rate_limit_rejections_total",
		Help: "Total number of HTTP requests rejected due to rate limiting",
	},
)

var SchedulerTickDuration = promauto.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "dispatch_tick_duration_seconds",
		Help:    "Duration of one scheduler pass over due posts",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	},
)

// PostsDispatchedTotal counts post dispatch outcomes: sent, partial, failed,
// retry or skipped.
var PostsDispatchedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_posts_total",
		Help: "Total number of post dispatch outcomes",
	},
	[]string{"channel", "result"},
)

var RecipientSendsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_recipient_sends_total",
		Help: "Total number of adapter calls by outcome",
	},
	[]string{"channel", "provider", "status"},
)

var SendDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "dispatch_send_duration_seconds",
		Help:    "Time taken by a single adapter call",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"channel", "provider"},
)

var SendRetriesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "dispatch_send_retries_total",
		Help: "Total number of adapter call retries",
	},
	[]string{"channel", "reason"},
)

var QuotaRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quota_rejections_total",
		Help: "Total number of sends refused by the quota guard",
	},
	[]string{"channel", "reason"},
)

var UsageConfirmedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "quota_usage_confirmed_total",
		Help: "Total number of metered messages counted against a plan",
	},
	[]string{"channel"},
)

var ReservationsExpiredTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "quota_reservations_expired_total",
		Help: "Total number of reservations released by the sweep",
	},
)

var WebhookEventsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "delivery_webhook_events_total",
		Help: "Total number of delivery status reports by outcome",
	},
	[]string{"channel", "status", "outcome"},
)

var EventPublishFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "event_publish_failures_total",
		Help: "Total number of failed event publishes",
	},
	[]string{"stream"},
)
