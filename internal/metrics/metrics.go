// Package metrics holds the Prometheus collectors shared by the server and
// the worker.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitlements_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	PaymentTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_payment_transitions_total",
			Help: "Accepted payment status transitions",
		},
		[]string{"status"},
	)

	QuotasProvisionedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_quotas_provisioned_total",
			Help: "Booking quotas created",
		},
	)

	QuotaCASRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "entitlements_quota_cas_retries_total",
			Help: "Quota updates retried after losing a compare-and-swap",
		},
	)

	BookingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_bookings_total",
			Help: "Booking lifecycle transitions",
		},
		[]string{"status"},
	)

	SubscriptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_subscriptions_total",
			Help: "Trainer subscription lifecycle transitions",
		},
		[]string{"status"},
	)

	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_events_published_total",
			Help: "Events published to the broker",
		},
		[]string{"pattern", "result"},
	)

	EventsConsumedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "entitlements_events_consumed_total",
			Help: "Deliveries handled by listeners",
		},
		[]string{"queue", "outcome"},
	)

	EventProcessingTime = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "entitlements_event_processing_seconds",
			Help:    "Time spent handling one delivery, retries included",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue"},
	)

	OutboxPending = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "entitlements_outbox_pending",
			Help: "Outbox rows fetched but not yet published in the last relay pass",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordPaymentTransition(status string) {
	PaymentTransitionsTotal.WithLabelValues(status).Inc()
}

func RecordBooking(status string) {
	BookingsTotal.WithLabelValues(status).Inc()
}

func RecordSubscription(status string, n int) {
	SubscriptionsTotal.WithLabelValues(status).Add(float64(n))
}

func RecordPublish(pattern string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	EventsPublishedTotal.WithLabelValues(pattern, result).Inc()
}

func RecordDelivery(queue, outcome string, took time.Duration) {
	EventsConsumedTotal.WithLabelValues(queue, outcome).Inc()
	EventProcessingTime.WithLabelValues(queue).Observe(took.Seconds())
}

// Middleware records every request under its route template, so /v1/bookings/:id
// is one series rather than one per id.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				} else if !c.Response().Committed {
					status = http.StatusInternalServerError
				}
			}
			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			RecordHTTPRequest(c.Request().Method, path, strconv.Itoa(status), time.Since(start).Seconds())
			return err
		}
	}
}

// Handler exposes the default registry.
func Handler() http.Handler { return promhttp.Handler() }
