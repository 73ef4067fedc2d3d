// Package metrics provides Prometheus instrumentation for storesync.
package metrics

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, route and status class.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storesync",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, route pattern and status class.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storesync",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// NotificationsTotal counts store notifications by platform and outcome.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storesync",
			Subsystem: "webhook",
			Name:      "notifications_total",
			Help:      "Store notifications received by platform and outcome.",
		},
		[]string{"platform", "outcome"},
	)

	// EventsTotal counts normalized events by kind and result.
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storesync",
			Subsystem: "reconciliation",
			Name:      "events_total",
			Help:      "Reconciliation events by kind and result.",
		},
		[]string{"kind", "result"},
	)

	LedgerWritesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storesync",
			Subsystem: "ledger",
			Name:      "writes_total",
			Help:      "Ledger writes by action and result.",
		},
		[]string{"action", "result"},
	)

	PlanNotFoundTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storesync",
			Subsystem: "reconciliation",
			Name:      "plan_not_found_total",
			Help:      "Events rejected because no plan matches the product id.",
		},
		[]string{"platform"},
	)

	StoreAPIDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storesync",
			Subsystem: "store_api",
			Name:      "request_duration_seconds",
			Help:      "Store API call duration by store, operation and result.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"store", "operation", "result"},
	)

	RecoverySweepRecords = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storesync",
			Subsystem: "recovery",
			Name:      "records_total",
			Help:      "Records examined by the recovery sweep, by result.",
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		NotificationsTotal,
		EventsTotal,
		LedgerWritesTotal,
		PlanNotFoundTotal,
		StoreAPIDuration,
		RecoverySweepRecords,
	)
}

// ObserveStoreCall records the duration of one store API call.
func ObserveStoreCall(store, operation string, started time.Time, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	StoreAPIDuration.WithLabelValues(store, operation, result).Observe(time.Since(started).Seconds())
}

// Middleware records request count and latency per route pattern.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(c.Request.Method, c.FullPath()))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(c.Request.Method, c.FullPath(), statusBucket(c.Writer.Status())).Inc()
	}
}

// Handler serves the Prometheus registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}

func statusBucket(code int) string {
	switch {
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
