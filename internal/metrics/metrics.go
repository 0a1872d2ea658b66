// Package metrics exposes Prometheus instrumentation for the monitoring and
// execution services.
package metrics

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	EventsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorhub",
		Name:      "events_ingested_total",
		Help:      "Accepted monitoring events by source.",
	}, []string{"source"})

	EventsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorhub",
		Name:      "events_rejected_total",
		Help:      "Rejected monitoring events by reason.",
	}, []string{"reason"})

	ViolationsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorhub",
		Name:      "violations_detected_total",
		Help:      "Violations detected by type.",
	}, []string{"type"})

	TrustOverrides = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "proctorhub",
		Name:      "trust_overrides_total",
		Help:      "Manual trust score overrides applied.",
	})

	ActiveAttempts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "proctorhub",
		Name:      "active_attempts",
		Help:      "Attempts currently tracked as active.",
	})

	BroadcastsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorhub",
		Name:      "broadcasts_sent_total",
		Help:      "Realtime messages routed by type.",
	}, []string{"type"})

	Executions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "proctorhub",
		Name:      "executions_total",
		Help:      "Sandbox executions by backend and outcome.",
	}, []string{"backend", "outcome"})

	ExecutionDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "proctorhub",
		Name:      "execution_duration_seconds",
		Help:      "Wall time of sandbox executions.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10),
	})
)

// Handler returns the gin handler serving the Prometheus scrape endpoint.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
