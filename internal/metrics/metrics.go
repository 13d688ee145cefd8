// Package metrics exposes the Prometheus collectors of the exam server.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labexam_sessions_started_total",
		Help: "Session start calls by outcome (created, resumed)",
	}, []string{"outcome"})

	SessionsFinalized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labexam_sessions_finalized_total",
		Help: "Terminal transitions by reason (submitted, expired)",
	}, []string{"reason"})

	SubmitReplays = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labexam_submit_replays_total",
		Help: "Submits that hit an already terminal session",
	})

	Heartbeats = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labexam_heartbeats_total",
		Help: "Heartbeats by continue decision",
	}, []string{"continue"})

	FlagsRaised = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labexam_flags_raised_total",
		Help: "Integrity flags appended to sessions by kind",
	}, []string{"kind"})

	ResponsesSaved = promauto.NewCounter(prometheus.CounterOpts{
		Name: "labexam_responses_saved_total",
		Help: "Autosaved answers",
	})

	ContentCacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labexam_content_cache_lookups_total",
		Help: "Exam content cache lookups by result (hit, miss, error)",
	}, []string{"result"})

	httpRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "labexam_http_requests_total",
		Help: "HTTP requests by route and status",
	}, []string{"method", "route", "status"})

	httpLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "labexam_http_request_duration_seconds",
		Help:    "HTTP request latency by route",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "route"})
)

// Middleware records request count and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpLatency.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// Handler serves the default registry.
func Handler() gin.HandlerFunc {
	return gin.WrapH(promhttp.Handler())
}
