package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTPMetrics tracks the request surface.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewHTTPMetrics() *HTTPMetrics {
	return &HTTPMetrics{
		requests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgrid",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mealgrid",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
}

// GinMiddleware records per-request counters and latency.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		m.requests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.duration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// SchedulerMetrics tracks background job execution.
type SchedulerMetrics struct {
	runs     *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewSchedulerMetrics() *SchedulerMetrics {
	return &SchedulerMetrics{
		runs: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgrid",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduler job executions.",
		}, []string{"job"}),
		errors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgrid",
			Subsystem: "scheduler",
			Name:      "job_errors_total",
			Help:      "Scheduler job failures.",
		}, []string{"job"}),
		duration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "mealgrid",
			Subsystem: "scheduler",
			Name:      "job_duration_seconds",
			Help:      "Scheduler job latency.",
			Buckets:   []float64{.05, .1, .5, 1, 5, 15, 30, 60},
		}, []string{"job"}),
	}
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(job).Observe(d.Seconds())
}

// ThrottleMetrics tracks abuse-throttle decisions.
type ThrottleMetrics struct {
	allowed *prometheus.CounterVec
	denied  *prometheus.CounterVec
}

func NewThrottleMetrics() *ThrottleMetrics {
	return &ThrottleMetrics{
		allowed: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgrid",
			Subsystem: "throttle",
			Name:      "allowed_total",
			Help:      "Requests allowed by the abuse throttle.",
		}, []string{"class"}),
		denied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "mealgrid",
			Subsystem: "throttle",
			Name:      "denied_total",
			Help:      "Requests rejected by the abuse throttle.",
		}, []string{"class"}),
	}
}

func (m *ThrottleMetrics) IncAllowed(class string) {
	if m == nil {
		return
	}
	m.allowed.WithLabelValues(class).Inc()
}

func (m *ThrottleMetrics) IncDenied(class string) {
	if m == nil {
		return
	}
	m.denied.WithLabelValues(class).Inc()
}
