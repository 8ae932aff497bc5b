package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	MarkingCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marking_sessions_total",
			Help: "Mark calls by outcome",
		},
		[]string{"outcome"},
	)

	MarkingDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "marking_duration_seconds",
			Help:    "Duration of a single Mark call",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2},
		},
		[]string{"outcome"},
	)

	BatchItemCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "marking_batch_items_total",
			Help: "Batch items processed by result",
		},
		[]string{"result"},
	)

	BatchesInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "marking_batches_in_flight",
			Help: "Synchronous batches currently running",
		},
	)
)

func Init() {
	prometheus.MustRegister(RequestCounter)
	prometheus.MustRegister(RequestDuration)
	prometheus.MustRegister(MarkingCounter)
	prometheus.MustRegister(MarkingDuration)
	prometheus.MustRegister(BatchItemCounter)
	prometheus.MustRegister(BatchesInFlight)
}

// ObserveMarking records one Mark call. Outcome is "marked", "skipped" or an
// error kind.
func ObserveMarking(outcome string, d time.Duration) {
	MarkingCounter.WithLabelValues(outcome).Inc()
	MarkingDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func ObserveBatchItem(result string) {
	BatchItemCounter.WithLabelValues(result).Inc()
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
