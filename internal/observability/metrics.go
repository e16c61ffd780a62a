package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolhost",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)
	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolhost",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	toolInvocations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "toolhost",
			Subsystem: "tool",
			Name:      "invocations_total",
			Help:      "Tool invocations by outcome.",
		},
		[]string{"tool", "outcome"},
	)
	toolRunDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "toolhost",
			Subsystem: "tool",
			Name:      "run_duration_seconds",
			Help:      "Subprocess wall time per tool run.",
			Buckets:   []float64{.1, .5, 1, 5, 15, 60, 300, 1800, 3600},
		},
		[]string{"tool"},
	)
	uploadBytes = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "toolhost",
			Subsystem: "upload",
			Name:      "staged_bytes_total",
			Help:      "Bytes staged into scratch workspaces.",
		},
	)
)

func RegisterMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(httpRequests, httpDuration, toolInvocations, toolRunDuration, uploadBytes)
	})
}

func RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	RegisterMetrics()
	statusLabel := strconv.Itoa(status)
	httpRequests.WithLabelValues(method, path, statusLabel).Inc()
	httpDuration.WithLabelValues(method, path, statusLabel).Observe(duration.Seconds())
}

// RecordInvocation counts one tool run. Outcome is one of
// "ok", "failed", "timeout", "rejected", "error".
func RecordInvocation(tool, outcome string, runDuration time.Duration) {
	RegisterMetrics()
	toolInvocations.WithLabelValues(tool, outcome).Inc()
	if runDuration > 0 {
		toolRunDuration.WithLabelValues(tool).Observe(runDuration.Seconds())
	}
}

func RecordStagedBytes(n int64) {
	RegisterMetrics()
	if n > 0 {
		uploadBytes.Add(float64(n))
	}
}
