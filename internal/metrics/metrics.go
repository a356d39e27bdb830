// Package metrics provides Prometheus metrics collection for the control plane.
package metrics

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Global metrics, stored behind atomic.Pointer for lock-free nil checks
	// on the hot path before Init has run (tests, early startup).
	requestsTotal      atomic.Pointer[prometheus.CounterVec]
	requestDuration    atomic.Pointer[prometheus.HistogramVec]
	authFailuresTotal  atomic.Pointer[prometheus.CounterVec]
	heartbeatsTotal    atomic.Pointer[prometheus.CounterVec]
	placementDecisions atomic.Pointer[prometheus.CounterVec]
	nodeStatus         atomic.Pointer[prometheus.GaugeVec]
)

// Init initializes all Prometheus metrics and registers them with the
// provided registry. Called once at application startup.
func Init(reg prometheus.Registerer) error {
	requestsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shardgate",
			Subsystem: "controlplane",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled by the control plane",
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestsTotalVec); err != nil {
		return fmt.Errorf("failed to register requestsTotal: %w", err)
	}

	requestDurationVec := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "shardgate",
			Subsystem: "controlplane",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
	if err := reg.Register(requestDurationVec); err != nil {
		return fmt.Errorf("failed to register requestDuration: %w", err)
	}

	authFailuresTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shardgate",
			Subsystem: "controlplane",
			Name:      "auth_failures_total",
			Help:      "Total number of token and signature verification failures",
		},
		[]string{"reason"},
	)
	if err := reg.Register(authFailuresTotalVec); err != nil {
		return fmt.Errorf("failed to register authFailuresTotal: %w", err)
	}

	heartbeatsTotalVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shardgate",
			Subsystem: "controlplane",
			Name:      "heartbeats_total",
			Help:      "Total number of node heartbeats ingested",
		},
		[]string{"status"},
	)
	if err := reg.Register(heartbeatsTotalVec); err != nil {
		return fmt.Errorf("failed to register heartbeatsTotal: %w", err)
	}

	placementDecisionsVec := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "shardgate",
			Subsystem: "controlplane",
			Name:      "placement_decisions_total",
			Help:      "Total number of placement suggestions served",
		},
		[]string{"objective"},
	)
	if err := reg.Register(placementDecisionsVec); err != nil {
		return fmt.Errorf("failed to register placementDecisions: %w", err)
	}

	nodeStatusVec := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "shardgate",
			Subsystem: "controlplane",
			Name:      "nodes",
			Help:      "Registered nodes by lifecycle status",
		},
		[]string{"status"},
	)
	if err := reg.Register(nodeStatusVec); err != nil {
		return fmt.Errorf("failed to register nodeStatus: %w", err)
	}

	requestsTotal.Store(requestsTotalVec)
	requestDuration.Store(requestDurationVec)
	authFailuresTotal.Store(authFailuresTotalVec)
	heartbeatsTotal.Store(heartbeatsTotalVec)
	placementDecisions.Store(placementDecisionsVec)
	nodeStatus.Store(nodeStatusVec)

	return nil
}

// RecordRequest increments the requests counter. The path should be
// normalized (e.g., "/v1/nodes/:id" instead of "/v1/nodes/node-7").
func RecordRequest(method, path, statusCode string) {
	if counter := requestsTotal.Load(); counter != nil {
		counter.WithLabelValues(method, path, statusCode).Inc()
	}
}

// RecordRequestDuration records the latency for a request, in seconds.
func RecordRequestDuration(method, path, statusCode string, durationSeconds float64) {
	if histogram := requestDuration.Load(); histogram != nil {
		histogram.WithLabelValues(method, path, statusCode).Observe(durationSeconds)
	}
}

// RecordAuthFailure increments the auth failures counter. The reason is a
// stable machine-readable string, never raw error text.
func RecordAuthFailure(reason string) {
	if counter := authFailuresTotal.Load(); counter != nil {
		counter.WithLabelValues(reason).Inc()
	}
}

// RecordHeartbeat counts one ingested heartbeat, labeled by the node status
// after applying it.
func RecordHeartbeat(status string) {
	if counter := heartbeatsTotal.Load(); counter != nil {
		counter.WithLabelValues(status).Inc()
	}
}

// RecordPlacementDecision counts one placement suggestion.
func RecordPlacementDecision(objective string) {
	if counter := placementDecisions.Load(); counter != nil {
		counter.WithLabelValues(objective).Inc()
	}
}

// SetNodeStatusCount sets the node gauge for one lifecycle status.
func SetNodeStatusCount(status string, count int) {
	if gauge := nodeStatus.Load(); gauge != nil {
		gauge.WithLabelValues(status).Set(float64(count))
	}
}

// Handler returns an HTTP handler for Prometheus metrics in text format.
func Handler() http.Handler {
	return promhttp.Handler()
}

// GetMetricsText returns the Prometheus text-format output from a registry.
// Useful for testing and debugging.
func GetMetricsText(reg prometheus.Gatherer) (string, error) {
	handler := promhttp.HandlerFor(reg, promhttp.HandlerOpts{})

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	body, err := io.ReadAll(w.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read metrics output: %w", err)
	}
	return string(body), nil
}
