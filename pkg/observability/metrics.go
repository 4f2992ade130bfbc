// Package observability provides Prometheus metrics and HTTP middleware
// for monitoring the chatrelay server.
package observability

import "github.com/prometheus/client_golang/prometheus"

// LLMBuckets defines histogram buckets suited for LLM inference latencies,
// ranging from 100ms to 120s.
var LLMBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}

var (
	// RequestsTotal counts HTTP requests by method, status class, and route.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_requests_total",
			Help: "Total requests",
		},
		[]string{"method", "status", "route"},
	)

	// RequestDuration records HTTP request duration in seconds.
	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_request_duration_seconds",
			Help:    "Request duration",
			Buckets: LLMBuckets,
		},
		[]string{"method", "route"},
	)

	// StreamingConnections tracks the number of active SSE streaming connections.
	StreamingConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrelay_streaming_connections_active",
			Help: "Active streaming connections",
		},
	)

	// UpstreamRequestsTotal counts invocations of the model endpoint.
	// mode is "invoke" or "stream".
	UpstreamRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_upstream_requests_total",
			Help: "Upstream model invocations",
		},
		[]string{"provider", "mode", "status"},
	)

	// UpstreamLatency records the time until the upstream answered (invoke)
	// or accepted the stream (stream).
	UpstreamLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrelay_upstream_latency_seconds",
			Help:    "Upstream latency",
			Buckets: LLMBuckets,
		},
		[]string{"provider", "mode"},
	)

	// StreamFallbacksTotal counts streams that degraded to a synchronous replay.
	StreamFallbacksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_stream_fallbacks_total",
			Help: "Streams served from a synchronous fallback",
		},
		[]string{"provider"},
	)

	// SkippedFramesTotal counts stream frames dropped because they did not decode.
	SkippedFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_skipped_frames_total",
			Help: "Undecodable stream frames",
		},
		[]string{"provider"},
	)

	// FragmentsTotal counts fragments handed to clients by source
	// ("stream" or "fallback").
	FragmentsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_fragments_total",
			Help: "Relayed text fragments",
		},
		[]string{"provider", "source"},
	)

	// RateLimitRejectedTotal counts requests rejected by the rate limiter.
	RateLimitRejectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrelay_ratelimit_rejected_total",
			Help: "Rate limit rejections",
		},
		[]string{"tier"},
	)
)

func init() {
	prometheus.MustRegister(
		RequestsTotal,
		RequestDuration,
		StreamingConnections,
		UpstreamRequestsTotal,
		UpstreamLatency,
		StreamFallbacksTotal,
		SkippedFramesTotal,
		FragmentsTotal,
		RateLimitRejectedTotal,
	)
}
