// Package metrics provides Prometheus instrumentation for sinkflow components.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Namespace is the metric namespace shared by every sinkflow collector.
const Namespace = "sinkflow"

// Registry holds all metric instances for sinkflow components.
type Registry struct {
	// Writer Metrics
	WriterWrites            *prometheus.CounterVec
	WriterBytesWritten      *prometheus.CounterVec
	WriterFlushes           *prometheus.CounterVec
	WriterErrors            *prometheus.CounterVec
	BackpressureWaits       *prometheus.CounterVec
	BackpressureWaitSeconds *prometheus.HistogramVec

	// Framing Metrics
	FramedBufferBytes *prometheus.GaugeVec
	FramedFlushes     *prometheus.CounterVec
	FramedFlushBytes  *prometheus.CounterVec
	EncodeErrors      *prometheus.CounterVec

	// Channel Metrics
	ChannelDepth *prometheus.GaugeVec
	ChannelSends *prometheus.CounterVec

	// Transport Metrics
	TransportSends  *prometheus.CounterVec
	TransportErrors *prometheus.CounterVec

	// Throttle Metrics
	ThrottleWaits       *prometheus.CounterVec
	ThrottleWaitSeconds *prometheus.HistogramVec
	ThrottleTokens      *prometheus.GaugeVec
}

// DefaultRegistry is the default metrics registry used by sinkflow components.
var DefaultRegistry *Registry

var (
	registriesMu sync.Mutex
	registries   = map[prometheus.Registerer]*Registry{}
)

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
	registries[prometheus.DefaultRegisterer] = DefaultRegistry
}

// For returns the Registry bound to reg, creating it on first use. Repeated
// calls with the same registerer share one set of collectors, so components
// can be instrumented independently without duplicate registration panics.
// A nil registerer selects DefaultRegistry.
func For(reg prometheus.Registerer) *Registry {
	if reg == nil {
		return DefaultRegistry
	}

	registriesMu.Lock()
	defer registriesMu.Unlock()

	if r, ok := registries[reg]; ok {
		return r
	}
	r := NewRegistry(reg)
	registries[reg] = r
	return r
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
// It panics if the collectors are already registered with reg; use For to share.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		// Writer Metrics
		WriterWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "writer",
				Name:      "writes_total",
				Help:      "Total number of completed writes",
			},
			[]string{"writer_name"},
		),

		WriterBytesWritten: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "writer",
				Name:      "bytes_written_total",
				Help:      "Total bytes accepted by the writer",
			},
			[]string{"writer_name"},
		),

		WriterFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "writer",
				Name:      "flushes_total",
				Help:      "Total number of writer flushes",
			},
			[]string{"writer_name"},
		),

		WriterErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "writer",
				Name:      "errors_total",
				Help:      "Total number of writer errors by kind",
			},
			[]string{"writer_name", "kind"},
		),

		BackpressureWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "backpressure",
				Name:      "waits_total",
				Help:      "Total number of writes that had to wait for sink readiness",
			},
			[]string{"writer_name"},
		),

		BackpressureWaitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "backpressure",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for sink readiness",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"writer_name"},
		),

		// Framing Metrics
		FramedBufferBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "framed",
				Name:      "buffer_bytes",
				Help:      "Encoded bytes waiting to be flushed",
			},
			[]string{"framed_name"},
		),

		FramedFlushes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "framed",
				Name:      "flushes_total",
				Help:      "Total number of framed buffer flushes",
			},
			[]string{"framed_name"},
		),

		FramedFlushBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "framed",
				Name:      "flushed_bytes_total",
				Help:      "Total bytes written downstream by framed writers",
			},
			[]string{"framed_name"},
		),

		EncodeErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "framed",
				Name:      "encode_errors_total",
				Help:      "Total number of items rejected by the encoder",
			},
			[]string{"framed_name", "encoder"},
		),

		// Channel Metrics
		ChannelDepth: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "channel",
				Name:      "depth",
				Help:      "Items queued in a channel sink",
			},
			[]string{"channel_name"},
		),

		ChannelSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "channel",
				Name:      "sends_total",
				Help:      "Total number of items sent through a channel sink",
			},
			[]string{"channel_name"},
		),

		// Transport Metrics
		TransportSends: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "transport",
				Name:      "sends_total",
				Help:      "Total number of items delivered to a transport",
			},
			[]string{"transport", "target"},
		),

		TransportErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "transport",
				Name:      "errors_total",
				Help:      "Total number of transport failures",
			},
			[]string{"transport", "target", "op"},
		),

		// Throttle Metrics
		ThrottleWaits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "throttle",
				Name:      "waits_total",
				Help:      "Total number of items that had to wait for a token",
			},
			[]string{"throttle_name"},
		),

		ThrottleWaitSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "throttle",
				Name:      "wait_duration_seconds",
				Help:      "Time spent waiting for a token",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"throttle_name"},
		),

		ThrottleTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "throttle",
				Name:      "tokens",
				Help:      "Tokens available after the last send",
			},
			[]string{"throttle_name"},
		),
	}
}
