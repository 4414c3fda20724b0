// Package metrics provides Prometheus instrumentation for sinkflow components.
//
// Writers, framed writers, channel sinks, throttles and transports all report through a
// shared Registry. Instrumentation is opt-in: components implement
// Instrumentable and start reporting once EnableMetrics is called.
//
// # Quick Start
//
//	w := writer.New(sink.NewCopyToBytes(sink.NewChannelSink(ch)))
//	if err := w.EnableMetrics(metrics.DefaultConfig()); err != nil {
//		return err
//	}
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":9090", nil))
//
// # Custom Registry
//
// Use a custom Prometheus registry for isolation:
//
//	reg := prometheus.NewRegistry()
//	err := w.EnableMetrics(metrics.Config{Enabled: true, Registry: reg})
//
// Collectors are registered once per registerer; For hands back the same
// Registry on every call, so many components can share one registerer.
//
// # Available Metrics
//
// ## Writer Metrics
//
//   - sinkflow_writer_writes_total: Completed writes
//   - sinkflow_writer_bytes_written_total: Bytes accepted by the writer
//   - sinkflow_writer_flushes_total: Writer flushes
//   - sinkflow_writer_errors_total: Writer errors by kind
//   - sinkflow_backpressure_waits_total: Writes that waited for readiness
//   - sinkflow_backpressure_wait_duration_seconds: Time spent waiting for readiness
//
// ## Framing Metrics
//
//   - sinkflow_framed_buffer_bytes: Encoded bytes not yet flushed
//   - sinkflow_framed_flushes_total: Framed buffer flushes
//   - sinkflow_framed_flushed_bytes_total: Bytes written downstream
//   - sinkflow_framed_encode_errors_total: Items rejected by the encoder
//
// ## Channel Metrics
//
//   - sinkflow_channel_depth: Items queued in a channel sink
//   - sinkflow_channel_sends_total: Items sent through a channel sink
//
// ## Transport Metrics
//
//   - sinkflow_transport_sends_total: Items delivered to a transport
//   - sinkflow_transport_errors_total: Transport failures by operation
//
// ## Throttle Metrics
//
//   - sinkflow_throttle_waits_total: Items that waited for a token
//   - sinkflow_throttle_wait_duration_seconds: Time spent waiting for tokens
//   - sinkflow_throttle_tokens: Tokens left after the last send
package metrics
