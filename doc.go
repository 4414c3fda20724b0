/*
Package sinkflow lets code written against io.Writer push data into
asynchronous, backpressure-aware sinks that accept whole items.

Sinks (pkg/streaming/sink):
  - Sink: Ready / Send / Flush / Close contract
  - ChannelSink: sending half of a bounded channel
  - CopyToBytes, MapErr, Forward: adapters and plumbing

Writers (pkg/streaming):
  - writer: io.Writer over a Sink, one item per Write
  - framed: encode items into a buffer flushed at a high water mark
  - codec: lines, length-delimited, JSON and protobuf encoders
  - channel: bounded channel with reservations
  - throttle: token bucket rate limiting in front of any sink

Transports (pkg/transport):
  - wssink: one websocket message per item
  - redissink: one Redis stream entry per item

Example usage:

	import (
		"github.com/vnykmshr/sinkflow/pkg/streaming/channel"
		"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
		"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
	)

	ch := channel.New[[]byte](16)
	w := writer.New(sink.NewCopyToBytes(sink.NewChannelSink(ch)))

	fmt.Fprintf(w, "hello %s\n", name) // blocks while the channel is full
	w.Shutdown(ctx)
*/
package sinkflow
