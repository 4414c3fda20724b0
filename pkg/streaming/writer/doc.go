/*
Package writer adapts item sinks into byte writers.

A SinkWriter turns every Write into exactly one item for a sink.Sink[[]byte].
Each write waits for the sink to become ready, hands over the slice, and
reports len(p). Nothing is buffered inside the writer, so the sink alone
decides how much backpressure a producer feels.

# Quick Start

	ch := channel.New[[]byte](16)
	w := writer.New(sink.NewCopyToBytes(sink.NewChannelSink(ch)))
	defer w.Close()

	fmt.Fprintf(w, "event %d\n", 1)

The slice passed to Write is given to the sink as is. Sinks that hold on to
items (channels, batching sinks) must be wrapped in sink.CopyToBytes so the
caller may reuse its buffer.

# Configuration

	w := writer.NewWithConfig(s, writer.Config{
		Name:      "ingest",                        // label for logs and metrics
		ChunkSize: 16 * 1024,                       // ReadFrom chunk size
		Logger:    zerolog.New(os.Stderr),          // state transitions and failures
	})

# Backpressure

Write blocks while the sink is not ready. Use WriteContext to bound the wait:

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if _, err := w.WriteContext(ctx, data); err != nil {
		// context.DeadlineExceeded; no slot is left reserved
	}

# Errors and Shutdown

An error that reports closure (errors.Is(err, sferrors.ErrClosed), which also
matches io.ErrClosedPipe) closes the writer for good. Any other error leaves
the writer idle and the next Write tries again. The writer never retries on
its own.

Shutdown closes the writer and the sink. Later writes fail immediately with
ErrWriterClosed. IntoInner hands the sink back without closing it.

# Streams

SinkWriter implements io.ReaderFrom. ReadFrom, and io.Copy from sources
without a WriteTo method, deliver one item per chunk read, in order.

# Thread Safety

Writes are serialized. State, Stats and MetricsEnabled may be called from
any goroutine.
*/
package writer
