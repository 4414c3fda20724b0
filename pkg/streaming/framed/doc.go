/*
Package framed turns a byte writer into a Sink of typed items.

A Writer encodes every item it is sent into an internal buffer using a
codec.Encoder, and writes that buffer to an io.Writer. Encoded bytes
accumulate until the buffer reaches the high water mark (8KB by default); the
next Ready then flushes them, so producers feel backpressure from the
downstream writer without paying for a write per item.

# Quick Start

	fw := framed.New[string](conn, codec.LinesEncoder{})
	defer fw.Close(ctx)

	for _, line := range lines {
		if err := fw.Submit(ctx, line); err != nil {
			return err
		}
	}
	return fw.Flush(ctx)

# Encoding

Encoding is atomic: if the encoder fails, the buffer is truncated back to its
previous length and the error (an *errors.EncodeError) is returned. Nothing
reaches the downstream writer for a rejected item.

# Flushing

Flush writes the whole buffer, looping over short writes, and then flushes
the downstream if it has a Flush() error or Flush(ctx) error method. Close
flushes and then closes the downstream through Shutdown(ctx) error or
io.Closer.

# Composition

A framed.Writer over a writer.SinkWriter batches encoded items and delivers
one item per flush to the sink behind the SinkWriter:

	ch := channel.New[[]byte](16)
	w := writer.New(sink.NewCopyToBytes(sink.NewChannelSink(ch)))
	fw := framed.New[Event](w, codec.JSONEncoder[Event]{})
*/
package framed
