/*
Package sink defines the Sink capability and the adapters that connect
producers to it.

A Sink accepts discrete items and signals backpressure through Ready:

	if err := s.Ready(ctx); err != nil { // blocks while the sink is full
		return err
	}
	err := s.Send(item) // never blocks

Implementations in this package:

  - ChannelSink: the sending half of a channel.BackpressureChannel.
  - CopyToBytes: copies each borrowed []byte before handing it on, for
    sinks that keep the slices they are given.
  - MapErr: rewrites errors, typically with BrokenPipe so that byte writers
    see an io.ErrClosedPipe shaped error when the consumer goes away.
  - WriterSink: one Write per item on a plain io.Writer.

Forward is the consumer-side counterpart: it drains a channel into another
sink, preserving order.

The writer package turns any Sink[[]byte] into an io.Writer, and framed.Writer
is itself a Sink fed by an encoder.
*/
package sink
