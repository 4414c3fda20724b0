/*
Package streaming bridges byte-oriented writers and item-oriented sinks.

This package groups the streaming components:

  - sink: the Sink contract plus channel, writer and error-mapping adapters
  - channel: bounded channels whose slots can be reserved ahead of a send
  - writer: an io.Writer that delivers every Write as one sink item
  - codec: encoders that turn values into framed bytes
  - framed: a Sink that encodes items and writes them to an io.Writer in batches
  - throttle: a Sink wrapper that limits item rate

Basic usage:

	ch := channel.New[[]byte](1)
	w := writer.New(sink.NewCopyToBytes(sink.NewChannelSink(ch)))
	defer w.Close()

	// Blocks until the consumer makes room.
	w.Write(data)

Writers never split or merge items and never drop data under backpressure.
Every blocking call takes a context.Context or has a variant that does.
*/
package streaming
