/*
Package channel provides a bounded, backpressure-aware queue used as the
transport between a writer and its consumer.

Unlike a plain Go channel, a BackpressureChannel exposes both ends as
explicit handles that can be closed independently, supports reserving a
slot ahead of sending, and honours context cancellation on every blocking
call.

# Capacity and Reservations

Capacity is fixed at construction. A slot is taken either by a queued value
or by an outstanding Permit, and the two together never exceed Cap():

	ch := channel.New[[]byte](1)

	permit, err := ch.Reserve(ctx) // waits for a free slot
	if err != nil {
		return err
	}
	_ = permit.Send(payload) // never blocks

A permit that is not needed must be handed back with Release. Reservations
are what make the sink readiness check possible: once Reserve returns, the
following send is guaranteed to be accepted.

# Backpressure Strategies

Block (the default) parks producers until a consumer frees a slot. Error
makes Send and Reserve fail fast with ErrChannelFull:

	ch := channel.NewWithConfig[int](channel.Config{
		BufferSize: 10,
		Strategy:   channel.Error,
	})

# Closing

Close shuts the sending side. Values already queued stay receivable and
Receive reports ErrChannelClosed once the queue is drained.

CloseReceiver models a consumer that has gone away. Queued values are
discarded and every blocked or future send fails with ErrReceiverClosed.
Both closed errors match errors.Is(err, io.ErrClosedPipe).
*/
package channel
