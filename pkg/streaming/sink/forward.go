package sink

import (
	"context"

	"github.com/vnykmshr/sinkflow/pkg/streaming/channel"
)

// Forward drains rx into dst until rx is closed and empty, ctx is done, or
// dst fails. Items reach dst in the order they were received. dst is
// flushed once the channel is drained; it is never closed by Forward.
// The returned count is the number of items dst accepted.
func Forward[T any](ctx context.Context, rx channel.BackpressureChannel[T], dst Sink[T]) (int, error) {
	var n int
	for {
		item, err := rx.Receive(ctx)
		if err == channel.ErrChannelClosed {
			return n, dst.Flush(ctx)
		}
		if err != nil {
			return n, err
		}

		if err := SendContext(ctx, dst, item); err != nil {
			return n, err
		}
		n++
	}
}
