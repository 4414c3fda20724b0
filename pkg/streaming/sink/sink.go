package sink

import (
	"context"
	"errors"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// Sink is a push-based consumer of discrete items with explicit readiness.
//
// A producer calls Ready before every Send. Ready blocks until the sink can
// accept exactly one item, or fails. Send must not block; calling it without
// a preceding successful Ready returns ErrNotReady. Once Send returns nil
// the sink owns the item and the caller must not touch it again.
type Sink[T any] interface {
	// Ready waits until one item may be sent.
	Ready(ctx context.Context) error

	// Send hands one item to the sink.
	Send(item T) error

	// Flush pushes any items buffered by the sink to their destination.
	Flush(ctx context.Context) error

	// Close flushes and releases the sink. No sends are accepted afterwards.
	Close(ctx context.Context) error
}

// State describes whether a sink can currently accept an item.
type State int

const (
	// StatePending means the sink has no capacity reserved.
	StatePending State = iota

	// StateReady means the next Send will be accepted.
	StateReady

	// StateClosed means the sink accepts nothing more.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ErrNotReady is returned by Send when no readiness was granted.
var ErrNotReady = sferrors.ErrNotReady

// SendContext waits for s to become ready and sends item.
func SendContext[T any](ctx context.Context, s Sink[T], item T) error {
	if err := s.Ready(ctx); err != nil {
		return err
	}
	return s.Send(item)
}

// BrokenPipe maps err to the I/O shaped closed error used by writers.
// Context errors and errors that already report closure pass through.
func BrokenPipe(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case sferrors.IsClosed(err):
		return err
	default:
		return sferrors.NewClosedError("sink", err)
	}
}
