package sink

import (
	"context"
	"sync"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/channel"
)

// ChannelSinkConfig holds configuration options for ChannelSink.
type ChannelSinkConfig struct {
	// Name identifies the channel in metrics.
	// Default: "channel"
	Name string
}

// ChannelSink exposes the sending half of a BackpressureChannel as a Sink.
// Ready reserves a slot, so the Send that follows never blocks and the
// channel never holds more than its capacity.
type ChannelSink[T any] struct {
	ch   channel.BackpressureChannel[T]
	name string

	mu      sync.Mutex
	permit  *channel.Permit[T]
	closed  bool
	metrics *metrics.Registry
}

var (
	_ Sink[int]              = (*ChannelSink[int])(nil)
	_ metrics.Instrumentable = (*ChannelSink[int])(nil)
)

// NewChannelSink wraps the sending side of ch.
func NewChannelSink[T any](ch channel.BackpressureChannel[T]) *ChannelSink[T] {
	return NewChannelSinkWithConfig(ch, ChannelSinkConfig{})
}

// NewChannelSinkWithConfig wraps the sending side of ch with the specified configuration.
func NewChannelSinkWithConfig[T any](ch channel.BackpressureChannel[T], config ChannelSinkConfig) *ChannelSink[T] {
	if config.Name == "" {
		config.Name = "channel"
	}
	return &ChannelSink[T]{ch: ch, name: config.Name}
}

// Ready implements Sink. Calling it while a slot is already held is a no-op.
func (s *ChannelSink[T]) Ready(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errSinkClosed()
	}
	if s.permit != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	permit, err := s.ch.Reserve(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		_ = permit.Release()
		return errSinkClosed()
	}
	if s.permit != nil {
		// Another Ready won the race.
		_ = permit.Release()
		return nil
	}
	s.permit = permit
	return nil
}

// TryReady reserves a slot without blocking and reports the resulting state.
func (s *ChannelSink[T]) TryReady() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return StateClosed, errSinkClosed()
	}
	if s.permit != nil {
		return StateReady, nil
	}

	permit, err := s.ch.TryReserve()
	switch {
	case err == channel.ErrChannelFull:
		return StatePending, nil
	case err != nil:
		return StateClosed, err
	}

	s.permit = permit
	return StateReady, nil
}

// Send implements Sink. It consumes the slot reserved by Ready.
func (s *ChannelSink[T]) Send(item T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed()
	}
	if s.permit == nil {
		return ErrNotReady
	}

	permit := s.permit
	s.permit = nil
	if err := permit.Send(item); err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.ChannelSends.WithLabelValues(s.name).Inc()
		s.metrics.ChannelDepth.WithLabelValues(s.name).Set(float64(s.ch.Len()))
	}
	return nil
}

// Flush implements Sink. Items are delivered on Send, so there is nothing
// to flush.
func (s *ChannelSink[T]) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errSinkClosed()
	}
	return nil
}

// Close implements Sink. Any reserved slot is released and the channel is
// closed for sending; values already queued remain deliverable.
func (s *ChannelSink[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if s.permit != nil {
		_ = s.permit.Release()
		s.permit = nil
	}
	return s.ch.Close()
}

// State reports the current readiness of the sink.
func (s *ChannelSink[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.closed:
		return StateClosed
	case s.permit != nil:
		return StateReady
	default:
		return StatePending
	}
}

// Channel returns the underlying channel.
func (s *ChannelSink[T]) Channel() channel.BackpressureChannel[T] {
	return s.ch
}

// EnableMetrics implements metrics.Instrumentable.
func (s *ChannelSink[T]) EnableMetrics(config metrics.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = config.Resolve()
	return nil
}

// DisableMetrics implements metrics.Instrumentable.
func (s *ChannelSink[T]) DisableMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

// MetricsEnabled implements metrics.Instrumentable.
func (s *ChannelSink[T]) MetricsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics != nil
}

func errSinkClosed() error {
	return sferrors.NewClosedError("channel sink", nil)
}
