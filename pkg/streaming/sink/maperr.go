package sink

import "context"

type mapErr[T any] struct {
	inner Sink[T]
	fn    func(error) error
}

// MapErr returns a sink that passes every non-nil error of inner through fn.
//
//	s := sink.MapErr[[]byte](transport, sink.BrokenPipe)
func MapErr[T any](inner Sink[T], fn func(error) error) Sink[T] {
	return &mapErr[T]{inner: inner, fn: fn}
}

func (m *mapErr[T]) Ready(ctx context.Context) error {
	return m.mapped(m.inner.Ready(ctx))
}

func (m *mapErr[T]) Send(item T) error {
	return m.mapped(m.inner.Send(item))
}

func (m *mapErr[T]) Flush(ctx context.Context) error {
	return m.mapped(m.inner.Flush(ctx))
}

func (m *mapErr[T]) Close(ctx context.Context) error {
	return m.mapped(m.inner.Close(ctx))
}

func (m *mapErr[T]) mapped(err error) error {
	if err == nil {
		return nil
	}
	return m.fn(err)
}
