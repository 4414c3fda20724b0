package sink

import (
	"context"
	"io"
	"sync"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
)

// WriterSink delivers each item as one complete Write to an io.Writer.
// It is the simplest user-defined sink and is mostly used at the consumer
// end of a pipeline (stdout, files).
type WriterSink struct {
	mu     sync.Mutex
	w      io.Writer
	ready  bool
	closed bool
}

var _ Sink[[]byte] = (*WriterSink)(nil)

// NewWriterSink wraps w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Ready implements Sink.
func (s *WriterSink) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sferrors.NewClosedError("writer sink", nil)
	}
	s.ready = true
	return nil
}

// Send implements Sink. Short writes are retried until the item is complete.
func (s *WriterSink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return sferrors.NewClosedError("writer sink", nil)
	}
	if !s.ready {
		return ErrNotReady
	}
	s.ready = false

	for len(p) > 0 {
		n, err := s.w.Write(p)
		if err != nil {
			return sferrors.NewTransportError("writer sink", "Write", err)
		}
		if n == 0 {
			return sferrors.NewTransportError("writer sink", "Write", io.ErrShortWrite)
		}
		p = p[n:]
	}
	return nil
}

// Flush implements Sink. It flushes w if w supports it.
func (s *WriterSink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if f, ok := s.w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return sferrors.NewTransportError("writer sink", "Flush", err)
		}
	}
	return nil
}

// Close implements Sink. It flushes and then closes w if w is an io.Closer.
func (s *WriterSink) Close(ctx context.Context) error {
	if err := s.Flush(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if c, ok := s.w.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
