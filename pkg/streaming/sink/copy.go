package sink

import (
	"context"
	"errors"
)

// CopyToBytes turns borrowed byte slices into owned ones. Every Send copies
// its argument into a fresh slice before passing it on, so the caller may
// reuse its buffer as soon as Send returns.
type CopyToBytes struct {
	inner Sink[[]byte]
}

var _ Sink[[]byte] = (*CopyToBytes)(nil)

// NewCopyToBytes wraps inner.
func NewCopyToBytes(inner Sink[[]byte]) *CopyToBytes {
	return &CopyToBytes{inner: inner}
}

// Ready implements Sink.
func (c *CopyToBytes) Ready(ctx context.Context) error {
	return c.inner.Ready(ctx)
}

// TryReady reports readiness without blocking when the inner sink can.
// Otherwise it returns errors.ErrUnsupported and the caller should use Ready.
func (c *CopyToBytes) TryReady() (State, error) {
	if tr, ok := c.inner.(interface{ TryReady() (State, error) }); ok {
		return tr.TryReady()
	}
	return StatePending, errors.ErrUnsupported
}

// Send implements Sink.
func (c *CopyToBytes) Send(p []byte) error {
	owned := make([]byte, len(p))
	copy(owned, p)
	return c.inner.Send(owned)
}

// Flush implements Sink.
func (c *CopyToBytes) Flush(ctx context.Context) error {
	return c.inner.Flush(ctx)
}

// Close implements Sink.
func (c *CopyToBytes) Close(ctx context.Context) error {
	return c.inner.Close(ctx)
}

// Inner returns the wrapped sink.
func (c *CopyToBytes) Inner() Sink[[]byte] {
	return c.inner
}
