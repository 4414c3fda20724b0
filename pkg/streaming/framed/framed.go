package framed

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"

	"github.com/rs/zerolog"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/codec"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

// DefaultHighWaterMark is the buffered byte count at which Ready flushes.
const DefaultHighWaterMark = 8 * 1024

// Config holds configuration options for Writer.
type Config struct {
	// Name identifies the writer in logs and metrics.
	// Default: "framed"
	Name string

	// HighWaterMark is the buffer size at which Ready flushes downstream.
	// Default: 8KB
	HighWaterMark int

	// InitialCapacity preallocates the encode buffer.
	// Default: HighWaterMark
	InitialCapacity int

	// Logger receives flush failures and encode errors.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Name:            "framed",
		HighWaterMark:   DefaultHighWaterMark,
		InitialCapacity: DefaultHighWaterMark,
		Logger:          zerolog.Nop(),
	}
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("framed", "name", c.Name); err != nil {
		return err
	}
	if err := validation.ValidatePositive("framed", "high_water_mark", c.HighWaterMark); err != nil {
		return err
	}
	return validation.ValidateNonNegative("framed", "initial_capacity", c.InitialCapacity)
}

// Stats holds statistics about a framed writer.
type Stats struct {
	// Items is the number of items encoded.
	Items int64

	// EncodedBytes is the total number of bytes produced by the encoder.
	EncodedBytes int64

	// EncodeErrors is the number of items the encoder rejected.
	EncodeErrors int64

	// Flushes is the number of flushes that wrote data downstream.
	Flushes int64

	// FlushedBytes is the total number of bytes written downstream.
	FlushedBytes int64
}

// Parts is the decomposed state of a Writer.
type Parts[T any] struct {
	Writer  io.Writer
	Encoder codec.Encoder[T]

	// Buffer holds encoded bytes that were never flushed.
	Buffer []byte
}

// Writer is a Sink that encodes items into a buffer and writes the buffer
// to an io.Writer. Items accumulate until the buffer reaches the high water
// mark, at which point the next Ready flushes them. Flush and Close always
// write everything that is buffered.
type Writer[T any] struct {
	w      io.Writer
	enc    codec.Encoder[T]
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool

	stats   Stats
	metrics *metrics.Registry
}

var (
	_ sink.Sink[[]byte]      = (*Writer[[]byte])(nil)
	_ metrics.Instrumentable = (*Writer[[]byte])(nil)
)

// New creates a Writer with default configuration.
func New[T any](w io.Writer, enc codec.Encoder[T]) *Writer[T] {
	return NewWithConfig(w, enc, DefaultConfig())
}

// NewWithConfig creates a Writer with the specified configuration.
func NewWithConfig[T any](w io.Writer, enc codec.Encoder[T], config Config) *Writer[T] {
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}
	if config.HighWaterMark <= 0 {
		config.HighWaterMark = DefaultConfig().HighWaterMark
	}
	if config.InitialCapacity <= 0 {
		config.InitialCapacity = config.HighWaterMark
	}

	fw := &Writer[T]{
		w:      w,
		enc:    enc,
		config: config,
		logger: config.Logger.With().Str("framed", config.Name).Logger(),
	}
	fw.buf.Grow(config.InitialCapacity)
	return fw
}

// Ready implements sink.Sink. When the buffer has reached the high water
// mark it is flushed before Ready returns.
func (fw *Writer[T]) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return errClosed()
	}
	if fw.buf.Len() >= fw.config.HighWaterMark {
		return fw.flushLocked(ctx)
	}
	return nil
}

// Send implements sink.Sink. The item is encoded into the buffer; if the
// encoder fails the buffer is restored to its previous length and nothing
// is written downstream.
func (fw *Writer[T]) Send(item T) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return errClosed()
	}

	prior := fw.buf.Len()
	if err := fw.enc.Encode(item, &fw.buf); err != nil {
		fw.buf.Truncate(prior)
		return fw.encodeFailed(err)
	}

	encoded := fw.buf.Len() - prior
	fw.stats.Items++
	fw.stats.EncodedBytes += int64(encoded)
	if fw.metrics != nil {
		fw.metrics.FramedBufferBytes.WithLabelValues(fw.config.Name).Set(float64(fw.buf.Len()))
	}
	return nil
}

// Submit waits for readiness, encodes item and, if that pushed the buffer to
// the high water mark, flushes it before returning.
func (fw *Writer[T]) Submit(ctx context.Context, item T) error {
	if err := fw.Ready(ctx); err != nil {
		return err
	}
	if err := fw.Send(item); err != nil {
		return err
	}

	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.buf.Len() >= fw.config.HighWaterMark {
		return fw.flushLocked(ctx)
	}
	return nil
}

// Flush implements sink.Sink. It writes the whole buffer downstream and then
// flushes the downstream writer if it supports flushing.
func (fw *Writer[T]) Flush(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return errClosed()
	}
	return fw.flushLocked(ctx)
}

// Close implements sink.Sink. It flushes, then closes the downstream writer.
// If the flush fails the writer stays open so Close may be retried.
func (fw *Writer[T]) Close(ctx context.Context) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	if fw.closed {
		return nil
	}
	if err := fw.flushLocked(ctx); err != nil {
		return err
	}
	fw.closed = true

	switch c := fw.w.(type) {
	case interface{ Shutdown(context.Context) error }:
		if err := c.Shutdown(ctx); err != nil {
			return sferrors.NewTransportError("framed", "shutdown", err)
		}
	case io.Closer:
		if err := c.Close(); err != nil {
			return sferrors.NewTransportError("framed", "close", err)
		}
	}
	fw.logger.Debug().Msg("framed writer closed")
	return nil
}

func (fw *Writer[T]) flushLocked(ctx context.Context) error {
	written := 0
	for fw.buf.Len() > 0 {
		if err := ctx.Err(); err != nil {
			fw.recordFlush(written)
			return err
		}

		n, err := fw.w.Write(fw.buf.Bytes())
		if n > 0 {
			fw.buf.Next(n)
			written += n
		}
		if err != nil {
			fw.recordFlush(written)
			fw.logger.Warn().Err(err).Int("buffered", fw.buf.Len()).Msg("flush failed")
			return sferrors.NewTransportError("framed", "write", err)
		}
		if n == 0 {
			fw.recordFlush(written)
			return sferrors.NewTransportError("framed", "write", io.ErrShortWrite)
		}
	}
	fw.recordFlush(written)

	switch f := fw.w.(type) {
	case interface{ Flush(context.Context) error }:
		if err := f.Flush(ctx); err != nil {
			return sferrors.NewTransportError("framed", "flush", err)
		}
	case interface{ Flush() error }:
		if err := f.Flush(); err != nil {
			return sferrors.NewTransportError("framed", "flush", err)
		}
	}
	return nil
}

func (fw *Writer[T]) recordFlush(written int) {
	if fw.buf.Len() == 0 {
		fw.buf.Reset()
	}
	if written == 0 {
		return
	}

	fw.stats.Flushes++
	fw.stats.FlushedBytes += int64(written)
	if fw.metrics != nil {
		fw.metrics.FramedFlushes.WithLabelValues(fw.config.Name).Inc()
		fw.metrics.FramedFlushBytes.WithLabelValues(fw.config.Name).Add(float64(written))
		fw.metrics.FramedBufferBytes.WithLabelValues(fw.config.Name).Set(float64(fw.buf.Len()))
	}
}

func (fw *Writer[T]) encodeFailed(err error) error {
	var ee *sferrors.EncodeError
	if !errors.As(err, &ee) {
		ee = sferrors.NewEncodeError(fw.config.Name, err)
		err = ee
	}

	fw.stats.EncodeErrors++
	if fw.metrics != nil {
		fw.metrics.EncodeErrors.WithLabelValues(fw.config.Name, ee.Encoder).Inc()
	}
	fw.logger.Debug().Err(err).Msg("item rejected by encoder")
	return err
}

// WriteBuffer returns the encoded bytes not yet written downstream. The
// slice is only valid until the next call on the writer.
func (fw *Writer[T]) WriteBuffer() []byte {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.buf.Bytes()
}

// Buffered returns the number of encoded bytes not yet written downstream.
func (fw *Writer[T]) Buffered() int {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.buf.Len()
}

// Get returns the downstream writer.
func (fw *Writer[T]) Get() io.Writer {
	return fw.w
}

// Encoder returns the encoder.
func (fw *Writer[T]) Encoder() codec.Encoder[T] {
	return fw.enc
}

// IntoInner returns the downstream writer. Buffered bytes are discarded and
// the framed writer is left closed.
func (fw *Writer[T]) IntoInner() io.Writer {
	return fw.IntoParts().Writer
}

// IntoParts returns the downstream writer, the encoder and any unflushed
// bytes. The framed writer is left closed.
func (fw *Writer[T]) IntoParts() Parts[T] {
	fw.mu.Lock()
	defer fw.mu.Unlock()

	fw.closed = true
	buffered := append([]byte(nil), fw.buf.Bytes()...)
	fw.buf.Reset()

	return Parts[T]{
		Writer:  fw.w,
		Encoder: fw.enc,
		Buffer:  buffered,
	}
}

// Stats returns statistics about the writer.
func (fw *Writer[T]) Stats() Stats {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.stats
}

// EnableMetrics implements metrics.Instrumentable.
func (fw *Writer[T]) EnableMetrics(config metrics.Config) error {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.metrics = config.Resolve()
	return nil
}

// DisableMetrics implements metrics.Instrumentable.
func (fw *Writer[T]) DisableMetrics() {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	fw.metrics = nil
}

// MetricsEnabled implements metrics.Instrumentable.
func (fw *Writer[T]) MetricsEnabled() bool {
	fw.mu.Lock()
	defer fw.mu.Unlock()
	return fw.metrics != nil
}

func errClosed() error {
	return sferrors.NewClosedError("framed writer", nil)
}
