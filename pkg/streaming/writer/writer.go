package writer

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

// ErrWriterClosed is returned when attempting to write to a closed writer.
var ErrWriterClosed error = sferrors.NewClosedError("sink writer", nil)

// State is the position of a SinkWriter in its write cycle.
type State int32

const (
	// StateIdle means no write is in progress.
	StateIdle State = iota

	// StateAwaitingReady means a write is waiting for the sink to accept an item.
	StateAwaitingReady

	// StateItemInFlight means the sink granted readiness and the item is being sent.
	StateItemInFlight

	// StateClosed means the writer accepts nothing more.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingReady:
		return "awaiting_ready"
	case StateItemInFlight:
		return "item_in_flight"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Stats holds statistics about writer activity.
type Stats struct {
	// WriteCount is the number of writes delivered to the sink.
	WriteCount int64

	// BytesWritten is the total number of bytes delivered.
	BytesWritten int64

	// FlushCount is the number of successful flushes.
	FlushCount int64

	// ErrorCount is the number of failed operations.
	ErrorCount int64

	// BackpressureWaits is the number of writes that found the sink busy.
	BackpressureWaits int64

	// TotalReadyWait is the total time spent waiting for readiness.
	TotalReadyWait time.Duration

	// LastWriteTime is the timestamp of the last delivered write.
	LastWriteTime time.Time
}

// Config holds configuration options for SinkWriter.
type Config struct {
	// Name identifies the writer in logs and metrics.
	// Default: "sink_writer"
	Name string

	// ChunkSize is the read size used by ReadFrom; every chunk becomes one item.
	// Default: 32KB
	ChunkSize int

	// Logger receives state transitions and failures.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		Name:      "sink_writer",
		ChunkSize: 32 * 1024, // 32KB
		Logger:    zerolog.Nop(),
	}
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("writer", "name", c.Name); err != nil {
		return err
	}
	return validation.ValidatePositive("writer", "chunk_size", c.ChunkSize)
}

// tryReadier is implemented by sinks that can report readiness without
// blocking. errors.ErrUnsupported means the sink cannot tell.
type tryReadier interface {
	TryReady() (sink.State, error)
}

// SinkWriter adapts a Sink of byte slices into an io.Writer. Every Write
// becomes exactly one item: the writer waits for the sink to become ready,
// sends p and reports len(p). Nothing is buffered, so the sink's own
// readiness is the only backpressure.
//
// The slice is handed to the sink as is. Wrap the sink in sink.CopyToBytes
// when it keeps items beyond the Send call.
type SinkWriter struct {
	sink   sink.Sink[[]byte]
	config Config
	logger zerolog.Logger

	// mu serializes Write, Flush and Shutdown.
	mu       sync.Mutex
	state    atomic.Int32
	shutdown bool
	detached bool

	stats   Stats
	statsMu sync.RWMutex
	metrics *metrics.Registry
}

var (
	_ io.Writer       = (*SinkWriter)(nil)
	_ io.StringWriter = (*SinkWriter)(nil)
	_ io.ReaderFrom   = (*SinkWriter)(nil)
	_ io.Closer       = (*SinkWriter)(nil)

	_ metrics.Instrumentable = (*SinkWriter)(nil)
)

// New creates a SinkWriter over s with default configuration.
func New(s sink.Sink[[]byte]) *SinkWriter {
	return NewWithConfig(s, DefaultConfig())
}

// NewWithConfig creates a SinkWriter over s with the specified configuration.
func NewWithConfig(s sink.Sink[[]byte], config Config) *SinkWriter {
	if config.Name == "" {
		config.Name = DefaultConfig().Name
	}
	if config.ChunkSize <= 0 {
		config.ChunkSize = DefaultConfig().ChunkSize
	}

	return &SinkWriter{
		sink:   s,
		config: config,
		logger: config.Logger.With().Str("writer", config.Name).Logger(),
	}
}

// Write implements io.Writer. It returns len(p) once the sink has accepted
// p as a single item, or 0 and the error.
func (w *SinkWriter) Write(p []byte) (int, error) {
	return w.WriteContext(context.Background(), p)
}

// WriteString implements io.StringWriter.
func (w *SinkWriter) WriteString(s string) (int, error) {
	return w.WriteContext(context.Background(), []byte(s))
}

// WriteContext writes p as one item, giving up the readiness wait when ctx is done.
func (w *SinkWriter) WriteContext(ctx context.Context, p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.writeLocked(ctx, p)
}

// ReadFrom implements io.ReaderFrom. Each chunk read from r becomes one item.
func (w *SinkWriter) ReadFrom(r io.Reader) (int64, error) {
	return w.ReadFromContext(context.Background(), r)
}

// ReadFromContext copies r into the sink chunk by chunk until EOF.
func (w *SinkWriter) ReadFromContext(ctx context.Context, r io.Reader) (int64, error) {
	var total int64
	buf := make([]byte, w.config.ChunkSize)

	for {
		n, rerr := r.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])

			w.mu.Lock()
			written, err := w.writeLocked(ctx, chunk)
			w.mu.Unlock()

			total += int64(written)
			if err != nil {
				return total, err
			}
		}
		if rerr == io.EOF {
			return total, nil
		}
		if rerr != nil {
			return total, rerr
		}
	}
}

func (w *SinkWriter) writeLocked(ctx context.Context, p []byte) (int, error) {
	if w.State() == StateClosed {
		return 0, ErrWriterClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	w.setState(StateAwaitingReady)
	if err := w.awaitReady(ctx); err != nil {
		return 0, w.fail("ready", err)
	}

	w.setState(StateItemInFlight)
	if err := w.sink.Send(p); err != nil {
		return 0, w.fail("send", err)
	}
	w.setState(StateIdle)

	w.updateStats(func(s *Stats) {
		s.WriteCount++
		s.BytesWritten += int64(len(p))
		s.LastWriteTime = time.Now()
	}, func(r *metrics.Registry) {
		r.WriterWrites.WithLabelValues(w.config.Name).Inc()
		r.WriterBytesWritten.WithLabelValues(w.config.Name).Add(float64(len(p)))
	})

	return len(p), nil
}

// awaitReady waits for the sink, recording the wait when it was not ready at once.
func (w *SinkWriter) awaitReady(ctx context.Context) error {
	counted := false
	if tr, ok := w.sink.(tryReadier); ok {
		state, err := tr.TryReady()
		switch {
		case errors.Is(err, errors.ErrUnsupported):
		case err != nil:
			return err
		case state == sink.StateReady:
			return nil
		default:
			counted = true
		}
	}

	start := time.Now()
	err := w.sink.Ready(ctx)
	waited := time.Since(start)

	w.updateStats(func(s *Stats) {
		if counted {
			s.BackpressureWaits++
		}
		s.TotalReadyWait += waited
	}, func(r *metrics.Registry) {
		if counted {
			r.BackpressureWaits.WithLabelValues(w.config.Name).Inc()
		}
		r.BackpressureWaitSeconds.WithLabelValues(w.config.Name).Observe(waited.Seconds())
	})

	return err
}

// Flush asks the sink to push out anything it has buffered.
func (w *SinkWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.State() == StateClosed {
		return ErrWriterClosed
	}

	if err := w.sink.Flush(ctx); err != nil {
		return w.fail("flush", err)
	}

	w.updateStats(func(s *Stats) {
		s.FlushCount++
	}, func(r *metrics.Registry) {
		r.WriterFlushes.WithLabelValues(w.config.Name).Inc()
	})
	return nil
}

// Shutdown closes the writer and then the sink. Writes after Shutdown fail
// with a closed error, even if closing the sink failed. A failed Shutdown may
// be retried; once the sink has closed, Shutdown returns nil.
func (w *SinkWriter) Shutdown(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.shutdown {
		return nil
	}
	w.setState(StateClosed)

	if w.detached {
		w.shutdown = true
		return nil
	}

	if err := w.sink.Close(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("sink close failed")
		return err
	}
	w.shutdown = true
	w.logger.Debug().Msg("writer shut down")
	return nil
}

// Close implements io.Closer.
func (w *SinkWriter) Close() error {
	return w.Shutdown(context.Background())
}

// State returns the current state. It is safe to call from any goroutine.
func (w *SinkWriter) State() State {
	return State(w.state.Load())
}

// IsClosed returns true if the writer is closed.
func (w *SinkWriter) IsClosed() bool {
	return w.State() == StateClosed
}

// Get returns the underlying sink.
func (w *SinkWriter) Get() sink.Sink[[]byte] {
	return w.sink
}

// IntoInner detaches the sink without closing it. The writer is left closed.
func (w *SinkWriter) IntoInner() sink.Sink[[]byte] {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.detached = true
	w.setState(StateClosed)
	return w.sink
}

// Stats returns statistics about the writer. It is safe to call from any goroutine.
func (w *SinkWriter) Stats() Stats {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.stats
}

// EnableMetrics implements metrics.Instrumentable.
func (w *SinkWriter) EnableMetrics(config metrics.Config) error {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.metrics = config.Resolve()
	return nil
}

// DisableMetrics implements metrics.Instrumentable.
func (w *SinkWriter) DisableMetrics() {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	w.metrics = nil
}

// MetricsEnabled implements metrics.Instrumentable.
func (w *SinkWriter) MetricsEnabled() bool {
	w.statsMu.RLock()
	defer w.statsMu.RUnlock()
	return w.metrics != nil
}

// fail records err and moves the writer to Closed when the sink is gone,
// or back to Idle otherwise.
func (w *SinkWriter) fail(op string, err error) error {
	kind := errorKind(err)

	if sferrors.IsClosed(err) {
		w.setState(StateClosed)
		w.logger.Debug().Str("op", op).Err(err).Msg("sink closed")
	} else {
		w.setState(StateIdle)
		if kind != "canceled" {
			w.logger.Warn().Str("op", op).Err(err).Msg("write failed")
		}
	}

	w.updateStats(func(s *Stats) {
		s.ErrorCount++
	}, func(r *metrics.Registry) {
		r.WriterErrors.WithLabelValues(w.config.Name, kind).Inc()
	})
	return err
}

func errorKind(err error) string {
	var te *sferrors.TransportError
	switch {
	case sferrors.IsClosed(err):
		return "closed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	case errors.Is(err, sferrors.ErrEncode):
		return "encode"
	case errors.As(err, &te):
		return "transport"
	default:
		return "other"
	}
}

func (w *SinkWriter) setState(s State) {
	w.state.Store(int32(s))
}

// updateStats safely updates statistics and, when enabled, metrics.
func (w *SinkWriter) updateStats(updater func(*Stats), observe func(*metrics.Registry)) {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	updater(&w.stats)
	if w.metrics != nil && observe != nil {
		observe(w.metrics)
	}
}
