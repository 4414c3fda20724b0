package redissink

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

// Config holds configuration for a Redis Streams sink.
type Config struct {
	// Redis client used for every command. The caller owns it.
	Redis redis.UniversalClient

	// Stream is the key of the Redis stream items are appended to.
	Stream string

	// Field is the entry field holding the item payload.
	// Default: "data"
	Field string

	// MaxLen is the stream length at which Ready starts waiting for
	// consumers to catch up. Zero disables backpressure.
	MaxLen int64

	// PollInterval is how often Ready re-checks the stream length.
	// Default: 100ms
	PollInterval time.Duration

	// RedisTimeout is the timeout for individual Redis commands.
	// Default: 500ms
	RedisTimeout time.Duration

	// InstanceID is stored with every entry to identify the producer.
	// Default: generated from hostname, pid and random bytes
	InstanceID string

	// Logger receives backpressure and failure events.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// DefaultConfig returns a default configuration. Redis and Stream must
// still be set.
func DefaultConfig() Config {
	return Config{
		Field:        "data",
		PollInterval: 100 * time.Millisecond,
		RedisTimeout: 500 * time.Millisecond,
		InstanceID:   generateInstanceID(),
		Logger:       zerolog.Nop(),
	}
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if c.Redis == nil {
		return sferrors.NewValidationError("redissink", "redis", nil, "client is required")
	}
	if err := validation.ValidateNotEmpty("redissink", "stream", c.Stream); err != nil {
		return err
	}
	if c.MaxLen < 0 {
		return sferrors.NewValidationError("redissink", "max_len", c.MaxLen, "must be non-negative").
			WithHint("use 0 to disable backpressure")
	}
	return nil
}

// applyConfigDefaults sets default values for unspecified config fields.
func applyConfigDefaults(config Config) Config {
	defaults := DefaultConfig()
	if config.Field == "" {
		config.Field = defaults.Field
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.RedisTimeout <= 0 {
		config.RedisTimeout = defaults.RedisTimeout
	}
	if config.InstanceID == "" {
		config.InstanceID = defaults.InstanceID
	}
	return config
}

// Stats holds statistics about a Redis sink.
type Stats struct {
	// Sent is the number of entries appended.
	Sent int64

	// LastID is the ID Redis assigned to the last entry.
	LastID string

	// Polls is the number of times Ready found the stream full.
	Polls int64
}

// Sink appends every item as one entry to a Redis stream. An entry is
// written with a single XADD, so consumers never see a partial item.
type Sink struct {
	config Config
	logger zerolog.Logger

	mu     sync.Mutex
	ready  bool
	closed bool
	stats  Stats

	metrics *metrics.Registry
}

var (
	_ sink.Sink[[]byte]      = (*Sink)(nil)
	_ metrics.Instrumentable = (*Sink)(nil)
)

// New creates a Sink for the configured stream.
func New(config Config) (*Sink, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = applyConfigDefaults(config)

	return &Sink{
		config: config,
		logger: config.Logger.With().Str("transport", "redis").Str("stream", config.Stream).Logger(),
	}, nil
}

// Ready implements sink.Sink. With MaxLen set it blocks while the stream
// holds MaxLen or more entries, polling every PollInterval.
func (s *Sink) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.checkOpen(); err != nil {
		return err
	}

	if s.config.MaxLen > 0 {
		if err := s.waitForRoom(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errClosed(nil)
	}
	s.ready = true
	return nil
}

func (s *Sink) waitForRoom(ctx context.Context) error {
	var ticker *time.Ticker
	for {
		length, err := s.xlen(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return s.fail("xlen", err)
		}
		if length < s.config.MaxLen {
			if ticker != nil {
				ticker.Stop()
			}
			return nil
		}

		s.mu.Lock()
		s.stats.Polls++
		s.mu.Unlock()

		if ticker == nil {
			s.logger.Debug().Int64("length", length).Msg("stream full, waiting")
			ticker = time.NewTicker(s.config.PollInterval)
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			ticker.Stop()
			return ctx.Err()
		}
		if err := s.checkOpen(); err != nil {
			ticker.Stop()
			return err
		}
	}
}

func (s *Sink) xlen(ctx context.Context) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.config.RedisTimeout)
	defer cancel()
	return s.config.Redis.XLen(ctx, s.config.Stream).Result()
}

// Send implements sink.Sink. The entry is appended with XADD before Send
// returns.
func (s *Sink) Send(p []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errClosed(nil)
	}
	if !s.ready {
		s.mu.Unlock()
		return sink.ErrNotReady
	}
	s.ready = false
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), s.config.RedisTimeout)
	defer cancel()

	id, err := s.config.Redis.XAdd(ctx, &redis.XAddArgs{
		Stream: s.config.Stream,
		ID:     "*",
		Values: map[string]interface{}{
			s.config.Field: p,
			"producer":     s.config.InstanceID,
		},
	}).Result()
	if err != nil {
		return s.fail("xadd", err)
	}

	s.mu.Lock()
	s.stats.Sent++
	s.stats.LastID = id
	if s.metrics != nil {
		s.metrics.TransportSends.WithLabelValues("redis", s.config.Stream).Inc()
	}
	s.mu.Unlock()
	return nil
}

// Flush implements sink.Sink. Entries are appended on Send, so there is
// nothing to flush.
func (s *Sink) Flush(ctx context.Context) error {
	return s.checkOpen()
}

// Close implements sink.Sink. The Redis client stays open; it belongs to
// the caller.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	s.ready = false
	return nil
}

// Stats returns statistics about the sink.
func (s *Sink) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// EnableMetrics implements metrics.Instrumentable.
func (s *Sink) EnableMetrics(config metrics.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = config.Resolve()
	return nil
}

// DisableMetrics implements metrics.Instrumentable.
func (s *Sink) DisableMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

// MetricsEnabled implements metrics.Instrumentable.
func (s *Sink) MetricsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics != nil
}

func (s *Sink) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errClosed(nil)
	}
	return nil
}

// fail maps a Redis error. A closed client means the sink can never
// deliver again; anything else may be retried.
func (s *Sink) fail(op string, err error) error {
	s.mu.Lock()
	if s.metrics != nil {
		s.metrics.TransportErrors.WithLabelValues("redis", s.config.Stream, op).Inc()
	}
	s.mu.Unlock()

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return sferrors.NewTransportError("redis", op, fmt.Errorf("%w: %w", sferrors.ErrTimeout, err))
	}
	if errors.Is(err, redis.ErrClosed) {
		return errClosed(err)
	}

	s.logger.Warn().Str("op", op).Err(err).Msg("redis command failed")
	return sferrors.NewTransportError("redis", op, err)
}

func errClosed(cause error) error {
	return sferrors.NewClosedError("redis sink", cause)
}

// generateInstanceID creates a unique identifier for this producer.
func generateInstanceID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 4)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s-%d-%x", hostname, os.Getpid(), randomBytes)
}
