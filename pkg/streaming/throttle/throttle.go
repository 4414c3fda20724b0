package throttle

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

// Limit is a rate in items per second.
type Limit float64

// Inf disables throttling.
var Inf = Limit(math.Inf(1))

// Every converts a minimum interval between items to a Limit.
func Every(interval time.Duration) Limit {
	if interval <= 0 {
		return Inf
	}
	return Limit(time.Second) / Limit(interval)
}

// Clock provides the current time. It can be replaced in tests.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Config holds configuration options for a throttled Sink.
type Config struct {
	// Name identifies the throttle in logs and metrics.
	// Default: "throttle"
	Name string

	// Rate is the sustained number of items per second.
	// Default: Inf
	Rate Limit

	// Burst is how many items may pass back to back after an idle period.
	// Default: 1
	Burst int

	// Clock provides the current time.
	// Default: system clock
	Clock Clock

	// Logger receives throttling events.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// DefaultConfig returns a configuration that does not throttle.
func DefaultConfig() Config {
	return Config{
		Name:   "throttle",
		Rate:   Inf,
		Burst:  1,
		Clock:  systemClock{},
		Logger: zerolog.Nop(),
	}
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if err := validation.ValidateNotEmpty("throttle", "name", c.Name); err != nil {
		return err
	}
	if c.Rate <= 0 || math.IsNaN(float64(c.Rate)) {
		return sferrors.NewValidationError("throttle", "rate", c.Rate, "must be positive").
			WithHint("use throttle.Inf to disable throttling")
	}
	return validation.ValidatePositive("throttle", "burst", c.Burst)
}

// Stats holds statistics about a throttled Sink.
type Stats struct {
	// Items is the number of items passed to the inner sink.
	Items int64

	// Waits is the number of Ready calls that had to wait for a token.
	Waits int64

	// TotalWait is the total time spent waiting for tokens.
	TotalWait time.Duration
}

// Sink limits how often items reach the inner sink. Ready takes a token
// from a bucket refilled at Rate and holding at most Burst tokens, then
// waits for the inner sink. A held token carries over to the next Ready
// if the inner sink fails, so no token is lost to an error.
type Sink[T any] struct {
	inner  sink.Sink[T]
	config Config
	logger zerolog.Logger

	mu      sync.Mutex
	tokens  float64
	last    time.Time
	holding bool
	stats   Stats

	metrics *metrics.Registry
}

var (
	_ sink.Sink[[]byte]      = (*Sink[[]byte])(nil)
	_ metrics.Instrumentable = (*Sink[[]byte])(nil)
)

// New wraps inner with the specified configuration.
func New[T any](inner sink.Sink[T], config Config) (*Sink[T], error) {
	defaults := DefaultConfig()
	if config.Name == "" {
		config.Name = defaults.Name
	}
	if config.Rate == 0 {
		config.Rate = defaults.Rate
	}
	if config.Burst == 0 {
		config.Burst = defaults.Burst
	}
	if config.Clock == nil {
		config.Clock = defaults.Clock
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Sink[T]{
		inner:  inner,
		config: config,
		logger: config.Logger.With().Str("throttle", config.Name).Logger(),
		tokens: float64(config.Burst),
		last:   config.Clock.Now(),
	}, nil
}

// Ready implements sink.Sink. It blocks until a token is available and the
// inner sink is ready, or ctx is done.
func (s *Sink[T]) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.acquire(ctx); err != nil {
		return err
	}
	return s.inner.Ready(ctx)
}

func (s *Sink[T]) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.holding || s.config.Rate == Inf {
		s.holding = true
		s.mu.Unlock()
		return nil
	}

	s.refillLocked(s.config.Clock.Now())
	if s.tokens >= 1 {
		s.tokens--
		s.holding = true
		s.mu.Unlock()
		return nil
	}

	// Take the token now and wait for the debt to clear.
	delay := time.Duration(float64(time.Second) * (1 - s.tokens) / float64(s.config.Rate))
	s.tokens--
	s.holding = true
	s.mu.Unlock()

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-ctx.Done():
		s.mu.Lock()
		s.tokens++
		s.holding = false
		s.mu.Unlock()
		return ctx.Err()
	}

	s.mu.Lock()
	s.stats.Waits++
	s.stats.TotalWait += delay
	m := s.metrics
	s.mu.Unlock()

	if m != nil {
		m.ThrottleWaits.WithLabelValues(s.config.Name).Inc()
		m.ThrottleWaitSeconds.WithLabelValues(s.config.Name).Observe(delay.Seconds())
	}
	s.logger.Debug().Dur("delay", delay).Msg("throttled")
	return nil
}

func (s *Sink[T]) refillLocked(now time.Time) {
	elapsed := now.Sub(s.last)
	if elapsed <= 0 {
		return
	}
	s.tokens = math.Min(s.tokens+elapsed.Seconds()*float64(s.config.Rate), float64(s.config.Burst))
	s.last = now
}

// Send implements sink.Sink. It spends the token taken by Ready.
func (s *Sink[T]) Send(item T) error {
	s.mu.Lock()
	if !s.holding {
		s.mu.Unlock()
		return sink.ErrNotReady
	}
	s.holding = false
	s.mu.Unlock()

	if err := s.inner.Send(item); err != nil {
		return err
	}

	s.mu.Lock()
	s.stats.Items++
	tokens := s.tokens
	m := s.metrics
	s.mu.Unlock()

	if m != nil && s.config.Rate != Inf {
		m.ThrottleTokens.WithLabelValues(s.config.Name).Set(tokens)
	}
	return nil
}

// Flush implements sink.Sink.
func (s *Sink[T]) Flush(ctx context.Context) error {
	return s.inner.Flush(ctx)
}

// Close implements sink.Sink. A held token is returned to the bucket.
func (s *Sink[T]) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.holding && s.config.Rate != Inf {
		s.tokens++
	}
	s.holding = false
	s.mu.Unlock()

	return s.inner.Close(ctx)
}

// Inner returns the wrapped sink.
func (s *Sink[T]) Inner() sink.Sink[T] {
	return s.inner
}

// Tokens returns the number of tokens currently available. It is negative
// while a Ready call is waiting.
func (s *Sink[T]) Tokens() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.config.Rate == Inf {
		return float64(s.config.Burst)
	}
	s.refillLocked(s.config.Clock.Now())
	return s.tokens
}

// Stats returns a snapshot of the throttle statistics.
func (s *Sink[T]) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// EnableMetrics implements metrics.Instrumentable.
func (s *Sink[T]) EnableMetrics(config metrics.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = config.Resolve()
	return nil
}

// DisableMetrics implements metrics.Instrumentable.
func (s *Sink[T]) DisableMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

// MetricsEnabled implements metrics.Instrumentable.
func (s *Sink[T]) MetricsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics != nil
}
