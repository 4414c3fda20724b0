package throttle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	tu "github.com/vnykmshr/sinkflow/internal/testutil"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (m *mockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

func (m *mockClock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

func newThrottled(t *testing.T, rate Limit, burst int, clock Clock) (*Sink[int], *tu.MockSink[int]) {
	t.Helper()
	inner := tu.NewMockSink[int]()
	s, err := New[int](inner, Config{Rate: rate, Burst: burst, Clock: clock})
	tu.AssertNoError(t, err)
	return s, inner
}

func send(ctx context.Context, s *Sink[int], v int) error {
	return sink.SendContext[int](ctx, s, v)
}

func TestEvery(t *testing.T) {
	tu.AssertEqual(t, Every(100*time.Millisecond), Limit(10))
	tu.AssertEqual(t, Every(0), Inf)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{"default", DefaultConfig(), false},
		{"negative rate", Config{Name: "t", Rate: -1, Burst: 1}, true},
		{"zero burst", Config{Name: "t", Rate: 10, Burst: 0}, true},
		{"no name", Config{Rate: 10, Burst: 1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				tu.AssertError(t, err)
				if !sferrors.IsValidationError(err) {
					t.Errorf("expected validation error, got %v", err)
				}
				return
			}
			tu.AssertNoError(t, err)
		})
	}
}

func TestNewRejectsNegativeRate(t *testing.T) {
	_, err := New[int](tu.NewMockSink[int](), Config{Rate: -5})
	tu.AssertError(t, err)
}

func TestBurstPassesImmediately(t *testing.T) {
	clock := &mockClock{now: time.Unix(0, 0)}
	s, inner := newThrottled(t, 1, 3, clock)

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()

	for i := 1; i <= 3; i++ {
		tu.AssertNoError(t, send(ctx, s, i))
	}

	tu.AssertEqual(t, len(inner.Items()), 3)
	tu.AssertEqual(t, s.Stats().Waits, int64(0))
	tu.AssertEqual(t, s.Tokens(), float64(0))
}

func TestRefill(t *testing.T) {
	clock := &mockClock{now: time.Unix(0, 0)}
	s, _ := newThrottled(t, 10, 2, clock)

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()

	tu.AssertNoError(t, send(ctx, s, 1))
	tu.AssertNoError(t, send(ctx, s, 2))

	clock.Advance(100 * time.Millisecond)
	tu.AssertEqual(t, s.Tokens(), float64(1))

	clock.Advance(time.Hour)
	tu.AssertEqual(t, s.Tokens(), float64(2))
}

func TestReadyWaitsForToken(t *testing.T) {
	s, inner := newThrottled(t, 50, 1, nil)

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()

	start := time.Now()
	for i := 0; i < 3; i++ {
		tu.AssertNoError(t, send(ctx, s, i))
	}
	elapsed := time.Since(start)

	if elapsed < 30*time.Millisecond {
		t.Errorf("expected throttling, three items took %v", elapsed)
	}
	tu.AssertEqual(t, len(inner.Items()), 3)

	stats := s.Stats()
	if stats.Waits < 1 {
		t.Errorf("expected at least one wait, got %d", stats.Waits)
	}
	tu.AssertEqual(t, stats.Items, int64(3))
}

func TestCancelledReadyReturnsToken(t *testing.T) {
	clock := &mockClock{now: time.Unix(0, 0)}
	s, inner := newThrottled(t, 1, 1, clock)

	tu.AssertNoError(t, send(context.Background(), s, 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Ready(ctx)
	tu.AssertErrorIs(t, err, context.DeadlineExceeded)
	tu.AssertEqual(t, s.Tokens(), float64(0))

	// The cancelled Ready left nothing to spend.
	tu.AssertErrorIs(t, s.Send(2), sink.ErrNotReady)
	tu.AssertEqual(t, len(inner.Items()), 1)
}

func TestHeldTokenSurvivesInnerFailure(t *testing.T) {
	clock := &mockClock{now: time.Unix(0, 0)}
	s, inner := newThrottled(t, 1, 1, clock)

	inner.FailReady(tu.ErrSimulated)
	err := s.Ready(context.Background())
	tu.AssertErrorIs(t, err, tu.ErrSimulated)

	// The bucket is empty, but the token taken above is still held.
	inner.FailReady(nil)
	tu.AssertNoError(t, s.Ready(context.Background()))
	tu.AssertNoError(t, s.Send(7))
	tu.AssertEqual(t, inner.Items()[0], 7)
}

func TestSendWithoutReady(t *testing.T) {
	s, inner := newThrottled(t, Inf, 1, nil)

	tu.AssertErrorIs(t, s.Send(1), sink.ErrNotReady)
	tu.AssertEqual(t, len(inner.Items()), 0)
}

func TestSendErrorPassesThrough(t *testing.T) {
	s, inner := newThrottled(t, Inf, 1, nil)
	inner.FailSend(tu.ErrSimulated)

	tu.AssertNoError(t, s.Ready(context.Background()))
	err := s.Send(1)
	if !errors.Is(err, tu.ErrSimulated) {
		t.Fatalf("expected simulated error, got %v", err)
	}
	tu.AssertEqual(t, s.Stats().Items, int64(0))
}

func TestCloseReturnsHeldToken(t *testing.T) {
	clock := &mockClock{now: time.Unix(0, 0)}
	s, inner := newThrottled(t, 1, 1, clock)

	tu.AssertNoError(t, s.Ready(context.Background()))
	tu.AssertEqual(t, s.Tokens(), float64(0))

	tu.AssertNoError(t, s.Close(context.Background()))
	tu.AssertEqual(t, s.Tokens(), float64(1))
	if !inner.Closed() {
		t.Error("expected inner sink to be closed")
	}
}

func TestFlushForwards(t *testing.T) {
	s, inner := newThrottled(t, Inf, 1, nil)

	tu.AssertNoError(t, s.Flush(context.Background()))
	tu.AssertEqual(t, inner.Flushes(), 1)
	if s.Inner() != sink.Sink[int](inner) {
		t.Error("Inner should return the wrapped sink")
	}
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := New[int](tu.NewMockSink[int](), Config{Name: "egress", Rate: 100, Burst: 1})
	tu.AssertNoError(t, err)
	tu.AssertNoError(t, s.EnableMetrics(metrics.Config{Enabled: true, Registry: reg}))
	if !s.MetricsEnabled() {
		t.Fatal("expected metrics to be enabled")
	}

	ctx, cancel := tu.WithTimeout(t)
	defer cancel()
	tu.AssertNoError(t, send(ctx, s, 1))
	tu.AssertNoError(t, send(ctx, s, 2))

	r := metrics.For(reg)
	if got := testutil.ToFloat64(r.ThrottleWaits.WithLabelValues("egress")); got != 1 {
		t.Errorf("expected 1 throttle wait, got %v", got)
	}

	s.DisableMetrics()
	if s.MetricsEnabled() {
		t.Error("expected metrics to be disabled")
	}
}
