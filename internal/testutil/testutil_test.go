package testutil

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		called := false
		Eventually(t, func() bool {
			called = true
			return true
		}, 100*time.Millisecond, 10*time.Millisecond)

		if !called {
			t.Error("condition function should be called")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var counter int32
		go func() {
			time.Sleep(50 * time.Millisecond)
			atomic.StoreInt32(&counter, 1)
		}()

		Eventually(t, func() bool {
			return atomic.LoadInt32(&counter) == 1
		}, time.Second, 10*time.Millisecond)
	})
}

func TestBlocked(t *testing.T) {
	open := make(chan struct{})
	if !Blocked(open, 20*time.Millisecond) {
		t.Error("open channel should report blocked")
	}

	closed := make(chan struct{})
	close(closed)
	if Blocked(closed, time.Second) {
		t.Error("closed channel should not report blocked")
	}
}

func TestMockWriter(t *testing.T) {
	mw := NewMockWriter()

	n, err := mw.Write([]byte("hello"))
	AssertNoError(t, err)
	AssertEqual(t, n, 5)

	mw.SetShortWrite(2)
	n, err = mw.Write([]byte("world"))
	AssertNoError(t, err)
	AssertEqual(t, n, 2)
	AssertEqual(t, mw.String(), "hellowo")

	mw.SetErrorOnNth(3)
	_, err = mw.Write([]byte("x"))
	AssertErrorIs(t, err, ErrSimulated)

	AssertNoError(t, mw.Flush())
	AssertNoError(t, mw.Close())
	AssertEqual(t, mw.FlushCount(), 1)
	AssertEqual(t, mw.Closed(), true)

	mw.Reset()
	AssertEqual(t, mw.Len(), 0)
	AssertEqual(t, mw.WriteCount(), 0)
}

func TestMockSink(t *testing.T) {
	ctx := context.Background()
	ms := NewMockSink[string]()

	AssertError(t, ms.Send("early"))

	AssertNoError(t, ms.Ready(ctx))
	AssertNoError(t, ms.Send("a"))
	AssertNoError(t, ms.Ready(ctx))
	AssertNoError(t, ms.Send("b"))

	items := ms.Items()
	AssertEqual(t, len(items), 2)
	AssertEqual(t, items[0], "a")
	AssertEqual(t, items[1], "b")

	ms.FailReady(ErrSimulated)
	AssertErrorIs(t, ms.Ready(ctx), ErrSimulated)

	AssertNoError(t, ms.Flush(ctx))
	AssertNoError(t, ms.Close(ctx))
	AssertEqual(t, ms.Flushes(), 1)
	AssertEqual(t, ms.Closed(), true)
}

func TestWithTimeout(t *testing.T) {
	ctx, cancel := WithTimeout(t)
	defer cancel()

	deadline, ok := ctx.Deadline()
	if !ok {
		t.Fatal("context should have a deadline")
	}

	if time.Until(deadline) > TestTimeout {
		t.Errorf("deadline is too far in the future")
	}
}

func TestAssertions(t *testing.T) {
	AssertNoError(t, nil)
	AssertError(t, context.Canceled)
	AssertErrorIs(t, context.Canceled, context.Canceled)
	AssertEqual(t, 42, 42)
	AssertBytes(t, []byte{1, 2}, []byte{1, 2})
}
