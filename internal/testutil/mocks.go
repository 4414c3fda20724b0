package testutil

import (
	"bytes"
	"context"
	"errors"
	"sync"
)

// ErrSimulated is returned by mocks configured to fail.
var ErrSimulated = errors.New("simulated error")

// MockWriter is a test writer that can simulate errors and short writes
// and counts writes, flushes and closes.
type MockWriter struct {
	buf         *bytes.Buffer
	mu          sync.Mutex
	errorOnNth  int
	writeCount  int
	shortWrite  int
	flushCount  int
	closed      bool
	shouldError bool
	err         error
}

// NewMockWriter creates a new MockWriter.
func NewMockWriter() *MockWriter {
	return &MockWriter{
		buf: &bytes.Buffer{},
	}
}

// Write implements io.Writer interface with configurable behavior.
func (mw *MockWriter) Write(p []byte) (int, error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()

	mw.writeCount++

	if mw.shouldError {
		return 0, mw.err
	}

	if mw.errorOnNth > 0 && mw.writeCount == mw.errorOnNth {
		return 0, ErrSimulated
	}

	if mw.shortWrite > 0 && len(p) > mw.shortWrite {
		p = p[:mw.shortWrite]
	}

	return mw.buf.Write(p)
}

// Flush records a flush call.
func (mw *MockWriter) Flush() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.flushCount++
	return nil
}

// Close marks the writer closed.
func (mw *MockWriter) Close() error {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.closed = true
	return nil
}

// String returns the current buffer contents.
func (mw *MockWriter) String() string {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.String()
}

// Bytes returns a copy of the current buffer contents.
func (mw *MockWriter) Bytes() []byte {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return append([]byte(nil), mw.buf.Bytes()...)
}

// Len returns the current buffer length.
func (mw *MockWriter) Len() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.buf.Len()
}

// WriteCount returns the number of Write calls.
func (mw *MockWriter) WriteCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.writeCount
}

// FlushCount returns the number of Flush calls.
func (mw *MockWriter) FlushCount() int {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.flushCount
}

// Closed reports whether Close was called.
func (mw *MockWriter) Closed() bool {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	return mw.closed
}

// SetErrorOnNth configures the writer to error on the nth write.
func (mw *MockWriter) SetErrorOnNth(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.errorOnNth = n
}

// SetShortWrite limits every Write to at most n bytes.
func (mw *MockWriter) SetShortWrite(n int) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shortWrite = n
}

// SetAlwaysError configures the writer to always return the given error.
func (mw *MockWriter) SetAlwaysError(err error) {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.shouldError = true
	mw.err = err
}

// Reset clears the buffer and resets counters.
func (mw *MockWriter) Reset() {
	mw.mu.Lock()
	defer mw.mu.Unlock()
	mw.buf.Reset()
	mw.writeCount = 0
	mw.flushCount = 0
	mw.shouldError = false
	mw.errorOnNth = 0
	mw.shortWrite = 0
	mw.closed = false
	mw.err = nil
}

// MockSink records every item it accepts and can be told to fail any of
// its operations. It satisfies sink.Sink[T].
type MockSink[T any] struct {
	mu       sync.Mutex
	items    []T
	ready    bool
	flushes  int
	closed   bool
	readyErr error
	sendErr  error
	flushErr error
	closeErr error
}

// NewMockSink creates an empty MockSink.
func NewMockSink[T any]() *MockSink[T] {
	return &MockSink[T]{}
}

// Ready implements sink.Sink.
func (ms *MockSink[T]) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.readyErr != nil {
		return ms.readyErr
	}
	ms.ready = true
	return nil
}

// Send implements sink.Sink.
func (ms *MockSink[T]) Send(item T) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	if ms.sendErr != nil {
		return ms.sendErr
	}
	if !ms.ready {
		return errors.New("mock sink: send without ready")
	}
	ms.ready = false
	ms.items = append(ms.items, item)
	return nil
}

// Flush implements sink.Sink.
func (ms *MockSink[T]) Flush(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.flushes++
	return ms.flushErr
}

// Close implements sink.Sink.
func (ms *MockSink[T]) Close(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closed = true
	return ms.closeErr
}

// Items returns a copy of the accepted items.
func (ms *MockSink[T]) Items() []T {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return append([]T(nil), ms.items...)
}

// Flushes returns the number of Flush calls.
func (ms *MockSink[T]) Flushes() int {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.flushes
}

// Closed reports whether Close was called.
func (ms *MockSink[T]) Closed() bool {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.closed
}

// FailReady makes Ready return err (nil clears it).
func (ms *MockSink[T]) FailReady(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.readyErr = err
}

// FailSend makes Send return err (nil clears it).
func (ms *MockSink[T]) FailSend(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.sendErr = err
}

// FailFlush makes Flush return err (nil clears it).
func (ms *MockSink[T]) FailFlush(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.flushErr = err
}

// FailClose makes Close return err (nil clears it).
func (ms *MockSink[T]) FailClose(err error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.closeErr = err
}
