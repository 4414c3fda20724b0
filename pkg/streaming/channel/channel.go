package channel

import (
	"context"
	"errors"
	"sync"
	"time"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
)

// BackpressureStrategy defines how the channel handles backpressure when full.
type BackpressureStrategy int

const (
	// Block strategy blocks the producer until space is available.
	Block BackpressureStrategy = iota

	// Error strategy returns ErrChannelFull when the buffer is full.
	Error
)

// String returns the strategy name.
func (s BackpressureStrategy) String() string {
	switch s {
	case Block:
		return "block"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// ErrChannelFull is returned when the channel buffer is full and the
// operation may not wait.
var ErrChannelFull = errors.New("channel buffer is full")

// ErrChannelClosed is returned when sending on a channel whose sending side
// has been closed, or receiving from a closed and drained channel.
var ErrChannelClosed error = sferrors.NewClosedError("channel", nil)

// ErrReceiverClosed is returned to producers once the receiving end has
// been dropped.
var ErrReceiverClosed error = sferrors.NewClosedError("channel receiver", nil)

// ErrPermitUsed is returned when a permit is sent or released twice.
var ErrPermitUsed = errors.New("channel permit already used")

// BackpressureChannel is a bounded FIFO queue with blocking, context-aware
// producers and consumers. Capacity is fixed at construction; the number of
// queued items plus outstanding reservations never exceeds it.
type BackpressureChannel[T any] interface {
	// Send sends a value to the channel.
	Send(ctx context.Context, value T) error

	// TrySend attempts to send a value without blocking.
	TrySend(value T) error

	// Reserve waits for a free slot and holds it until the returned permit
	// is used or released.
	Reserve(ctx context.Context) (*Permit[T], error)

	// TryReserve reserves a slot without blocking.
	TryReserve() (*Permit[T], error)

	// Receive receives a value from the channel.
	Receive(ctx context.Context) (T, error)

	// TryReceive attempts to receive a value without blocking.
	TryReceive() (T, bool, error)

	// Close closes the channel for sending. Queued values stay receivable.
	Close() error

	// CloseReceiver drops the receiving end. Queued values are discarded and
	// every pending or future send fails with ErrReceiverClosed.
	CloseReceiver() error

	// IsClosed returns true if either end is closed.
	IsClosed() bool

	// Len returns the current number of buffered elements.
	Len() int

	// Cap returns the buffer capacity.
	Cap() int

	// Stats returns channel statistics.
	Stats() Stats
}

// Stats holds statistics about channel performance.
type Stats struct {
	// SendCount is the total number of values enqueued.
	SendCount int64

	// ReceiveCount is the total number of values dequeued.
	ReceiveCount int64

	// BlockedSends is the number of sends or reservations that had to wait.
	BlockedSends int64

	// RejectedSends is the number of sends refused with ErrChannelFull.
	RejectedSends int64

	// Reserved is the number of currently outstanding permits.
	Reserved int

	// BufferUtilization is the current buffer utilization (0.0 to 1.0).
	BufferUtilization float64

	// LastSendTime is the timestamp of the last send operation.
	LastSendTime time.Time

	// LastReceiveTime is the timestamp of the last receive operation.
	LastReceiveTime time.Time
}

// Config holds configuration for BackpressureChannel.
type Config struct {
	// BufferSize is the size of the channel buffer.
	BufferSize int

	// Strategy defines how backpressure is handled.
	Strategy BackpressureStrategy

	// OnBlock is called when a send operation has to wait (Block strategy).
	OnBlock func()

	// SendTimeout is the maximum time to wait for send operations (0 = no timeout).
	SendTimeout time.Duration

	// ReceiveTimeout is the maximum time to wait for receive operations (0 = no timeout).
	ReceiveTimeout time.Duration
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		BufferSize: 100,
		Strategy:   Block,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := validation.ValidatePositive("channel", "buffer_size", c.BufferSize); err != nil {
		return err
	}
	return validation.ValidateOneOf("channel", "strategy", c.Strategy, Block, Error)
}

// Permit is a reserved slot in a channel. Sending through a permit never
// blocks. A permit must be either sent or released exactly once.
type Permit[T any] struct {
	ch   *backpressureChannel[T]
	used bool
}

// Send enqueues value into the reserved slot.
func (p *Permit[T]) Send(value T) error {
	if p == nil || p.used {
		return ErrPermitUsed
	}
	p.used = true
	return p.ch.sendReserved(value)
}

// Release returns the reserved slot to the channel unused.
func (p *Permit[T]) Release() error {
	if p == nil || p.used {
		return ErrPermitUsed
	}
	p.used = true
	p.ch.release()
	return nil
}

// backpressureChannel implements BackpressureChannel.
type backpressureChannel[T any] struct {
	config Config

	mu     sync.Mutex
	buffer []T

	// Channel state
	head     int
	tail     int
	count    int
	reserved int
	closed   bool
	rxClosed bool

	// Synchronization
	sendCond *sync.Cond
	recvCond *sync.Cond

	stats Stats
}

// New creates a new BackpressureChannel with default configuration.
func New[T any](bufferSize int) BackpressureChannel[T] {
	config := DefaultConfig()
	config.BufferSize = bufferSize
	return NewWithConfig[T](config)
}

// NewWithConfig creates a new BackpressureChannel with the specified configuration.
func NewWithConfig[T any](config Config) BackpressureChannel[T] {
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultConfig().BufferSize
	}
	if config.Strategy != Block && config.Strategy != Error {
		config.Strategy = Block
	}

	ch := &backpressureChannel[T]{
		config: config,
		buffer: make([]T, config.BufferSize),
	}

	ch.sendCond = sync.NewCond(&ch.mu)
	ch.recvCond = sync.NewCond(&ch.mu)

	return ch
}

// Send implements BackpressureChannel.Send.
func (ch *backpressureChannel[T]) Send(ctx context.Context, value T) error {
	ctx, cancel := ch.withTimeout(ctx, ch.config.SendTimeout)
	defer cancel()

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ch.acquireLocked(ctx); err != nil {
		return err
	}

	ch.enqueueLocked(value)
	return nil
}

// TrySend implements BackpressureChannel.TrySend.
func (ch *backpressureChannel[T]) TrySend(value T) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ch.sendErrLocked(); err != nil {
		return err
	}
	if ch.freeLocked() == 0 {
		ch.stats.RejectedSends++
		return ErrChannelFull
	}

	ch.enqueueLocked(value)
	return nil
}

// Reserve implements BackpressureChannel.Reserve.
func (ch *backpressureChannel[T]) Reserve(ctx context.Context) (*Permit[T], error) {
	ctx, cancel := ch.withTimeout(ctx, ch.config.SendTimeout)
	defer cancel()

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ch.acquireLocked(ctx); err != nil {
		return nil, err
	}

	ch.reserved++
	return &Permit[T]{ch: ch}, nil
}

// TryReserve implements BackpressureChannel.TryReserve.
func (ch *backpressureChannel[T]) TryReserve() (*Permit[T], error) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if err := ch.sendErrLocked(); err != nil {
		return nil, err
	}
	if ch.freeLocked() == 0 {
		return nil, ErrChannelFull
	}

	ch.reserved++
	return &Permit[T]{ch: ch}, nil
}

// Receive implements BackpressureChannel.Receive.
func (ch *backpressureChannel[T]) Receive(ctx context.Context) (T, error) {
	var zero T

	ctx, cancel := ch.withTimeout(ctx, ch.config.ReceiveTimeout)
	defer cancel()

	ch.mu.Lock()
	defer ch.mu.Unlock()

	err := ch.waitLocked(ctx, ch.recvCond, func() bool {
		return ch.count == 0 && !ch.rxClosed && !(ch.closed && ch.reserved == 0)
	})
	if err != nil {
		return zero, err
	}

	if ch.rxClosed {
		return zero, ErrReceiverClosed
	}
	if ch.count == 0 {
		return zero, ErrChannelClosed
	}

	return ch.dequeueLocked(), nil
}

// TryReceive implements BackpressureChannel.TryReceive.
func (ch *backpressureChannel[T]) TryReceive() (T, bool, error) {
	var zero T

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.rxClosed {
		return zero, false, ErrReceiverClosed
	}
	if ch.count == 0 {
		if ch.closed && ch.reserved == 0 {
			return zero, false, ErrChannelClosed
		}
		return zero, false, nil
	}

	return ch.dequeueLocked(), true, nil
}

// Close implements BackpressureChannel.Close.
func (ch *backpressureChannel[T]) Close() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.closed {
		return nil
	}
	ch.closed = true

	ch.sendCond.Broadcast()
	ch.recvCond.Broadcast()

	return nil
}

// CloseReceiver implements BackpressureChannel.CloseReceiver.
func (ch *backpressureChannel[T]) CloseReceiver() error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	if ch.rxClosed {
		return nil
	}
	ch.rxClosed = true

	var zero T
	for i := range ch.buffer {
		ch.buffer[i] = zero
	}
	ch.head, ch.tail, ch.count = 0, 0, 0

	ch.sendCond.Broadcast()
	ch.recvCond.Broadcast()

	return nil
}

// IsClosed implements BackpressureChannel.IsClosed.
func (ch *backpressureChannel[T]) IsClosed() bool {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.closed || ch.rxClosed
}

// Len implements BackpressureChannel.Len.
func (ch *backpressureChannel[T]) Len() int {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.count
}

// Cap implements BackpressureChannel.Cap.
func (ch *backpressureChannel[T]) Cap() int {
	return len(ch.buffer)
}

// Stats implements BackpressureChannel.Stats.
func (ch *backpressureChannel[T]) Stats() Stats {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	stats := ch.stats
	stats.Reserved = ch.reserved
	stats.BufferUtilization = float64(ch.count) / float64(len(ch.buffer))

	return stats
}

// acquireLocked waits until one slot is free according to the configured
// strategy (must hold lock).
func (ch *backpressureChannel[T]) acquireLocked(ctx context.Context) error {
	if err := ch.sendErrLocked(); err != nil {
		return err
	}

	if ch.freeLocked() == 0 {
		if ch.config.Strategy == Error {
			ch.stats.RejectedSends++
			return ErrChannelFull
		}
		ch.stats.BlockedSends++
		if ch.config.OnBlock != nil {
			ch.config.OnBlock()
		}
	}

	err := ch.waitLocked(ctx, ch.sendCond, func() bool {
		return ch.freeLocked() == 0 && ch.sendErrLocked() == nil
	})
	if err != nil {
		return err
	}

	return ch.sendErrLocked()
}

// waitLocked parks on cond while blocked reports true, waking early if ctx
// is done (must hold lock).
func (ch *backpressureChannel[T]) waitLocked(ctx context.Context, cond *sync.Cond, blocked func() bool) error {
	if !blocked() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	stop := context.AfterFunc(ctx, func() {
		ch.mu.Lock()
		cond.Broadcast()
		ch.mu.Unlock()
	})
	defer stop()

	for blocked() {
		if err := ctx.Err(); err != nil {
			return err
		}
		cond.Wait()
	}

	return nil
}

// sendReserved consumes a reservation and enqueues value.
func (ch *backpressureChannel[T]) sendReserved(value T) error {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.reserved--
	if ch.rxClosed {
		ch.sendCond.Broadcast()
		return ErrReceiverClosed
	}

	ch.enqueueLocked(value)
	return nil
}

// release returns a reservation unused.
func (ch *backpressureChannel[T]) release() {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.reserved--
	ch.sendCond.Broadcast()
	// A closed channel waiting on outstanding permits may now be drained.
	ch.recvCond.Broadcast()
}

func (ch *backpressureChannel[T]) sendErrLocked() error {
	if ch.rxClosed {
		return ErrReceiverClosed
	}
	if ch.closed {
		return ErrChannelClosed
	}
	return nil
}

func (ch *backpressureChannel[T]) freeLocked() int {
	return len(ch.buffer) - ch.count - ch.reserved
}

// enqueueLocked adds a value to the buffer (must hold lock).
func (ch *backpressureChannel[T]) enqueueLocked(value T) {
	ch.buffer[ch.tail] = value
	ch.tail = (ch.tail + 1) % len(ch.buffer)
	ch.count++

	ch.stats.SendCount++
	ch.stats.LastSendTime = time.Now()
	ch.recvCond.Broadcast()
}

// dequeueLocked removes a value from the buffer (must hold lock).
func (ch *backpressureChannel[T]) dequeueLocked() T {
	value := ch.buffer[ch.head]
	var zero T
	ch.buffer[ch.head] = zero // Clear reference
	ch.head = (ch.head + 1) % len(ch.buffer)
	ch.count--

	ch.stats.ReceiveCount++
	ch.stats.LastReceiveTime = time.Now()
	ch.sendCond.Broadcast()

	return value
}

func (ch *backpressureChannel[T]) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}
