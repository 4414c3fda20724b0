package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// Example demonstrates basic backpressure channel usage.
func Example() {
	ch := New[int](3)
	defer ch.Close()

	ctx := context.Background()

	_ = ch.Send(ctx, 1)
	_ = ch.Send(ctx, 2)
	_ = ch.Send(ctx, 3)

	fmt.Printf("Channel length: %d\n", ch.Len())

	val1, _ := ch.Receive(ctx)
	val2, _ := ch.Receive(ctx)

	fmt.Printf("Received: %d, %d\n", val1, val2)
	fmt.Printf("Remaining length: %d\n", ch.Len())

	// Output:
	// Channel length: 3
	// Received: 1, 2
	// Remaining length: 1
}

// Example_reserve demonstrates reserving a slot before sending.
func Example_reserve() {
	ch := New[string](1)
	defer ch.Close()

	ctx := context.Background()

	permit, _ := ch.Reserve(ctx)
	fmt.Println("TrySend while reserved:", ch.TrySend("other"))

	_ = permit.Send("reserved value")
	val, _ := ch.Receive(ctx)
	fmt.Println("Received:", val)

	// Output:
	// TrySend while reserved: channel buffer is full
	// Received: reserved value
}

// Example_errorStrategy demonstrates failing fast on a full buffer.
func Example_errorStrategy() {
	ch := NewWithConfig[int](Config{BufferSize: 1, Strategy: Error})
	defer ch.Close()

	ctx := context.Background()
	_ = ch.Send(ctx, 1)

	if err := ch.Send(ctx, 2); errors.Is(err, ErrChannelFull) {
		fmt.Println("buffer full")
	}

	// Output:
	// buffer full
}

// Example_producerConsumer demonstrates blocking backpressure between
// a fast producer and a slower consumer.
func Example_producerConsumer() {
	ch := New[int](2)
	ctx := context.Background()

	go func() {
		for i := 1; i <= 5; i++ {
			_ = ch.Send(ctx, i)
		}
		_ = ch.Close()
	}()

	for {
		val, err := ch.Receive(ctx)
		if err != nil {
			break
		}
		time.Sleep(time.Millisecond)
		fmt.Print(val, " ")
	}
	fmt.Println()

	// Output:
	// 1 2 3 4 5
}

// Example_closeReceiver demonstrates a producer observing a vanished consumer.
func Example_closeReceiver() {
	ch := New[int](1)
	_ = ch.CloseReceiver()

	err := ch.Send(context.Background(), 1)
	fmt.Println(errors.Is(err, io.ErrClosedPipe))

	// Output:
	// true
}
