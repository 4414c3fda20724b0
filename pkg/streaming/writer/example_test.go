package writer

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/vnykmshr/sinkflow/pkg/streaming/channel"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

// Example demonstrates writing through a sink to standard output.
func Example() {
	w := New(sink.NewWriterSink(os.Stdout))
	defer func() { _ = w.Flush(context.Background()) }()

	_, _ = w.WriteString("Hello, ")
	_, _ = w.WriteString("sink ")
	_, _ = w.WriteString("world!\n")

	// Output: Hello, sink world!
}

// Example_channel demonstrates the writer feeding a bounded channel that a
// consumer drains concurrently.
func Example_channel() {
	ch := channel.New[[]byte](1)
	w := New(sink.NewCopyToBytes(sink.NewChannelSink(ch)))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			item, err := ch.Receive(context.Background())
			if err != nil {
				return
			}
			fmt.Printf("received %q\n", item)
		}
	}()

	for _, s := range []string{"one", "two", "three"} {
		_, _ = w.WriteString(s)
	}
	_ = w.Close()
	<-done

	// Output:
	// received "one"
	// received "two"
	// received "three"
}

// Example_copy demonstrates reading a stream into a writer, one item per chunk.
func Example_copy() {
	ch := channel.New[[]byte](8)
	w := NewWithConfig(sink.NewChannelSink(ch), Config{Name: "copy", ChunkSize: 5})

	n, err := w.ReadFrom(strings.NewReader("hello world"))
	fmt.Println(n, err)
	_ = w.Close()

	for {
		item, err := ch.Receive(context.Background())
		if err != nil {
			break
		}
		fmt.Printf("%q\n", item)
	}

	// Output:
	// 11 <nil>
	// "hello"
	// " worl"
	// "d"
}

// Example_shutdown demonstrates that writes fail once the writer is shut down.
func Example_shutdown() {
	w := New(sink.NewChannelSink(channel.New[[]byte](1)))
	_ = w.Shutdown(context.Background())

	_, err := w.Write([]byte("late"))
	fmt.Println(err)
	fmt.Println(w.State())

	// Output:
	// sink writer: io: read/write on closed pipe
	// closed
}
