package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// Example_basicUsage demonstrates basic metrics configuration.
func Example_basicUsage() {
	// Create a separate registry for this example
	testRegistry := prometheus.NewRegistry()
	registry := NewRegistry(testRegistry)

	registry.WriterWrites.WithLabelValues("stdin").Add(3)
	registry.WriterBytesWritten.WithLabelValues("stdin").Add(12)

	fmt.Println(testutil.ToFloat64(registry.WriterWrites.WithLabelValues("stdin")))
	fmt.Println(testutil.ToFloat64(registry.WriterBytesWritten.WithLabelValues("stdin")))

	// Output:
	// 3
	// 12
}

// Example_customRegistry demonstrates sharing a custom Prometheus registry.
func Example_customRegistry() {
	customRegistry := prometheus.NewRegistry()

	config := Config{
		Enabled:  true,
		Registry: customRegistry,
	}

	first := config.Resolve()
	second := config.Resolve()

	first.FramedFlushes.WithLabelValues("lines").Inc()
	second.FramedFlushes.WithLabelValues("lines").Inc()

	fmt.Printf("Shared registry: %v\n", first == second)
	fmt.Println(testutil.ToFloat64(first.FramedFlushes.WithLabelValues("lines")))

	// Output:
	// Shared registry: true
	// 2
}
