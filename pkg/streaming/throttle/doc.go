// Package throttle limits the rate at which items reach a sink.
//
// A throttled Sink holds a token bucket. Ready takes one token, waiting
// for the bucket to refill if it is empty, and then waits for the inner
// sink. Because the wait happens in Ready, a SinkWriter over a throttled
// sink simply blocks its writer; nothing is dropped.
//
//	out, err := throttle.New[[]byte](sink.NewWriterSink(conn), throttle.Config{
//		Rate:  throttle.Every(10 * time.Millisecond),
//		Burst: 20,
//	})
//	w := writer.New(out)
//
// A cancelled Ready returns its token, so cancellation never costs capacity.
package throttle
