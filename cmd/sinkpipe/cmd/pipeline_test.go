package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/vnykmshr/sinkflow/internal/testutil"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
	"github.com/vnykmshr/sinkflow/pkg/streaming/throttle"
)

func testConfig(format string) Config {
	cfg := DefaultConfig()
	cfg.Format = format
	return cfg
}

func runPipe(t *testing.T, cfg Config, input string) (*pipeline, *testutil.MockWriter, error) {
	t.Helper()
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	out := testutil.NewMockWriter()
	p := newPipeline(cfg, zerolog.Nop(), sink.NewWriterSink(out))
	err := p.Run(ctx, strings.NewReader(input))
	return p, out, err
}

func TestPipelineLines(t *testing.T) {
	input := "alpha\nbeta\ngamma\n"

	p, out, err := runPipe(t, testConfig("lines"), input)
	require.NoError(t, err)

	assert.Equal(t, input, out.String())
	assert.True(t, out.Closed())
	assert.Equal(t, int64(3), p.lines.Load())
	assert.True(t, p.writer.IsClosed())
}

func TestPipelineLinesUnderBackpressure(t *testing.T) {
	cfg := testConfig("lines")
	cfg.Buffer = 1
	cfg.HighWaterMark = 1

	var b strings.Builder
	for i := 0; i < 200; i++ {
		b.WriteString("line\n")
	}

	p, out, err := runPipe(t, cfg, b.String())
	require.NoError(t, err)

	assert.Equal(t, b.String(), out.String())
	assert.Equal(t, int64(200), p.forwards.Load())
	assert.Equal(t, int64(200), p.writer.Stats().WriteCount)
}

func TestPipelineLinesRejectsLongLines(t *testing.T) {
	cfg := testConfig("lines")
	cfg.MaxLineLength = 4

	p, out, err := runPipe(t, cfg, "ok\ntoo long\nfine\n")
	require.NoError(t, err)

	assert.Equal(t, "ok\nfine\n", out.String())
	assert.Equal(t, int64(1), p.rejected.Load())
}

func TestPipelineJSONSkipsInvalidRecords(t *testing.T) {
	input := "{\"a\": 1}\n\nnot json\n[1, 2]\n"

	p, out, err := runPipe(t, testConfig("json"), input)
	require.NoError(t, err)

	assert.Equal(t, "{\"a\":1}\n[1,2]\n", out.String())
	assert.Equal(t, int64(3), p.lines.Load())
	assert.Equal(t, int64(1), p.rejected.Load())
}

func TestPipelineLengthDelimited(t *testing.T) {
	_, out, err := runPipe(t, testConfig("length"), "hi\nthere\n")
	require.NoError(t, err)

	got := out.Bytes()
	require.Len(t, got, 4+2+4+5)
	assert.Equal(t, uint32(2), binary.BigEndian.Uint32(got[0:4]))
	assert.Equal(t, "hi", string(got[4:6]))
	assert.Equal(t, uint32(5), binary.BigEndian.Uint32(got[6:10]))
	assert.Equal(t, "there", string(got[10:]))
}

func TestPipelineProto(t *testing.T) {
	_, out, err := runPipe(t, testConfig("proto"), "first\nsecond\n")
	require.NoError(t, err)

	r := bufio.NewReader(bytes.NewReader(out.Bytes()))
	for _, want := range []string{"first", "second"} {
		msg := &wrapperspb.StringValue{}
		require.NoError(t, protodelim.UnmarshalFrom(r, msg))
		assert.Equal(t, want, msg.GetValue())
	}
	_, err = r.ReadByte()
	assert.ErrorIs(t, err, io.EOF)
}

func TestPipelineRaw(t *testing.T) {
	input := "no framing\x00at all"

	p, out, err := runPipe(t, testConfig("raw"), input)
	require.NoError(t, err)

	assert.Equal(t, input, out.String())
	assert.Nil(t, p.in)
}

func TestPipelineOutputFailure(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	out := testutil.NewMockSink[[]byte]()
	out.FailSend(testutil.ErrSimulated)

	p := newPipeline(testConfig("lines"), zerolog.Nop(), out)
	err := p.Run(ctx, strings.NewReader("one\ntwo\n"))

	require.Error(t, err)
	assert.True(t, errors.Is(err, testutil.ErrSimulated))
	assert.True(t, out.Closed())
}

func TestPipelineCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	out := testutil.NewMockWriter()
	p := newPipeline(testConfig("lines"), zerolog.Nop(), sink.NewWriterSink(out))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Run(ctx, pr)
	}()

	_, err := pw.Write([]byte("partial\n"))
	require.NoError(t, err)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline did not stop after cancel")
	}
}

func TestPipelineInstrument(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig("lines")

	out := testutil.NewMockWriter()
	p := newPipeline(cfg, zerolog.Nop(), sink.NewWriterSink(out))
	require.NoError(t, p.instrument(metrics.Config{Enabled: true, Registry: reg}))

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.NoError(t, p.Run(ctx, strings.NewReader("a\nb\n")))

	assert.True(t, p.writer.MetricsEnabled())
	assert.True(t, p.queue.MetricsEnabled())

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuildOutput(t *testing.T) {
	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()

	out, cleanup, err := buildOutput(ctx, DefaultConfig(), zerolog.Nop(), io.Discard)
	require.NoError(t, err)
	defer cleanup()
	assert.IsType(t, &sink.WriterSink{}, out)

	cfg := DefaultConfig()
	cfg.Output = "carrier-pigeon"
	_, _, err = buildOutput(ctx, cfg, zerolog.Nop(), io.Discard)
	var usageErr UsageError
	assert.True(t, errors.As(err, &usageErr))
}

func TestNewStatsReporter(t *testing.T) {
	for _, spec := range []string{"@every 30s", "*/5 * * * * *", "0 * * * *"} {
		_, err := newStatsReporter(spec, func() {})
		assert.NoError(t, err, spec)
	}

	_, err := newStatsReporter("every now and then", func() {})
	assert.Error(t, err)
}

func TestThrottleOutput(t *testing.T) {
	base := sink.NewWriterSink(io.Discard)

	out, err := throttleOutput(base, DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	assert.Same(t, base, out)

	cfg := DefaultConfig()
	cfg.Rate = 500
	cfg.Burst = 10
	out, err = throttleOutput(base, cfg, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, &throttle.Sink[[]byte]{}, out)
}

func TestPipelineThrottledInstrumentsTransport(t *testing.T) {
	reg := prometheus.NewRegistry()
	cfg := testConfig("lines")
	cfg.Rate = 1000
	cfg.HighWaterMark = 1

	mock := testutil.NewMockWriter()
	out, err := throttleOutput(sink.NewWriterSink(mock), cfg, zerolog.Nop())
	require.NoError(t, err)

	p := newPipeline(cfg, zerolog.Nop(), out)
	require.NoError(t, p.instrument(metrics.Config{Enabled: true, Registry: reg}))
	assert.True(t, out.(*throttle.Sink[[]byte]).MetricsEnabled())

	ctx, cancel := testutil.WithTimeout(t)
	defer cancel()
	require.NoError(t, p.Run(ctx, strings.NewReader("a\nb\nc\n")))
	assert.Equal(t, "a\nb\nc\n", mock.String())
	assert.Equal(t, int64(3), out.(*throttle.Sink[[]byte]).Stats().Items)
}
