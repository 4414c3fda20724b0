package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync/atomic"

	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/wrapperspb"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/channel"
	"github.com/vnykmshr/sinkflow/pkg/streaming/codec"
	"github.com/vnykmshr/sinkflow/pkg/streaming/framed"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
	"github.com/vnykmshr/sinkflow/pkg/streaming/writer"
)

// maxScanLine bounds a single input line. Lines beyond it abort the pump;
// max_line_length rejects shorter lines one at a time.
const maxScanLine = 16 * 1024 * 1024

// input encodes text lines into the writer. Framed inputs are generic over
// their item type, so the pipeline only sees these closures.
type input struct {
	submit func(ctx context.Context, line string) error
	close  func(ctx context.Context) error
	stats  func() framed.Stats
	meter  metrics.Instrumentable
}

func newFramedInput[T any](w io.Writer, enc codec.Encoder[T], config framed.Config, convert func(string) T) input {
	fw := framed.NewWithConfig[T](w, enc, config)
	return input{
		submit: func(ctx context.Context, line string) error { return fw.Submit(ctx, convert(line)) },
		close:  fw.Close,
		stats:  fw.Stats,
		meter:  fw,
	}
}

// pipeline moves stdin through a framed writer into a bounded channel and
// forwards the channel to the output sink.
//
//	stdin -> framed.Writer -> writer.SinkWriter -> ChannelSink -> Forward -> output
type pipeline struct {
	cfg    Config
	logger zerolog.Logger

	ch     channel.BackpressureChannel[[]byte]
	queue  *sink.ChannelSink[[]byte]
	writer *writer.SinkWriter
	in     *input
	output sink.Sink[[]byte]

	lines    atomic.Int64
	rejected atomic.Int64
	forwards atomic.Int64
}

func newPipeline(cfg Config, logger zerolog.Logger, output sink.Sink[[]byte]) *pipeline {
	ch := channel.New[[]byte](cfg.Buffer)
	queue := sink.NewChannelSinkWithConfig(ch, sink.ChannelSinkConfig{Name: cfg.Name})
	w := writer.NewWithConfig(sink.NewCopyToBytes(queue), writer.Config{
		Name:   cfg.Name,
		Logger: logger,
	})

	p := &pipeline{
		cfg:    cfg,
		logger: logger,
		ch:     ch,
		queue:  queue,
		writer: w,
		output: output,
	}

	fcfg := framed.Config{
		Name:          cfg.Format,
		HighWaterMark: cfg.HighWaterMark,
		Logger:        logger,
	}
	switch cfg.Format {
	case "lines":
		in := newFramedInput[string](w, codec.NewLinesEncoder(cfg.MaxLineLength), fcfg,
			func(s string) string { return s })
		p.in = &in
	case "json":
		in := newFramedInput[json.RawMessage](w, codec.JSONEncoder[json.RawMessage]{}, fcfg,
			func(s string) json.RawMessage { return json.RawMessage(s) })
		p.in = &in
	case "length":
		enc := codec.NewLengthDelimitedEncoder()
		if cfg.MaxLineLength > 0 {
			enc.MaxFrameLength = cfg.MaxLineLength
		}
		in := newFramedInput[[]byte](w, enc, fcfg,
			func(s string) []byte { return []byte(s) })
		p.in = &in
	case "proto":
		in := newFramedInput[proto.Message](w, codec.ProtoEncoder{Deterministic: true}, fcfg,
			func(s string) proto.Message { return wrapperspb.String(s) })
		p.in = &in
	}
	return p
}

// instrument turns on metrics for every stage that supports them.
func (p *pipeline) instrument(config metrics.Config) error {
	meters := []metrics.Instrumentable{p.writer, p.queue}
	if p.in != nil {
		meters = append(meters, p.in.meter)
	}
	// Walk wrappers such as a throttle down to the transport.
	for out := p.output; out != nil; {
		if m, ok := out.(metrics.Instrumentable); ok {
			meters = append(meters, m)
		}
		inner, ok := out.(interface{ Inner() sink.Sink[[]byte] })
		if !ok {
			break
		}
		out = inner.Inner()
	}
	for _, m := range meters {
		if err := m.EnableMetrics(config); err != nil {
			return err
		}
	}
	return nil
}

// Run pumps r into the channel and forwards the channel to the output until
// r is exhausted and every item has been delivered, or ctx is done.
func (p *pipeline) Run(ctx context.Context, r io.Reader) error {
	pumped := make(chan error, 1)
	go func() {
		pumped <- p.pump(ctx, r)
	}()

	n, err := sink.Forward(ctx, p.ch, p.output)
	p.forwards.Add(int64(n))
	if err != nil {
		// Unblock a pump still waiting for channel space.
		_ = p.ch.CloseReceiver()
		_ = p.output.Close(ctx)
		return err
	}

	if err := <-pumped; err != nil {
		_ = p.output.Close(ctx)
		return err
	}
	return p.output.Close(ctx)
}

// interrupt stops the pump from waiting on a consumer that is going away.
func (p *pipeline) interrupt() {
	_ = p.ch.CloseReceiver()
}

func (p *pipeline) pump(ctx context.Context, r io.Reader) error {
	if p.in == nil {
		if _, err := p.writer.ReadFromContext(ctx, r); err != nil {
			p.logger.Error().Err(err).Msg("copying input failed")
			_ = p.writer.Shutdown(ctx)
			return err
		}
		return p.writer.Shutdown(ctx)
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxScanLine)

	for scanner.Scan() {
		line := scanner.Text()
		if p.cfg.Format == "json" && line == "" {
			continue
		}
		p.lines.Add(1)

		err := p.in.submit(ctx, line)
		var encodeErr *sferrors.EncodeError
		switch {
		case err == nil:
		case errors.As(err, &encodeErr):
			p.rejected.Add(1)
			p.logger.Warn().Err(err).Int64("line", p.lines.Load()).Msg("skipping line")
		default:
			p.logger.Error().Err(err).Msg("pumping input failed")
			_ = p.writer.Shutdown(ctx)
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		p.logger.Error().Err(err).Msg("reading input failed")
		_ = p.writer.Shutdown(ctx)
		return err
	}

	return p.in.close(ctx)
}

// report logs a snapshot of every stage.
func (p *pipeline) report(msg string) {
	ws := p.writer.Stats()
	cs := p.ch.Stats()

	ev := p.logger.Info().
		Int64("lines", p.lines.Load()).
		Int64("rejected", p.rejected.Load()).
		Int64("forwarded", p.forwards.Load()).
		Int64("writes", ws.WriteCount).
		Int64("bytes", ws.BytesWritten).
		Int64("backpressure_waits", ws.BackpressureWaits).
		Dur("ready_wait", ws.TotalReadyWait).
		Int("queued", p.ch.Len()).
		Int("reserved", cs.Reserved).
		Str("writer_state", p.writer.State().String())

	if p.in != nil {
		fs := p.in.stats()
		ev = ev.Int64("encoded", fs.Items).Int64("flushes", fs.Flushes)
	}
	ev.Msg(msg)
}
