package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin"
	"github.com/gorilla/websocket"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
	"github.com/vnykmshr/sinkflow/pkg/streaming/throttle"
	"github.com/vnykmshr/sinkflow/pkg/transport/redissink"
	"github.com/vnykmshr/sinkflow/pkg/transport/wssink"
)

// Version is set at build time.
var Version = "dev"

var (
	app = kingpin.New("sinkpipe", "Pipe stdin through a backpressured sink to stdout, a websocket or a Redis stream").Version(Version)

	configFile     = app.Flag("config", "Path to a TOML config file").Envar("SINKPIPE_CONFIG").String()
	debug          = app.Flag("debug", "Enable debug logging").Default("false").Bool()
	format         = app.Flag("format", "Input framing").Enum("lines", "json", "length", "proto", "raw")
	output         = app.Flag("output", "Output sink").Enum("stdout", "websocket", "redis")
	buffer         = app.Flag("buffer", "Channel capacity in items").Int()
	highWaterMark  = app.Flag("high-water-mark", "Encoded bytes buffered before a flush").Int()
	maxLineLength  = app.Flag("max-line-length", "Reject input lines longer than this").Int()
	rate           = app.Flag("rate", "Maximum output items per second, 0 for unlimited").Float64()
	burst          = app.Flag("burst", "Output items allowed back to back").Int()
	statsSchedule  = app.Flag("stats-schedule", "Cron spec for periodic stats logging").String()
	metricsAddress = app.Flag("metrics-address", "Address to bind the HTTP metrics listener").String()

	websocketURL = app.Flag("websocket.url", "Websocket endpoint to send to").String()
	redisAddr    = app.Flag("redis.addr", "Redis address").Envar("REDIS_ADDR").String()
	redisStream  = app.Flag("redis.stream", "Redis stream key").String()
	redisMaxLen  = app.Flag("redis.max-len", "Stream length at which sends wait").Int64()
)

// SilentError should be returned when the command wants to skip all logging of the error
// it has encountered.
var SilentError = errors.New("silent error")

// UsageError is printed together with the command usage.
type UsageError struct {
	error
}

// Run parses the command line and runs the pipeline until stdin is drained
// or the process is signalled.
func Run() (err error) {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()

	defer func() {
		var usageErr UsageError
		switch {
		case err == nil:
			return
		case errors.Is(err, SilentError):
			return
		case errors.As(err, &usageErr):
			parsed, _ := app.ParseContext(os.Args[1:])
			_ = app.UsageForContext(parsed)
			fmt.Fprintf(os.Stderr, "error: %s\n", usageErr.Error())

			err = usageErr.error
			return
		default:
			logger.Error().Err(err).Msg("exiting with error")
		}
	}()

	cfg, err := resolveConfig(*configFile, overrides{
		Format:         *format,
		Output:         *output,
		Buffer:         *buffer,
		HighWaterMark:  *highWaterMark,
		MaxLineLength:  *maxLineLength,
		Rate:           *rate,
		Burst:          *burst,
		StatsSchedule:  *statsSchedule,
		WebsocketURL:   *websocketURL,
		RedisAddr:      *redisAddr,
		RedisStream:    *redisStream,
		RedisMaxLen:    *redisMaxLen,
		MetricsAddress: *metricsAddress,
		Debug:          *debug,
	})
	if err != nil {
		return UsageError{err}
	}

	lvl, _ := zerolog.ParseLevel(cfg.LogLevel)
	logger = logger.Level(lvl).With().Str("pipe", cfg.Name).Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First signal requests a shutdown, a second one or a timeout cancels everything.
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGTERM)
	defer signal.Stop(sigc)
	shutdown := make(chan struct{})

	go func() {
		select {
		case <-sigc:
		case <-ctx.Done():
			return
		}
		close(shutdown)
		select {
		case <-time.After(30 * time.Second):
		case <-sigc:
		case <-ctx.Done():
		}
		cancel()
	}()

	out, cleanup, err := buildOutput(ctx, cfg, logger, os.Stdout)
	if err != nil {
		return err
	}
	defer cleanup()

	out, err = throttleOutput(out, cfg, logger)
	if err != nil {
		return UsageError{err}
	}

	p := newPipeline(cfg, logger, out)

	reporter, err := newStatsReporter(cfg.StatsSchedule, func() { p.report("pipeline stats") })
	if err != nil {
		return UsageError{err}
	}

	var g run.Group

	{
		logger := logger.With().Str("component", "shutdown_handler").Logger()
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				select {
				case <-shutdown:
					logger.Info().Msg("received signal, requesting shutdown")
				case <-ctx.Done():
				}
				return nil
			},
			func(error) {
				cancel()
			},
		)
	}

	if cfg.Metrics.Enabled {
		logger := logger.With().Str("component", "metrics").Logger()

		if err := p.instrument(metrics.DefaultConfig()); err != nil {
			return err
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Metrics.Address, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		g.Add(
			func() error {
				logger.Info().Str("address", cfg.Metrics.Address).Msg("listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					return err
				}
				return nil
			},
			func(error) {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = srv.Shutdown(ctx)
			},
		)
	}

	{
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				reporter.Start()
				<-ctx.Done()
				return nil
			},
			func(error) {
				cancel()
				<-reporter.Stop().Done()
			},
		)
	}

	{
		ctx, cancel := context.WithCancel(ctx)

		g.Add(
			func() error {
				logger.Info().
					Str("format", cfg.Format).
					Str("output", cfg.Output).
					Int("buffer", cfg.Buffer).
					Msg("starting pipeline")

				err := p.Run(ctx, os.Stdin)
				p.report("pipeline finished")
				return err
			},
			func(error) {
				p.interrupt()
				cancel()
			},
		)
	}

	return g.Run()
}

// resolveConfig layers defaults, the optional config file and flags, then validates.
func resolveConfig(path string, o overrides) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		loaded, err := loadConfig(path)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}

	cfg = o.apply(cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// buildOutput connects the configured output. The returned cleanup releases
// resources the sink does not own.
func buildOutput(ctx context.Context, cfg Config, logger zerolog.Logger, stdout io.Writer) (sink.Sink[[]byte], func(), error) {
	noop := func() {}

	switch cfg.Output {
	case "stdout":
		return sink.NewWriterSink(stdout), noop, nil

	case "websocket":
		wcfg := wssink.DefaultConfig()
		wcfg.WriteTimeout = cfg.Websocket.WriteTimeout
		wcfg.Logger = logger.With().Str("component", "websocket").Logger()
		if cfg.Websocket.MessageType == "text" {
			wcfg.MessageType = websocket.TextMessage
		}

		s, err := wssink.Dial(ctx, cfg.Websocket.URL, wcfg)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil

	case "redis":
		client := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs: []string{cfg.Redis.Addr},
			DB:    cfg.Redis.DB,
		})

		rcfg := redissink.DefaultConfig()
		rcfg.Redis = client
		rcfg.Stream = cfg.Redis.Stream
		rcfg.Field = cfg.Redis.Field
		rcfg.MaxLen = cfg.Redis.MaxLen
		rcfg.PollInterval = cfg.Redis.PollInterval
		rcfg.Logger = logger.With().Str("component", "redis").Logger()

		s, err := redissink.New(rcfg)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return s, func() { _ = client.Close() }, nil
	}

	return nil, nil, UsageError{fmt.Errorf("unsupported output: %s", cfg.Output)}
}

// throttleOutput limits out to cfg.Rate items per second. A zero rate
// leaves out untouched.
func throttleOutput(out sink.Sink[[]byte], cfg Config, logger zerolog.Logger) (sink.Sink[[]byte], error) {
	if cfg.Rate == 0 {
		return out, nil
	}
	return throttle.New[[]byte](out, throttle.Config{
		Name:   cfg.Output,
		Rate:   throttle.Limit(cfg.Rate),
		Burst:  cfg.Burst,
		Logger: logger,
	})
}

// newStatsReporter schedules report on a cron spec. Specs may carry a
// leading seconds field or use descriptors such as "@every 30s".
func newStatsReporter(spec string, report func()) (*cron.Cron, error) {
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	c := cron.New(cron.WithParser(parser))
	if _, err := c.AddFunc(spec, report); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", spec, err)
	}
	return c, nil
}
