package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
)

// Config is the complete sinkpipe configuration.
type Config struct {
	Name          string
	Format        string
	MaxLineLength int
	Buffer        int
	HighWaterMark int
	Output        string
	Rate          float64
	Burst         int
	StatsSchedule string
	LogLevel      string

	Websocket WebsocketConfig
	Redis     RedisConfig
	Metrics   MetricsConfig
}

// WebsocketConfig configures the websocket output.
type WebsocketConfig struct {
	URL          string
	MessageType  string
	WriteTimeout time.Duration
}

// RedisConfig configures the Redis stream output.
type RedisConfig struct {
	Addr         string
	DB           int
	Stream       string
	Field        string
	MaxLen       int64
	PollInterval time.Duration
}

// MetricsConfig configures the Prometheus listener.
type MetricsConfig struct {
	Enabled bool
	Address string
}

// DefaultConfig returns the configuration used when neither file nor flags
// say otherwise.
func DefaultConfig() Config {
	return Config{
		Name:          "sinkpipe",
		Format:        "lines",
		Buffer:        64,
		HighWaterMark: 8 * 1024,
		Output:        "stdout",
		Burst:         1,
		StatsSchedule: "@every 30s",
		LogLevel:      "info",
		Websocket: WebsocketConfig{
			MessageType:  "binary",
			WriteTimeout: 10 * time.Second,
		},
		Redis: RedisConfig{
			Addr:         "localhost:6379",
			Stream:       "sinkpipe",
			Field:        "data",
			PollInterval: 100 * time.Millisecond,
		},
		Metrics: MetricsConfig{
			Address: "127.0.0.1:9525",
		},
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	checks := []error{
		validation.ValidateNotEmpty("sinkpipe", "name", c.Name),
		validation.ValidateOneOf("sinkpipe", "format", c.Format, "lines", "json", "length", "proto", "raw"),
		validation.ValidateNonNegative("sinkpipe", "max_line_length", c.MaxLineLength),
		validation.ValidatePositive("sinkpipe", "buffer", c.Buffer),
		validation.ValidatePositive("sinkpipe", "high_water_mark", c.HighWaterMark),
		validation.ValidateOneOf("sinkpipe", "output", c.Output, "stdout", "websocket", "redis"),
		validation.ValidatePositive("sinkpipe", "burst", c.Burst),
		validation.ValidateNotEmpty("sinkpipe", "stats_schedule", c.StatsSchedule),
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}

	if c.Rate < 0 {
		return sferrors.NewValidationError("sinkpipe", "rate", c.Rate, "cannot be negative").
			WithHint("use 0 to send as fast as the output accepts")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return sferrors.NewValidationError("sinkpipe", "log_level", c.LogLevel, err.Error())
	}

	switch c.Output {
	case "websocket":
		if err := validation.ValidateNotEmpty("sinkpipe", "websocket.url", c.Websocket.URL); err != nil {
			return err
		}
		return validation.ValidateOneOf("sinkpipe", "websocket.message_type", c.Websocket.MessageType, "binary", "text")
	case "redis":
		if err := validation.ValidateNotEmpty("sinkpipe", "redis.addr", c.Redis.Addr); err != nil {
			return err
		}
		return validation.ValidateNotEmpty("sinkpipe", "redis.stream", c.Redis.Stream)
	}
	return nil
}

type fileConfig struct {
	Name          string `toml:"name"`
	Format        string `toml:"format"`
	MaxLineLength int    `toml:"max_line_length"`
	Buffer        int    `toml:"buffer"`
	HighWaterMark int    `toml:"high_water_mark"`
	Output        string  `toml:"output"`
	Rate          float64 `toml:"rate"`
	Burst         int     `toml:"burst"`
	StatsSchedule string `toml:"stats_schedule"`
	LogLevel      string `toml:"log_level"`

	Websocket struct {
		URL          string `toml:"url"`
		MessageType  string `toml:"message_type"`
		WriteTimeout string `toml:"write_timeout"`
	} `toml:"websocket"`

	Redis struct {
		Addr         string `toml:"addr"`
		DB           int    `toml:"db"`
		Stream       string `toml:"stream"`
		Field        string `toml:"field"`
		MaxLen       int64  `toml:"max_len"`
		PollInterval string `toml:"poll_interval"`
	} `toml:"redis"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Address string `toml:"address"`
	} `toml:"metrics"`
}

// loadConfig reads a TOML file over the defaults. Keys missing from the
// file keep their default values.
func loadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load sinkpipe config: %w", err)
	}

	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load sinkpipe config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("name") {
		cfg.Name = strings.TrimSpace(raw.Name)
	}
	if meta.IsDefined("format") {
		cfg.Format = strings.TrimSpace(raw.Format)
	}
	if meta.IsDefined("max_line_length") {
		cfg.MaxLineLength = raw.MaxLineLength
	}
	if meta.IsDefined("buffer") {
		cfg.Buffer = raw.Buffer
	}
	if meta.IsDefined("high_water_mark") {
		cfg.HighWaterMark = raw.HighWaterMark
	}
	if meta.IsDefined("output") {
		cfg.Output = strings.TrimSpace(raw.Output)
	}
	if meta.IsDefined("rate") {
		cfg.Rate = raw.Rate
	}
	if meta.IsDefined("burst") {
		cfg.Burst = raw.Burst
	}
	if meta.IsDefined("stats_schedule") {
		cfg.StatsSchedule = strings.TrimSpace(raw.StatsSchedule)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("websocket", "url") {
		cfg.Websocket.URL = strings.TrimSpace(raw.Websocket.URL)
	}
	if meta.IsDefined("websocket", "message_type") {
		cfg.Websocket.MessageType = strings.TrimSpace(raw.Websocket.MessageType)
	}
	if meta.IsDefined("websocket", "write_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Websocket.WriteTimeout))
		if err != nil {
			return Config{}, fmt.Errorf("parse websocket.write_timeout: %w", err)
		}
		cfg.Websocket.WriteTimeout = d
	}

	if meta.IsDefined("redis", "addr") {
		cfg.Redis.Addr = strings.TrimSpace(raw.Redis.Addr)
	}
	if meta.IsDefined("redis", "db") {
		cfg.Redis.DB = raw.Redis.DB
	}
	if meta.IsDefined("redis", "stream") {
		cfg.Redis.Stream = strings.TrimSpace(raw.Redis.Stream)
	}
	if meta.IsDefined("redis", "field") {
		cfg.Redis.Field = strings.TrimSpace(raw.Redis.Field)
	}
	if meta.IsDefined("redis", "max_len") {
		cfg.Redis.MaxLen = raw.Redis.MaxLen
	}
	if meta.IsDefined("redis", "poll_interval") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Redis.PollInterval))
		if err != nil {
			return Config{}, fmt.Errorf("parse redis.poll_interval: %w", err)
		}
		cfg.Redis.PollInterval = d
	}

	if meta.IsDefined("metrics", "enabled") {
		cfg.Metrics.Enabled = raw.Metrics.Enabled
	}
	if meta.IsDefined("metrics", "address") {
		cfg.Metrics.Address = strings.TrimSpace(raw.Metrics.Address)
	}

	return cfg, nil
}

// overrides holds command-line values. Zero values mean the flag was not given.
type overrides struct {
	Format         string
	Output         string
	Buffer         int
	HighWaterMark  int
	MaxLineLength  int
	Rate           float64
	Burst          int
	StatsSchedule  string
	WebsocketURL   string
	RedisAddr      string
	RedisStream    string
	RedisMaxLen    int64
	MetricsAddress string
	Debug          bool
}

// apply layers command-line values over cfg.
func (o overrides) apply(cfg Config) Config {
	if o.Format != "" {
		cfg.Format = o.Format
	}
	if o.Output != "" {
		cfg.Output = o.Output
	}
	if o.Buffer != 0 {
		cfg.Buffer = o.Buffer
	}
	if o.HighWaterMark != 0 {
		cfg.HighWaterMark = o.HighWaterMark
	}
	if o.MaxLineLength != 0 {
		cfg.MaxLineLength = o.MaxLineLength
	}
	if o.Rate != 0 {
		cfg.Rate = o.Rate
	}
	if o.Burst != 0 {
		cfg.Burst = o.Burst
	}
	if o.StatsSchedule != "" {
		cfg.StatsSchedule = o.StatsSchedule
	}
	if o.WebsocketURL != "" {
		cfg.Websocket.URL = o.WebsocketURL
	}
	if o.RedisAddr != "" {
		cfg.Redis.Addr = o.RedisAddr
	}
	if o.RedisStream != "" {
		cfg.Redis.Stream = o.RedisStream
	}
	if o.RedisMaxLen != 0 {
		cfg.Redis.MaxLen = o.RedisMaxLen
	}
	if o.MetricsAddress != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.Address = o.MetricsAddress
	}
	if o.Debug {
		cfg.LogLevel = "debug"
	}
	return cfg
}
