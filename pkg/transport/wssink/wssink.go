package wssink

import (
	"context"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	sferrors "github.com/vnykmshr/sinkflow/pkg/common/errors"
	"github.com/vnykmshr/sinkflow/pkg/common/validation"
	"github.com/vnykmshr/sinkflow/pkg/metrics"
	"github.com/vnykmshr/sinkflow/pkg/streaming/sink"
)

// Config holds configuration options for a websocket Sink.
type Config struct {
	// MessageType is websocket.BinaryMessage or websocket.TextMessage.
	// Default: websocket.BinaryMessage
	MessageType int

	// WriteTimeout bounds every message write.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// CloseTimeout bounds the wait for the peer to answer the close frame.
	// Default: 5 seconds
	CloseTimeout time.Duration

	// ReadTimeout is how long the connection may stay silent before the
	// peer is considered gone. Pings from the peer extend it. Zero disables it.
	ReadTimeout time.Duration

	// Logger receives connection events.
	// Default: zerolog.Nop()
	Logger zerolog.Logger
}

// DefaultConfig returns a default configuration.
func DefaultConfig() Config {
	return Config{
		MessageType:  websocket.BinaryMessage,
		WriteTimeout: 10 * time.Second,
		CloseTimeout: 5 * time.Second,
		Logger:       zerolog.Nop(),
	}
}

// Validate reports the first invalid field of the config.
func (c Config) Validate() error {
	if err := validation.ValidateOneOf("wssink", "message_type", c.MessageType,
		websocket.BinaryMessage, websocket.TextMessage); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("wssink", "write_timeout", c.WriteTimeout); err != nil {
		return err
	}
	return validation.ValidatePositiveDuration("wssink", "close_timeout", c.CloseTimeout)
}

// Sink sends every item as one websocket message. Message framing keeps
// items whole on the wire, so a reader never sees half an item.
type Sink struct {
	conn   *websocket.Conn
	config Config
	logger zerolog.Logger
	target string

	mu     sync.Mutex
	ready  bool
	closed bool

	// gone is closed by the read loop once the connection stops delivering frames.
	gone    chan struct{}
	goneErr error

	// writeErr is the first failed write. The connection cannot be written again.
	writeErr error

	metrics *metrics.Registry
}

var (
	_ sink.Sink[[]byte]      = (*Sink)(nil)
	_ metrics.Instrumentable = (*Sink)(nil)
)

// Dial connects to url and returns a Sink over the new connection.
func Dial(ctx context.Context, url string, config Config) (*Sink, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, sferrors.NewTransportError("websocket", "dial", err)
	}
	return New(conn, config), nil
}

// New returns a Sink over an established connection. The Sink owns conn
// from then on and reads from it to notice when the peer goes away.
func New(conn *websocket.Conn, config Config) *Sink {
	defaults := DefaultConfig()
	if config.MessageType != websocket.TextMessage {
		config.MessageType = defaults.MessageType
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}
	if config.CloseTimeout <= 0 {
		config.CloseTimeout = defaults.CloseTimeout
	}

	target := conn.RemoteAddr().String()
	s := &Sink{
		conn:   conn,
		config: config,
		logger: config.Logger.With().Str("transport", "websocket").Str("target", target).Logger(),
		target: target,
		gone:   make(chan struct{}),
	}

	if config.ReadTimeout > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
		conn.SetPingHandler(func(appData string) error {
			_ = conn.SetReadDeadline(time.Now().Add(config.ReadTimeout))
			return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(config.WriteTimeout))
		})
	}

	go s.readLoop()
	return s
}

// readLoop discards data frames and lets the connection process control
// frames until it fails.
func (s *Sink) readLoop() {
	for {
		if _, _, err := s.conn.NextReader(); err != nil {
			s.mu.Lock()
			s.goneErr = err
			s.mu.Unlock()
			close(s.gone)
			s.logger.Debug().Err(err).Msg("peer gone")
			return
		}
		if s.config.ReadTimeout > 0 {
			_ = s.conn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
		}
	}
}

// Ready implements sink.Sink. A connection is always ready until it is
// closed locally or by the peer.
func (s *Sink) Ready(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closedErrLocked(); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// Send implements sink.Sink. The write is bounded by Config.WriteTimeout.
func (s *Sink) Send(p []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.closedErrLocked(); err != nil {
		return err
	}
	if !s.ready {
		return sink.ErrNotReady
	}
	s.ready = false

	_ = s.conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	if err := s.conn.WriteMessage(s.config.MessageType, p); err != nil {
		return s.failLocked("send", err)
	}

	if s.metrics != nil {
		s.metrics.TransportSends.WithLabelValues("websocket", s.target).Inc()
	}
	return nil
}

// Flush implements sink.Sink. Messages are written on Send, so there is
// nothing to flush.
func (s *Sink) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closedErrLocked()
}

// Close implements sink.Sink. It sends a normal closure frame, waits for the
// peer to answer (or for Config.CloseTimeout or ctx), then closes the
// connection. Calling Close again returns nil.
func (s *Sink) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.ready = false
	s.mu.Unlock()

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	err := s.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(s.config.WriteTimeout))
	if err != nil && !errors.Is(err, websocket.ErrCloseSent) {
		s.logger.Debug().Err(err).Msg("close frame not sent")
	} else {
		timer := time.NewTimer(s.config.CloseTimeout)
		select {
		case <-s.gone:
		case <-timer.C:
		case <-ctx.Done():
		}
		timer.Stop()
	}

	if cerr := s.conn.Close(); cerr != nil && !errors.Is(cerr, net.ErrClosed) {
		return sferrors.NewTransportError("websocket", "close", cerr)
	}
	<-s.gone
	return nil
}

// Conn returns the underlying connection.
func (s *Sink) Conn() *websocket.Conn {
	return s.conn
}

// EnableMetrics implements metrics.Instrumentable.
func (s *Sink) EnableMetrics(config metrics.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = config.Resolve()
	return nil
}

// DisableMetrics implements metrics.Instrumentable.
func (s *Sink) DisableMetrics() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = nil
}

// MetricsEnabled implements metrics.Instrumentable.
func (s *Sink) MetricsEnabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics != nil
}

// closedErrLocked returns a closed error when the sink or the peer is done (must hold lock).
func (s *Sink) closedErrLocked() error {
	if s.closed {
		return sferrors.NewClosedError("websocket sink", nil)
	}
	if s.writeErr != nil {
		return sferrors.NewClosedError("websocket sink", s.writeErr)
	}
	select {
	case <-s.gone:
		return sferrors.NewClosedError("websocket sink", s.goneErr)
	default:
		return nil
	}
}

// failLocked records a failed write (must hold lock). Any write error,
// a deadline included, leaves the connection unusable, so the sink is
// closed from then on.
func (s *Sink) failLocked(op string, err error) error {
	s.writeErr = err
	s.ready = false

	if s.metrics != nil {
		s.metrics.TransportErrors.WithLabelValues("websocket", s.target, op).Inc()
	}
	s.logger.Warn().Str("op", op).Err(err).Msg("websocket write failed")
	return sferrors.NewClosedError("websocket sink", err)
}
