package habitron

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Connection defaults.
const (
	// DefaultCommandPort is the router's TCP command channel.
	DefaultCommandPort = 7777

	// defaultRequestTimeout bounds one connect/send/receive round trip.
	defaultRequestTimeout = 15 * time.Second
)

// ClientConfig holds transport settings for one router endpoint.
type ClientConfig struct {
	// Host is the router address (IP or DNS name).
	Host string

	// Port is the TCP command port. Default: 7777.
	Port int

	// RequestTimeout bounds one full round trip. Default: 15 seconds.
	RequestTimeout time.Duration
}

// ClientStats carries transport counters for health reporting.
type ClientStats struct {
	FramesSent     uint64 `json:"frames_sent"`
	FramesReceived uint64 `json:"frames_received"`
	Timeouts       uint64 `json:"timeouts"`
	Errors         uint64 `json:"errors"`
}

// Connector is the transport interface the bridge depends on. Satisfied by
// *Client; tests substitute fakes.
type Connector interface {
	// SendReceive writes a frame and waits for the parsed response.
	SendReceive(ctx context.Context, frame []byte) (Response, error)

	// SendOnly writes a frame without waiting for an answer. Used for
	// actuator commands the hardware does not reliably acknowledge.
	SendOnly(ctx context.Context, frame []byte) error

	// Reachable reports whether the router answered recently.
	Reachable() bool

	// Stats returns transport counters.
	Stats() ClientStats
}

// Client talks to one router endpoint.
//
// The router's controller does not support concurrent sessions: every
// request opens a fresh TCP connection, performs one exchange and closes it
// again. A single-flight mutex serializes callers so overlapping requests
// never reach the hardware interleaved; connection-per-call alone is not a
// guarantee of that.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	host    string
	port    int
	timeout time.Duration

	// flight serializes all exchanges with this endpoint.
	flight sync.Mutex

	// reachable tracks the outcome of the most recent exchange.
	reachable atomic.Bool

	// Stats counters.
	framesSent     atomic.Uint64
	framesReceived atomic.Uint64
	timeouts       atomic.Uint64
	errors         atomic.Uint64

	// Logger (optional).
	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the minimal logging interface accepted by this package.
// Compatible with the infrastructure logging wrapper.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

var _ Connector = (*Client)(nil)

// NewClient creates a transport client for one router endpoint.
func NewClient(cfg ClientConfig) *Client {
	port := cfg.Port
	if port == 0 {
		port = DefaultCommandPort
	}
	timeout := cfg.RequestTimeout
	if timeout == 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		host:    cfg.Host,
		port:    port,
		timeout: timeout,
	}
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

// SendReceive performs one connect/send/receive/close exchange.
//
// The connection is closed unconditionally, including on the error path, so
// a timed-out request never leaks a socket.
//
// Parameters:
//   - ctx: Cancellation; also bounds the dial
//   - frame: Complete wire frame from Catalog.Encode
//
// Returns:
//   - Response: Parsed payload plus router CRC
//   - error: ErrConnection, ErrTimeout or ErrFraming
func (c *Client) SendReceive(ctx context.Context, frame []byte) (Response, error) {
	c.flight.Lock()
	defer c.flight.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		c.errors.Add(1)
		return Response{}, fmt.Errorf("%w: setting deadline: %w", ErrConnection, err)
	}

	if _, err := conn.Write(frame); err != nil {
		return Response{}, c.mapIOError("write", err)
	}
	c.framesSent.Add(1)

	resp, err := readResponse(conn)
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return Response{}, c.mapIOError("read", netErr)
		}
		c.errors.Add(1)
		return Response{}, err
	}

	c.framesReceived.Add(1)
	c.reachable.Store(true)
	return resp, nil
}

// SendOnly performs a connect/send/close exchange without reading a reply.
func (c *Client) SendOnly(ctx context.Context, frame []byte) error {
	c.flight.Lock()
	defer c.flight.Unlock()

	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.SetWriteDeadline(time.Now().Add(c.timeout)); err != nil {
		c.errors.Add(1)
		return fmt.Errorf("%w: setting deadline: %w", ErrConnection, err)
	}

	if _, err := conn.Write(frame); err != nil {
		return c.mapIOError("write", err)
	}
	c.framesSent.Add(1)
	c.reachable.Store(true)
	return nil
}

// Reachable reports whether the most recent exchange succeeded.
func (c *Client) Reachable() bool {
	return c.reachable.Load()
}

// Stats returns a snapshot of the transport counters.
func (c *Client) Stats() ClientStats {
	return ClientStats{
		FramesSent:     c.framesSent.Load(),
		FramesReceived: c.framesReceived.Load(),
		Timeouts:       c.timeouts.Load(),
		Errors:         c.errors.Load(),
	}
}

// Endpoint returns the host:port string of this client.
func (c *Client) Endpoint() string {
	return net.JoinHostPort(c.host, strconv.Itoa(c.port))
}

// dial opens one fresh connection to the router.
func (c *Client) dial(ctx context.Context) (net.Conn, error) {
	dialer := net.Dialer{Timeout: c.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", c.Endpoint())
	if err != nil {
		c.errors.Add(1)
		c.reachable.Store(false)
		c.logWarn("dial failed", "endpoint", c.Endpoint(), "error", err)
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			c.timeouts.Add(1)
			return nil, fmt.Errorf("%w: dialing %s: %w", ErrTimeout, c.Endpoint(), err)
		}
		return nil, fmt.Errorf("%w: dialing %s: %w", ErrConnection, c.Endpoint(), err)
	}
	return conn, nil
}

// mapIOError converts socket errors to the package taxonomy.
func (c *Client) mapIOError(op string, err error) error {
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		c.timeouts.Add(1)
		c.reachable.Store(false)
		return fmt.Errorf("%w: %s on %s: %w", ErrTimeout, op, c.Endpoint(), err)
	}
	c.errors.Add(1)
	c.reachable.Store(false)
	return fmt.Errorf("%w: %s on %s: %w", ErrConnection, op, c.Endpoint(), err)
}

// logWarn logs through the configured logger if one is set.
func (c *Client) logWarn(msg string, args ...any) {
	c.loggerMu.RLock()
	logger := c.logger
	c.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
