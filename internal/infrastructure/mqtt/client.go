package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/hbtn-io/habitron-bridge/internal/infrastructure/config"
)

// Client is the daemon's connection to the MQTT broker.
//
// Everything the bridge says to the outside world rides this client: module
// state and router state under habitron/state/, command acks under
// habitron/ack/, bridge health under habitron/health, and the daemon's own
// lifecycle on habitron/system/status. The broker announces a crashed daemon
// through the LWT configured at connect time; a clean shutdown publishes its
// own offline payload first, so consumers can tell the two apart.
//
// The paho library reconnects on its own with backoff. The client re-applies
// every tracked subscription on each reconnect, so a broker restart does not
// silently drop the command topic.
//
// Thread Safety: all methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig

	// subscriptions is the restore set applied on every (re)connect.
	subscriptions map[string]subscription
	subMu         sync.RWMutex

	connected atomic.Bool

	// Connection event callbacks (optional).
	onConnect    func()
	onDisconnect func(err error)
	callbackMu   sync.RWMutex

	logger   Logger
	loggerMu sync.RWMutex
}

// Logger is the minimal logging interface accepted by this package.
// Compatible with the infrastructure logging wrapper.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

// subscription is one entry in the reconnect restore set.
type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler is the callback signature for received messages, typically
// a command payload arriving on habitron/command/<router>/<module>.
//
// Handlers run on paho's delivery goroutines and should not block; a
// returned error is logged, it does not affect message acknowledgement.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and announces the daemon.
//
// The connection carries an LWT on habitron/system/status so the broker
// reports an unexpected death; on every successful (re)connect the client
// restores its subscriptions and publishes the online payload.
//
// Parameters:
//   - cfg: MQTT section of the daemon configuration
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed if the broker does not answer in time
func Connect(cfg config.MQTTConfig) (*Client, error) {
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	c := &Client{
		cfg:           cfg,
		subscriptions: make(map[string]subscription),
	}

	opts.SetOnConnectHandler(func(_ pahomqtt.Client) { c.brokerConnected() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.brokerLost(err) })
	opts.SetReconnectingHandler(func(_ pahomqtt.Client, _ *pahomqtt.ClientOptions) {
		if logger := c.getLogger(); logger != nil {
			logger.Warn("reconnecting to MQTT broker", "broker", cfg.Broker.Host)
		}
	})

	c.client = pahomqtt.NewClient(opts)
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	// The on-connect handler runs asynchronously and may not have fired
	// yet; mark connected here so IsConnected holds as soon as Connect
	// returns.
	c.connected.Store(true)
	return c, nil
}

// brokerConnected runs on every successful connect and reconnect.
func (c *Client) brokerConnected() {
	c.connected.Store(true)
	c.restoreSubscriptions()
	c.publishOnline()

	c.callbackMu.RLock()
	callback := c.onConnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback()
	}
}

// brokerLost runs when paho loses the connection.
func (c *Client) brokerLost(err error) {
	c.connected.Store(false)

	c.callbackMu.RLock()
	callback := c.onDisconnect
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(err)
	}
}

// restoreSubscriptions re-applies the restore set. Failures are logged and
// left for the next reconnect; the alternative is tearing the session down
// mid-restore.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	defer c.subMu.RUnlock()

	for _, sub := range c.subscriptions {
		token := c.client.Subscribe(sub.topic, sub.qos, c.wrapHandler(sub.handler))
		if token.WaitTimeout(defaultPublishTimeout) && token.Error() != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("restoring subscription failed", "topic", sub.topic, "error", token.Error())
			}
		}
	}
}

// publishOnline announces the daemon on the system status topic, retained so
// late subscribers see the current state.
func (c *Client) publishOnline() {
	payload := buildOnlinePayload(c.cfg.Broker.ClientID)
	c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
}

// Close disconnects from the broker.
//
// A clean shutdown publishes the graceful offline payload before
// disconnecting, which distinguishes it from the LWT the broker would send
// for a crash. Safe to call on a client that never connected.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		payload := buildOfflinePayload(c.cfg.Broker.ClientID)
		token := c.client.Publish(Topics{}.SystemStatus(), byte(c.cfg.QoS), true, payload)
		token.WaitTimeout(defaultPublishTimeout)
	}

	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports whether the broker connection is alive.
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("mqtt health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected returns the current connection state as last reported by the
// paho event handlers.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers a callback for connect and reconnect events.
func (c *Client) SetOnConnect(callback func()) {
	c.callbackMu.Lock()
	c.onConnect = callback
	c.callbackMu.Unlock()
}

// SetOnDisconnect registers a callback for lost connections. The error
// describes why the connection dropped.
func (c *Client) SetOnDisconnect(callback func(err error)) {
	c.callbackMu.Lock()
	c.onDisconnect = callback
	c.callbackMu.Unlock()
}

// SetLogger sets the logger for handler errors and reconnect events.
func (c *Client) SetLogger(logger Logger) {
	c.loggerMu.Lock()
	c.logger = logger
	c.loggerMu.Unlock()
}

func (c *Client) getLogger() Logger {
	c.loggerMu.RLock()
	defer c.loggerMu.RUnlock()
	return c.logger
}

// wrapHandler adapts a MessageHandler to paho's signature with panic
// recovery. A panicking command handler must not take the whole MQTT
// session down with it.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if logger := c.getLogger(); logger != nil {
					logger.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if logger := c.getLogger(); logger != nil {
				logger.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
