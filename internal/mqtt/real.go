package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/gofrs/uuid"
	"go.uber.org/zap"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealClient.
type Options struct {
	Broker   string
	ClientID string // generated when empty
	Username string
	Password string

	// Will is registered as the last will and published on Close.
	Will *Message
	// Online is published on every (re)connect, before buffered messages.
	Online *Message

	BufferSize int
}

// brokerConn is the subset of paho.Client used here.
type brokerConn interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
	Disconnect(quiesce uint)
}

// RealClient publishes to and subscribes on an actual MQTT broker. Messages
// published while disconnected are buffered and replayed in order once the
// connection is back.
type RealClient struct {
	conn brokerConn
	log  *zap.SugaredLogger

	will   *Message
	online *Message

	mu        sync.Mutex
	connected bool
	buf       *ringBuffer
	subs      map[string]Handler
	hooks     []func()
}

// ClientID returns prefix followed by a random suffix.
func ClientID(prefix string) string {
	u, err := uuid.NewV4()
	if err != nil {
		return prefix
	}
	return prefix + "-" + u.String()[:8]
}

// NewRealClient connects to the broker. A connection that cannot be
// established within the connect timeout is an error.
func NewRealClient(o Options, log *zap.SugaredLogger) (*RealClient, error) {
	if o.Broker == "" {
		return nil, errors.New("broker address required")
	}
	if o.ClientID == "" {
		o.ClientID = ClientID("home-sensors")
	}

	c := newClient(o, log)

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOnConnectHandler(func(paho.Client) { c.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { c.handleConnectionLost(err) })
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}
	if o.Will != nil {
		opts.SetBinaryWill(o.Will.Topic, o.Will.Payload, o.Will.QoS, o.Will.Retained)
	}

	pc := paho.NewClient(opts)
	c.conn = pc

	c.log.Infow("connecting", "broker", o.Broker, "client_id", o.ClientID)
	token := pc.Connect()
	if !token.WaitTimeout(connectTimeout) {
		pc.Disconnect(0)
		return nil, fmt.Errorf("connect to %s: timeout after %v", o.Broker, connectTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return c, nil
}

func newClient(o Options, log *zap.SugaredLogger) *RealClient {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("mqtt")
	return &RealClient{
		log:    log,
		will:   o.Will,
		online: o.Online,
		buf:    newRingBuffer(o.BufferSize, log),
		subs:   make(map[string]Handler),
	}
}

// OnConnect registers fn to run after every (re)connect.
func (c *RealClient) OnConnect(fn func()) {
	c.mu.Lock()
	c.hooks = append(c.hooks, fn)
	c.mu.Unlock()
}

func (c *RealClient) handleConnect() {
	c.mu.Lock()
	for filter, h := range c.subs {
		c.subscribe(filter, h)
	}
	if c.online != nil {
		_ = c.send(*c.online)
	}
	replay := c.buf.drain()
	for _, msg := range replay {
		if err := c.send(msg); err != nil {
			c.log.Warnw("replay failed", "topic", msg.Topic, "error", err)
		}
	}
	c.connected = true
	hooks := append([]func(){}, c.hooks...)
	c.mu.Unlock()

	c.log.Infow("connected", "replayed", len(replay))
	for _, fn := range hooks {
		fn()
	}
}

func (c *RealClient) handleConnectionLost(err error) {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
	c.log.Warnw("connection lost", "error", err)
}

// Publish queues msg on the connection without waiting for the broker. While
// disconnected the message is buffered instead. A connection that drops
// before the lost handler has run is treated the same way.
func (c *RealClient) Publish(msg Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		c.buf.push(msg)
		return nil
	}
	err := c.send(msg)
	if errors.Is(err, paho.ErrNotConnected) {
		c.connected = false
		c.buf.push(msg)
		c.log.Debugw("broker not connected, buffering", "topic", msg.Topic)
		return nil
	}
	return err
}

// send must be called with mu held. It never waits on the network.
func (c *RealClient) send(msg Message) error {
	token := c.conn.Publish(msg.Topic, msg.QoS, msg.Retained, msg.Payload)
	select {
	case <-token.Done():
		if err := token.Error(); err != nil {
			return fmt.Errorf("publish %s: %w", msg.Topic, err)
		}
		return nil
	default:
	}
	go c.watch(msg.Topic, token)
	return nil
}

func (c *RealClient) watch(topic string, token paho.Token) {
	if !token.WaitTimeout(publishTimeout) {
		c.log.Warnw("publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		c.log.Warnw("publish failed", "topic", topic, "error", err)
	}
}

// Subscribe registers h for filter. The subscription is renewed on every
// reconnect.
func (c *RealClient) Subscribe(filter string, h Handler) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs[filter] = h
	if c.connected {
		c.subscribe(filter, h)
	}
	return nil
}

func (c *RealClient) subscribe(filter string, h Handler) {
	token := c.conn.Subscribe(filter, 0, func(_ paho.Client, m paho.Message) {
		h(m.Topic(), m.Payload())
	})
	go c.watch(filter, token)
}

// IsConnected reports whether the broker connection is up.
func (c *RealClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Buffered returns the number of messages waiting for a connection.
func (c *RealClient) Buffered() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.len()
}

// Close publishes the will message, then disconnects from the broker.
func (c *RealClient) Close() error {
	c.mu.Lock()
	connected := c.connected
	c.connected = false
	c.mu.Unlock()

	if connected && c.will != nil {
		token := c.conn.Publish(c.will.Topic, c.will.QoS, c.will.Retained, c.will.Payload)
		if !token.WaitTimeout(publishTimeout) {
			c.log.Warnw("will publish timeout", "topic", c.will.Topic)
		}
	}
	c.conn.Disconnect(1000) // 1 second quiesce
	return nil
}
