package mqtt

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// doneToken is an already-completed paho token.
type doneToken struct {
	err error
}

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Error() error                   { return t.err }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}

type recordingConn struct {
	mu           sync.Mutex
	published    []Message
	subscribed   []string
	publishErr   error
	disconnected bool
}

func (r *recordingConn) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.publishErr != nil {
		return doneToken{err: r.publishErr}
	}
	r.published = append(r.published, Message{Topic: topic, Payload: payload.([]byte), QoS: qos, Retained: retained})
	return doneToken{}
}

func (r *recordingConn) Subscribe(topic string, _ byte, _ paho.MessageHandler) paho.Token {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscribed = append(r.subscribed, topic)
	return doneToken{}
}

func (r *recordingConn) Disconnect(uint) {
	r.mu.Lock()
	r.disconnected = true
	r.mu.Unlock()
}

func (r *recordingConn) topics() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.published {
		out = append(out, m.Topic)
	}
	return out
}

func newTestClient(o Options) (*RealClient, *recordingConn) {
	conn := &recordingConn{}
	c := newClient(o, nil)
	c.conn = conn
	return c, conn
}

func TestRealClientBuffersUntilConnected(t *testing.T) {
	online := Text("ha/availability/garage", AvailabilityOnline)
	c, conn := newTestClient(Options{Online: &online})

	require.NoError(t, c.Publish(Text("a", "1")))
	require.NoError(t, c.Publish(Text("b", "2")))
	assert.Empty(t, conn.topics())
	assert.Equal(t, 2, c.Buffered())
	assert.False(t, c.IsConnected())

	c.handleConnect()

	assert.True(t, c.IsConnected())
	assert.Equal(t, 0, c.Buffered())
	assert.Equal(t, []string{"ha/availability/garage", "a", "b"}, conn.topics(),
		"online first, then replay in publish order")

	require.NoError(t, c.Publish(Text("c", "3")))
	assert.Equal(t, []string{"ha/availability/garage", "a", "b", "c"}, conn.topics())
}

func TestRealClientBuffersAfterConnectionLost(t *testing.T) {
	c, conn := newTestClient(Options{})
	c.handleConnect()
	c.handleConnectionLost(errors.New("eof"))

	require.NoError(t, c.Publish(Text("x", "1")))
	assert.Empty(t, conn.topics())
	assert.Equal(t, 1, c.Buffered())

	c.handleConnect()
	assert.Equal(t, []string{"x"}, conn.topics())
}

func TestRealClientResubscribesOnConnect(t *testing.T) {
	c, conn := newTestClient(Options{})

	require.NoError(t, c.Subscribe("homeassistant/register", func(string, []byte) {}))
	assert.Empty(t, conn.subscribed, "no subscribe before the connection is up")

	c.handleConnect()
	assert.Equal(t, []string{"homeassistant/register"}, conn.subscribed)

	c.handleConnectionLost(errors.New("eof"))
	c.handleConnect()
	assert.Len(t, conn.subscribed, 2)
}

func TestRealClientRunsHooksAfterConnect(t *testing.T) {
	c, conn := newTestClient(Options{})
	var seen []string
	c.OnConnect(func() {
		seen = append(seen, "hook")
		_ = c.Publish(Text("announce", "{}"))
	})

	c.handleConnect()
	assert.Equal(t, []string{"hook"}, seen)
	assert.Equal(t, []string{"announce"}, conn.topics())
}

func TestRealClientPublishError(t *testing.T) {
	c, conn := newTestClient(Options{})
	c.handleConnect()
	conn.publishErr = errors.New("payload too large")

	err := c.Publish(Text("t", "1"))
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "publish t"))
}

func TestRealClientBuffersWhileReconnecting(t *testing.T) {
	c, conn := newTestClient(Options{})
	c.handleConnect()
	conn.publishErr = paho.ErrNotConnected

	require.NoError(t, c.Publish(Text("x", "1")))
	require.NoError(t, c.Publish(Text("y", "2")))
	assert.Equal(t, 2, c.Buffered())
	assert.False(t, c.IsConnected())

	conn.publishErr = nil
	c.handleConnectionLost(errors.New("eof"))
	c.handleConnect()
	assert.Equal(t, []string{"x", "y"}, conn.topics())
	assert.Equal(t, 0, c.Buffered())
}

func TestRealClientCloseSendsWill(t *testing.T) {
	will := Message{Topic: "ha/availability/garage", Payload: []byte(AvailabilityOffline), QoS: 1, Retained: true}
	c, conn := newTestClient(Options{Will: &will})
	c.handleConnect()

	require.NoError(t, c.Close())
	assert.Equal(t, []string{"ha/availability/garage"}, conn.topics())
	assert.True(t, conn.disconnected)
	assert.False(t, c.IsConnected())
}

func TestClientID(t *testing.T) {
	a := ClientID("garage")
	b := ClientID("garage")
	assert.True(t, strings.HasPrefix(a, "garage-"))
	assert.Len(t, a, len("garage-")+8)
	assert.NotEqual(t, a, b)
}

func TestNewRealClientRequiresBroker(t *testing.T) {
	_, err := NewRealClient(Options{}, nil)
	assert.Error(t, err)
}
