package mqtt

import (
	"context"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
)

// stubToken completes immediately unless timeout is set.
type stubToken struct {
	timeout bool
	err     error
}

func (t *stubToken) Wait() bool                     { return !t.timeout }
func (t *stubToken) WaitTimeout(time.Duration) bool { return !t.timeout }
func (t *stubToken) Error() error                   { return t.err }

func (t *stubToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if !t.timeout {
		close(ch)
	}
	return ch
}

// stubPahoClient records lifecycle calls made on one paho client.
type stubPahoClient struct {
	connectToken *stubToken
	connected    bool
	disconnects  int
}

func (c *stubPahoClient) IsConnected() bool      { return c.connected }
func (c *stubPahoClient) IsConnectionOpen() bool { return c.connected }

func (c *stubPahoClient) Connect() paho.Token {
	if !c.connectToken.timeout && c.connectToken.err == nil {
		c.connected = true
	}
	return c.connectToken
}

func (c *stubPahoClient) Disconnect(uint) {
	c.disconnects++
	c.connected = false
}

func (c *stubPahoClient) Publish(string, byte, bool, any) paho.Token {
	return &stubToken{}
}

func (c *stubPahoClient) Subscribe(string, byte, paho.MessageHandler) paho.Token {
	return &stubToken{}
}

func (c *stubPahoClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &stubToken{}
}

func (c *stubPahoClient) Unsubscribe(...string) paho.Token        { return &stubToken{} }
func (c *stubPahoClient) AddRoute(string, paho.MessageHandler)    {}
func (c *stubPahoClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

// newStubbedClient returns a client whose paho clients are handed out from
// stubs in order.
func newStubbedClient(t *testing.T, stubs ...*stubPahoClient) *client {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Broker = "tcp://127.0.0.1:1883"
	cfg.ClientID = "parrot-tester-test"
	cfg.ReconnectCooldown = 0

	c, err := NewClient(cfg, nil, logger.NewDiscard())
	require.NoError(t, err)
	impl, ok := c.(*client)
	require.True(t, ok)

	next := 0
	impl.newClient = func(*paho.ClientOptions) paho.Client {
		require.Less(t, next, len(stubs), "unexpected paho client creation")
		s := stubs[next]
		next++
		return s
	}
	return impl
}

func TestConnectReplacesTimedOutClient(t *testing.T) {
	t.Parallel()

	stalled := &stubPahoClient{connectToken: &stubToken{timeout: true}}
	healthy := &stubPahoClient{connectToken: &stubToken{}}
	c := newStubbedClient(t, stalled, healthy)

	err := c.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryTimeout))
	assert.Zero(t, stalled.disconnects, "a stalled client is kept until it is replaced")

	require.NoError(t, c.Connect(context.Background()))
	assert.Equal(t, 1, stalled.disconnects, "the stalled client is shut down before its replacement dials")
	assert.True(t, c.IsConnected())

	c.Disconnect()
	assert.Equal(t, 1, healthy.disconnects)
	assert.False(t, c.IsConnected())
}

func TestDisconnectStopsPendingClient(t *testing.T) {
	t.Parallel()

	stalled := &stubPahoClient{connectToken: &stubToken{timeout: true}}
	c := newStubbedClient(t, stalled)

	require.Error(t, c.Connect(context.Background()))
	c.Disconnect()
	assert.Equal(t, 1, stalled.disconnects, "a client that never connected is still shut down")

	c.Disconnect()
	assert.Equal(t, 1, stalled.disconnects, "disconnecting twice is a no-op")
}
