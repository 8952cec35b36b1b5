package mqtt

import (
	"context"
	"net"
	"net/url"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/tphakala/parrot-tester/internal/errors"
	"github.com/tphakala/parrot-tester/internal/logger"
	"github.com/tphakala/parrot-tester/internal/observability/metrics"
	"github.com/tphakala/parrot-tester/internal/privacy"
)

// client implements the Client interface on top of paho.
type client struct {
	config          Config
	internalClient  mqtt.Client
	lastConnAttempt time.Time
	mu              sync.Mutex
	metrics         *metrics.MQTTMetrics
	log             logger.Logger

	newClient func(*mqtt.ClientOptions) mqtt.Client
}

// NewClient creates a new MQTT client with the provided configuration.
// m may be nil.
func NewClient(cfg Config, m *metrics.MQTTMetrics, log logger.Logger) (Client, error) {
	if _, err := url.Parse(cfg.Broker); err != nil || cfg.Broker == "" {
		return nil, errors.Newf("invalid broker URL %q", privacy.SanitizeURL(cfg.Broker)).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return &client{
		config:    cfg,
		metrics:   m,
		log:       log.Module("mqtt"),
		newClient: mqtt.NewClient,
	}, nil
}

// Connect attempts to establish a connection to the MQTT broker.
// It first resolves the broker's hostname and then attempts to connect.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.lastConnAttempt.IsZero() && time.Since(c.lastConnAttempt) < c.config.ReconnectCooldown {
		return errors.Newf("connection attempt too recent, last attempt was %v ago", time.Since(c.lastConnAttempt)).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Build()
	}
	c.lastConnAttempt = time.Now()

	u, err := url.Parse(c.config.Broker)
	if err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryConfiguration).
			Context("broker", privacy.SanitizeURL(c.config.Broker)).
			Build()
	}

	host := u.Hostname()
	if net.ParseIP(host) == nil {
		if _, err := net.DefaultResolver.LookupHost(ctx, host); err != nil {
			return errors.New(err).
				Component("mqtt").
				Category(errors.CategoryMQTTConnect).
				Context("operation", "resolve_broker").
				Context("host", host).
				Build()
		}
	}

	// A client left over from a failed attempt may still be dialing; it must
	// not come up next to its replacement under the same client id.
	c.closeInternalClient()
	c.internalClient = c.newClient(c.clientOptions())

	token := c.internalClient.Connect()
	if !token.WaitTimeout(c.config.ConnectTimeout) {
		return errors.Newf("connection timeout after %v", c.config.ConnectTimeout).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Context("broker", privacy.SanitizeURL(c.config.Broker)).
			Build()
	}
	if err := token.Error(); err != nil {
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTConnect).
			Context("broker", privacy.SanitizeURL(c.config.Broker)).
			Build()
	}

	c.metrics.UpdateConnectionStatus(true)
	return nil
}

func (c *client) clientOptions() *mqtt.ClientOptions {
	opts := mqtt.NewClientOptions()
	opts.AddBroker(c.config.Broker)
	opts.SetClientID(c.config.ClientID)
	opts.SetUsername(c.config.Username)
	opts.SetPassword(c.config.Password)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(c.onConnect)
	opts.SetConnectionLostHandler(c.onConnectionLost)
	return opts
}

// Publish sends a message to the specified topic on the MQTT broker.
func (c *client) Publish(ctx context.Context, topic string, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.isConnected() {
		return errors.Newf("not connected to MQTT broker").
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	start := time.Now()
	token := c.internalClient.Publish(topic, c.config.QoS, c.config.Retain, payload)

	timeout := c.config.PublishTimeout
	if deadline, ok := ctx.Deadline(); ok && time.Until(deadline) < timeout {
		timeout = time.Until(deadline)
	}
	if !token.WaitTimeout(timeout) {
		c.metrics.IncrementErrors()
		return errors.Newf("publish timeout for topic %s", topic).
			Component("mqtt").
			Category(errors.CategoryTimeout).
			Build()
	}
	if err := token.Error(); err != nil {
		c.metrics.IncrementErrors()
		return errors.New(err).
			Component("mqtt").
			Category(errors.CategoryMQTTPublish).
			Context("topic", topic).
			Build()
	}

	c.metrics.ObservePublishLatency(time.Since(start))
	c.metrics.IncrementMessagesDelivered()
	c.metrics.ObserveMessageSize(len(payload))
	return nil
}

// IsConnected returns true if the client is currently connected to the MQTT broker.
func (c *client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isConnected()
}

func (c *client) isConnected() bool {
	return c.internalClient != nil && c.internalClient.IsConnected()
}

// Disconnect closes the connection to the MQTT broker.
func (c *client) Disconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeInternalClient()
}

// closeInternalClient disconnects and drops the paho client, including one
// that never finished connecting.
func (c *client) closeInternalClient() {
	if c.internalClient == nil {
		return
	}
	wasConnected := c.internalClient.IsConnected()
	c.internalClient.Disconnect(uint(c.config.DisconnectTimeout.Milliseconds()))
	c.internalClient = nil
	if wasConnected {
		c.metrics.UpdateConnectionStatus(false)
	}
}

func (c *client) onConnect(mqtt.Client) {
	c.log.Info("connected to MQTT broker", logger.String("broker", privacy.SanitizeURL(c.config.Broker)))
	c.metrics.UpdateConnectionStatus(true)
}

func (c *client) onConnectionLost(_ mqtt.Client, err error) {
	c.log.Warn("connection to MQTT broker lost",
		logger.String("broker", privacy.SanitizeURL(c.config.Broker)),
		logger.Error(err))
	c.metrics.UpdateConnectionStatus(false)
	c.metrics.IncrementErrors()
}
