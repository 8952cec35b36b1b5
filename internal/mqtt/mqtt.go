// mqtt.go: Package mqtt publishes finalized capture summaries to an MQTT broker.
package mqtt

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/tphakala/parrot-tester/internal/conf"
)

// Client defines the interface for MQTT client operations.
type Client interface {
	// Connect attempts to connect to the MQTT broker.
	Connect(ctx context.Context) error

	// Publish sends payload to topic. It returns an error if the publish
	// operation fails or times out.
	Publish(ctx context.Context, topic string, payload []byte) error

	// IsConnected returns true if the client is currently connected to the MQTT broker.
	IsConnected() bool

	// Disconnect closes the connection to the MQTT broker.
	Disconnect()
}

// Config holds the configuration for the MQTT client.
type Config struct {
	Broker            string
	ClientID          string
	Username          string
	Password          string
	Topic             string // Topic capture summaries are published to
	Retain            bool   // true to retain messages at the broker
	QoS               byte
	ReconnectCooldown time.Duration
	// Connection timeouts
	ConnectTimeout    time.Duration
	PublishTimeout    time.Duration
	DisconnectTimeout time.Duration
}

// DefaultConfig returns a Config with reasonable default values
func DefaultConfig() Config {
	return Config{
		Topic:             "parrot-tester/captures",
		ReconnectCooldown: 5 * time.Second,
		ConnectTimeout:    30 * time.Second,
		PublishTimeout:    10 * time.Second,
		DisconnectTimeout: 250 * time.Millisecond,
	}
}

// ConfigFromSettings builds a client Config from the mqtt section of the
// settings. An empty client id gets a random one so that two testers on the
// same broker do not kick each other off.
func ConfigFromSettings(s *conf.MQTTSettings) Config {
	cfg := DefaultConfig()
	cfg.Broker = s.Broker
	cfg.ClientID = s.ClientID
	cfg.Username = s.Username
	cfg.Password = s.Password
	cfg.Retain = s.Retain
	cfg.QoS = s.QoS
	if s.Topic != "" {
		cfg.Topic = s.Topic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "parrot-tester-" + uuid.NewString()[:8]
	}
	return cfg
}
