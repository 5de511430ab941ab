package mqtt

import (
	"context"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for the upgrade and CONNACK.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// defaultPingTimeout is how long a PINGRESP may take before the
	// connection is declared lost.
	defaultPingTimeout = 10 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// clientIDPrefix starts every generated client id.
	clientIDPrefix = "mysa-core-"
)

// Config describes one broker session.
type Config struct {
	// Endpoint is the broker host, used for the placeholder broker URI and logs.
	Endpoint string

	// URL returns a freshly signed wss:// URL for each connection attempt.
	URL func(ctx context.Context) (string, error)

	// ClientID defaults to a random id; the broker drops an older session
	// that reuses an id.
	ClientID string

	UserAgent      string
	QoS            byte
	KeepAlive      time.Duration
	PingTimeout    time.Duration
	ConnectTimeout time.Duration
}

func (c *Config) applyDefaults() {
	if c.ClientID == "" {
		c.ClientID = clientIDPrefix + uuid.NewString()
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = defaultKeepAlive
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = defaultPingTimeout
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.QoS > maxQoS {
		c.QoS = 1
	}
}

// buildClientOptions creates paho MQTT options for one broker session.
//
// This configures:
//   - The WebSocket transport in place of paho's own dialer
//   - Client ID for identification
//   - Keepalive and ping timeout
//   - Clean session mode
//   - In-order message delivery
//
// Paho's auto-reconnect stays off: every attempt needs a newly signed URL,
// so reconnection belongs to the caller.
func buildClientOptions(cfg Config, tr *transport) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(fmt.Sprintf("wss://%s/mqtt", cfg.Endpoint))
	opts.SetCustomOpenConnectionFn(tr.open)

	opts.SetClientID(cfg.ClientID)
	opts.SetProtocolVersion(4)
	opts.SetCleanSession(true)

	opts.SetAutoReconnect(false)
	opts.SetConnectRetry(false)

	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetPingTimeout(cfg.PingTimeout)
	opts.SetWriteTimeout(defaultPublishTimeout)

	// Handlers run one at a time in arrival order, so they must not block
	// on this client.
	opts.SetOrderMatters(true)

	return opts
}
