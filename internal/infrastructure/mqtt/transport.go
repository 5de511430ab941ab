package mqtt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/gorilla/websocket"
)

// subprotocol is the WebSocket subprotocol for MQTT.
const subprotocol = "mqtt"

// closeGrace bounds the close handshake when a connection is torn down.
const closeGrace = time.Second

// transport opens the broker connection as MQTT over WebSocket. The broker
// URL is fetched for every attempt because signed URLs are short-lived and
// bound to the credentials of the moment.
type transport struct {
	ctx     context.Context
	urlFn   func(ctx context.Context) (string, error)
	agent   string
	timeout time.Duration

	mu      sync.Mutex
	lastErr error
}

// open satisfies pahomqtt.OpenConnectionFunc. The placeholder broker URI
// paho passes in is ignored.
func (t *transport) open(_ *url.URL, _ pahomqtt.ClientOptions) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(t.ctx, t.timeout)
	defer cancel()

	target, err := t.urlFn(ctx)
	if err != nil {
		return nil, t.fail(fmt.Errorf("signing broker url: %w", err))
	}

	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: t.timeout,
		Subprotocols:     []string{subprotocol},
	}
	header := http.Header{}
	if t.agent != "" {
		header.Set("User-Agent", t.agent)
	}

	ws, resp, err := dialer.DialContext(ctx, target, header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close() //nolint:errcheck // handshake body is not used
	}
	if err != nil {
		if resp != nil {
			return nil, t.fail(&HandshakeError{StatusCode: resp.StatusCode, Err: err})
		}
		return nil, t.fail(err)
	}

	t.mu.Lock()
	t.lastErr = nil
	t.mu.Unlock()
	return &wsConn{ws: ws, record: t.record}, nil
}

func (t *transport) fail(err error) error {
	t.record(err)
	return err
}

func (t *transport) record(err error) {
	t.mu.Lock()
	t.lastErr = err
	t.mu.Unlock()
}

// err returns the last failure seen by the transport, which keeps the
// HTTP status and close code that paho's own errors drop.
func (t *transport) err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastErr
}

// wsConn presents a WebSocket as the byte stream paho expects. Each Write
// is one binary frame; reads run across frame boundaries.
type wsConn struct {
	ws     *websocket.Conn
	record func(error)

	rmu    sync.Mutex
	reader io.Reader

	wmu sync.Mutex
}

func (c *wsConn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for {
		if c.reader == nil {
			_, r, err := c.ws.NextReader()
			if err != nil {
				var ce *websocket.CloseError
				if errors.As(err, &ce) {
					c.record(err)
				}
				return 0, err
			}
			c.reader = r
		}

		n, err := c.reader.Read(p)
		if errors.Is(err, io.EOF) {
			c.reader = nil
			if n > 0 {
				return n, nil
			}
			continue
		}
		return n, err
	}
}

func (c *wsConn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	if err := c.ws.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *wsConn) Close() error {
	c.wmu.Lock()
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = c.ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeGrace)) //nolint:errcheck // peer may already be gone
	c.wmu.Unlock()
	return c.ws.Close()
}

func (c *wsConn) LocalAddr() net.Addr  { return c.ws.LocalAddr() }
func (c *wsConn) RemoteAddr() net.Addr { return c.ws.RemoteAddr() }

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.ws.SetReadDeadline(t); err != nil {
		return err
	}
	return c.ws.SetWriteDeadline(t)
}

func (c *wsConn) SetReadDeadline(t time.Time) error  { return c.ws.SetReadDeadline(t) }
func (c *wsConn) SetWriteDeadline(t time.Time) error { return c.ws.SetWriteDeadline(t) }
