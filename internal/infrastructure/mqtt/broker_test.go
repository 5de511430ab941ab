package mqtt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/gorilla/websocket"
)

// fakeBroker is a minimal MQTT-over-WebSocket broker: it answers CONNECT,
// SUBSCRIBE, UNSUBSCRIBE, PUBLISH and PINGREQ, and can push messages to
// the connected client.
type fakeBroker struct {
	t      *testing.T
	server *httptest.Server

	mu sync.Mutex
	// connackCode is returned in CONNACK; 0 accepts.
	connackCode byte
	// status, when non-zero, refuses the upgrade with this HTTP status.
	status int

	conn       *wsConn
	userAgent  string
	subscribed []string
	published  map[string][]byte
	connected  chan struct{}
}

func newFakeBroker(t *testing.T) *fakeBroker {
	t.Helper()
	b := &fakeBroker{
		t:         t,
		published: make(map[string][]byte),
		connected: make(chan struct{}, 1),
	}
	b.server = httptest.NewServer(http.HandlerFunc(b.serve))
	t.Cleanup(b.server.Close)
	return b
}

// url returns the ws:// address, standing in for a signed wss:// URL.
func (b *fakeBroker) url(context.Context) (string, error) {
	return "ws" + strings.TrimPrefix(b.server.URL, "http") + "/mqtt", nil
}

func (b *fakeBroker) config() Config {
	return Config{Endpoint: "broker.test", URL: b.url, QoS: 1, UserAgent: "okhttp/4.11.0"}
}

func (b *fakeBroker) serve(w http.ResponseWriter, r *http.Request) {
	b.mu.Lock()
	b.userAgent = r.Header.Get("User-Agent")
	status := b.status
	b.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	up := websocket.Upgrader{Subprotocols: []string{subprotocol}}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		b.t.Errorf("upgrade: %v", err)
		return
	}
	if ws.Subprotocol() != subprotocol {
		b.t.Errorf("Subprotocol() = %q, want %q", ws.Subprotocol(), subprotocol)
	}
	conn := &wsConn{ws: ws, record: func(error) {}}

	b.mu.Lock()
	b.conn = conn
	b.mu.Unlock()

	b.loop(conn)
}

func (b *fakeBroker) loop(conn *wsConn) {
	defer conn.Close() //nolint:errcheck // test broker
	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := cp.(type) {
		case *packets.ConnectPacket:
			b.mu.Lock()
			code := b.connackCode
			b.mu.Unlock()
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = code
			b.write(conn, ack)
			if code != packets.Accepted {
				return
			}
			select {
			case b.connected <- struct{}{}:
			default:
			}
		case *packets.SubscribePacket:
			b.mu.Lock()
			b.subscribed = append(b.subscribed, p.Topics...)
			b.mu.Unlock()
			ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			ack.MessageID = p.MessageID
			ack.ReturnCodes = p.Qoss
			b.write(conn, ack)
		case *packets.UnsubscribePacket:
			ack := packets.NewControlPacket(packets.Unsuback).(*packets.UnsubackPacket)
			ack.MessageID = p.MessageID
			b.write(conn, ack)
		case *packets.PublishPacket:
			b.mu.Lock()
			b.published[p.TopicName] = p.Payload
			b.mu.Unlock()
			if p.Qos == 1 {
				ack := packets.NewControlPacket(packets.Puback).(*packets.PubackPacket)
				ack.MessageID = p.MessageID
				b.write(conn, ack)
			}
		case *packets.PingreqPacket:
			b.write(conn, packets.NewControlPacket(packets.Pingresp))
		case *packets.DisconnectPacket:
			return
		}
	}
}

func (b *fakeBroker) write(conn *wsConn, cp packets.ControlPacket) {
	if err := cp.Write(conn); err != nil {
		b.t.Logf("broker write: %v", err)
	}
}

// push sends a QoS 0 PUBLISH to the connected client.
func (b *fakeBroker) push(topic string, payload []byte) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()

	p := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
	p.TopicName = topic
	p.Payload = payload
	b.write(conn, p)
}

// closeWith sends a WebSocket close frame with code.
func (b *fakeBroker) closeWith(code int) {
	b.mu.Lock()
	conn := b.conn
	b.mu.Unlock()
	msg := websocket.FormatCloseMessage(code, "")
	conn.wmu.Lock()
	conn.ws.WriteMessage(websocket.CloseMessage, msg) //nolint:errcheck // test broker
	conn.wmu.Unlock()
}

// reject makes later connections fail at the upgrade (status) or at
// CONNACK (code).
func (b *fakeBroker) reject(status int, code byte) {
	b.mu.Lock()
	b.status, b.connackCode = status, code
	b.mu.Unlock()
}

func (b *fakeBroker) agent() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.userAgent
}

func (b *fakeBroker) subscriptions() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.subscribed...)
}

func (b *fakeBroker) payload(topic string) []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.published[topic]
}
