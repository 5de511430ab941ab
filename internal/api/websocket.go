package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mysa-core/internal/infrastructure/config"
	"github.com/nerrad567/mysa-core/internal/infrastructure/logging"
	"github.com/nerrad567/mysa-core/internal/state"
)

// Stream frame types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeAck         = "ack"
	WSTypeSnapshot    = "snapshot"
	WSTypeState       = "state"
	WSTypeError       = "error"

	// AllDevices subscribes to every device, including ones that get state
	// after the subscription was made.
	AllDevices = "*"

	// wsSendBufferSize is the per-client outbound frame buffer size.
	wsSendBufferSize = 256
)

// WSMessage is one frame of the device state stream, in either direction.
//
// Clients send subscribe and unsubscribe frames naming Devices, and ping.
// The server answers with ack, pong or error frames carrying the same ID,
// sends a snapshot frame per newly subscribed device that has state, and
// then a state frame for each accepted change.
type WSMessage struct {
	Type     string             `json:"type"`
	ID       string             `json:"id,omitempty"`
	Devices  []string           `json:"devices,omitempty"`
	DeviceID string             `json:"device_id,omitempty"`
	State    *state.DeviceState `json:"state,omitempty"`
	Change   *state.Event       `json:"change,omitempty"`
	Error    string             `json:"error,omitempty"`
}

// StateReader is the part of the state store the stream takes snapshots
// from.
type StateReader interface {
	Read(deviceID string) (state.DeviceState, bool)
	DeviceIDs() []string
}

// HubStats holds stream counters.
type HubStats struct {
	Clients   int
	Delivered uint64
	Dropped   uint64
}

// Hub fans accepted state changes out to stream clients, each subscribed
// to a set of devices.
type Hub struct {
	states  StateReader
	logger  *logging.Logger
	clients map[*WSClient]struct{}
	mu      sync.RWMutex

	delivered, dropped atomic.Uint64
}

// WSClient is one connected stream client.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// mu is held while a client's subscriptions change and while a change
	// is queued for it, so snapshots precede the changes that follow them.
	mu      sync.Mutex
	all     bool
	devices map[string]struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API listens for local consumers only.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates a hub reading snapshots from states.
func NewHub(states StateReader, logger *logging.Logger) *Hub {
	return &Hub{
		states:  states,
		logger:  logger,
		clients: make(map[*WSClient]struct{}),
	}
}

// Run blocks until ctx is cancelled, then disconnects every client.
func (h *Hub) Run(ctx context.Context) {
	<-ctx.Done()
	h.closeAll()
}

// Register adds a client to the hub.
func (h *Hub) Register(client *WSClient) {
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	h.logger.Debug("state stream client connected", "clients", h.ClientCount())
}

// Unregister removes a client. Only the call that removes it closes its
// send channel.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	h.mu.Unlock()

	if existed {
		close(client.send)
	}
	h.logger.Debug("state stream client disconnected", "clients", h.ClientCount())
}

// Publish queues ev for every client subscribed to its device. A client
// whose buffer is full misses the change; it is counted as dropped.
func (h *Hub) Publish(ev state.Event) {
	data, err := json.Marshal(WSMessage{Type: WSTypeState, DeviceID: ev.DeviceID, Change: &ev})
	if err != nil {
		h.logger.Error("encoding state frame", "device_id", ev.DeviceID, "error", err)
		return
	}

	h.mu.RLock()
	clients := make([]*WSClient, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		client.deliver(ev.DeviceID, data)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Stats returns stream counters.
func (h *Hub) Stats() HubStats {
	return HubStats{
		Clients:   h.ClientCount(),
		Delivered: h.delivered.Load(),
		Dropped:   h.dropped.Load(),
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.clients {
		close(client.send)
		if client.conn != nil {
			client.conn.Close()
		}
		delete(h.clients, client)
	}
}

// handleWebSocket upgrades to the state stream. Devices named in ?devices=
// (comma separated, or "*") are subscribed at once.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := newWSClient(s.hub, conn)
	s.hub.Register(client)

	if q := r.URL.Query().Get("devices"); q != "" {
		var ids []string
		for id := range strings.SplitSeq(q, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
		client.subscribe("", ids, false)
	}

	go client.writePump(s.wsCfg)
	go client.readPump(s.wsCfg)
}

func newWSClient(hub *Hub, conn *websocket.Conn) *WSClient {
	return &WSClient{
		hub:     hub,
		conn:    conn,
		send:    make(chan []byte, wsSendBufferSize),
		devices: make(map[string]struct{}),
	}
}

func (c *WSClient) readPump(cfg config.WebSocketConfig) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(int64(cfg.MaxMessageSize))
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	pongWait := time.Duration(cfg.PongTimeout) * time.Second
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("state stream read error", "error", err)
			} else {
				c.hub.logger.Debug("state stream closed", "error", err)
			}
			return
		}
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		c.handleMessage(message)
	}
}

func (c *WSClient) writePump(cfg config.WebSocketConfig) {
	pingInterval := time.Duration(cfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	pongWait := time.Duration(cfg.PongTimeout) * time.Second

	for {
		select {
		case message, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close message
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(pongWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg WSMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.reply(WSMessage{Type: WSTypeError, Error: "invalid JSON frame"})
		return
	}

	switch msg.Type {
	case WSTypeSubscribe:
		if len(msg.Devices) == 0 {
			c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Error: "devices is required"})
			return
		}
		c.subscribe(msg.ID, msg.Devices, true)
	case WSTypeUnsubscribe:
		c.unsubscribe(msg.ID, msg.Devices)
	case WSTypePing:
		c.reply(WSMessage{Type: WSTypePong, ID: msg.ID})
	default:
		c.reply(WSMessage{Type: WSTypeError, ID: msg.ID, Error: "unknown frame type: " + msg.Type})
	}
}

// subscribe adds devices and queues a snapshot of each one that has state
// and was not already subscribed. With ack set the acknowledgement is
// queued first.
func (c *WSClient) subscribe(id string, devices []string, ack bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ack {
		c.queueFrame(WSMessage{Type: WSTypeAck, ID: id, Devices: devices})
	}

	var fresh []string
	if slices.Contains(devices, AllDevices) {
		if !c.all {
			for _, d := range c.hub.states.DeviceIDs() {
				if _, ok := c.devices[d]; !ok {
					fresh = append(fresh, d)
				}
			}
		}
		c.all = true
	} else if !c.all {
		for _, d := range devices {
			if _, ok := c.devices[d]; !ok {
				c.devices[d] = struct{}{}
				fresh = append(fresh, d)
			}
		}
	}

	for _, d := range fresh {
		if st, ok := c.hub.states.Read(d); ok {
			c.queueFrame(WSMessage{Type: WSTypeSnapshot, DeviceID: d, State: &st})
		}
	}
	c.hub.logger.Debug("state stream subscribed", "devices", devices, "snapshots", len(fresh))
}

// unsubscribe removes devices. AllDevices, or no devices at all, clears
// every subscription.
func (c *WSClient) unsubscribe(id string, devices []string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(devices) == 0 || slices.Contains(devices, AllDevices) {
		c.all = false
		clear(c.devices)
	} else {
		for _, d := range devices {
			delete(c.devices, d)
		}
	}
	c.queueFrame(WSMessage{Type: WSTypeAck, ID: id, Devices: devices})
}

// deliver queues a state frame if the client follows deviceID.
func (c *WSClient) deliver(deviceID string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.all {
		if _, ok := c.devices[deviceID]; !ok {
			return
		}
	}
	c.trySend(data)
}

func (c *WSClient) reply(msg WSMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.queueFrame(msg)
}

// queueFrame encodes and queues msg. Caller holds mu.
func (c *WSClient) queueFrame(msg WSMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.hub.logger.Error("encoding stream frame", "type", msg.Type, "error", err)
		return
	}
	c.trySend(data)
}

// trySend queues data without blocking. A full buffer drops the frame; a
// closed one (client gone during shutdown) is ignored.
func (c *WSClient) trySend(data []byte) {
	defer func() {
		recover() //nolint:errcheck // Absorb send-on-closed-channel panic
	}()

	select {
	case c.send <- data:
		c.hub.delivered.Add(1)
	default:
		c.hub.dropped.Add(1)
	}
}
