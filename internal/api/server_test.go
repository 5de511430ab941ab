package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mysa-core/internal/auth"
	"github.com/nerrad567/mysa-core/internal/cloud"
	"github.com/nerrad567/mysa-core/internal/command"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/infrastructure/config"
	"github.com/nerrad567/mysa-core/internal/infrastructure/logging"
	"github.com/nerrad567/mysa-core/internal/realtime"
	"github.com/nerrad567/mysa-core/internal/state"
	"github.com/nerrad567/mysa-core/internal/syncer"
)

const (
	hallID  = "AA:BB:CC:DD:EE:01"
	acID    = "AA:BB:CC:DD:EE:02"
	zoneOne = "zone-1"
)

// fakeEngine records calls and returns canned results.
type fakeEngine struct {
	mu       sync.Mutex
	err      error
	intents  []command.Intent
	modes    []command.SensorMode
	models   []string
	resets   []string
	firmware device.FirmwareInfo
}

func (f *fakeEngine) IssueCommand(_ context.Context, deviceID string, intent command.Intent) (command.WireCommand, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return command.WireCommand{}, f.err
	}
	f.intents = append(f.intents, intent)
	return command.WireCommand{DeviceID: deviceID, ID: int64(len(f.intents)), Intent: intent.Name(), Timer: -1}, nil
}

func (f *fakeEngine) SetSensorMode(_ context.Context, _ string, mode command.SensorMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modes = append(f.modes, mode)
	return f.err
}

func (f *fakeEngine) ConvertModel(_ context.Context, _ string, model string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if model == "" {
		return syncer.ErrInvalidModel
	}
	f.models = append(f.models, model)
	return nil
}

func (f *fakeEngine) FirmwareInfo(_ context.Context, _ string) (device.FirmwareInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.firmware, f.err
}

func (f *fakeEngine) ResetToPairing(_ context.Context, deviceID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets = append(f.resets, deviceID)
	return f.err
}

func (f *fakeEngine) Stats() syncer.Stats {
	return syncer.Stats{Devices: 2, Polls: 3, Commands: 1, Discovered: true, LastPoll: time.Unix(1760000000, 0)}
}

func (f *fakeEngine) setErr(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

type fakeChannelStats struct{}

func (fakeChannelStats) Stats() realtime.Stats {
	return realtime.Stats{State: realtime.StateConnected, Connects: 1, Messages: 12, Subscribed: 2}
}

// testServer creates a Server over an in-memory registry with two homes and
// two devices.
func testServer(t *testing.T) (*Server, *fakeEngine) {
	t.Helper()
	ctx := context.Background()

	registry := device.NewRegistry(nil, nil)
	zone := zoneOne
	if err := registry.ReplaceHomes(ctx, []device.Home{
		{ID: "home-1", Name: "House", Zones: []device.Zone{{ID: zoneOne, Name: "Living Room", HomeID: "home-1"}}},
		{ID: "home-2", Name: "Cottage"},
	}); err != nil {
		t.Fatalf("ReplaceHomes() error = %v", err)
	}
	if err := registry.ReplaceDevices(ctx, []device.Device{
		{ID: hallID, Name: "Hall", Model: "BB-V2-0", HomeID: "home-1", ZoneID: &zone},
		{ID: acID, Name: "Den AC", Model: "AC-V1-1", HomeID: "home-2"},
	}); err != nil {
		t.Fatalf("ReplaceDevices() error = %v", err)
	}

	store := state.NewStore(state.Config{})
	store.ApplyHTTPSnapshot(hallID, map[string]any{"SetPoint": 21.5, "Lock": 0})

	engine := &fakeEngine{firmware: device.FirmwareInfo{UpdateAvailable: true, InstalledVersion: "3.16.2", AllowedVersion: "3.17.0"}}
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host:     "127.0.0.1",
			Port:     0,
			Timeouts: config.APITimeoutConfig{Read: 5, Write: 5, Idle: 5},
		},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   log,
		Registry: registry,
		Store:    store,
		Engine:   engine,
		Channel:  fakeChannelStats{},
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return srv, engine
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decoding %q: %v", rec.Body.String(), err)
	}
	return out
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_MissingDeps(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	registry := device.NewRegistry(nil, nil)
	store := state.NewStore(state.Config{})
	engine := &fakeEngine{}

	tests := []struct {
		name string
		deps Deps
	}{
		{"no logger", Deps{Registry: registry, Store: store, Engine: engine}},
		{"no registry", Deps{Logger: log, Store: store, Engine: engine}},
		{"no store", Deps{Logger: log, Registry: registry, Engine: engine}},
		{"no engine", Deps{Logger: log, Registry: registry, Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	srv, _ := testServer(t)
	if err := srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil before Start()")
	}
	if err := srv.Close(); err != nil {
		t.Errorf("Close() before Start() error = %v", err)
	}
}

// =============================================================================
// Read endpoints
// =============================================================================

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode(t, rec)
	if got["status"] != "ok" || got["version"] != "test" || got["realtime"] != "connected" || got["discovered"] != true {
		t.Errorf("health = %v", got)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Error("response has no X-Request-Id header")
	}
}

func TestListHomes(t *testing.T) {
	srv, _ := testServer(t)
	rec := do(t, srv.buildRouter(), http.MethodGet, "/api/v1/homes", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if got := decode(t, rec)["count"]; got != float64(2) {
		t.Errorf("count = %v, want 2", got)
	}
}

func TestListDevices(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.buildRouter()

	tests := []struct {
		path string
		want float64
	}{
		{"/api/v1/devices", 2},
		{"/api/v1/devices?home_id=home-2", 1},
		{"/api/v1/devices?home_id=nowhere", 0},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(t, h, http.MethodGet, tt.path, "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
			if got := decode(t, rec)["count"]; got != tt.want {
				t.Errorf("count = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestGetDevice(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.buildRouter()

	rec := do(t, h, http.MethodGet, "/api/v1/devices/"+hallID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	got := decode(t, rec)
	if got["id"] != hallID || got["zone_name"] != "Living Room" || got["mac_key"] != "aabbccddee01" {
		t.Errorf("device = %v", got)
	}
	profile, ok := got["profile"].(map[string]any)
	if !ok || profile["model"] != "BB-V2-0" || profile["known"] != true {
		t.Errorf("profile = %v", got["profile"])
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/devices/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

func TestGetDeviceState(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.buildRouter()

	rec := do(t, h, http.MethodGet, "/api/v1/devices/"+hallID+"/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	fields, _ := decode(t, rec)["fields"].(map[string]any)
	sp, _ := fields[state.FieldSetPoint].(map[string]any)
	if sp["value"] != 21.5 || sp["origin"] != "http" {
		t.Errorf("SetPoint = %v", fields[state.FieldSetPoint])
	}

	// Known device, nothing observed yet.
	rec = do(t, h, http.MethodGet, "/api/v1/devices/"+acID+"/state", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if fields, _ := decode(t, rec)["fields"].(map[string]any); len(fields) != 0 {
		t.Errorf("fields = %v, want empty", fields)
	}

	if rec := do(t, h, http.MethodGet, "/api/v1/devices/missing/state", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device status = %d, want 404", rec.Code)
	}
}

// =============================================================================
// Commands
// =============================================================================

func TestCommand(t *testing.T) {
	unsupported := &command.UnsupportedIntentError{
		Intent: "set_fan_speed",
		Field:  device.FieldFanSpeed,
		Family: device.FamilyBaseboard,
		Model:  "BB-V2-0",
	}

	tests := []struct {
		name       string
		body       string
		engineErr  error
		wantStatus int
		wantCode   string
	}{
		{"accepted", `{"type":"set_temperature","celsius":21.5}`, nil, http.StatusAccepted, ""},
		{"malformed json", `{"type":`, nil, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"unknown intent", `{"type":"set_colour"}`, nil, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"missing value", `{"type":"set_temperature"}`, nil, http.StatusUnprocessableEntity, ErrCodeValidation},
		{"unsupported", `{"type":"set_fan_speed","speed":"high"}`, unsupported, http.StatusUnprocessableEntity, ErrCodeUnsupported},
		{"out of range", `{"type":"set_temperature","celsius":40}`, fmt.Errorf("%w: too hot", command.ErrValidation), http.StatusUnprocessableEntity, ErrCodeValidation},
		{"unknown device", `{"type":"set_lock","enabled":true}`, device.ErrDeviceNotFound, http.StatusNotFound, ErrCodeNotFound},
		{"auth rejected", `{"type":"set_lock","enabled":true}`, fmt.Errorf("publishing: %w", auth.ErrAuthentication), http.StatusUnauthorized, ErrCodeUnauthorized},
		{"not connected", `{"type":"set_lock","enabled":true}`, fmt.Errorf("publishing: %w", realtime.ErrNotConnected), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"cloud down", `{"type":"set_lock","enabled":true}`, cloud.ErrTransient, http.StatusServiceUnavailable, ErrCodeUnavailable},
		{"other failure", `{"type":"set_lock","enabled":true}`, errors.New("boom"), http.StatusInternalServerError, ErrCodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, engine := testServer(t)
			engine.setErr(tt.engineErr)

			rec := do(t, srv.buildRouter(), http.MethodPost, "/api/v1/devices/"+hallID+"/commands", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d: %s", rec.Code, tt.wantStatus, rec.Body.String())
			}
			got := decode(t, rec)
			if tt.wantCode == "" {
				if got["intent"] != "set_temperature" || got["command_id"] != float64(1) || got["device_id"] != hallID {
					t.Errorf("response = %v", got)
				}
				return
			}
			if got["code"] != tt.wantCode {
				t.Errorf("code = %v, want %q", got["code"], tt.wantCode)
			}
		})
	}
}

func TestSetSensorMode(t *testing.T) {
	srv, engine := testServer(t)
	h := srv.buildRouter()

	rec := do(t, h, http.MethodPut, "/api/v1/devices/"+hallID+"/sensor-mode", `{"mode":"floor"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(engine.modes) != 1 || engine.modes[0] != command.SensorFloor {
		t.Errorf("modes = %v, want [floor]", engine.modes)
	}

	if rec := do(t, h, http.MethodPut, "/api/v1/devices/"+hallID+"/sensor-mode", `{"mode":"ceiling"}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("unknown mode status = %d, want 422", rec.Code)
	}
	if rec := do(t, h, http.MethodPut, "/api/v1/devices/"+hallID+"/sensor-mode", `nope`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad body status = %d, want 400", rec.Code)
	}
}

func TestConvertModel(t *testing.T) {
	srv, engine := testServer(t)
	h := srv.buildRouter()

	rec := do(t, h, http.MethodPut, "/api/v1/devices/"+hallID+"/model", `{"model":"BB-V2-0-L"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(engine.models) != 1 || engine.models[0] != "BB-V2-0-L" {
		t.Errorf("models = %v", engine.models)
	}

	if rec := do(t, h, http.MethodPut, "/api/v1/devices/"+hallID+"/model", `{"model":""}`); rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("empty model status = %d, want 422", rec.Code)
	}
}

func TestFirmwareAndReset(t *testing.T) {
	srv, engine := testServer(t)
	h := srv.buildRouter()

	rec := do(t, h, http.MethodGet, "/api/v1/devices/"+hallID+"/firmware", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("firmware status = %d, want 200", rec.Code)
	}
	if got := decode(t, rec); got["update"] != true || got["allowedVersion"] != "3.17.0" {
		t.Errorf("firmware = %v", got)
	}

	if rec := do(t, h, http.MethodPost, "/api/v1/devices/"+hallID+"/reset", ""); rec.Code != http.StatusAccepted {
		t.Errorf("reset status = %d, want 202", rec.Code)
	}
	if len(engine.resets) != 1 || engine.resets[0] != hallID {
		t.Errorf("resets = %v", engine.resets)
	}

	engine.setErr(device.ErrDeviceNotFound)
	if rec := do(t, h, http.MethodPost, "/api/v1/devices/missing/reset", ""); rec.Code != http.StatusNotFound {
		t.Errorf("unknown device reset status = %d, want 404", rec.Code)
	}
}

// =============================================================================
// Metrics
// =============================================================================

func TestMetrics(t *testing.T) {
	srv, _ := testServer(t)
	h := srv.buildRouter()

	do(t, h, http.MethodGet, "/api/v1/devices", "")
	rec := do(t, h, http.MethodGet, "/api/v1/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		"mysa_devices 2",
		"mysa_discovered 1",
		"mysa_polls_total 3",
		`mysa_state_updates_total{result="accepted"} 2`,
		`mysa_realtime_state{state="connected"} 1`,
		`mysa_realtime_state{state="disconnected"} 0`,
		`mysa_realtime_events_total{kind="messages"} 12`,
		"mysa_realtime_subscribed_devices 2",
		"mysa_websocket_clients 0",
		`mysa_websocket_frames_total{result="dropped"} 0`,
		`mysa_http_requests_total{method="GET",route="/api/v1/devices/",status="200"} 1`,
		"go_goroutines",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

// =============================================================================
// WebSocket
// =============================================================================

func startWS(t *testing.T, srv *Server, query string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.hub.Run(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	deadline := time.Now().Add(2 * time.Second)
	for srv.hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readWS(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("ReadJSON() error = %v", err)
	}
	return msg
}

func stateEvent(deviceID string, setPoint float64) state.Event {
	at := time.Unix(1760000000, 0).UTC()
	return state.Event{
		DeviceID: deviceID,
		Origin:   state.OriginRealtime,
		At:       at,
		Changes:  map[string]state.Value{state.FieldSetPoint: {Value: setPoint, SourceTime: at, Origin: state.OriginRealtime}},
	}
}

func changedSetPoint(t *testing.T, msg WSMessage) float64 {
	t.Helper()
	if msg.Type != WSTypeState || msg.Change == nil {
		t.Fatalf("frame = %+v, want state frame", msg)
	}
	sp, _ := msg.Change.Changes[state.FieldSetPoint].Value.(float64)
	return sp
}

func TestWebSocket_SubscribeQuery(t *testing.T) {
	srv, _ := testServer(t)
	conn := startWS(t, srv, "?devices="+hallID)

	snap := readWS(t, conn)
	if snap.Type != WSTypeSnapshot || snap.DeviceID != hallID || snap.State == nil {
		t.Fatalf("first frame = %+v, want hall snapshot", snap)
	}
	if sp, _ := snap.State.Float(state.FieldSetPoint); sp != 21.5 {
		t.Errorf("snapshot SetPoint = %v, want 21.5", sp)
	}

	// Only the hall change reaches this client.
	srv.PublishStateEvent(stateEvent(acID, 24))
	srv.PublishStateEvent(stateEvent(hallID, 22))

	msg := readWS(t, conn)
	if msg.DeviceID != hallID {
		t.Errorf("state frame device = %q, want %q", msg.DeviceID, hallID)
	}
	if got := changedSetPoint(t, msg); got != 22 {
		t.Errorf("changed SetPoint = %v, want 22", got)
	}
	if msg.Change.Origin != state.OriginRealtime {
		t.Errorf("change origin = %v, want realtime", msg.Change.Origin)
	}
}

func TestWebSocket_SubscribeAll(t *testing.T) {
	srv, _ := testServer(t)
	conn := startWS(t, srv, "?devices="+AllDevices)

	if snap := readWS(t, conn); snap.Type != WSTypeSnapshot || snap.DeviceID != hallID {
		t.Fatalf("first frame = %+v, want hall snapshot", snap)
	}

	// A device with no state at subscribe time is still followed.
	srv.PublishStateEvent(stateEvent(acID, 24))
	msg := readWS(t, conn)
	if msg.DeviceID != acID {
		t.Errorf("state frame device = %q, want %q", msg.DeviceID, acID)
	}
}

func TestWebSocket_SubscribeMessage(t *testing.T) {
	srv, _ := testServer(t)
	conn := startWS(t, srv, "")

	// Not subscribed yet: nothing is delivered.
	srv.PublishStateEvent(stateEvent(hallID, 22))

	if err := conn.WriteJSON(WSMessage{Type: WSTypeSubscribe, ID: "1", Devices: []string{hallID, acID}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeAck || msg.ID != "1" || len(msg.Devices) != 2 {
		t.Fatalf("subscribe reply = %+v", msg)
	}
	// Only the hall has state to snapshot.
	if msg := readWS(t, conn); msg.Type != WSTypeSnapshot || msg.DeviceID != hallID {
		t.Fatalf("snapshot = %+v", msg)
	}

	srv.PublishStateEvent(stateEvent(acID, 24))
	if got := changedSetPoint(t, readWS(t, conn)); got != 24 {
		t.Errorf("changed SetPoint = %v, want 24", got)
	}

	if err := conn.WriteJSON(WSMessage{Type: WSTypeUnsubscribe, ID: "2", Devices: []string{acID}}); err != nil {
		t.Fatalf("WriteJSON() error = %v", err)
	}
	if msg := readWS(t, conn); msg.Type != WSTypeAck || msg.ID != "2" {
		t.Fatalf("unsubscribe reply = %+v", msg)
	}

	srv.PublishStateEvent(stateEvent(acID, 25))
	srv.PublishStateEvent(stateEvent(hallID, 23))
	msg := readWS(t, conn)
	if msg.DeviceID != hallID {
		t.Errorf("state frame device = %q, want %q", msg.DeviceID, hallID)
	}

	tests := []struct {
		name    string
		frame   string
		wantTyp string
		wantID  string
	}{
		{"ping", `{"type":"ping","id":"3"}`, WSTypePong, "3"},
		{"bad JSON", `{`, WSTypeError, ""},
		{"subscribe without devices", `{"type":"subscribe","id":"4"}`, WSTypeError, "4"},
		{"unknown type", `{"type":"shout","id":"5"}`, WSTypeError, "5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(tt.frame)); err != nil {
				t.Fatalf("WriteMessage() error = %v", err)
			}
			msg := readWS(t, conn)
			if msg.Type != tt.wantTyp || msg.ID != tt.wantID {
				t.Errorf("reply = %+v, want type %q id %q", msg, tt.wantTyp, tt.wantID)
			}
		})
	}
}

func TestHub_CountsDroppedFrames(t *testing.T) {
	srv, _ := testServer(t)
	hub := srv.hub

	client := &WSClient{hub: hub, send: make(chan []byte, 1), devices: make(map[string]struct{})}
	hub.Register(client)

	// The snapshot fills the buffer; the next change has nowhere to go.
	client.subscribe("", []string{hallID}, false)
	hub.Publish(stateEvent(hallID, 22))
	// Not followed, so neither delivered nor dropped.
	hub.Publish(stateEvent(acID, 24))

	got := hub.Stats()
	if got.Clients != 1 || got.Delivered != 1 || got.Dropped != 1 {
		t.Errorf("Stats() = %+v, want 1 client, 1 delivered, 1 dropped", got)
	}

	var snap WSMessage
	if err := json.Unmarshal(<-client.send, &snap); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if snap.Type != WSTypeSnapshot {
		t.Errorf("queued frame type = %q, want %q", snap.Type, WSTypeSnapshot)
	}

	hub.Unregister(client)
	hub.Unregister(client)
	hub.Publish(stateEvent(hallID, 23))
	if got := hub.Stats().Clients; got != 0 {
		t.Errorf("Stats().Clients = %d, want 0", got)
	}
}
