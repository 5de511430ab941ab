package influxdb_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/mysa-core/internal/batch"
	"github.com/nerrad567/mysa-core/internal/infrastructure/config"
	"github.com/nerrad567/mysa-core/internal/infrastructure/influxdb"
	"github.com/nerrad567/mysa-core/internal/state"
)

// fakeInflux answers /ping and collects line protocol sent to /api/v2/write.
type fakeInflux struct {
	server  *httptest.Server
	healthy bool

	mu     sync.Mutex
	status int // write response; 0 means 204
	lines  []string
	params []string
}

func newFakeInflux(t *testing.T, healthy bool) *fakeInflux {
	t.Helper()
	f := &fakeInflux{healthy: healthy}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ping":
			if f.healthy {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
		case "/api/v2/write":
			body, _ := io.ReadAll(r.Body)
			f.mu.Lock()
			status := f.status
			if status == 0 {
				f.params = append(f.params, r.URL.RawQuery)
				for line := range strings.SplitSeq(strings.TrimSpace(string(body)), "\n") {
					if line != "" {
						f.lines = append(f.lines, line)
					}
				}
				status = http.StatusNoContent
			}
			f.mu.Unlock()
			w.WriteHeader(status)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeInflux) config() config.InfluxDBConfig {
	return config.InfluxDBConfig{
		Enabled:       true,
		URL:           f.server.URL,
		Token:         "test-token",
		Org:           "home",
		Bucket:        "mysa",
		BatchSize:     100,
		FlushInterval: 1,
	}
}

// waitLines waits until n lines have arrived.
func (f *fakeInflux) waitLines(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for {
		f.mu.Lock()
		got := append([]string(nil), f.lines...)
		f.mu.Unlock()
		if len(got) >= n {
			return got
		}
		if time.Now().After(deadline) {
			t.Fatalf("got %d lines, want %d: %v", len(got), n, got)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func connect(t *testing.T, f *fakeInflux) *influxdb.Client {
	t.Helper()
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

// =============================================================================
// Connection Tests
// =============================================================================

func TestConnect(t *testing.T) {
	client := connect(t, newFakeInflux(t, true))
	if !client.IsConnected() {
		t.Error("IsConnected() = false after Connect()")
	}
	if err := client.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}
}

func TestConnect_Disabled(t *testing.T) {
	cfg := newFakeInflux(t, true).config()
	cfg.Enabled = false

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unhealthy(t *testing.T) {
	f := newFakeInflux(t, false)
	if _, err := influxdb.Connect(context.Background(), f.config()); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	f := newFakeInflux(t, true)
	cfg := f.config()
	f.server.Close()

	if _, err := influxdb.Connect(context.Background(), cfg); !errors.Is(err, influxdb.ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestConnect_DefaultBatchSettings(t *testing.T) {
	f := newFakeInflux(t, true)
	cfg := f.config()
	cfg.BatchSize = -5
	cfg.FlushInterval = 0

	client, err := influxdb.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()
	if !client.IsConnected() {
		t.Error("IsConnected() = false with default batch settings")
	}
}

// =============================================================================
// Write Tests
// =============================================================================

func TestWriteReading(t *testing.T) {
	f := newFakeInflux(t, true)
	client := connect(t, f)

	volts := 240.0
	client.WriteReading("AA:BB:CC:DD:EE:01", batch.Reading{
		Timestamp:   time.Unix(1760000000, 0).UTC(),
		Version:     1,
		SensorTemp:  21.5,
		AmbientTemp: 20.1,
		SetPoint:    21,
		Humidity:    41,
		DutyCycle:   35,
		OnDuration:  1500 * time.Millisecond,
		RSSI:        -61,
		Voltage:     &volts,
	})
	client.Flush()

	lines := f.waitLines(t, 1)
	line := lines[0]
	for _, want := range []string{
		"mysa_readings,device_id=AA:BB:CC:DD:EE:01,version=1 ",
		"sensor_temp=21.5",
		"humidity=41i",
		"on_ms=1500i",
		"rssi=-61i",
		"voltage=240",
		" 1760000000",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "current=") {
		t.Errorf("line %q has current for a version 1 reading", line)
	}

	f.mu.Lock()
	params := f.params[0]
	f.mu.Unlock()
	if !strings.Contains(params, "bucket=mysa") || !strings.Contains(params, "precision=s") {
		t.Errorf("write query = %q", params)
	}
}

func TestWriteStateEvent(t *testing.T) {
	f := newFakeInflux(t, true)
	client := connect(t, f)

	at := time.Unix(1760000100, 0).UTC()
	client.WriteStateEvent(state.Event{
		DeviceID: "dev-1",
		Origin:   state.OriginRealtime,
		At:       at,
		Changes: map[string]state.Value{
			state.FieldSetPoint:        {Value: 21.5, SourceTime: at},
			state.FieldMode:            {Value: 3, SourceTime: at},
			state.FieldEcoMode:         {Value: true, SourceTime: at},
			state.FieldFirmwareVersion: {Value: "3.16.2", SourceTime: at},
		},
	})
	// Nothing numeric: no point.
	client.WriteStateEvent(state.Event{
		DeviceID: "dev-1",
		Origin:   state.OriginHTTP,
		At:       at,
		Changes:  map[string]state.Value{state.FieldTimeZone: {Value: "UTC", SourceTime: at}},
	})
	client.Flush()

	lines := f.waitLines(t, 1)
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1: %v", len(lines), lines)
	}
	line := lines[0]
	for _, want := range []string{
		"device_state,device_id=dev-1,origin=realtime ",
		"SetPoint=21.5",
		"Mode=3",
		"EcoMode=1",
		" 1760000100",
	} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
	if strings.Contains(line, "FirmwareVersion") {
		t.Errorf("line %q has a string field", line)
	}
}

// =============================================================================
// Failure Tests
// =============================================================================

func TestWriteErrors_Classified(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		want         error
		wantRejected uint64
		wantRetried  bool
	}{
		{"field type conflict", http.StatusBadRequest, influxdb.ErrWriteRejected, 1, false},
		{"bad token", http.StatusUnauthorized, influxdb.ErrWriteRejected, 1, false},
		{"server unavailable", http.StatusServiceUnavailable, influxdb.ErrWriteFailed, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeInflux(t, true)
			f.mu.Lock()
			f.status = tt.status
			f.mu.Unlock()
			client := connect(t, f)

			errs := make(chan error, 4)
			client.SetOnError(func(err error) { errs <- err })

			client.WriteReading("dev-1", batch.Reading{Timestamp: time.Unix(1760000000, 0), SensorTemp: 20})
			client.Flush()

			select {
			case err := <-errs:
				if !errors.Is(err, tt.want) {
					t.Errorf("OnError() error = %v, want %v", err, tt.want)
				}
			case <-time.After(5 * time.Second):
				t.Fatal("no write error reported")
			}

			st := client.Stats()
			if st.Rejected != tt.wantRejected {
				t.Errorf("Stats().Rejected = %d, want %d", st.Rejected, tt.wantRejected)
			}
			if got := st.Retried > 0; got != tt.wantRetried {
				t.Errorf("Stats().Retried = %d, want retried %v", st.Retried, tt.wantRetried)
			}
			if st.Rejected+st.Failed != 1 {
				t.Errorf("Stats() = %+v, want one failed batch", st)
			}
		})
	}
}

func TestStats_CountsPoints(t *testing.T) {
	f := newFakeInflux(t, true)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	at := time.Unix(1760000000, 0)
	client.WriteReading("dev-1", batch.Reading{Timestamp: at, SensorTemp: 20})
	client.WriteStateEvent(state.Event{
		DeviceID: "dev-1",
		Origin:   state.OriginHTTP,
		At:       at,
		Changes:  map[string]state.Value{state.FieldSetPoint: {Value: 21.0, SourceTime: at}},
	})
	if err := client.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	client.WriteReading("dev-1", batch.Reading{Timestamp: at, SensorTemp: 20})

	want := influxdb.SinkStats{Points: 2, Skipped: 1}
	if got := client.Stats(); got != want {
		t.Errorf("Stats() = %+v, want %+v", got, want)
	}
	f.waitLines(t, 2)
}

func TestClose(t *testing.T) {
	f := newFakeInflux(t, true)
	client, err := influxdb.Connect(context.Background(), f.config())
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	client.WritePoint("mysa_core", map[string]string{"source": "test"}, map[string]any{"up": 1})
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if client.IsConnected() {
		t.Error("IsConnected() = true after Close()")
	}
	f.waitLines(t, 1)

	// Writes and flushes after Close are dropped silently.
	client.WritePoint("mysa_core", nil, map[string]any{"up": 1})
	client.Flush()
	if err := client.HealthCheck(context.Background()); !errors.Is(err, influxdb.ErrNotConnected) {
		t.Errorf("HealthCheck() after Close error = %v, want ErrNotConnected", err)
	}
	if err := client.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
