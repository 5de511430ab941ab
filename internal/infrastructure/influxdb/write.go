package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/mysa-core/internal/batch"
	"github.com/nerrad567/mysa-core/internal/state"
)

// Measurements.
const (
	MeasurementReadings = "mysa_readings"
	MeasurementState    = "device_state"
)

// WriteReading records one decoded batch reading at the time the device
// took it. Its signature matches realtime.ReadingObserver.
//
// Example line:
//
//	mysa_readings,device_id=AA:BB:CC:DD:EE:01,version=1 sensor_temp=21.5,... 1760000000
func (c *Client) WriteReading(deviceID string, r batch.Reading) {
	fields := map[string]any{
		"sensor_temp":   r.SensorTemp,
		"ambient_temp":  r.AmbientTemp,
		"setpoint":      r.SetPoint,
		"heatsink_temp": r.HeatSinkTemp,
		"humidity":      r.Humidity,
		"duty_cycle":    r.DutyCycle,
		"on_ms":         r.OnDuration.Milliseconds(),
		"off_ms":        r.OffDuration.Milliseconds(),
		"free_heap":     r.FreeHeap,
		"rssi":          r.RSSI,
		"on_off":        r.OnOff,
	}
	if r.Voltage != nil {
		fields["voltage"] = *r.Voltage
	}
	if r.Current != nil {
		fields["current"] = *r.Current
	}

	c.writePoint(MeasurementReadings, map[string]string{
		"device_id": deviceID,
		"version":   strconv.Itoa(r.Version),
	}, fields, r.Timestamp)
}

// WriteStateEvent records the numeric and boolean fields of an accepted
// state change. Other values (names, settings objects) are skipped, and an
// event with none left writes nothing.
func (c *Client) WriteStateEvent(ev state.Event) {
	fields := make(map[string]any, len(ev.Changes))
	at := ev.At
	for name, v := range ev.Changes {
		f, ok := numeric(v.Value)
		if !ok {
			continue
		}
		fields[name] = f
		if v.SourceTime.After(at) {
			at = v.SourceTime
		}
	}
	if len(fields) == 0 {
		return
	}

	c.writePoint(MeasurementState, map[string]string{
		"device_id": ev.DeviceID,
		"origin":    ev.Origin.String(),
	}, fields, at)
}

// WritePoint writes a custom point stamped now.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	c.writePoint(measurement, tags, fields, time.Now())
}

func (c *Client) writePoint(measurement string, tags map[string]string, fields map[string]any, ts time.Time) {
	if !c.IsConnected() {
		c.skipped.Add(1)
		return
	}
	c.writer.WritePoint(write.NewPoint(measurement, tags, fields, ts))
	c.points.Add(1)
}

// numeric returns v as a float64 field value. Booleans become 0 or 1.
func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}
