package state

import (
	"fmt"
	"maps"
	"time"
)

// Origin identifies which path a value arrived by.
type Origin uint8

// Origins.
const (
	OriginHTTP Origin = iota + 1
	OriginRealtime
)

// String returns "http" or "realtime".
func (o Origin) String() string {
	switch o {
	case OriginHTTP:
		return "http"
	case OriginRealtime:
		return "realtime"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (o Origin) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *Origin) UnmarshalText(text []byte) error {
	switch string(text) {
	case "http":
		*o = OriginHTTP
	case "realtime":
		*o = OriginRealtime
	default:
		return fmt.Errorf("state: unknown origin %q", text)
	}
	return nil
}

// Value is a stored field value with the time it describes.
type Value struct {
	Value      any       `json:"value"`
	SourceTime time.Time `json:"source_time"`
	Origin     Origin    `json:"origin"`
}

// DeviceState is a point-in-time copy of everything known about a device.
type DeviceState struct {
	DeviceID  string           `json:"device_id"`
	Fields    map[string]Value `json:"fields"`
	UpdatedAt time.Time        `json:"updated_at"`

	// PendingUntil is set while HTTP values without a timestamp of their
	// own are being held back after a command.
	PendingUntil *time.Time `json:"pending_until,omitempty"`
}

// Get returns the value of a canonical field.
func (s DeviceState) Get(field string) (any, bool) {
	v, ok := s.Fields[field]
	if !ok {
		return nil, false
	}
	return v.Value, true
}

// Float returns a numeric field as float64.
func (s DeviceState) Float(field string) (float64, bool) {
	v, ok := s.Get(field)
	if !ok {
		return 0, false
	}
	return toFloat(v)
}

// Event reports the fields of one device that changed value in a single
// apply call.
type Event struct {
	DeviceID string           `json:"device_id"`
	Origin   Origin           `json:"origin"`
	Changes  map[string]Value `json:"changes"`
	At       time.Time        `json:"at"`
}

// Stats holds store counters.
type Stats struct {
	Devices       int    `json:"devices"`
	Accepted      uint64 `json:"accepted"`
	Stale         uint64 `json:"stale"`
	Guarded       uint64 `json:"guarded"`
	DroppedEvents uint64 `json:"dropped_events"`
}

func copyFields(in map[string]Value) map[string]Value {
	out := make(map[string]Value, len(in))
	for k, v := range in {
		v.Value = deepCopyValue(v.Value)
		out[k] = v
	}
	return out
}

// deepCopyValue copies the map and slice shapes JSON decoding produces.
func deepCopyValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := maps.Clone(t)
		for k, inner := range m {
			m[k] = deepCopyValue(inner)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, inner := range t {
			s[i] = deepCopyValue(inner)
		}
		return s
	default:
		return v
	}
}
