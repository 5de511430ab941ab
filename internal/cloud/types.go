package cloud

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// User is the account record from GET /users.
type User struct {
	ID    string `json:"Id"`
	Email string `json:"Email"`
}

// Home is one home from GET /homes.
type Home struct {
	ID    string  `json:"Id"`
	Name  string  `json:"Name"`
	ERate *Number `json:"ERate"`
	Zones []Zone  `json:"Zones"`
}

// Zone is a room grouping inside a home.
type Zone struct {
	ID        string   `json:"Id"`
	Name      string   `json:"Name"`
	DeviceIDs []string `json:"DeviceIds"`
}

// Number decodes a JSON number that some endpoints send as a string.
type Number float64

// UnmarshalJSON accepts 0.12, "0.12" and null.
func (n *Number) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(bytes.TrimSpace(data)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("number %s: %w", data, err)
	}
	*n = Number(f)
	return nil
}

// Float returns the value as *float64, nil when absent.
func (n *Number) Float() *float64 {
	if n == nil {
		return nil
	}
	f := float64(*n)
	return &f
}

// RawDevice is a device object as the cloud sends it. Keys vary between
// firmware generations, so it stays untyped until normalized.
type RawDevice map[string]any

// String returns a string field, or "".
func (d RawDevice) String(key string) string {
	if s, ok := d[key].(string); ok {
		return s
	}
	return ""
}

// First returns the first non-empty string among keys.
func (d RawDevice) First(keys ...string) string {
	for _, k := range keys {
		if s := d.String(k); s != "" {
			return s
		}
	}
	return ""
}

// Flatten returns a copy with the nested "Attributes" object merged into
// the top level. Top-level keys win.
func (d RawDevice) Flatten() RawDevice {
	out := make(RawDevice, len(d))
	if attrs, ok := d["Attributes"].(map[string]any); ok {
		for k, v := range attrs {
			out[k] = v
		}
	}
	for k, v := range d {
		if k == "Attributes" {
			continue
		}
		out[k] = v
	}
	return out
}

// keyedObjects decodes the list-or-map shapes the device endpoints use:
// either [{"Id": ...}, ...] or {"<id>": {...}}.
func keyedObjects(raw json.RawMessage) (map[string]RawDevice, error) {
	raw = bytes.TrimSpace(raw)
	out := make(map[string]RawDevice)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}

	if raw[0] == '[' {
		var list []RawDevice
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		for _, d := range list {
			if id := d.String("Id"); id != "" {
				out[id] = d
			}
		}
		return out, nil
	}

	var m map[string]RawDevice
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	for id, d := range m {
		if d == nil {
			continue
		}
		out[id] = d
	}
	return out, nil
}
