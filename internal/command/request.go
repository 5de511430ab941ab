package command

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nerrad567/mysa-core/internal/device"
)

// Request is the JSON form of an intent accepted by the local API.
//
//	{"type": "set_temperature", "celsius": 21.5}
//	{"type": "set_mode", "mode": "heat"}
//	{"type": "set_swing", "axis": "horizontal", "position": "center"}
type Request struct {
	Type string `json:"type"`

	Celsius     *float64 `json:"celsius,omitempty"`
	HoldMinutes int      `json:"hold_minutes,omitempty"`

	Mode     string `json:"mode,omitempty"`
	Speed    string `json:"speed,omitempty"`
	Axis     string `json:"axis,omitempty"`
	Position string `json:"position,omitempty"`

	// Enabled carries the value for set_lock, set_proximity and
	// set_climate_plus.
	Enabled *bool `json:"enabled,omitempty"`

	Brightness *BrightnessRequest `json:"brightness,omitempty"`
}

// BrightnessRequest is the JSON form of SetBrightness.
type BrightnessRequest struct {
	Auto          bool `json:"auto"`
	ActivePercent int  `json:"active_percent"`
	IdlePercent   int  `json:"idle_percent"`
	ActiveSeconds int  `json:"active_seconds"`
	IdleSeconds   int  `json:"idle_seconds"`
}

// ParseIntent decodes a Request into its Intent. Malformed input and
// unknown names are ErrValidation.
func ParseIntent(data []byte) (Intent, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("%w: decoding request: %w", ErrValidation, err)
	}
	return req.Intent()
}

// Intent converts the request.
func (r Request) Intent() (Intent, error) {
	switch r.Type {
	case "set_temperature":
		if r.Celsius == nil {
			return nil, invalid("set_temperature needs celsius")
		}
		return SetTemperature{Celsius: *r.Celsius, Hold: time.Duration(r.HoldMinutes) * time.Minute}, nil

	case "set_mode":
		m, ok := device.ParseMode(r.Mode)
		if !ok {
			return nil, invalid("unknown mode %q", r.Mode)
		}
		return SetMode{Mode: m}, nil

	case "set_lock":
		if r.Enabled == nil {
			return nil, invalid("set_lock needs enabled")
		}
		return SetLock{Locked: *r.Enabled}, nil

	case "set_proximity":
		if r.Enabled == nil {
			return nil, invalid("set_proximity needs enabled")
		}
		return SetProximity{Enabled: *r.Enabled}, nil

	case "set_climate_plus":
		if r.Enabled == nil {
			return nil, invalid("set_climate_plus needs enabled")
		}
		return SetClimatePlus{Enabled: *r.Enabled}, nil

	case "set_brightness":
		if r.Brightness == nil {
			return nil, invalid("set_brightness needs brightness")
		}
		b := r.Brightness
		return SetBrightness{
			Auto:          b.Auto,
			ActivePercent: b.ActivePercent,
			IdlePercent:   b.IdlePercent,
			ActiveSeconds: b.ActiveSeconds,
			IdleSeconds:   b.IdleSeconds,
		}, nil

	case "set_fan_speed":
		s, ok := ParseFanSpeed(r.Speed)
		if !ok {
			return nil, invalid("unknown fan speed %q", r.Speed)
		}
		return SetFanSpeed{Speed: s}, nil

	case "set_swing":
		axis := Vertical
		switch r.Axis {
		case "", "vertical":
		case "horizontal":
			axis = Horizontal
		default:
			return nil, invalid("unknown swing axis %q", r.Axis)
		}
		pos, ok := ParseSwing(axis, r.Position)
		if !ok {
			return nil, invalid("unknown %s swing position %q", axis, r.Position)
		}
		return SetSwing{Axis: axis, Position: pos}, nil
	}
	return nil, invalid("unknown intent type %q", r.Type)
}
