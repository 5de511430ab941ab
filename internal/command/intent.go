package command

import (
	"math"
	"time"

	"github.com/nerrad567/mysa-core/internal/device"
)

// Intent is a requested change to one device setting.
//
// The set of intents is closed: only the types in this package implement
// it.
type Intent interface {
	// Name identifies the intent in errors and logs.
	Name() string

	// Field is the profile field the intent controls.
	Field() device.Field

	// encode validates the intent against p and writes its wire fields.
	encode(p device.Profile, cmd map[string]any) error
}

// SetTemperature sets the target temperature in °C.
//
// Hold, when non-zero, limits the setpoint to that many whole minutes
// before the schedule resumes. Zero means permanent.
type SetTemperature struct {
	Celsius float64
	Hold    time.Duration
}

func (SetTemperature) Name() string        { return "set_temperature" }
func (SetTemperature) Field() device.Field { return device.FieldSetPoint }

func (i SetTemperature) encode(p device.Profile, cmd map[string]any) error {
	if math.IsNaN(i.Celsius) || math.IsInf(i.Celsius, 0) {
		return invalid("temperature %v is not a number", i.Celsius)
	}
	if !p.TemperatureRange.Contains(i.Celsius) {
		return invalid("temperature %v outside %v..%v", i.Celsius, p.TemperatureRange.Min, p.TemperatureRange.Max)
	}
	if !p.OnStep(i.Celsius) {
		return invalid("temperature %v is not a multiple of %v", i.Celsius, p.TemperatureStep)
	}
	if i.Hold < 0 || i.Hold%time.Minute != 0 {
		return invalid("hold %v must be a non-negative whole number of minutes", i.Hold)
	}
	cmd["sp"] = i.Celsius
	cmd["stpt"] = i.Celsius
	cmd["a_sp"] = i.Celsius
	if i.Hold > 0 {
		cmd["tm"] = int(i.Hold / time.Minute)
	}
	return nil
}

// SetMode changes the operating mode.
type SetMode struct {
	Mode device.Mode
}

func (SetMode) Name() string        { return "set_mode" }
func (SetMode) Field() device.Field { return device.FieldMode }

func (i SetMode) encode(p device.Profile, cmd map[string]any) error {
	if !p.SupportsMode(i.Mode) {
		return invalid("mode %v not available on %s devices", i.Mode, p.Family)
	}
	cmd["md"] = int(i.Mode)
	return nil
}

// SetLock locks or unlocks the device buttons.
type SetLock struct {
	Locked bool
}

func (SetLock) Name() string        { return "set_lock" }
func (SetLock) Field() device.Field { return device.FieldLock }

func (i SetLock) encode(_ device.Profile, cmd map[string]any) error {
	cmd["lk"] = boolInt(i.Locked)
	return nil
}

// SetProximity toggles wake-on-approach.
type SetProximity struct {
	Enabled bool
}

func (SetProximity) Name() string        { return "set_proximity" }
func (SetProximity) Field() device.Field { return device.FieldProximity }

func (i SetProximity) encode(_ device.Profile, cmd map[string]any) error {
	cmd["pr"] = boolInt(i.Enabled)
	return nil
}

// SetBrightness replaces the display brightness settings. All five values
// travel together on the wire.
type SetBrightness struct {
	Auto          bool
	ActivePercent int
	IdlePercent   int
	ActiveSeconds int
	IdleSeconds   int
}

// DefaultBrightness is the device's factory brightness configuration.
var DefaultBrightness = SetBrightness{
	Auto:          true,
	ActivePercent: 100,
	IdlePercent:   50,
	ActiveSeconds: 60,
	IdleSeconds:   30,
}

func (SetBrightness) Name() string        { return "set_brightness" }
func (SetBrightness) Field() device.Field { return device.FieldBrightness }

func (i SetBrightness) encode(_ device.Profile, cmd map[string]any) error {
	if i.ActivePercent < 0 || i.ActivePercent > 100 {
		return invalid("active brightness %d outside 0..100", i.ActivePercent)
	}
	if i.IdlePercent < 0 || i.IdlePercent > 100 {
		return invalid("idle brightness %d outside 0..100", i.IdlePercent)
	}
	if i.ActiveSeconds < 0 || i.IdleSeconds < 0 {
		return invalid("brightness durations must not be negative")
	}
	cmd["br"] = map[string]any{
		"a_b":  boolInt(i.Auto),
		"a_br": i.ActivePercent,
		"i_br": i.IdlePercent,
		"a_dr": i.ActiveSeconds,
		"i_dr": i.IdleSeconds,
	}
	return nil
}

// SetFanSpeed changes the AC fan speed.
type SetFanSpeed struct {
	Speed FanSpeed
}

func (SetFanSpeed) Name() string        { return "set_fan_speed" }
func (SetFanSpeed) Field() device.Field { return device.FieldFanSpeed }

func (i SetFanSpeed) encode(_ device.Profile, cmd map[string]any) error {
	if !i.Speed.Valid() {
		return invalid("unknown fan speed %d", int(i.Speed))
	}
	cmd["fn"] = int(i.Speed)
	return nil
}

// SetSwing positions one AC louvre.
type SetSwing struct {
	Axis     Axis
	Position Swing
}

func (SetSwing) Name() string { return "set_swing" }

func (i SetSwing) Field() device.Field {
	if i.Axis == Horizontal {
		return device.FieldSwingHorizontal
	}
	return device.FieldSwing
}

func (i SetSwing) encode(_ device.Profile, cmd map[string]any) error {
	if !i.Position.Valid() {
		return invalid("unknown %s swing position %d", i.Axis, int(i.Position))
	}
	if i.Axis == Horizontal {
		cmd["ssh"] = int(i.Position)
	} else {
		cmd["ss"] = int(i.Position)
	}
	return nil
}

// SetClimatePlus toggles sensor-driven AC control. Off, the controller acts
// as a plain IR remote.
type SetClimatePlus struct {
	Enabled bool
}

func (SetClimatePlus) Name() string        { return "set_climate_plus" }
func (SetClimatePlus) Field() device.Field { return device.FieldClimatePlus }

func (i SetClimatePlus) encode(_ device.Profile, cmd map[string]any) error {
	cmd["it"] = boolInt(i.Enabled)
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
