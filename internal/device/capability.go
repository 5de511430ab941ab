package device

import (
	"fmt"
	"math"
	"slices"
	"strings"
)

// Family is the capability class derived from a model string.
//
// Family is a closed set. Branch on it with a switch that names every
// constant rather than re-inspecting model strings.
type Family int

const (
	// FamilyBaseboard is a full baseboard thermostat (V1 or V2).
	FamilyBaseboard Family = iota + 1

	// FamilyBaseboardLite is the reduced-sensor V2 Lite baseboard.
	FamilyBaseboardLite

	// FamilyInFloor is the in-floor heating thermostat.
	FamilyInFloor

	// FamilyAC is the mini-split AC controller.
	FamilyAC

	// FamilyCentral is a central (forced-air) thermostat.
	FamilyCentral
)

// String returns the family name as used in logs and the API.
func (f Family) String() string {
	switch f {
	case FamilyBaseboard:
		return "baseboard"
	case FamilyBaseboardLite:
		return "baseboard_lite"
	case FamilyInFloor:
		return "in_floor"
	case FamilyAC:
		return "ac"
	case FamilyCentral:
		return "central"
	}
	return fmt.Sprintf("family(%d)", int(f))
}

// MarshalText implements encoding.TextMarshaler.
func (f Family) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

// Payload type tags carried in the "type" field of command bodies.
const (
	PayloadBaseboardV1 = 1
	PayloadAC          = 2
	PayloadInFloor     = 3
	PayloadBaseboardV2 = 4
	PayloadLite        = 5
)

// Field is one controllable device setting.
type Field uint16

// Controllable fields.
const (
	FieldSetPoint Field = 1 << iota
	FieldMode
	FieldLock
	FieldProximity
	FieldBrightness
	FieldFanSpeed
	FieldSwing
	FieldSwingHorizontal
	FieldClimatePlus
	FieldSensorMode
)

var fieldNames = []struct {
	f    Field
	name string
}{
	{FieldSetPoint, "setpoint"},
	{FieldMode, "mode"},
	{FieldLock, "lock"},
	{FieldProximity, "proximity"},
	{FieldBrightness, "brightness"},
	{FieldFanSpeed, "fan_speed"},
	{FieldSwing, "swing"},
	{FieldSwingHorizontal, "swing_horizontal"},
	{FieldClimatePlus, "climate_plus"},
	{FieldSensorMode, "sensor_mode"},
}

// String returns the field's name.
func (f Field) String() string {
	for _, fn := range fieldNames {
		if fn.f == f {
			return fn.name
		}
	}
	return fmt.Sprintf("field(%#x)", uint16(f))
}

// FieldSet is a set of Fields.
type FieldSet uint16

// NewFieldSet returns the set containing fields.
func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s |= FieldSet(f)
	}
	return s
}

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool {
	return s&FieldSet(f) != 0
}

// Fields lists the set's members in declaration order.
func (s FieldSet) Fields() []Field {
	var out []Field
	for _, fn := range fieldNames {
		if s.Has(fn.f) {
			out = append(out, fn.f)
		}
	}
	return out
}

// MarshalJSON encodes the set as a list of field names.
func (s FieldSet) MarshalJSON() ([]byte, error) {
	fields := s.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = `"` + f.String() + `"`
	}
	return []byte("[" + strings.Join(names, ",") + "]"), nil
}

// Mode is a thermostat operating mode. Values are the wire values.
type Mode int

// Operating modes.
const (
	ModeOff     Mode = 1
	ModeAuto    Mode = 2
	ModeHeat    Mode = 3
	ModeCool    Mode = 4
	ModeFanOnly Mode = 5
	ModeDry     Mode = 6
)

var modeNames = map[Mode]string{
	ModeOff:     "off",
	ModeAuto:    "auto",
	ModeHeat:    "heat",
	ModeCool:    "cool",
	ModeFanOnly: "fan_only",
	ModeDry:     "dry",
}

// String returns the mode's name.
func (m Mode) String() string {
	if n, ok := modeNames[m]; ok {
		return n
	}
	return fmt.Sprintf("mode(%d)", int(m))
}

// ParseMode maps a mode name to its Mode.
func ParseMode(name string) (Mode, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for m, n := range modeNames {
		if n == name {
			return m, true
		}
	}
	return 0, false
}

// TemperatureRange is an inclusive setpoint range in °C.
type TemperatureRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Contains reports whether c is within the range.
func (r TemperatureRange) Contains(c float64) bool {
	return c >= r.Min && c <= r.Max
}

// Profile is the static capability description of a device model.
type Profile struct {
	Model            string           `json:"model"`
	PayloadType      int              `json:"payload_type"`
	Family           Family           `json:"family"`
	Fields           FieldSet         `json:"supported_fields"`
	TemperatureStep  float64          `json:"temperature_step"`
	TemperatureRange TemperatureRange `json:"temperature_range"`
	Modes            []Mode           `json:"modes"`
	Known            bool             `json:"known"`
}

// Supports reports whether the profile accepts commands for f.
func (p Profile) Supports(f Field) bool {
	return p.Fields.Has(f)
}

// SupportsMode reports whether m is one of the profile's modes.
func (p Profile) SupportsMode(m Mode) bool {
	return slices.Contains(p.Modes, m)
}

// OnStep reports whether c is a whole multiple of the profile's step.
func (p Profile) OnStep(c float64) bool {
	if p.TemperatureStep <= 0 {
		return true
	}
	q := c / p.TemperatureStep
	return math.Abs(q-math.Round(q)) < 1e-6
}

// ResolveOptions carries per-device facts that refine model resolution.
type ResolveOptions struct {
	// UpgradedLite marks a Lite unit whose cloud metadata was upgraded to
	// the full baseboard. It takes the full payload type but keeps the Lite
	// field set.
	UpgradedLite bool

	// Firmware is consulted when the model string is inconclusive.
	Firmware string
}

var (
	heatingModes = []Mode{ModeOff, ModeHeat}
	acModes      = []Mode{ModeOff, ModeAuto, ModeHeat, ModeCool, ModeFanOnly, ModeDry}

	heatingRange = TemperatureRange{Min: 5, Max: 30}
	acRange      = TemperatureRange{Min: 16, Max: 31}
)

func familyFields(f Family) FieldSet {
	switch f {
	case FamilyBaseboard:
		return NewFieldSet(FieldSetPoint, FieldMode, FieldLock, FieldProximity, FieldBrightness)
	case FamilyBaseboardLite:
		return NewFieldSet(FieldSetPoint, FieldMode, FieldLock)
	case FamilyInFloor:
		return NewFieldSet(FieldSetPoint, FieldMode, FieldLock, FieldProximity, FieldBrightness, FieldSensorMode)
	case FamilyAC:
		return NewFieldSet(FieldSetPoint, FieldMode, FieldLock, FieldFanSpeed, FieldSwing, FieldSwingHorizontal, FieldClimatePlus)
	case FamilyCentral:
		return NewFieldSet(FieldSetPoint, FieldMode, FieldLock)
	}
	return NewFieldSet(FieldSetPoint, FieldMode)
}

func newProfile(model string, payload int, f Family, known bool) Profile {
	p := Profile{
		Model:            model,
		PayloadType:      payload,
		Family:           f,
		Fields:           familyFields(f),
		TemperatureStep:  0.5,
		TemperatureRange: heatingRange,
		Modes:            slices.Clone(heatingModes),
		Known:            known,
	}
	if f == FamilyAC {
		p.TemperatureStep = 1
		p.TemperatureRange = acRange
		p.Modes = slices.Clone(acModes)
	}
	if !known {
		p.Fields = NewFieldSet(FieldSetPoint, FieldMode)
	}
	return p
}

// Resolve derives the capability profile for a model string.
//
// Resolution never fails. A model that matches none of the known patterns
// gets a baseboard-shaped profile limited to setpoint and mode, so an
// unrecognised but plausible device stays controllable.
//
// Parameters:
//   - model: Vendor model string, e.g. "BB-V2-0-L" or "AC-V1-1"
//   - opts: Upgraded-lite override and firmware hint
//
// Returns:
//   - Profile: Payload type, family, supported fields and setpoint limits
func Resolve(model string, opts ResolveOptions) Profile {
	m := strings.TrimSpace(model)

	var p Profile
	switch {
	case strings.HasPrefix(m, "AC-"):
		p = newProfile(m, PayloadAC, FamilyAC, true)
	case strings.Contains(m, "V2"):
		if strings.Contains(m, "Lite") || strings.Contains(m, "-L") {
			p = newProfile(m, PayloadLite, FamilyBaseboardLite, true)
		} else {
			p = newProfile(m, PayloadBaseboardV2, FamilyBaseboard, true)
		}
	case strings.Contains(m, "INF-V1") || strings.Contains(m, "Floor"):
		p = newProfile(m, PayloadInFloor, FamilyInFloor, true)
	case strings.Contains(m, "BB-V1") || strings.Contains(m, "Baseboard"):
		p = newProfile(m, PayloadBaseboardV1, FamilyBaseboard, true)
	case strings.HasPrefix(m, "CT-") || strings.Contains(m, "Central"):
		p = newProfile(m, PayloadBaseboardV2, FamilyCentral, true)
	case strings.Contains(opts.Firmware, "V2"):
		p = newProfile(m, PayloadBaseboardV2, FamilyBaseboard, false)
	default:
		p = newProfile(m, PayloadBaseboardV1, FamilyBaseboard, false)
	}

	if opts.UpgradedLite && p.Family == FamilyBaseboardLite {
		p.PayloadType = PayloadBaseboardV2
	}
	return p
}
