package state

import (
	"encoding/json"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/nerrad567/mysa-core/internal/batch"
)

// Canonical field names. Device payloads use many aliases for the same
// quantity; Normalize folds them onto these.
const (
	FieldMode                 = "Mode"
	FieldSetPoint             = "SetPoint"
	FieldTemperature          = "Temperature"
	FieldSensorTemp           = "SensorTemp"
	FieldHumidity             = "Humidity"
	FieldDutyCycle            = "DutyCycle"
	FieldRssi                 = "Rssi"
	FieldVoltage              = "Voltage"
	FieldCurrent              = "Current"
	FieldHeatSink             = "HeatSink"
	FieldInfloor              = "Infloor"
	FieldBrightness           = "Brightness"
	FieldBrightnessSettings   = "BrightnessSettings"
	FieldMinBrightness        = "MinBrightness"
	FieldMaxBrightness        = "MaxBrightness"
	FieldAutoBrightness       = "AutoBrightness"
	FieldLock                 = "Lock"
	FieldProximityMode        = "ProximityMode"
	FieldEcoMode              = "EcoMode"
	FieldClimatePlus          = "ClimatePlus"
	FieldFanSpeed             = "FanSpeed"
	FieldSwingState           = "SwingState"
	FieldSwingStateHorizontal = "SwingStateHorizontal"
	FieldACPower              = "ACPower"
	FieldSensorMode           = "SensorMode"
	FieldZone                 = "Zone"
	FieldRegion               = "Region"
	FieldFirmwareVersion      = "FirmwareVersion"
	FieldMaxCurrent           = "MaxCurrent"
	FieldMinSetpoint          = "MinSetpoint"
	FieldMaxSetpoint          = "MaxSetpoint"
	FieldTimeZone             = "TimeZone"
)

// Observation is one normalized field value. Time is the timestamp the
// payload carried for it, or zero when it carried none.
type Observation struct {
	Value any
	Time  time.Time
}

type conversion uint8

const (
	asIs conversion = iota
	asFloat
	asInt
	asBool
	asLock
	asEco
)

type alias struct {
	field string
	keys  []string
	conv  conversion
}

// aliases lists source keys per canonical field, highest priority first.
var aliases = []alias{
	{FieldMode, []string{"md", "mode", "TstatMode", "Mode"}, asInt},
	{FieldSetPoint, []string{"sp", "stpt", "SetPoint"}, asFloat},
	{FieldTemperature, []string{"CorrectedTemp", "ambTemp", "ambient_t"}, asFloat},
	{FieldSensorTemp, []string{"SensorTemp"}, asFloat},
	{FieldHumidity, []string{"hum", "Humidity"}, asFloat},
	{FieldDutyCycle, []string{"dc", "Duty", "dtyCycle", "heatStat", "DutyCycle"}, asFloat},
	{FieldRssi, []string{"rssi", "Rssi", "RSSI"}, asInt},
	{FieldVoltage, []string{"volts", "loadVtg", "lineVtg", "Voltage", "LineVoltage"}, asFloat},
	{FieldCurrent, []string{"amps", "loadCurr", "Current"}, asFloat},
	{FieldHeatSink, []string{"hs", "HeatSink"}, asFloat},
	{FieldInfloor, []string{"if", "flrSnsrTemp", "Infloor"}, asFloat},
	{FieldMinBrightness, []string{"mnbr", "MinBrightness"}, asInt},
	{FieldMaxBrightness, []string{"mxbr", "MaxBrightness"}, asInt},
	{FieldAutoBrightness, []string{"ab", "AutoBrightness"}, asBool},
	{FieldLock, []string{"ButtonState", "alk", "lc", "lk", "lock", "Lock"}, asLock},
	{FieldProximityMode, []string{"px", "pr", "ProximityMode", "Proximity"}, asBool},
	{FieldEcoMode, []string{"ecoMode", "eco"}, asEco},
	{FieldClimatePlus, []string{"it", "ClimatePlus"}, asBool},
	{FieldFanSpeed, []string{"fn", "FanSpeed"}, asInt},
	{FieldSwingState, []string{"ss", "SwingState"}, asInt},
	{FieldSwingStateHorizontal, []string{"ssh", "SwingStateHorizontal"}, asInt},
	{FieldZone, []string{"grp", "Zone", "zone_id", "zn"}, asIs},
	{FieldRegion, []string{"reg", "Region"}, asIs},
	{FieldFirmwareVersion, []string{"fv", "FirmwareVersion"}, asIs},
	{FieldMaxCurrent, []string{"mxc", "MaxCurrent"}, asFloat},
	{FieldMinSetpoint, []string{"mns", "MinSetpoint"}, asFloat},
	{FieldMaxSetpoint, []string{"mxs", "MaxSetpoint"}, asFloat},
	{FieldTimeZone, []string{"tz", "TimeZone"}, asIs},
}

// acStateKeys maps the numbered keys of an ACState object. They fill a
// field only when no direct key supplied it.
var acStateKeys = []struct {
	key   string
	field string
	conv  conversion
}{
	{"1", FieldACPower, asInt},
	{"2", FieldMode, asInt},
	{"3", FieldSetPoint, asFloat},
	{"4", FieldFanSpeed, asInt},
	{"5", FieldSwingState, asInt},
}

// Normalize folds a raw device payload onto canonical field names.
//
// Values may be bare or wrapped as {"v": value, "t": unix-seconds}; wrapped
// values carry their timestamp into the Observation. Keys that match no
// alias are dropped. The input is not modified.
func Normalize(raw map[string]any) map[string]Observation {
	out := make(map[string]Observation)

	for _, a := range aliases {
		for _, k := range a.keys {
			v, t, ok := unwrap(raw[k])
			if !ok {
				continue
			}
			if cv, ok := convert(v, a.conv); ok {
				out[a.field] = Observation{Value: cv, Time: t}
				break
			}
		}
	}

	normalizeBrightness(raw, out)
	normalizeSensorMode(raw, out)
	normalizeACState(raw, out)
	return out
}

// normalizeBrightness handles "br", which is a percentage on older devices
// and a settings object on newer ones.
func normalizeBrightness(raw map[string]any, out map[string]Observation) {
	for _, k := range []string{"br", "Brightness"} {
		val, present := raw[k]
		if !present || val == nil {
			continue
		}
		if m, ok := val.(map[string]any); ok {
			if _, wrapped := m["v"]; !wrapped {
				out[FieldBrightnessSettings] = Observation{Value: maps.Clone(m)}
				if a, ok := toInt(m["a_br"]); ok {
					out[FieldBrightness] = Observation{Value: a}
				}
				return
			}
		}
		v, t, ok := unwrap(val)
		if !ok {
			continue
		}
		if n, ok := toInt(v); ok {
			out[FieldBrightness] = Observation{Value: n, Time: t}
			return
		}
	}
}

// normalizeSensorMode maps the in-floor sensor selector. TrackedSensor uses
// 3 for the floor sensor and 5 for the ambient one.
func normalizeSensorMode(raw map[string]any, out map[string]Observation) {
	if v, t, ok := unwrap(raw["SensorMode"]); ok {
		if n, ok := toInt(v); ok {
			out[FieldSensorMode] = Observation{Value: n, Time: t}
			return
		}
	}
	if v, t, ok := unwrap(raw["TrackedSensor"]); ok {
		switch n, _ := toInt(v); n {
		case 3:
			out[FieldSensorMode] = Observation{Value: 1, Time: t}
		case 5:
			out[FieldSensorMode] = Observation{Value: 0, Time: t}
		}
	}
}

func normalizeACState(raw map[string]any, out map[string]Observation) {
	obj, ok := raw["ACState"].(map[string]any)
	if !ok {
		return
	}
	t := timestamp(obj["t"])
	if inner, ok := obj["v"].(map[string]any); ok {
		obj = inner
	}
	for _, k := range acStateKeys {
		if _, set := out[k.field]; set {
			continue
		}
		v, present := obj[k.key]
		if !present {
			continue
		}
		if cv, ok := convert(v, k.conv); ok {
			out[k.field] = Observation{Value: cv, Time: t}
		}
	}
}

// ReadingObservations converts a decoded batch reading into observations
// stamped with the reading's own time.
func ReadingObservations(r batch.Reading) map[string]Observation {
	t := r.Timestamp
	out := map[string]Observation{
		FieldSensorTemp:  {Value: r.SensorTemp, Time: t},
		FieldTemperature: {Value: r.AmbientTemp, Time: t},
		FieldSetPoint:    {Value: r.SetPoint, Time: t},
		FieldHumidity:    {Value: float64(r.Humidity), Time: t},
		FieldDutyCycle:   {Value: float64(r.DutyCycle), Time: t},
		FieldHeatSink:    {Value: r.HeatSinkTemp, Time: t},
		FieldRssi:        {Value: r.RSSI, Time: t},
	}
	if r.Voltage != nil {
		out[FieldVoltage] = Observation{Value: *r.Voltage, Time: t}
	}
	if r.Current != nil {
		out[FieldCurrent] = Observation{Value: *r.Current, Time: t}
	}
	return out
}

// unwrap returns the value inside a {"v", "t"} object, or val itself.
// ok is false for nil and for objects without "v".
func unwrap(val any) (any, time.Time, bool) {
	if val == nil {
		return nil, time.Time{}, false
	}
	m, isMap := val.(map[string]any)
	if !isMap {
		return val, time.Time{}, true
	}
	v, ok := m["v"]
	if !ok || v == nil {
		return nil, time.Time{}, false
	}
	return v, timestamp(m["t"]), true
}

// timestamp interprets t as unix seconds, or milliseconds when too large
// to be seconds.
func timestamp(t any) time.Time {
	f, ok := toFloat(t)
	if !ok || f <= 0 {
		return time.Time{}
	}
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}

func convert(v any, c conversion) (any, bool) {
	switch c {
	case asFloat:
		return toFloat(v)
	case asInt:
		if n, ok := toInt(v); ok {
			return n, true
		}
		// Some firmware reports modes by name.
		if s, ok := v.(string); ok && s != "" {
			return s, true
		}
		return nil, false
	case asBool:
		return truthy(v, "1", "true", "on"), true
	case asLock:
		if truthy(v, "1", "true", "on", "locked") {
			return 1, true
		}
		return 0, true
	case asEco:
		// 0 means eco on.
		return strings.TrimSpace(stringOf(v)) == "0", true
	}
	if m, ok := v.(map[string]any); ok {
		return maps.Clone(m), true
	}
	return v, true
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	}
	return 0, false
}

func toInt(v any) (int, bool) {
	if b, ok := v.(bool); ok {
		if b {
			return 1, true
		}
		return 0, true
	}
	f, ok := toFloat(v)
	if !ok {
		return 0, false
	}
	return int(f), true
}

func truthy(v any, yes ...string) bool {
	if b, ok := v.(bool); ok {
		return b
	}
	s := strings.ToLower(strings.TrimSpace(stringOf(v)))
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		s = strconv.FormatFloat(f, 'f', -1, 64)
	}
	return slices.Contains(yes, s)
}

func stringOf(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64)
	case int:
		return strconv.Itoa(s)
	case json.Number:
		return s.String()
	case bool:
		return strconv.FormatBool(s)
	}
	return ""
}
