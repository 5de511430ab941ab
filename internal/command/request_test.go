package command

import (
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/mysa-core/internal/device"
)

func TestParseIntent(t *testing.T) {
	tests := []struct {
		name string
		body string
		want Intent
	}{
		{"temperature", `{"type":"set_temperature","celsius":21.5}`, SetTemperature{Celsius: 21.5}},
		{"temperature hold", `{"type":"set_temperature","celsius":20,"hold_minutes":30}`, SetTemperature{Celsius: 20, Hold: 30 * time.Minute}},
		{"mode", `{"type":"set_mode","mode":"HEAT"}`, SetMode{Mode: device.ModeHeat}},
		{"lock", `{"type":"set_lock","enabled":true}`, SetLock{Locked: true}},
		{"proximity", `{"type":"set_proximity","enabled":false}`, SetProximity{Enabled: false}},
		{"climate plus", `{"type":"set_climate_plus","enabled":true}`, SetClimatePlus{Enabled: true}},
		{"fan", `{"type":"set_fan_speed","speed":"medium_low"}`, SetFanSpeed{Speed: FanMediumLow}},
		{"swing default axis", `{"type":"set_swing","position":"bottom"}`, SetSwing{Axis: Vertical, Position: SwingPos6}},
		{"swing horizontal", `{"type":"set_swing","axis":"horizontal","position":"right_wide"}`, SetSwing{Axis: Horizontal, Position: SwingPos5}},
		{
			"brightness",
			`{"type":"set_brightness","brightness":{"auto":true,"active_percent":90,"idle_percent":20,"active_seconds":45,"idle_seconds":10}}`,
			SetBrightness{Auto: true, ActivePercent: 90, IdlePercent: 20, ActiveSeconds: 45, IdleSeconds: 10},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseIntent([]byte(tt.body))
			if err != nil {
				t.Fatalf("ParseIntent() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ParseIntent() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestParseIntent_Errors(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"type":"set_turbo"}`,
		`{"type":"set_temperature"}`,
		`{"type":"set_mode","mode":"warp"}`,
		`{"type":"set_lock"}`,
		`{"type":"set_brightness"}`,
		`{"type":"set_fan_speed","speed":"ludicrous"}`,
		`{"type":"set_swing","axis":"diagonal","position":"auto"}`,
		`{"type":"set_swing","axis":"vertical","position":"left"}`,
	}
	for _, body := range bodies {
		if _, err := ParseIntent([]byte(body)); !errors.Is(err, ErrValidation) {
			t.Errorf("ParseIntent(%s) error = %v, want ErrValidation", body, err)
		}
	}
}

func TestEnumNames(t *testing.T) {
	if FanSleep.String() != "sleep" || FanSpeed(2).String() != "fan(2)" {
		t.Errorf("FanSpeed names: %q %q", FanSleep.String(), FanSpeed(2).String())
	}
	if SwingPos1.Name(Vertical) != "top" || SwingPos1.Name(Horizontal) != "left" {
		t.Errorf("Swing names: %q %q", SwingPos1.Name(Vertical), SwingPos1.Name(Horizontal))
	}
	if m, ok := ParseSensorMode("Floor"); !ok || m != SensorFloor {
		t.Errorf("ParseSensorMode(Floor) = %v, %v", m, ok)
	}
	if SensorAmbient.String() != "ambient" {
		t.Errorf("SensorAmbient.String() = %q", SensorAmbient.String())
	}
}
