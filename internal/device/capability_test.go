package device

import (
	"encoding/json"
	"testing"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name        string
		model       string
		opts        ResolveOptions
		wantPayload int
		wantFamily  Family
		wantKnown   bool
	}{
		{name: "baseboard v1", model: "BB-V1-1", wantPayload: 1, wantFamily: FamilyBaseboard, wantKnown: true},
		{name: "baseboard v2", model: "BB-V2-0", wantPayload: 4, wantFamily: FamilyBaseboard, wantKnown: true},
		{name: "lite", model: "BB-V2-0-L", wantPayload: 5, wantFamily: FamilyBaseboardLite, wantKnown: true},
		{name: "lite by name", model: "Baseboard V2 Lite", wantPayload: 5, wantFamily: FamilyBaseboardLite, wantKnown: true},
		{name: "upgraded lite", model: "BB-V2-0-L", opts: ResolveOptions{UpgradedLite: true}, wantPayload: 4, wantFamily: FamilyBaseboardLite, wantKnown: true},
		{name: "upgraded flag ignored on full", model: "BB-V2-0", opts: ResolveOptions{UpgradedLite: true}, wantPayload: 4, wantFamily: FamilyBaseboard, wantKnown: true},
		{name: "in-floor", model: "INF-V1-0", wantPayload: 3, wantFamily: FamilyInFloor, wantKnown: true},
		{name: "in-floor by name", model: "Floor Heating", wantPayload: 3, wantFamily: FamilyInFloor, wantKnown: true},
		{name: "ac", model: "AC-V1-1", wantPayload: 2, wantFamily: FamilyAC, wantKnown: true},
		{name: "central", model: "CT-V1-0", wantPayload: 4, wantFamily: FamilyCentral, wantKnown: true},
		{name: "legacy baseboard", model: "Baseboard", wantPayload: 1, wantFamily: FamilyBaseboard, wantKnown: true},
		{name: "unknown with v2 firmware", model: "XYZ", opts: ResolveOptions{Firmware: "V2.1.0"}, wantPayload: 4, wantFamily: FamilyBaseboard},
		{name: "unknown", model: "Mystery-9000", wantPayload: 1, wantFamily: FamilyBaseboard},
		{name: "empty", model: "", wantPayload: 1, wantFamily: FamilyBaseboard},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Resolve(tt.model, tt.opts)
			if p.PayloadType != tt.wantPayload {
				t.Errorf("Resolve(%q).PayloadType = %d, want %d", tt.model, p.PayloadType, tt.wantPayload)
			}
			if p.Family != tt.wantFamily {
				t.Errorf("Resolve(%q).Family = %v, want %v", tt.model, p.Family, tt.wantFamily)
			}
			if p.Known != tt.wantKnown {
				t.Errorf("Resolve(%q).Known = %v, want %v", tt.model, p.Known, tt.wantKnown)
			}
		})
	}
}

func TestResolve_UpgradedLiteKeepsLiteFields(t *testing.T) {
	p := Resolve("BB-V2-0-L", ResolveOptions{UpgradedLite: true})
	lite := Resolve("BB-V2-0-L", ResolveOptions{})

	if p.PayloadType != PayloadBaseboardV2 {
		t.Fatalf("PayloadType = %d, want %d", p.PayloadType, PayloadBaseboardV2)
	}
	if p.Fields != lite.Fields {
		t.Errorf("Fields = %v, want lite set %v", p.Fields.Fields(), lite.Fields.Fields())
	}
	for _, f := range []Field{FieldFanSpeed, FieldSwing, FieldSwingHorizontal, FieldClimatePlus} {
		if p.Supports(f) {
			t.Errorf("upgraded lite supports AC-only field %v", f)
		}
	}
}

func TestResolve_UnknownIsConservative(t *testing.T) {
	p := Resolve("Mystery-9000", ResolveOptions{})
	want := NewFieldSet(FieldSetPoint, FieldMode)
	if p.Fields != want {
		t.Errorf("Fields = %v, want %v", p.Fields.Fields(), want.Fields())
	}
	if !p.SupportsMode(ModeHeat) || !p.SupportsMode(ModeOff) {
		t.Error("unknown profile must allow heat and off")
	}
	if p.SupportsMode(ModeCool) {
		t.Error("unknown profile allows cool")
	}
}

func TestResolve_ACLimits(t *testing.T) {
	p := Resolve("AC-V1-1", ResolveOptions{})
	if p.TemperatureStep != 1 {
		t.Errorf("TemperatureStep = %v, want 1", p.TemperatureStep)
	}
	if p.TemperatureRange != (TemperatureRange{Min: 16, Max: 31}) {
		t.Errorf("TemperatureRange = %+v", p.TemperatureRange)
	}
	for _, m := range []Mode{ModeOff, ModeAuto, ModeHeat, ModeCool, ModeFanOnly, ModeDry} {
		if !p.SupportsMode(m) {
			t.Errorf("AC profile missing mode %v", m)
		}
	}
}

func TestResolve_ModesNotShared(t *testing.T) {
	a := Resolve("BB-V1-1", ResolveOptions{})
	a.Modes[0] = ModeDry
	b := Resolve("BB-V1-1", ResolveOptions{})
	if b.Modes[0] != ModeOff {
		t.Errorf("Modes shared between profiles: %v", b.Modes)
	}
}

func TestProfile_OnStep(t *testing.T) {
	half := Profile{TemperatureStep: 0.5}
	tests := []struct {
		c    float64
		want bool
	}{
		{21.0, true},
		{21.5, true},
		{21.3, false},
		{5.0, true},
		{29.999999999, true},
	}
	for _, tt := range tests {
		if got := half.OnStep(tt.c); got != tt.want {
			t.Errorf("OnStep(%v) = %v, want %v", tt.c, got, tt.want)
		}
	}

	if !(Profile{}).OnStep(21.37) {
		t.Error("zero step must accept any value")
	}
}

func TestFieldSet(t *testing.T) {
	s := NewFieldSet(FieldLock, FieldSetPoint)
	if !s.Has(FieldLock) || !s.Has(FieldSetPoint) || s.Has(FieldMode) {
		t.Errorf("Has() mismatch for %v", s.Fields())
	}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if string(data) != `["setpoint","lock"]` {
		t.Errorf("json.Marshal() = %s", data)
	}
}

func TestNames(t *testing.T) {
	if FamilyInFloor.String() != "in_floor" {
		t.Errorf("FamilyInFloor.String() = %q", FamilyInFloor.String())
	}
	if Family(42).String() != "family(42)" {
		t.Errorf("Family(42).String() = %q", Family(42).String())
	}
	if FieldSwingHorizontal.String() != "swing_horizontal" {
		t.Errorf("FieldSwingHorizontal.String() = %q", FieldSwingHorizontal.String())
	}
	if m, ok := ParseMode(" Fan_Only "); !ok || m != ModeFanOnly {
		t.Errorf("ParseMode(fan_only) = %v, %v", m, ok)
	}
	if _, ok := ParseMode("turbo"); ok {
		t.Error("ParseMode(turbo) ok = true")
	}
	if MacKey("AA:BB:cc:DD:ee:FF") != "aabbccddeeff" {
		t.Errorf("MacKey() = %q", MacKey("AA:BB:cc:DD:ee:FF"))
	}
}
