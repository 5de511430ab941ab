package batch

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
	"testing"
	"time"
)

// sample holds raw field values for building a record.
type sample struct {
	ts                    uint32
	sensor, ambient, setp int16
	hum, duty             int8
	on, off, heatsink     int16
	heap                  uint16
	rssi, onoff           int8
	voltage, current      int16
}

// buildRecord encodes s as a record of the given version with a valid checksum.
func buildRecord(version byte, s sample) []byte {
	le := binary.LittleEndian
	rec := []byte{magic0, magic1, version}
	rec = le.AppendUint32(rec, s.ts)
	rec = le.AppendUint16(rec, uint16(s.sensor))
	rec = le.AppendUint16(rec, uint16(s.ambient))
	rec = le.AppendUint16(rec, uint16(s.setp))
	rec = append(rec, byte(s.hum), byte(s.duty))
	rec = le.AppendUint16(rec, uint16(s.on))
	rec = le.AppendUint16(rec, uint16(s.off))
	rec = le.AppendUint16(rec, uint16(s.heatsink))
	rec = le.AppendUint16(rec, s.heap)
	rec = append(rec, byte(s.rssi), byte(s.onoff))

	switch version {
	case 1:
		rec = le.AppendUint16(rec, uint16(s.voltage))
	case 3:
		rec = le.AppendUint16(rec, uint16(s.voltage))
		rec = le.AppendUint16(rec, uint16(s.current))
		rec = append(rec, 0, 0, 0)
	}
	return append(rec, xor(rec))
}

func baseSample(ts uint32) sample {
	return sample{
		ts: ts, sensor: 215, ambient: 203, setp: 210,
		hum: 41, duty: 35, on: 12, off: 30, heatsink: 312,
		heap: 4096, rssi: 67, onoff: 1, voltage: 240, current: 8350,
	}
}

func collect(blob []byte) []Reading {
	var out []Reading
	for r := range Decode(blob) {
		out = append(out, r)
	}
	return out
}

// =============================================================================
// Layout
// =============================================================================

func TestRecordLen(t *testing.T) {
	tests := []struct {
		version byte
		want    int
	}{
		{0, 26},
		{1, 28},
		{3, 33},
		{2, 0},
		{9, 0},
	}
	for _, tt := range tests {
		if got := RecordLen(tt.version); got != tt.want {
			t.Errorf("RecordLen(%d) = %d, want %d", tt.version, got, tt.want)
		}
	}
	for _, v := range []byte{0, 1, 3} {
		if got := len(buildRecord(v, baseSample(1))); got != RecordLen(v) {
			t.Errorf("test record v%d has %d bytes, want %d", v, got, RecordLen(v))
		}
	}
}

func TestDecode_V3Scaling(t *testing.T) {
	readings := collect(buildRecord(3, baseSample(1_700_000_000)))
	if len(readings) != 1 {
		t.Fatalf("Decode() returned %d readings, want 1", len(readings))
	}
	r := readings[0]

	if !r.Timestamp.Equal(time.Unix(1_700_000_000, 0)) {
		t.Errorf("Timestamp = %v", r.Timestamp)
	}
	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"SensorTemp", r.SensorTemp, 21.5},
		{"AmbientTemp", r.AmbientTemp, 20.3},
		{"SetPoint", r.SetPoint, 21.0},
		{"HeatSinkTemp", r.HeatSinkTemp, 31.2},
		{"Humidity", float64(r.Humidity), 41},
		{"DutyCycle", float64(r.DutyCycle), 35},
		{"FreeHeap", float64(r.FreeHeap), 40960},
		{"RSSI", float64(r.RSSI), -67},
		{"OnOff", float64(r.OnOff), 1},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}
	if r.OnDuration != 1200*time.Millisecond || r.OffDuration != 3*time.Second {
		t.Errorf("On/Off = %v/%v, want 1.2s/3s", r.OnDuration, r.OffDuration)
	}
	if r.Voltage == nil || *r.Voltage != 240 {
		t.Errorf("Voltage = %v, want 240", r.Voltage)
	}
	if r.Current == nil || *r.Current != 8.35 {
		t.Errorf("Current = %v, want 8.35", r.Current)
	}
	if r.Version != 3 {
		t.Errorf("Version = %d, want 3", r.Version)
	}
}

func TestDecode_VersionTrailers(t *testing.T) {
	v0 := collect(buildRecord(0, baseSample(1)))
	if len(v0) != 1 || v0[0].Voltage != nil || v0[0].Current != nil {
		t.Errorf("v0 reading = %+v, want no voltage or current", v0)
	}

	v1 := collect(buildRecord(1, baseSample(1)))
	if len(v1) != 1 || v1[0].Voltage == nil || v1[0].Current != nil {
		t.Fatalf("v1 reading = %+v, want voltage only", v1)
	}
	if *v1[0].Voltage != 240 {
		t.Errorf("v1 Voltage = %v, want 240", *v1[0].Voltage)
	}
}

func TestDecode_NegativeTemperatures(t *testing.T) {
	s := baseSample(1)
	s.sensor = -55
	s.rssi = -3 // negated on decode
	r := collect(buildRecord(0, s))[0]
	if r.SensorTemp != -5.5 {
		t.Errorf("SensorTemp = %v, want -5.5", r.SensorTemp)
	}
	if r.RSSI != 3 {
		t.Errorf("RSSI = %d, want 3", r.RSSI)
	}
}

// =============================================================================
// Corruption
// =============================================================================

func TestDecode_OneCorruptRecord(t *testing.T) {
	const n = 5
	var blob []byte
	for i := 0; i < n; i++ {
		rec := buildRecord(3, baseSample(uint32(1000+i)))
		if i == 2 {
			rec[10] ^= 0xFF
		}
		blob = append(blob, rec...)
	}

	readings := collect(blob)
	if len(readings) != n-1 {
		t.Fatalf("Decode() returned %d readings, want %d", len(readings), n-1)
	}
	for _, r := range readings {
		if r.Timestamp.Unix() == 1002 {
			t.Error("corrupt record 1002 was decoded")
		}
	}
	if readings[2].Timestamp.Unix() != 1003 {
		t.Errorf("third reading ts = %d, want 1003", readings[2].Timestamp.Unix())
	}

	var checksumErrs int
	for _, err := range Records(blob) {
		if err == nil {
			continue
		}
		var ce *ChecksumError
		if !errors.As(err, &ce) || !errors.Is(err, ErrChecksum) {
			t.Errorf("Records() error = %v, want *ChecksumError", err)
			continue
		}
		if ce.Offset != 2*RecordLen(3) {
			t.Errorf("ChecksumError.Offset = %d, want %d", ce.Offset, 2*RecordLen(3))
		}
		checksumErrs++
	}
	if checksumErrs != 1 {
		t.Errorf("Records() yielded %d checksum errors, want 1", checksumErrs)
	}
}

func TestDecode_TruncatedTail(t *testing.T) {
	blob := append(buildRecord(1, baseSample(1)), buildRecord(1, baseSample(2))[:10]...)

	var errs int
	for _, err := range Records(blob) {
		if err != nil {
			errs++
		}
	}
	if errs != 0 {
		t.Errorf("truncated tail produced %d errors, want 0", errs)
	}
	if got := len(collect(blob)); got != 1 {
		t.Errorf("Decode() returned %d readings, want 1", got)
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, blob := range [][]byte{nil, {}, {magic0}, {magic0, magic1}} {
		if got := len(collect(blob)); got != 0 {
			t.Errorf("Decode(% x) returned %d readings, want 0", blob, got)
		}
	}
}

func TestRecords_FramingStops(t *testing.T) {
	blob := buildRecord(0, baseSample(1))
	bad := buildRecord(0, baseSample(2))
	bad[0] = 0x00
	blob = append(blob, bad...)
	blob = append(blob, buildRecord(0, baseSample(3))...)

	var got []error
	var readings int
	for r, err := range Records(blob) {
		if err != nil {
			got = append(got, err)
			continue
		}
		_ = r
		readings++
	}
	if readings != 1 {
		t.Errorf("readings = %d, want 1", readings)
	}
	if len(got) != 1 || !errors.Is(got[0], ErrFraming) {
		t.Errorf("errors = %v, want one ErrFraming", got)
	}
}

func TestRecords_UnknownVersion(t *testing.T) {
	blob := []byte{magic0, magic1, 7, 1, 2, 3}
	var got error
	for _, err := range Records(blob) {
		got = err
	}
	if !errors.Is(got, ErrUnknownVersion) {
		t.Errorf("Records() error = %v, want ErrUnknownVersion", got)
	}
}

func TestDecode_Restartable(t *testing.T) {
	blob := append(buildRecord(0, baseSample(1)), buildRecord(0, baseSample(2))...)
	seq := Decode(blob)

	count := func() int {
		n := 0
		for range seq {
			n++
		}
		return n
	}
	if a, b := count(), count(); a != 2 || b != 2 {
		t.Errorf("two passes returned %d and %d readings, want 2 and 2", a, b)
	}

	// Early break stops without panicking.
	for range seq {
		break
	}
}

func TestDecodeBase64(t *testing.T) {
	rec := buildRecord(3, baseSample(42))
	blob, err := DecodeBase64(base64.StdEncoding.EncodeToString(rec))
	if err != nil {
		t.Fatalf("DecodeBase64() error = %v", err)
	}
	if got := collect(blob); len(got) != 1 || got[0].Timestamp.Unix() != 42 {
		t.Errorf("decoded readings = %+v", got)
	}

	if _, err := DecodeBase64("!!not base64!!"); !errors.Is(err, ErrFraming) {
		t.Errorf("DecodeBase64(bad) error = %v, want ErrFraming", err)
	}
}
