package batch

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"iter"
	"time"
)

// Record framing.
const (
	magic0 = 0xCA
	magic1 = 0xA0

	headerLen = 3
	commonLen = 22
)

// trailerLen is the per-version trailer size, checksum byte included.
var trailerLen = map[byte]int{
	0: 1, // checksum
	1: 3, // voltage, checksum
	3: 8, // voltage, current, 3 reserved, checksum
}

// RecordLen returns the full length of a record of the given version, or 0
// when the version is unknown.
func RecordLen(version byte) int {
	t, ok := trailerLen[version]
	if !ok {
		return 0
	}
	return headerLen + commonLen + t
}

// Reading is one decoded telemetry sample in physical units.
type Reading struct {
	Timestamp time.Time `json:"timestamp"`
	Version   int       `json:"version"`

	SensorTemp   float64 `json:"sensor_temp"`
	AmbientTemp  float64 `json:"ambient_temp"`
	SetPoint     float64 `json:"setpoint"`
	HeatSinkTemp float64 `json:"heatsink_temp"`

	Humidity  int `json:"humidity"`
	DutyCycle int `json:"duty_cycle"`

	OnDuration  time.Duration `json:"on_duration"`
	OffDuration time.Duration `json:"off_duration"`

	FreeHeap int `json:"free_heap"`
	RSSI     int `json:"rssi"`
	OnOff    int `json:"on_off"`

	// Voltage is present from version 1, Current from version 3 (amps).
	Voltage *float64 `json:"voltage,omitempty"`
	Current *float64 `json:"current,omitempty"`
}

// DecodeBase64 decodes the base64 "readings" field of a batch message.
func DecodeBase64(s string) ([]byte, error) {
	blob, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFraming, err)
	}
	return blob, nil
}

// Records yields every record in blob with its decode error, if any.
//
// A record with a bad checksum yields a *ChecksumError and decoding moves on
// to the next record. A framing error (bad magic, a version differing from
// the first record's, or an unknown version) yields ErrFraming or
// ErrUnknownVersion and ends the sequence, since record boundaries are then
// unknown. A truncated trailing record is dropped silently.
//
// The sequence is lazy and may be ranged over any number of times.
func Records(blob []byte) iter.Seq2[Reading, error] {
	return func(yield func(Reading, error) bool) {
		if len(blob) < headerLen {
			return
		}
		version := blob[2]
		size := RecordLen(version)
		if size == 0 {
			yield(Reading{}, fmt.Errorf("%w: %d", ErrUnknownVersion, version))
			return
		}

		for off := 0; off+size <= len(blob); off += size {
			rec := blob[off : off+size]
			if rec[0] != magic0 || rec[1] != magic1 || rec[2] != version {
				yield(Reading{}, fmt.Errorf("%w: bad header % x at offset %d", ErrFraming, rec[:3], off))
				return
			}

			want := rec[size-1]
			if got := xor(rec[:size-1]); got != want {
				if !yield(Reading{}, &ChecksumError{Offset: off, Want: want, Got: got}) {
					return
				}
				continue
			}

			if !yield(decodeRecord(rec, version), nil) {
				return
			}
		}
	}
}

// Decode yields the valid readings in blob, skipping corrupt records.
func Decode(blob []byte) iter.Seq[Reading] {
	return func(yield func(Reading) bool) {
		for r, err := range Records(blob) {
			if err != nil {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

func decodeRecord(rec []byte, version byte) Reading {
	le := binary.LittleEndian
	b := rec[headerLen:]

	r := Reading{
		Timestamp:    time.Unix(int64(le.Uint32(b[0:4])), 0).UTC(),
		Version:      int(version),
		SensorTemp:   tenths(int16(le.Uint16(b[4:6]))),
		AmbientTemp:  tenths(int16(le.Uint16(b[6:8]))),
		SetPoint:     tenths(int16(le.Uint16(b[8:10]))),
		Humidity:     int(int8(b[10])),
		DutyCycle:    int(int8(b[11])),
		OnDuration:   time.Duration(int16(le.Uint16(b[12:14]))) * 100 * time.Millisecond,
		OffDuration:  time.Duration(int16(le.Uint16(b[14:16]))) * 100 * time.Millisecond,
		HeatSinkTemp: tenths(int16(le.Uint16(b[16:18]))),
		FreeHeap:     int(le.Uint16(b[18:20])) * 10,
		RSSI:         -int(int8(b[20])),
		OnOff:        int(int8(b[21])),
	}

	t := b[commonLen:]
	if version >= 1 {
		v := float64(int16(le.Uint16(t[0:2])))
		r.Voltage = &v
	}
	if version >= 3 {
		c := float64(int16(le.Uint16(t[2:4]))) / 1000
		r.Current = &c
	}
	return r
}

func tenths(v int16) float64 {
	return float64(v) / 10
}

func xor(b []byte) byte {
	var x byte
	for _, c := range b {
		x ^= c
	}
	return x
}
