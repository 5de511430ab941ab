// Package batch decodes the binary telemetry blobs devices publish on their
// batch topic.
//
// A blob is a run of fixed-size little-endian records:
//
//	0xCA 0xA0 ver | 22 common bytes | per-version trailer
//
// The common part is timestamp (u32 seconds), sensor, ambient and setpoint
// temperatures (i16 tenths of °C), humidity and duty (i8 %), on and off time
// (i16 in 100 ms units), heat-sink temperature (i16 tenths), free heap (u16
// in units of 10 bytes), RSSI (i8, negated) and an on/off flag (i8). Version
// 1 adds line voltage; version 3 adds voltage and current (mA) plus three
// reserved bytes. The last byte of every record is the XOR of the bytes
// before it.
//
//	for r := range batch.Decode(blob) {
//	    fmt.Println(r.Timestamp, r.SensorTemp)
//	}
package batch
