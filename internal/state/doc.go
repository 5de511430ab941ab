// Package state holds the merged, per-field timestamped view of every
// device.
//
// Two feeds write here: periodic HTTP snapshots and realtime channel
// updates. Payloads arrive with many key aliases ("md", "TstatMode",
// "Mode") and optional {"v", "t"} value objects; Normalize folds them onto
// canonical field names before merging.
//
// Merge rule: a field is replaced only by a value with a strictly newer
// timestamp. After a command is sent, HTTP values without their own
// timestamp are ignored for the pending window (90 s by default) because
// the REST view lags the device.
package state
