package realtime

import (
	"encoding/json"
	"maps"
	"time"
)

// Message type tags carried in "msg" (enveloped) or "MsgType" (flat).
const (
	MsgBoot           = 1
	MsgStatusRequest  = 2
	MsgBatch          = 3
	MsgDeviceLog      = 4
	MsgResetToPairing = 5
	MsgCheckSettings  = 6
	MsgDumpReadings   = 7
	MsgACStateEcho    = 30
	MsgACStateUpdate  = 31
	MsgState          = 40
	MsgCommand        = 44
)

// Kind is how the channel treats a message type.
type Kind uint8

const (
	KindIgnored Kind = iota
	KindState
	KindCommandEcho
	KindBatch
	KindInformational
)

func (k Kind) String() string {
	switch k {
	case KindState:
		return "state"
	case KindCommandEcho:
		return "command_echo"
	case KindBatch:
		return "batch"
	case KindInformational:
		return "informational"
	}
	return "ignored"
}

// Classify maps a type tag to its handling.
func Classify(msgType int) Kind {
	switch msgType {
	case MsgState:
		return KindState
	case MsgCommand:
		return KindCommandEcho
	case MsgBatch:
		return KindBatch
	case MsgBoot, MsgStatusRequest, MsgDeviceLog, MsgResetToPairing,
		MsgCheckSettings, MsgDumpReadings, MsgACStateEcho, MsgACStateUpdate:
		return KindInformational
	}
	return KindIgnored
}

// message is a decoded inbound payload.
type message struct {
	Type int
	Body map[string]any
	Raw  map[string]any
}

func parseMessage(payload []byte) (message, error) {
	raw, err := decodeLenient(payload)
	if err != nil {
		return message{}, err
	}

	m := message{Type: -1, Raw: raw}
	for _, key := range []string{"msg", "MsgType"} {
		if n, ok := raw[key].(float64); ok {
			m.Type = int(n)
			break
		}
	}

	// Flat messages have no body; their fields sit at the top level.
	if body, ok := raw["body"].(map[string]any); ok {
		m.Body = body
	} else {
		m.Body = raw
	}
	return m, nil
}

// sourceRef returns the device reference a message names about itself:
// src.ref of a device source, or the flat Device field.
func (m message) sourceRef() string {
	if src, ok := m.Raw["src"].(map[string]any); ok {
		if t, _ := src["type"].(float64); t == 1 {
			if ref, ok := src["ref"].(string); ok {
				return ref
			}
		}
	}
	for _, key := range []string{"Device", "device"} {
		if s, ok := m.Raw[key].(string); ok {
			return s
		}
	}
	return ""
}

// timestamp returns the envelope's send time, from "Timestamp" or "time".
// Values are Unix seconds; very large ones are taken as milliseconds.
func (m message) timestamp() (time.Time, bool) {
	for _, key := range []string{"Timestamp", "time"} {
		n, ok := m.Raw[key].(float64)
		if !ok || n <= 0 {
			continue
		}
		if n >= 1e12 {
			return time.UnixMilli(int64(n)), true
		}
		return time.Unix(int64(n), 0), true
	}
	return time.Time{}, false
}

// sourceTime is the time a state message's fields were current. The
// envelope time has one-second resolution: a message sent in the second it
// arrived (or stamped ahead by the device clock) keeps its receipt time so
// updates within that second stay ordered. An older envelope time marks a
// delayed message and is used as is.
func (m message) sourceTime(received time.Time) time.Time {
	sent, ok := m.timestamp()
	if !ok || !sent.Before(received.Truncate(time.Second)) {
		return received
	}
	return sent
}

// stateFields returns the field values a state or command-echo message
// reports.
//
// A state update carries them in body.state or directly in the body. A
// command echo nests them one level deeper, in the entries of body.cmd,
// which some app versions send as a JSON string.
func (m message) stateFields() map[string]any {
	if m.Type == MsgCommand {
		if merged := mergeCommands(m.Body["cmd"]); len(merged) > 0 {
			return merged
		}
	}
	if s, ok := m.Body["state"].(map[string]any); ok && len(s) > 0 {
		return s
	}
	return m.Body
}

func mergeCommands(v any) map[string]any {
	if s, ok := v.(string); ok {
		var decoded any
		if err := json.Unmarshal([]byte(s), &decoded); err != nil {
			return nil
		}
		v = decoded
	}

	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make(map[string]any)
	for _, item := range list {
		if entry, ok := item.(map[string]any); ok {
			maps.Copy(out, entry)
		}
	}
	return out
}
