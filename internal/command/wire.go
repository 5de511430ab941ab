package command

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Message type tags.
const (
	MsgResetToPairing  = 5
	MsgSettingsChanged = 6
	MsgCommand         = 44
)

const (
	endpointDevice = 1
	endpointUser   = 100
	respRequested  = 2
	envelopeVer    = "1.0"
)

// Body is the payload of a command envelope.
type Body struct {
	Cmd  []map[string]any `json:"cmd"`
	Type int              `json:"type"`
	Ver  int              `json:"ver"`
}

// Endpoint identifies the source or destination of an envelope.
type Endpoint struct {
	Ref  string `json:"ref"`
	Type int    `json:"type"`
}

// Envelope wraps a command body for publishing to a device's inbound topic.
type Envelope struct {
	Timestamp int64    `json:"Timestamp"`
	Body      Body     `json:"body"`
	Dest      Endpoint `json:"dest"`
	ID        int64    `json:"id"`
	Msg       int      `json:"msg"`
	Resp      int      `json:"resp"`
	Src       Endpoint `json:"src"`
	Time      int64    `json:"time"`
	Ver       string   `json:"ver"`
}

// Envelope wraps c for sending on behalf of userID.
func (c WireCommand) Envelope(userID string, now time.Time) Envelope {
	sec := now.Unix()
	return Envelope{
		Timestamp: sec,
		Body:      c.Body(),
		Dest:      Endpoint{Ref: c.DeviceID, Type: endpointDevice},
		ID:        c.ID,
		Msg:       MsgCommand,
		Resp:      respRequested,
		Src:       Endpoint{Ref: userID, Type: endpointUser},
		Time:      sec,
		Ver:       envelopeVer,
	}
}

// Marshal encodes the envelope for c.
func (c WireCommand) Marshal(userID string, now time.Time) ([]byte, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: envelope needs a user id", ErrValidation)
	}
	data, err := json.Marshal(c.Envelope(userID, now))
	if err != nil {
		return nil, fmt.Errorf("marshalling command envelope: %w", err)
	}
	return data, nil
}

// SettingsChanged tells a device to re-read its cloud settings. It is sent
// flat, without an envelope.
type SettingsChanged struct {
	Device    string `json:"Device"`
	EventType int    `json:"EventType"`
	MsgType   int    `json:"MsgType"`
	Timestamp int64  `json:"Timestamp"`
}

// NewSettingsChanged builds the notification for deviceID.
func NewSettingsChanged(deviceID string, now time.Time) SettingsChanged {
	return SettingsChanged{
		Device:    strings.ToUpper(deviceID),
		EventType: 0,
		MsgType:   MsgSettingsChanged,
		Timestamp: now.Unix(),
	}
}

// ResetToPairing puts a device back into pairing mode. It is sent flat.
type ResetToPairing struct {
	Device    string `json:"Device"`
	Timestamp int64  `json:"Timestamp"`
	MsgType   int    `json:"MsgType"`
	EchoID    int    `json:"EchoID"`
}

// NewResetToPairing builds the reset message for deviceID.
func NewResetToPairing(deviceID string, now time.Time) ResetToPairing {
	return ResetToPairing{
		Device:    deviceID,
		Timestamp: now.Unix(),
		MsgType:   MsgResetToPairing,
		EchoID:    1,
	}
}
