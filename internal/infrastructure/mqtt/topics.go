package mqtt

import (
	"fmt"
	"strings"
)

// Topic prefixes used by the realtime broker.
const (
	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "/v1/dev"

	// TopicPrefixUser is the base for account topics.
	TopicPrefixUser = "/v1/user"
)

// Device topic kinds.
const (
	KindOut   = "out"
	KindIn    = "in"
	KindBatch = "batch"
)

// Topics provides builders for broker topics. Devices are addressed by
// their MAC key: the device id lower-cased with separators removed.
//
//	topics := mqtt.Topics{}
//	topics.DeviceIn("aabbccddeeff")
//	// Returns: "/v1/dev/aabbccddeeff/in"
type Topics struct{}

// DeviceOut returns the topic a device reports state and echoes on.
func (Topics) DeviceOut(macKey string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, macKey, KindOut)
}

// DeviceIn returns the topic commands are published to.
func (Topics) DeviceIn(macKey string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, macKey, KindIn)
}

// DeviceBatch returns the topic for batched sensor readings.
func (Topics) DeviceBatch(macKey string) string {
	return fmt.Sprintf("%s/%s/%s", TopicPrefixDevice, macKey, KindBatch)
}

// Device returns all three topics for one device.
func (t Topics) Device(macKey string) []string {
	return []string{t.DeviceOut(macKey), t.DeviceIn(macKey), t.DeviceBatch(macKey)}
}

// AccountOut returns the account channel for userID.
func (Topics) AccountOut(userID string) string {
	return fmt.Sprintf("%s/%s/out", TopicPrefixUser, userID)
}

// ParseDeviceTopic splits "/v1/dev/{mac}/{kind}" into its parts.
func (Topics) ParseDeviceTopic(topic string) (macKey, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, TopicPrefixDevice+"/")
	if !found {
		return "", "", false
	}
	macKey, kind, found = strings.Cut(rest, "/")
	if !found || macKey == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	switch kind {
	case KindOut, KindIn, KindBatch:
		return macKey, kind, true
	}
	return "", "", false
}
