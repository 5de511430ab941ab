// Package realtime maintains the push channel to the vendor's MQTT broker.
//
// A Channel subscribes the out, in and batch topics of every known device
// plus the account channel, classifies inbound messages by their type tag
// and hands state updates, command echoes and decoded batch readings to a
// Sink. Outbound commands and control messages are published to the
// device's inbound topic.
//
// Connection loss is handled inside Run with exponential backoff between 5
// and 60 seconds. When the broker refuses the session for authentication
// reasons the next attempt first renews credentials, so a fresh signed URL
// is used.
package realtime
