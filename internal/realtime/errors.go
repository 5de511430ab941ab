package realtime

import "errors"

var (
	// ErrNotConnected is returned when publishing with no live broker session.
	ErrNotConnected = errors.New("realtime: channel not connected")

	// ErrMalformed marks a message that could not be decoded at all.
	ErrMalformed = errors.New("realtime: malformed message")

	// ErrConnectionLost wraps the cause of a dropped broker session.
	ErrConnectionLost = errors.New("realtime: connection lost")

	// ErrRetriesExhausted is returned by Run when the configured number of
	// consecutive failed attempts is reached.
	ErrRetriesExhausted = errors.New("realtime: reconnect attempts exhausted")
)
