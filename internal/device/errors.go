package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrDeviceNotFound) {
//	    // handle not found case
//	}
var (
	// ErrDeviceNotFound is returned when a device ID or mac key is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrHomeNotFound is returned when a home ID does not exist.
	ErrHomeNotFound = errors.New("device: home not found")

	// ErrInvalidDevice is returned when a device lacks its ID or home.
	ErrInvalidDevice = errors.New("device: invalid")
)
