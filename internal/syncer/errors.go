package syncer

import "errors"

var (
	// ErrNoDevices is returned by Discover when the device list could not
	// be fetched, so nothing was registered.
	ErrNoDevices = errors.New("syncer: device list unavailable")

	// ErrInvalidModel is returned by ConvertModel for an empty model name.
	ErrInvalidModel = errors.New("syncer: invalid model")
)

// ErrChannelDisabled is returned for operations that need the realtime
// channel when it is turned off in configuration.
var ErrChannelDisabled = errors.New("syncer: realtime channel disabled")
