package command

import (
	"errors"
	"fmt"

	"github.com/nerrad567/mysa-core/internal/device"
)

// Domain errors for the command package. Both are returned before anything
// is sent to the device.
var (
	// ErrUnsupportedIntent is returned when the device's profile does not
	// include the field the intent controls.
	ErrUnsupportedIntent = errors.New("command: unsupported intent")

	// ErrValidation is returned when an intent's value is out of range, off
	// the temperature step, or not a known enum value.
	ErrValidation = errors.New("command: validation failed")
)

// UnsupportedIntentError describes an intent rejected by a device profile.
// It matches ErrUnsupportedIntent with errors.Is.
type UnsupportedIntentError struct {
	Intent string
	Field  device.Field
	Family device.Family
	Model  string
}

func (e *UnsupportedIntentError) Error() string {
	return fmt.Sprintf("command: %s needs %s, not supported by %s device %q",
		e.Intent, e.Field, e.Family, e.Model)
}

// Unwrap returns ErrUnsupportedIntent.
func (e *UnsupportedIntentError) Unwrap() error {
	return ErrUnsupportedIntent
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
