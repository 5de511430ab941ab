// Package command builds device commands from intents.
//
// An Intent is one of a closed set of requested changes (SetTemperature,
// SetMode, SetLock, SetProximity, SetBrightness, SetFanSpeed, SetSwing,
// SetClimatePlus). Builder.Build checks the intent against the device's
// capability profile and produces a WireCommand; nothing here performs I/O.
//
//	b := command.NewBuilder()
//	cmd, err := b.Build(profile, dev.ID, command.SetTemperature{Celsius: 21})
//	if errors.Is(err, command.ErrUnsupportedIntent) {
//	    // the device has no such control
//	}
//	payload, err := cmd.Marshal(userID, time.Now())
//
// Values are never rounded or clamped: a setpoint off the profile's step or
// outside its range is an ErrValidation.
//
// SettingsChanged and ResetToPairing are the two flat control messages that
// bypass the envelope.
package command
