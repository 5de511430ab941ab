package syncer

import (
	"context"

	"github.com/nerrad567/mysa-core/internal/command"
)

// Offline is the Channel used when realtime is disabled. State then comes
// from polling alone and commands fail with ErrChannelDisabled.
type Offline struct{}

// Run blocks until ctx is cancelled.
func (Offline) Run(ctx context.Context) error {
	<-ctx.Done()
	return nil
}

func (Offline) SetUserID(string) {}
func (Offline) Refresh()         {}

func (Offline) Publish(context.Context, command.WireCommand) error {
	return ErrChannelDisabled
}

// NotifySettingsChanged is a no-op; the device reads new settings on its
// own schedule.
func (Offline) NotifySettingsChanged(context.Context, string) error {
	return nil
}

func (Offline) ResetToPairing(context.Context, string) error {
	return ErrChannelDisabled
}

var _ Channel = Offline{}
