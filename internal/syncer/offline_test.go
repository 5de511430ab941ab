package syncer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/mysa-core/internal/command"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/state"
)

func TestOffline(t *testing.T) {
	api := newCloud()
	registry := device.NewRegistry(nil, nil)
	store := state.NewStore(state.Config{})
	orch := New(api, Offline{}, registry, store, Config{})
	ctx := context.Background()

	if err := orch.Discover(ctx); err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if _, ok := store.Read(hall); !ok {
		t.Error("polling alone did not populate state")
	}

	if _, err := orch.IssueCommand(ctx, hall, command.SetTemperature{Celsius: 21.5}); !errors.Is(err, ErrChannelDisabled) {
		t.Errorf("IssueCommand() error = %v, want ErrChannelDisabled", err)
	}
	if err := orch.ResetToPairing(ctx, hall); !errors.Is(err, ErrChannelDisabled) {
		t.Errorf("ResetToPairing() error = %v, want ErrChannelDisabled", err)
	}

	// Settings changes still reach the cloud.
	if err := orch.SetSensorMode(ctx, floor, command.SensorFloor); err != nil {
		t.Errorf("SetSensorMode() error = %v", err)
	}
	if len(api.patches) != 1 {
		t.Errorf("patches = %d, want 1", len(api.patches))
	}

	runCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	if err := (Offline{}).Run(runCtx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
