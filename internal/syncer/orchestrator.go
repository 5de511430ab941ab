package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mysa-core/internal/cloud"
	"github.com/nerrad567/mysa-core/internal/command"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/realtime"
	"github.com/nerrad567/mysa-core/internal/state"
)

// Defaults.
const (
	DefaultPollInterval        = 120 * time.Second
	DefaultHomeRefreshInterval = 30 * time.Minute
)

// Logger defines the logging interface used by the Orchestrator.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Cloud is the subset of the REST API the orchestrator uses.
// *cloud.Client implements it.
type Cloud interface {
	User(ctx context.Context) (cloud.User, error)
	Homes(ctx context.Context) ([]cloud.Home, error)
	Devices(ctx context.Context) (map[string]cloud.RawDevice, error)
	DeviceStates(ctx context.Context) (map[string]cloud.RawDevice, error)
	PatchDevice(ctx context.Context, id string, settings map[string]any) error
	FirmwareInfo(ctx context.Context, id string) (device.FirmwareInfo, error)
}

// Channel is the realtime channel. *realtime.Channel implements it.
type Channel interface {
	Run(ctx context.Context) error
	SetUserID(id string)
	Refresh()
	Publish(ctx context.Context, cmd command.WireCommand) error
	NotifySettingsChanged(ctx context.Context, deviceID string) error
	ResetToPairing(ctx context.Context, deviceID string) error
}

// Config holds orchestrator settings. Zero values select the defaults.
type Config struct {
	PollInterval        time.Duration
	HomeRefreshInterval time.Duration
}

// Stats are cumulative orchestrator counters.
type Stats struct {
	Devices      int       `json:"devices"`
	Ghosts       int       `json:"ghosts"`
	Polls        uint64    `json:"polls"`
	PollFailures uint64    `json:"poll_failures"`
	Commands     uint64    `json:"commands"`
	LastPoll     time.Time `json:"last_poll,omitzero"`
	Discovered   bool      `json:"discovered"`
}

// Orchestrator drives discovery, polling and the realtime channel for one
// account.
//
// Thread Safety: all methods are safe for concurrent use. Run must only be
// called once at a time.
type Orchestrator struct {
	cloud    Cloud
	channel  Channel
	registry *device.Registry
	store    *state.Store
	builder  *command.Builder
	cfg      Config
	logger   Logger
	now      func() time.Time

	mu         sync.Mutex
	userID     string
	ghosts     int
	lastPoll   time.Time
	discovered bool

	polls, pollFailures, commands atomic.Uint64
}

// New creates an orchestrator.
func New(api Cloud, channel Channel, registry *device.Registry, store *state.Store, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.HomeRefreshInterval <= 0 {
		cfg.HomeRefreshInterval = DefaultHomeRefreshInterval
	}
	return &Orchestrator{
		cloud:    api,
		channel:  channel,
		registry: registry,
		store:    store,
		builder:  command.NewBuilder(),
		cfg:      cfg,
		logger:   noopLogger{},
		now:      time.Now,
	}
}

// SetLogger sets the logger for the orchestrator.
func (o *Orchestrator) SetLogger(logger Logger) {
	if logger != nil {
		o.logger = logger
	}
}

// UserID returns the account id found by discovery.
func (o *Orchestrator) UserID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.userID
}

// Discover fetches homes, zones, the user, devices and initial state, in
// that order.
//
// Failures of individual steps are logged and joined into the returned
// error; later steps still run when they can. Only a failed device list
// stops discovery, since nothing after it has devices to work on.
func (o *Orchestrator) Discover(ctx context.Context) error {
	var errs []error

	homes, err := o.cloud.Homes(ctx)
	if err != nil {
		o.logger.Warn("fetching homes failed, devices will not be filtered", "error", err)
		errs = append(errs, fmt.Errorf("homes: %w", err))
	} else if err := o.registry.ReplaceHomes(ctx, convertHomes(homes, o.now())); err != nil {
		errs = append(errs, fmt.Errorf("storing homes: %w", err))
	}

	user, err := o.cloud.User(ctx)
	if err != nil {
		o.logger.Warn("fetching user failed, account channel unavailable", "error", err)
		errs = append(errs, fmt.Errorf("user: %w", err))
	} else {
		o.mu.Lock()
		o.userID = user.ID
		o.mu.Unlock()
		o.channel.SetUserID(user.ID)
	}

	settings, err := o.cloud.Devices(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("%w: %w", ErrNoDevices, err))
		return errors.Join(errs...)
	}

	devices, ghosts := convertDevices(settings, newMembership(homes), o.now())
	for _, id := range ghosts {
		o.logger.Warn("ignoring device not assigned to any home", "device_id", id)
	}
	if err := o.registry.ReplaceDevices(ctx, devices); err != nil {
		errs = append(errs, fmt.Errorf("storing devices: %w", err))
	}

	o.mu.Lock()
	o.ghosts = len(ghosts)
	o.discovered = true
	o.mu.Unlock()

	o.channel.Refresh()
	o.logger.Info("discovery complete",
		"homes", len(homes),
		"devices", len(devices),
		"ghosts", len(ghosts),
	)

	if err := o.applyStates(ctx, settings); err != nil {
		errs = append(errs, fmt.Errorf("initial state: %w", err))
	}
	return errors.Join(errs...)
}

// Poll fetches settings and live state and applies them as HTTP snapshots.
// A failed settings fetch still applies live state on its own.
func (o *Orchestrator) Poll(ctx context.Context) error {
	settings, err := o.cloud.Devices(ctx)
	if err != nil {
		o.logger.Warn("fetching device settings failed, polling live state only", "error", err)
		settings = nil
	}
	return o.applyStates(ctx, settings)
}

func (o *Orchestrator) applyStates(ctx context.Context, settings map[string]cloud.RawDevice) error {
	o.polls.Add(1)

	live, err := o.cloud.DeviceStates(ctx)
	if err != nil {
		o.pollFailures.Add(1)
		return fmt.Errorf("fetching device states: %w", err)
	}

	applied, accepted := 0, 0
	for id, l := range live {
		if _, err := o.registry.Device(id); err != nil {
			continue
		}
		accepted += o.store.ApplyHTTPSnapshot(id, mergeSnapshot(settings[id], l))
		applied++
	}

	o.mu.Lock()
	o.lastPoll = o.now()
	o.mu.Unlock()

	o.logger.Debug("http snapshot applied", "devices", applied, "fields_accepted", accepted)
	return nil
}

// RefreshHomes re-reads homes, zones and electricity rates.
func (o *Orchestrator) RefreshHomes(ctx context.Context) error {
	homes, err := o.cloud.Homes(ctx)
	if err != nil {
		return fmt.Errorf("refreshing homes: %w", err)
	}
	return o.registry.ReplaceHomes(ctx, convertHomes(homes, o.now()))
}

// Run discovers the account and then keeps it in sync until ctx is
// cancelled: it runs the poll loop, the home refresh loop and the realtime
// channel side by side. Polling carries on if the channel gives up.
func (o *Orchestrator) Run(ctx context.Context) error {
	if err := o.Discover(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		o.logger.Warn("initial discovery incomplete", "error", err)
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		if err := o.channel.Run(ctx); err != nil {
			o.logger.Error("realtime channel stopped", "error", err)
		}
	})
	wg.Go(func() { o.every(ctx, o.cfg.PollInterval, "poll", o.poll) })
	wg.Go(func() { o.every(ctx, o.cfg.HomeRefreshInterval, "home refresh", o.RefreshHomes) })

	<-ctx.Done()
	wg.Wait()
	o.logger.Info("sync stopped")
	return nil
}

// poll rediscovers when the initial discovery never got the device list.
func (o *Orchestrator) poll(ctx context.Context) error {
	o.mu.Lock()
	discovered := o.discovered
	o.mu.Unlock()
	if !discovered {
		return o.Discover(ctx)
	}
	return o.Poll(ctx)
}

func (o *Orchestrator) every(ctx context.Context, interval time.Duration, name string, fn func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				o.logger.Warn(name+" failed", "error", err)
			}
		}
	}
}

// IssueCommand validates intent against the device's profile, marks the
// device as having a pending command and publishes it. The device is then
// told its settings changed. A failed publish withdraws the pending marker.
//
// Returns:
//   - WireCommand: what was published
//   - error: device.ErrDeviceNotFound, command.ErrUnsupportedIntent,
//     command.ErrValidation, or the publish failure. Nothing is sent
//     unless validation passes.
func (o *Orchestrator) IssueCommand(ctx context.Context, deviceID string, intent command.Intent) (command.WireCommand, error) {
	profile, err := o.registry.Profile(deviceID)
	if err != nil {
		return command.WireCommand{}, err
	}
	cmd, err := o.builder.Build(profile, deviceID, intent)
	if err != nil {
		return command.WireCommand{}, err
	}

	cancel := o.store.RecordPendingCommand(deviceID)
	if err := o.channel.Publish(ctx, cmd); err != nil {
		cancel()
		return cmd, fmt.Errorf("publishing %s to %s: %w", cmd.Intent, deviceID, err)
	}
	o.commands.Add(1)
	o.logger.Info("command sent", "device_id", deviceID, "intent", cmd.Intent, "id", cmd.ID)

	if err := o.channel.NotifySettingsChanged(ctx, deviceID); err != nil {
		o.logger.Warn("settings changed notification failed", "device_id", deviceID, "error", err)
	}
	return cmd, nil
}

// SetSensorMode switches an in-floor thermostat between its ambient and
// floor sensors. It is a cloud setting: the device is told to re-read its
// settings afterwards.
func (o *Orchestrator) SetSensorMode(ctx context.Context, deviceID string, mode command.SensorMode) error {
	profile, err := o.registry.Profile(deviceID)
	if err != nil {
		return err
	}
	if !profile.Supports(device.FieldSensorMode) {
		return &command.UnsupportedIntentError{
			Intent: "set_sensor_mode",
			Field:  device.FieldSensorMode,
			Family: profile.Family,
			Model:  profile.Model,
		}
	}
	if mode != command.SensorAmbient && mode != command.SensorFloor {
		return fmt.Errorf("%w: unknown sensor mode %d", command.ErrValidation, int(mode))
	}
	if err := o.patch(ctx, deviceID, map[string]any{"SensorMode": int(mode)}); err != nil {
		return err
	}
	o.store.RecordPendingCommand(deviceID)
	return nil
}

// ConvertModel changes the model the cloud reports for a device, which
// changes its capability profile.
func (o *Orchestrator) ConvertModel(ctx context.Context, deviceID, model string) error {
	if model == "" {
		return ErrInvalidModel
	}
	if _, err := o.registry.Device(deviceID); err != nil {
		return err
	}
	if err := o.patch(ctx, deviceID, map[string]any{"Model": model}); err != nil {
		return err
	}
	return o.registry.SetModel(ctx, deviceID, model)
}

// patch posts a settings change and notifies the device. A failed
// notification is logged only; the device picks the change up on its next
// settings check.
func (o *Orchestrator) patch(ctx context.Context, deviceID string, settings map[string]any) error {
	if err := o.cloud.PatchDevice(ctx, deviceID, settings); err != nil {
		return fmt.Errorf("updating settings of %s: %w", deviceID, err)
	}
	if err := o.channel.NotifySettingsChanged(ctx, deviceID); err != nil {
		o.logger.Warn("settings changed notification failed", "device_id", deviceID, "error", err)
	}
	return nil
}

// FirmwareInfo reports installed and available firmware for a device.
func (o *Orchestrator) FirmwareInfo(ctx context.Context, deviceID string) (device.FirmwareInfo, error) {
	if _, err := o.registry.Device(deviceID); err != nil {
		return device.FirmwareInfo{}, err
	}
	return o.cloud.FirmwareInfo(ctx, deviceID)
}

// ResetToPairing puts a device back into pairing mode.
func (o *Orchestrator) ResetToPairing(ctx context.Context, deviceID string) error {
	if _, err := o.registry.Device(deviceID); err != nil {
		return err
	}
	o.logger.Warn("resetting device to pairing mode", "device_id", deviceID)
	return o.channel.ResetToPairing(ctx, deviceID)
}

// Stats returns orchestrator counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return Stats{
		Devices:      o.registry.Count(),
		Ghosts:       o.ghosts,
		Polls:        o.polls.Load(),
		PollFailures: o.pollFailures.Load(),
		Commands:     o.commands.Load(),
		LastPoll:     o.lastPoll,
		Discovered:   o.discovered,
	}
}

var (
	_ Cloud   = (*cloud.Client)(nil)
	_ Channel = (*realtime.Channel)(nil)
)
