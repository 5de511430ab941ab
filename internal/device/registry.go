package device

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Registry is the in-memory catalogue of discovered homes, zones and
// devices. It writes through to a Repository so a restart can serve device
// metadata before discovery completes.
//
// Discovery replaces the catalogue wholesale; the only per-device mutation
// is SetModel.
//
// All public methods are thread-safe. Returned values are deep copies.
type Registry struct {
	repo   Repository
	logger Logger

	// upgradedLite holds mac keys flagged in configuration.
	upgradedLite map[string]struct{}

	mu      sync.RWMutex
	homes   []Home
	devices map[string]*Device
	byMac   map[string]string
}

// NewRegistry creates a registry. repo may be nil for a memory-only
// registry. upgradedLite lists device IDs (any case, colons optional) that
// resolve with the upgraded-lite override.
func NewRegistry(repo Repository, upgradedLite []string) *Registry {
	r := &Registry{
		repo:         repo,
		logger:       noopLogger{},
		upgradedLite: make(map[string]struct{}, len(upgradedLite)),
		devices:      make(map[string]*Device),
		byMac:        make(map[string]string),
	}
	for _, id := range upgradedLite {
		r.upgradedLite[MacKey(id)] = struct{}{}
	}
	return r
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

// Load fills the cache from the repository. It is a no-op without one.
func (r *Registry) Load(ctx context.Context) error {
	if r.repo == nil {
		return nil
	}
	homes, err := r.repo.ListHomes(ctx)
	if err != nil {
		return fmt.Errorf("loading homes: %w", err)
	}
	devices, err := r.repo.ListDevices(ctx)
	if err != nil {
		return fmt.Errorf("loading devices: %w", err)
	}

	r.mu.Lock()
	r.setHomesLocked(homes)
	r.setDevicesLocked(devices)
	r.mu.Unlock()

	r.logger.Info("device registry loaded", "homes", len(homes), "devices", len(devices))
	return nil
}

// ReplaceHomes swaps the home catalogue. The cache is updated even when
// persistence fails; the persistence error is returned.
func (r *Registry) ReplaceHomes(ctx context.Context, homes []Home) error {
	r.mu.Lock()
	r.setHomesLocked(homes)
	r.mu.Unlock()

	if r.repo == nil {
		return nil
	}
	if err := r.repo.ReplaceHomes(ctx, homes); err != nil {
		return fmt.Errorf("persisting homes: %w", err)
	}
	return nil
}

// ReplaceDevices swaps the device catalogue. MacKey and UpgradedLite are
// filled in before storing.
func (r *Registry) ReplaceDevices(ctx context.Context, devices []Device) error {
	r.mu.Lock()
	r.setDevicesLocked(devices)
	r.mu.Unlock()

	if r.repo == nil {
		return nil
	}
	if err := r.repo.ReplaceDevices(ctx, devices); err != nil {
		return fmt.Errorf("persisting devices: %w", err)
	}
	return nil
}

func (r *Registry) setHomesLocked(homes []Home) {
	r.homes = make([]Home, len(homes))
	for i := range homes {
		r.homes[i] = *homes[i].DeepCopy()
	}
}

func (r *Registry) setDevicesLocked(devices []Device) {
	r.devices = make(map[string]*Device, len(devices))
	r.byMac = make(map[string]string, len(devices))
	for i := range devices {
		d := devices[i].DeepCopy()
		if d.MacKey == "" {
			d.MacKey = MacKey(d.ID)
		}
		_, d.UpgradedLite = r.upgradedLite[d.MacKey]
		r.devices[d.ID] = d
		r.byMac[d.MacKey] = d.ID
	}
}

// Homes returns all homes.
func (r *Registry) Homes() []Home {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Home, len(r.homes))
	for i := range r.homes {
		out[i] = *r.homes[i].DeepCopy()
	}
	return out
}

// Home returns one home by ID.
func (r *Registry) Home(id string) (*Home, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := range r.homes {
		if r.homes[i].ID == id {
			return r.homes[i].DeepCopy(), nil
		}
	}
	return nil, ErrHomeNotFound
}

// ZoneName returns the zone's name, or "" when unknown.
func (r *Registry) ZoneName(zoneID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, h := range r.homes {
		for _, z := range h.Zones {
			if z.ID == zoneID {
				return z.Name
			}
		}
	}
	return ""
}

// Devices returns all devices sorted by ID.
func (r *Registry) Devices() []Device {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Device, 0, len(r.devices))
	for _, d := range r.devices {
		out = append(out, *d.DeepCopy())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Device returns one device by vendor ID.
func (r *Registry) Device(id string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.devices[id]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return d.DeepCopy(), nil
}

// ByMacKey returns the device whose topic key is mac.
func (r *Registry) ByMacKey(mac string) (*Device, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byMac[MacKey(mac)]
	if !ok {
		return nil, ErrDeviceNotFound
	}
	return r.devices[id].DeepCopy(), nil
}

// MacKeys returns the topic keys of every device, sorted.
func (r *Registry) MacKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.byMac))
	for k := range r.byMac {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Profile resolves the capability profile of a device.
func (r *Registry) Profile(id string) (Profile, error) {
	d, err := r.Device(id)
	if err != nil {
		return Profile{}, err
	}
	return d.Profile(), nil
}

// SetModel records a model conversion. The profile of the device is
// re-derived from the new model on the next Profile call.
func (r *Registry) SetModel(ctx context.Context, id, model string) error {
	r.mu.Lock()
	d, ok := r.devices[id]
	if !ok {
		r.mu.Unlock()
		return ErrDeviceNotFound
	}
	updated := d.DeepCopy()
	updated.Model = model
	r.devices[id] = updated
	r.mu.Unlock()

	r.logger.Info("device model changed", "id", id, "model", model)

	if r.repo == nil {
		return nil
	}
	return r.repo.UpdateModel(ctx, id, model)
}

// Count returns the number of registered devices.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.devices)
}
