package state

import (
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mysa-core/internal/batch"
)

// Defaults.
const (
	// DefaultPendingWindow is how long after a command HTTP values without
	// their own timestamp are ignored. The cloud's REST view lags commands
	// by up to about a minute.
	DefaultPendingWindow = 90 * time.Second

	// DefaultEventBuffer is the capacity of the Events channel.
	DefaultEventBuffer = 256
)

// Logger defines the logging interface used by the Store.
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

// Config holds Store settings. Zero values select the defaults.
type Config struct {
	PendingWindow time.Duration
	EventBuffer   int
}

type entry struct {
	fields  map[string]Value
	pending time.Time
	updated time.Time
}

// Store is the authoritative per-device state, merged from HTTP snapshots
// and realtime updates.
//
// Each field is accepted only when its timestamp is strictly newer than the
// stored one, so the final state does not depend on arrival order. A value
// with an identical timestamp is rejected.
//
// Thread Safety: all methods are safe for concurrent use. Read returns deep
// copies. Events are sent without blocking; when the buffer is full the
// event is dropped and counted.
type Store struct {
	logger Logger
	now    func() time.Time
	window time.Duration

	mu      sync.RWMutex
	devices map[string]*entry

	events chan Event

	accepted atomic.Uint64
	stale    atomic.Uint64
	guarded  atomic.Uint64
	dropped  atomic.Uint64
}

// NewStore creates an empty store.
func NewStore(cfg Config) *Store {
	if cfg.PendingWindow <= 0 {
		cfg.PendingWindow = DefaultPendingWindow
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}
	return &Store{
		logger:  noopLogger{},
		now:     time.Now,
		window:  cfg.PendingWindow,
		devices: make(map[string]*entry),
		events:  make(chan Event, cfg.EventBuffer),
	}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// ApplyHTTPSnapshot merges a raw device object fetched over HTTP.
//
// Fields that carry their own timestamp compete on it. Fields without one
// are stamped with the receipt time, but are rejected outright while a
// pending-command marker younger than the pending window exists for the
// device.
//
// Returns the number of fields accepted.
func (s *Store) ApplyHTTPSnapshot(deviceID string, raw map[string]any) int {
	return s.apply(deviceID, Normalize(raw), OriginHTTP, s.now())
}

// ApplyRealtimeUpdate merges a raw state payload received on the realtime
// channel at receivedAt. Fields without a timestamp of their own use
// receivedAt. Realtime updates are never held back by a pending command.
func (s *Store) ApplyRealtimeUpdate(deviceID string, raw map[string]any, receivedAt time.Time) int {
	return s.apply(deviceID, Normalize(raw), OriginRealtime, receivedAt)
}

// ApplyReading merges a decoded batch reading as a realtime update stamped
// with the reading's own time.
func (s *Store) ApplyReading(deviceID string, r batch.Reading) int {
	return s.apply(deviceID, ReadingObservations(r), OriginRealtime, r.Timestamp)
}

// RecordPendingCommand marks that a command is being sent to the device.
// cancel withdraws the marker when the command never went out, restoring
// the one it replaced. It does nothing once a newer command has been
// recorded.
func (s *Store) RecordPendingCommand(deviceID string) (cancel func()) {
	now := s.now()
	s.mu.Lock()
	e := s.entry(deviceID)
	prev := e.pending
	e.pending = now
	s.mu.Unlock()

	s.logger.Debug("pending command recorded", "device_id", deviceID)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if e.pending.Equal(now) {
				e.pending = prev
			}
			s.mu.Unlock()
			s.logger.Debug("pending command withdrawn", "device_id", deviceID)
		})
	}
}

// Pending reports whether HTTP values for the device are currently held
// back.
func (s *Store) Pending(deviceID string) bool {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.devices[deviceID]
	return ok && s.guarding(e, now)
}

// Read returns a copy of the device's state.
func (s *Store) Read(deviceID string) (DeviceState, bool) {
	now := s.now()
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.devices[deviceID]
	if !ok {
		return DeviceState{}, false
	}
	st := DeviceState{
		DeviceID:  deviceID,
		Fields:    copyFields(e.fields),
		UpdatedAt: e.updated,
	}
	if s.guarding(e, now) {
		until := e.pending.Add(s.window)
		st.PendingUntil = &until
	}
	return st, true
}

// DeviceIDs returns the IDs of all devices with state, sorted.
func (s *Store) DeviceIDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.devices))
	for id := range s.devices {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// Events returns the change stream. There is a single stream; concurrent
// receivers split it between them.
func (s *Store) Events() <-chan Event {
	return s.events
}

// Stats returns store counters.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	n := len(s.devices)
	s.mu.RUnlock()

	return Stats{
		Devices:       n,
		Accepted:      s.accepted.Load(),
		Stale:         s.stale.Load(),
		Guarded:       s.guarded.Load(),
		DroppedEvents: s.dropped.Load(),
	}
}

func (s *Store) apply(deviceID string, obs map[string]Observation, origin Origin, received time.Time) int {
	if deviceID == "" || len(obs) == 0 {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.entry(deviceID)
	guard := origin == OriginHTTP && s.guarding(e, received)

	var accepted, stale, guarded int
	changes := make(map[string]Value)
	for name, o := range obs {
		ts := o.Time
		if ts.IsZero() {
			if guard {
				guarded++
				continue
			}
			ts = received
		}

		cur, exists := e.fields[name]
		if exists && !ts.After(cur.SourceTime) {
			stale++
			continue
		}

		v := Value{Value: o.Value, SourceTime: ts, Origin: origin}
		e.fields[name] = v
		accepted++
		if !exists || !reflect.DeepEqual(cur.Value, o.Value) {
			changes[name] = v
		}
	}

	s.accepted.Add(uint64(accepted))
	s.stale.Add(uint64(stale))
	s.guarded.Add(uint64(guarded))

	if accepted > 0 {
		e.updated = received
	}
	if guarded > 0 {
		s.logger.Debug("held back http values during pending command",
			"device_id", deviceID, "fields", guarded)
	}
	if len(changes) > 0 {
		s.publish(Event{DeviceID: deviceID, Origin: origin, Changes: copyFields(changes), At: received})
	}
	return accepted
}

// entry returns the device's entry, creating it. Caller holds mu.
func (s *Store) entry(deviceID string) *entry {
	e, ok := s.devices[deviceID]
	if !ok {
		e = &entry{fields: make(map[string]Value)}
		s.devices[deviceID] = e
	}
	return e
}

func (s *Store) guarding(e *entry, at time.Time) bool {
	return !e.pending.IsZero() && at.Sub(e.pending) < s.window
}

// publish sends without blocking. Caller holds mu, which keeps events for
// one device in apply order.
func (s *Store) publish(ev Event) {
	select {
	case s.events <- ev:
	default:
		if n := s.dropped.Add(1); n == 1 || n%100 == 0 {
			s.logger.Warn("state event buffer full, dropping events", "dropped", n)
		}
	}
}
