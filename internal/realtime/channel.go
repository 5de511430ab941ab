package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/nerrad567/mysa-core/internal/batch"
	"github.com/nerrad567/mysa-core/internal/command"
	"github.com/nerrad567/mysa-core/internal/device"
	"github.com/nerrad567/mysa-core/internal/infrastructure/mqtt"
)

// Defaults.
const (
	DefaultInitialBackoff = 5 * time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultQoS            = 1
)

// Logger defines the logging interface used by the Channel.
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

// Broker is one live broker session. *mqtt.Client implements it.
type Broker interface {
	SubscribeMany(topics []string, qos byte, handler mqtt.MessageHandler) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
	SetOnDisconnect(callback func(err error))
	IsConnected() bool
	Close() error
}

// DialFunc opens a broker session. It is called once per connection
// attempt and must fetch a freshly signed URL.
type DialFunc func(ctx context.Context) (Broker, error)

// Authenticator renews credentials on demand.
type Authenticator interface {
	ForceRenew(ctx context.Context) error
}

// Directory resolves topic keys to devices. *device.Registry implements it.
type Directory interface {
	MacKeys() []string
	ByMacKey(mac string) (*device.Device, error)
}

// Sink receives decoded state. *state.Store implements it.
type Sink interface {
	ApplyRealtimeUpdate(deviceID string, raw map[string]any, receivedAt time.Time) int
	ApplyReading(deviceID string, r batch.Reading) int
}

// ReadingObserver is told about every valid batch reading, after the Sink.
type ReadingObserver func(deviceID string, r batch.Reading)

// Config holds channel settings.
type Config struct {
	QoS            byte
	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	// MaxAttempts bounds consecutive failed attempts; 0 retries forever.
	MaxAttempts int
}

// Stats are cumulative channel counters.
type Stats struct {
	State      ConnState `json:"state"`
	Connects   uint64    `json:"connects"`
	Failures   uint64    `json:"failures"`
	Renewals   uint64    `json:"renewals"`
	Messages   uint64    `json:"messages"`
	Malformed  uint64    `json:"malformed"`
	Ignored    uint64    `json:"ignored"`
	Checksums  uint64    `json:"checksum_errors"`
	Readings   uint64    `json:"readings"`
	Published  uint64    `json:"published"`
	Subscribed int       `json:"subscribed"`
}

// Channel is the realtime push channel.
//
// Run owns the connection lifecycle: it dials, subscribes every known
// device plus the account channel, dispatches inbound messages and
// reconnects with bounded exponential backoff. An authentication-class
// failure makes the next attempt renew credentials first.
//
// Thread Safety: all methods are safe for concurrent use. Run must only be
// called once at a time.
type Channel struct {
	dial   DialFunc
	auth   Authenticator
	dir    Directory
	sink   Sink
	cfg    Config
	logger Logger
	now    func() time.Time

	state    atomic.Int32
	observer atomic.Pointer[ReadingObserver]
	onState  atomic.Pointer[func(ConnState)]

	mu         sync.Mutex
	broker     Broker
	userID     string
	subscribed map[string]struct{}

	clockMu   sync.Mutex
	lastStamp time.Time

	connects, failures, renewals   atomic.Uint64
	messages, malformed, ignored   atomic.Uint64
	checksums, readings, published atomic.Uint64
}

// NewChannel creates a channel. Nothing happens until Run.
func NewChannel(dial DialFunc, auth Authenticator, dir Directory, sink Sink, cfg Config) *Channel {
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultInitialBackoff
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = max(DefaultMaxBackoff, cfg.InitialBackoff)
	}
	if cfg.QoS > 2 {
		cfg.QoS = DefaultQoS
	}
	return &Channel{
		dial:   dial,
		auth:   auth,
		dir:    dir,
		sink:   sink,
		cfg:    cfg,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the channel.
func (c *Channel) SetLogger(logger Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetReadingObserver registers fn for decoded batch readings.
func (c *Channel) SetReadingObserver(fn ReadingObserver) {
	c.observer.Store(&fn)
}

// SetOnStateChange registers fn for connection state transitions.
func (c *Channel) SetOnStateChange(fn func(ConnState)) {
	c.onState.Store(&fn)
}

// SetUserID sets the account id used for the account channel and as the
// source of outbound commands. A live session subscribes the account
// channel immediately.
func (c *Channel) SetUserID(id string) {
	c.mu.Lock()
	c.userID = id
	c.mu.Unlock()
	c.Refresh()
}

// UserID returns the account id in use.
func (c *Channel) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

// State returns the current connection state.
func (c *Channel) State() ConnState {
	return ConnState(c.state.Load())
}

func (c *Channel) setState(s ConnState) {
	if ConnState(c.state.Swap(int32(s))) == s {
		return
	}
	c.logger.Debug("realtime state", "state", s.String())
	if fn := c.onState.Load(); fn != nil && *fn != nil {
		(*fn)(s)
	}
}

// Run connects and keeps the channel connected until ctx is cancelled.
// Every exit path unsubscribes and closes the live session. Run returns
// nil on cancellation and ErrRetriesExhausted when MaxAttempts is reached.
func (c *Channel) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.InitialBackoff
	bo.MaxInterval = c.cfg.MaxBackoff
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.1

	renew := false
	failed := 0

	for {
		if ctx.Err() != nil {
			return nil
		}

		if renew {
			c.setState(StateReAuthenticating)
			c.renewals.Add(1)
			if err := c.auth.ForceRenew(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				c.logger.Error("credential renewal before reconnect failed", "error", err)
			}
			renew = false
		}

		c.setState(StateConnecting)
		connected, err := c.session(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if connected {
			bo.Reset()
			failed = 0
		} else {
			c.failures.Add(1)
			failed++
		}
		renew = mqtt.IsAuthFailure(err)
		c.setState(StateDisconnected)

		if c.cfg.MaxAttempts > 0 && failed >= c.cfg.MaxAttempts {
			return fmt.Errorf("%w: %d attempts: %w", ErrRetriesExhausted, failed, err)
		}

		delay := bo.NextBackOff()
		c.logger.Warn("realtime channel down, reconnecting",
			"error", err,
			"reauthenticate", renew,
			"delay", delay.String(),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// session runs one broker session until it is lost or ctx ends.
// connected reports whether the session got as far as subscribing.
func (c *Channel) session(ctx context.Context) (connected bool, err error) {
	broker, err := c.dial(ctx)
	if err != nil {
		return false, err
	}

	lost := make(chan error, 1)
	broker.SetOnDisconnect(func(err error) {
		select {
		case lost <- err:
		default:
		}
	})

	c.mu.Lock()
	c.broker = broker
	c.subscribed = make(map[string]struct{})
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.broker = nil
		c.subscribed = nil
		c.mu.Unlock()
		if cerr := broker.Close(); cerr != nil {
			c.logger.Warn("closing broker session", "error", cerr)
		}
	}()

	if !broker.IsConnected() {
		return false, fmt.Errorf("%w: dropped before subscribing", ErrConnectionLost)
	}
	if err := c.subscribe(broker); err != nil {
		return false, err
	}

	c.connects.Add(1)
	c.setState(StateConnected)
	c.logger.Info("realtime channel connected", "topics", c.subscriptionCount())

	select {
	case <-ctx.Done():
		return true, nil
	case err := <-lost:
		return true, fmt.Errorf("%w: %w", ErrConnectionLost, err)
	}
}

// Refresh subscribes topics for devices and the account added since the
// session started. It is a no-op while disconnected.
func (c *Channel) Refresh() {
	c.mu.Lock()
	broker := c.broker
	c.mu.Unlock()
	if broker == nil {
		return
	}
	if err := c.subscribe(broker); err != nil {
		c.logger.Warn("refreshing realtime subscriptions", "error", err)
	}
}

// subscribe subscribes every wanted topic not yet subscribed on broker.
func (c *Channel) subscribe(broker Broker) error {
	topics := mqtt.Topics{}
	var wanted []string
	for _, mac := range c.dir.MacKeys() {
		wanted = append(wanted, topics.Device(mac)...)
	}

	c.mu.Lock()
	if c.userID != "" {
		wanted = append(wanted, topics.AccountOut(c.userID))
	}
	var missing []string
	for _, t := range wanted {
		if _, ok := c.subscribed[t]; !ok {
			missing = append(missing, t)
		}
	}
	c.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}
	if err := broker.SubscribeMany(missing, c.cfg.QoS, c.handle); err != nil {
		return err
	}

	c.mu.Lock()
	if c.broker == broker {
		for _, t := range missing {
			c.subscribed[t] = struct{}{}
		}
	}
	c.mu.Unlock()
	return nil
}

func (c *Channel) subscriptionCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.subscribed)
}

// handle dispatches one inbound message. Errors are reported to the broker
// wrapper, which logs them; none are fatal.
func (c *Channel) handle(topic string, payload []byte) error {
	received := c.stamp()
	c.messages.Add(1)

	msg, err := parseMessage(payload)
	if err != nil {
		c.malformed.Add(1)
		return fmt.Errorf("topic %s: %w", topic, err)
	}

	kind := Classify(msg.Type)
	if kind == KindIgnored {
		c.ignored.Add(1)
		c.logger.Debug("ignoring realtime message", "topic", topic, "msg", msg.Type)
		return nil
	}
	if kind == KindInformational {
		c.logger.Debug("realtime informational message", "topic", topic, "msg", msg.Type)
		return nil
	}

	dev := c.resolve(topic, msg)
	if dev == nil {
		c.ignored.Add(1)
		c.logger.Debug("realtime message for unknown device", "topic", topic, "msg", msg.Type)
		return nil
	}

	switch kind {
	case KindState, KindCommandEcho:
		n := c.sink.ApplyRealtimeUpdate(dev.ID, msg.stateFields(), msg.sourceTime(received))
		c.logger.Debug("realtime state applied", "device_id", dev.ID, "kind", kind.String(), "accepted", n)
	case KindBatch:
		return c.handleBatch(dev.ID, msg)
	}
	return nil
}

// stamp returns the receipt time of an inbound message. Stamps strictly
// increase, so updates delivered back to back never tie.
func (c *Channel) stamp() time.Time {
	now := c.now()
	c.clockMu.Lock()
	defer c.clockMu.Unlock()
	if !now.After(c.lastStamp) {
		now = c.lastStamp.Add(time.Nanosecond)
	}
	c.lastStamp = now
	return now
}

func (c *Channel) handleBatch(deviceID string, msg message) error {
	encoded, ok := msg.Body["readings"].(string)
	if !ok {
		c.malformed.Add(1)
		return fmt.Errorf("%w: batch for %s has no readings", ErrMalformed, deviceID)
	}
	blob, err := batch.DecodeBase64(encoded)
	if err != nil {
		c.malformed.Add(1)
		return fmt.Errorf("batch for %s: %w", deviceID, err)
	}

	var observe ReadingObserver
	if fn := c.observer.Load(); fn != nil {
		observe = *fn
	}

	for r, err := range batch.Records(blob) {
		if errors.Is(err, batch.ErrChecksum) {
			c.checksums.Add(1)
			c.logger.Debug("dropping corrupt batch record", "device_id", deviceID, "error", err)
			continue
		}
		if err != nil {
			c.malformed.Add(1)
			return fmt.Errorf("batch for %s: %w", deviceID, err)
		}
		c.readings.Add(1)
		c.sink.ApplyReading(deviceID, r)
		if observe != nil {
			observe(deviceID, r)
		}
	}
	return nil
}

// resolve finds the device a message is about: from the topic for device
// topics, otherwise from the reference inside the message.
func (c *Channel) resolve(topic string, msg message) *device.Device {
	if mac, _, ok := (mqtt.Topics{}).ParseDeviceTopic(topic); ok {
		if d, err := c.dir.ByMacKey(mac); err == nil {
			return d
		}
		return nil
	}
	if ref := msg.sourceRef(); ref != "" {
		if d, err := c.dir.ByMacKey(device.MacKey(ref)); err == nil {
			return d
		}
	}
	return nil
}

// Publish sends a command envelope to the device's inbound topic.
func (c *Channel) Publish(ctx context.Context, cmd command.WireCommand) error {
	userID := c.UserID()
	payload, err := cmd.Marshal(userID, c.now())
	if err != nil {
		return err
	}
	return c.publish(ctx, cmd.MacKey, payload)
}

// NotifySettingsChanged tells a device to re-read its cloud settings.
func (c *Channel) NotifySettingsChanged(ctx context.Context, deviceID string) error {
	return c.publishFlat(ctx, deviceID, command.NewSettingsChanged(deviceID, c.now()))
}

// ResetToPairing puts a device back into pairing mode.
func (c *Channel) ResetToPairing(ctx context.Context, deviceID string) error {
	return c.publishFlat(ctx, deviceID, command.NewResetToPairing(deviceID, c.now()))
}

func (c *Channel) publishFlat(ctx context.Context, deviceID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding control message: %w", err)
	}
	return c.publish(ctx, device.MacKey(deviceID), payload)
}

func (c *Channel) publish(ctx context.Context, mac string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	broker := c.broker
	c.mu.Unlock()
	if broker == nil || c.State() != StateConnected {
		return ErrNotConnected
	}

	if err := broker.Publish(mqtt.Topics{}.DeviceIn(mac), payload, c.cfg.QoS, false); err != nil {
		return err
	}
	c.published.Add(1)
	return nil
}

// Stats returns the channel counters.
func (c *Channel) Stats() Stats {
	return Stats{
		State:      c.State(),
		Connects:   c.connects.Load(),
		Failures:   c.failures.Load(),
		Renewals:   c.renewals.Load(),
		Messages:   c.messages.Load(),
		Malformed:  c.malformed.Load(),
		Ignored:    c.ignored.Load(),
		Checksums:  c.checksums.Load(),
		Readings:   c.readings.Load(),
		Published:  c.published.Load(),
		Subscribed: c.subscriptionCount(),
	}
}

// Dialer adapts mqtt.Connect to a DialFunc.
func Dialer(cfg mqtt.Config, logger mqtt.Logger) DialFunc {
	return func(ctx context.Context) (Broker, error) {
		client, err := mqtt.Connect(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if logger != nil {
			client.SetLogger(logger)
		}
		return client, nil
	}
}

var _ Broker = (*mqtt.Client)(nil)
