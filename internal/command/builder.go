package command

import (
	"fmt"
	"maps"
	"sync/atomic"
	"time"

	"github.com/nerrad567/mysa-core/internal/device"
)

// TimerPermanent is the "tm" value for a change with no expiry.
const TimerPermanent = -1

// WireCommand is a validated command ready for the real-time channel.
type WireCommand struct {
	// DeviceID is the destination device's vendor ID.
	DeviceID string

	// MacKey is the destination's topic key.
	MacKey string

	PayloadType int

	// ID increases strictly across every command built by one Builder.
	ID int64

	// Timer is the "tm" field: TimerPermanent or a hold in minutes.
	Timer int

	// Fields are the wire fields of the single command entry, without "tm".
	Fields map[string]any

	// Intent names the intent that produced the command.
	Intent string
}

// Body returns the command body as carried inside the envelope.
func (c WireCommand) Body() Body {
	entry := make(map[string]any, len(c.Fields)+1)
	maps.Copy(entry, c.Fields)
	entry["tm"] = c.Timer
	return Body{
		Cmd:  []map[string]any{entry},
		Type: c.PayloadType,
		Ver:  1,
	}
}

// Builder turns intents into wire commands. It performs no I/O.
//
// Thread Safety:
//
//	Build may be called concurrently; command IDs stay unique and increasing.
type Builder struct {
	lastID atomic.Int64
	now    func() time.Time
}

// NewBuilder creates a Builder whose command IDs start from the current
// Unix time in milliseconds.
func NewBuilder() *Builder {
	return &Builder{now: time.Now}
}

// Build validates intent against profile and encodes it for target.
//
// Parameters:
//   - profile: Capability profile of the target device
//   - target: Destination device ID
//   - intent: Requested change
//
// Returns:
//   - WireCommand: Body fields plus envelope metadata
//   - error: *UnsupportedIntentError when the profile lacks the intent's
//     field, or an ErrValidation wrap when a value is rejected
func (b *Builder) Build(profile device.Profile, target string, intent Intent) (WireCommand, error) {
	if intent == nil {
		return WireCommand{}, invalid("nil intent")
	}
	if target == "" {
		return WireCommand{}, invalid("empty target device")
	}
	if !profile.Supports(intent.Field()) {
		return WireCommand{}, &UnsupportedIntentError{
			Intent: intent.Name(),
			Field:  intent.Field(),
			Family: profile.Family,
			Model:  profile.Model,
		}
	}

	fields := make(map[string]any, 4)
	if err := intent.encode(profile, fields); err != nil {
		return WireCommand{}, fmt.Errorf("%s: %w", intent.Name(), err)
	}

	timer := TimerPermanent
	if tm, ok := fields["tm"].(int); ok {
		timer = tm
		delete(fields, "tm")
	}

	return WireCommand{
		DeviceID:    target,
		MacKey:      device.MacKey(target),
		PayloadType: profile.PayloadType,
		ID:          b.nextID(),
		Timer:       timer,
		Fields:      fields,
		Intent:      intent.Name(),
	}, nil
}

// nextID returns max(now in ms, previous+1).
func (b *Builder) nextID() int64 {
	ms := b.now().UnixMilli()
	for {
		last := b.lastID.Load()
		next := max(ms, last+1)
		if b.lastID.CompareAndSwap(last, next) {
			return next
		}
	}
}
