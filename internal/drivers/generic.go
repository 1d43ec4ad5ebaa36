// Package drivers contains one driver per supported instrument model.
// Every driver implements the Device interface and differs only in its
// protocol codec and addressing scheme. Drivers own their transport handle
// exclusively and never write to the sink themselves.
package drivers

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// Device is the capability set shared by all instrument drivers.
type Device interface {
	// Info returns runtime identity and connection state.
	Info() types.DeviceInfo
	// Definition returns the immutable configuration of the device.
	Definition() types.DeviceDefinition
	// State returns the current connection state.
	State() types.ConnState
	// Fault marks the device Faulted until an explicit reconnect.
	Fault()
	// Connect opens the transport. It fails with a connection error when
	// the transport cannot be established within the configured timeout.
	Connect(ctx context.Context) error
	// ReadChannels reads every configured channel and returns either the
	// complete channel-id -> Reading map or a classified error, never a
	// partially populated map.
	ReadChannels(ctx context.Context) (map[string]types.Reading, error)
	// Close releases the transport handle.
	Close() error
}

// base carries the state shared by all drivers: definition, runtime id,
// connection state and a logger annotated with device identity.
type base struct {
	def    types.DeviceDefinition
	id     uuid.UUID
	logger *zap.Logger
	state  atomic.Int32
}

func newBase(def types.DeviceDefinition, logger *zap.Logger) base {
	return base{
		def: def,
		id:  uuid.New(),
		logger: logger.With(
			zap.String("device", def.Device),
			zap.String("model", def.Model),
			zap.String("address", def.Address)),
	}
}

func (b *base) Info() types.DeviceInfo {
	return types.DeviceInfo{
		ID:      b.id.String(),
		Name:    b.def.Device,
		Model:   b.def.Model,
		Address: b.def.Address,
		State:   b.State().String(),
	}
}

func (b *base) Definition() types.DeviceDefinition { return b.def }

func (b *base) State() types.ConnState {
	return types.ConnState(b.state.Load())
}

// setConnected records a successful transport open. Faulted -> Connected
// happens only through the explicit reconnect path; nothing resets a
// device to Disconnected once it has been up.
func (b *base) setConnected() {
	b.state.Store(int32(types.StateConnected))
}

func (b *base) Fault() {
	b.state.Store(int32(types.StateFaulted))
}

// errf builds a classified error carrying this device's identity.
func (b *base) errf(kind types.ErrorKind, format string, args ...any) *types.DeviceError {
	return types.Errf(kind, format, args...).WithDevice(b.def.Device, b.def.Address)
}

// reading builds a Reading for one channel, applying the linear scale
// factor and merging device and channel tags.
func (b *base) reading(ch types.ChannelDefinition, value float64, at time.Time) types.Reading {
	tags := make(map[string]string, len(b.def.Tags)+len(ch.Tags))
	for k, v := range b.def.Tags {
		tags[k] = v
	}
	for k, v := range ch.Tags {
		tags[k] = v
	}
	scale := ch.Scale
	if scale == 0 {
		scale = 1.0
	}
	return types.Reading{
		DeviceID:    b.def.Device,
		ChannelID:   ch.ID,
		Value:       value * scale,
		Measurement: b.def.Measurement,
		FieldKey:    ch.FieldKey,
		Tags:        tags,
		Time:        at,
	}
}

// requireChannelTypes rejects, at construction time, any channel whose
// semantic type the driver cannot serve.
func requireChannelTypes(def types.DeviceDefinition, allowed ...types.ChannelType) error {
	for _, ch := range def.Channels {
		ok := false
		for _, t := range allowed {
			if ch.Type == t {
				ok = true
				break
			}
		}
		if !ok {
			return types.Errf(types.ErrConfiguration,
				"unknown channel type %q for channel %q", ch.Type, ch.ID).
				WithDevice(def.Device, def.Address)
		}
	}
	return nil
}
