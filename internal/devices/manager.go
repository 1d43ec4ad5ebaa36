package devices

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/drivers"
	"github.com/lmaisenbacher/logger2/internal/types"
)

// Manager owns every device instance and its transport lifecycle. Devices
// are kept in declaration order, which is also the polling order.
type Manager struct {
	registry *Registry
	logger   *zap.Logger

	mu      sync.RWMutex
	devices []drivers.Device
	byID    map[string]drivers.Device
}

func NewManager(registry *Registry, logger *zap.Logger) *Manager {
	return &Manager{
		registry: registry,
		logger:   logger,
		byID:     make(map[string]drivers.Device),
	}
}

// BuildDevices instantiates a driver for every definition. Any
// configuration error aborts startup.
func (m *Manager) BuildDevices(defs []types.DeviceDefinition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, def := range defs {
		device, err := m.registry.Build(def, m.logger)
		if err != nil {
			return err
		}
		m.devices = append(m.devices, device)
		m.byID[device.Info().ID] = device
		m.logger.Info("Device configured",
			zap.String("device", def.Device),
			zap.String("model", def.Model),
			zap.String("address", def.Address),
			zap.Int("channels", len(def.Channels)))
	}
	return nil
}

// ConnectAll opens every device's transport. A device that cannot connect
// is marked Faulted and logged; the others still come up — one dead
// instrument must not keep the rest from being polled.
func (m *Manager) ConnectAll(ctx context.Context) {
	for _, device := range m.Devices() {
		info := device.Info()
		if err := device.Connect(ctx); err != nil {
			device.Fault()
			m.logger.Error("Device connect failed",
				zap.String("device", info.Name),
				zap.String("address", info.Address),
				zap.Error(err))
			continue
		}
		m.logger.Info("Device connected", zap.String("device", info.Name))
	}
}

// Devices returns the devices in declaration order.
func (m *Manager) Devices() []drivers.Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]drivers.Device, len(m.devices))
	copy(out, m.devices)
	return out
}

// Get returns a device by its runtime id.
func (m *Manager) Get(id string) (drivers.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	device, ok := m.byID[id]
	return device, ok
}

// Reconnect closes a device's transport and opens it again. This is the
// only path out of the Faulted state.
func (m *Manager) Reconnect(ctx context.Context, id string) error {
	device, ok := m.Get(id)
	if !ok {
		return types.Errf(types.ErrConfiguration, "unknown device id %q", id)
	}
	info := device.Info()
	if err := device.Close(); err != nil {
		m.logger.Warn("Closing stale transport failed",
			zap.String("device", info.Name), zap.Error(err))
	}
	if err := device.Connect(ctx); err != nil {
		device.Fault()
		return err
	}
	m.logger.Info("Device reconnected", zap.String("device", info.Name))
	return nil
}

// CloseAll releases every transport handle. Called exactly once at
// shutdown.
func (m *Manager) CloseAll() {
	for _, device := range m.Devices() {
		info := device.Info()
		if err := device.Close(); err != nil {
			m.logger.Warn("Device close failed",
				zap.String("device", info.Name), zap.Error(err))
			continue
		}
		m.logger.Info("Device closed", zap.String("device", info.Name))
	}
}
