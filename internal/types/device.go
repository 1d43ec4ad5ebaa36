package types

import (
	"time"
)

// ChannelType is the semantic type of a measurement channel.
type ChannelType string

const (
	ChannelTypePressure      ChannelType = "Pressure"
	ChannelTypeTemperature   ChannelType = "Temperature"
	ChannelTypeVoltage       ChannelType = "Voltage"
	ChannelTypeFrequency     ChannelType = "Frequency"
	ChannelTypeParticleCount ChannelType = "ParticleCount"
	ChannelTypeHumidity      ChannelType = "Humidity"
)

// ChannelDefinition describes one scalar measurement point of a device.
// Immutable after load.
type ChannelDefinition struct {
	ID       string            `json:"id"`
	Type     ChannelType       `json:"type"`
	Address  string            `json:"address"`
	Scale    float64           `json:"scale,omitempty"`
	FieldKey string            `json:"field_key"`
	Tags     map[string]string `json:"tags,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
}

// SerialConfig holds serial line parameters for serial-attached devices.
type SerialConfig struct {
	BaudRate int    `json:"baud_rate"`
	DataBits int    `json:"data_bits,omitempty"`
	StopBits int    `json:"stop_bits,omitempty"`
	Parity   string `json:"parity,omitempty"`
}

// DeviceDefinition is the declarative configuration of one physical
// instrument, consumed once at startup.
type DeviceDefinition struct {
	Device         string              `json:"device"`
	Model          string              `json:"model"`
	Address        string              `json:"address"`
	TimeoutMs      int                 `json:"timeout_ms,omitempty"`
	Measurement    string              `json:"measurement"`
	Tags           map[string]string   `json:"tags,omitempty"`
	Serial         *SerialConfig       `json:"serial,omitempty"`
	DeviceSpecific map[string]any      `json:"device_specific,omitempty"`
	Channels       []ChannelDefinition `json:"channels"`
}

// Timeout returns the configured per-device I/O timeout.
func (d *DeviceDefinition) Timeout() time.Duration {
	return time.Duration(d.TimeoutMs) * time.Millisecond
}

// Channel looks up a channel definition by id.
func (d *DeviceDefinition) Channel(id string) (ChannelDefinition, bool) {
	for _, ch := range d.Channels {
		if ch.ID == id {
			return ch, true
		}
	}
	return ChannelDefinition{}, false
}

// SpecificBool reads a boolean from the device-specific parameter map.
func (d *DeviceDefinition) SpecificBool(key string, fallback bool) bool {
	if v, ok := d.DeviceSpecific[key].(bool); ok {
		return v
	}
	return fallback
}

// SpecificString reads a string from the device-specific parameter map.
func (d *DeviceDefinition) SpecificString(key, fallback string) string {
	if v, ok := d.DeviceSpecific[key].(string); ok {
		return v
	}
	return fallback
}

// SpecificInt reads an integer from the device-specific parameter map.
// JSON numbers arrive as float64.
func (d *DeviceDefinition) SpecificInt(key string, fallback int) int {
	switch v := d.DeviceSpecific[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return fallback
}

// ConnState is the connection state of a device. Transitions only
// Disconnected -> Connected -> {Connected, Faulted}; a Faulted device
// stays Faulted until an explicit reconnect.
type ConnState int32

const (
	StateDisconnected ConnState = iota
	StateConnected
	StateFaulted
)

func (s ConnState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnected:
		return "connected"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// DeviceInfo is runtime information about a device instance.
type DeviceInfo struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Model   string `json:"model"`
	Address string `json:"address"`
	State   string `json:"state"`
}
