package devices

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// LoadDefinitions reads the declarative device list from path (JSON, or
// YAML converted to JSON first), validates it against the schema and
// normalizes defaults. The result is immutable configuration: the core
// treats it as pre-validated from here on.
func LoadDefinitions(path string, defaultTimeout time.Duration) ([]types.DeviceDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.Errf(types.ErrConfiguration,
			"cannot read device list %q", path).WithCause(err)
	}

	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		raw, err = yamlToJSON(raw)
		if err != nil {
			return nil, err
		}
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateList(raw); err != nil {
		return nil, err
	}

	var defs []types.DeviceDefinition
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, types.Errf(types.ErrConfiguration,
			"failed to unmarshal device list").WithCause(err)
	}

	if err := normalize(defs, defaultTimeout); err != nil {
		return nil, err
	}
	return defs, nil
}

// normalize fills defaults and enforces the uniqueness invariants the
// rest of the core relies on.
func normalize(defs []types.DeviceDefinition, defaultTimeout time.Duration) error {
	names := make(map[string]bool, len(defs))
	for i := range defs {
		def := &defs[i]
		if names[def.Device] {
			return types.Errf(types.ErrConfiguration,
				"duplicate device name %q", def.Device)
		}
		names[def.Device] = true

		if def.TimeoutMs == 0 {
			def.TimeoutMs = int(defaultTimeout / time.Millisecond)
		}
		if def.TimeoutMs <= 0 {
			return types.Errf(types.ErrConfiguration,
				"device %q has no usable timeout", def.Device)
		}

		channelIDs := make(map[string]bool, len(def.Channels))
		for j := range def.Channels {
			ch := &def.Channels[j]
			if channelIDs[ch.ID] {
				return types.Errf(types.ErrConfiguration,
					"device %q has duplicate channel id %q", def.Device, ch.ID)
			}
			channelIDs[ch.ID] = true
			if ch.Scale == 0 {
				ch.Scale = 1.0
			}
		}
	}
	return nil
}

// yamlToJSON converts a YAML document to JSON so one schema serves both
// formats.
func yamlToJSON(raw []byte) ([]byte, error) {
	var doc interface{}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, types.Errf(types.ErrConfiguration,
			"device list is not valid YAML").WithCause(err)
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return nil, types.Errf(types.ErrConfiguration,
			"device list YAML cannot be represented as JSON").WithCause(err)
	}
	return out, nil
}
