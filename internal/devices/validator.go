package devices

import (
	"encoding/json"
	"strings"

	_ "embed"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/lmaisenbacher/logger2/internal/types"
)

//go:embed schema/devices-v1.json
var deviceListSchemaJSON string

// Validator checks a raw device list against the embedded JSON schema
// before it is unmarshalled, so malformed definitions fail fast at
// startup instead of defaulting silently.
type Validator struct {
	schema *jsonschema.Schema
}

func NewValidator() (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("devices-v1.json",
		strings.NewReader(deviceListSchemaJSON)); err != nil {
		return nil, types.Errf(types.ErrConfiguration,
			"failed to add schema resource").WithCause(err)
	}
	schema, err := compiler.Compile("devices-v1.json")
	if err != nil {
		return nil, types.Errf(types.ErrConfiguration,
			"failed to compile device list schema").WithCause(err)
	}
	return &Validator{schema: schema}, nil
}

// ValidateList validates a JSON-encoded device list.
func (v *Validator) ValidateList(data []byte) error {
	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.Errf(types.ErrConfiguration, "device list is not valid JSON").WithCause(err)
	}
	if err := v.schema.Validate(doc); err != nil {
		return types.Errf(types.ErrConfiguration, "device list failed schema validation").WithCause(err)
	}
	return nil
}
