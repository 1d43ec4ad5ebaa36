package devices

import (
	"sort"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/drivers"
	"github.com/lmaisenbacher/logger2/internal/types"
)

// Factory builds a driver instance from its definition.
type Factory func(types.DeviceDefinition, *zap.Logger) (drivers.Device, error)

// Registry maps model names to driver factories. Device variants are
// selected here at configuration time instead of through per-instrument
// subclassing.
type Registry struct {
	factories map[string]Factory
}

func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a model name to its factory. Registering a model twice
// is a programming error and panics at startup.
func (r *Registry) Register(model string, factory Factory) {
	if _, dup := r.factories[model]; dup {
		panic("devices: model registered twice: " + model)
	}
	r.factories[model] = factory
}

// Models lists the registered model names, sorted.
func (r *Registry) Models() []string {
	models := make([]string, 0, len(r.factories))
	for model := range r.factories {
		models = append(models, model)
	}
	sort.Strings(models)
	return models
}

// Build instantiates the driver for a definition.
func (r *Registry) Build(def types.DeviceDefinition, logger *zap.Logger) (drivers.Device, error) {
	factory, ok := r.factories[def.Model]
	if !ok {
		return nil, types.Errf(types.ErrConfiguration,
			"unknown device model %q (known: %v)", def.Model, r.Models()).
			WithDevice(def.Device, def.Address)
	}
	return factory(def, logger)
}

// Builtin returns a registry holding every driver shipped with the
// binary.
func Builtin() *Registry {
	r := NewRegistry()
	r.Register(drivers.ModelKJLC354, drivers.NewKJLC354)
	r.Register(drivers.ModelKJLCACG, drivers.NewKJLCACG)
	r.Register(drivers.ModelVacomCU100, drivers.NewVacomCU100)
	r.Register(drivers.ModelCPA1110, drivers.NewCPA1110)
	r.Register(drivers.ModelMetOneDR528, drivers.NewMetOneDR528)
	r.Register(drivers.ModelPurpleAir, drivers.NewPurpleAir)
	return r
}
