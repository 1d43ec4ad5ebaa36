package drivers

import (
	"context"
	"encoding/binary"
	"io"
	"strconv"
	"time"

	"github.com/goburrow/modbus"
	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// ModelCPA1110 is the Cryomech CPA1110 helium compressor, read out over
// Modbus TCP. Input registers hold ten times the measurement value, so
// every register read is divided by ten.
const ModelCPA1110 = "Cryomech CPA1110"

// registerReader is the slice of the Modbus client the driver needs.
type registerReader interface {
	ReadInputRegisters(address, quantity uint16) (results []byte, err error)
}

// Device-specific parameters:
//   modbus_device_id  Modbus unit/slave id (default 16)
type CPA1110 struct {
	base
	dial      func() (registerReader, io.Closer, error)
	client    registerReader
	closer    io.Closer
	registers map[string]uint16
}

// NewCPA1110 builds the driver from its definition. Channel addresses are
// input register numbers and must parse as 16-bit integers.
func NewCPA1110(def types.DeviceDefinition, logger *zap.Logger) (Device, error) {
	if err := requireChannelTypes(def,
		types.ChannelTypePressure, types.ChannelTypeTemperature); err != nil {
		return nil, err
	}
	registers := make(map[string]uint16, len(def.Channels))
	for _, ch := range def.Channels {
		reg, err := strconv.ParseUint(ch.Address, 10, 16)
		if err != nil {
			return nil, types.Errf(types.ErrConfiguration,
				"channel %q address %q is not a register number", ch.ID, ch.Address).
				WithDevice(def.Device, def.Address)
		}
		registers[ch.ID] = uint16(reg)
	}
	d := &CPA1110{
		base:      newBase(def, logger),
		registers: registers,
	}
	unitID := byte(def.SpecificInt("modbus_device_id", 16))
	d.dial = func() (registerReader, io.Closer, error) {
		handler := modbus.NewTCPClientHandler(def.Address)
		handler.Timeout = def.Timeout()
		handler.SlaveId = unitID
		if err := handler.Connect(); err != nil {
			return nil, nil, types.Errf(types.ErrConnection,
				"Modbus connection couldn't be opened").
				WithDevice(def.Device, def.Address).WithCause(err)
		}
		return modbus.NewClient(handler), handler, nil
	}
	return d, nil
}

func (d *CPA1110) Connect(ctx context.Context) error {
	client, closer, err := d.dial()
	if err != nil {
		return err
	}
	d.client = client
	d.closer = closer
	d.setConnected()
	d.logger.Info("Modbus connection opened")
	return nil
}

func (d *CPA1110) Close() error {
	if d.closer == nil {
		return nil
	}
	err := d.closer.Close()
	d.client = nil
	d.closer = nil
	return err
}

// readRegister reads one input register and converts the fixed-point
// content to its float value.
func (d *CPA1110) readRegister(register uint16) (float64, error) {
	results, err := d.client.ReadInputRegisters(register, 1)
	if err != nil {
		kind := types.Classify(err)
		return 0, d.errf(kind, "failed to read input register %d", register).WithCause(err)
	}
	if len(results) != 2 {
		return 0, d.errf(types.ErrProtocolMismatch,
			"register %d response is %d bytes, want 2", register, len(results)).WithRaw(results)
	}
	return float64(binary.BigEndian.Uint16(results)) / 10, nil
}

func (d *CPA1110) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
	if d.client == nil {
		return nil, d.errf(types.ErrConnection, "not connected")
	}
	now := time.Now()
	readings := make(map[string]types.Reading, len(d.def.Channels))
	for _, ch := range d.def.Channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := d.readRegister(d.registers[ch.ID])
		if err != nil {
			return nil, err
		}
		readings[ch.ID] = d.reading(ch, value, now)
	}
	return readings, nil
}
