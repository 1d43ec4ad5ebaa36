package drivers

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/protocol/ascii"
	"github.com/lmaisenbacher/logger2/internal/types"
)

// ModelKJLC354 also covers the KJLC 352 combined gauge and the InstruTech
// IGM401/IGM402 (the original manufacturer), which speak the same
// multidrop ASCII protocol over RS-485.
const ModelKJLC354 = "KJLC 354"

// Device-specific parameters:
//   internal_address       bus address the gauge answers to (default "01")
//   confirm_filament_is_on query filament status before reading; gauges
//                          without filament status support must leave this
//                          off
//   read_combined_pressure use RDS instead of RD to read the combined
//                          (ion + Pirani) pressure of KJLC 352 / IGM402
type KJLC354 struct {
	base
	open            func() (io.ReadWriteCloser, error)
	port            io.ReadWriteCloser
	internalAddress string
	confirmFilament bool
	readCombined    bool
}

// NewKJLC354 builds the driver from its definition.
func NewKJLC354(def types.DeviceDefinition, logger *zap.Logger) (Device, error) {
	if err := requireChannelTypes(def, types.ChannelTypePressure); err != nil {
		return nil, err
	}
	d := &KJLC354{
		base:            newBase(def, logger),
		internalAddress: def.SpecificString("internal_address", "01"),
		confirmFilament: def.SpecificBool("confirm_filament_is_on", false),
		readCombined:    def.SpecificBool("read_combined_pressure", false),
	}
	d.open = func() (io.ReadWriteCloser, error) { return openSerial(def) }
	return d, nil
}

func (d *KJLC354) Connect(ctx context.Context) error {
	port, err := d.open()
	if err != nil {
		return err
	}
	d.port = port
	d.setConnected()
	d.logger.Info("Serial connection opened",
		zap.String("internal_address", d.internalAddress))
	return nil
}

func (d *KJLC354) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// query sends one command and decodes the acknowledged response payload.
func (d *KJLC354) query(command string) (string, error) {
	frame := ascii.EncodeCommand(d.internalAddress, command)
	n, err := d.port.Write(frame)
	if err != nil {
		return "", d.errf(types.ErrConnection, "failed to write to device").WithCause(err)
	}
	if n != len(frame) {
		return "", d.errf(types.ErrConnection, "short write: %d of %d bytes", n, len(frame))
	}
	raw, err := readLine(d.port, 256)
	if err != nil {
		return "", d.errf(types.ErrConnection, "failed to read from device").WithCause(err)
	}
	payload, err := ascii.DecodeResponse(d.internalAddress, raw)
	if err != nil {
		var devErr *types.DeviceError
		if errors.As(err, &devErr) {
			devErr.WithDevice(d.def.Device, d.def.Address)
		}
		return "", err
	}
	return payload, nil
}

func (d *KJLC354) readPressure() (float64, error) {
	if d.confirmFilament {
		// Filament off means the gauge is not measuring; reading anyway
		// would return a stale or undefined value.
		status, err := d.query("IGS")
		if err != nil {
			return 0, err
		}
		if strings.HasPrefix(status, "0") {
			return 0, d.errf(types.ErrNotReady,
				"filament is not powered up, no pressure reading available")
		}
	}
	command := "RD"
	if d.readCombined {
		command = "RDS"
	}
	payload, err := d.query(command)
	if err != nil {
		return 0, err
	}
	return ascii.ParseFloat(payload)
}

func (d *KJLC354) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
	if d.port == nil {
		return nil, d.errf(types.ErrConnection, "not connected")
	}
	now := time.Now()
	readings := make(map[string]types.Reading, len(d.def.Channels))
	for _, ch := range d.def.Channels {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		value, err := d.readPressure()
		if err != nil {
			return nil, err
		}
		readings[ch.ID] = d.reading(ch, value, now)
	}
	return readings, nil
}
