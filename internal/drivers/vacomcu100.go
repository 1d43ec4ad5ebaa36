package drivers

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/protocol/crc16"
	"github.com/lmaisenbacher/logger2/internal/types"
)

// ModelVacomCU100 is the VACOM COLDION CU-100 cold cathode ionization
// gauge controller. Commands are fixed 22-byte binary records wrapped
// with a CRC-16 trailer; the controller verifies the checksum itself and
// silently discards malformed frames instead of NAKing.
const ModelVacomCU100 = "VACOM CU-100"

// readPressureCommand requests the pressure of measurement channel 1.
var readPressureCommand = []byte{
	0xA5, 0x50, 0x00, 0x00, 0x20, 0x10, 0x01,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
}

// The response carries the pressure as a NUL-padded ASCII float in this
// byte range.
const (
	cu100PayloadStart = 6
	cu100PayloadEnd   = 22
)

type VacomCU100 struct {
	base
	open func() (io.ReadWriteCloser, error)
	port io.ReadWriteCloser
}

// NewVacomCU100 builds the driver from its definition.
func NewVacomCU100(def types.DeviceDefinition, logger *zap.Logger) (Device, error) {
	if err := requireChannelTypes(def, types.ChannelTypePressure); err != nil {
		return nil, err
	}
	d := &VacomCU100{base: newBase(def, logger)}
	d.open = func() (io.ReadWriteCloser, error) { return openSerial(def) }
	return d, nil
}

func (d *VacomCU100) Connect(ctx context.Context) error {
	port, err := d.open()
	if err != nil {
		return err
	}
	d.port = port
	d.setConnected()
	d.logger.Info("Serial connection opened")
	return nil
}

func (d *VacomCU100) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

func (d *VacomCU100) readPressure() (float64, error) {
	frame := crc16.Append(readPressureCommand)
	n, err := d.port.Write(frame)
	if err != nil {
		return 0, d.errf(types.ErrConnection, "failed to write to device").WithCause(err)
	}
	if n != len(frame) {
		return 0, d.errf(types.ErrConnection, "short write: %d of %d bytes", n, len(frame))
	}
	rsp, err := drain(d.port, 64)
	if err != nil {
		return 0, d.errf(types.ErrConnection, "failed to read from device").WithCause(err)
	}
	if len(rsp) == 0 {
		return 0, d.errf(types.ErrNoResponse, "no response received")
	}
	if len(rsp) < cu100PayloadEnd {
		return 0, d.errf(types.ErrProtocolMismatch,
			"response is %d bytes, want at least %d", len(rsp), cu100PayloadEnd).WithRaw(rsp)
	}
	payload := strings.TrimRight(string(bytes.TrimRight(rsp[cu100PayloadStart:cu100PayloadEnd], "\x00")), " ")
	value, err := strconv.ParseFloat(payload, 64)
	if err != nil {
		return 0, d.errf(types.ErrProtocolMismatch,
			"pressure payload %q is not a number", payload).WithRaw(rsp)
	}
	return value, nil
}

func (d *VacomCU100) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
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
