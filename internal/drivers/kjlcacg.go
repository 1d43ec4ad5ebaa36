package drivers

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/protocol/binframe"
	"github.com/lmaisenbacher/logger2/internal/types"
)

// ModelKJLCACG is the KJLC ACG series capacitance manometer. The gauge
// broadcasts an 8-byte status/pressure record every 10 ms with no
// request/response framing, so reads drain the receive buffer and
// resynchronize on the most recent complete frame.
const ModelKJLCACG = "KJLC ACG"

type KJLCACG struct {
	base
	open func() (io.ReadWriteCloser, error)
	port io.ReadWriteCloser
}

// NewKJLCACG builds the driver from its definition.
func NewKJLCACG(def types.DeviceDefinition, logger *zap.Logger) (Device, error) {
	if err := requireChannelTypes(def, types.ChannelTypePressure); err != nil {
		return nil, err
	}
	d := &KJLCACG{base: newBase(def, logger)}
	d.open = func() (io.ReadWriteCloser, error) { return openSerial(def) }
	return d, nil
}

func (d *KJLCACG) Connect(ctx context.Context) error {
	port, err := d.open()
	if err != nil {
		return err
	}
	d.port = port
	d.setConnected()
	d.logger.Info("Serial connection opened")
	return nil
}

func (d *KJLCACG) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// readPressure drains the buffered broadcast bytes and decodes the latest
// frame found in the trailing window. The window of 2L+1 bytes is
// guaranteed to hold one complete frame plus checksum wherever the frame
// boundary happens to fall.
func (d *KJLCACG) readPressure() (float64, error) {
	buf, err := drain(d.port, 256)
	if err != nil {
		return 0, d.errf(types.ErrConnection, "failed to read from device").WithCause(err)
	}
	window := buf
	if n := 2*binframe.FrameLen + 1; len(window) > n {
		window = window[len(window)-n:]
	}
	frame, _, err := binframe.FindFrame(window)
	if err != nil {
		var devErr *types.DeviceError
		if errors.As(err, &devErr) {
			devErr.WithDevice(d.def.Device, d.def.Address)
		}
		return 0, err
	}
	value, err := binframe.DecodeValue(frame)
	if err != nil {
		var devErr *types.DeviceError
		if errors.As(err, &devErr) {
			devErr.WithDevice(d.def.Device, d.def.Address)
		}
		return 0, err
	}
	return value, nil
}

func (d *KJLCACG) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
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
