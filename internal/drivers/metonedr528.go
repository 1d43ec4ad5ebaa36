package drivers

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// ModelMetOneDR528 is the Met One DR-528 handheld particle counter over
// RS-232. The "4" command returns the most recent record as two CSV rows,
// a header row of column keys and a row of values: particle counts for
// eight size bins plus air temperature and relative humidity. Channel
// addresses name the CSV column to pick (e.g. "0.3", "AT", "RH").
const ModelMetOneDR528 = "Met One DR-528"

type MetOneDR528 struct {
	base
	open func() (io.ReadWriteCloser, error)
	port io.ReadWriteCloser
}

// NewMetOneDR528 builds the driver from its definition.
func NewMetOneDR528(def types.DeviceDefinition, logger *zap.Logger) (Device, error) {
	if err := requireChannelTypes(def,
		types.ChannelTypeParticleCount, types.ChannelTypeTemperature,
		types.ChannelTypeHumidity); err != nil {
		return nil, err
	}
	d := &MetOneDR528{base: newBase(def, logger)}
	d.open = func() (io.ReadWriteCloser, error) { return openSerial(def) }
	return d, nil
}

func (d *MetOneDR528) Connect(ctx context.Context) error {
	port, err := d.open()
	if err != nil {
		return err
	}
	d.port = port
	d.setConnected()
	d.logger.Info("Serial connection opened")
	return nil
}

func (d *MetOneDR528) Close() error {
	if d.port == nil {
		return nil
	}
	err := d.port.Close()
	d.port = nil
	return err
}

// parseRecord extracts the column -> value map from the last two response
// rows. The first CSV field of each row is a record label and is skipped.
func parseRecord(keysRow, valuesRow []byte) (map[string]float64, error) {
	keys := bytes.Split(keysRow, []byte(","))
	values := bytes.Split(valuesRow, []byte(","))
	if len(keys) < 2 || len(values) < 2 {
		return nil, types.Errf(types.ErrProtocolMismatch,
			"record rows have %d/%d fields", len(keys), len(values))
	}
	n := len(keys)
	if len(values) < n {
		n = len(values)
	}
	record := make(map[string]float64, n-1)
	for i := 1; i < n; i++ {
		key := string(bytes.TrimSpace(keys[i]))
		value, err := strconv.ParseFloat(string(bytes.TrimSpace(values[i])), 64)
		if err != nil {
			continue
		}
		record[key] = value
	}
	return record, nil
}

func (d *MetOneDR528) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
	if d.port == nil {
		return nil, d.errf(types.ErrConnection, "not connected")
	}
	query := []byte("4\r")
	n, err := d.port.Write(query)
	if err != nil {
		return nil, d.errf(types.ErrConnection, "failed to write to device").WithCause(err)
	}
	if n != len(query) {
		return nil, d.errf(types.ErrConnection, "short write: %d of %d bytes", n, len(query))
	}
	lines, err := readLines(d.port, 16)
	if err != nil {
		return nil, d.errf(types.ErrConnection, "failed to read from device").WithCause(err)
	}
	if len(lines) == 0 {
		return nil, d.errf(types.ErrNoResponse, "no response received")
	}
	if len(lines) < 2 {
		return nil, d.errf(types.ErrAckMissing,
			"incomplete record: %d response rows", len(lines)).WithRaw(lines[0])
	}
	record, err := parseRecord(lines[len(lines)-2], lines[len(lines)-1])
	if err != nil {
		var devErr *types.DeviceError
		if errors.As(err, &devErr) {
			devErr.WithDevice(d.def.Device, d.def.Address)
		}
		return nil, err
	}

	// Whole-batch contract: a record that does not cover every configured
	// channel fails the read instead of returning a partial map.
	now := time.Now()
	readings := make(map[string]types.Reading, len(d.def.Channels))
	for _, ch := range d.def.Channels {
		value, ok := record[ch.Address]
		if !ok {
			return nil, d.errf(types.ErrProtocolMismatch,
				"channel %q (column %q) missing from record", ch.ID, ch.Address)
		}
		readings[ch.ID] = d.reading(ch, value, now)
	}
	return readings, nil
}
