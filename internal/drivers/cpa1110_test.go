package drivers

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// fakeModbus serves scripted input register contents.
type fakeModbus struct {
	registers map[uint16]uint16
	err       error
	reads     []uint16
}

func (f *fakeModbus) ReadInputRegisters(address, quantity uint16) ([]byte, error) {
	f.reads = append(f.reads, address)
	if f.err != nil {
		return nil, f.err
	}
	value, ok := f.registers[address]
	if !ok {
		return nil, errors.New("modbus: exception '2' (illegal data address)")
	}
	return []byte{byte(value >> 8), byte(value)}, nil
}

func (f *fakeModbus) Close() error { return nil }

func cpa1110Definition() types.DeviceDefinition {
	return types.DeviceDefinition{
		Device:      "Compressor",
		Model:       ModelCPA1110,
		Address:     "10.0.0.7:502",
		TimeoutMs:   100,
		Measurement: "compressor",
		Channels: []types.ChannelDefinition{
			{ID: "coolant_in", Type: types.ChannelTypeTemperature, Address: "40", FieldKey: "CoolantInTemperature"},
			{ID: "he_pressure_low", Type: types.ChannelTypePressure, Address: "44", FieldKey: "LowPressure"},
		},
	}
}

func TestCPA1110ReadChannels(t *testing.T) {
	dev, err := NewCPA1110(cpa1110Definition(), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d := dev.(*CPA1110)
	fake := &fakeModbus{registers: map[uint16]uint16{40: 285, 44: 987}}
	d.dial = func() (registerReader, io.Closer, error) { return fake, fake, nil }

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	readings, err := d.ReadChannels(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	// Registers hold ten times the measurement value.
	if got := readings["coolant_in"].Value; got != 28.5 {
		t.Fatalf("coolant_in: got %g, want 28.5", got)
	}
	if got := readings["he_pressure_low"].Value; got != 98.7 {
		t.Fatalf("he_pressure_low: got %g, want 98.7", got)
	}
}

func TestCPA1110WholeBatchFailure(t *testing.T) {
	dev, _ := NewCPA1110(cpa1110Definition(), testLogger())
	d := dev.(*CPA1110)
	// Second register is missing: the whole read must fail, not return a
	// partial map.
	fake := &fakeModbus{registers: map[uint16]uint16{40: 285}}
	d.dial = func() (registerReader, io.Closer, error) { return fake, fake, nil }
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	readings, err := d.ReadChannels(context.Background())
	if err == nil {
		t.Fatalf("expected error, got %v", readings)
	}
	if readings != nil {
		t.Fatalf("partial map returned: %v", readings)
	}
}

func TestCPA1110RejectsNonNumericRegister(t *testing.T) {
	def := cpa1110Definition()
	def.Channels[0].Address = "forty"
	_, err := NewCPA1110(def, testLogger())
	if !errors.Is(err, &types.DeviceError{Kind: types.ErrConfiguration}) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
