package drivers

import (
	"context"
	"errors"
	"testing"

	"github.com/lmaisenbacher/logger2/internal/types"
)

func kjlc354Definition(specific map[string]any) types.DeviceDefinition {
	return types.DeviceDefinition{
		Device:         "Ion gauge",
		Model:          ModelKJLC354,
		Address:        "/dev/ttyUSB0",
		TimeoutMs:      100,
		Measurement:    "pressure",
		DeviceSpecific: specific,
		Channels:       []types.ChannelDefinition{pressureChannel("ig")},
	}
}

func TestKJLC354ReadPressure(t *testing.T) {
	dev, err := NewKJLC354(kjlc354Definition(map[string]any{
		"internal_address": "05",
	}), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	d := dev.(*KJLC354)
	port := &fakePort{stream: []byte("*05 1.234E-05\r\n")}
	withFakePort(&d.open, port)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if d.State() != types.StateConnected {
		t.Fatalf("state: %v", d.State())
	}

	readings, err := d.ReadChannels(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	r, ok := readings["ig"]
	if !ok {
		t.Fatal("missing channel ig")
	}
	if r.Value != 1.234e-5 {
		t.Fatalf("value: got %g, want 1.234e-5", r.Value)
	}
	if len(port.writes) != 1 || string(port.writes[0]) != "#05RD\r" {
		t.Fatalf("wrote %q", port.writes)
	}
}

func TestKJLC354FilamentPrecheck(t *testing.T) {
	dev, _ := NewKJLC354(kjlc354Definition(map[string]any{
		"internal_address":       "01",
		"confirm_filament_is_on": true,
	}), testLogger())
	d := dev.(*KJLC354)
	port := &fakePort{stream: []byte("*01 0 IG OFF\r")}
	withFakePort(&d.open, port)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	_, err := d.ReadChannels(context.Background())
	if !errors.Is(err, &types.DeviceError{Kind: types.ErrNotReady}) {
		t.Fatalf("expected device_not_ready, got %v", err)
	}
	// The measurement command must not have been sent.
	if len(port.writes) != 1 || string(port.writes[0]) != "#01IGS\r" {
		t.Fatalf("wrote %q", port.writes)
	}
}

func TestKJLC354CombinedPressureCommand(t *testing.T) {
	dev, _ := NewKJLC354(kjlc354Definition(map[string]any{
		"internal_address":       "01",
		"confirm_filament_is_on": true,
		"read_combined_pressure": true,
	}), testLogger())
	d := dev.(*KJLC354)
	port := &fakePort{stream: []byte("*01 1\r*01 7.60E+02\r\n")}
	withFakePort(&d.open, port)

	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	readings, err := d.ReadChannels(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if readings["ig"].Value != 760 {
		t.Fatalf("value: got %g", readings["ig"].Value)
	}
	if len(port.writes) != 2 ||
		string(port.writes[0]) != "#01IGS\r" || string(port.writes[1]) != "#01RDS\r" {
		t.Fatalf("wrote %q", port.writes)
	}
}

func TestKJLC354ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		stream   string
		wantKind types.ErrorKind
	}{
		{name: "nak", stream: "?01 SYNTX ER\r", wantKind: types.ErrDeviceNak},
		{name: "silent bus", stream: "", wantKind: types.ErrNoResponse},
		{name: "wrong address", stream: "*02 1.0E-03\r", wantKind: types.ErrProtocolMismatch},
		{name: "garbage", stream: "\x81\x42noise", wantKind: types.ErrAckMissing},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dev, _ := NewKJLC354(kjlc354Definition(map[string]any{
				"internal_address": "01",
			}), testLogger())
			d := dev.(*KJLC354)
			withFakePort(&d.open, &fakePort{stream: []byte(tc.stream)})
			if err := d.Connect(context.Background()); err != nil {
				t.Fatalf("connect: %v", err)
			}
			_, err := d.ReadChannels(context.Background())
			if !errors.Is(err, &types.DeviceError{Kind: tc.wantKind}) {
				t.Fatalf("expected %s, got %v", tc.wantKind, err)
			}
		})
	}
}

func TestKJLC354RejectsUnknownChannelType(t *testing.T) {
	def := kjlc354Definition(nil)
	def.Channels = []types.ChannelDefinition{{
		ID:   "t",
		Type: types.ChannelTypeTemperature,
	}}
	_, err := NewKJLC354(def, testLogger())
	if !errors.Is(err, &types.DeviceError{Kind: types.ErrConfiguration}) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestKJLC354ScaleFactor(t *testing.T) {
	def := kjlc354Definition(map[string]any{"internal_address": "01"})
	def.Channels[0].Scale = 133.322 // Torr -> Pa
	dev, _ := NewKJLC354(def, testLogger())
	d := dev.(*KJLC354)
	withFakePort(&d.open, &fakePort{stream: []byte("*01 2.0E+00\r")})
	if err := d.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	readings, err := d.ReadChannels(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := readings["ig"].Value; got != 2.0*133.322 {
		t.Fatalf("scaled value: got %g", got)
	}
}
