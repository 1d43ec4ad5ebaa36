package drivers

import (
	"io"

	"github.com/goburrow/serial"
	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// fakePort scripts a serial conversation: Read serves the prepared byte
// stream, then times out like a quiet bus; Write records outgoing frames.
type fakePort struct {
	stream []byte
	pos    int
	writes [][]byte
	closed bool
}

func (p *fakePort) Read(b []byte) (int, error) {
	if p.pos >= len(p.stream) {
		return 0, serial.ErrTimeout
	}
	n := copy(b, p.stream[p.pos:])
	p.pos += n
	return n, nil
}

func (p *fakePort) Write(b []byte) (int, error) {
	p.writes = append(p.writes, append([]byte(nil), b...))
	return len(b), nil
}

func (p *fakePort) Close() error {
	p.closed = true
	return nil
}

func withFakePort(open *func() (io.ReadWriteCloser, error), port *fakePort) {
	*open = func() (io.ReadWriteCloser, error) { return port, nil }
}

func testLogger() *zap.Logger { return zap.NewNop() }

func pressureChannel(id string) types.ChannelDefinition {
	return types.ChannelDefinition{
		ID:       id,
		Type:     types.ChannelTypePressure,
		FieldKey: "Pressure",
	}
}
