package drivers

import (
	"errors"
	"io"

	"github.com/goburrow/serial"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// openSerial opens the serial port named by the device definition. Line
// parameters default to 9600 8N1 unless overridden in the definition.
func openSerial(def types.DeviceDefinition) (io.ReadWriteCloser, error) {
	cfg := serial.Config{
		Address:  def.Address,
		BaudRate: 9600,
		DataBits: 8,
		StopBits: 1,
		Parity:   "N",
		Timeout:  def.Timeout(),
	}
	if sp := def.Serial; sp != nil {
		if sp.BaudRate > 0 {
			cfg.BaudRate = sp.BaudRate
		}
		if sp.DataBits > 0 {
			cfg.DataBits = sp.DataBits
		}
		if sp.StopBits > 0 {
			cfg.StopBits = sp.StopBits
		}
		if sp.Parity != "" {
			cfg.Parity = sp.Parity
		}
	}
	port, err := serial.Open(&cfg)
	if err != nil {
		return nil, types.Errf(types.ErrConnection,
			"serial port couldn't be opened").
			WithDevice(def.Device, def.Address).WithCause(err)
	}
	return port, nil
}

// readLine reads a single response line, up to max bytes. Leading line
// terminators left over from a previous response are skipped. A read
// timeout ends the line; the caller decides whether an empty line is an
// error (the gauges answer nothing at all when misaddressed).
func readLine(port io.Reader, max int) ([]byte, error) {
	line := make([]byte, 0, 64)
	b := make([]byte, 1)
	for len(line) < max {
		n, err := port.Read(b)
		if n > 0 {
			c := b[0]
			if c == '\r' || c == '\n' {
				if len(line) == 0 {
					continue
				}
				return line, nil
			}
			line = append(line, c)
			continue
		}
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) || errors.Is(err, io.EOF) {
				return line, nil
			}
			return line, err
		}
	}
	return line, nil
}

// readLines reads response lines until the port runs dry.
func readLines(port io.Reader, maxLines int) ([][]byte, error) {
	var lines [][]byte
	for len(lines) < maxLines {
		line, err := readLine(port, 256)
		if err != nil {
			return lines, err
		}
		if len(line) == 0 {
			break
		}
		lines = append(lines, line)
	}
	return lines, nil
}

// drain reads whatever bytes the port has buffered, up to max. A timeout
// or EOF ends the drain without error.
func drain(port io.Reader, max int) ([]byte, error) {
	buf := make([]byte, 0, max)
	tmp := make([]byte, 64)
	for len(buf) < max {
		n, err := port.Read(tmp)
		buf = append(buf, tmp[:n]...)
		if err != nil {
			if errors.Is(err, serial.ErrTimeout) || errors.Is(err, io.EOF) {
				return buf, nil
			}
			return buf, err
		}
		if n == 0 {
			return buf, nil
		}
	}
	return buf, nil
}
