// Package binframe decodes the fixed-length checksummed frames that some
// instruments (Kurt J. Lesker ACG capacitance manometers) broadcast
// continuously without request/response framing. Reads are not gated on
// requests, so the drained buffer is rarely frame-aligned; FindFrame
// recovers alignment by sliding over the buffer and validating sentinel
// and checksum at every offset.
package binframe

import (
	"encoding/binary"
	"math"

	"github.com/lmaisenbacher/logger2/internal/types"
)

const (
	// FrameLen is the frame length excluding the trailing checksum byte.
	FrameLen = 8
	// Sentinel is the fixed first byte of every frame.
	Sentinel = 0x07

	// statusMask selects the bits of the status byte that indicate an
	// instrument fault. The two remaining bits are setpoint relays.
	statusMask = 0b11100111

	// fullScale divides the raw 16-bit mantissa.
	fullScale = 3.2e4
	// exponentBias is subtracted from the packed exponent nibble.
	exponentBias = 3
)

// mantissaTable maps the full-scale-range nibble to its mantissa.
var mantissaTable = [...]float64{1.0, 1.1, 2.0, 2.5, 5.0}

// FindFrame returns the first validated frame in buf and its offset. A
// candidate offset is accepted when the byte there is the sentinel and the
// unsigned sum of the following FrameLen-1 bytes mod 256 equals the byte
// trailing the frame. buf is never modified.
func FindFrame(buf []byte) ([]byte, int, error) {
	for i := 0; i+FrameLen < len(buf); i++ {
		if buf[i] != Sentinel {
			continue
		}
		var sum byte
		for _, b := range buf[i+1 : i+FrameLen] {
			sum += b
		}
		if sum == buf[i+FrameLen] {
			return buf[i : i+FrameLen], i, nil
		}
	}
	return nil, 0, types.Errf(types.ErrNoValidFrame,
		"no valid frame in %d buffered bytes", len(buf)).WithRaw(buf)
}

// DecodeValue extracts the scaled measurement from a validated frame:
// big-endian mantissa in bytes 4-5, packed scaling byte 7 with the
// mantissa table index in the high nibble and the biased power-of-ten
// exponent in the low nibble.
func DecodeValue(frame []byte) (float64, error) {
	if len(frame) != FrameLen {
		return 0, types.Errf(types.ErrProtocolMismatch,
			"frame is %d bytes, want %d", len(frame), FrameLen).WithRaw(frame)
	}
	if status := frame[3]; status&statusMask != 0 {
		return 0, types.Errf(types.ErrDeviceFlag,
			"instrument reports error flags 0b%08b", status).WithRaw([]byte{status})
	}
	packed := frame[7]
	index := int(packed >> 4)
	if index >= len(mantissaTable) {
		return 0, types.Errf(types.ErrProtocolMismatch,
			"full-scale mantissa index %d out of range", index).WithRaw(frame)
	}
	exponent := int(packed&0x0F) - exponentBias
	mantissa := float64(binary.BigEndian.Uint16(frame[4:6]))
	return mantissa / fullScale * mantissaTable[index] * math.Pow(10, float64(exponent)), nil
}
