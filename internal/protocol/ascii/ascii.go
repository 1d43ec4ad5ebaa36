// Package ascii implements the ASCII command/acknowledge codec spoken by
// multidrop RS-485 pressure gauges (Kurt J. Lesker KJLC 354/352 series,
// InstruTech IGM401/402). Commands are framed as "#{addr}{cmd}\r"; a good
// response echoes "*{addr} " followed by the payload, an error response
// starts with "?".
package ascii

import (
	"strconv"
	"strings"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// EncodeCommand frames a command for the gauge at the given bus address.
func EncodeCommand(address, command string) []byte {
	return []byte("#" + address + command + "\r")
}

// DecodeResponse checks the acknowledgement header of a raw response and
// returns the payload following "*{addr} ", with trailing line endings
// stripped.
func DecodeResponse(address string, raw []byte) (string, error) {
	rsp := string(raw)
	if rsp == "" {
		return "", types.Errf(types.ErrNoResponse, "no response received")
	}
	if strings.HasPrefix(rsp, "?") {
		return "", types.Errf(types.ErrDeviceNak, "received an error response").WithRaw(raw)
	}
	header := "*" + address + " "
	if strings.HasPrefix(rsp, header) {
		return strings.TrimRight(rsp[len(header):], "\r\n"), nil
	}
	if strings.HasPrefix(rsp, "*") {
		return "", types.Errf(types.ErrProtocolMismatch,
			"acknowledgement for wrong address (want %q)", header).WithRaw(raw)
	}
	return "", types.Errf(types.ErrAckMissing,
		"didn't receive correct acknowledgement").WithRaw(raw)
}

// ParseFloat parses a numeric payload as a decimal float.
func ParseFloat(payload string) (float64, error) {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		return 0, types.Errf(types.ErrProtocolMismatch,
			"payload %q is not a number", payload)
	}
	return value, nil
}
