package types

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
)

// ErrorKind classifies a device failure.
type ErrorKind string

const (
	// ErrConnection: transport could not be opened. Fatal until reconnect.
	ErrConnection ErrorKind = "connection"
	// ErrTimeout: no response within the configured bound. Transient.
	ErrTimeout ErrorKind = "timeout"
	// ErrProtocolMismatch: response violates the protocol contract
	// (wrong address, wrong framing). Transient, escalates on repetition.
	ErrProtocolMismatch ErrorKind = "protocol_mismatch"
	// ErrAckMissing: response lacks the expected acknowledgement prefix.
	ErrAckMissing ErrorKind = "ack_missing"
	// ErrDeviceNak: device answered with an explicit error response.
	ErrDeviceNak ErrorKind = "device_nak"
	// ErrNoResponse: empty response where one was required.
	ErrNoResponse ErrorKind = "no_response"
	// ErrNoValidFrame: no valid frame found in the searched window.
	ErrNoValidFrame ErrorKind = "no_valid_frame"
	// ErrDeviceFlag: instrument-reported internal fault, raw byte attached.
	ErrDeviceFlag ErrorKind = "device_error_flag"
	// ErrNotReady: measurement pre-check failed, no valid reading available.
	ErrNotReady ErrorKind = "device_not_ready"
	// ErrConfiguration: malformed device/channel definition. Fatal at startup.
	ErrConfiguration ErrorKind = "configuration"
)

// DeviceError is the classified error type flowing out of
// Device.ReadChannels and Connect. It carries enough context (device id,
// address, raw bytes) to diagnose wiring and protocol problems from the log.
type DeviceError struct {
	Kind    ErrorKind
	Device  string
	Address string
	Raw     []byte
	Message string
	Cause   error
}

func (e *DeviceError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Device != "" {
		msg = fmt.Sprintf("device %q (%s): %s", e.Device, e.Address, msg)
	}
	if len(e.Raw) > 0 {
		msg += fmt.Sprintf(" [raw=%s]", hex.EncodeToString(e.Raw))
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DeviceError) Unwrap() error { return e.Cause }

// Is allows errors.Is(err, &DeviceError{Kind: ...}) matching on kind alone.
func (e *DeviceError) Is(target error) bool {
	t, ok := target.(*DeviceError)
	return ok && t.Kind == e.Kind
}

// Fatal reports whether the error should mark the device Faulted
// immediately rather than waiting for the next cycle.
func (e *DeviceError) Fatal() bool {
	return e.Kind == ErrConnection || e.Kind == ErrConfiguration
}

// Errf builds a classified error.
func Errf(kind ErrorKind, format string, args ...any) *DeviceError {
	return &DeviceError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithDevice attaches device identity for logging.
func (e *DeviceError) WithDevice(id, address string) *DeviceError {
	e.Device = id
	e.Address = address
	return e
}

// WithRaw attaches the offending raw bytes.
func (e *DeviceError) WithRaw(raw []byte) *DeviceError {
	e.Raw = append([]byte(nil), raw...)
	return e
}

// WithCause attaches the underlying transport error.
func (e *DeviceError) WithCause(cause error) *DeviceError {
	e.Cause = cause
	return e
}

// Classify maps an arbitrary error to an ErrorKind. Context deadline and
// network timeouts become ErrTimeout; everything unclassified is treated
// as a connection-level failure.
func Classify(err error) ErrorKind {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrTimeout
	}
	return ErrConnection
}

// IsFatal reports whether err should fault the device.
func IsFatal(err error) bool {
	var devErr *DeviceError
	if errors.As(err, &devErr) {
		return devErr.Fatal()
	}
	return Classify(err) == ErrConnection
}
