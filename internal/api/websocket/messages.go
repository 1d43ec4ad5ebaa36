package websocket

import (
	"time"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// MessageType defines the type of WebSocket message
type MessageType string

const (
	MessageTypeReading      MessageType = "reading"
	MessageTypeDeviceState  MessageType = "device_state"
	MessageTypeDeviceError  MessageType = "device_error"
	MessageTypeSystemStatus MessageType = "system_status"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data"`
}

// ReadingData carries one freshly taken reading.
type ReadingData struct {
	Device      string            `json:"device"`
	Channel     string            `json:"channel"`
	Value       float64           `json:"value"`
	Measurement string            `json:"measurement"`
	FieldKey    string            `json:"field_key"`
	Tags        map[string]string `json:"tags,omitempty"`
	Time        time.Time         `json:"time"`
}

// DeviceStateData announces a connection-state change.
type DeviceStateData struct {
	DeviceID string `json:"device_id"`
	Device   string `json:"device"`
	State    string `json:"state"`
}

// DeviceErrorData carries a classified poll failure.
type DeviceErrorData struct {
	DeviceID string `json:"device_id"`
	Device   string `json:"device"`
	Address  string `json:"address"`
	Error    string `json:"error"`
}

// NewMessage creates a new message with current timestamp
func NewMessage(msgType MessageType, data interface{}) Message {
	return Message{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

func NewReadingMessage(r types.Reading) Message {
	return NewMessage(MessageTypeReading, ReadingData{
		Device:      r.DeviceID,
		Channel:     r.ChannelID,
		Value:       r.Value,
		Measurement: r.Measurement,
		FieldKey:    r.FieldKey,
		Tags:        r.Tags,
		Time:        r.Time,
	})
}

func NewDeviceStateMessage(info types.DeviceInfo) Message {
	return NewMessage(MessageTypeDeviceState, DeviceStateData{
		DeviceID: info.ID,
		Device:   info.Name,
		State:    info.State,
	})
}

func NewDeviceErrorMessage(info types.DeviceInfo, err error) Message {
	return NewMessage(MessageTypeDeviceError, DeviceErrorData{
		DeviceID: info.ID,
		Device:   info.Name,
		Address:  info.Address,
		Error:    err.Error(),
	})
}
