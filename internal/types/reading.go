package types

import (
	"math"
	"time"
)

// Reading is one measured value of one channel, produced fresh per poll
// cycle. Value may be NaN when the instrument reported no valid number.
type Reading struct {
	DeviceID    string            `json:"device_id"`
	ChannelID   string            `json:"channel_id"`
	Value       float64           `json:"value"`
	Measurement string            `json:"measurement"`
	FieldKey    string            `json:"field_key"`
	Tags        map[string]string `json:"tags,omitempty"`
	Time        time.Time         `json:"time"`
}

// Valid reports whether the reading carries a usable numeric value.
func (r Reading) Valid() bool {
	return !math.IsNaN(r.Value)
}
