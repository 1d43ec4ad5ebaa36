package drivers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/types"
)

// ModelPurpleAir reads PurpleAir air quality sensors from the web API at
// https://api.purpleair.com. Each channel is one sensor, addressed by its
// sensor index; the reading is the concentration of particles 0.3 um and
// greater (the smallest size bin, which includes all larger bins).
const ModelPurpleAir = "PurpleAir"

const purpleAirDefaultBaseURL = "https://api.purpleair.com/v1"

// Device-specific parameters:
//   api_key   PurpleAir API read key (required)
//   base_url  API endpoint override, used by tests
//
// Channel parameters:
//   read_key  sensor-specific read key for private sensors
type PurpleAir struct {
	base
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewPurpleAir builds the driver from its definition.
func NewPurpleAir(def types.DeviceDefinition, logger *zap.Logger) (Device, error) {
	if err := requireChannelTypes(def, types.ChannelTypeParticleCount); err != nil {
		return nil, err
	}
	apiKey := def.SpecificString("api_key", "")
	if apiKey == "" {
		return nil, types.Errf(types.ErrConfiguration,
			"device_specific.api_key is required").WithDevice(def.Device, def.Address)
	}
	return &PurpleAir{
		base:    newBase(def, logger),
		client:  &http.Client{Timeout: def.Timeout()},
		baseURL: def.SpecificString("base_url", purpleAirDefaultBaseURL),
		apiKey:  apiKey,
	}, nil
}

// Connect is a no-op: the web API is stateless, every read is its own
// HTTP request.
func (d *PurpleAir) Connect(ctx context.Context) error {
	d.setConnected()
	return nil
}

func (d *PurpleAir) Close() error {
	d.client.CloseIdleConnections()
	return nil
}

// readSensor fetches one sensor and returns its 0.3 um particle count.
func (d *PurpleAir) readSensor(ctx context.Context, ch types.ChannelDefinition) (float64, error) {
	endpoint := fmt.Sprintf("%s/sensors/%s", d.baseURL, url.PathEscape(ch.Address))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, d.errf(types.ErrConfiguration, "bad sensor URL %q", endpoint).WithCause(err)
	}
	req.Header.Set("X-API-Key", d.apiKey)
	if readKey := ch.Params["read_key"]; readKey != "" {
		q := req.URL.Query()
		q.Set("read_key", readKey)
		req.URL.RawQuery = q.Encode()
	}
	rsp, err := d.client.Do(req)
	if err != nil {
		kind := types.Classify(err)
		return 0, d.errf(kind, "HTTP request for sensor %s failed", ch.Address).WithCause(err)
	}
	defer rsp.Body.Close()
	if rsp.StatusCode != http.StatusOK {
		return 0, d.errf(types.ErrDeviceNak,
			"HTTP request for sensor %s returned %d: %s", ch.Address, rsp.StatusCode, rsp.Status)
	}
	var body struct {
		Sensor map[string]json.RawMessage `json:"sensor"`
	}
	if err := json.NewDecoder(rsp.Body).Decode(&body); err != nil {
		return 0, d.errf(types.ErrProtocolMismatch, "malformed sensor payload").WithCause(err)
	}
	raw, ok := body.Sensor["0.3_um_count"]
	if !ok {
		return 0, d.errf(types.ErrProtocolMismatch,
			"sensor payload lacks 0.3_um_count field")
	}
	var count float64
	if err := json.Unmarshal(raw, &count); err != nil {
		return 0, d.errf(types.ErrProtocolMismatch, "0.3_um_count is not a number").WithCause(err)
	}
	return count, nil
}

func (d *PurpleAir) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
	now := time.Now()
	readings := make(map[string]types.Reading, len(d.def.Channels))
	for _, ch := range d.def.Channels {
		value, err := d.readSensor(ctx, ch)
		if err != nil {
			return nil, err
		}
		readings[ch.ID] = d.reading(ch, value, now)
	}
	return readings, nil
}
