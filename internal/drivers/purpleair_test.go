package drivers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/lmaisenbacher/logger2/internal/types"
)

func purpleAirDefinition(baseURL string) types.DeviceDefinition {
	return types.DeviceDefinition{
		Device:      "Air quality",
		Model:       ModelPurpleAir,
		Address:     "api.purpleair.com",
		TimeoutMs:   500,
		Measurement: "air_quality",
		DeviceSpecific: map[string]any{
			"api_key":  "test-key",
			"base_url": baseURL,
		},
		Channels: []types.ChannelDefinition{
			{ID: "lab", Type: types.ChannelTypeParticleCount, Address: "12345", FieldKey: "Count03um"},
			{
				ID: "roof", Type: types.ChannelTypeParticleCount, Address: "67890",
				FieldKey: "Count03um",
				Params:   map[string]string{"read_key": "secret"},
			},
		},
	}
}

func TestPurpleAirReadChannels(t *testing.T) {
	counts := map[string]float64{"12345": 321, "67890": 654}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-API-Key") != "test-key" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		index := r.URL.Path[len("/sensors/"):]
		if index == "67890" && r.URL.Query().Get("read_key") != "secret" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		count, ok := counts[index]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		fmt.Fprintf(w, `{"sensor":{"0.3_um_count":%g,"0.5_um_count":1}}`, count)
	}))
	defer srv.Close()

	dev, err := NewPurpleAir(purpleAirDefinition(srv.URL), testLogger())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := dev.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	readings, err := dev.ReadChannels(context.Background())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got := readings["lab"].Value; got != 321 {
		t.Fatalf("lab: got %g", got)
	}
	if got := readings["roof"].Value; got != 654 {
		t.Fatalf("roof: got %g", got)
	}
}

func TestPurpleAirHTTPErrorFailsBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	dev, _ := NewPurpleAir(purpleAirDefinition(srv.URL), testLogger())
	if err := dev.Connect(context.Background()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	readings, err := dev.ReadChannels(context.Background())
	if !errors.Is(err, &types.DeviceError{Kind: types.ErrDeviceNak}) {
		t.Fatalf("expected device_nak, got %v", err)
	}
	if readings != nil {
		t.Fatalf("partial map returned: %v", readings)
	}
}

func TestPurpleAirRequiresAPIKey(t *testing.T) {
	def := purpleAirDefinition("http://example.invalid")
	delete(def.DeviceSpecific, "api_key")
	_, err := NewPurpleAir(def, testLogger())
	if !errors.Is(err, &types.DeviceError{Kind: types.ErrConfiguration}) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
