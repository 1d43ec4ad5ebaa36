package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lmaisenbacher/logger2/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  url: http://localhost:8086
  org: lab
  bucket: vacuum
devices:
  config_path: devices.json
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.HTTPPort != 8080 {
		t.Fatalf("default http_port: got %d", cfg.Server.HTTPPort)
	}
	if cfg.Scheduler.UpdateInterval != 10*time.Second {
		t.Fatalf("default update_interval: got %s", cfg.Scheduler.UpdateInterval)
	}
	if cfg.Scheduler.FaultThreshold != 3 {
		t.Fatalf("default fault_threshold: got %d", cfg.Scheduler.FaultThreshold)
	}
	if cfg.Database.TokenEnv != "INFLUXDB_TOKEN" {
		t.Fatalf("default token_env: got %q", cfg.Database.TokenEnv)
	}
}

func TestLoadRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{name: "missing database url", content: `
database:
  org: lab
  bucket: vacuum
devices:
  config_path: devices.json
`},
		{name: "missing bucket", content: `
database:
  url: http://localhost:8086
  org: lab
devices:
  config_path: devices.json
`},
		{name: "missing device list path", content: `
database:
  url: http://localhost:8086
  org: lab
  bucket: vacuum
`},
		{name: "zero interval", content: `
database:
  url: http://localhost:8086
  org: lab
  bucket: vacuum
devices:
  config_path: devices.json
scheduler:
  update_interval: 0s
`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			if !errors.Is(err, &types.DeviceError{Kind: types.ErrConfiguration}) {
				t.Fatalf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestTokenFromEnvironment(t *testing.T) {
	t.Setenv("TEST_INFLUX_TOKEN", "s3cret")
	d := DatabaseConfig{TokenEnv: "TEST_INFLUX_TOKEN"}
	if got := d.Token(); got != "s3cret" {
		t.Fatalf("token: got %q", got)
	}
}
