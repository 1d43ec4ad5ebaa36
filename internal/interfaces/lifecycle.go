package interfaces

import (
	"context"

	"github.com/lmaisenbacher/logger2/internal/config"
	"github.com/lmaisenbacher/logger2/internal/devices"
	"github.com/lmaisenbacher/logger2/internal/scheduler"
)

// SystemStatus represents the current system state
type SystemStatus struct {
	State            string `json:"state"`
	DeviceCount      int    `json:"device_count"`
	ConnectedDevices int    `json:"connected_devices"`
	FaultedDevices   int    `json:"faulted_devices"`
	PollCycles       uint64 `json:"poll_cycles"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

// LifecycleManager is the surface the API layer programs against.
type LifecycleManager interface {
	Config() *config.Config
	DeviceManager() *devices.Manager
	Scheduler() *scheduler.Scheduler
	GetCurrentStatus() SystemStatus
	Shutdown(ctx context.Context) error
}
