// Package system wires config, devices, scheduler, sink and API into one
// lifecycle: build everything at startup, fail fast on configuration
// errors, release every transport exactly once at shutdown.
package system

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/api/rest"
	"github.com/lmaisenbacher/logger2/internal/api/websocket"
	"github.com/lmaisenbacher/logger2/internal/config"
	"github.com/lmaisenbacher/logger2/internal/devices"
	"github.com/lmaisenbacher/logger2/internal/interfaces"
	"github.com/lmaisenbacher/logger2/internal/scheduler"
	"github.com/lmaisenbacher/logger2/internal/sink"
	"github.com/lmaisenbacher/logger2/internal/types"
)

type LifecycleManager struct {
	config        *config.Config
	deviceManager *devices.Manager
	scheduler     *scheduler.Scheduler
	dataSink      sink.Sink
	wsHub         *websocket.Hub
	logger        *zap.Logger

	restServer *rest.Server

	stateMu      sync.RWMutex
	currentState SystemState
	startedAt    time.Time

	pollCancel context.CancelFunc
	pollDone   chan struct{}

	shutdownOnce sync.Once
}

// NewLifecycleManager loads the device list and builds every component.
// Any configuration problem (unreadable list, schema violation, unknown
// model, malformed channel) is returned here, before anything starts.
func NewLifecycleManager(cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	defs, err := devices.LoadDefinitions(cfg.Devices.ConfigPath, cfg.Scheduler.DefaultTimeout)
	if err != nil {
		return nil, err
	}

	deviceManager := devices.NewManager(devices.Builtin(), logger)
	if err := deviceManager.BuildDevices(defs); err != nil {
		return nil, err
	}

	dataSink := sink.NewInflux(sink.Config{
		URL:    cfg.Database.URL,
		Token:  cfg.Database.Token(),
		Org:    cfg.Database.Org,
		Bucket: cfg.Database.Bucket,
	}, logger)

	sched := scheduler.New(scheduler.Config{
		Interval:       cfg.Scheduler.UpdateInterval,
		FaultThreshold: cfg.Scheduler.FaultThreshold,
	}, deviceManager, dataSink, logger)

	wsHub := websocket.NewHub(logger)
	sched.SetEvents(wsHub)

	return &LifecycleManager{
		config:        cfg,
		deviceManager: deviceManager,
		scheduler:     sched,
		dataSink:      dataSink,
		wsHub:         wsHub,
		logger:        logger,
		currentState:  StateInitializing,
		pollDone:      make(chan struct{}),
	}, nil
}

// Start connects the devices and brings up the poll loop, the WebSocket
// hub and the REST API.
func (lm *LifecycleManager) Start(ctx context.Context) error {
	lm.logger.Info("Starting instrument logger",
		zap.Int("devices", len(lm.deviceManager.Devices())),
		zap.Duration("update_interval", lm.config.Scheduler.UpdateInterval))

	lm.deviceManager.ConnectAll(ctx)

	go lm.wsHub.Run()

	pollCtx, cancel := context.WithCancel(context.Background())
	lm.pollCancel = cancel
	go func() {
		lm.scheduler.Run(pollCtx)
		close(lm.pollDone)
	}()

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger, lm.wsHub)
	if err := lm.restServer.Start(); err != nil {
		lm.setState(StateError)
		return err
	}

	lm.stateMu.Lock()
	lm.startedAt = time.Now()
	lm.stateMu.Unlock()
	lm.setState(StateRunning)
	lm.logger.Info("System started",
		zap.Int("http_port", lm.config.Server.HTTPPort))
	return nil
}

// Shutdown stops polling, drains the API server and releases every
// transport. Safe to call more than once.
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down")
		lm.setState(StateStopping)

		if lm.pollCancel != nil {
			lm.pollCancel()
			select {
			case <-lm.pollDone:
			case <-ctx.Done():
				lm.logger.Warn("Poll loop did not stop before deadline")
				shutdownErr = fmt.Errorf("shutdown timeout exceeded")
			}
		}

		if lm.restServer != nil {
			shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := lm.restServer.Shutdown(shutdownCtx); err != nil {
				lm.logger.Warn("REST shutdown failed", zap.Error(err))
				shutdownErr = err
			}
		}

		lm.deviceManager.CloseAll()
		lm.dataSink.Close()

		lm.setState(StateStopped)
		lm.logger.Info("Shutdown complete")
	})

	return shutdownErr
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()
	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Forcing state transition", zap.Error(err))
	}
	lm.currentState = state
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	lm.stateMu.RLock()
	state := lm.currentState
	startedAt := lm.startedAt
	lm.stateMu.RUnlock()

	all := lm.deviceManager.Devices()
	connected, faulted := 0, 0
	for _, d := range all {
		switch d.State() {
		case types.StateConnected:
			connected++
		case types.StateFaulted:
			faulted++
		}
	}

	var uptime int64
	if !startedAt.IsZero() {
		uptime = int64(time.Since(startedAt).Seconds())
	}

	return interfaces.SystemStatus{
		State:            state.String(),
		DeviceCount:      len(all),
		ConnectedDevices: connected,
		FaultedDevices:   faulted,
		PollCycles:       lm.scheduler.Cycles(),
		UptimeSeconds:    uptime,
	}
}

// DeviceManager returns the device manager
func (lm *LifecycleManager) DeviceManager() *devices.Manager {
	return lm.deviceManager
}

// Scheduler returns the poll scheduler
func (lm *LifecycleManager) Scheduler() *scheduler.Scheduler {
	return lm.scheduler
}

// Config returns the configuration
func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}
