// Package scheduler drives the periodic poll cycles. Devices are polled
// sequentially in declaration order; a single slow or dead instrument
// delays the cycle by at most its own timeout and never stops the others
// from being read.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/drivers"
	"github.com/lmaisenbacher/logger2/internal/sink"
	"github.com/lmaisenbacher/logger2/internal/types"
)

const defaultFaultThreshold = 3

// DeviceSource yields the devices to poll, in polling order.
type DeviceSource interface {
	Devices() []drivers.Device
}

// Events receives scheduler notifications for live consumers. All methods
// must return quickly; the scheduler calls them inline from the poll loop.
type Events interface {
	ReadingTaken(types.Reading)
	DeviceErrored(info types.DeviceInfo, err error)
	DeviceFaulted(info types.DeviceInfo)
}

// Config holds the poll loop parameters.
type Config struct {
	// Interval is the pause between the end of one cycle and the start of
	// the next. Poll time is not subtracted.
	Interval time.Duration
	// FaultThreshold is the number of consecutive protocol failures after
	// which a device is marked Faulted.
	FaultThreshold int
}

// Scheduler runs the poll loop and forwards per-device batches to the
// sink. It keeps a snapshot of the most recent reading per channel for
// the API.
type Scheduler struct {
	cfg    Config
	source DeviceSource
	sink   sink.Sink
	logger *zap.Logger
	events Events

	mu       sync.RWMutex
	latest   map[string]map[string]types.Reading
	failures map[string]int
	cycles   uint64
}

func New(cfg Config, source DeviceSource, out sink.Sink, logger *zap.Logger) *Scheduler {
	if cfg.FaultThreshold <= 0 {
		cfg.FaultThreshold = defaultFaultThreshold
	}
	return &Scheduler{
		cfg:      cfg,
		source:   source,
		sink:     out,
		logger:   logger,
		latest:   make(map[string]map[string]types.Reading),
		failures: make(map[string]int),
	}
}

// SetEvents installs the live-event consumer. Must be called before Run.
func (s *Scheduler) SetEvents(ev Events) { s.events = ev }

// Run polls until the context is cancelled. Each cycle is followed by a
// fixed-length pause; the loop makes no attempt to keep a strict period.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("Poll loop started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Int("fault_threshold", s.cfg.FaultThreshold))
	for {
		s.RunCycle(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info("Poll loop stopped")
			return
		case <-time.After(s.cfg.Interval):
		}
	}
}

// RunCycle polls every device once, sequentially.
func (s *Scheduler) RunCycle(ctx context.Context) {
	cycleID := uuid.New().String()
	s.mu.Lock()
	s.cycles++
	s.mu.Unlock()

	for _, device := range s.source.Devices() {
		if ctx.Err() != nil {
			return
		}
		s.pollDevice(ctx, cycleID, device)
	}
}

type readResult struct {
	readings map[string]types.Reading
	err      error
}

func (s *Scheduler) pollDevice(ctx context.Context, cycleID string, device drivers.Device) {
	info := device.Info()
	if device.State() == types.StateFaulted {
		s.logger.Debug("Skipping faulted device",
			zap.String("device", info.Name),
			zap.String("cycle", cycleID))
		return
	}

	def := device.Definition()
	readCtx, cancel := context.WithTimeout(ctx, def.Timeout())
	defer cancel()

	// The read runs in its own goroutine so a driver that ignores its
	// context still only costs the cycle one timeout. The buffered channel
	// lets a late result be dropped without leaking the goroutine forever.
	resCh := make(chan readResult, 1)
	go func() {
		readings, err := device.ReadChannels(readCtx)
		resCh <- readResult{readings: readings, err: err}
	}()

	var res readResult
	select {
	case res = <-resCh:
	case <-readCtx.Done():
		res.err = types.Errf(types.ErrTimeout,
			"no complete response within %s", def.Timeout()).
			WithDevice(def.Device, def.Address)
	}

	if res.err != nil {
		s.handleError(info, device, cycleID, res.err)
		return
	}

	s.mu.Lock()
	s.failures[info.Name] = 0
	s.mu.Unlock()

	batch := s.orderBatch(def, res.readings)
	s.storeLatest(info.Name, batch)
	if s.events != nil {
		for _, r := range batch {
			s.events.ReadingTaken(r)
		}
	}
	if err := s.sink.Write(ctx, batch); err != nil {
		// Storage trouble is not the instrument's fault; the device stays
		// Connected and the batch is dropped.
		s.logger.Error("Sink write failed",
			zap.String("device", info.Name),
			zap.String("cycle", cycleID),
			zap.Int("readings", len(batch)),
			zap.Error(err))
	}
}

func (s *Scheduler) handleError(info types.DeviceInfo, device drivers.Device, cycleID string, err error) {
	kind := types.Classify(err)
	s.logger.Error("Device poll failed",
		zap.String("device", info.Name),
		zap.String("address", info.Address),
		zap.String("cycle", cycleID),
		zap.String("kind", string(kind)),
		zap.Error(err))
	if s.events != nil {
		s.events.DeviceErrored(info, err)
	}

	if types.IsFatal(err) {
		s.fault(device, info, "fatal error")
		return
	}
	if !escalates(kind) {
		return
	}
	s.mu.Lock()
	s.failures[info.Name]++
	streak := s.failures[info.Name]
	s.mu.Unlock()
	if streak >= s.cfg.FaultThreshold {
		s.fault(device, info, "protocol failure streak")
	}
}

func (s *Scheduler) fault(device drivers.Device, info types.DeviceInfo, reason string) {
	device.Fault()
	s.mu.Lock()
	s.failures[info.Name] = 0
	s.mu.Unlock()
	s.logger.Warn("Device faulted, excluded from polling until reconnect",
		zap.String("device", info.Name),
		zap.String("reason", reason))
	if s.events != nil {
		info.State = types.StateFaulted.String()
		s.events.DeviceFaulted(info)
	}
}

// escalates reports whether the kind counts toward the consecutive
// protocol-failure streak. Timeouts and device-side flags stay transient;
// they say nothing about the protocol contract being broken.
func escalates(kind types.ErrorKind) bool {
	switch kind {
	case types.ErrProtocolMismatch, types.ErrAckMissing,
		types.ErrDeviceNak, types.ErrNoValidFrame:
		return true
	}
	return false
}

// orderBatch flattens the channel map into channel declaration order so
// the sink sees a deterministic sequence per cycle.
func (s *Scheduler) orderBatch(def types.DeviceDefinition, readings map[string]types.Reading) []types.Reading {
	batch := make([]types.Reading, 0, len(readings))
	for _, ch := range def.Channels {
		if r, ok := readings[ch.ID]; ok {
			batch = append(batch, r)
		}
	}
	return batch
}

func (s *Scheduler) storeLatest(deviceName string, batch []types.Reading) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byChannel := s.latest[deviceName]
	if byChannel == nil {
		byChannel = make(map[string]types.Reading)
		s.latest[deviceName] = byChannel
	}
	for _, r := range batch {
		byChannel[r.ChannelID] = r
	}
}

// Latest returns the most recent reading per channel, grouped by device,
// in the polling order of the devices.
func (s *Scheduler) Latest() []types.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []types.Reading
	for _, device := range s.source.Devices() {
		def := device.Definition()
		byChannel, ok := s.latest[def.Device]
		if !ok {
			continue
		}
		for _, ch := range def.Channels {
			if r, found := byChannel[ch.ID]; found {
				out = append(out, r)
			}
		}
	}
	return out
}

// Cycles returns the number of cycles started since startup.
func (s *Scheduler) Cycles() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}
