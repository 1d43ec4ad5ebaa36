package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/lmaisenbacher/logger2/internal/drivers"
	"github.com/lmaisenbacher/logger2/internal/types"
)

type fakeDevice struct {
	def   types.DeviceDefinition
	state atomic.Int32
	reads atomic.Int32
	read  func(ctx context.Context) (map[string]types.Reading, error)
}

func newFakeDevice(name string, timeoutMs int, read func(ctx context.Context) (map[string]types.Reading, error)) *fakeDevice {
	d := &fakeDevice{
		def: types.DeviceDefinition{
			Device:      name,
			Model:       "Fake",
			Address:     "test",
			TimeoutMs:   timeoutMs,
			Measurement: "pressure",
			Channels: []types.ChannelDefinition{
				{ID: "p", Type: types.ChannelTypePressure, FieldKey: "Pressure", Scale: 1.0},
			},
		},
		read: read,
	}
	d.state.Store(int32(types.StateConnected))
	return d
}

func (d *fakeDevice) Info() types.DeviceInfo {
	return types.DeviceInfo{
		ID: d.def.Device, Name: d.def.Device, Model: d.def.Model,
		Address: d.def.Address, State: d.State().String(),
	}
}

func (d *fakeDevice) Definition() types.DeviceDefinition { return d.def }
func (d *fakeDevice) State() types.ConnState             { return types.ConnState(d.state.Load()) }
func (d *fakeDevice) Fault()                             { d.state.Store(int32(types.StateFaulted)) }
func (d *fakeDevice) Connect(context.Context) error      { return nil }
func (d *fakeDevice) Close() error                       { return nil }

func (d *fakeDevice) ReadChannels(ctx context.Context) (map[string]types.Reading, error) {
	d.reads.Add(1)
	return d.read(ctx)
}

func goodRead(name string, value float64) func(ctx context.Context) (map[string]types.Reading, error) {
	return func(ctx context.Context) (map[string]types.Reading, error) {
		return map[string]types.Reading{
			"p": {DeviceID: name, ChannelID: "p", Value: value,
				Measurement: "pressure", FieldKey: "Pressure", Time: time.Now()},
		}, nil
	}
}

type deviceList []drivers.Device

func (l deviceList) Devices() []drivers.Device { return l }

type fakeSink struct {
	mu      sync.Mutex
	batches [][]types.Reading
	err     error
}

func (s *fakeSink) Write(_ context.Context, readings []types.Reading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	batch := make([]types.Reading, len(readings))
	copy(batch, readings)
	s.batches = append(s.batches, batch)
	return s.err
}

func (s *fakeSink) Close() {}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.batches)
}

func newScheduler(t *testing.T, cfg Config, out *fakeSink, devices ...drivers.Device) *Scheduler {
	t.Helper()
	if cfg.Interval == 0 {
		cfg.Interval = time.Second
	}
	return New(cfg, deviceList(devices), out, zap.NewNop())
}

func TestRunCycleWritesOneBatchPerDevice(t *testing.T) {
	out := &fakeSink{}
	a := newFakeDevice("gauge-a", 1000, goodRead("gauge-a", 1.2e-6))
	b := newFakeDevice("gauge-b", 1000, goodRead("gauge-b", 760.0))
	s := newScheduler(t, Config{}, out, a, b)

	s.RunCycle(context.Background())

	if out.count() != 2 {
		t.Fatalf("batches: got %d, want 2", out.count())
	}
	if out.batches[0][0].DeviceID != "gauge-a" || out.batches[1][0].DeviceID != "gauge-b" {
		t.Fatalf("batches out of declaration order: %v", out.batches)
	}
	latest := s.Latest()
	if len(latest) != 2 {
		t.Fatalf("latest snapshot: got %d readings, want 2", len(latest))
	}
	if latest[0].Value != 1.2e-6 {
		t.Fatalf("latest value: got %g", latest[0].Value)
	}
}

func TestHungDeviceOnlyCostsItsTimeout(t *testing.T) {
	out := &fakeSink{}
	a := newFakeDevice("gauge-a", 1000, goodRead("gauge-a", 1.0))
	hung := newFakeDevice("gauge-hung", 50, func(ctx context.Context) (map[string]types.Reading, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := newFakeDevice("gauge-c", 1000, goodRead("gauge-c", 2.0))
	s := newScheduler(t, Config{}, out, a, hung, c)

	start := time.Now()
	s.RunCycle(context.Background())
	elapsed := time.Since(start)

	if elapsed > time.Second {
		t.Fatalf("cycle took %s, hung device was not bounded by its timeout", elapsed)
	}
	if out.count() != 2 {
		t.Fatalf("batches: got %d, want 2 (healthy devices only)", out.count())
	}
	if out.batches[0][0].DeviceID != "gauge-a" || out.batches[1][0].DeviceID != "gauge-c" {
		t.Fatalf("unexpected batch order: %v", out.batches)
	}
	// Timeouts are transient; the device stays Connected for the next cycle.
	if hung.State() != types.StateConnected {
		t.Fatalf("hung device state: got %s, want Connected", hung.State())
	}
}

func TestFatalErrorFaultsDeviceAndSkipsIt(t *testing.T) {
	out := &fakeSink{}
	dead := newFakeDevice("gauge-dead", 1000, func(ctx context.Context) (map[string]types.Reading, error) {
		return nil, types.Errf(types.ErrConnection, "read: port gone")
	})
	s := newScheduler(t, Config{}, out, dead)

	s.RunCycle(context.Background())
	if dead.State() != types.StateFaulted {
		t.Fatalf("state after fatal error: got %s, want Faulted", dead.State())
	}
	s.RunCycle(context.Background())
	if got := dead.reads.Load(); got != 1 {
		t.Fatalf("faulted device polled again: %d reads", got)
	}
	if out.count() != 0 {
		t.Fatalf("unexpected sink writes: %d", out.count())
	}
}

func TestProtocolFailureStreakFaultsDevice(t *testing.T) {
	out := &fakeSink{}
	flaky := newFakeDevice("gauge-flaky", 1000, func(ctx context.Context) (map[string]types.Reading, error) {
		return nil, types.Errf(types.ErrAckMissing, "no acknowledgement")
	})
	s := newScheduler(t, Config{FaultThreshold: 2}, out, flaky)

	s.RunCycle(context.Background())
	if flaky.State() != types.StateConnected {
		t.Fatal("faulted before reaching the threshold")
	}
	s.RunCycle(context.Background())
	if flaky.State() != types.StateFaulted {
		t.Fatalf("state after %d protocol failures: got %s, want Faulted", 2, flaky.State())
	}
}

func TestSuccessResetsProtocolStreak(t *testing.T) {
	out := &fakeSink{}
	var fail atomic.Bool
	fail.Store(true)
	dev := newFakeDevice("gauge-x", 1000, func(ctx context.Context) (map[string]types.Reading, error) {
		if fail.Load() {
			return nil, types.Errf(types.ErrDeviceNak, "nak")
		}
		return goodRead("gauge-x", 3.0)(ctx)
	})
	s := newScheduler(t, Config{FaultThreshold: 2}, out, dev)

	s.RunCycle(context.Background())
	fail.Store(false)
	s.RunCycle(context.Background())
	fail.Store(true)
	s.RunCycle(context.Background())

	if dev.State() == types.StateFaulted {
		t.Fatal("streak not reset by intervening success")
	}
}

func TestSinkFailureDoesNotFaultDevice(t *testing.T) {
	out := &fakeSink{err: context.DeadlineExceeded}
	a := newFakeDevice("gauge-a", 1000, goodRead("gauge-a", 1.0))
	b := newFakeDevice("gauge-b", 1000, goodRead("gauge-b", 2.0))
	s := newScheduler(t, Config{}, out, a, b)

	s.RunCycle(context.Background())

	if a.State() != types.StateConnected || b.State() != types.StateConnected {
		t.Fatal("sink failure leaked into device state")
	}
	if out.count() != 2 {
		t.Fatalf("second device not polled after sink failure: %d batches", out.count())
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	out := &fakeSink{}
	a := newFakeDevice("gauge-a", 1000, goodRead("gauge-a", 1.0))
	s := newScheduler(t, Config{Interval: 10 * time.Millisecond}, out, a)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	time.Sleep(35 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if s.Cycles() == 0 {
		t.Fatal("no cycles ran")
	}
}
