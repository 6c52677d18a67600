package poll

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/relabs-tech/imu_viewer/internal/bno055"
	"github.com/relabs-tech/imu_viewer/internal/bus"
	"github.com/relabs-tech/imu_viewer/internal/orientation"
)

// stubDevice scripts the device side of the loop: read returns
// whatever readFn says for the n-th call (1-based).
type stubDevice struct {
	reads     int
	readFn    func(n int) (orientation.Sample, error)
	reinits   int
	reinitErr error
	shutdowns int
}

func (s *stubDevice) ReadOrientation() (orientation.Sample, error) {
	s.reads++
	return s.readFn(s.reads)
}

func (s *stubDevice) Reinitialize() error {
	s.reinits++
	return s.reinitErr
}

func (s *stubDevice) Shutdown() error {
	s.shutdowns++
	return nil
}

// newTestLoop wires a loop with a fake clock so cycles run instantly.
func newTestLoop(dev Device, slot *orientation.Latest, threshold int) *Loop {
	l := New(dev, slot, 10*time.Millisecond, threshold)
	now := time.Unix(1000, 0)
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) { now = now.Add(d) }
	return l
}

var errNoACK = errors.New("no ACK")

func TestRecoveryOncePerThresholdCrossing(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		if n > 20 {
			cancel()
			return orientation.Sample{}, errNoACK
		}
		return orientation.Sample{}, errNoACK
	}

	slot := &orientation.Latest{}
	l := newTestLoop(dev, slot, 10)

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil after cancellation", err)
	}

	// 20 consecutive failures with threshold 10: the recovery routine
	// runs exactly once per threshold crossing, not once per failure.
	if dev.reinits != 2 {
		t.Errorf("recoveries = %d, want 2", dev.reinits)
	}
	if got := l.Stats().Recoveries; got != 2 {
		t.Errorf("Stats().Recoveries = %d, want 2", got)
	}
}

func TestSuccessResetsFailureCounter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	// Alternate 9 failures / 1 success: the threshold of 10 is never
	// crossed, so recovery must never run.
	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		if n > 50 {
			cancel()
		}
		if n%10 == 0 {
			return orientation.Sample{Time: time.Unix(int64(n), 0)}, nil
		}
		return orientation.Sample{}, errNoACK
	}

	l := newTestLoop(dev, &orientation.Latest{}, 10)
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if dev.reinits != 0 {
		t.Errorf("recoveries = %d, want 0", dev.reinits)
	}
}

func TestRecoveryExhaustedIsFatal(t *testing.T) {
	dev := &stubDevice{reinitErr: errors.New("still dead")}
	dev.readFn = func(n int) (orientation.Sample, error) {
		return orientation.Sample{}, errNoACK
	}

	l := newTestLoop(dev, &orientation.Latest{}, 3)
	err := l.Run(context.Background())
	if !errors.Is(err, ErrDeviceLost) {
		t.Fatalf("Run() = %v, want ErrDeviceLost", err)
	}
	if dev.reinits != 1 {
		t.Errorf("recoveries = %d, want 1 (loop must stop, not spin)", dev.reinits)
	}
}

func TestMalformedSamplesDroppedNotRecovered(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		if n > 5 {
			cancel()
		}
		return orientation.Sample{}, fmt.Errorf("%w: |q| = 0.5", bno055.ErrMalformedSample)
	}

	slot := &orientation.Latest{}
	l := newTestLoop(dev, slot, 2)

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if _, ok := slot.Get(); ok {
		t.Error("malformed samples must not be published")
	}
	if dev.reinits != 0 {
		t.Errorf("recoveries = %d, want 0 (malformed is transient)", dev.reinits)
	}
	if got := l.Stats().Malformed; got < 5 {
		t.Errorf("Stats().Malformed = %d, want >= 5", got)
	}
}

func TestPublishesNewestSample(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	base := time.Unix(2000, 0)
	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		if n >= 10 {
			cancel()
		}
		return orientation.Sample{
			Heading: float64(n),
			Time:    base.Add(time.Duration(n) * time.Millisecond),
		}, nil
	}

	slot := &orientation.Latest{}
	l := newTestLoop(dev, slot, 10)

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	got, ok := slot.Get()
	if !ok {
		t.Fatal("slot should hold the last published sample")
	}
	if got.Heading != float64(dev.reads) {
		t.Errorf("slot holds sample %v, want the newest (%d)", got.Heading, dev.reads)
	}
	if l.Stats().Published != uint64(dev.reads) {
		t.Errorf("Stats().Published = %d, want %d", l.Stats().Published, dev.reads)
	}
}

// Wake times must land on start+N*period: a cycle that takes 4ms of a
// 10ms period sleeps 6ms, not a fixed full period, so timing skew
// never accumulates.
func TestDriftFreeScheduling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Unix(1000, 0)
	work := []time.Duration{4 * time.Millisecond, 7 * time.Millisecond, 2 * time.Millisecond}

	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		if n > len(work) {
			cancel()
			return orientation.Sample{Heading: float64(n)}, nil
		}
		now = now.Add(work[n-1])
		return orientation.Sample{Heading: float64(n)}, nil
	}

	l := New(dev, &orientation.Latest{}, 10*time.Millisecond, 10)
	var sleeps []time.Duration
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) {
		sleeps = append(sleeps, d)
		now = now.Add(d)
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	// Cycle 4 does no work, so it pays the full period.
	want := []time.Duration{
		6 * time.Millisecond,
		3 * time.Millisecond,
		8 * time.Millisecond,
		10 * time.Millisecond,
	}
	if len(sleeps) != len(want) {
		t.Fatalf("slept %d times (%v), want %d", len(sleeps), sleeps, len(want))
	}
	for i := range want {
		if sleeps[i] != want[i] {
			t.Errorf("sleep %d = %v, want %v (wake times must stay on the period grid)",
				i, sleeps[i], want[i])
		}
	}
}

// A cycle that overruns its slot must not trigger a catch-up burst of
// back-to-back reads: the schedule realigns from the overrun point.
func TestOverrunRealignsSchedule(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	now := time.Unix(1000, 0)
	work := []time.Duration{25 * time.Millisecond, 4 * time.Millisecond}

	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		if n > len(work) {
			cancel()
			return orientation.Sample{}, nil
		}
		now = now.Add(work[n-1])
		return orientation.Sample{}, nil
	}

	l := New(dev, &orientation.Latest{}, 10*time.Millisecond, 10)
	var sleeps []time.Duration
	l.now = func() time.Time { return now }
	l.sleep = func(_ context.Context, d time.Duration) {
		sleeps = append(sleeps, d)
		now = now.Add(d)
	}

	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v", err)
	}

	// The 25ms cycle sleeps zero times; the next cycle sleeps 6ms
	// against the realigned base, not against the pre-overrun grid.
	want := []time.Duration{6 * time.Millisecond, 10 * time.Millisecond}
	if len(sleeps) != len(want) {
		t.Fatalf("slept %d times (%v), want %d (no sleep after an overrun)",
			len(sleeps), sleeps, len(want))
	}
	if sleeps[0] != want[0] {
		t.Errorf("post-overrun sleep = %v, want %v (schedule must realign)", sleeps[0], want[0])
	}
}

// Cancellation must interrupt the inter-cycle sleep; shutdown latency
// is independent of the poll period.
func TestCancelInterruptsSleep(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		return orientation.Sample{Time: time.Unix(int64(n), 0)}, nil
	}

	// Real clock, deliberately absurd period.
	l := New(dev, &orientation.Latest{}, time.Hour, 10)

	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation mid-sleep")
	}
	if dev.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", dev.shutdowns)
	}
}

func TestCancelShutsDeviceDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	dev := &stubDevice{}
	dev.readFn = func(n int) (orientation.Sample, error) {
		cancel()
		return orientation.Sample{Time: time.Unix(int64(n), 0)}, nil
	}

	l := newTestLoop(dev, &orientation.Latest{}, 10)
	if err := l.Run(ctx); err != nil {
		t.Fatalf("Run() = %v, want nil", err)
	}
	if dev.shutdowns != 1 {
		t.Errorf("shutdowns = %d, want 1", dev.shutdowns)
	}
}

// End to end over the mock bus: the real driver polled by the real
// loop, with shutdown observable as a final CONFIG write to the mode
// register (0x3D).
func TestLoopWithRealDriverShutsToConfig(t *testing.T) {
	mock := bus.NewMockDevice()
	mock.SetRegs(0x00, 0xA0)                         // WHO_AM_I
	mock.SetRegs(0x20, 0x00, 0x40, 0, 0, 0, 0, 0, 0) // identity quaternion
	mock.SetRegs(0x35, 0xFF)                         // fully calibrated

	dev := bno055.New(mock)
	if err := dev.Identify(); err != nil {
		t.Fatalf("Identify() = %v", err)
	}
	if err := dev.Initialize(); err != nil {
		t.Fatalf("Initialize() = %v", err)
	}

	slot := &orientation.Latest{}
	l := New(dev, slot, time.Millisecond, 10)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for {
		if _, ok := slot.Get(); ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("no sample published in time")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() = %v", err)
	}

	if v, ok := mock.LastWrite(0x3D); !ok || v != 0x00 {
		t.Errorf("final OPR_MODE write = 0x%02X (ok=%v), want CONFIG 0x00", v, ok)
	}

	s, _ := slot.Get()
	if s.Quat.W != 1 {
		t.Errorf("published quat = %+v, want identity", s.Quat)
	}
	if !s.Calibration.IsCalibrated() {
		t.Errorf("published calibration = %+v, want fully calibrated", s.Calibration)
	}
}
