// Package wake runs the wake-word detect loop over the shared microphone.
package wake

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"voxgit/internal/audio"
	"voxgit/internal/observe"
)

const DefaultDebounce = 1200 * time.Millisecond

// Detector decides, frame by frame, whether the wake phrase was just
// completed. It keeps whatever state it needs between frames.
type Detector interface {
	Process(frame []float32) (bool, error)
}

// Resetter is implemented by detectors that buffer audio; Reset is called on
// Resume so speech heard before a pause does not leak into detection.
type Resetter interface {
	Reset()
}

type Option func(*Monitor)

func WithDebounce(d time.Duration) Option {
	return func(m *Monitor) { m.debounce = d }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Monitor) { m.log = l }
}

func WithMetrics(met *observe.Metrics) Option {
	return func(m *Monitor) { m.metrics = met }
}

// WithOnError is called once when the loop dies on a device or detector
// error. The monitor is already stopped at that point.
func WithOnError(fn func(error)) Option {
	return func(m *Monitor) { m.onError = fn }
}

func withClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Monitor owns the microphone while the session is idle. Pause hands it to a
// capture, Resume takes it back; the detector survives both.
type Monitor struct {
	dev    audio.Device
	det    Detector
	onWake func()

	debounce time.Duration
	now      func() time.Time
	log      *slog.Logger
	metrics  *observe.Metrics
	onError  func(error)

	// ops serialises Start/Pause/Resume/Stop, which wait for the loop.
	ops sync.Mutex

	mu       sync.Mutex
	running  bool
	paused   bool
	gen      int
	cancel   context.CancelFunc
	done     chan struct{}
	lastFire time.Time
	baseCtx  context.Context
}

func NewMonitor(dev audio.Device, det Detector, onWake func(), opts ...Option) *Monitor {
	m := &Monitor{
		dev:      dev,
		det:      det,
		onWake:   onWake,
		debounce: DefaultDebounce,
		now:      time.Now,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start acquires the device and begins listening. A failed acquisition is
// returned and leaves the monitor stopped.
func (m *Monitor) Start(ctx context.Context) error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	running := m.running
	m.mu.Unlock()
	if running {
		return nil
	}

	src, err := m.dev.Acquire()
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.running = true
	m.paused = false
	m.baseCtx = ctx
	m.mu.Unlock()

	m.spawn(src)
	m.log.Info("wake monitor listening")
	return nil
}

// Pause stops the loop and releases the device. Pausing a stopped or already
// paused monitor does nothing.
func (m *Monitor) Pause() error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if !m.running || m.paused {
		m.mu.Unlock()
		return nil
	}
	m.paused = true
	m.mu.Unlock()

	m.halt()
	return m.dev.Release()
}

// Resume re-acquires the device and restarts the loop with the same detector.
// It is a no-op unless the monitor is running and paused. If the device can
// not be re-acquired the monitor stops, the error goes to the OnError callback
// and is returned.
func (m *Monitor) Resume() error {
	err := m.resume()
	if err != nil {
		m.log.Error("wake monitor stopped", "err", err)
		if m.onError != nil {
			m.onError(err)
		}
	}
	return err
}

func (m *Monitor) resume() error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	if !m.running || !m.paused {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	src, err := m.dev.Acquire()
	if err != nil {
		m.mu.Lock()
		m.running = false
		m.paused = false
		m.mu.Unlock()
		return err
	}

	if r, ok := m.det.(Resetter); ok {
		r.Reset()
	}

	m.mu.Lock()
	m.paused = false
	m.mu.Unlock()

	m.spawn(src)
	return nil
}

// Stop ends the loop and releases the device. It is safe to call at any time
// and more than once.
func (m *Monitor) Stop() error {
	m.ops.Lock()
	defer m.ops.Unlock()

	m.mu.Lock()
	m.running = false
	m.paused = false
	m.mu.Unlock()

	m.halt()
	return m.dev.Release()
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running && m.paused
}

func (m *Monitor) spawn(src audio.FrameSource) {
	m.mu.Lock()
	parent := m.baseCtx
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	m.gen++
	gen := m.gen
	m.cancel = cancel
	done := make(chan struct{})
	m.done = done
	m.mu.Unlock()

	go func() {
		defer close(done)
		m.loop(ctx, gen, src)
	}()
}

// halt cancels the current loop and waits for it to return.
func (m *Monitor) halt() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (m *Monitor) loop(ctx context.Context, gen int, src audio.FrameSource) {
	for {
		frame, err := src.ReadFrame(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			m.fail(gen, err)
			return
		}

		hit, err := m.det.Process(frame)
		if err != nil {
			m.fail(gen, err)
			return
		}
		if !hit {
			continue
		}

		if !m.accept() {
			m.log.Debug("wake detection debounced")
			m.metrics.RecordWake(ctx, false)
			continue
		}

		m.metrics.RecordWake(ctx, true)
		m.log.Info("wake word detected")
		if m.onWake != nil {
			// The callback pauses this monitor, which waits for the loop.
			go m.onWake()
		}
	}
}

// accept applies the debounce window.
func (m *Monitor) accept() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastFire.IsZero() && now.Sub(m.lastFire) < m.debounce {
		return false
	}
	m.lastFire = now
	return true
}

// fail tears the monitor down after a loop error, unless a Pause or Stop has
// already superseded this loop.
func (m *Monitor) fail(gen int, err error) {
	m.mu.Lock()
	current := m.running && !m.paused && m.gen == gen
	cancel := m.cancel
	if current {
		m.running = false
		m.cancel, m.done = nil, nil
	}
	m.mu.Unlock()

	if !current {
		return
	}
	cancel()

	m.log.Error("wake monitor stopped", "err", err)
	if rerr := m.dev.Release(); rerr != nil {
		m.log.Warn("release after wake failure", "err", rerr)
	}
	if m.onError != nil {
		m.onError(err)
	}
}
