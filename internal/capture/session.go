// Package capture runs one speech-capture cycle: take the microphone from the
// wake monitor, record and transcribe one utterance, give the microphone back,
// and hand the transcript on. At most one cycle runs at a time; triggers that
// arrive meanwhile are dropped.
package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"voxgit/internal/flight"
	"voxgit/internal/observe"
	"voxgit/internal/voice"
	"voxgit/pkg/stt"
)

// Monitor is the current microphone holder; see wake.Monitor.
type Monitor interface {
	Pause() error
	Resume() error
}

// Ducker lowers other audio while listening; see audio.Ducker.
type Ducker interface {
	Duck(ctx context.Context) error
	Restore(ctx context.Context) error
}

// TranscriptSink receives every captured transcript; see learn.Context.
type TranscriptSink interface {
	SetTranscript(text string)
}

// Handler routes a transcript. It runs while the capture guard is still held.
type Handler func(ctx context.Context, transcript string)

// ErrMonitorLost means the wake monitor could not take the microphone back
// after a capture; nothing is listening for the wake word any more.
var ErrMonitorLost = errors.New("capture: wake monitor lost")

type Option func(*Session)

func WithDucker(d Ducker) Option {
	return func(s *Session) { s.ducker = d }
}

// WithOnWake sets a hook that runs once a cycle has won the guard, before
// the microphone changes hands.
func WithOnWake(fn func(ctx context.Context)) Option {
	return func(s *Session) { s.onWake = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

type Session struct {
	guard flight.Guard

	machine  *voice.Machine
	monitor  Monitor
	capturer stt.Capturer
	sink     TranscriptSink
	handler  Handler
	req      stt.Request

	ducker  Ducker
	onWake  func(ctx context.Context)
	log     *slog.Logger
	metrics *observe.Metrics
}

func New(machine *voice.Machine, monitor Monitor, capturer stt.Capturer, sink TranscriptSink, handler Handler, req stt.Request, opts ...Option) *Session {
	s := &Session{
		machine:  machine,
		monitor:  monitor,
		capturer: capturer,
		sink:     sink,
		handler:  handler,
		req:      req,
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Busy reports whether a cycle is in flight.
func (s *Session) Busy() bool {
	return s.guard.Busy()
}

// Run performs one cycle. It returns false without doing anything when another
// cycle holds the guard or the session is off. A returned error means the
// cycle failed; the guard is released either way and the monitor resumed
// unless the error is ErrMonitorLost.
func (s *Session) Run(ctx context.Context) (bool, error) {
	release, ok := s.acquire(ctx)
	if !ok {
		return false, nil
	}
	defer release()

	if !s.machine.WakeUnlessOff(time.Now()) {
		return false, nil
	}
	if s.onWake != nil {
		s.onWake(ctx)
	}

	start := time.Now()
	text, err := s.listen(ctx)

	switch {
	case errors.Is(err, ErrMonitorLost):
		s.metrics.RecordCapture(ctx, "error", time.Since(start))
		return true, err

	case errors.Is(err, stt.ErrEmptyTranscript):
		s.log.Info("nothing heard")
		s.metrics.RecordCapture(ctx, "empty", time.Since(start))
		s.machine.TransitionUnlessOff(voice.WakeListening)
		return true, nil

	case err != nil:
		s.metrics.RecordCapture(ctx, "error", time.Since(start))
		s.machine.TransitionUnlessOff(voice.WakeListening)
		return true, err
	}

	s.metrics.RecordCapture(ctx, "transcript", time.Since(start))

	if s.machine.State() == voice.Off {
		s.log.Debug("session stopped during capture, transcript discarded")
		return true, nil
	}

	s.log.Info("heard", "text", text)
	s.machine.Heard(text)
	s.sink.SetTranscript(text)

	if s.handler != nil {
		s.handler(ctx, text)
	}
	return true, nil
}

// Dispatch hands typed text to the handler under the same guard as Run, so it
// never overlaps a capture or a cycle still waiting for confirmation. It
// reports false when the text was dropped.
func (s *Session) Dispatch(ctx context.Context, text string) bool {
	release, ok := s.acquire(ctx)
	if !ok {
		return false
	}
	defer release()

	if s.machine.State() == voice.Off {
		return false
	}
	s.machine.Heard(text)
	s.sink.SetTranscript(text)
	if s.handler != nil {
		s.handler(ctx, text)
	}
	return true
}

func (s *Session) acquire(ctx context.Context) (func(), bool) {
	release, ok := s.guard.TryAcquire()
	if !ok {
		s.log.Debug("capture already in flight, input dropped")
		s.metrics.RecordDropped(ctx, "capture")
	}
	return release, ok
}

// listen owns the microphone hand-off. The monitor is resumed on every path.
func (s *Session) listen(ctx context.Context) (text string, err error) {
	defer func() {
		if rerr := s.monitor.Resume(); rerr != nil {
			err = errors.Join(err, fmt.Errorf("%w: %w", ErrMonitorLost, rerr))
		}
	}()

	if err := s.monitor.Pause(); err != nil {
		return "", fmt.Errorf("capture: pause wake monitor: %w", err)
	}

	if s.ducker != nil {
		if derr := s.ducker.Duck(ctx); derr != nil {
			s.log.Warn("duck other audio", "err", derr)
		}
		defer func() {
			if derr := s.ducker.Restore(context.WithoutCancel(ctx)); derr != nil {
				s.log.Warn("restore other audio", "err", derr)
			}
		}()
	}

	if s.machine.State() == voice.Off {
		return "", stt.ErrEmptyTranscript
	}

	text, err = s.capturer.Capture(ctx, s.req)
	if err != nil && !errors.Is(err, stt.ErrEmptyTranscript) {
		return "", fmt.Errorf("capture: %w", err)
	}
	if err == nil && strings.TrimSpace(text) == "" {
		return "", stt.ErrEmptyTranscript
	}
	return strings.TrimSpace(text), err
}
