// Package session is the voice session orchestrator. It owns the state
// machine, the wake monitor and the capture cycle, and sequences every
// transcript through classification, planning, the risk gate and spoken
// feedback.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"voxgit/internal/capture"
	"voxgit/internal/confirm"
	"voxgit/internal/flight"
	"voxgit/internal/gate"
	"voxgit/internal/intent"
	"voxgit/internal/learn"
	"voxgit/internal/llm"
	"voxgit/internal/notify"
	"voxgit/internal/observe"
	"voxgit/internal/plan"
	"voxgit/internal/repo"
	"voxgit/internal/voice"
	"voxgit/pkg/stt"
	"voxgit/pkg/util"
)

var (
	ErrNotRunning = errors.New("session: not running")
	// ErrBusy means a capture or an earlier request still holds the session.
	ErrBusy = errors.New("session: busy")
)

// WakeMonitor is the background wake-word listener; see wake.Monitor.
type WakeMonitor interface {
	Start(ctx context.Context) error
	Pause() error
	Resume() error
	Stop() error
}

type Planner interface {
	Plan(ctx context.Context, transcript string, snap repo.Snapshot) (plan.Plan, error)
}

// Speaker plays text without blocking; see tts.Player.
type Speaker interface {
	Speak(text string)
	Stop()
}

type Announcer interface {
	Announce(ctx context.Context, level notify.Level, title, body string)
}

type Chime interface {
	Play(ctx context.Context) error
}

// Publisher forwards events to external observers; see bus.Publisher.
type Publisher interface {
	Publish(kind string, payload any) bool
}

type Config struct {
	Workspace    string
	Capture      stt.Request
	LearningMode bool
	// Threshold is the confidence a command classification needs; zero
	// accepts every command classification.
	Threshold float64
}

type Deps struct {
	// Machine is created when nil.
	Machine  *voice.Machine
	Monitor  WakeMonitor
	Capturer stt.Capturer
	// LLM classifies transcripts.
	LLM      llm.Provider
	Planner  Planner
	Gate     *gate.Gate
	Learn    *learn.Context
	Prompter confirm.Prompter
	Repos    gate.RepoSource
	Speaker  Speaker

	// Optional.
	Ducker    capture.Ducker
	Announcer Announcer
	Chime     Chime
	Events    Publisher
	Logger    *slog.Logger
	Metrics   *observe.Metrics
}

// Report describes how the last routed transcript was handled.
type Report struct {
	Transcript string       `json:"transcript"`
	Intent     intent.Kind  `json:"intent"`
	Plan       *plan.Plan   `json:"plan,omitempty"`
	Result     *gate.Result `json:"result,omitempty"`
	Declined   bool         `json:"declined,omitempty"`
	Answer     string       `json:"answer,omitempty"`
	Error      string       `json:"error,omitempty"`
}

type Session struct {
	cfg     Config
	machine *voice.Machine
	monitor WakeMonitor
	capture *capture.Session
	router  *intent.Router
	planner Planner
	gate    *gate.Gate
	learn   *learn.Context
	confirm confirm.Prompter
	repos   gate.RepoSource
	speaker Speaker

	announcer Announcer
	chime     Chime
	events    Publisher
	log       *slog.Logger
	metrics   *observe.Metrics

	autoRoute flight.Guard

	mu      sync.Mutex
	baseCtx context.Context
	last    Report
}

func New(cfg Config, d Deps) *Session {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	machine := d.Machine
	if machine == nil {
		machine = voice.NewMachine(log)
	}
	s := &Session{
		cfg:       cfg,
		machine:   machine,
		monitor:   d.Monitor,
		planner:   d.Planner,
		gate:      d.Gate,
		learn:     d.Learn,
		confirm:   d.Prompter,
		repos:     d.Repos,
		speaker:   d.Speaker,
		announcer: d.Announcer,
		chime:     d.Chime,
		events:    d.Events,
		log:       log,
		metrics:   d.Metrics,
		baseCtx:   context.Background(),
	}

	s.router = intent.NewRouter(d.LLM, s.handleCommand, s.handleQuestion,
		intent.WithLearningMode(cfg.LearningMode),
		intent.WithThreshold(cfg.Threshold),
		intent.WithLogger(log),
		intent.WithMetrics(d.Metrics),
	)

	capOpts := []capture.Option{
		capture.WithOnWake(s.wakeFeedback),
		capture.WithLogger(log),
		capture.WithMetrics(d.Metrics),
	}
	if d.Ducker != nil {
		capOpts = append(capOpts, capture.WithDucker(d.Ducker))
	}
	s.capture = capture.New(machine, d.Monitor, d.Capturer, d.Learn, s.route, cfg.Capture, capOpts...)

	if s.events != nil {
		machine.Subscribe(func(snap voice.Snapshot) { s.events.Publish("state", snap) })
	}
	return s
}

// Start begins wake-word listening.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.refreshRepo(ctx)
	s.machine.Transition(voice.WakeListening)

	if err := s.monitor.Start(ctx); err != nil {
		s.machine.Transition(voice.Off)
		return fmt.Errorf("session: start wake monitor: %w", err)
	}
	s.log.Info("session started", "workspace", s.cfg.Workspace)
	return nil
}

// Stop ends the session: listening stops, speech is cut off, a staged plan is
// discarded and the learning context is cleared. It is safe to call more than
// once.
func (s *Session) Stop() {
	if err := s.monitor.Stop(); err != nil {
		s.log.Warn("stop wake monitor", "err", err)
	}
	s.speaker.Stop()
	s.gate.Discard()
	s.learn.Reset()
	s.machine.Transition(voice.Off)
	if c, ok := s.confirm.(interface{ Cancel() }); ok {
		c.Cancel()
	}
	s.log.Info("session stopped")
}

// OnWake is the wake monitor callback.
func (s *Session) OnWake() {
	if _, err := s.Trigger(s.context()); err != nil {
		s.log.Warn("wake cycle failed", "err", err)
	}
}

// Trigger runs one capture cycle as if the wake word had been heard. It
// reports false when the trigger was dropped because a cycle is in flight.
// If the microphone can not be handed back to the wake monitor the session
// stops.
func (s *Session) Trigger(ctx context.Context) (bool, error) {
	if s.machine.State() == voice.Off {
		return false, ErrNotRunning
	}

	ran, err := s.capture.Run(ctx)
	switch {
	case errors.Is(err, capture.ErrMonitorLost):
		s.log.Error("wake monitor lost, stopping session", "err", err)
		s.Stop()
	case err != nil:
		s.metrics.RecordProviderError(ctx, "stt")
		s.announce(ctx, notify.Alert, "Could not hear you", err.Error())
	}
	return ran, err
}

// wakeFeedback runs once a capture cycle owns the session: speech still
// playing is cut off and the chime plays.
func (s *Session) wakeFeedback(ctx context.Context) {
	s.speaker.Stop()
	if s.chime != nil {
		if err := s.chime.Play(ctx); err != nil {
			s.log.Debug("chime", "err", err)
		}
	}
}

// Ask routes typed text as if it had been spoken and returns how it was
// handled. It fails with ErrBusy while a capture or an unconfirmed plan
// holds the session.
func (s *Session) Ask(ctx context.Context, text string) (Report, error) {
	if s.machine.State() == voice.Off {
		return Report{}, ErrNotRunning
	}
	text = intent.Normalize(text)
	if text == "" {
		return Report{}, errors.New("session: empty text")
	}

	if !s.capture.Dispatch(ctx, text) {
		if s.machine.State() == voice.Off {
			return Report{}, ErrNotRunning
		}
		return Report{}, ErrBusy
	}
	return s.LastReport(), nil
}

func (s *Session) Snapshot() voice.Snapshot {
	return s.machine.Snapshot()
}

func (s *Session) Pending() (plan.Plan, bool) {
	return s.gate.Pending()
}

func (s *Session) LastReport() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Session) Machine() *voice.Machine {
	return s.machine
}

func (s *Session) route(ctx context.Context, text string) {
	// Typed input arrives without a wake cycle.
	s.speaker.Stop()
	s.setReport(Report{Transcript: text})
	if err := s.router.Route(ctx, text); err != nil {
		s.log.Error("classification failed", "err", err)
		s.metrics.RecordProviderError(ctx, "llm")
		s.updateReport(func(r *Report) { r.Error = err.Error() })
		s.say("Sorry, I could not reach the assistant.")
		s.announce(ctx, notify.Alert, "Classification failed", err.Error())
		s.machine.TransitionUnlessOff(voice.WakeListening)
	}
}

func (s *Session) handleCommand(ctx context.Context, text string) {
	s.updateReport(func(r *Report) { r.Intent = intent.Command })

	release, ok := s.autoRoute.TryAcquire()
	if !ok {
		s.log.Debug("command already in flight, dropped", "text", text)
		s.metrics.RecordDropped(ctx, "auto_route")
		return
	}
	defer release()
	defer s.machine.TransitionUnlessOff(voice.WakeListening)

	snap := s.refreshRepo(ctx)

	p, err := s.planner.Plan(ctx, text, snap)
	if err != nil {
		s.log.Error("planning failed", "err", err)
		s.metrics.RecordProviderError(ctx, "llm")
		s.updateReport(func(r *Report) { r.Error = err.Error() })
		s.say("Sorry, I could not plan that.")
		s.announce(ctx, notify.Alert, "Planning failed", err.Error())
		return
	}
	s.updateReport(func(r *Report) { r.Plan = &p })
	s.publish("plan", p)

	var res gate.Result
	if !s.gate.RequiresConfirmation(p) {
		res, err = s.gate.Auto(ctx, p)
	} else {
		if !s.approve(ctx, p) {
			s.gate.Discard()
			s.log.Info("plan declined", "cmd", p.Command, "risk", p.Risk)
			s.updateReport(func(r *Report) { r.Declined = true })
			if s.machine.State() != voice.Off {
				s.say("Cancelled.")
			}
			return
		}
		if s.machine.State() == voice.Off {
			s.gate.Discard()
			return
		}
		s.machine.TransitionUnlessOff(voice.Processing)
		res, err = s.gate.RunConfirmed(ctx)
	}

	if err != nil && res.Outcome == "" {
		s.log.Error("execution refused", "cmd", p.Command, "err", err)
		s.updateReport(func(r *Report) { r.Error = err.Error() })
		s.say("I could not run that.")
		s.announce(ctx, notify.Alert, "Not executed", err.Error())
		return
	}

	s.updateReport(func(r *Report) { r.Result = &res })
	s.publish("result", res)
	s.say(summarize(res))

	level := notify.Info
	if res.Outcome != gate.Success {
		level = notify.Alert
	}
	s.announce(ctx, level, p.Command, string(res.Outcome))
}

// approve stages p and asks for confirmation while awaiting_confirmation.
func (s *Session) approve(ctx context.Context, p plan.Plan) bool {
	s.gate.Stage(p)
	s.machine.TransitionUnlessOff(voice.AwaitingConfirmation)

	msg := fmt.Sprintf("%s Run %s?", p.Explanation, p.Command)
	s.say(fmt.Sprintf("This is a %s risk command. %s", p.Risk, msg))
	s.announce(ctx, notify.Alert, "Confirm "+string(p.Risk)+" risk command", p.Command)

	if p.Risk == plan.High {
		return s.confirm.ConfirmHigh(ctx, msg)
	}
	return s.confirm.ConfirmLow(ctx, msg)
}

func (s *Session) handleQuestion(ctx context.Context, text string) {
	defer s.machine.TransitionUnlessOff(voice.WakeListening)
	s.updateReport(func(r *Report) { r.Intent = intent.Question })

	answer, err := s.learn.Answer(ctx, text)
	if err != nil {
		s.log.Error("answer failed", "err", err)
		s.metrics.RecordProviderError(ctx, "llm")
		s.updateReport(func(r *Report) { r.Error = err.Error() })
		s.say("Sorry, I do not have an answer right now.")
		s.announce(ctx, notify.Alert, "Answer failed", err.Error())
		return
	}

	s.updateReport(func(r *Report) { r.Answer = answer })
	s.publish("answer", answer)
	s.say(answer)
}

// refreshRepo takes a new snapshot for the gate and returns it. A failed
// inspection keeps at least the workspace root.
func (s *Session) refreshRepo(ctx context.Context) repo.Snapshot {
	snap, err := s.repos.Snapshot(ctx, s.cfg.Workspace)
	if err != nil {
		s.log.Warn("repo inspection failed", "err", err)
		snap = repo.Snapshot{WorkspaceRoot: s.cfg.Workspace, UpdatedAt: time.Now()}
	}
	s.gate.SetSnapshot(snap)
	return snap
}

func (s *Session) say(text string) {
	s.speaker.Speak(text)
}

func (s *Session) announce(ctx context.Context, level notify.Level, title, body string) {
	if s.announcer != nil {
		s.announcer.Announce(ctx, level, title, body)
	}
}

func (s *Session) publish(kind string, payload any) {
	if s.events != nil {
		s.events.Publish(kind, payload)
	}
}

func (s *Session) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *Session) setReport(r Report) {
	s.mu.Lock()
	s.last = r
	s.mu.Unlock()
}

func (s *Session) updateReport(fn func(*Report)) {
	s.mu.Lock()
	fn(&s.last)
	s.mu.Unlock()
}

const spokenOutputLimit = 200

func summarize(res gate.Result) string {
	switch res.Outcome {
	case gate.Success:
		if line := firstLine(res.Stdout); line != "" {
			return "Done. " + util.Clip(line, spokenOutputLimit)
		}
		return "Done."
	case gate.Timeout:
		return "The command timed out."
	default:
		msg := fmt.Sprintf("The command failed with exit code %d.", res.ExitCode)
		if line := firstLine(res.Stderr); line != "" {
			msg += " " + util.Clip(line, spokenOutputLimit)
		}
		return msg
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
