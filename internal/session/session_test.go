package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"voxgit/internal/capture"
	"voxgit/internal/gate"
	"voxgit/internal/intent"
	"voxgit/internal/learn"
	"voxgit/internal/llm/mock"
	"voxgit/internal/plan"
	"voxgit/internal/repo"
	"voxgit/internal/shell"
	"voxgit/internal/voice"
	"voxgit/pkg/stt"
)

type fakeMonitor struct {
	mu                             sync.Mutex
	starts, pauses, resumes, stops int
	startErr, resumeErr            error
}

func (m *fakeMonitor) Start(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.starts++
	return m.startErr
}

func (m *fakeMonitor) Pause() error { m.mu.Lock(); m.pauses++; m.mu.Unlock(); return nil }
func (m *fakeMonitor) Resume() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resumes++
	return m.resumeErr
}
func (m *fakeMonitor) Stop() error { m.mu.Lock(); m.stops++; m.mu.Unlock(); return nil }

func (m *fakeMonitor) counts() (pauses, resumes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pauses, m.resumes
}

type fakeCapturer struct {
	text  string
	err   error
	block chan struct{} // when set, Capture waits for it to close
	calls int
	mu    sync.Mutex

	// speaker, when set, has its stop count sampled at every capture.
	speaker        *fakeSpeaker
	stopsAtCapture []int
}

func (c *fakeCapturer) Capture(ctx context.Context, _ stt.Request) (string, error) {
	var stops int
	if c.speaker != nil {
		stops = c.speaker.stopCount()
	}
	c.mu.Lock()
	c.calls++
	c.stopsAtCapture = append(c.stopsAtCapture, stops)
	block := c.block
	c.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return c.text, c.err
}

type fakeRunner struct {
	mu       sync.Mutex
	commands []string
}

func (r *fakeRunner) Run(_ context.Context, command, _ string, _ time.Duration) (shell.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.commands = append(r.commands, command)
	return shell.Result{Stdout: "On branch main\nnothing to commit\n"}, nil
}

func (r *fakeRunner) ran() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.commands...)
}

type fakeRepos struct{ root string }

func (f fakeRepos) Snapshot(_ context.Context, root string) (repo.Snapshot, error) {
	return repo.Snapshot{WorkspaceRoot: f.root, GitRoot: f.root, Branch: "main", IsClean: true, UpdatedAt: time.Now()}, nil
}

type fakePrompter struct {
	mu        sync.Mutex
	answer    bool
	low, high []string

	// When set, a prompt signals entered and waits for release.
	entered chan struct{}
	release chan struct{}
}

func (p *fakePrompter) ConfirmLow(_ context.Context, msg string) bool {
	p.mu.Lock()
	p.low = append(p.low, msg)
	p.mu.Unlock()
	return p.wait()
}

func (p *fakePrompter) ConfirmHigh(_ context.Context, msg string) bool {
	p.mu.Lock()
	p.high = append(p.high, msg)
	p.mu.Unlock()
	return p.wait()
}

func (p *fakePrompter) wait() bool {
	if p.entered != nil {
		p.entered <- struct{}{}
		<-p.release
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answer
}

type fakeSpeaker struct {
	mu    sync.Mutex
	said  []string
	stops int
}

func (s *fakeSpeaker) Speak(text string) { s.mu.Lock(); s.said = append(s.said, text); s.mu.Unlock() }
func (s *fakeSpeaker) Stop()             { s.mu.Lock(); s.stops++; s.mu.Unlock() }

func (s *fakeSpeaker) stopCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stops
}

func (s *fakeSpeaker) last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.said) == 0 {
		return ""
	}
	return s.said[len(s.said)-1]
}

type stateLog struct {
	mu     sync.Mutex
	states []voice.State
}

func (l *stateLog) observe(s voice.Snapshot) {
	l.mu.Lock()
	l.states = append(l.states, s.State)
	l.mu.Unlock()
}

func (l *stateLog) saw(s voice.State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, got := range l.states {
		if got == s {
			return true
		}
	}
	return false
}

type harness struct {
	sess     *Session
	monitor  *fakeMonitor
	capturer *fakeCapturer
	llm      *mock.Provider
	runner   *fakeRunner
	prompter *fakePrompter
	speaker  *fakeSpeaker
	learn    *learn.Context
	gate     *gate.Gate
	states   *stateLog
}

func newHarness(t *testing.T, transcript string, replies ...string) *harness {
	t.Helper()
	return newHarnessWith(t, Config{LearningMode: true, Threshold: intent.DefaultThreshold}, transcript, replies...)
}

func newHarnessWith(t *testing.T, cfg Config, transcript string, replies ...string) *harness {
	t.Helper()
	root := t.TempDir()
	cfg.Workspace = root

	h := &harness{
		monitor:  &fakeMonitor{},
		capturer: &fakeCapturer{text: transcript},
		llm:      &mock.Provider{Responses: replies},
		runner:   &fakeRunner{},
		prompter: &fakePrompter{},
		speaker:  &fakeSpeaker{},
		states:   &stateLog{},
	}
	h.learn = learn.New(h.llm)
	h.gate = gate.New(h.runner, fakeRepos{root}, gate.WithOutputSink(h.learn))

	machine := voice.NewMachine(nil)
	machine.Subscribe(h.states.observe)

	h.sess = New(cfg, Deps{
		Machine:  machine,
		Monitor:  h.monitor,
		Capturer: h.capturer,
		LLM:      h.llm,
		Planner:  plan.NewPlanner(h.llm, plan.WithMirror(h.learn)),
		Gate:     h.gate,
		Learn:    h.learn,
		Prompter: h.prompter,
		Repos:    fakeRepos{root},
		Speaker:  h.speaker,
	})

	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	return h
}

func TestSession_CheckStatus(t *testing.T) {
	h := newHarness(t, "check status",
		`{"type":"command","confidence":0.95}`,
		`{"command":"git status","risk":"low","explanation":"Show the working tree."}`,
	)

	ran, err := h.sess.Trigger(context.Background())
	if err != nil || !ran {
		t.Fatalf("Trigger = %v, %v", ran, err)
	}

	if got := h.runner.ran(); len(got) != 1 || got[0] != "git status" {
		t.Fatalf("commands = %q", got)
	}
	if len(h.prompter.low)+len(h.prompter.high) != 0 {
		t.Error("low-risk plan asked for confirmation")
	}
	if got := h.sess.Snapshot(); got.State != voice.WakeListening || got.LastHeardText != "check status" {
		t.Errorf("snapshot = %+v", got)
	}
	for _, s := range []voice.State{voice.CommandListening, voice.Processing} {
		if !h.states.saw(s) {
			t.Errorf("never entered %s", s)
		}
	}
	if p, r := h.monitor.counts(); p != 1 || r != 1 {
		t.Errorf("pauses=%d resumes=%d, want 1/1", p, r)
	}
	if !strings.HasPrefix(h.speaker.last(), "Done. On branch main") {
		t.Errorf("spoke %q", h.speaker.last())
	}

	lc := h.learn.Snapshot()
	if lc.LastTranscript != "check status" || lc.LastPlan == nil || lc.LastPlan.Command != "git status" {
		t.Errorf("learning context = %+v", lc)
	}
	if !strings.Contains(lc.LastCommandOutput, "On branch main") {
		t.Errorf("command output not recorded: %q", lc.LastCommandOutput)
	}
	if h.gate.LastVerified() != "git status" {
		t.Errorf("LastVerified = %q", h.gate.LastVerified())
	}

	rep := h.sess.LastReport()
	if rep.Intent != intent.Command || rep.Result == nil || rep.Result.Outcome != gate.Success {
		t.Errorf("report = %+v", rep)
	}
}

func TestSession_ResetEverythingDeclined(t *testing.T) {
	h := newHarness(t, "reset everything",
		`{"type":"command","confidence":0.9}`,
		`{"command":"git reset --hard HEAD && git clean -fd","risk":"high","explanation":"Discard all local changes."}`,
	)
	h.prompter.answer = false

	if _, err := h.sess.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}

	if got := h.runner.ran(); len(got) != 0 {
		t.Fatalf("declined plan spawned %q", got)
	}
	if len(h.prompter.high) != 1 || len(h.prompter.low) != 0 {
		t.Fatalf("prompts low=%v high=%v", h.prompter.low, h.prompter.high)
	}
	if !h.states.saw(voice.AwaitingConfirmation) {
		t.Error("never entered awaiting_confirmation")
	}
	if _, ok := h.gate.Pending(); ok {
		t.Error("declined plan still staged")
	}
	if h.sess.Snapshot().State != voice.WakeListening {
		t.Errorf("state = %s", h.sess.Snapshot().State)
	}
	if !h.sess.LastReport().Declined {
		t.Error("report not marked declined")
	}
}

func TestSession_ConfirmedMediumRuns(t *testing.T) {
	h := newHarness(t, "commit my work",
		`{"type":"command","confidence":0.9}`,
		`{"command":"git commit -am wip","risk":"medium","explanation":"Commit tracked changes."}`,
	)
	h.prompter.answer = true

	if _, err := h.sess.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(h.prompter.low) != 1 || len(h.prompter.high) != 0 {
		t.Fatalf("prompts low=%v high=%v", h.prompter.low, h.prompter.high)
	}
	if got := h.runner.ran(); len(got) != 1 || got[0] != "git commit -am wip" {
		t.Fatalf("commands = %q", got)
	}
	if _, ok := h.gate.Pending(); ok {
		t.Error("plan still staged after run")
	}
}

func TestSession_UnparseableClassifierIsQuestion(t *testing.T) {
	h := newHarness(t, "what is a rebase",
		"hmm, hard to say",
		"A rebase replays your commits on top of another branch.",
	)

	if _, err := h.sess.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	if got := h.runner.ran(); len(got) != 0 {
		t.Fatalf("question spawned %q", got)
	}
	if h.speaker.last() != "A rebase replays your commits on top of another branch." {
		t.Errorf("spoke %q", h.speaker.last())
	}
	if qa := h.learn.Snapshot().RecentQA; len(qa) != 1 || qa[0].Question != "what is a rebase" {
		t.Errorf("RecentQA = %+v", qa)
	}
	if h.sess.Snapshot().State != voice.WakeListening {
		t.Errorf("state = %s", h.sess.Snapshot().State)
	}
}

func TestSession_EmptyTranscriptRoutesNothing(t *testing.T) {
	h := newHarness(t, "")
	h.capturer.err = stt.ErrEmptyTranscript

	ran, err := h.sess.Trigger(context.Background())
	if err != nil || !ran {
		t.Fatalf("Trigger = %v, %v", ran, err)
	}
	if h.llm.CallCount() != 0 {
		t.Fatalf("LLM called %d times for an empty transcript", h.llm.CallCount())
	}
	if h.sess.capture.Busy() {
		t.Error("capture guard still held")
	}
	if _, r := h.monitor.counts(); r != 1 {
		t.Errorf("monitor resumed %d times", r)
	}
	if h.sess.Snapshot().State != voice.WakeListening {
		t.Errorf("state = %s", h.sess.Snapshot().State)
	}
}

func TestSession_CaptureErrorIsReported(t *testing.T) {
	h := newHarness(t, "")
	h.capturer.err = errors.New("stt helper exited with status 1")

	if _, err := h.sess.Trigger(context.Background()); err == nil {
		t.Fatal("want capture error")
	}
	if h.sess.capture.Busy() {
		t.Error("capture guard still held")
	}
	if h.sess.Snapshot().State != voice.WakeListening {
		t.Errorf("state = %s", h.sess.Snapshot().State)
	}
}

func TestSession_ConcurrentTriggersSingleCapture(t *testing.T) {
	h := newHarness(t, "check status",
		`{"type":"command","confidence":0.95}`,
		`{"command":"git status","risk":"low","explanation":"Show status."}`,
	)
	h.capturer.block = make(chan struct{})

	first := make(chan bool)
	go func() {
		ran, _ := h.sess.Trigger(context.Background())
		first <- ran
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !h.sess.capture.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("first capture never started")
		}
		time.Sleep(time.Millisecond)
	}

	for range 5 {
		if ran, err := h.sess.Trigger(context.Background()); ran || err != nil {
			t.Fatalf("concurrent Trigger = %v, %v; want dropped", ran, err)
		}
	}

	close(h.capturer.block)
	if !<-first {
		t.Fatal("first trigger did not run")
	}
	if h.capturer.calls != 1 {
		t.Errorf("captures = %d, want 1", h.capturer.calls)
	}
	if got := h.runner.ran(); len(got) != 1 {
		t.Errorf("commands = %q", got)
	}
}

func TestSession_LearningOffSkipsClassifier(t *testing.T) {
	h := newHarness(t, "show the log",
		`{"command":"git log --oneline -5","risk":"low","explanation":"Recent commits."}`,
	)
	h.sess.router = intent.NewRouter(h.llm, h.sess.handleCommand, h.sess.handleQuestion)

	if _, err := h.sess.Trigger(context.Background()); err != nil {
		t.Fatal(err)
	}
	if h.llm.CallCount() != 1 || h.llm.LastRequest().Purpose != "plan" {
		t.Fatalf("calls = %d, last purpose %q", h.llm.CallCount(), h.llm.LastRequest().Purpose)
	}
	if got := h.runner.ran(); len(got) != 1 || got[0] != "git log --oneline -5" {
		t.Fatalf("commands = %q", got)
	}
}

func TestSession_Ask(t *testing.T) {
	h := newHarness(t, "",
		`{"type":"question","confidence":0.9}`,
		"HEAD points at the commit you have checked out.",
	)

	rep, err := h.sess.Ask(context.Background(), "  what is HEAD ")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Intent != intent.Question || rep.Answer != "HEAD points at the commit you have checked out." || rep.Transcript != "what is HEAD" {
		t.Fatalf("report = %+v", rep)
	}
	if h.capturer.calls != 0 {
		t.Error("Ask used the microphone")
	}
}

func TestSession_StartFailure(t *testing.T) {
	mon := &fakeMonitor{startErr: errors.New("device busy")}
	l := learn.New(&mock.Provider{})
	s := New(Config{Workspace: t.TempDir()}, Deps{
		Monitor:  mon,
		Capturer: &fakeCapturer{},
		LLM:      &mock.Provider{},
		Planner:  plan.NewPlanner(&mock.Provider{}),
		Gate:     gate.New(&fakeRunner{}, nil),
		Learn:    l,
		Prompter: &fakePrompter{},
		Repos:    fakeRepos{t.TempDir()},
		Speaker:  &fakeSpeaker{},
	})

	if err := s.Start(context.Background()); err == nil {
		t.Fatal("want start error")
	}
	if s.Snapshot().State != voice.Off {
		t.Errorf("state = %s, want off", s.Snapshot().State)
	}
	if _, err := s.Trigger(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Trigger while off = %v", err)
	}
}

func TestSession_Stop(t *testing.T) {
	h := newHarness(t, "")
	h.gate.Stage(plan.Plan{Command: "git push --force", Risk: plan.High})
	h.learn.AddTurn(learn.Turn{Question: "q", Answer: "a"})

	h.sess.Stop()
	h.sess.Stop()

	if h.sess.Snapshot().State != voice.Off {
		t.Errorf("state = %s", h.sess.Snapshot().State)
	}
	if _, ok := h.gate.Pending(); ok {
		t.Error("staged plan survived Stop")
	}
	if len(h.learn.Snapshot().RecentQA) != 0 {
		t.Error("learning context survived Stop")
	}
	if h.monitor.stops != 2 || h.speaker.stops < 2 {
		t.Errorf("monitor stops=%d speaker stops=%d", h.monitor.stops, h.speaker.stops)
	}
}

func TestSession_StopDuringCaptureDiscardsTranscript(t *testing.T) {
	h := newHarness(t, "push everything",
		`{"type":"command","confidence":0.95}`,
	)
	h.capturer.block = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.sess.Trigger(context.Background())
	}()
	deadline := time.Now().Add(2 * time.Second)
	for !h.sess.capture.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("capture never started")
		}
		time.Sleep(time.Millisecond)
	}

	h.sess.Stop()
	close(h.capturer.block)
	<-done

	if h.llm.CallCount() != 0 {
		t.Errorf("transcript routed after Stop: %d LLM calls", h.llm.CallCount())
	}
	if h.sess.Snapshot().State != voice.Off {
		t.Errorf("state = %s, want off", h.sess.Snapshot().State)
	}
}

func TestSummarize(t *testing.T) {
	tests := []struct {
		res  gate.Result
		want string
	}{
		{gate.Result{Outcome: gate.Success}, "Done."},
		{gate.Result{Outcome: gate.Success, Stdout: "\n  main\n  dev\n"}, "Done. main"},
		{gate.Result{Outcome: gate.Timeout}, "The command timed out."},
		{gate.Result{Outcome: gate.Failure, ExitCode: 128, Stderr: "fatal: bad revision\n"}, "The command failed with exit code 128. fatal: bad revision"},
	}
	for _, tc := range tests {
		if got := summarize(tc.res); got != tc.want {
			t.Errorf("summarize(%+v) = %q, want %q", tc.res, got, tc.want)
		}
	}
}

func waitBusy(t *testing.T, h *harness) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !h.sess.capture.Busy() {
		if time.Now().After(deadline) {
			t.Fatal("capture never started")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestSession_WakeStopsSpeechBeforeCapture(t *testing.T) {
	h := newHarness(t, "check status",
		`{"type":"command","confidence":0.95}`,
		`{"command":"git status","risk":"low","explanation":"Show status."}`,
	)
	h.capturer.speaker = h.speaker
	h.capturer.block = make(chan struct{})

	first := make(chan error, 1)
	go func() {
		_, err := h.sess.Trigger(context.Background())
		first <- err
	}()
	waitBusy(t, h)

	deadline := time.Now().Add(2 * time.Second)
	for {
		h.capturer.mu.Lock()
		n := h.capturer.calls
		h.capturer.mu.Unlock()
		if n == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("capture never reached the capturer")
		}
		time.Sleep(time.Millisecond)
	}

	h.capturer.mu.Lock()
	stopsAtCapture := h.capturer.stopsAtCapture[0]
	h.capturer.mu.Unlock()
	if stopsAtCapture != 1 {
		t.Fatalf("speaker stopped %d times before capture, want 1", stopsAtCapture)
	}

	// Dropped input leaves playback alone.
	before := h.speaker.stopCount()
	for range 3 {
		if ran, err := h.sess.Trigger(context.Background()); ran || err != nil {
			t.Fatalf("Trigger during capture = %v, %v", ran, err)
		}
	}
	if _, err := h.sess.Ask(context.Background(), "what is HEAD"); !errors.Is(err, ErrBusy) {
		t.Fatalf("Ask during capture = %v, want ErrBusy", err)
	}
	if got := h.speaker.stopCount(); got != before {
		t.Fatalf("dropped input stopped speech: %d stops, want %d", got, before)
	}
	if st := h.sess.Snapshot().State; st != voice.CommandListening {
		t.Fatalf("state during capture = %s", st)
	}

	close(h.capturer.block)
	if err := <-first; err != nil {
		t.Fatal(err)
	}
	if got := h.runner.ran(); len(got) != 1 {
		t.Fatalf("commands = %q", got)
	}
}

func TestSession_AskWhilePlanAwaitsConfirmation(t *testing.T) {
	h := newHarness(t, "reset everything",
		`{"type":"command","confidence":0.9}`,
		`{"command":"git reset --hard HEAD","risk":"high","explanation":"Discard local changes."}`,
		`{"type":"question","confidence":0.9}`,
		"A rebase replays commits.",
	)
	h.prompter.entered = make(chan struct{}, 1)
	h.prompter.release = make(chan struct{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.sess.Trigger(context.Background())
	}()
	<-h.prompter.entered

	if st := h.sess.Snapshot().State; st != voice.AwaitingConfirmation {
		t.Fatalf("state = %s, want awaiting_confirmation", st)
	}
	calls := h.llm.CallCount()

	for _, text := range []string{"what does rebase do?", "push my branch"} {
		if _, err := h.sess.Ask(context.Background(), text); !errors.Is(err, ErrBusy) {
			t.Fatalf("Ask(%q) = %v, want ErrBusy", text, err)
		}
	}
	if st := h.sess.Snapshot().State; st != voice.AwaitingConfirmation {
		t.Fatalf("state after Ask = %s, want awaiting_confirmation", st)
	}
	if p, ok := h.gate.Pending(); !ok || p.Command != "git reset --hard HEAD" {
		t.Fatalf("staged plan = %+v, %v", p, ok)
	}
	if h.llm.CallCount() != calls {
		t.Fatalf("Ask reached the assistant while busy: %d calls, want %d", h.llm.CallCount(), calls)
	}

	close(h.prompter.release)
	<-done
	if got := h.runner.ran(); len(got) != 0 {
		t.Fatalf("declined plan spawned %q", got)
	}
	if st := h.sess.Snapshot().State; st != voice.WakeListening {
		t.Fatalf("state = %s", st)
	}

	rep, err := h.sess.Ask(context.Background(), "what does rebase do?")
	if err != nil || rep.Answer != "A rebase replays commits." {
		t.Fatalf("Ask after confirmation = %+v, %v", rep, err)
	}
}

func TestSession_MonitorLostStopsSession(t *testing.T) {
	h := newHarness(t, "check status", `{"type":"command","confidence":0.95}`)
	h.monitor.resumeErr = errors.New("device unplugged")

	_, err := h.sess.Trigger(context.Background())
	if !errors.Is(err, capture.ErrMonitorLost) {
		t.Fatalf("Trigger = %v, want monitor lost", err)
	}
	if st := h.sess.Snapshot().State; st != voice.Off {
		t.Fatalf("state = %s, want off", st)
	}
	if h.monitor.stops != 1 {
		t.Errorf("monitor stops = %d, want 1", h.monitor.stops)
	}
	if h.llm.CallCount() != 0 {
		t.Errorf("transcript routed without a wake monitor")
	}
	if _, err := h.sess.Trigger(context.Background()); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Trigger after loss = %v", err)
	}
}

func TestSession_ThresholdPassedThrough(t *testing.T) {
	tests := []struct {
		name      string
		threshold float64
		replies   []string
		wantRun   bool
	}{
		{"zero accepts weak commands", 0, []string{
			`{"type":"command","confidence":0.1}`,
			`{"command":"git status","risk":"low","explanation":"Show status."}`,
		}, true},
		{"strict threshold demotes", 0.95, []string{
			`{"type":"command","confidence":0.9}`,
			"Say what you would like to run.",
		}, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarnessWith(t, Config{LearningMode: true, Threshold: tc.threshold}, "status", tc.replies...)

			if _, err := h.sess.Trigger(context.Background()); err != nil {
				t.Fatal(err)
			}
			if got := len(h.runner.ran()) == 1; got != tc.wantRun {
				t.Fatalf("ran = %v, want %v (commands %q)", got, tc.wantRun, h.runner.ran())
			}
		})
	}
}
