// Package gate decides whether a plan may run and runs it.
//
// Low-risk plans run through Auto. Medium and high plans must be staged and
// can only run through RunConfirmed, after the user has approved them; there
// is no other path to the shell.
package gate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"voxgit/internal/history"
	"voxgit/internal/observe"
	"voxgit/internal/plan"
	"voxgit/internal/repo"
	"voxgit/internal/shell"
)

// DefaultTimeout bounds one execution.
const DefaultTimeout = 30 * time.Second

var (
	ErrConfirmationRequired = errors.New("gate: plan requires confirmation")
	ErrEmptyPlan            = errors.New("gate: plan has no command")
	ErrNoWorkdir            = errors.New("gate: no usable working directory")
	ErrNothingStaged        = errors.New("gate: no staged plan")
)

type Outcome string

const (
	Success Outcome = "success"
	Failure Outcome = "failure"
	Timeout Outcome = "timeout"
)

type Result struct {
	Plan     plan.Plan     `json:"plan"`
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	TimedOut bool          `json:"timed_out"`
	Outcome  Outcome       `json:"outcome"`
	Duration time.Duration `json:"duration"`
	Workdir  string        `json:"workdir"`
}

// RepoSource refreshes the repository snapshot after a successful run.
type RepoSource interface {
	Snapshot(ctx context.Context, workspaceRoot string) (repo.Snapshot, error)
}

// OutputSink receives the output of every run; see learn.Context.
type OutputSink interface {
	SetCommandOutput(command string, exitCode int, stdout, stderr string)
}

// Recorder persists every run; see history.Store.
type Recorder interface {
	Record(ctx context.Context, e history.Entry) error
}

type Option func(*Gate)

func WithTimeout(d time.Duration) Option {
	return func(g *Gate) { g.timeout = d }
}

func WithOutputSink(s OutputSink) Option {
	return func(g *Gate) { g.output = s }
}

func WithHistory(r Recorder) Option {
	return func(g *Gate) { g.history = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.log = l }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(g *Gate) { g.metrics = m }
}

type Gate struct {
	runner  shell.Runner
	repos   RepoSource
	output  OutputSink
	history Recorder
	timeout time.Duration
	log     *slog.Logger
	metrics *observe.Metrics

	mu           sync.Mutex
	staged       *plan.Plan
	snapshot     repo.Snapshot
	lastVerified string
}

func New(runner shell.Runner, repos RepoSource, opts ...Option) *Gate {
	g := &Gate{
		runner:  runner,
		repos:   repos,
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// RequiresConfirmation reports whether p may only run after approval.
func (g *Gate) RequiresConfirmation(p plan.Plan) bool {
	return p.Risk != plan.Low
}

// Auto runs a low-risk plan.
func (g *Gate) Auto(ctx context.Context, p plan.Plan) (Result, error) {
	if g.RequiresConfirmation(p) {
		return Result{}, ErrConfirmationRequired
	}
	return g.execute(ctx, p)
}

// Stage holds p until it is confirmed or discarded, replacing any plan
// staged earlier.
func (g *Gate) Stage(p plan.Plan) {
	g.mu.Lock()
	g.staged = &p
	g.mu.Unlock()
}

func (g *Gate) Pending() (plan.Plan, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.staged == nil {
		return plan.Plan{}, false
	}
	return *g.staged, true
}

func (g *Gate) Discard() {
	g.mu.Lock()
	g.staged = nil
	g.mu.Unlock()
}

// RunConfirmed runs the staged plan and clears it.
func (g *Gate) RunConfirmed(ctx context.Context) (Result, error) {
	g.mu.Lock()
	p := g.staged
	g.staged = nil
	g.mu.Unlock()

	if p == nil {
		return Result{}, ErrNothingStaged
	}
	return g.execute(ctx, *p)
}

func (g *Gate) SetSnapshot(s repo.Snapshot) {
	g.mu.Lock()
	g.snapshot = s
	g.mu.Unlock()
}

func (g *Gate) Snapshot() repo.Snapshot {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshot
}

// LastVerified is the last command that exited successfully.
func (g *Gate) LastVerified() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastVerified
}

func (g *Gate) execute(ctx context.Context, p plan.Plan) (Result, error) {
	if strings.TrimSpace(p.Command) == "" {
		return Result{}, ErrEmptyPlan
	}

	snap := g.Snapshot()
	dir, err := workdir(snap)
	if err != nil {
		return Result{}, err
	}

	g.log.Info("executing", "cmd", p.Command, "risk", p.Risk, "dir", dir)
	res := Result{Plan: p, Workdir: dir}

	out, runErr := g.runner.Run(ctx, p.Command, dir, g.timeout)
	if runErr != nil {
		res.ExitCode = -1
		res.Stderr = runErr.Error()
		res.Outcome = Failure
	} else {
		res.ExitCode = out.ExitCode
		res.Stdout = out.Stdout
		res.Stderr = out.Stderr
		res.TimedOut = out.TimedOut
		res.Duration = out.Duration
		res.Outcome = classify(out)
	}

	g.log.Info("executed", "cmd", p.Command, "outcome", res.Outcome, "exit", res.ExitCode, "took", res.Duration)
	g.metrics.RecordExecution(ctx, string(p.Risk), string(res.Outcome), res.Duration)

	if res.Outcome == Success {
		g.mu.Lock()
		g.lastVerified = p.Command
		g.mu.Unlock()
		g.refresh(ctx, snap.WorkspaceRoot)
	}

	if g.output != nil {
		g.output.SetCommandOutput(p.Command, res.ExitCode, res.Stdout, res.Stderr)
	}
	if g.history != nil {
		err := g.history.Record(ctx, history.Entry{
			Command:    p.Command,
			Risk:       string(p.Risk),
			Outcome:    string(res.Outcome),
			ExitCode:   res.ExitCode,
			Duration:   res.Duration,
			Workdir:    dir,
			Transcript: p.Request,
		})
		if err != nil {
			g.log.Warn("history not recorded", "err", err)
		}
	}

	if runErr != nil {
		return res, fmt.Errorf("gate: run %q: %w", p.Command, runErr)
	}
	return res, nil
}

func (g *Gate) refresh(ctx context.Context, root string) {
	if g.repos == nil || root == "" {
		return
	}
	s, err := g.repos.Snapshot(ctx, root)
	if err != nil {
		g.log.Warn("repo snapshot refresh failed", "err", err)
		return
	}
	g.SetSnapshot(s)
}

func classify(r shell.Result) Outcome {
	switch {
	case r.TimedOut:
		return Timeout
	case r.ExitCode == 0:
		return Success
	default:
		return Failure
	}
}

func workdir(s repo.Snapshot) (string, error) {
	for _, dir := range []string{s.GitRoot, s.WorkspaceRoot} {
		if dir == "" {
			continue
		}
		if fi, err := os.Stat(dir); err == nil && fi.IsDir() {
			return dir, nil
		}
	}
	return "", ErrNoWorkdir
}
