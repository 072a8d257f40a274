package plan

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"voxgit/internal/llm"
	"voxgit/internal/observe"
	"voxgit/internal/repo"
	"voxgit/pkg/util"
)

// StatusLimit caps how much of the porcelain status is sent to the model.
const StatusLimit = 2000

const systemPrompt = `You translate a developer's spoken request into exactly one shell command
run from the root of their git repository.

Reply with exactly one JSON object and nothing else:
{"command": "<shell command>", "risk": "low|medium|high", "explanation": "<one short sentence>"}

Risk tiers:
- low: read-only or trivially reversible (git status, git log, git diff, git branch --list, ls).
- medium: changes local state but is recoverable (git add, git commit, git checkout, git stash, git pull, git push).
- high: destroys work or rewrites history (git reset --hard, git clean -fd, git push --force, git branch -D, rm -rf).

If the request is unclear, propose a safe read-only command that helps, with risk "low".
Never chain unrelated commands.`

// Mirror receives every new plan and the repository summary it was made
// against; see learn.Context.
type Mirror interface {
	SetPlan(p Plan)
	SetRepoSummary(summary string)
}

type Option func(*Planner)

func WithLogger(l *slog.Logger) Option {
	return func(p *Planner) { p.log = l }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(p *Planner) { p.metrics = m }
}

func WithMirror(m Mirror) Option {
	return func(p *Planner) { p.mirror = m }
}

type Planner struct {
	llm     llm.Provider
	mirror  Mirror
	log     *slog.Logger
	metrics *observe.Metrics
}

func NewPlanner(provider llm.Provider, opts ...Option) *Planner {
	p := &Planner{
		llm: provider,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Plan asks the model for a plan. Malformed replies are repaired with
// defaults; only a failed completion call is an error.
func (p *Planner) Plan(ctx context.Context, transcript string, snap repo.Snapshot) (Plan, error) {
	raw, err := p.llm.Complete(ctx, llm.Request{
		Purpose:      "plan",
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt(transcript, snap),
		Temperature:  llm.Float(0.1),
		MaxTokens:    300,
	})
	if err != nil {
		return Plan{}, fmt.Errorf("plan: %w", err)
	}

	pl := Parse(raw)
	pl.Request = transcript

	p.log.Info("planned", "cmd", pl.Command, "risk", pl.Risk)
	p.log.Debug("plan reply", "raw", raw)
	p.metrics.RecordPlan(ctx, string(pl.Risk))

	if p.mirror != nil {
		p.mirror.SetPlan(pl)
		p.mirror.SetRepoSummary(snap.Summary(StatusLimit))
	}
	return pl, nil
}

func userPrompt(transcript string, snap repo.Snapshot) string {
	var b strings.Builder

	if snap.GitRoot == "" {
		fmt.Fprintf(&b, "Workspace: %s (not a git repository)\n", snap.WorkspaceRoot)
	} else {
		fmt.Fprintf(&b, "Repository: %s\nBranch: %s\n", snap.GitRoot, snap.Branch)
		if snap.IsClean {
			b.WriteString("Status: clean\n")
		} else {
			b.WriteString("Status (git status --porcelain):\n")
			b.WriteString(util.Clip(snap.StatusPorcelain, StatusLimit))
			b.WriteString("\n")
		}
	}

	fmt.Fprintf(&b, "\nRequest: %s", transcript)
	return b.String()
}
