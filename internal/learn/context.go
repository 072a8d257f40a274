// Package learn keeps the rolling context the assistant grounds its answers
// on: what was last said, planned and run, and the last few questions.
package learn

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"voxgit/internal/llm"
	"voxgit/internal/plan"
	"voxgit/pkg/util"
)

// MaxTurns is how many question/answer pairs are kept.
const MaxTurns = 3

// OutputLimit caps each stream of command output kept for grounding.
const OutputLimit = 2000

const answerSystemPrompt = `You are a concise git and shell tutor helping a developer who talks to you by voice.
Answer in 1 to 5 short sentences of plain speech: no markdown, no code blocks, no lists.
Ground your answer in the context provided. If the context does not contain what you
need, ask one short clarifying question instead of guessing. Never invent command
output, file names or branch names.`

type Turn struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

type Snapshot struct {
	LastTranscript    string     `json:"last_transcript,omitempty"`
	LastPlan          *plan.Plan `json:"last_plan,omitempty"`
	RepoSummary       string     `json:"repo_summary,omitempty"`
	LastCommandOutput string     `json:"last_command_output,omitempty"`
	RecentQA          []Turn     `json:"recent_qa,omitempty"`
	LastLearningText  string     `json:"last_learning_text,omitempty"`
}

type Option func(*Context)

func WithLogger(l *slog.Logger) Option {
	return func(c *Context) { c.log = l }
}

type Context struct {
	llm llm.Provider
	log *slog.Logger

	mu   sync.Mutex
	snap Snapshot
}

func New(provider llm.Provider, opts ...Option) *Context {
	c := &Context{
		llm: provider,
		log: slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Context) SetTranscript(text string) {
	c.mu.Lock()
	c.snap.LastTranscript = text
	c.mu.Unlock()
}

func (c *Context) SetPlan(p plan.Plan) {
	c.mu.Lock()
	c.snap.LastPlan = &p
	c.mu.Unlock()
}

func (c *Context) SetRepoSummary(summary string) {
	c.mu.Lock()
	c.snap.RepoSummary = summary
	c.mu.Unlock()
}

// SetCommandOutput stores the result of the last execution. Each stream is
// clipped separately.
func (c *Context) SetCommandOutput(command string, exitCode int, stdout, stderr string) {
	var b strings.Builder
	fmt.Fprintf(&b, "$ %s\nexit code: %d\n", command, exitCode)
	if s := strings.TrimSpace(stdout); s != "" {
		b.WriteString("stdout:\n")
		b.WriteString(util.Clip(s, OutputLimit))
		b.WriteString("\n")
	}
	if s := strings.TrimSpace(stderr); s != "" {
		b.WriteString("stderr:\n")
		b.WriteString(util.Clip(s, OutputLimit))
		b.WriteString("\n")
	}

	c.mu.Lock()
	c.snap.LastCommandOutput = strings.TrimRight(b.String(), "\n")
	c.mu.Unlock()
}

// AddTurn appends a turn, evicting the oldest beyond MaxTurns.
func (c *Context) AddTurn(t Turn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addTurnLocked(t)
}

func (c *Context) addTurnLocked(t Turn) {
	c.snap.RecentQA = append(c.snap.RecentQA, t)
	if n := len(c.snap.RecentQA); n > MaxTurns {
		c.snap.RecentQA = append([]Turn(nil), c.snap.RecentQA[n-MaxTurns:]...)
	}
}

// Answer asks the model to answer question using the current context. The
// answer is recorded as the newest turn.
func (c *Context) Answer(ctx context.Context, question string) (string, error) {
	snap := c.Snapshot()

	out, err := c.llm.Complete(ctx, llm.Request{
		Purpose:      "answer",
		SystemPrompt: answerSystemPrompt,
		UserPrompt:   grounding(snap) + "\nQuestion: " + question,
		Temperature:  llm.Float(0.3),
		MaxTokens:    250,
	})
	if err != nil {
		return "", fmt.Errorf("learn: answer: %w", err)
	}
	answer := strings.TrimSpace(out)
	if answer == "" {
		return "", llm.ErrEmptyResponse
	}

	c.mu.Lock()
	c.snap.LastLearningText = answer
	c.addTurnLocked(Turn{Question: question, Answer: answer})
	c.mu.Unlock()

	c.log.Debug("answered", "question", question, "chars", len(answer))
	return answer, nil
}

func (c *Context) Reset() {
	c.mu.Lock()
	c.snap = Snapshot{}
	c.mu.Unlock()
}

func (c *Context) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.snap
	if s.LastPlan != nil {
		p := *s.LastPlan
		s.LastPlan = &p
	}
	s.RecentQA = append([]Turn(nil), s.RecentQA...)
	return s
}

func grounding(s Snapshot) string {
	var b strings.Builder
	b.WriteString("Context:\n")

	section := func(title, body string) {
		if body == "" {
			return
		}
		fmt.Fprintf(&b, "[%s]\n%s\n", title, body)
	}
	section("last request", s.LastTranscript)
	if s.LastPlan != nil {
		section("last plan", fmt.Sprintf("%s (risk %s): %s", s.LastPlan.Command, s.LastPlan.Risk, s.LastPlan.Explanation))
	}
	section("repository", s.RepoSummary)
	section("last command output", s.LastCommandOutput)

	for i, t := range s.RecentQA {
		fmt.Fprintf(&b, "[earlier question %d]\nQ: %s\nA: %s\n", i+1, t.Question, t.Answer)
	}

	if b.Len() == len("Context:\n") {
		b.WriteString("(none yet)\n")
	}
	return b.String()
}
