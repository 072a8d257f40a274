// Package confirm asks the user to approve a staged plan. Prompts are
// published to whoever is listening (the control CLI, a desktop
// notification) and answered over the control socket.
package confirm

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTimeout is how long a prompt waits before counting as declined.
const DefaultTimeout = 60 * time.Second

var ErrNoPrompt = errors.New("confirm: no pending prompt")

// Prompter is what the orchestrator asks. A false result means declined,
// timed out or cancelled.
type Prompter interface {
	ConfirmLow(ctx context.Context, message string) bool
	ConfirmHigh(ctx context.Context, message string) bool
}

type Prompt struct {
	ID      uint64 `json:"id"`
	Message string `json:"message"`
	Step    int    `json:"step"`
	Steps   int    `json:"steps"`
}

type Option func(*Channel)

func WithTimeout(d time.Duration) Option {
	return func(c *Channel) { c.timeout = d }
}

// WithOnPrompt registers a callback run for every prompt step shown.
func WithOnPrompt(fn func(Prompt)) Option {
	return func(c *Channel) { c.onPrompt = fn }
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Channel) { c.log = l }
}

// Channel is a Prompter answered through Answer. One prompt is pending at a
// time; a new prompt replaces (declines) the previous one.
type Channel struct {
	timeout  time.Duration
	onPrompt func(Prompt)
	log      *slog.Logger

	seq atomic.Uint64

	mu      sync.Mutex
	pending *waiter
}

type waiter struct {
	prompt Prompt
	answer chan bool
}

func NewChannel(opts ...Option) *Channel {
	c := &Channel{
		timeout: DefaultTimeout,
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Channel) ConfirmLow(ctx context.Context, message string) bool {
	return c.ask(ctx, message, 1, 1)
}

// ConfirmHigh needs two separate approvals.
func (c *Channel) ConfirmHigh(ctx context.Context, message string) bool {
	if !c.ask(ctx, message, 1, 2) {
		return false
	}
	return c.ask(ctx, "Are you absolutely sure? "+message, 2, 2)
}

func (c *Channel) ask(ctx context.Context, message string, step, steps int) bool {
	w := &waiter{
		prompt: Prompt{ID: c.seq.Add(1), Message: message, Step: step, Steps: steps},
		answer: make(chan bool, 1),
	}

	c.mu.Lock()
	if prev := c.pending; prev != nil {
		prev.answer <- false
	}
	c.pending = w
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.pending == w {
			c.pending = nil
		}
		c.mu.Unlock()
	}()

	c.log.Info("awaiting confirmation", "prompt", w.prompt.ID, "step", step, "of", steps)
	if c.onPrompt != nil {
		c.onPrompt(w.prompt)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case yes := <-w.answer:
		return yes
	case <-timer.C:
		c.log.Info("confirmation timed out", "prompt", w.prompt.ID)
		return false
	case <-ctx.Done():
		return false
	}
}

// Answer resolves the pending prompt.
func (c *Channel) Answer(yes bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == nil {
		return ErrNoPrompt
	}
	c.pending.answer <- yes
	c.pending = nil
	return nil
}

// Pending returns the prompt currently waiting, if any.
func (c *Channel) Pending() (Prompt, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pending == nil {
		return Prompt{}, false
	}
	return c.pending.prompt, true
}

// Cancel declines the pending prompt, if any.
func (c *Channel) Cancel() {
	_ = c.Answer(false)
}

var _ Prompter = (*Channel)(nil)
