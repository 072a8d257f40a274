// Package intent decides whether a transcript is a command to run or a
// question to answer, and dispatches it accordingly.
package intent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tidwall/gjson"
	"golang.org/x/text/unicode/norm"

	"voxgit/internal/llm"
	"voxgit/internal/observe"
)

type Kind string

const (
	Command  Kind = "command"
	Question Kind = "question"
)

// DefaultThreshold is the confidence a "command" classification needs.
const DefaultThreshold = 0.6

type Decision struct {
	Kind       Kind    `json:"kind"`
	Confidence float64 `json:"confidence"`
}

// Handler receives a routed transcript.
type Handler func(ctx context.Context, transcript string)

const classifySystemPrompt = `Classify a developer's spoken sentence.
"command": they want something done in their repository or shell (check status, commit, push, undo, create a branch).
"question": they want an explanation or to learn something (what is a rebase, why did that fail, how do tags work).
Reply with exactly one JSON object and nothing else:
{"type": "command" | "question", "confidence": <number between 0 and 1>}`

type Option func(*Router)

// WithLearningMode enables classification. When off every transcript is a
// command.
func WithLearningMode(on bool) Option {
	return func(r *Router) { r.learning = on }
}

func WithThreshold(t float64) Option {
	return func(r *Router) { r.threshold = t }
}

func WithLogger(l *slog.Logger) Option {
	return func(r *Router) { r.log = l }
}

func WithMetrics(m *observe.Metrics) Option {
	return func(r *Router) { r.metrics = m }
}

type Router struct {
	llm       llm.Provider
	learning  bool
	threshold float64

	onCommand  Handler
	onQuestion Handler

	log     *slog.Logger
	metrics *observe.Metrics
}

func NewRouter(provider llm.Provider, onCommand, onQuestion Handler, opts ...Option) *Router {
	r := &Router{
		llm:        provider,
		threshold:  DefaultThreshold,
		onCommand:  onCommand,
		onQuestion: onQuestion,
		log:        slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Classify returns the decision for transcript. A reply that cannot be
// parsed yields a question with zero confidence; only a failed completion is
// an error.
func (r *Router) Classify(ctx context.Context, transcript string) (Decision, error) {
	if !r.learning {
		return Decision{Kind: Command, Confidence: 1}, nil
	}

	raw, err := r.llm.Complete(ctx, llm.Request{
		Purpose:      "classify",
		SystemPrompt: classifySystemPrompt,
		UserPrompt:   transcript,
		Temperature:  llm.Float(0),
		MaxTokens:    40,
	})
	if err != nil {
		return Decision{}, fmt.Errorf("intent: classify: %w", err)
	}

	d := parseDecision(raw)
	if d.Kind == Command && d.Confidence < r.threshold {
		r.log.Debug("low-confidence command treated as question", "confidence", d.Confidence)
		d.Kind = Question
	}
	return d, nil
}

// Route classifies transcript and calls the matching handler. A
// classification failure is returned and nothing is dispatched.
func (r *Router) Route(ctx context.Context, transcript string) error {
	text := Normalize(transcript)
	if text == "" {
		return nil
	}

	d, err := r.Classify(ctx, text)
	if err != nil {
		return err
	}

	r.log.Info("routed", "intent", d.Kind, "confidence", d.Confidence)
	r.metrics.RecordRoute(ctx, string(d.Kind))

	h := r.onQuestion
	if d.Kind == Command {
		h = r.onCommand
	}
	if h != nil {
		h(ctx, text)
	}
	return nil
}

// Normalize applies NFC and trims surrounding space.
func Normalize(s string) string {
	return strings.TrimSpace(norm.NFC.String(s))
}

func parseDecision(raw string) Decision {
	unparsed := Decision{Kind: Question}

	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return unparsed
	}
	body := raw[start : end+1]
	if !gjson.Valid(body) {
		return unparsed
	}

	typ := gjson.Get(body, "type")
	if typ.Type != gjson.String {
		return unparsed
	}

	var d Decision
	switch Kind(strings.ToLower(strings.TrimSpace(typ.Str))) {
	case Command:
		d.Kind = Command
	case Question:
		d.Kind = Question
	default:
		return unparsed
	}

	if c := gjson.Get(body, "confidence"); c.Type == gjson.Number {
		d.Confidence = min(max(c.Num, 0), 1)
	}
	return d
}
