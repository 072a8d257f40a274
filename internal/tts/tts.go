// Package tts speaks feedback aloud. Playback is detached from the caller and
// can be interrupted at any time; a new utterance cuts off the previous one.
package tts

import (
	"context"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"sync"
)

type VoiceParams struct {
	Voice string `yaml:"voice"` // espeak voice name, e.g. "en-us"
	Rate  int    `yaml:"rate"`  // words per minute, 0 for default
	Pitch int    `yaml:"pitch"` // 0-99, 0 for default
}

// Engine renders text to the speakers and returns when done or when ctx is
// cancelled.
type Engine interface {
	Speak(ctx context.Context, text string, p VoiceParams) error
}

// Command runs an espeak-compatible binary for each utterance. It needs no
// cgo and is used when the library is not available.
type Command struct {
	// Path defaults to "espeak-ng".
	Path string
}

func (c Command) Speak(ctx context.Context, text string, p VoiceParams) error {
	path := c.Path
	if path == "" {
		path = "espeak-ng"
	}
	var args []string
	if p.Voice != "" {
		args = append(args, "-v", p.Voice)
	}
	if p.Rate > 0 {
		args = append(args, "-s", strconv.Itoa(p.Rate))
	}
	if p.Pitch > 0 {
		args = append(args, "-p", strconv.Itoa(p.Pitch))
	}
	args = append(args, "--", text)

	if err := exec.CommandContext(ctx, path, args...).Run(); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

type Player struct {
	engine Engine
	params VoiceParams
	log    *slog.Logger

	// speak serialises Speak so that each call stops the utterance the
	// previous one started.
	speak sync.Mutex

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewPlayer(engine Engine, params VoiceParams, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{engine: engine, params: params, log: logger}
}

// Speak starts speaking text in the background after stopping whatever was
// playing. Blank text only stops.
func (p *Player) Speak(text string) {
	p.speak.Lock()
	defer p.speak.Unlock()

	p.Stop()

	text = strings.TrimSpace(text)
	if text == "" {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	p.mu.Lock()
	p.cancel = cancel
	p.done = done
	p.mu.Unlock()

	go func() {
		defer close(done)
		defer cancel()
		if err := p.engine.Speak(ctx, text, p.params); err != nil {
			p.log.Warn("speech failed", "err", err)
		}
	}()
}

// Stop interrupts playback and waits for the engine to return. It is safe to
// call when nothing is playing.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Player) Speaking() bool {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Wait blocks until the current utterance finishes.
func (p *Player) Wait() {
	p.mu.Lock()
	done := p.done
	p.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Silent discards speech.
type Silent struct{}

func (Silent) Speak(context.Context, string, VoiceParams) error { return nil }
