package stt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
)

type Options struct {
	Language      string  // e.g. "auto", "en"
	Threads       int     // <=0 => NumCPU()
	InitialPrompt string  // biases decoding towards expected vocabulary
	BeamSize      int     // 0 = greedy
	Temperature   float32 // 0 = default
}

type Segment struct {
	Text     string
	StartSec float64
	EndSec   float64
}

type Transcript struct {
	Text     string
	Segments []Segment
	Language string // detected or forced
}

// Transcriber runs whisper.cpp in-process. The model is loaded once and shared
// by every call; calls are serialised.
type Transcriber struct {
	mu    sync.Mutex
	model whisper.Model
}

func NewTranscriber(modelPath string) (*Transcriber, error) {
	if modelPath == "" {
		return nil, errors.New("stt: empty model path")
	}
	m, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("stt: load model: %w", err)
	}
	return &Transcriber{model: m}, nil
}

func (t *Transcriber) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return nil
	}
	err := t.model.Close()
	t.model = nil
	return err
}

// TranscribePCM decodes mono 16 kHz float32 samples.
func (t *Transcriber) TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Transcript, error) {
	if len(pcm16k) == 0 {
		return Transcript{}, ErrEmptyTranscript
	}
	if err := ctx.Err(); err != nil {
		return Transcript{}, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.model == nil {
		return Transcript{}, errors.New("stt: transcriber closed")
	}

	wctx, err := t.model.NewContext()
	if err != nil {
		return Transcript{}, fmt.Errorf("stt: new context: %w", err)
	}

	if opt.Language == "" {
		opt.Language = "auto"
	}
	if err := wctx.SetLanguage(opt.Language); err != nil {
		return Transcript{}, fmt.Errorf("stt: set language: %w", err)
	}

	threads := opt.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	wctx.SetThreads(uint(threads))

	if opt.BeamSize > 0 {
		wctx.SetBeamSize(opt.BeamSize)
	}
	if opt.InitialPrompt != "" {
		wctx.SetInitialPrompt(opt.InitialPrompt)
	}
	if opt.Temperature != 0 {
		wctx.SetTemperature(opt.Temperature)
	}

	if err := wctx.Process(pcm16k, nil, nil, nil); err != nil {
		return Transcript{}, fmt.Errorf("stt: process: %w", err)
	}

	var (
		segs  []Segment
		parts []string
	)
	for {
		if err := ctx.Err(); err != nil {
			return Transcript{}, err
		}

		s, err := wctx.NextSegment()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Transcript{}, fmt.Errorf("stt: next segment: %w", err)
		}
		segs = append(segs, Segment{
			Text:     s.Text,
			StartSec: s.Start.Seconds(),
			EndSec:   s.End.Seconds(),
		})
		if text := strings.TrimSpace(s.Text); text != "" {
			parts = append(parts, text)
		}
	}

	lang := wctx.DetectedLanguage()
	if lang == "" {
		lang = wctx.Language()
	}

	return Transcript{
		Text:     strings.Join(parts, " "),
		Segments: segs,
		Language: lang,
	}, nil
}
