// Package stt turns speech into text. A Capturer records one utterance and
// returns its transcript; the in-process whisper.cpp Transcriber and an
// external capture process are the two backends.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrEmptyTranscript means the capture finished without recognisable speech.
var ErrEmptyTranscript = errors.New("stt: empty transcript")

type Request struct {
	MaxDuration    time.Duration
	SilenceTimeout time.Duration
}

// Capturer records a single utterance bounded by the request and transcribes
// it. Silence yields ErrEmptyTranscript.
type Capturer interface {
	Capture(ctx context.Context, req Request) (string, error)
}

// Recorder records raw 16 kHz mono samples.
type Recorder interface {
	Record(ctx context.Context, maxDuration, silenceTimeout time.Duration) ([]float32, error)
}

type RecorderFunc func(ctx context.Context, maxDuration, silenceTimeout time.Duration) ([]float32, error)

func (f RecorderFunc) Record(ctx context.Context, maxDuration, silenceTimeout time.Duration) ([]float32, error) {
	return f(ctx, maxDuration, silenceTimeout)
}

// PCMTranscriber is satisfied by *Transcriber.
type PCMTranscriber interface {
	TranscribePCM(ctx context.Context, pcm16k []float32, opt Options) (Transcript, error)
}
