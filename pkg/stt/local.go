package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LocalCapturer records from the microphone and runs whisper in-process.
type LocalCapturer struct {
	rec     Recorder
	tr      PCMTranscriber
	opts    Options
	timeout time.Duration
}

func NewLocalCapturer(rec Recorder, tr PCMTranscriber, opts Options) *LocalCapturer {
	return &LocalCapturer{
		rec:     rec,
		tr:      tr,
		opts:    opts,
		timeout: 60 * time.Second,
	}
}

func (c *LocalCapturer) Capture(ctx context.Context, req Request) (string, error) {
	pcm, err := c.rec.Record(ctx, req.MaxDuration, req.SilenceTimeout)
	if err != nil {
		return "", fmt.Errorf("stt: record: %w", err)
	}
	if len(pcm) == 0 {
		return "", ErrEmptyTranscript
	}

	tctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.tr.TranscribePCM(tctx, pcm, c.opts)
	if err != nil {
		if errors.Is(err, ErrEmptyTranscript) {
			return "", err
		}
		return "", fmt.Errorf("stt: transcribe: %w", err)
	}

	text := strings.TrimSpace(res.Text)
	if text == "" || isNonSpeech(text) {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

// whisper emits bracketed annotations for noise-only audio.
func isNonSpeech(text string) bool {
	switch strings.ToLower(strings.Trim(text, " .")) {
	case "[blank_audio]", "[silence]", "(silence)", "[music]", "[noise]":
		return true
	}
	return false
}
