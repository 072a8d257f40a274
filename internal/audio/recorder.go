package audio

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/gordonklaus/portaudio"
)

var errReleased = errors.New("audio: device released")

type RecordOptions struct {
	MaxDuration    time.Duration
	SilenceTimeout time.Duration
	Threshold      float64 // RMS level counted as speech
}

func (o RecordOptions) withDefaults() RecordOptions {
	if o.MaxDuration <= 0 {
		o.MaxDuration = 10 * time.Second
	}
	if o.SilenceTimeout <= 0 {
		o.SilenceTimeout = 600 * time.Millisecond
	}
	if o.Threshold <= 0 {
		o.Threshold = 0.015
	}
	return o
}

// Microphone is the default portaudio input stream. Only one holder may own it
// at a time; the wake-word monitor and speech capture hand it back and forth.
type Microphone struct {
	mu     sync.Mutex
	stream *portaudio.Stream
	buf    []float32
}

func NewMicrophone() *Microphone {
	return &Microphone{buf: make([]float32, FrameSize)}
}

func (m *Microphone) Init() error {
	return portaudio.Initialize()
}

func (m *Microphone) Close() {
	_ = m.Release()
	portaudio.Terminate()
}

func (m *Microphone) Acquire() (FrameSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil, ErrBusy
	}

	stream, err := portaudio.OpenDefaultStream(1, 0, SampleRate, len(m.buf), m.buf)
	if err != nil {
		return nil, err
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		return nil, err
	}

	m.stream = stream
	return m, nil
}

func (m *Microphone) Release() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}

	stopErr := m.stream.Stop()
	closeErr := m.stream.Close()
	m.stream = nil

	return errors.Join(stopErr, closeErr)
}

func (m *Microphone) ReadFrame(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil, errReleased
	}
	if err := m.stream.Read(); err != nil {
		return nil, err
	}

	frame := make([]float32, len(m.buf))
	copy(frame, m.buf)
	return frame, nil
}

// RecordAuto takes the microphone for one utterance and gives it back.
func (m *Microphone) RecordAuto(ctx context.Context, opts RecordOptions) ([]float32, error) {
	src, err := m.Acquire()
	if err != nil {
		return nil, err
	}
	defer m.Release()

	return Record(ctx, src, opts)
}

// Record reads frames until speech has been followed by SilenceTimeout of
// quiet, or MaxDuration elapses. Leading silence is dropped; an empty result
// means nobody spoke.
func Record(ctx context.Context, src FrameSource, opts RecordOptions) ([]float32, error) {
	opts = opts.withDefaults()

	frameDur := time.Duration(FrameSize) * time.Second / SampleRate
	maxFrames := int(opts.MaxDuration / frameDur)
	silenceFrames := int(opts.SilenceTimeout / frameDur)

	out := make([]float32, 0, SampleRate*3)

	var (
		speaking bool
		quiet    int
	)

	for i := 0; i < maxFrames; i++ {
		frame, err := src.ReadFrame(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		if RMS(frame) > opts.Threshold {
			speaking = true
			quiet = 0
			out = append(out, frame...)
			continue
		}

		if speaking {
			quiet++
			if quiet >= silenceFrames {
				break
			}
			out = append(out, frame...)
		}
	}

	return out, nil
}
