package audio

import (
	"context"
	"errors"
	"math"
)

const (
	SampleRate = 16000
	FrameSize  = 320 // 20ms at 16 kHz
)

// ErrBusy is returned when a device is acquired twice without a release.
var ErrBusy = errors.New("audio: device already acquired")

// FrameSource yields mono float32 frames in [-1, 1].
type FrameSource interface {
	ReadFrame(ctx context.Context) ([]float32, error)
}

// Device is a single exclusively owned input. Acquire hands out the frame
// source; Release gives the device back and is safe to call when not held.
type Device interface {
	Acquire() (FrameSource, error)
	Release() error
}

// RMS returns the root-mean-square level of a frame.
func RMS(f []float32) float64 {
	if len(f) == 0 {
		return 0
	}

	var s float64
	for _, x := range f {
		s += float64(x * x)
	}
	return math.Sqrt(s / float64(len(f)))
}
