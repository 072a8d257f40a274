package audio

import (
	"context"
	"io"
	"sync"

	"voxgit/pkg/audioconv"
)

// FileDevice replays decoded samples as if they came from a microphone.
// Each Acquire continues where the previous holder stopped; once the samples
// are exhausted ReadFrame returns io.EOF.
type FileDevice struct {
	mu       sync.Mutex
	pcm      []float32
	pos      int
	acquired bool
}

func NewFileDevice(ctx context.Context, path string) (*FileDevice, error) {
	pcm, err := audioconv.DecodeFile(ctx, path, audioconv.Options{})
	if err != nil {
		return nil, err
	}
	return NewPCMDevice(pcm), nil
}

func NewPCMDevice(pcm []float32) *FileDevice {
	return &FileDevice{pcm: pcm}
}

func (d *FileDevice) Acquire() (FrameSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.acquired {
		return nil, ErrBusy
	}
	d.acquired = true
	return d, nil
}

func (d *FileDevice) Release() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.acquired = false
	return nil
}

func (d *FileDevice) ReadFrame(ctx context.Context) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.acquired {
		return nil, errReleased
	}
	if d.pos >= len(d.pcm) {
		return nil, io.EOF
	}

	frame := make([]float32, FrameSize)
	d.pos += copy(frame, d.pcm[d.pos:])
	return frame, nil
}

// RecordAuto mirrors Microphone.RecordAuto so a replay file can also feed
// speech capture.
func (d *FileDevice) RecordAuto(ctx context.Context, opts RecordOptions) ([]float32, error) {
	src, err := d.Acquire()
	if err != nil {
		return nil, err
	}
	defer d.Release()

	return Record(ctx, src, opts)
}
