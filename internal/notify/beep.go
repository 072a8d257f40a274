package notify

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
	"github.com/faiface/beep/wav"
)

// Chime plays a short sound file when listening starts.
type Chime struct {
	path string

	mu   sync.Mutex
	rate beep.SampleRate // speaker rate, zero until first use
}

func NewChime(path string) *Chime {
	return &Chime{path: path}
}

// Play blocks until the sound has played or ctx is done.
func (c *Chime) Play(ctx context.Context) error {
	f, err := os.Open(c.path)
	if err != nil {
		return fmt.Errorf("notify: chime: %w", err)
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(c.path)) {
	case ".wav":
		stream, format, err = wav.Decode(f)
	default:
		stream, format, err = mp3.Decode(f)
	}
	if err != nil {
		f.Close()
		return fmt.Errorf("notify: decode %s: %w", c.path, err)
	}
	defer stream.Close()

	rate, err := c.speakerRate(format.SampleRate)
	if err != nil {
		return err
	}

	var s beep.Streamer = stream
	if format.SampleRate != rate {
		s = beep.Resample(4, format.SampleRate, rate, stream)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(s, beep.Callback(func() { close(done) })))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// speakerRate initializes the speaker on first use with the rate of the first
// file played.
func (c *Chime) speakerRate(r beep.SampleRate) (beep.SampleRate, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.rate != 0 {
		return c.rate, nil
	}
	if err := speaker.Init(r, r.N(time.Second/10)); err != nil {
		return 0, fmt.Errorf("notify: speaker init: %w", err)
	}
	c.rate = r
	return r, nil
}
