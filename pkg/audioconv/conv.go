// Package audioconv decodes recorded audio files into the 16 kHz mono float32
// PCM that whisper and the wake spotter consume.
package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

const TargetRate = 16000

type Options struct {
	MaxSamples int
}

type decodeFunc func(io.ReadSeeker) (pcm []float32, rate int, err error)

var byExt = map[string]decodeFunc{
	".wav": decodeWAV,
	".mp3": decodeMP3,
	".ogg": decodeOgg,
	".oga": decodeOgg,
}

var byMagic = map[string]decodeFunc{
	"RIFF":    decodeWAV,
	"OggS":    decodeOgg,
	"ID3\x03": decodeMP3,
	"ID3\x04": decodeMP3,
}

var ErrUnsupported = errors.New("audioconv: unsupported format")

func DecodeFile(_ context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return Decode(f, filepath.Ext(path), opt)
}

// Decode picks a decoder by extension, falling back to sniffing the header,
// and returns 16 kHz mono samples.
func Decode(r io.ReadSeeker, ext string, opt Options) ([]float32, error) {
	dec, ok := byExt[strings.ToLower(ext)]
	if !ok {
		magic, _ := bufio.NewReader(r).Peek(4)
		if _, err := r.Seek(0, io.SeekStart); err != nil {
			return nil, err
		}
		if dec, ok = byMagic[string(magic)]; !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnsupported, ext)
		}
	}

	pcm, rate, err := dec(r)
	if err != nil {
		return nil, err
	}

	pcm = Resample(pcm, rate, TargetRate)
	if opt.MaxSamples > 0 && len(pcm) > opt.MaxSamples {
		pcm = pcm[:opt.MaxSamples]
	}
	return pcm, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, errors.New("audioconv: invalid wav")
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, err
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, errors.New("audioconv: empty wav")
	}

	depth := int(dec.BitDepth)
	if depth == 0 {
		depth = 16
	}

	channels, rate := 1, 44100
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		if buf.Format.SampleRate > 0 {
			rate = buf.Format.SampleRate
		}
	}

	scale := 1.0 / float64(int64(1)<<(depth-1))
	pcm := make([]float32, len(buf.Data))
	for i, v := range buf.Data {
		pcm[i] = float32(math.Max(-1, math.Min(1, float64(v)*scale)))
	}

	return Downmix(pcm, channels), rate, nil
}

func decodeMP3(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}

	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, err
	}

	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(&raw, binary.LittleEndian, ints); err != nil {
		return nil, 0, err
	}

	rate := dec.SampleRate()
	if rate <= 0 {
		rate = 44100
	}

	// go-mp3 always emits interleaved stereo.
	return Downmix(fromInt16(ints), 2), rate, nil
}

// decodeOgg tries Vorbis first, then Opus.
func decodeOgg(r io.ReadSeeker) ([]float32, int, error) {
	pcm, format, vErr := oggvorbis.ReadAll(r)
	if vErr == nil && format != nil && format.Channels > 0 && format.SampleRate > 0 {
		return Downmix(pcm, format.Channels), format.SampleRate, nil
	}

	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, 0, err
	}

	pcm, rate, oErr := decodeOpus(r)
	if oErr != nil {
		return nil, 0, fmt.Errorf("audioconv: ogg is neither vorbis (%v) nor opus (%w)", vErr, oErr)
	}
	return pcm, rate, nil
}

func decodeOpus(r io.ReadSeeker) ([]float32, int, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, 0, err
	}
	defer dec.Destroy()

	channels := dec.ChannelCount()
	if channels <= 0 {
		channels = 1
	}

	var (
		pcm []float32
		buf = make([]int16, 24000*channels)
	)
	for {
		n, err := dec.Read(buf)
		if n > 0 {
			pcm = append(pcm, fromInt16(buf[:n*channels])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, err
		}
	}

	// libopus always decodes at 48 kHz.
	return Downmix(pcm, channels), 48000, nil
}

func fromInt16(data []int16) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / 32768
	}
	return out
}

// Downmix averages interleaved channels into mono.
func Downmix(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}

	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range out {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

// Resample converts between rates with linear interpolation.
func Resample(in []float32, from, to int) []float32 {
	if from == to || from <= 0 || len(in) == 0 {
		return in
	}

	out := make([]float32, (len(in)*to+from-1)/from)
	last := len(in) - 1
	step := float64(from) / float64(to)

	for i := range out {
		pos := float64(i) * step
		i0 := int(pos)
		if i0 >= last {
			out[i] = in[last]
			continue
		}
		frac := float32(pos - float64(i0))
		out[i] = in[i0]*(1-frac) + in[i0+1]*frac
	}
	return out
}
