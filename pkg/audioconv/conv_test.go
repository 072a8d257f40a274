package audioconv

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

func TestDownmix(t *testing.T) {
	got := Downmix([]float32{1, 0, 0.5, 0.5, -1, 1}, 2)
	want := []float32{0.5, 0.5, 0}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("got[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestDownmix_MonoPassthrough(t *testing.T) {
	in := []float32{0.1, 0.2}
	if got := Downmix(in, 1); &got[0] != &in[0] {
		t.Error("mono input should be returned as-is")
	}
}

func TestResample(t *testing.T) {
	in := make([]float32, 48000)
	for i := range in {
		in[i] = float32(i) / float32(len(in))
	}

	out := Resample(in, 48000, 16000)
	if len(out) != 16000 {
		t.Fatalf("len = %d, want 16000", len(out))
	}
	// A ramp stays a ramp.
	for i := 1; i < len(out); i++ {
		if out[i] < out[i-1] {
			t.Fatalf("not monotonic at %d: %v < %v", i, out[i], out[i-1])
		}
	}
}

func TestResample_SameRate(t *testing.T) {
	in := []float32{1, 2, 3}
	if got := Resample(in, 16000, 16000); len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
}

func writeWAV(t *testing.T, rate, channels int, seconds float64) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "tone.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	n := int(float64(rate)*seconds) * channels
	data := make([]int, n)
	for i := range data {
		data[i] = int(8000 * math.Sin(float64(i/channels)*2*math.Pi*440/float64(rate)))
	}

	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           data,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("close file: %v", err)
	}
	return path
}

func TestDecodeFile_WAVStereo48k(t *testing.T) {
	path := writeWAV(t, 48000, 2, 0.5)

	pcm, err := DecodeFile(context.Background(), path, Options{})
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if want := TargetRate / 2; len(pcm) != want {
		t.Fatalf("samples = %d, want %d", len(pcm), want)
	}
	for i, v := range pcm {
		if v < -1 || v > 1 {
			t.Fatalf("sample %d out of range: %v", i, v)
		}
	}
}

func TestDecodeFile_MaxSamples(t *testing.T) {
	path := writeWAV(t, 16000, 1, 1)

	pcm, err := DecodeFile(context.Background(), path, Options{MaxSamples: 100})
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	if len(pcm) != 100 {
		t.Fatalf("samples = %d, want 100", len(pcm))
	}
}

func TestDecode_SniffsUnknownExtension(t *testing.T) {
	raw, err := os.ReadFile(writeWAV(t, 16000, 1, 0.1))
	if err != nil {
		t.Fatal(err)
	}

	pcm, err := Decode(bytes.NewReader(raw), ".bin", Options{})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(pcm) != 1600 {
		t.Fatalf("samples = %d, want 1600", len(pcm))
	}
}

func TestDecode_Unsupported(t *testing.T) {
	_, err := Decode(bytes.NewReader([]byte("not audio at all")), ".txt", Options{})
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("err = %v, want ErrUnsupported", err)
	}
}
