package wake

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/antzucaro/matchr"

	"voxgit/internal/audio"
	"voxgit/pkg/stt"
)

// SpotterConfig tunes the keyword spotter. Zero values take defaults.
type SpotterConfig struct {
	Phrase string // e.g. "hey vox"

	Threshold      float64       // RMS level counted as speech
	SilenceTimeout time.Duration // quiet after speech that ends an utterance
	MaxUtterance   time.Duration // longer speech is flushed as-is
	MinSimilarity  float64       // Jaro-Winkler score accepted without a phonetic match

	Transcribe stt.Options
}

func (c SpotterConfig) withDefaults() SpotterConfig {
	if c.Threshold <= 0 {
		c.Threshold = 0.015
	}
	if c.SilenceTimeout <= 0 {
		c.SilenceTimeout = 400 * time.Millisecond
	}
	if c.MaxUtterance <= 0 {
		c.MaxUtterance = 3 * time.Second
	}
	if c.MinSimilarity <= 0 {
		c.MinSimilarity = 0.88
	}
	if c.Transcribe.InitialPrompt == "" {
		c.Transcribe.InitialPrompt = c.Phrase
	}
	return c
}

// Spotter is a Detector that buffers short utterances between silences and
// asks whisper whether they contain the wake phrase. The model stays loaded
// across pauses; Reset only drops the buffer.
type Spotter struct {
	tr  stt.PCMTranscriber
	cfg SpotterConfig
	log *slog.Logger

	phrase []string

	buf      []float32
	speaking bool
	quiet    int
}

func NewSpotter(tr stt.PCMTranscriber, cfg SpotterConfig, logger *slog.Logger) (*Spotter, error) {
	cfg = cfg.withDefaults()

	phrase := words(cfg.Phrase)
	if len(phrase) == 0 {
		return nil, errors.New("wake: empty wake phrase")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Spotter{
		tr:     tr,
		cfg:    cfg,
		log:    logger,
		phrase: phrase,
	}, nil
}

func (s *Spotter) Reset() {
	s.buf = s.buf[:0]
	s.speaking = false
	s.quiet = 0
}

func (s *Spotter) Process(frame []float32) (bool, error) {
	frameDur := time.Duration(len(frame)) * time.Second / audio.SampleRate
	if frameDur <= 0 {
		return false, nil
	}

	if audio.RMS(frame) > s.cfg.Threshold {
		s.speaking = true
		s.quiet = 0
		s.buf = append(s.buf, frame...)
	} else if s.speaking {
		s.quiet++
		s.buf = append(s.buf, frame...)
	}

	if !s.speaking {
		return false, nil
	}

	ended := time.Duration(s.quiet)*frameDur >= s.cfg.SilenceTimeout
	tooLong := time.Duration(len(s.buf))*time.Second/audio.SampleRate >= s.cfg.MaxUtterance
	if !ended && !tooLong {
		return false, nil
	}

	pcm := append([]float32(nil), s.buf...)
	s.Reset()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	res, err := s.tr.TranscribePCM(ctx, pcm, s.cfg.Transcribe)
	if errors.Is(err, stt.ErrEmptyTranscript) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	hit := Matches(res.Text, s.phrase, s.cfg.MinSimilarity)
	s.log.Debug("wake candidate", "text", res.Text, "hit", hit)
	return hit, nil
}

// Matches reports whether any window of len(phrase) words in text sounds like
// the phrase: every word shares a Double Metaphone code with its phrase word,
// or the joined window is within minSimilarity Jaro-Winkler of the joined
// phrase.
func Matches(text string, phrase []string, minSimilarity float64) bool {
	heard := words(text)
	n := len(phrase)
	if n == 0 || len(heard) < n {
		return false
	}

	want := strings.Join(phrase, "")
	for i := 0; i+n <= len(heard); i++ {
		win := heard[i : i+n]

		if matchr.JaroWinkler(strings.Join(win, ""), want, false) >= minSimilarity {
			return true
		}

		phonetic := true
		for j, w := range win {
			if !soundsAlike(w, phrase[j]) {
				phonetic = false
				break
			}
		}
		if phonetic {
			return true
		}
	}
	return false
}

func soundsAlike(a, b string) bool {
	if a == b {
		return true
	}
	ap, as := matchr.DoubleMetaphone(a)
	bp, bs := matchr.DoubleMetaphone(b)
	for _, x := range []string{ap, as} {
		if x == "" {
			continue
		}
		if x == bp || x == bs {
			return true
		}
	}
	return false
}

func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}
