package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
)

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

const maxVolume = 150

type sinkInput struct {
	ID      int
	Volume  int
	AppName string
}

type fade struct {
	id       int
	from, to int
}

// Pactl runs one pactl invocation and returns its stdout.
type Pactl func(ctx context.Context, args ...string) ([]byte, error)

func execPactl(ctx context.Context, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, "pactl", args...).Output()
}

// Ducker lowers the volume of every other playback stream while the
// microphone is listening and restores it afterwards. Streams whose
// application.name is in selfNames are left alone.
type Ducker struct {
	mu        sync.Mutex
	active    bool
	selfNames []string
	original  map[int]int
	minVolume int
	factor    float64
	fadeFor   time.Duration
	pactl     Pactl
}

func NewDucker(selfNames []string, minVolume int, factor float64, fadeFor time.Duration) *Ducker {
	return &Ducker{
		selfNames: slices.Clone(selfNames),
		original:  make(map[int]int),
		minVolume: clampVolume(minVolume),
		factor:    factor,
		fadeFor:   fadeFor,
		pactl:     execPactl,
	}
}

// WithPactl swaps the pactl runner.
func (d *Ducker) WithPactl(p Pactl) *Ducker {
	d.pactl = p
	return d
}

// Duck fades other streams down to volume*factor, never below minVolume.
func (d *Ducker) Duck(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	d.original = make(map[int]int)
	var fades []fade

	for _, s := range streams {
		target := int(math.Round(float64(s.Volume) * d.factor))
		target = clampVolume(max(target, d.minVolume))

		d.original[s.ID] = s.Volume
		fades = append(fades, fade{id: s.ID, from: s.Volume, to: target})
	}

	if err := d.fade(ctx, fades); err != nil {
		return err
	}

	d.active = true
	return nil
}

// Restore fades ducked streams back to their original level. Streams that
// appeared after Duck are not touched.
func (d *Ducker) Restore(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.list(ctx)
	if err != nil {
		return err
	}

	var fades []fade
	for _, s := range streams {
		if orig, ok := d.original[s.ID]; ok {
			fades = append(fades, fade{id: s.ID, from: s.Volume, to: orig})
		}
	}

	if err := d.fade(ctx, fades); err != nil {
		return err
	}

	d.original = make(map[int]int)
	d.active = false
	return nil
}

func (d *Ducker) list(ctx context.Context) ([]sinkInput, error) {
	out, err := d.pactl(ctx, "list", "sink-inputs")
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}

	var others []sinkInput
	for _, s := range parseSinkInputs(string(out)) {
		if !slices.Contains(d.selfNames, s.AppName) {
			others = append(others, s)
		}
	}
	return others, nil
}

func (d *Ducker) fade(ctx context.Context, fades []fade) error {
	if len(fades) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond

	steps := max(int(d.fadeFor/minStep), 1)
	if d.fadeFor <= 0 {
		steps = 1
	}
	stepFor := d.fadeFor / time.Duration(steps)

	for i := 1; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := float64(i) / float64(steps)
		for _, f := range fades {
			v := int(math.Round(float64(f.from) + float64(f.to-f.from)*frac))
			if err := d.setVolume(ctx, f.id, v); err != nil {
				return err
			}
		}

		if i < steps && stepFor > 0 {
			time.Sleep(stepFor)
		}
	}

	return nil
}

func (d *Ducker) setVolume(ctx context.Context, id, percent int) error {
	_, err := d.pactl(ctx, "set-sink-input-volume", strconv.Itoa(id), fmt.Sprintf("%d%%", clampVolume(percent)))
	if err != nil {
		return fmt.Errorf("set volume id=%d: %w", id, err)
	}
	return nil
}

func clampVolume(v int) int {
	return min(max(v, 0), maxVolume)
}

// parseSinkInputs reads `pactl list sink-inputs` output.
func parseSinkInputs(text string) []sinkInput {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []sinkInput
	for _, block := range blocks[1:] {
		header, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}

		id, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			continue
		}

		s := sinkInput{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) == 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}

			if rest, ok := strings.CutPrefix(line, "application.name = "); ok && s.AppName == "" {
				s.AppName = strings.Trim(rest, `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}

	return res
}
