package stt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ProcessCapturer runs an external capture program that records for a fixed
// number of seconds and prints exactly one JSON line, {"text": "..."} or
// {"text": "", "error": "..."} with exit status 1.
//
// Invocation: <Command> <Args...> --model <Model> --seconds <s> --samplerate <n>
type ProcessCapturer struct {
	Command    string
	Args       []string
	Model      string
	SampleRate int
	// Grace is added to the request's max duration to form the hard deadline.
	Grace time.Duration
}

func (c *ProcessCapturer) Capture(ctx context.Context, req Request) (string, error) {
	rate := c.SampleRate
	if rate <= 0 {
		rate = 16000
	}
	grace := c.Grace
	if grace <= 0 {
		grace = 5 * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, req.MaxDuration+grace)
	defer cancel()

	args := append([]string(nil), c.Args...)
	args = append(args,
		"--model", c.Model,
		"--seconds", strconv.FormatFloat(req.MaxDuration.Seconds(), 'f', -1, 64),
		"--samplerate", strconv.Itoa(rate),
	)

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.Command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		return "", fmt.Errorf("stt: capture process: %w", ctxErr)
	}

	line, ok := lastJSONLine(stdout.String())
	if !ok {
		if runErr != nil {
			return "", fmt.Errorf("stt: capture process: %w: %s", runErr, strings.TrimSpace(stderr.String()))
		}
		return "", errors.New("stt: capture process printed no result")
	}

	res := gjson.Parse(line)
	if msg := res.Get("error").String(); msg != "" {
		return "", fmt.Errorf("stt: capture process: %s", msg)
	}
	if runErr != nil {
		return "", fmt.Errorf("stt: capture process: %w", runErr)
	}

	text := strings.TrimSpace(res.Get("text").String())
	if text == "" {
		return "", ErrEmptyTranscript
	}
	return text, nil
}

func lastJSONLine(out string) (string, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if strings.HasPrefix(line, "{") && gjson.Valid(line) {
			return line, true
		}
	}
	return "", false
}
