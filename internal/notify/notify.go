// Package notify shows user-visible announcements: desktop notifications and
// the wake chime.
package notify

import (
	"context"
	"log/slog"
	"os/exec"
)

// Runner executes an external program; tests replace it.
type Runner func(ctx context.Context, name string, args ...string) error

func execRunner(ctx context.Context, name string, args ...string) error {
	return exec.CommandContext(ctx, name, args...).Run()
}

type Level string

const (
	Info  Level = "normal"
	Alert Level = "critical"
)

// Desktop sends announcements through notify-send. Failures are logged and
// otherwise ignored; an announcement is never worth failing a cycle over.
type Desktop struct {
	app string
	run Runner
	log *slog.Logger
}

func NewDesktop(app string, logger *slog.Logger) *Desktop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Desktop{app: app, run: execRunner, log: logger}
}

// WithRunner replaces the process runner.
func (d *Desktop) WithRunner(r Runner) *Desktop {
	d.run = r
	return d
}

func (d *Desktop) Announce(ctx context.Context, level Level, title, body string) {
	args := []string{"--app-name", d.app, "--urgency", string(level), title}
	if body != "" {
		args = append(args, body)
	}
	if err := d.run(ctx, "notify-send", args...); err != nil {
		d.log.Debug("notification not shown", "err", err)
	}
}
