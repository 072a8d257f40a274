// Package shell runs planned commands with captured output and a hard timeout.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"
)

type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	TimedOut bool
	Duration time.Duration
}

// Runner executes one command line in cwd. A non-zero exit or a timeout is
// reported in the Result; an error means the command could not be run.
type Runner interface {
	Run(ctx context.Context, command, cwd string, timeout time.Duration) (Result, error)
}

// Exec runs commands through a POSIX shell.
type Exec struct {
	// Shell defaults to /bin/sh.
	Shell string
}

func (e Exec) Run(ctx context.Context, command, cwd string, timeout time.Duration) (Result, error) {
	sh := e.Shell
	if sh == "" {
		sh = "/bin/sh"
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, sh, "-c", command)
	cmd.Dir = cwd
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Kill the whole process group so pipelines die with the shell.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = 2 * time.Second

	start := time.Now()
	err := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		res.TimedOut = true
		res.ExitCode = -1
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return res, nil
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	default:
		return res, fmt.Errorf("shell: run %q: %w", command, err)
	}
}
