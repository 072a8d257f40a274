package main

import (
	"strings"
	"testing"

	"voxgit/internal/config"
	"voxgit/internal/gate"
	"voxgit/internal/plan"
	"voxgit/internal/session"
)

func TestApplyFlags(t *testing.T) {
	cfg := config.Default()
	cfg.Capture.Model = "/models/ggml-base.en.bin"
	applyFlags(&cfg, flags{logLevel: "debug", replay: "cmd.wav", socket: "/tmp/x.sock", workspace: "/src"})

	if cfg.LogLevel != "debug" || cfg.Audio.Replay != "cmd.wav" || cfg.Socket != "/tmp/x.sock" || cfg.Workspace != "/src" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Wake.Model != "/models/ggml-base.en.bin" {
		t.Errorf("wake model not defaulted to capture model: %q", cfg.Wake.Model)
	}

	cfg = config.Default()
	applyFlags(&cfg, flags{})
	if !strings.HasSuffix(cfg.Socket, "voxgit.sock") {
		t.Errorf("default socket = %q", cfg.Socket)
	}
}

func TestDescribe(t *testing.T) {
	p := plan.Plan{Command: "git push", Risk: plan.Medium}
	tests := []struct {
		rep  session.Report
		want string
	}{
		{session.Report{Error: "boom"}, "error: boom"},
		{session.Report{Answer: "HEAD is a pointer."}, "HEAD is a pointer."},
		{session.Report{Plan: &p, Declined: true}, "declined: git push"},
		{session.Report{Plan: &p, Result: &gate.Result{Plan: p, Outcome: gate.Success, Stdout: "ok\n"}}, "git push (success, exit 0)\nok\n"},
		{session.Report{}, "nothing happened"},
	}
	for _, tc := range tests {
		if got := describe(tc.rep); got != tc.want {
			t.Errorf("describe(%+v) = %q, want %q", tc.rep, got, tc.want)
		}
	}
}
