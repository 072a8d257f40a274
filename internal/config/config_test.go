package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"voxgit/internal/config"
)

func TestDefaultIsValid(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	if err := config.Validate(&cfg); err != nil {
		t.Fatalf("Validate(Default()) = %v", err)
	}
	if cfg.Wake.Debounce != 1200*time.Millisecond || cfg.Intent.Threshold != 0.6 || cfg.Exec.Timeout != 30*time.Second {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadFromReader_OverridesDefaults(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: debug
workspace: /src/app
wake:
  phrase: hey git
  debounce: 2s
capture:
  backend: process
  command: python3
  args: [stt_capture.py]
  silence_timeout: 900ms
intent:
  learning_mode: false
tts:
  engine: command
  voice: en-gb
  rate: 180
`
	cfg, err := config.LoadFromReader(strings.NewReader(yaml))
	if err != nil {
		t.Fatalf("LoadFromReader: %v", err)
	}
	if cfg.Workspace != "/src/app" || cfg.Wake.Phrase != "hey git" || cfg.Wake.Debounce != 2*time.Second {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Capture.Command != "python3" || len(cfg.Capture.Args) != 1 || cfg.Capture.SilenceTimeout != 900*time.Millisecond {
		t.Errorf("capture = %+v", cfg.Capture)
	}
	if cfg.Capture.MaxDuration != 8*time.Second {
		t.Errorf("unset field lost its default: %s", cfg.Capture.MaxDuration)
	}
	if cfg.Intent.LearningMode {
		t.Error("learning_mode not overridden")
	}
	if cfg.TTS.Voice != "en-gb" || cfg.TTS.Rate != 180 {
		t.Errorf("tts = %+v", cfg.TTS)
	}
}

func TestLoadFromReader_Empty(t *testing.T) {
	t.Parallel()
	cfg, err := config.LoadFromReader(strings.NewReader(""))
	if err != nil {
		t.Fatalf("empty config: %v", err)
	}
	if cfg.LLM.Backend != "openai" {
		t.Errorf("llm.backend = %q", cfg.LLM.Backend)
	}
}

func TestLoadFromReader_UnknownField(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("wake:\n  phrasee: typo\n"))
	if err == nil {
		t.Fatal("expected error for unknown field")
	}
}

func TestValidate_JoinsErrors(t *testing.T) {
	t.Parallel()
	yaml := `
log_level: loud
capture:
  backend: process
llm:
  backend: compat
intent:
  threshold: 1.5
tts:
  engine: festival
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{"log_level", "capture.command", "llm.base_url", "intent.threshold", "tts.engine"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error should mention %s, got: %v", want, err)
		}
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	if _, err := config.Load(""); err != nil {
		t.Fatalf("Load(\"\") = %v", err)
	}

	path := filepath.Join(t.TempDir(), "voxgit.yaml")
	if err := os.WriteFile(path, []byte("exec:\n  timeout: 5s\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Exec.Timeout != 5*time.Second {
		t.Errorf("exec.timeout = %s", cfg.Exec.Timeout)
	}

	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}
