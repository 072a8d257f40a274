// Package config loads the daemon's YAML configuration. Every field has a
// default, so an empty file (or no file) is a valid configuration.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voxgit/internal/tts"
)

type Config struct {
	LogLevel    string `yaml:"log_level"`
	Workspace   string `yaml:"workspace"`
	Socket      string `yaml:"socket"`
	HistoryDB   string `yaml:"history_db"`
	MetricsAddr string `yaml:"metrics_addr"`

	Audio   AudioConfig   `yaml:"audio"`
	Wake    WakeConfig    `yaml:"wake"`
	Capture CaptureConfig `yaml:"capture"`
	LLM     LLMConfig     `yaml:"llm"`
	Intent  IntentConfig  `yaml:"intent"`
	Exec    ExecConfig    `yaml:"exec"`
	Confirm ConfirmConfig `yaml:"confirm"`
	TTS     TTSConfig     `yaml:"tts"`
	Bus     BusConfig     `yaml:"bus"`
}

type AudioConfig struct {
	// Replay feeds a recorded file instead of the microphone.
	Replay string `yaml:"replay"`
	Chime  string `yaml:"chime"`
	Duck   bool   `yaml:"duck"`
	// DuckVolume is the percentage other streams are lowered to.
	DuckVolume int `yaml:"duck_volume"`
}

type WakeConfig struct {
	Phrase        string        `yaml:"phrase"`
	Model         string        `yaml:"model"`
	Debounce      time.Duration `yaml:"debounce"`
	Threshold     float64       `yaml:"threshold"`
	MinSimilarity float64       `yaml:"min_similarity"`
}

type CaptureConfig struct {
	// Backend is "local" (in-process whisper) or "process".
	Backend        string        `yaml:"backend"`
	Model          string        `yaml:"model"`
	Language       string        `yaml:"language"`
	MaxDuration    time.Duration `yaml:"max_duration"`
	SilenceTimeout time.Duration `yaml:"silence_timeout"`
	Command        string        `yaml:"command"`
	Args           []string      `yaml:"args"`
}

type LLMConfig struct {
	// Backend is "openai" or "compat" (any OpenAI-compatible server).
	Backend      string        `yaml:"backend"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"base_url"`
	Proxy        string        `yaml:"proxy"`
	MaxFailures  int           `yaml:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout"`
}

type IntentConfig struct {
	LearningMode bool    `yaml:"learning_mode"`
	Threshold    float64 `yaml:"threshold"`
}

type ExecConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	Shell   string        `yaml:"shell"`
}

type ConfirmConfig struct {
	Timeout time.Duration `yaml:"timeout"`
}

type TTSConfig struct {
	// Engine is "espeak", "command" or "none".
	Engine          string `yaml:"engine"`
	tts.VoiceParams `yaml:",inline"`
}

type BusConfig struct {
	URL       string        `yaml:"url"`
	Reconnect time.Duration `yaml:"reconnect"`
}

func Default() Config {
	return Config{
		LogLevel:    "info",
		Workspace:   ".",
		MetricsAddr: "127.0.0.1:9464",
		Audio: AudioConfig{
			Duck:       true,
			DuckVolume: 20,
		},
		Wake: WakeConfig{
			Phrase:        "hey vox",
			Debounce:      1200 * time.Millisecond,
			Threshold:     0.015,
			MinSimilarity: 0.88,
		},
		Capture: CaptureConfig{
			Backend:        "local",
			Language:       "en",
			MaxDuration:    8 * time.Second,
			SilenceTimeout: 1500 * time.Millisecond,
		},
		LLM: LLMConfig{
			Backend:      "openai",
			Model:        "gpt-4o-mini",
			MaxFailures:  3,
			ResetTimeout: 30 * time.Second,
		},
		Intent: IntentConfig{
			LearningMode: true,
			Threshold:    0.6,
		},
		Exec: ExecConfig{
			Timeout: 30 * time.Second,
			Shell:   "/bin/sh",
		},
		Confirm: ConfirmConfig{
			Timeout: 60 * time.Second,
		},
		TTS: TTSConfig{
			Engine:      "espeak",
			VoiceParams: tts.VoiceParams{Voice: "en-us"},
		},
		Bus: BusConfig{
			Reconnect: 3 * time.Second,
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the
// defaults.
func Load(path string) (Config, error) {
	if path == "" {
		cfg := Default()
		return cfg, Validate(&cfg)
	}

	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: %q: %w", path, err)
	}
	return cfg, nil
}

func LoadFromReader(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate returns every problem found, joined.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is invalid; valid values: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Workspace == "" {
		errs = append(errs, errors.New("workspace is required"))
	}

	if cfg.Audio.DuckVolume < 0 || cfg.Audio.DuckVolume > 100 {
		errs = append(errs, fmt.Errorf("audio.duck_volume %d is out of range [0, 100]", cfg.Audio.DuckVolume))
	}

	if cfg.Wake.Debounce < 0 {
		errs = append(errs, fmt.Errorf("wake.debounce %s must not be negative", cfg.Wake.Debounce))
	}
	if cfg.Wake.MinSimilarity <= 0 || cfg.Wake.MinSimilarity > 1 {
		errs = append(errs, fmt.Errorf("wake.min_similarity %.2f is out of range (0, 1]", cfg.Wake.MinSimilarity))
	}
	if cfg.Wake.Phrase == "" {
		errs = append(errs, errors.New("wake.phrase is required"))
	}

	switch cfg.Capture.Backend {
	case "local":
	case "process":
		if cfg.Capture.Command == "" {
			errs = append(errs, errors.New("capture.command is required when capture.backend is process"))
		}
	default:
		errs = append(errs, fmt.Errorf("capture.backend %q is invalid; valid values: local, process", cfg.Capture.Backend))
	}
	if cfg.Capture.MaxDuration <= 0 {
		errs = append(errs, fmt.Errorf("capture.max_duration %s must be positive", cfg.Capture.MaxDuration))
	}
	if cfg.Capture.SilenceTimeout <= 0 {
		errs = append(errs, fmt.Errorf("capture.silence_timeout %s must be positive", cfg.Capture.SilenceTimeout))
	}

	switch cfg.LLM.Backend {
	case "openai":
	case "compat":
		if cfg.LLM.BaseURL == "" {
			errs = append(errs, errors.New("llm.base_url is required when llm.backend is compat"))
		}
	default:
		errs = append(errs, fmt.Errorf("llm.backend %q is invalid; valid values: openai, compat", cfg.LLM.Backend))
	}
	if cfg.LLM.Model == "" {
		errs = append(errs, errors.New("llm.model is required"))
	}

	if cfg.Intent.Threshold < 0 || cfg.Intent.Threshold > 1 {
		errs = append(errs, fmt.Errorf("intent.threshold %.2f is out of range [0, 1]", cfg.Intent.Threshold))
	}
	if cfg.Exec.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("exec.timeout %s must be positive", cfg.Exec.Timeout))
	}
	if cfg.Confirm.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("confirm.timeout %s must be positive", cfg.Confirm.Timeout))
	}

	switch cfg.TTS.Engine {
	case "espeak", "command", "none":
	default:
		errs = append(errs, fmt.Errorf("tts.engine %q is invalid; valid values: espeak, command, none", cfg.TTS.Engine))
	}

	return errors.Join(errs...)
}
