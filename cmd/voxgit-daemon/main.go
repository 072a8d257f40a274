package main

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	cli "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"voxgit/internal/audio"
	"voxgit/internal/bus"
	"voxgit/internal/config"
	"voxgit/internal/confirm"
	"voxgit/internal/gate"
	"voxgit/internal/history"
	"voxgit/internal/ipc"
	"voxgit/internal/learn"
	"voxgit/internal/llm"
	"voxgit/internal/notify"
	"voxgit/internal/observe"
	"voxgit/internal/plan"
	"voxgit/internal/proxy"
	"voxgit/internal/repo"
	"voxgit/internal/resilience"
	"voxgit/internal/session"
	"voxgit/internal/shell"
	"voxgit/internal/tts"
	"voxgit/internal/tts/espeak"
	"voxgit/internal/voice"
	"voxgit/internal/wake"
	"voxgit/pkg/stt"
)

var version = "dev"

var logLevelMap = map[string]log.Level{
	"debug": log.LevelDebug,
	"info":  log.LevelInfo,
	"warn":  log.LevelWarn,
	"error": log.LevelError,
}

type flags struct {
	config    string
	env       string
	logLevel  string
	proxy     string
	replay    string
	socket    string
	workspace string
}

func main() {
	var f flags
	cli.StringVarP(&f.config, "config", "c", "", "YAML config file")
	cli.StringVarP(&f.env, "env", "e", ".env", "Env file path")
	cli.StringVarP(&f.logLevel, "log", "l", "", "Log level (overrides config)")
	cli.StringVarP(&f.proxy, "proxy", "p", "", "SOCKS5 proxy address for LLM traffic")
	cli.StringVar(&f.replay, "replay", "", "Feed this audio file instead of the microphone")
	cli.StringVar(&f.socket, "socket", "", "Control socket path")
	cli.StringVarP(&f.workspace, "workspace", "w", "", "Workspace directory")
	showVersion := cli.BoolP("version", "v", false, "Print version and exit")
	cli.Parse()

	if *showVersion {
		fmt.Println("voxgit-daemon", version)
		return
	}

	if err := run(f); err != nil {
		log.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(f flags) error {
	cfg, err := config.Load(f.config)
	if err != nil {
		return err
	}
	applyFlags(&cfg, f)

	logger := log.New(tint.NewHandler(os.Stdout, &tint.Options{
		Level:      logLevelMap[cfg.LogLevel],
		TimeFormat: time.TimeOnly,
	}))
	log.SetDefault(logger)

	log.Info("booting up", "version", version)

	if err := godotenv.Load(f.env); err != nil {
		log.Debug("no env file", "path", f.env, "err", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics, shutdownMetrics, err := observe.InitProvider(ctx, version)
	if err != nil {
		return fmt.Errorf("init metrics: %w", err)
	}
	defer shutdownMetrics(context.Background())

	provider, err := newLLM(cfg.LLM, metrics, logger)
	if err != nil {
		return err
	}
	log.Debug("loaded llm", "backend", cfg.LLM.Backend, "model", cfg.LLM.Model)

	store, err := history.Open(historyPath(cfg.HistoryDB))
	if err != nil {
		return err
	}
	defer store.Close()

	dev, closeDev, err := newDevice(ctx, cfg.Audio.Replay)
	if err != nil {
		return err
	}
	defer closeDev()
	log.Debug("loaded audio device", "replay", cfg.Audio.Replay)

	transcriber, err := stt.NewTranscriber(cfg.Wake.Model)
	if err != nil {
		return fmt.Errorf("load whisper model: %w", err)
	}
	defer transcriber.Close()
	log.Debug("loaded whisper", "model", cfg.Wake.Model)

	spotter, err := wake.NewSpotter(transcriber, wake.SpotterConfig{
		Phrase:        cfg.Wake.Phrase,
		Threshold:     cfg.Wake.Threshold,
		MinSimilarity: cfg.Wake.MinSimilarity,
		Transcribe:    stt.Options{Language: cfg.Capture.Language},
	}, logger)
	if err != nil {
		return err
	}

	capturer := newCapturer(cfg.Capture, dev, transcriber)

	engine, err := newSpeechEngine(cfg.TTS.Engine)
	if err != nil {
		return err
	}
	speaker := tts.NewPlayer(engine, cfg.TTS.VoiceParams, logger)
	defer speaker.Stop()

	var publisher *bus.Publisher
	if cfg.Bus.URL != "" {
		publisher = bus.NewPublisher(bus.Config{URL: cfg.Bus.URL, Reconnect: cfg.Bus.Reconnect, Logger: logger})
	}
	desktop := notify.NewDesktop("voxgit", logger)

	prompts := confirm.NewChannel(
		confirm.WithTimeout(cfg.Confirm.Timeout),
		confirm.WithLogger(logger),
		confirm.WithOnPrompt(func(p confirm.Prompt) {
			if publisher != nil {
				publisher.Publish("prompt", p)
			}
		}),
	)

	inspector := repo.NewInspector()
	learning := learn.New(provider, learn.WithLogger(logger))
	planner := plan.NewPlanner(provider,
		plan.WithLogger(logger),
		plan.WithMetrics(metrics),
		plan.WithMirror(learning),
	)
	riskGate := gate.New(shell.Exec{Shell: cfg.Exec.Shell}, inspector,
		gate.WithTimeout(cfg.Exec.Timeout),
		gate.WithOutputSink(learning),
		gate.WithHistory(store),
		gate.WithLogger(logger),
		gate.WithMetrics(metrics),
	)

	workspace, err := filepath.Abs(cfg.Workspace)
	if err != nil {
		return err
	}

	var sess *session.Session
	monitor := wake.NewMonitor(dev, spotter, func() { sess.OnWake() },
		wake.WithDebounce(cfg.Wake.Debounce),
		wake.WithLogger(logger),
		wake.WithMetrics(metrics),
		wake.WithOnError(func(err error) {
			desktop.Announce(ctx, notify.Alert, "Wake word listening stopped", err.Error())
			go sess.Stop()
		}),
	)

	deps := session.Deps{
		Machine:   voice.NewMachine(logger),
		Monitor:   monitor,
		Capturer:  capturer,
		LLM:       provider,
		Planner:   planner,
		Gate:      riskGate,
		Learn:     learning,
		Prompter:  prompts,
		Repos:     inspector,
		Speaker:   speaker,
		Announcer: desktop,
		Logger:    logger,
		Metrics:   metrics,
	}
	if cfg.Audio.Duck {
		deps.Ducker = audio.NewDucker([]string{"voxgit", "espeak"}, cfg.Audio.DuckVolume, 0.3, 300*time.Millisecond)
	}
	if cfg.Audio.Chime != "" {
		deps.Chime = notify.NewChime(cfg.Audio.Chime)
	}
	if publisher != nil {
		deps.Events = publisher
	}
	sess = session.New(session.Config{
		Workspace: workspace,
		Capture: stt.Request{
			MaxDuration:    cfg.Capture.MaxDuration,
			SilenceTimeout: cfg.Capture.SilenceTimeout,
		},
		LearningMode: cfg.Intent.LearningMode,
		Threshold:    cfg.Intent.Threshold,
	}, deps)

	if err := sess.Start(ctx); err != nil {
		return err
	}
	defer sess.Stop()

	log.Info("boot up successful", "workspace", workspace, "wake", cfg.Wake.Phrase)

	ctl := &control{sess: sess, prompts: prompts, history: store, log: logger}
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ipc.Serve(gctx, cfg.Socket, ctl.handle(gctx), logger)
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error { return serveMetrics(gctx, cfg.MetricsAddr) })
	}
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}

	err = g.Wait()
	log.Info("shutting down")
	return err
}

func applyFlags(cfg *config.Config, f flags) {
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	if f.proxy != "" {
		cfg.LLM.Proxy = f.proxy
	}
	if f.replay != "" {
		cfg.Audio.Replay = f.replay
	}
	if f.workspace != "" {
		cfg.Workspace = f.workspace
	}
	if f.socket != "" {
		cfg.Socket = f.socket
	}
	if cfg.Socket == "" {
		cfg.Socket = ipc.DefaultSocketPath()
	}
	if cfg.Wake.Model == "" {
		cfg.Wake.Model = cfg.Capture.Model
	}
}

func historyPath(p string) string {
	if p != "" {
		return p
	}
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "voxgit-history.db")
	}
	dir = filepath.Join(dir, "voxgit")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return filepath.Join(os.TempDir(), "voxgit-history.db")
	}
	return filepath.Join(dir, "history.db")
}

func newLLM(c config.LLMConfig, metrics *observe.Metrics, logger *log.Logger) (llm.Provider, error) {
	httpClient, err := proxy.NewSocksClient(c.Proxy)
	if err != nil {
		return nil, err
	}
	apiKey := os.Getenv("OPENAI_API_KEY")

	var backend llm.Provider
	switch c.Backend {
	case "compat":
		backend, err = llm.NewCompat(c.BaseURL, apiKey, c.Model, httpClient)
	default:
		if apiKey == "" {
			return nil, errors.New("OPENAI_API_KEY not set")
		}
		opts := []llm.OpenAIOption{llm.WithHTTPClient(httpClient)}
		if c.BaseURL != "" {
			opts = append(opts, llm.WithBaseURL(c.BaseURL))
		}
		backend, err = llm.NewOpenAI(apiKey, c.Model, opts...)
	}
	if err != nil {
		return nil, err
	}

	cb := resilience.NewCircuitBreaker(resilience.Config{
		Name:         "llm",
		MaxFailures:  c.MaxFailures,
		ResetTimeout: c.ResetTimeout,
		Logger:       logger,
	})
	return llm.NewGuarded(backend, cb, metrics, logger), nil
}

// recordingDevice is a device that can also record one utterance on its own.
type recordingDevice interface {
	audio.Device
	RecordAuto(ctx context.Context, opts audio.RecordOptions) ([]float32, error)
}

func newDevice(ctx context.Context, replay string) (recordingDevice, func(), error) {
	if replay != "" {
		dev, err := audio.NewFileDevice(ctx, replay)
		if err != nil {
			return nil, nil, fmt.Errorf("load replay %s: %w", replay, err)
		}
		return dev, func() {}, nil
	}

	mic := audio.NewMicrophone()
	if err := mic.Init(); err != nil {
		return nil, nil, fmt.Errorf("init audio: %w", err)
	}
	return mic, mic.Close, nil
}

func newCapturer(c config.CaptureConfig, dev recordingDevice, tr stt.PCMTranscriber) stt.Capturer {
	if c.Backend == "process" {
		return &stt.ProcessCapturer{
			Command:    c.Command,
			Args:       c.Args,
			Model:      c.Model,
			SampleRate: audio.SampleRate,
		}
	}

	rec := stt.RecorderFunc(func(ctx context.Context, maxDuration, silence time.Duration) ([]float32, error) {
		return dev.RecordAuto(ctx, audio.RecordOptions{MaxDuration: maxDuration, SilenceTimeout: silence})
	})
	return stt.NewLocalCapturer(rec, tr, stt.Options{Language: c.Language})
}

func newSpeechEngine(name string) (tts.Engine, error) {
	switch name {
	case "espeak":
		return espeak.New()
	case "command":
		return tts.Command{}, nil
	default:
		return tts.Silent{}, nil
	}
}

func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observe.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics listening", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}
	return nil
}
