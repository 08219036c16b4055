// Command optiblend is the kiln operator console: it streams microphone
// audio and webcam frames to the plant AI backend, sounds the assistant's
// replies, renders SCADA telemetry, and serves the local operator HTTP
// endpoints.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/BrightProgrammer7/OptiBlend/internal/config"
	"github.com/BrightProgrammer7/OptiBlend/internal/inventory"
	"github.com/BrightProgrammer7/OptiBlend/internal/observe"
	"github.com/BrightProgrammer7/OptiBlend/internal/optimize"
	"github.com/BrightProgrammer7/OptiBlend/internal/resilience"
	"github.com/BrightProgrammer7/OptiBlend/internal/session"
	"github.com/BrightProgrammer7/OptiBlend/internal/telemetry"
	"github.com/BrightProgrammer7/OptiBlend/pkg/capture"
	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
	"github.com/BrightProgrammer7/OptiBlend/pkg/playback"
	"github.com/BrightProgrammer7/OptiBlend/pkg/turn"
)

// defaultOptimizeURL matches the backend's default serving address; the
// optimizer REST endpoint lives on the same host as the websocket.
const defaultOptimizeURL = "http://localhost:9080"

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// .env carries local secrets (postgres DSN and the like); absence is fine.
	_ = godotenv.Load()

	// ── Load configuration (via the watcher, which owns the file) ─────────────
	logLevel := new(slog.LevelVar)
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		applyConfigChange(logLevel, old, new)
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "optiblend: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "optiblend: %v\n", err)
		}
		return 1
	}
	defer watcher.Stop()
	cfg := watcher.Current()

	// ── Logger ────────────────────────────────────────────────────────────────
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})))

	slog.Info("optiblend starting",
		"config", *configPath,
		"backend_url", cfg.Backend.URL,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Observability ─────────────────────────────────────────────────────────
	shutdownObserve, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "optiblend",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry providers", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownObserve(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Inventory ─────────────────────────────────────────────────────────────
	inv, err := inventory.Open(cfg.Inventory.Path)
	if err != nil {
		slog.Error("failed to open inventory store", "err", err, "path", cfg.Inventory.Path)
		return 1
	}
	defer inv.Close()
	if cfg.Inventory.Seed {
		if err := inv.Seed(); err != nil {
			slog.Error("failed to seed inventory", "err", err)
			return 1
		}
	}

	// ── Telemetry fan-out and history ─────────────────────────────────────────
	dispatcher := telemetry.NewDispatcher(cfg.Telemetry.Buffer)
	defer dispatcher.Close()

	var store *telemetry.Store
	if cfg.Telemetry.PostgresDSN != "" {
		store, err = telemetry.NewStore(ctx, cfg.Telemetry.PostgresDSN)
		if err != nil {
			slog.Error("failed to open telemetry store", "err", err)
			return 1
		}
		defer store.Close()
		slog.Info("telemetry history enabled")
	}

	// ── Optimizer ─────────────────────────────────────────────────────────────
	apiURL := cfg.Optimize.APIURL
	if apiURL == "" {
		apiURL = defaultOptimizeURL
	}
	optimizer := optimize.NewService(
		optimize.NewClient(apiURL, optimizerOptions(cfg.Optimize)...),
		cfg.Optimize.Fallback,
		resilience.FallbackConfig{},
	)

	// ── Capture sources and playback sink ─────────────────────────────────────
	audioSrc, err := buildAudioSource(cfg.Capture)
	if err != nil {
		slog.Error("failed to open audio capture", "err", err)
		return 1
	}
	defer audioSrc.Close()

	frameSrc, err := buildFrameSource(cfg.Capture)
	if err != nil {
		slog.Error("failed to open video capture", "err", err)
		return 1
	}
	if frameSrc != nil {
		defer frameSrc.Close()
	}

	sink := buildSink(cfg.Playback)

	// ── Session ───────────────────────────────────────────────────────────────
	var liveOpts []live.Option
	if cfg.Backend.URL != "" {
		liveOpts = append(liveOpts, live.WithURL(cfg.Backend.URL))
	}
	if cfg.Backend.Model != "" {
		liveOpts = append(liveOpts, live.WithModel(cfg.Backend.Model))
	}
	if cfg.Backend.EventBuffer > 0 {
		liveOpts = append(liveOpts, live.WithEventBuffer(cfg.Backend.EventBuffer))
	}
	dialer := session.NewDialer(live.New(liveOpts...), live.SessionConfig{
		SystemInstruction: cfg.Backend.SystemInstruction,
	})

	pres := newPresenter(os.Stdout)

	sess := session.New(session.Config{
		Dialer:        dialer,
		Audio:         audioSrc,
		Frames:        frameSrc,
		FrameInterval: cfg.Capture.FrameInterval,
		Turn: turn.Config{
			Threshold:     cfg.Turn.Threshold,
			QuietInterval: cfg.Turn.QuietInterval,
			WarmupChunks:  cfg.Turn.WarmupChunks,
		},
		Sink:       sink,
		Dispatcher: dispatcher,
		Store:      store,
		OnText:     pres.Text,
		Reconnect: session.ReconnectorConfig{
			MaxRetries: cfg.Reconnect.MaxRetries,
			Backoff:    cfg.Reconnect.InitialBackoff,
			MaxBackoff: cfg.Reconnect.MaxBackoff,
		},
		Metrics: metrics,
	})
	hotReloadTargets.set(sess, optimizer)

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sess.Run(gctx)
	})

	g.Go(func() error {
		_, updates := dispatcher.Subscribe()
		pres.run(gctx, sess.Status(), updates)
		return nil
	})

	if cfg.Server.ListenAddr != "" {
		mux := newAdminMux(adminDeps{
			session:   sess,
			inventory: inv,
			optimizer: optimizer,
			store:     store,
			optimizeC: optimize.DefaultConstraints,
			metrics:   metrics,
		})
		g.Go(func() error {
			return serveAdmin(gctx, cfg.Server.ListenAddr, mux)
		})
		slog.Info("admin endpoints listening", "addr", cfg.Server.ListenAddr)
	}

	slog.Info("console ready — press Ctrl+C to shut down")

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Hot reload ────────────────────────────────────────────────────────────────

// reloadTargets holds the components the config watcher retunes. The
// watcher callback can fire before the session exists, so access is
// guarded.
type reloadTargets struct {
	mu        sync.Mutex
	session   *session.Session
	optimizer *optimize.Service
}

var hotReloadTargets reloadTargets

func (r *reloadTargets) set(s *session.Session, o *optimize.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.session = s
	r.optimizer = o
}

func (r *reloadTargets) get() (*session.Session, *optimize.Service) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session, r.optimizer
}

// applyConfigChange applies the hot-reloadable subset of a config change.
// Transport settings (backend URL, capture devices) require a restart and
// are logged as such.
func applyConfigChange(logLevel *slog.LevelVar, old, new *config.Config) {
	diff := config.Diff(old, new)
	if !diff.Any() {
		return
	}

	if diff.LogLevelChanged {
		logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}

	sess, optimizer := hotReloadTargets.get()
	if diff.TurnChanged && sess != nil {
		sess.Retune(turn.Config{
			Threshold:     diff.NewTurn.Threshold,
			QuietInterval: diff.NewTurn.QuietInterval,
			WarmupChunks:  diff.NewTurn.WarmupChunks,
		})
		slog.Info("turn detection retuned",
			"threshold", diff.NewTurn.Threshold,
			"quiet_interval", diff.NewTurn.QuietInterval,
			"warmup_chunks", diff.NewTurn.WarmupChunks,
		)
	}
	if diff.FrameIntervalChanged && sess != nil {
		sess.SetFrameInterval(diff.NewFrameInterval)
		slog.Info("frame interval changed", "interval", diff.NewFrameInterval)
	}
	if diff.OptimizeFallbackChanged && optimizer != nil {
		optimizer.SetFallback(diff.NewOptimizeFallback)
		slog.Info("optimize fallback toggled", "enabled", diff.NewOptimizeFallback)
	}

	if old.Backend.URL != new.Backend.URL {
		slog.Warn("backend URL changed; restart required to apply")
	}
}

// ── Component construction ────────────────────────────────────────────────────

// optimizerOptions maps config knobs onto optimizer client options.
func optimizerOptions(cfg config.OptimizeConfig) []optimize.ClientOption {
	var opts []optimize.ClientOption
	if cfg.Timeout > 0 {
		opts = append(opts, optimize.WithTimeout(cfg.Timeout))
	}
	return opts
}

// buildAudioSource selects the microphone source: an ffmpeg-driven device
// when an input is configured, a silent synthetic source otherwise.
func buildAudioSource(cfg config.CaptureConfig) (capture.AudioSource, error) {
	if cfg.Audio.Input == "" {
		slog.Info("no audio input configured; using silent source")
		return &capture.SilenceSource{
			BlockSize: cfg.Audio.BlockSize,
			Interval:  blockInterval(cfg.Audio.BlockSize),
		}, nil
	}
	return capture.NewFFmpegAudioSource(capture.FFmpegConfig{
		Path:        cfg.Audio.FFmpegPath,
		InputFormat: cfg.Audio.InputFormat,
		Input:       cfg.Audio.Input,
		BlockSize:   cfg.Audio.BlockSize,
		SampleRate:  cfg.Audio.SampleRate,
	})
}

// blockInterval paces a synthetic source at the real-time rate of the
// equivalent capture device.
func blockInterval(blockSize int) time.Duration {
	if blockSize <= 0 {
		blockSize = capture.DefaultBlockSize
	}
	return time.Second * time.Duration(blockSize) / 16000
}

// buildFrameSource selects the webcam source; nil disables video capture.
func buildFrameSource(cfg config.CaptureConfig) (capture.FrameSource, error) {
	if cfg.Video.Input == "" {
		slog.Info("no video input configured; video disabled")
		return nil, nil
	}
	return capture.NewFFmpegFrameSource(capture.FFmpegConfig{
		Path:        cfg.Audio.FFmpegPath,
		InputFormat: cfg.Video.InputFormat,
		Input:       cfg.Video.Input,
	})
}

// buildSink selects the playback sink: ffplay for audible output, a discard
// writer on headless hosts.
func buildSink(cfg config.PlaybackConfig) playback.Sink {
	if cfg.Discard {
		slog.Info("playback discard enabled")
		return playback.NewWriterSink(io.Discard)
	}
	return &playback.FFplaySink{Path: cfg.FFplayPath}
}

// ── Logger ────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
