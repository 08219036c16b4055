// Package session orchestrates one operator console session: it owns the
// backend connection, feeds it from the capture pipeline, fans inbound
// events out to playback, telemetry, and the text presenter, and
// transparently reconnects when the link drops.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BrightProgrammer7/OptiBlend/internal/observe"
	"github.com/BrightProgrammer7/OptiBlend/internal/telemetry"
	"github.com/BrightProgrammer7/OptiBlend/pkg/capture"
	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
	"github.com/BrightProgrammer7/OptiBlend/pkg/playback"
	"github.com/BrightProgrammer7/OptiBlend/pkg/turn"
)

// saveTimeout bounds a single telemetry insert so a stalled database never
// backs up the event loop.
const saveTimeout = 5 * time.Second

// StatusKind classifies a [StatusEvent].
type StatusKind int

const (
	// StatusConnected fires when a backend session is established,
	// initially and after every successful reconnect.
	StatusConnected StatusKind = iota

	// StatusDisconnected fires when the link terminates; Err carries the
	// cause, nil on a clean close.
	StatusDisconnected

	// StatusReconnecting fires at the start of each reconnection attempt;
	// Attempt carries the 1-based attempt number.
	StatusReconnecting

	// StatusGaveUp fires when reconnection is exhausted; Err carries the
	// last dial error.
	StatusGaveUp
)

// StatusEvent is one operator-facing connection state change, consumed by
// the console presenter.
type StatusEvent struct {
	Kind    StatusKind
	Attempt int
	Err     error
}

// Config assembles a [Session].
type Config struct {
	// Dialer establishes backend connections. Required.
	Dialer Dialer

	// Audio is the microphone source. Required.
	Audio capture.AudioSource

	// Frames is the webcam source. Optional; nil disables video.
	Frames capture.FrameSource

	// FrameInterval is the webcam frame cadence. Zero selects
	// [capture.DefaultFrameInterval].
	FrameInterval time.Duration

	// Turn tunes end-of-turn detection. OnTurnComplete is owned by the
	// session; any value set here is replaced.
	Turn turn.Config

	// Sink receives playback audio. Required.
	Sink playback.Sink

	// Dispatcher receives SCADA telemetry updates. Optional.
	Dispatcher *telemetry.Dispatcher

	// Store persists SCADA telemetry updates. Optional.
	Store *telemetry.Store

	// OnText receives assistant utterance fragments. Optional.
	OnText func(text string)

	// Reconnect bounds reconnection after a dropped link. Dialer and
	// Metrics fields are overridden from this Config.
	Reconnect ReconnectorConfig

	// Metrics receives session counters. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// Session is the console orchestrator. Create with [New], drive with
// [Session.Run].
type Session struct {
	rec      *Reconnector
	pipeline *capture.Pipeline
	detector *turn.Detector
	queue    *playback.Queue

	dispatcher *telemetry.Dispatcher
	store      *telemetry.Store
	onText     func(string)
	metrics    *observe.Metrics
	status     chan StatusEvent

	mu   sync.Mutex
	conn Conn
}

// New assembles a Session from cfg. The capture pipeline, turn detector,
// and playback queue are constructed here so their callbacks can close over
// the session.
func New(cfg Config) *Session {
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	s := &Session{
		dispatcher: cfg.Dispatcher,
		store:      cfg.Store,
		onText:     cfg.OnText,
		metrics:    metrics,
		status:     make(chan StatusEvent, 16),
	}

	turnCfg := cfg.Turn
	turnCfg.OnTurnComplete = s.completeTurn
	s.detector = turn.NewDetector(turnCfg)

	// OnStats reports cumulative counters; the closure tracks the previous
	// snapshot to feed deltas to the metric instruments.
	var statsMu sync.Mutex
	var prev capture.Stats
	s.pipeline = capture.NewPipeline(capture.PipelineConfig{
		Audio:         cfg.Audio,
		Frames:        cfg.Frames,
		Detector:      s.detector,
		FrameInterval: cfg.FrameInterval,
		OnStats: func(cur capture.Stats) {
			statsMu.Lock()
			sent := cur.ChunksSent - prev.ChunksSent
			dropped := cur.ChunksDropped - prev.ChunksDropped
			frames := cur.FramesSent - prev.FramesSent
			prev = cur
			statsMu.Unlock()

			ctx := context.Background()
			if sent > 0 {
				metrics.AudioChunksSent.Add(ctx, int64(sent))
			}
			if dropped > 0 {
				metrics.AudioChunksDropped.Add(ctx, int64(dropped))
			}
			if frames > 0 {
				metrics.VideoFramesSent.Add(ctx, int64(frames))
			}
		},
	})

	s.queue = playback.NewQueue(playback.Config{
		Sink: cfg.Sink,
		OnItemDone: func(err error) {
			ctx := context.Background()
			s.metrics.PlaybackQueueDepth.Add(ctx, -1)
			if err != nil {
				slog.Warn("playback item failed", "error", err)
				s.metrics.RecordPlaybackItem(ctx, "error")
				return
			}
			s.metrics.RecordPlaybackItem(ctx, "ok")
		},
	})

	recCfg := cfg.Reconnect
	recCfg.Dialer = cfg.Dialer
	recCfg.Metrics = metrics
	recCfg.OnAttempt = func(attempt int) {
		s.emitStatus(StatusEvent{Kind: StatusReconnecting, Attempt: attempt})
	}
	s.rec = NewReconnector(recCfg)

	return s
}

// Run connects to the backend and drives the capture pipeline and event
// loop until ctx is cancelled, the backend closes the session cleanly, or
// reconnection is exhausted. It always releases the playback queue before
// returning.
func (s *Session) Run(ctx context.Context) error {
	defer s.queue.Close()

	conn, err := s.rec.Connect(ctx)
	if err != nil {
		return err
	}
	s.attach(ctx, conn)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(runCtx)

	// Closing the connection on cancellation unblocks the event loop's
	// channel receive.
	g.Go(func() error {
		<-gctx.Done()
		s.detach(context.Background())
		return nil
	})

	g.Go(func() error {
		return s.pipeline.Run(gctx)
	})

	g.Go(func() error {
		// On any event-loop exit the whole session winds down, clean
		// close included.
		defer cancel()
		return s.eventLoop(gctx)
	})

	return g.Wait()
}

// Status delivers connection state changes for the console presenter. The
// channel is never closed; delivery is best-effort and events are dropped
// if the consumer falls behind.
func (s *Session) Status() <-chan StatusEvent {
	return s.status
}

// emitStatus publishes ev without blocking.
func (s *Session) emitStatus(ev StatusEvent) {
	select {
	case s.status <- ev:
	default:
	}
}

// Connected reports whether a backend session is currently live.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Stats reports capture pipeline counters.
func (s *Session) Stats() capture.Stats {
	return s.pipeline.Stats()
}

// QueueDepth reports the number of playback payloads waiting behind the
// in-flight item.
func (s *Session) QueueDepth() int {
	return s.queue.Depth()
}

// Retune replaces the end-of-turn detection parameters at runtime. The
// session keeps ownership of the turn-complete callback.
func (s *Session) Retune(cfg turn.Config) {
	s.detector.Tune(cfg)
}

// SetFrameInterval changes the webcam frame cadence at runtime.
func (s *Session) SetFrameInterval(d time.Duration) {
	s.pipeline.SetFrameInterval(d)
}

// attach installs conn as the live connection and points the capture
// pipeline at it.
func (s *Session) attach(ctx context.Context, conn Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.pipeline.SetSender(conn)
	s.metrics.SessionConnected.Add(ctx, 1)
	s.emitStatus(StatusEvent{Kind: StatusConnected})
}

// detach tears down the current connection; the capture pipeline drops
// media until a new one is attached. Returns the connection's terminal
// error, nil if already detached or closed cleanly.
func (s *Session) detach(ctx context.Context) error {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn == nil {
		return nil
	}
	s.pipeline.SetSender(nil)
	s.metrics.SessionConnected.Add(ctx, -1)
	_ = conn.Close()
	return conn.Err()
}

func (s *Session) current() Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

// eventLoop consumes backend events until the connection terminates, then
// reconnects on abnormal closure. A clean close from the backend ends the
// session.
func (s *Session) eventLoop(ctx context.Context) error {
	for {
		conn := s.current()
		if conn == nil {
			return nil
		}

		for ev := range conn.Events() {
			s.handle(ctx, ev)
		}

		cause := conn.Err()
		s.detach(ctx)
		s.emitStatus(StatusEvent{Kind: StatusDisconnected, Err: cause})

		if err := ctx.Err(); err != nil {
			return nil
		}
		if cause == nil {
			slog.Info("backend closed session")
			return nil
		}

		slog.Warn("backend session dropped", "error", cause)
		next, err := s.rec.Reconnect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.emitStatus(StatusEvent{Kind: StatusGaveUp, Err: err})
			return err
		}

		// Speech state from the dead link no longer applies.
		s.detector.Reset()
		s.attach(ctx, next)

		// The watcher goroutine may have shut down between the dial and
		// the attach; re-check so the new link is not left dangling.
		if ctx.Err() != nil {
			s.detach(ctx)
			return nil
		}
	}
}

// handle dispatches one inbound event.
func (s *Session) handle(ctx context.Context, ev live.Event) {
	switch e := ev.(type) {
	case live.TextEvent:
		if s.onText != nil {
			s.onText(e.Text)
		}

	case live.AudioEvent:
		if err := s.queue.Enqueue(e.PCM); err != nil {
			slog.Warn("playback enqueue failed", "error", err)
			return
		}
		s.metrics.PlaybackQueueDepth.Add(ctx, 1)

	case live.TelemetryEvent:
		s.metrics.TelemetryUpdates.Add(ctx, 1)
		if s.dispatcher != nil {
			s.dispatcher.Publish(e.Data)
		}
		if s.store != nil {
			saveCtx, cancel := context.WithTimeout(ctx, saveTimeout)
			if err := s.store.Save(saveCtx, e.Data); err != nil {
				slog.Warn("telemetry save failed", "error", err)
			}
			cancel()
		}
	}
}

// completeTurn fires from the detector's timer goroutine; the websocket
// write happens off it so the detector never blocks on the network.
func (s *Session) completeTurn() {
	s.metrics.TurnSignals.Add(context.Background(), 1)
	conn := s.current()
	if conn == nil {
		return
	}
	go func() {
		if err := conn.SendTurnComplete(); err != nil {
			slog.Warn("turn complete signal failed", "error", err)
		}
	}()
}
