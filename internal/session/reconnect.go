package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/BrightProgrammer7/OptiBlend/internal/observe"
	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
)

// Default reconnection parameters.
const (
	defaultMaxRetries = 10
	defaultBackoff    = 1 * time.Second
	defaultMaxBackoff = 30 * time.Second
)

// Conn is the subset of [live.Session] the orchestrator drives. It doubles
// as the capture pipeline's media sender.
type Conn interface {
	SendAudioChunk(pcm []byte) error
	SendVideoFrame(jpeg []byte) error
	SendTurnComplete() error
	Events() <-chan live.Event
	Err() error
	Close() error
}

// Dialer establishes backend connections. *liveDialer adapts [live.Client];
// tests substitute fakes.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
}

// NewDialer wraps a [live.Client] and its per-session setup payload as a
// [Dialer].
func NewDialer(client *live.Client, cfg live.SessionConfig) Dialer {
	return &liveDialer{client: client, cfg: cfg}
}

type liveDialer struct {
	client *live.Client
	cfg    live.SessionConfig
}

func (d *liveDialer) Dial(ctx context.Context) (Conn, error) {
	return d.client.Connect(ctx, d.cfg)
}

// Reconnector re-establishes a dropped backend connection with exponential
// backoff. Retries are bounded: once MaxRetries consecutive attempts fail,
// [Reconnector.Reconnect] gives up and returns the last dial error rather
// than retrying forever.
type Reconnector struct {
	dialer     Dialer
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	onAttempt  func(int)
	metrics    *observe.Metrics
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Dialer establishes connections. Required.
	Dialer Dialer

	// MaxRetries is the maximum number of reconnection attempts before
	// giving up. Defaults to 10 if zero.
	MaxRetries int

	// Backoff is the initial delay between retries. Doubles each attempt
	// up to MaxBackoff. Defaults to 1s if zero.
	Backoff time.Duration

	// MaxBackoff is the upper limit on the retry delay. Defaults to 30s
	// if zero.
	MaxBackoff time.Duration

	// OnAttempt, when non-nil, is called at the start of every
	// reconnection attempt with the 1-based attempt number.
	OnAttempt func(attempt int)

	// Metrics receives per-attempt counters. Defaults to
	// [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

// NewReconnector creates a new [Reconnector] with the given configuration.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	backoff := cfg.Backoff
	if backoff <= 0 {
		backoff = defaultBackoff
	}
	maxBackoff := cfg.MaxBackoff
	if maxBackoff <= 0 {
		maxBackoff = defaultMaxBackoff
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &Reconnector{
		dialer:     cfg.Dialer,
		maxRetries: maxRetries,
		backoff:    backoff,
		maxBackoff: maxBackoff,
		onAttempt:  cfg.OnAttempt,
		metrics:    metrics,
	}
}

// Connect performs the initial connection. Unlike [Reconnector.Reconnect]
// it makes a single attempt; a console that cannot reach the backend at
// startup should fail loudly, not spin.
func (r *Reconnector) Connect(ctx context.Context) (Conn, error) {
	conn, err := r.dialer.Dial(ctx)
	if err != nil {
		return nil, fmt.Errorf("session: initial connect: %w", err)
	}
	return conn, nil
}

// Reconnect attempts to re-establish the connection with exponential
// backoff, returning the new connection or, after MaxRetries failures, the
// last dial error.
func (r *Reconnector) Reconnect(ctx context.Context) (Conn, error) {
	currentBackoff := r.backoff

	var lastErr error
	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if r.onAttempt != nil {
			r.onAttempt(attempt)
		}

		slog.Info("attempting reconnection",
			"attempt", attempt,
			"max_retries", r.maxRetries,
			"backoff", currentBackoff,
		)

		conn, err := r.dialer.Dial(ctx)
		if err == nil {
			r.metrics.RecordReconnectAttempt(ctx, "ok")
			slog.Info("reconnection successful", "attempt", attempt)
			return conn, nil
		}
		lastErr = err
		r.metrics.RecordReconnectAttempt(ctx, "error")

		slog.Warn("reconnection attempt failed",
			"attempt", attempt,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(currentBackoff):
		}

		currentBackoff *= 2
		if currentBackoff > r.maxBackoff {
			currentBackoff = r.maxBackoff
		}
	}

	slog.Error("reconnection failed after max retries", "max_retries", r.maxRetries)
	return nil, fmt.Errorf("session: reconnect: gave up after %d attempts: %w", r.maxRetries, lastErr)
}
