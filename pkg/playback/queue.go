// Package playback plays audio payloads received from the backend in strict
// arrival order. A [Queue] holds pending raw PCM payloads and drains them one
// at a time through a [Sink]; at most one payload is ever in flight, and a
// payload that fails to decode or play is logged and skipped so a single
// corrupt chunk never stalls its successors.
package playback

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("playback: queue closed")

// Sink turns one PCM payload into audible output. Play returns when the
// payload has finished sounding (or ctx is cancelled during shutdown).
// Payloads are little-endian 16-bit mono PCM at [pcm.PlaybackRate].
type Sink interface {
	Play(ctx context.Context, pcm []byte) error
}

// Config parameterises a [Queue].
type Config struct {
	// Sink receives each payload in order. Required.
	Sink Sink

	// OnItemDone, when non-nil, is called after every dequeued item with
	// the item's play error (nil on success). Used for metrics.
	OnItemDone func(err error)
}

// Queue is the strictly-ordered playback pipeline. Its state machine has two
// states: idle and playing. The first enqueue while idle starts the pump;
// enqueues while playing only append — the pump reaches them when the
// current item ends. When the queue empties the pump exits and the state
// returns to idle.
//
// All methods are safe for concurrent use.
type Queue struct {
	sink   Sink
	onDone func(error)

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	items   [][]byte
	playing bool
	closed  bool
	idleCh  chan struct{} // closed while idle, replaced when playing starts
}

// NewQueue creates an idle Queue draining into cfg.Sink.
func NewQueue(cfg Config) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	idle := make(chan struct{})
	close(idle)
	return &Queue{
		sink:   cfg.Sink,
		onDone: cfg.OnItemDone,
		ctx:    ctx,
		cancel: cancel,
		idleCh: idle,
	}
}

// Enqueue appends one payload. If the queue is idle the pump starts
// immediately; otherwise the payload waits its turn.
func (q *Queue) Enqueue(payload []byte) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrClosed
	}
	q.items = append(q.items, payload)
	if !q.playing {
		q.playing = true
		q.idleCh = make(chan struct{})
		go q.pump()
	}
	q.mu.Unlock()
	return nil
}

// pump dequeues and plays items until the queue is empty, then returns the
// queue to idle. Exactly one pump runs at a time.
func (q *Queue) pump() {
	for {
		q.mu.Lock()
		if q.closed || len(q.items) == 0 {
			q.items = nil
			q.playing = false
			close(q.idleCh)
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()

		err := q.playOne(item)
		if err != nil && q.ctx.Err() == nil {
			slog.Warn("playback: skipping failed item", "err", err, "bytes", len(item))
		}
		if q.onDone != nil {
			q.onDone(err)
		}
	}
}

// playOne validates and plays a single payload.
func (q *Queue) playOne(payload []byte) error {
	// A truncated payload cannot be split into int16 samples; treat it as a
	// decode failure and advance.
	if _, err := pcm.Samples(payload); err != nil {
		return err
	}
	return q.sink.Play(q.ctx, payload)
}

// Depth returns the number of payloads waiting behind the one in flight.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Idle reports whether nothing is playing and nothing is queued.
func (q *Queue) Idle() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return !q.playing
}

// Wait blocks until the queue is idle or ctx is done.
func (q *Queue) Wait(ctx context.Context) error {
	q.mu.Lock()
	ch := q.idleCh
	q.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the queue: pending payloads are discarded and the in-flight
// item's context is cancelled as part of shutdown. There is deliberately no
// interactive mid-item cancellation (barge-in) — the only way to cut audio
// short is tearing the whole queue down. Idempotent.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	q.items = nil
	q.mu.Unlock()

	q.cancel()
	return nil
}
