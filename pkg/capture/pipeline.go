package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
	"github.com/BrightProgrammer7/OptiBlend/pkg/turn"
)

// MediaSender is the outbound half of a backend session. Implemented by
// live.Session.
type MediaSender interface {
	SendAudioChunk(pcm []byte) error
	SendVideoFrame(jpeg []byte) error
}

// Stats is a snapshot of pipeline counters.
type Stats struct {
	ChunksSent    uint64
	ChunksDropped uint64
	FramesSent    uint64
	FramesDropped uint64
}

// PipelineConfig parameterises a [Pipeline].
type PipelineConfig struct {
	// Audio is the microphone source. Required.
	Audio AudioSource

	// Frames is the camera source. Nil disables frame capture.
	Frames FrameSource

	// Detector observes every audio block for end-of-turn inference.
	// Nil disables detection.
	Detector *turn.Detector

	// FrameInterval is the period between frame sends. Zero means
	// DefaultFrameInterval.
	FrameInterval time.Duration

	// OnStats, when non-nil, is called after every send or drop with the
	// current counters. Used for metrics.
	OnStats func(Stats)
}

// Pipeline relays captured media to whichever sender is currently attached.
// While no sender is attached, or a send fails, the media is dropped and
// counted — never buffered, so a stalled or absent link cannot grow memory.
type Pipeline struct {
	audio    AudioSource
	frames   FrameSource
	detector *turn.Detector
	frameIvl time.Duration
	retick   chan time.Duration
	onStats  func(Stats)

	mu     sync.Mutex
	sender MediaSender

	chunksSent    atomic.Uint64
	chunksDropped atomic.Uint64
	framesSent    atomic.Uint64
	framesDropped atomic.Uint64
}

// NewPipeline builds a detached Pipeline. Attach a sender with SetSender,
// then call Run.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	ivl := cfg.FrameInterval
	if ivl <= 0 {
		ivl = DefaultFrameInterval
	}
	return &Pipeline{
		audio:    cfg.Audio,
		frames:   cfg.Frames,
		detector: cfg.Detector,
		frameIvl: ivl,
		retick:   make(chan time.Duration, 1),
		onStats:  cfg.OnStats,
	}
}

// SetFrameInterval changes the frame cadence at runtime. Non-positive
// values select DefaultFrameInterval. The frame loop applies the change on
// its next wakeup.
func (p *Pipeline) SetFrameInterval(d time.Duration) {
	if d <= 0 {
		d = DefaultFrameInterval
	}
	select {
	case p.retick <- d:
	default:
		// An unapplied change is pending; replace it.
		select {
		case <-p.retick:
		default:
		}
		select {
		case p.retick <- d:
		default:
		}
	}
}

// SetSender attaches (or with nil, detaches) the outbound session. Safe to
// call while Run is in progress; reconnect swaps the sender in place.
func (p *Pipeline) SetSender(s MediaSender) {
	p.mu.Lock()
	p.sender = s
	p.mu.Unlock()
}

func (p *Pipeline) currentSender() MediaSender {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sender
}

// Stats returns the current counters.
func (p *Pipeline) Stats() Stats {
	return Stats{
		ChunksSent:    p.chunksSent.Load(),
		ChunksDropped: p.chunksDropped.Load(),
		FramesSent:    p.framesSent.Load(),
		FramesDropped: p.framesDropped.Load(),
	}
}

func (p *Pipeline) publishStats() {
	if p.onStats != nil {
		p.onStats(p.Stats())
	}
}

// Run drives the audio relay and the periodic frame capture until ctx is
// done or the audio source is exhausted. The two loops are independent: a
// slow frame grab never delays audio blocks.
func (p *Pipeline) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return p.audioLoop(ctx) })
	if p.frames != nil {
		g.Go(func() error { return p.frameLoop(ctx) })
	}
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (p *Pipeline) audioLoop(ctx context.Context) error {
	for {
		block, err := p.audio.ReadBlock(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if p.detector != nil {
			p.detector.Observe(block, time.Now())
		}

		sender := p.currentSender()
		if sender == nil {
			p.chunksDropped.Add(1)
			p.publishStats()
			continue
		}
		if err := sender.SendAudioChunk(pcm.Bytes(block)); err != nil {
			p.chunksDropped.Add(1)
			p.publishStats()
			slog.Debug("capture: audio chunk dropped", "err", err)
			continue
		}
		p.chunksSent.Add(1)
		p.publishStats()
	}
}

func (p *Pipeline) frameLoop(ctx context.Context) error {
	ticker := time.NewTicker(p.frameIvl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d := <-p.retick:
			ticker.Reset(d)
			continue
		case <-ticker.C:
		}

		frame, err := p.frames.ReadFrame(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		sender := p.currentSender()
		if sender == nil {
			p.framesDropped.Add(1)
			p.publishStats()
			continue
		}
		if err := sender.SendVideoFrame(frame); err != nil {
			p.framesDropped.Add(1)
			p.publishStats()
			slog.Debug("capture: video frame dropped", "err", err)
			continue
		}
		p.framesSent.Add(1)
		p.publishStats()
	}
}
