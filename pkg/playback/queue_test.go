package playback_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BrightProgrammer7/OptiBlend/pkg/playback"
	"github.com/BrightProgrammer7/OptiBlend/pkg/pcm"
)

// recordingSink records payloads in play order and can detect overlap.
type recordingSink struct {
	mu       sync.Mutex
	played   [][]byte
	inFlight int
	overlap  bool
	delay    time.Duration
	failOn   func(pcm []byte) bool
}

func (s *recordingSink) Play(ctx context.Context, payload []byte) error {
	s.mu.Lock()
	s.inFlight++
	if s.inFlight > 1 {
		s.overlap = true
	}
	s.mu.Unlock()

	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.inFlight--
	fail := s.failOn != nil && s.failOn(payload)
	if !fail {
		s.played = append(s.played, payload)
	}
	s.mu.Unlock()

	if fail {
		return errors.New("synthetic play failure")
	}
	return nil
}

func (s *recordingSink) playedCopy() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.played))
	copy(out, s.played)
	return out
}

func payload(tag byte) []byte {
	// Two valid int16 samples, first byte tags the payload for assertions.
	return []byte{tag, 0x00, 0x00, 0x00}
}

func waitIdle(t *testing.T, q *playback.Queue) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := q.Wait(ctx); err != nil {
		t.Fatalf("Wait: %v", err)
	}
}

func TestQueue_FIFOOrderNoOverlap(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{delay: 10 * time.Millisecond}
	q := playback.NewQueue(playback.Config{Sink: sink})
	defer q.Close()

	// Spec scenario: enqueue A, B, C while idle; observe start order A,B,C
	// with no item starting before the previous one finished.
	for _, tag := range []byte{'A', 'B', 'C'} {
		if err := q.Enqueue(payload(tag)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitIdle(t, q)

	got := sink.playedCopy()
	if len(got) != 3 {
		t.Fatalf("played %d items; want 3", len(got))
	}
	for i, tag := range []byte{'A', 'B', 'C'} {
		if got[i][0] != tag {
			t.Errorf("played[%d] tag = %c; want %c", i, got[i][0], tag)
		}
	}
	if sink.overlap {
		t.Error("observed overlapping playback")
	}
	if !q.Idle() {
		t.Error("queue not idle after draining")
	}
}

func TestQueue_ReturnsToIdleThenRestarts(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	q := playback.NewQueue(playback.Config{Sink: sink})
	defer q.Close()

	if err := q.Enqueue(payload('A')); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitIdle(t, q)

	// A second burst after idle must start a fresh pump.
	if err := q.Enqueue(payload('B')); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitIdle(t, q)

	got := sink.playedCopy()
	if len(got) != 2 || got[0][0] != 'A' || got[1][0] != 'B' {
		t.Fatalf("played = %v; want [A B]", got)
	}
}

func TestQueue_FailedItemDoesNotStallSuccessors(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{
		failOn: func(p []byte) bool { return p[0] == 'B' },
	}
	var doneErrs []error
	var mu sync.Mutex
	q := playback.NewQueue(playback.Config{
		Sink: sink,
		OnItemDone: func(err error) {
			mu.Lock()
			doneErrs = append(doneErrs, err)
			mu.Unlock()
		},
	})
	defer q.Close()

	for _, tag := range []byte{'A', 'B', 'C', 'D'} {
		if err := q.Enqueue(payload(tag)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	waitIdle(t, q)

	got := sink.playedCopy()
	if len(got) != 3 {
		t.Fatalf("played %d items; want 3 (N minus failing)", len(got))
	}
	for i, tag := range []byte{'A', 'C', 'D'} {
		if got[i][0] != tag {
			t.Errorf("played[%d] tag = %c; want %c", i, got[i][0], tag)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(doneErrs) != 4 {
		t.Fatalf("OnItemDone calls = %d; want 4", len(doneErrs))
	}
	var failures int
	for _, err := range doneErrs {
		if err != nil {
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("failed items = %d; want 1", failures)
	}
}

func TestQueue_TruncatedPayloadSkipped(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{}
	q := playback.NewQueue(playback.Config{Sink: sink})
	defer q.Close()

	if err := q.Enqueue([]byte{0x01, 0x02, 0x03}); err != nil { // odd length
		t.Fatalf("Enqueue: %v", err)
	}
	if err := q.Enqueue(payload('A')); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	waitIdle(t, q)

	got := sink.playedCopy()
	if len(got) != 1 || got[0][0] != 'A' {
		t.Fatalf("played = %v; want just A (odd-length payload skipped before the sink)", got)
	}
}

func TestQueue_EnqueueWhilePlayingAppends(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{delay: 25 * time.Millisecond}
	q := playback.NewQueue(playback.Config{Sink: sink})
	defer q.Close()

	if err := q.Enqueue(payload('A')); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	time.Sleep(5 * time.Millisecond) // A now in flight
	if q.Idle() {
		t.Fatal("queue idle while item in flight")
	}
	if err := q.Enqueue(payload('B')); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if got := q.Depth(); got != 1 {
		t.Errorf("Depth = %d; want 1", got)
	}
	waitIdle(t, q)

	got := sink.playedCopy()
	if len(got) != 2 || got[0][0] != 'A' || got[1][0] != 'B' {
		t.Fatalf("played = %v; want [A B]", got)
	}
}

func TestQueue_CloseDiscardsPendingAndRejectsEnqueue(t *testing.T) {
	t.Parallel()
	sink := &recordingSink{delay: 50 * time.Millisecond}
	q := playback.NewQueue(playback.Config{Sink: sink})

	for _, tag := range []byte{'A', 'B', 'C'} {
		if err := q.Enqueue(payload(tag)); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	time.Sleep(10 * time.Millisecond)
	if err := q.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := q.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if err := q.Enqueue(payload('D')); !errors.Is(err, playback.ErrClosed) {
		t.Errorf("Enqueue after Close = %v; want ErrClosed", err)
	}
	waitIdle(t, q)

	if got := len(sink.playedCopy()); got > 1 {
		t.Errorf("played %d items after Close; want at most the in-flight one", got)
	}
}

func TestWriterSink_WritesPCM(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	sink := playback.NewWriterSink(&buf)
	data := pcm.Bytes([]int16{100, -200, 300})
	if err := sink.Play(context.Background(), data); err != nil {
		t.Fatalf("Play: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), data) {
		t.Errorf("written = %v; want %v", buf.Bytes(), data)
	}
}
