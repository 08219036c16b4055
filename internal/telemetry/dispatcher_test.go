package telemetry_test

import (
	"testing"
	"time"

	"github.com/BrightProgrammer7/OptiBlend/internal/telemetry"
	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
)

func update(status string) live.ScadaData {
	return live.ScadaData{
		TotalFeedRate: 18.5,
		AvgPCI:        5800,
		Status:        status,
		MixTonPerHour: map[string]float64{"Tires": 4.2, "Plastic": 3.1},
	}
}

func TestDispatcher_FanOut(t *testing.T) {
	t.Parallel()
	d := telemetry.NewDispatcher(4)
	defer d.Close()

	_, a := d.Subscribe()
	_, b := d.Subscribe()

	d.Publish(update("NOMINAL"))

	for name, ch := range map[string]<-chan live.ScadaData{"a": a, "b": b} {
		select {
		case got := <-ch:
			if got.Status != "NOMINAL" {
				t.Errorf("subscriber %s got status %q", name, got.Status)
			}
			if got.MixTonPerHour["Tires"] != 4.2 {
				t.Errorf("subscriber %s got mix %v", name, got.MixTonPerHour)
			}
		case <-time.After(time.Second):
			t.Fatalf("subscriber %s did not receive the update", name)
		}
	}
}

func TestDispatcher_SlowSubscriberDropsNotBlocks(t *testing.T) {
	t.Parallel()
	d := telemetry.NewDispatcher(2)
	defer d.Close()

	id, slow := d.Subscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			d.Publish(update("NOMINAL"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	if got := d.Dropped(id); got != 8 {
		t.Errorf("dropped = %d; want 8 (10 published, buffer 2)", got)
	}
	// Buffered updates are still there.
	if len(slow) != 2 {
		t.Errorf("buffered = %d; want 2", len(slow))
	}
}

func TestDispatcher_Unsubscribe(t *testing.T) {
	t.Parallel()
	d := telemetry.NewDispatcher(0)
	defer d.Close()

	id, ch := d.Subscribe()
	d.Unsubscribe(id)

	if _, ok := <-ch; ok {
		t.Error("channel should be closed after Unsubscribe")
	}
	// Publishing after unsubscribe must not panic or deliver.
	d.Publish(update("NOMINAL"))

	// Unknown ids are ignored.
	d.Unsubscribe("no-such-subscriber")
}

func TestDispatcher_CloseClosesAllChannels(t *testing.T) {
	t.Parallel()
	d := telemetry.NewDispatcher(0)
	_, a := d.Subscribe()
	_, b := d.Subscribe()

	d.Close()
	d.Close() // idempotent

	for name, ch := range map[string]<-chan live.ScadaData{"a": a, "b": b} {
		if _, ok := <-ch; ok {
			t.Errorf("subscriber %s channel should be closed", name)
		}
	}

	// Subscribing after Close yields an already-closed channel.
	_, late := d.Subscribe()
	if _, ok := <-late; ok {
		t.Error("post-Close subscription should be closed immediately")
	}
}
