// Package telemetry distributes SCADA updates received from the backend to
// interested consumers (console presenter, metrics, history store) and keeps
// a PostgreSQL history of them.
package telemetry

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
)

// DefaultBuffer sizes each subscriber channel.
const DefaultBuffer = 16

// Dispatcher fans SCADA updates out to subscribers. Publishing never blocks:
// a subscriber that falls behind has updates dropped (telemetry is a stream
// of current values, a stale frame is worthless) and the drops are counted.
type Dispatcher struct {
	buffer int

	mu      sync.Mutex
	subs    map[string]chan live.ScadaData
	dropped map[string]uint64
	closed  bool
}

// NewDispatcher creates a Dispatcher whose subscriber channels hold buffer
// updates. buffer <= 0 uses DefaultBuffer.
func NewDispatcher(buffer int) *Dispatcher {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Dispatcher{
		buffer:  buffer,
		subs:    make(map[string]chan live.ScadaData),
		dropped: make(map[string]uint64),
	}
}

// Subscribe registers a new consumer and returns its update channel along
// with an id for Unsubscribe. The channel is closed on Unsubscribe or Close.
func (d *Dispatcher) Subscribe() (id string, updates <-chan live.ScadaData) {
	ch := make(chan live.ScadaData, d.buffer)
	id = uuid.NewString()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
		return id, ch
	}
	d.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a consumer and closes its channel. Unknown ids are
// ignored.
func (d *Dispatcher) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		delete(d.subs, id)
		close(ch)
	}
}

// Publish delivers data to every subscriber without blocking. Updates to a
// full subscriber channel are dropped and counted against that subscriber.
func (d *Dispatcher) Publish(data live.ScadaData) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	for id, ch := range d.subs {
		select {
		case ch <- data:
		default:
			d.dropped[id]++
			if d.dropped[id] == 1 {
				slog.Warn("telemetry: subscriber falling behind, dropping updates", "subscriber", id)
			}
		}
	}
}

// Dropped returns the number of updates dropped for the given subscriber.
func (d *Dispatcher) Dropped(id string) uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dropped[id]
}

// Close closes every subscriber channel. Publish becomes a no-op.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	for id, ch := range d.subs {
		delete(d.subs, id)
		close(ch)
	}
}
