package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/BrightProgrammer7/OptiBlend/internal/session"
	"github.com/BrightProgrammer7/OptiBlend/pkg/live"
)

// presenter renders the operator console: assistant transcript fragments,
// link status changes, and SCADA KPI lines. Writes are serialised so
// concurrent producers cannot interleave mid-line.
type presenter struct {
	mu  sync.Mutex
	out io.Writer
}

func newPresenter(out io.Writer) *presenter {
	return &presenter{out: out}
}

func (p *presenter) printf(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, format+"\n", args...)
}

// Text renders one assistant utterance fragment.
func (p *presenter) Text(text string) {
	p.printf("[assistant] %s", text)
}

// run consumes status and telemetry until ctx is done.
func (p *presenter) run(ctx context.Context, status <-chan session.StatusEvent, updates <-chan live.ScadaData) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-status:
			p.printStatus(ev)
		case data, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			p.printTelemetry(data)
		}
	}
}

func (p *presenter) printStatus(ev session.StatusEvent) {
	switch ev.Kind {
	case session.StatusConnected:
		p.printf("[link] connected")
	case session.StatusDisconnected:
		if ev.Err != nil {
			p.printf("[link] disconnected: %v", ev.Err)
		} else {
			p.printf("[link] session closed by backend")
		}
	case session.StatusReconnecting:
		p.printf("[link] reconnecting (attempt %d)", ev.Attempt)
	case session.StatusGaveUp:
		p.printf("[link] reconnection abandoned: %v", ev.Err)
	}
}

func (p *presenter) printTelemetry(data live.ScadaData) {
	var b strings.Builder
	fmt.Fprintf(&b, "[scada] status=%s", orDash(data.Status))
	if data.AvgPCI != 0 {
		fmt.Fprintf(&b, " pci=%.0f", data.AvgPCI)
	}
	if data.TotalFeedRate != 0 {
		fmt.Fprintf(&b, " feed=%.1ft/h", data.TotalFeedRate)
	}
	if data.AvgSulfurPercent != 0 {
		fmt.Fprintf(&b, " S=%.2f%%", data.AvgSulfurPercent)
	}
	if data.AvgChloridePercent != 0 {
		fmt.Fprintf(&b, " Cl=%.3f%%", data.AvgChloridePercent)
	}
	if data.TotalCostPerHour != 0 {
		fmt.Fprintf(&b, " cost=%.0f/h", data.TotalCostPerHour)
	}
	p.printf("%s", b.String())

	if len(data.MixTonPerHour) > 0 {
		p.printf("[scada] mix: %s", formatMap(data.MixTonPerHour, "%.1ft/h"))
	}
	if len(data.NewParams) > 0 {
		p.printf("[scada] params: %s", formatMap(data.NewParams, "%.2f"))
	}
}

// formatMap renders a name→value map with stable key order.
func formatMap(m map[string]float64, valueFormat string) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s="+valueFormat, k, m[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
