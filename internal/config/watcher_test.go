package config_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/BrightProgrammer7/OptiBlend/internal/config"
)

const consoleYAML = `
server:
  log_level: info
backend:
  url: "ws://localhost:9080"
turn:
  quiet_interval: 2s
`

const consoleYAMLRetuned = `
server:
  log_level: debug
backend:
  url: "ws://localhost:9080"
turn:
  quiet_interval: 3s
`

const consoleYAMLBroken = `
server:
  log_level: bananas
`

// reloadRecorder collects onChange invocations for assertion.
type reloadRecorder struct {
	mu       sync.Mutex
	old, new *config.Config
	calls    int
	fired    chan struct{}
}

func newReloadRecorder() *reloadRecorder {
	return &reloadRecorder{fired: make(chan struct{}, 1)}
}

func (r *reloadRecorder) onChange(old, new *config.Config) {
	r.mu.Lock()
	r.old, r.new = old, new
	r.calls++
	r.mu.Unlock()
	select {
	case r.fired <- struct{}{}:
	default:
	}
}

func (r *reloadRecorder) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

// watchTempFile writes content to a temp config file and starts a fast
// watcher on it.
func watchTempFile(t *testing.T, content string, rec *reloadRecorder) (string, *config.Watcher) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	rewrite(t, path, content)

	var onChange func(old, new *config.Config)
	if rec != nil {
		onChange = rec.onChange
	}
	w, err := config.NewWatcher(path, onChange, config.WithInterval(50*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)
	return path, w
}

func rewrite(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestWatcher_ServesInitialConfig(t *testing.T) {
	t.Parallel()
	_, w := watchTempFile(t, consoleYAML, nil)

	cfg := w.Current()
	if cfg == nil {
		t.Fatal("Current() = nil after construction")
	}
	if cfg.Server.LogLevel != config.LogInfo {
		t.Errorf("log_level = %q, want %q", cfg.Server.LogLevel, config.LogInfo)
	}
}

func TestWatcher_PicksUpEdit(t *testing.T) {
	t.Parallel()
	rec := newReloadRecorder()
	path, w := watchTempFile(t, consoleYAML, rec)

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, consoleYAMLRetuned)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("onChange never fired")
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.old == nil || rec.new == nil {
		t.Fatal("onChange received nil configs")
	}
	if rec.old.Server.LogLevel != config.LogInfo {
		t.Errorf("old log_level = %q, want info", rec.old.Server.LogLevel)
	}
	if rec.new.Server.LogLevel != config.LogDebug {
		t.Errorf("new log_level = %q, want debug", rec.new.Server.LogLevel)
	}
	if rec.new.Turn.QuietInterval != 3*time.Second {
		t.Errorf("new quiet_interval = %s, want 3s", rec.new.Turn.QuietInterval)
	}
	if got := w.Current().Turn.QuietInterval; got != 3*time.Second {
		t.Errorf("Current() quiet_interval = %s, want 3s", got)
	}
}

func TestWatcher_BrokenEditIsIgnored(t *testing.T) {
	t.Parallel()
	rec := newReloadRecorder()
	path, w := watchTempFile(t, consoleYAML, rec)

	time.Sleep(100 * time.Millisecond)
	rewrite(t, path, consoleYAMLBroken)
	time.Sleep(300 * time.Millisecond)

	if got := rec.callCount(); got != 0 {
		t.Errorf("onChange fired %d times for an invalid edit", got)
	}
	if got := w.Current().Server.LogLevel; got != config.LogInfo {
		t.Errorf("Current() log_level = %q, want the pre-edit value", got)
	}
}

func TestWatcher_TouchWithoutEdit(t *testing.T) {
	t.Parallel()
	rec := newReloadRecorder()
	path, _ := watchTempFile(t, consoleYAML, rec)

	time.Sleep(100 * time.Millisecond)
	later := time.Now().Add(time.Second)
	if err := os.Chtimes(path, later, later); err != nil {
		t.Fatalf("touch: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	if got := rec.callCount(); got != 0 {
		t.Errorf("onChange fired %d times for a content-preserving touch", got)
	}
}

func TestWatcher_MissingFile(t *testing.T) {
	t.Parallel()
	if _, err := config.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), nil); err == nil {
		t.Fatal("NewWatcher on a missing file returned nil error")
	}
}

func TestWatcher_StopTwice(t *testing.T) {
	t.Parallel()
	_, w := watchTempFile(t, consoleYAML, nil)
	w.Stop()
	w.Stop()
}
