package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a changed file is reloaded.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives the previous and the freshly loaded configuration.
type ReloadFunc func(old, updated *Config)

// Watcher reloads the configuration file when it changes on disk.
//
// The parent directory is watched rather than the file itself, so editors
// that save by rename and Kubernetes ConfigMap symlink swaps are both seen.
// Bursts of events are collapsed into one reload after the debounce period.
type Watcher struct {
	path     string
	debounce time.Duration
	onReload ReloadFunc
	logger   *slog.Logger

	mu      sync.Mutex
	current *Config
	timer   *time.Timer
	reloads chan struct{}
}

// NewWatcher creates a watcher for path. current is the configuration the
// process is running with; it is handed to onReload as "old" on the first
// change. debounce <= 0 selects DefaultDebounce.
func NewWatcher(path string, current *Config, debounce time.Duration, onReload ReloadFunc) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		path:     path,
		debounce: debounce,
		onReload: onReload,
		current:  current,
		logger:   slog.Default().With("component", "config.watcher"),
		reloads:  make(chan struct{}, 1),
	}
}

// Run watches until ctx is cancelled. It returns nil on cancellation.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	abs, err := filepath.Abs(w.path)
	if err != nil {
		return fmt.Errorf("resolve config path: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		return fmt.Errorf("failed to watch %q: %w", filepath.Dir(abs), err)
	}

	w.logger.Info("Config watcher started", "path", abs, "debounce_ms", w.debounce.Milliseconds())
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Config watcher stopped")
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return errors.New("watcher events channel closed")
			}
			if !w.relevant(abs, event) {
				continue
			}
			w.logger.Debug("Config file event", "path", event.Name, "op", event.Op.String())
			w.schedule()

		case <-w.reloads:
			w.reload()

		case err, ok := <-fw.Errors:
			if !ok {
				return errors.New("watcher errors channel closed")
			}
			w.logger.Error("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) relevant(abs string, event fsnotify.Event) bool {
	if event.Op == fsnotify.Chmod {
		return false
	}
	name, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	if name == abs {
		return true
	}
	// ConfigMap volumes swap a "..data" symlink next to the file.
	return filepath.Base(name) == "..data"
}

// schedule (re)arms the debounce timer. The timer only signals the Run
// loop, so reloads never run concurrently.
func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		select {
		case w.reloads <- struct{}{}:
		default:
		}
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watcher) reload() {
	updated, err := ReloadConfig(w.path)
	if err != nil {
		w.logger.Error("Config reload failed, keeping previous configuration", "error", err)
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = updated
	w.mu.Unlock()

	if old != nil {
		if fields := RestartRequired(old, updated); len(fields) > 0 {
			w.logger.Warn("Config changes require a restart to take effect", "sections", fields)
		}
	}
	w.logger.Info("Configuration reloaded", "path", w.path)

	if w.onReload != nil {
		w.onReload(old, updated)
	}
}

// RestartRequired lists the top-level sections that differ between old and
// updated in ways that are not applied at runtime. The log level and the
// operator list are applied live and are ignored here.
func RestartRequired(old, updated *Config) []string {
	a, b := *old, *updated
	a.Telemetry.Logging.Level, b.Telemetry.Logging.Level = "", ""
	a.Notify.Operators, b.Notify.Operators = nil, nil

	var changed []string
	sections := []struct {
		name string
		x, y any
	}{
		{"marzban", a.Marzban, b.Marzban},
		{"monitoring", a.Monitoring, b.Monitoring},
		{"enforcement", a.Enforcement, b.Enforcement},
		{"storage", a.Storage, b.Storage},
		{"notify", a.Notify, b.Notify},
		{"server", a.Server, b.Server},
		{"telemetry", a.Telemetry, b.Telemetry},
		{"secrets", a.Secrets, b.Secrets},
	}
	for _, s := range sections {
		if !reflect.DeepEqual(s.x, s.y) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
