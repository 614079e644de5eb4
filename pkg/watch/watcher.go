package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/replug/replug/pkg/telemetry"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before firing. Editors save through write-and-rename bursts; the delay
// folds a burst into one trigger.
const DefaultDebounce = 500 * time.Millisecond

// Watcher watches the config and manifest files and reports changes once
// per debounced burst. It watches the parent directories rather than the
// files themselves: an atomic save replaces the inode, which would
// silently detach a per-file watch.
type Watcher struct {
	targets  map[string]string
	dirs     []string
	debounce time.Duration
	log      *telemetry.Logger

	mu       sync.Mutex
	fs       *fsnotify.Watcher
	timer    *time.Timer
	pending  map[string]struct{}
	onChange func(reason string)
	running  bool
}

// NewWatcher prepares a watcher over the two files. Events are labeled
// "config" or "manifest" so downstream consumers see a bounded reason
// set.
func NewWatcher(configPath, manifestPath string, debounce time.Duration, log *telemetry.Logger) (*Watcher, error) {
	if configPath == "" || manifestPath == "" {
		return nil, fmt.Errorf("config and manifest paths are required")
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	targets := make(map[string]string, 2)
	seen := make(map[string]bool, 2)
	var dirs []string
	for path, name := range map[string]string{configPath: "config", manifestPath: "manifest"} {
		abs, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		targets[abs] = name
		if dir := filepath.Dir(abs); !seen[dir] {
			seen[dir] = true
			dirs = append(dirs, dir)
		}
	}

	return &Watcher{
		targets:  targets,
		dirs:     dirs,
		debounce: debounce,
		log:      log.NewComponentLogger("watcher"),
		pending:  make(map[string]struct{}),
	}, nil
}

// Start begins watching and invokes onChange after each debounced burst
// of changes. The event loop runs until the context is canceled or the
// watcher is closed.
func (w *Watcher) Start(ctx context.Context, onChange func(reason string)) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already started")
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	for _, dir := range w.dirs {
		if err := fs.Add(dir); err != nil {
			_ = fs.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
	}

	w.fs = fs
	w.onChange = onChange
	w.running = true
	go w.loop(ctx)

	w.log.WithField("dirs", len(w.dirs)).Info("Started watching")

	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			_ = w.Close()
			return

		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			name, watched := w.targets[filepath.Clean(event.Name)]
			if !watched {
				continue
			}
			w.log.WithPath(event.Name).
				WithField("op", event.Op.String()).
				Debug("Watched file changed")
			w.schedule(name)

		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.log.WithError(err).Error("Watcher error")
		}
	}
}

// schedule queues a change and arms the debounce timer, restarting it if
// further events arrive before it fires.
func (w *Watcher) schedule(name string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[name] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

// fire drains the pending set into a single reason and invokes the
// callback.
func (w *Watcher) fire() {
	w.mu.Lock()
	names := make([]string, 0, len(w.pending))
	for name := range w.pending {
		names = append(names, name)
	}
	w.pending = make(map[string]struct{})
	onChange := w.onChange
	w.mu.Unlock()

	if len(names) == 0 || onChange == nil {
		return
	}
	sort.Strings(names)
	onChange(strings.Join(names, "+"))
}

// Healthy reports whether the event loop is running. It serves as the
// daemon's liveness check.
func (w *Watcher) Healthy() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.running {
		return fmt.Errorf("watch loop is not running")
	}
	return nil
}

// Close stops the watcher. Pending debounced callbacks are dropped.
func (w *Watcher) Close() error {
	w.mu.Lock()
	timer := w.timer
	fs := w.fs
	w.timer = nil
	w.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
	if fs != nil {
		return fs.Close()
	}
	return nil
}
