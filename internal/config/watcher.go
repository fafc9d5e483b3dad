package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"scenepilot/internal/logging"

	"github.com/fsnotify/fsnotify"
)

// Watcher watches the YAML config file for changes and reloads the tuning
// knobs at runtime, so the confidence constants can be recalibrated without
// restarting a session.
type Watcher struct {
	mu          sync.Mutex
	watcher     *fsnotify.Watcher
	path        string
	debounceDur time.Duration
	lastEvent   time.Time
	pending     bool
	onReload    func(*Config)
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
}

// NewWatcher creates a watcher for the given config file path.
// onReload is invoked with the freshly loaded config after each settled change.
func NewWatcher(path string, onReload func(*Config)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &Watcher{
		watcher:     fw,
		path:        path,
		debounceDur: 500 * time.Millisecond, // Debounce rapid saves
		onReload:    onReload,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}, nil
}

// Start begins watching. Non-blocking; the loop runs in a goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	// Watch the directory, not the file: editors replace files on save.
	dir := filepath.Dir(w.path)
	if err := w.watcher.Add(dir); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: initial watch failed: %v", err)
	}

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for cleanup.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.doneCh
	_ = w.watcher.Close()
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.mu.Lock()
			w.lastEvent = time.Now()
			w.pending = true
			w.mu.Unlock()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryBoot).Error("config watcher: %v", err)
		case <-ticker.C:
			w.reloadIfSettled()
		}
	}
}

func (w *Watcher) reloadIfSettled() {
	w.mu.Lock()
	settled := w.pending && time.Since(w.lastEvent) >= w.debounceDur
	if settled {
		w.pending = false
	}
	w.mu.Unlock()

	if !settled {
		return
	}

	cfg, err := Load(w.path)
	if err != nil {
		logging.Get(logging.CategoryBoot).Error("config watcher: reload failed: %v", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		logging.Get(logging.CategoryBoot).Warn("config watcher: rejected invalid config: %v", err)
		return
	}

	logging.Get(logging.CategoryBoot).Info("config watcher: reloaded %s", w.path)
	if w.onReload != nil {
		w.onReload(cfg)
	}
}
