package skills

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultReloadDebounce coalesces bursts of editor saves (write-then-rename,
// multiple writes) into a single manifest reload, matching the teacher's
// skill-watch debounce.
const defaultReloadDebounce = 250 * time.Millisecond

// Watcher reloads a skill manifest file into a Manager whenever the file
// changes on disk, so operators can edit skill bindings without restarting
// the process. Adapted from the fsnotify-based hot reload in the teacher's
// skill manager, repurposed here to watch one manifest file instead of a
// tree of markdown skill bundles.
type Watcher struct {
	path     string
	mgr      *Manager
	logger   *slog.Logger
	debounce time.Duration

	mu      sync.Mutex
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewWatcher creates a Watcher for path, applying reloads into mgr. If
// logger is nil, slog.Default() is used.
func NewWatcher(path string, mgr *Manager, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{path: path, mgr: mgr, logger: logger, debounce: defaultReloadDebounce}
}

// Start loads the manifest once synchronously, then begins watching path
// for further changes in the background.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.reload(); err != nil {
		return err
	}

	w.mu.Lock()
	if w.watcher != nil {
		w.mu.Unlock()
		return nil
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		w.mu.Unlock()
		return err
	}
	if err := fw.Add(w.path); err != nil {
		_ = fw.Close()
		w.mu.Unlock()
		return err
	}
	w.watcher = fw
	watchCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.mu.Unlock()

	w.wg.Add(1)
	go w.loop(watchCtx)
	return nil
}

// Close stops the watcher goroutine and releases the underlying fsnotify
// watcher.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	fw := w.watcher
	w.watcher = nil
	w.mu.Unlock()

	if fw != nil {
		_ = fw.Close()
	}
	w.wg.Wait()
	return nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer w.wg.Done()

	w.mu.Lock()
	fw := w.watcher
	w.mu.Unlock()
	if fw == nil {
		return
	}

	var mu sync.Mutex
	var timer *time.Timer
	scheduleReload := func() {
		mu.Lock()
		defer mu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.debounce, func() {
			if err := w.reload(); err != nil {
				w.logger.Warn("skill manifest reload failed", "path", w.path, "error", err)
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				scheduleReload()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("skill manifest watch error", "error", err)
		}
	}
}

func (w *Watcher) reload() error {
	manifest, err := LoadManifestFile(w.path)
	if err != nil {
		return err
	}
	if err := ApplyManifest(w.mgr, manifest); err != nil {
		return err
	}
	w.logger.Info("skill manifest reloaded", "path", w.path, "skills", len(manifest.Skills), "bindings", len(manifest.Bindings))
	return nil
}
