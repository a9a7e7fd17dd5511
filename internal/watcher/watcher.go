// Package watcher keeps the index in sync with the filesystem. It
// subscribes to change events on every scanned root, coalesces bursts of
// events in a debounce window, and hands the affected paths to an apply
// callback as one batch. Renames surface as a remove of the old path plus a
// create of the new one, which the per-path reconcile handles naturally.
package watcher

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors application roots for .desktop file changes.
type Watcher struct {
	fsw      *fsnotify.Watcher
	debounce time.Duration
	apply    func(paths []string)
	log      *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	pending map[string]struct{}
	timer   *time.Timer

	// applyMu serializes flushes so Stop can wait out an in-flight batch.
	applyMu sync.Mutex

	statsMu   sync.Mutex
	events    int64
	batches   int64
	lastEvent time.Time
}

// Stats reports watcher activity counters.
type Stats struct {
	Events    int64
	Batches   int64
	LastEvent time.Time
}

// New starts watching the given roots. Every change batch is delivered to
// apply after the debounce window closes. A root that cannot be watched is
// logged and excluded; only a failure to create the underlying watcher is
// an error.
func New(roots []string, debounce time.Duration, apply func(paths []string), log *slog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := &Watcher{
		fsw:      fsw,
		debounce: debounce,
		apply:    apply,
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		pending:  make(map[string]struct{}),
	}

	for _, root := range roots {
		if err := w.addWatches(root); err != nil {
			w.log.Warn("watcher: cannot watch root", "root", root, "error", err)
		}
	}

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Stop shuts the watcher down: event subscription ends, an in-flight batch
// is allowed to finish, and any still-pending paths are applied
// synchronously before Stop returns.
func (w *Watcher) Stop() {
	w.cancel()
	if err := w.fsw.Close(); err != nil {
		w.log.Warn("watcher: closing fsnotify watcher", "error", err)
	}

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	w.wg.Wait()
	w.flush()
}

// GetStats returns activity counters.
func (w *Watcher) GetStats() Stats {
	w.statsMu.Lock()
	defer w.statsMu.Unlock()
	return Stats{Events: w.events, Batches: w.batches, LastEvent: w.lastEvent}
}

// addWatches recursively watches every directory under root. Visited real
// paths are tracked so symlink cycles terminate.
func (w *Watcher) addWatches(root string) error {
	visited := make(map[string]bool)

	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			return nil
		}
		if !info.IsDir() {
			return nil
		}

		real, err := filepath.EvalSymlinks(path)
		if err != nil {
			return filepath.SkipDir
		}
		if visited[real] {
			return filepath.SkipDir
		}
		visited[real] = true

		if err := w.fsw.Add(path); err != nil {
			w.log.Warn("watcher: adding watch", "dir", path, "error", err)
		}
		return nil
	})
}

func (w *Watcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("watcher: event stream error", "error", err)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := event.Name

	// A freshly created directory needs its own watch, and files created
	// inside it before the watch was in place need to be picked up.
	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if err := w.addWatches(path); err != nil {
				w.log.Warn("watcher: watching new directory", "dir", path, "error", err)
			}
			w.enqueueDir(path)
			return
		}
	}

	if !strings.HasSuffix(path, ".desktop") {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}
	w.enqueue(path)
}

func (w *Watcher) enqueueDir(dir string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".desktop") {
			w.enqueue(filepath.Join(dir, e.Name()))
		}
	}
}

// enqueue records the path and restarts the debounce window. Repeated
// events on the same path within the window collapse into one entry; the
// apply pass reads the latest file content.
func (w *Watcher) enqueue(path string) {
	w.statsMu.Lock()
	w.events++
	w.lastEvent = time.Now()
	w.statsMu.Unlock()

	w.mu.Lock()
	defer w.mu.Unlock()

	w.pending[path] = struct{}{}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.flush)
}

// flush applies all pending paths as one batch.
func (w *Watcher) flush() {
	w.applyMu.Lock()
	defer w.applyMu.Unlock()

	w.mu.Lock()
	if len(w.pending) == 0 {
		w.mu.Unlock()
		return
	}
	paths := make([]string, 0, len(w.pending))
	for p := range w.pending {
		paths = append(paths, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(paths)
	w.log.Debug("watcher: applying batch", "paths", len(paths))
	w.apply(paths)

	w.statsMu.Lock()
	w.batches++
	w.statsMu.Unlock()
}
