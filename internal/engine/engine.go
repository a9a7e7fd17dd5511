// Package engine ties the index, scanner, cache and watcher together behind
// one explicitly constructed handle. All index mutations (scan
// reconciliation, watch batches, run accounting) are serialized through the
// engine; searches read a consistent snapshot and never touch the disk.
package engine

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nettle-sh/lume/internal/cache"
	"github.com/nettle-sh/lume/internal/config"
	"github.com/nettle-sh/lume/internal/index"
	"github.com/nettle-sh/lume/internal/ranker"
	"github.com/nettle-sh/lume/internal/scanner"
	"github.com/nettle-sh/lume/internal/watcher"
)

// ErrNotFound reports a run request for an unknown entry id, typically
// stale front-end state. It is returned to the caller, not logged.
var ErrNotFound = errors.New("application not found")

// Engine is the application index and search engine handle.
type Engine struct {
	cfg config.Config
	ix  *index.Index
	scn *scanner.Scanner
	w   *watcher.Watcher
	log *slog.Logger

	// mu serializes reconciliation passes (full rescans and watch batches).
	mu sync.Mutex

	flushCh  chan struct{}
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New builds an engine from resolved configuration: the cache is loaded (a
// corrupt or missing cache yields an empty index), a full scan reconciles
// the index against the filesystem, then the watcher takes over for live
// updates. A watch setup failure disables live updates but not the engine.
func New(cfg config.Config, log *slog.Logger) (*Engine, error) {
	if log == nil {
		log = slog.Default()
	}

	ix, err := cache.Load(cfg.CachePath)
	if err != nil {
		log.Warn("engine: cache unusable, starting from an empty index", "error", err)
	}

	e := &Engine{
		cfg:     cfg,
		ix:      ix,
		scn:     scanner.New(cfg.AppPaths, cfg.Workers, log),
		log:     log,
		flushCh: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	e.wg.Add(1)
	go e.flusher()

	count, changed := e.scn.Scan(e.ix)
	log.Info("engine: initial scan complete", "entries", count)
	if changed {
		e.scheduleFlush()
	}

	w, err := watcher.New(cfg.AppPaths, cfg.Debounce, e.applyPaths, log)
	if err != nil {
		log.Warn("engine: live updates disabled", "error", err)
	} else {
		e.w = w
	}

	return e, nil
}

// Search returns ranked results for the query. limit <= 0 means all.
func (e *Engine) Search(query string, limit int) []ranker.Result {
	results := ranker.Rank(e.ix.Snapshot(), query, e.cfg.Tuning)
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results
}

// Run records a launch of the entry: usage count is bumped, the run time
// stamped, and a cache flush scheduled. The updated entry is returned so
// the front end can spawn its command. Returns ErrNotFound for unknown ids.
func (e *Engine) Run(id string) (index.Entry, error) {
	if !e.ix.RecordRun(id, time.Now()) {
		return index.Entry{}, ErrNotFound
	}
	entry, _ := e.ix.Get(id)
	e.scheduleFlush()
	return entry, nil
}

// Get retrieves one entry by id.
func (e *Engine) Get(id string) (index.Entry, bool) {
	return e.ix.Get(id)
}

// Count returns the number of indexed entries.
func (e *Engine) Count() int {
	return e.ix.Len()
}

// WatchStats reports watcher activity. Zero values when live updates are
// disabled.
func (e *Engine) WatchStats() watcher.Stats {
	if e.w == nil {
		return watcher.Stats{}
	}
	return e.w.GetStats()
}

// Rescan runs a full scan and reconciliation, compensating for roots the
// watcher could not cover. It returns the number of live entries.
func (e *Engine) Rescan() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	count, changed := e.scn.Scan(e.ix)
	if changed {
		e.scheduleFlush()
	}
	return count
}

// Shutdown stops the watcher, drains in-flight work and performs one final
// synchronous cache flush. It is idempotent.
func (e *Engine) Shutdown() error {
	var err error
	e.stopOnce.Do(func() {
		if e.w != nil {
			e.w.Stop()
		}
		close(e.done)
		e.wg.Wait()

		err = cache.Save(e.cfg.CachePath, e.ix)
		if err != nil {
			e.log.Error("engine: final cache flush failed", "path", e.cfg.CachePath, "error", err)
		}
	})
	return err
}

// applyPaths is the watcher callback: one debounced batch of affected
// paths, each re-parsed and reconciled individually.
func (e *Engine) applyPaths(paths []string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	changed := false
	for _, p := range paths {
		if scanner.ReconcilePath(e.ix, p) {
			changed = true
		}
	}
	if changed {
		e.scheduleFlush()
	}
}

// scheduleFlush requests an asynchronous cache write. Requests arriving
// while a flush is already pending coalesce into it.
func (e *Engine) scheduleFlush() {
	select {
	case e.flushCh <- struct{}{}:
	default:
	}
}

func (e *Engine) flusher() {
	defer e.wg.Done()

	for {
		select {
		case <-e.done:
			return
		case <-e.flushCh:
			if err := cache.Save(e.cfg.CachePath, e.ix); err != nil {
				// Not fatal; the next scheduled flush retries.
				e.log.Error("engine: cache write failed", "path", e.cfg.CachePath, "error", err)
			}
		}
	}
}
