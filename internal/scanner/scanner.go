// Package scanner discovers .desktop files under the configured roots and
// reconciles them into the live index. Reconciliation preserves entry
// identity and usage history by source path and is idempotent: scanning an
// unchanged tree mutates nothing.
package scanner

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"

	"github.com/nettle-sh/lume/internal/desktop"
	"github.com/nettle-sh/lume/internal/index"
)

const defaultWorkers = 4

// Discovered is the parse result for one .desktop file found on disk.
type Discovered struct {
	desktop.Entry
	ContentHash uint64
}

// Scanner walks application roots and parses the entry files it finds.
type Scanner struct {
	roots   []string
	workers int
	log     *slog.Logger
}

// New creates a scanner over the given roots.
func New(roots []string, workers int, log *slog.Logger) *Scanner {
	if workers <= 0 {
		workers = defaultWorkers
	}
	if log == nil {
		log = slog.Default()
	}
	return &Scanner{roots: roots, workers: workers, log: log}
}

// Scan discovers all entries under the roots and reconciles them into ix.
// It returns the number of live entries and whether the index changed.
func (s *Scanner) Scan(ix *index.Index) (int, bool) {
	found := s.Discover()
	changed := Reconcile(ix, found)
	return ix.Len(), changed
}

// Discover walks every root, parses each .desktop file and returns the
// mapping from source path to parsed fields. Files that fail to parse are
// skipped; a missing or unreadable root is skipped as well.
func (s *Scanner) Discover() map[string]Discovered {
	paths := s.collect()

	found := make(map[string]Discovered, len(paths))
	var mu sync.Mutex
	var wg sync.WaitGroup

	pool, err := ants.NewPool(s.workers)
	if err != nil {
		// Pool creation only fails on bad sizes; parse inline instead.
		for _, p := range paths {
			if d, ok := s.parseOne(p); ok {
				found[p] = d
			}
		}
		return found
	}
	defer pool.Release()

	for _, p := range paths {
		wg.Add(1)
		path := p
		if err := pool.Submit(func() {
			defer wg.Done()
			if d, ok := s.parseOne(path); ok {
				mu.Lock()
				found[path] = d
				mu.Unlock()
			}
		}); err != nil {
			wg.Done()
			s.log.Warn("scanner: submitting parse job", "path", path, "error", err)
		}
	}
	wg.Wait()

	return found
}

// collect gathers candidate file paths. Visited real directories are
// tracked so symlink cycles terminate.
func (s *Scanner) collect() []string {
	var paths []string
	visited := make(map[string]bool)

	for _, root := range s.roots {
		err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				if info != nil && info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			if info.IsDir() {
				real, err := filepath.EvalSymlinks(path)
				if err != nil {
					return filepath.SkipDir
				}
				if visited[real] {
					return filepath.SkipDir
				}
				visited[real] = true
				return nil
			}
			if strings.HasSuffix(path, ".desktop") {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			s.log.Warn("scanner: walking root", "root", root, "error", err)
		}
	}
	return paths
}

func (s *Scanner) parseOne(path string) (Discovered, bool) {
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Debug("scanner: unreadable entry file", "path", path, "error", err)
		return Discovered{}, false
	}
	entry, err := desktop.Parse(data)
	if err != nil {
		if desktop.IsSkip(err) {
			s.log.Debug("scanner: skipping entry file", "path", path, "reason", err)
		} else {
			s.log.Warn("scanner: parsing entry file", "path", path, "error", err)
		}
		return Discovered{}, false
	}
	return Discovered{Entry: entry, ContentHash: xxhash.Sum64(data)}, true
}

// Reconcile merges a discovery result into the index. Entries already live
// at the same source path keep their ID and usage history; unchanged files
// (same content hash) are not touched; paths no longer present are removed.
// It reports whether the index was mutated.
func Reconcile(ix *index.Index, found map[string]Discovered) bool {
	changed := false

	for path, d := range found {
		if upsertDiscovered(ix, path, d) {
			changed = true
		}
	}

	for _, path := range ix.Paths() {
		if _, ok := found[path]; !ok {
			ix.RemoveByPath(path)
			changed = true
		}
	}
	return changed
}

// ReconcilePath re-parses a single file and merges the outcome into the
// index. A file that vanished or no longer parses as a visible application
// drops its entry. It reports whether the index was mutated.
func ReconcilePath(ix *index.Index, path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return ix.RemoveByPath(path)
	}
	entry, err := desktop.Parse(data)
	if err != nil {
		return ix.RemoveByPath(path)
	}
	return upsertDiscovered(ix, path, Discovered{Entry: entry, ContentHash: xxhash.Sum64(data)})
}

func upsertDiscovered(ix *index.Index, path string, d Discovered) bool {
	if cur, ok := ix.GetByPath(path); ok {
		if cur.ContentHash == d.ContentHash {
			return false
		}
		cur.Name = d.Name
		cur.Exec = d.Exec
		cur.Icon = d.Icon
		cur.Terminal = d.Terminal
		cur.ContentHash = d.ContentHash
		ix.Upsert(cur)
		return true
	}

	// A file recreated at a previously seen path gets its old identity and
	// usage history back.
	e := index.Entry{
		ID:          uuid.NewString(),
		Name:        d.Name,
		Exec:        d.Exec,
		Icon:        d.Icon,
		SourcePath:  path,
		Terminal:    d.Terminal,
		ContentHash: d.ContentHash,
	}
	if t, ok := ix.Tombstone(path); ok {
		e.ID = t.ID
		e.UsageCount = t.UsageCount
		e.LastUsed = t.LastUsed
	}
	ix.Upsert(e)
	return true
}
