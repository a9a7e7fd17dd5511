package index

import (
	"sync"
	"time"
)

// Entry represents a single indexed application.
type Entry struct {
	ID          string // Unique identifier, assigned at first discovery
	Name        string // Display name
	Exec        string // Command to execute, field codes stripped
	Icon        string // Icon path or theme name, may be empty
	SourcePath  string // Path to the originating .desktop file
	Terminal    bool   // Whether to run in a terminal
	UsageCount  uint64 // Number of times the entry was run
	LastUsed    int64  // Unix milliseconds of the most recent run, 0 if never
	ContentHash uint64 // xxhash64 of the source file contents
}

// Index stores all indexed entries with thread-safe access. Entries are
// keyed by ID; a secondary mapping from source path to ID supports
// reconciliation. The two mappings are kept mutually consistent and no two
// live entries share a source path.
type Index struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	byPath  map[string]string

	// tombstones remembers identity and usage of removed entries by source
	// path for the lifetime of this index, so a file deleted and recreated
	// at the same path gets its history back. Tombstones are never
	// persisted.
	tombstones map[string]Tombstone
}

// Tombstone is the retained identity of a removed entry.
type Tombstone struct {
	ID         string
	UsageCount uint64
	LastUsed   int64
}

// New creates a new empty index.
func New() *Index {
	return &Index{
		entries:    make(map[string]*Entry),
		byPath:     make(map[string]string),
		tombstones: make(map[string]Tombstone),
	}
}

// Upsert inserts or replaces the entry with the same ID. If a different
// entry already owns the same source path it is evicted first, so the path
// mapping stays unique.
func (ix *Index) Upsert(e Entry) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prevID, ok := ix.byPath[e.SourcePath]; ok && prevID != e.ID {
		delete(ix.entries, prevID)
	}
	if prev, ok := ix.entries[e.ID]; ok && prev.SourcePath != e.SourcePath {
		delete(ix.byPath, prev.SourcePath)
	}

	stored := e
	ix.entries[e.ID] = &stored
	ix.byPath[e.SourcePath] = e.ID
	delete(ix.tombstones, e.SourcePath)
}

// Get retrieves an entry by ID.
func (ix *Index) Get(id string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	e, ok := ix.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// GetByPath retrieves an entry by its source path.
func (ix *Index) GetByPath(path string) (Entry, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	id, ok := ix.byPath[path]
	if !ok {
		return Entry{}, false
	}
	e, ok := ix.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

// RemoveByPath removes the entry owning the given source path. It reports
// whether an entry was removed.
func (ix *Index) RemoveByPath(path string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	id, ok := ix.byPath[path]
	if !ok {
		return false
	}
	if e, ok := ix.entries[id]; ok {
		ix.tombstones[path] = Tombstone{ID: e.ID, UsageCount: e.UsageCount, LastUsed: e.LastUsed}
	}
	delete(ix.byPath, path)
	delete(ix.entries, id)
	return true
}

// Tombstone returns the retained identity of a previously removed entry at
// the given source path, if any.
func (ix *Index) Tombstone(path string) (Tombstone, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	t, ok := ix.tombstones[path]
	return t, ok
}

// RecordRun increments the usage count of the entry and stamps the run
// time. It reports whether the entry exists.
func (ix *Index) RecordRun(id string, at time.Time) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	e, ok := ix.entries[id]
	if !ok {
		return false
	}
	e.UsageCount++
	e.LastUsed = at.UnixMilli()
	return true
}

// Snapshot returns a copy of all entries. The slice carries no ordering
// guarantee; ranking is the ranker's responsibility.
func (ix *Index) Snapshot() []Entry {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	result := make([]Entry, 0, len(ix.entries))
	for _, e := range ix.entries {
		result = append(result, *e)
	}
	return result
}

// Paths returns the set of live source paths.
func (ix *Index) Paths() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	result := make([]string, 0, len(ix.byPath))
	for p := range ix.byPath {
		result = append(result, p)
	}
	return result
}

// Len returns the number of entries in the index.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.entries)
}
