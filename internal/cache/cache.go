// Package cache persists the application index as a compact binary snapshot.
// Saves are atomic (temp file in the target directory, then rename) so a
// crash mid-write never corrupts the previously good cache. The encoding is
// deterministic: entries are sorted by source path, so saving an unchanged
// index reproduces the file byte for byte.
package cache

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/mus-format/mus-go/varint"

	"github.com/nettle-sh/lume/internal/index"
)

var magic = []byte("LUME")

const formatVersion = 1

// ErrCorrupt marks a cache file that could not be decoded. Callers treat it
// as an empty cache; the scanner repopulates the index.
var ErrCorrupt = errors.New("corrupt cache file")

// Load reads the cache at path. A missing file yields an empty index and no
// error. An unreadable or corrupt file yields an empty index and an error
// describing why; the caller logs it and carries on.
func Load(path string) (*index.Index, error) {
	ix := index.New()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ix, nil
		}
		return ix, fmt.Errorf("reading cache %s: %w", path, err)
	}

	entries, err := decode(data)
	if err != nil {
		return index.New(), fmt.Errorf("decoding cache %s: %w", path, err)
	}
	for _, e := range entries {
		ix.Upsert(e)
	}
	return ix, nil
}

// Save atomically writes a snapshot of the index to path, creating parent
// directories as needed.
func Save(path string, ix *index.Index) error {
	data := encode(ix.Snapshot())

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("creating cache directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".lume-cache-*")
	if err != nil {
		return fmt.Errorf("creating temp cache file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("writing temp cache file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("syncing temp cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("closing temp cache file: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("setting cache file mode: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("renaming cache file into place: %w", err)
	}
	return nil
}

func encode(entries []index.Entry) []byte {
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].SourcePath < entries[j].SourcePath
	})

	size := len(magic) + 1 + varint.PositiveInt.Size(len(entries))
	for _, e := range entries {
		size += EntryMUS.Size(e)
	}

	bs := make([]byte, size)
	n := copy(bs, magic)
	bs[n] = formatVersion
	n++
	n += varint.PositiveInt.Marshal(len(entries), bs[n:])
	for _, e := range entries {
		n += EntryMUS.Marshal(e, bs[n:])
	}
	return bs
}

func decode(data []byte) ([]index.Entry, error) {
	if len(data) < len(magic)+1 || !bytes.Equal(data[:len(magic)], magic) {
		return nil, ErrCorrupt
	}
	if data[len(magic)] != formatVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorrupt, data[len(magic)])
	}
	n := len(magic) + 1

	count, n1, err := varint.PositiveInt.Unmarshal(data[n:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	n += n1

	entries := make([]index.Entry, 0, count)
	for i := 0; i < count; i++ {
		e, n1, err := EntryMUS.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, i, err)
		}
		n += n1
		entries = append(entries, e)
	}
	if n != len(data) {
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrCorrupt, len(data)-n)
	}
	return entries, nil
}
