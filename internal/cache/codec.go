package cache

import (
	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"

	"github.com/nettle-sh/lume/internal/index"
)

// entryMUS is the mus-go serializer for one index entry. Field order is the
// wire format; bump formatVersion when it changes.
type entryMUS struct{}

// EntryMUS serializes index entries in the mus format.
var EntryMUS = entryMUS{}

func (entryMUS) Marshal(e index.Entry, bs []byte) (n int) {
	n = ord.String.Marshal(e.ID, bs)
	n += ord.String.Marshal(e.Name, bs[n:])
	n += ord.String.Marshal(e.Exec, bs[n:])
	n += ord.String.Marshal(e.Icon, bs[n:])
	n += ord.String.Marshal(e.SourcePath, bs[n:])
	n += ord.Bool.Marshal(e.Terminal, bs[n:])
	n += varint.Uint64.Marshal(e.UsageCount, bs[n:])
	n += varint.Int64.Marshal(e.LastUsed, bs[n:])
	n += varint.Uint64.Marshal(e.ContentHash, bs[n:])
	return n
}

func (entryMUS) Unmarshal(bs []byte) (e index.Entry, n int, err error) {
	var n1 int
	e.ID, n, err = ord.String.Unmarshal(bs)
	if err != nil {
		return
	}
	e.Name, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Exec, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Icon, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.SourcePath, n1, err = ord.String.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.Terminal, n1, err = ord.Bool.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.UsageCount, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.LastUsed, n1, err = varint.Int64.Unmarshal(bs[n:])
	n += n1
	if err != nil {
		return
	}
	e.ContentHash, n1, err = varint.Uint64.Unmarshal(bs[n:])
	n += n1
	return
}

func (entryMUS) Size(e index.Entry) (size int) {
	size = ord.String.Size(e.ID)
	size += ord.String.Size(e.Name)
	size += ord.String.Size(e.Exec)
	size += ord.String.Size(e.Icon)
	size += ord.String.Size(e.SourcePath)
	size += ord.Bool.Size(e.Terminal)
	size += varint.Uint64.Size(e.UsageCount)
	size += varint.Int64.Size(e.LastUsed)
	size += varint.Uint64.Size(e.ContentHash)
	return size
}
