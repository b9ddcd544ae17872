// Package ephemeral implements an in-memory index.Persistence backend for
// browsing unindexed network shares and other locations that should never
// be written to the library database or emit sync events. Rows live in a
// dense arena rather than a map-of-structs, since a single browse session
// can enumerate hundreds of thousands of entries that are thrown away the
// moment the UI navigates elsewhere.
package ephemeral

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/sd-io/sdcore/pkg/index"
)

// EntryId identifies a row within a single Arena. It is never persisted
// beyond the arena's lifetime and is meaningless across Arena instances.
type EntryId uint32

// MaybeEntryId is the sentinel value denoting "no entry" (a null parent, or
// an absent lookup result), chosen as the maximum uint32 so that valid IDs
// can be allocated starting from zero without a reserved value in the
// middle of the range.
const MaybeEntryId EntryId = math.MaxUint32

// PackedMetadata packs an entry's kind, tombstone state, size, and two
// timestamps into 16 bytes, keeping the arena's per-row footprint small
// relative to a naive struct-of-fields layout at the scale of a deep
// unindexed share.
type PackedMetadata struct {
	data [16]byte
}

const maxPackedSize = (int64(1) << 60) - 1

// packMetadata builds a PackedMetadata from its logical fields. size is
// clamped to 60 bits (2^60 bytes is well beyond any real file, so clamping
// rather than erroring is the simpler choice). mtime and ctime are Unix
// seconds truncated to 32 bits, which silently wraps past the year 2106 -
// an accepted limitation for a best-effort browse view.
func packMetadata(kind index.Kind, tombstoned bool, size, mtime, ctime int64) PackedMetadata {
	if size < 0 {
		size = 0
	} else if size > maxPackedSize {
		size = maxPackedSize
	}

	var header uint64
	header |= uint64(kind) & 0x3
	if tombstoned {
		header |= 1 << 2
	}
	header |= uint64(size) << 4

	var m PackedMetadata
	binary.LittleEndian.PutUint64(m.data[0:8], header)
	binary.LittleEndian.PutUint32(m.data[8:12], uint32(mtime))
	binary.LittleEndian.PutUint32(m.data[12:16], uint32(ctime))
	return m
}

func (m PackedMetadata) header() uint64 {
	return binary.LittleEndian.Uint64(m.data[0:8])
}

func (m PackedMetadata) kind() index.Kind {
	return index.Kind(m.header() & 0x3)
}

func (m PackedMetadata) tombstoned() bool {
	return m.header()&(1<<2) != 0
}

func (m PackedMetadata) size() int64 {
	return int64(m.header() >> 4)
}

func (m PackedMetadata) modifiedTime() int64 {
	return int64(binary.LittleEndian.Uint32(m.data[8:12]))
}

func (m PackedMetadata) changeTime() int64 {
	return int64(binary.LittleEndian.Uint32(m.data[12:16]))
}

// row is a single arena slot. Aggregate fields are kept outside the packed
// metadata since they only apply to directories and change on every
// Aggregate pass, where repacking the full 16 bytes for a size-only update
// would be wasted work.
type row struct {
	nameID        uint32
	parent        EntryId
	metadata      PackedMetadata
	aggregateSize int64
	childCount    int64
	fileCount     int64
	contentID     string
}

// Arena is an in-memory, non-persistent index.Persistence implementation.
// It never emits sync events and is discarded wholesale when a browse
// session ends.
type Arena struct {
	mu sync.RWMutex

	rows []row

	names     []string
	nameIndex map[string]uint32

	// pathIndex maps an absolute filesystem path to the arena row
	// representing it, standing in for the closure table a persisted
	// backend would maintain.
	pathIndex map[string]EntryId
}

// New constructs an empty Arena.
func New() *Arena {
	return &Arena{
		nameIndex: make(map[string]uint32),
		pathIndex: make(map[string]EntryId),
	}
}

func (a *Arena) internName(name string) uint32 {
	if id, ok := a.nameIndex[name]; ok {
		return id
	}
	id := uint32(len(a.names))
	a.names = append(a.names, name)
	a.nameIndex[name] = id
	return id
}

func (a *Arena) entryIdFor(id int64) EntryId {
	if id == 0 {
		return MaybeEntryId
	}
	return EntryId(id - 1)
}

func (a *Arena) toRowID(id EntryId) int64 {
	if id == MaybeEntryId {
		return 0
	}
	return int64(id) + 1
}

func (a *Arena) toEntry(id EntryId) *index.Entry {
	r := a.rows[id]
	kind := r.metadata.kind()
	e := &index.Entry{
		ID:            a.toRowID(id),
		Kind:          kind,
		Name:          a.names[r.nameID],
		Size:          r.metadata.size(),
		ParentID:      a.toRowID(r.parent),
		AggregateSize: r.aggregateSize,
		ChildCount:    r.childCount,
		FileCount:     r.fileCount,
		ContentID:     r.contentID,
	}
	return e
}

// ExistingEntries is unsupported for the ephemeral backend: a browse
// session always performs a full fresh walk rather than reconciling
// against a prior one, since nothing about it is durable across calls.
func (a *Arena) ExistingEntries(_ context.Context, _ int64, _ string) (map[string]index.ExistingEntry, error) {
	return map[string]index.ExistingEntry{}, nil
}

// Insert adds a new row to the arena and returns its ID (1-based, so that
// zero continues to mean "no parent" per index.Entry.IsLocationRoot).
func (a *Arena) Insert(_ context.Context, _ int64, e *index.Entry) (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := row{
		nameID:    a.internName(e.Name),
		parent:    a.entryIdFor(e.ParentID),
		metadata:  packMetadata(e.Kind, false, e.Size, e.ModifiedTime.Unix(), e.ChangeTime.Unix()),
		contentID: e.ContentID,
	}
	a.rows = append(a.rows, r)
	id := EntryId(len(a.rows) - 1)
	return a.toRowID(id), nil
}

// Update overwrites an existing row in place.
func (a *Arena) Update(_ context.Context, e *index.Entry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	id := a.entryIdFor(e.ID)
	if int(id) >= len(a.rows) {
		return fmt.Errorf("ephemeral: no such entry %d", e.ID)
	}
	r := &a.rows[id]
	r.nameID = a.internName(e.Name)
	r.metadata = packMetadata(e.Kind, false, e.Size, e.ModifiedTime.Unix(), e.ChangeTime.Unix())
	r.contentID = e.ContentID
	return nil
}

// Delete marks a row tombstoned. Arena slots are never reclaimed mid-walk,
// since EntryId values handed out earlier in the same walk (as a parent ID
// for a child already pushed onto the walker's stack) must stay valid.
func (a *Arena) Delete(_ context.Context, id int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rowID := a.entryIdFor(id)
	if int(rowID) >= len(a.rows) {
		return fmt.Errorf("ephemeral: no such entry %d", id)
	}
	r := &a.rows[rowID]
	m := r.metadata
	r.metadata = packMetadata(m.kind(), true, m.size(), m.modifiedTime(), m.changeTime())
	return nil
}

// SetAggregate persists a directory's rolled-up size and counts.
func (a *Arena) SetAggregate(_ context.Context, id int64, aggregateSize, childCount, fileCount int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	rowID := a.entryIdFor(id)
	if int(rowID) >= len(a.rows) {
		return fmt.Errorf("ephemeral: no such entry %d", id)
	}
	r := &a.rows[rowID]
	r.aggregateSize = aggregateSize
	r.childCount = childCount
	r.fileCount = fileCount
	return nil
}

// Children returns the direct, non-tombstoned children of parentID.
func (a *Arena) Children(_ context.Context, _ int64, parentID int64) ([]*index.Entry, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	parent := a.entryIdFor(parentID)
	var children []*index.Entry
	for i := range a.rows {
		if a.rows[i].parent != parent {
			continue
		}
		if a.rows[i].metadata.tombstoned() {
			continue
		}
		children = append(children, a.toEntry(EntryId(i)))
	}
	return children, nil
}

// EmitsSyncEvents always returns false: an ephemeral browse session is
// local-only and never participates in device sync.
func (a *Arena) EmitsSyncEvents() bool { return false }

// Len reports the number of rows in the arena, including tombstoned ones.
func (a *Arena) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.rows)
}

var _ index.Persistence = (*Arena)(nil)
