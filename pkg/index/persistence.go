package index

import "context"

// ExistingEntry is the subset of a previously indexed row's fields needed to
// perform change detection against a freshly walked filesystem object.
type ExistingEntry struct {
	// ID is the persisted entry's identifier.
	ID int64
	// Inode is the persisted inode number.
	Inode uint64
	// ModifiedTime is the persisted modification time.
	ModifiedTime int64
	// Size is the persisted size.
	Size int64
	// UUID is the persisted entry's UUID, or empty if none has been
	// assigned yet (a file awaiting content hashing).
	UUID string
}

// Persistence is the contract both the database-backed and ephemeral
// index backends implement, per the indexer's persistence abstraction.
type Persistence interface {
	// ExistingEntries loads the entries that currently exist for the exact
	// subtree being indexed (the location root, or a sub-path within it),
	// keyed by their absolute filesystem path.
	ExistingEntries(ctx context.Context, locationID int64, subtreeAbsolutePath string) (map[string]ExistingEntry, error)

	// Insert creates a new entry row and returns its assigned ID.
	Insert(ctx context.Context, locationID int64, e *Entry) (int64, error)

	// Update updates an existing entry row in place.
	Update(ctx context.Context, e *Entry) error

	// Delete removes an entry row. If the entry carries a ContentID, the
	// backend is responsible for decrementing that content identity's
	// reference count.
	Delete(ctx context.Context, id int64) error

	// SetAggregate persists the computed aggregate size, child count, and
	// file count for a directory entry.
	SetAggregate(ctx context.Context, id int64, aggregateSize, childCount, fileCount int64) error

	// Children returns the direct children of the given entry ID, used by
	// the bottom-up aggregation pass. A parent ID of zero means the location
	// root.
	Children(ctx context.Context, locationID, parentID int64) ([]*Entry, error)

	// EmitsSyncEvents reports whether writes through this backend should
	// produce sync events. The ephemeral backend always returns false.
	EmitsSyncEvents() bool
}
