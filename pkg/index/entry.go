// Package index implements the incremental filesystem indexer: an
// iterative walk, rule-based filtering (pkg/index/rules), change detection
// against previously indexed rows, and bottom-up aggregation of directory
// sizes and counts. Two Persistence backends are provided:
// pkg/index/dbindex (library-database-backed) and pkg/index/ephemeral (an
// in-memory arena for browsing unindexed network shares). The walking
// strategy is a direct generalization of mutagen's scan loop in
// pkg/synchronization/core/snapshot.go, adapted from content-diffing to
// row-level change detection.
package index

import "time"

// Kind identifies the type of filesystem object an Entry represents.
type Kind int

const (
	// KindFile indicates a regular file.
	KindFile Kind = iota
	// KindDirectory indicates a directory.
	KindDirectory
	// KindSymlink indicates a symbolic link.
	KindSymlink
)

// Mode identifies a location's indexing mode.
type Mode int

const (
	// ModeShallow indexes only metadata without content hashing.
	ModeShallow Mode = iota
	// ModeDeep indexes metadata and performs content hashing/thumbnailing.
	ModeDeep
	// ModeEphemeral indexes into an in-memory arena without persistence or
	// sync events, for browsing unindexed network shares.
	ModeEphemeral
)

// Entry represents a single filesystem object row, as described by the
// addressing/indexing data model.
type Entry struct {
	// ID is the persistence-layer row identifier (an integer primary key for
	// dbindex, or the arena EntryId plus one for ephemeral, so that zero
	// stays free to mean "no entry").
	ID int64
	// UUID is assigned immediately for directories and zero-size files, and
	// on successful content hashing for non-empty files. It is empty
	// (unassigned) until then, and is immutable once assigned.
	UUID string
	// Kind identifies the filesystem object type.
	Kind Kind
	// Name is the base name of the entry.
	Name string
	// Extension is the lowercased file extension, without the leading dot.
	Extension string
	// RelativePath is the path of the parent directory, relative to the
	// location root.
	RelativePath string
	// Size is the entry's size in bytes (zero for directories).
	Size int64
	// Inode is the platform-reported inode number.
	Inode uint64
	// ModifiedTime is the last-modified timestamp.
	ModifiedTime time.Time
	// ChangeTime is the last metadata-change timestamp.
	ChangeTime time.Time
	// ParentID is the parent entry's ID, or zero for a location root.
	ParentID int64
	// AggregateSize is the sum of sizes of all transitive descendant files,
	// meaningful only for directories.
	AggregateSize int64
	// ChildCount is the number of direct children, meaningful only for
	// directories.
	ChildCount int64
	// FileCount is the count of transitive descendant files, meaningful only
	// for directories.
	FileCount int64
	// ContentID is the content identity this entry's bytes hash to, or empty
	// if not yet (or never, for directories/symlinks) computed.
	ContentID string
}

// IsLocationRoot reports whether this entry is the root of its location
// (the sole entry permitted a null parent).
func (e *Entry) IsLocationRoot() bool {
	return e.ParentID == 0
}
