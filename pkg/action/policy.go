package action

// ConflictPolicy controls what a copy or move does when an entry already
// exists at the destination name.
type ConflictPolicy int

const (
	// ConflictSkip leaves the existing destination entry untouched and
	// omits the conflicting source from the operation.
	ConflictSkip ConflictPolicy = iota
	// ConflictOverwrite replaces the existing destination entry.
	ConflictOverwrite
	// ConflictRename appends a numeric suffix to the source's name until it
	// no longer collides with an existing destination entry.
	ConflictRename
)

// String renders the policy for logging.
func (p ConflictPolicy) String() string {
	switch p {
	case ConflictSkip:
		return "skip"
	case ConflictOverwrite:
		return "overwrite"
	case ConflictRename:
		return "rename"
	default:
		return "unknown"
	}
}

// DedupStrategy controls how a dedup action disposes of redundant entries
// sharing a content_id.
type DedupStrategy int

const (
	// DedupHardlink replaces every redundant entry's bytes with a hardlink
	// to one canonical copy, keeping the directory entries but collapsing
	// storage.
	DedupHardlink DedupStrategy = iota
	// DedupDelete removes every redundant entry outright, keeping only the
	// canonical copy.
	DedupDelete
)

// String renders the strategy for logging.
func (s DedupStrategy) String() string {
	switch s {
	case DedupHardlink:
		return "hardlink"
	case DedupDelete:
		return "delete"
	default:
		return "unknown"
	}
}
