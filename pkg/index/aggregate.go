package index

import (
	"context"
	"fmt"
)

// Aggregate recomputes aggregate_size, child_count, and file_count for
// every directory in the subtree rooted at rootID, using the closure-table-
// backed Children accessor, bottom-up (children before their parent).
// This is run as a distinct phase after the file walk, per the indexer
// spec's "Aggregation" step.
func Aggregate(ctx context.Context, persistence Persistence, locationID, rootID int64) (aggregateSize, fileCount int64, err error) {
	children, err := persistence.Children(ctx, locationID, rootID)
	if err != nil {
		return 0, 0, fmt.Errorf("unable to load children of %d: %w", rootID, err)
	}

	var childCount int64
	for _, child := range children {
		childCount++
		switch child.Kind {
		case KindDirectory:
			childAggregate, childFiles, err := Aggregate(ctx, persistence, locationID, child.ID)
			if err != nil {
				return 0, 0, err
			}
			aggregateSize += childAggregate
			fileCount += childFiles
		case KindFile:
			aggregateSize += child.Size
			fileCount++
		case KindSymlink:
			// Symlinks contribute neither bytes nor file-count toward their
			// parent's aggregate.
		}
	}

	if err := persistence.SetAggregate(ctx, rootID, aggregateSize, childCount, fileCount); err != nil {
		return 0, 0, fmt.Errorf("unable to persist aggregate for %d: %w", rootID, err)
	}

	return aggregateSize, fileCount, nil
}
