package job

import (
	"sort"
	"time"

	"github.com/sd-io/sdcore/pkg/logging"
)

// RetentionPolicy purges terminal job reports older than MaxAge or, if
// MaxCount is positive, keeps only the MaxCount most recent terminal
// reports. A zero MaxAge or MaxCount disables that bound.
type RetentionPolicy struct {
	MaxAge   time.Duration
	MaxCount int
}

// PurgingStore is the subset of persistence RetentionPolicy needs beyond
// the base Store interface: listing every report (to find purge
// candidates) and deleting one by ID.
type PurgingStore interface {
	Store
	ListAll() ([]*Report, error)
	Delete(id string) error
}

// Run applies the policy once against store, deleting whichever terminal
// reports it selects for removal. It is intended to be invoked
// periodically from a housekeeping goroutine, the same way mutagen's own
// synchronization housekeeping loop periodically prunes archived session
// state.
func (p RetentionPolicy) Run(store PurgingStore, logger *logging.Logger) {
	reports, err := store.ListAll()
	if err != nil {
		logger.Error(err)
		return
	}

	var terminal []*Report
	for _, r := range reports {
		if r.Status.IsTerminal() {
			terminal = append(terminal, r)
		}
	}

	toPurge := map[string]bool{}

	if p.MaxAge > 0 {
		cutoff := time.Now().UTC().Add(-p.MaxAge)
		for _, r := range terminal {
			if r.UpdatedAt.Before(cutoff) {
				toPurge[r.ID] = true
			}
		}
	}

	if p.MaxCount > 0 && len(terminal) > p.MaxCount {
		sorted := append([]*Report(nil), terminal...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].UpdatedAt.After(sorted[j].UpdatedAt) })
		for _, r := range sorted[p.MaxCount:] {
			toPurge[r.ID] = true
		}
	}

	for id := range toPurge {
		if err := store.Delete(id); err != nil {
			logger.Error(err)
		}
	}
}
