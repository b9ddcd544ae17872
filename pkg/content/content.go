// Package content implements the content-identification pipeline: hashing
// indexed files to assign a content_id, and dispatching thumbnail
// generation across a bounded worker pool so a deep index of a large
// location doesn't spawn one goroutine per file.
package content

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/sd-io/sdcore/pkg/content/hash"
	"github.com/sd-io/sdcore/pkg/content/thumbnail"
)

// IdentityStore is the subset of the library database this package needs:
// recording a content identity (creating it if this is the first entry to
// hash to it) and attaching an entry to that identity.
type IdentityStore interface {
	// EnsureIdentity records that contentID exists, returning true if this
	// call created it (the entry is the first to reference this content).
	EnsureIdentity(ctx context.Context, contentID string) (created bool, err error)
	// AttachEntry links entryID to contentID and assigns the entry's UUID
	// if it does not already have one.
	AttachEntry(ctx context.Context, entryID int64, contentID string) error
	// RecordNonCriticalError logs a per-entry hashing failure without
	// failing the surrounding job, per the indexer's non-critical error
	// policy.
	RecordNonCriticalError(ctx context.Context, entryID int64, err error)
}

// Pipeline drives content identification for a set of entries.
type Pipeline struct {
	Store      IdentityStore
	Thumbnails *thumbnail.Registry
	// Concurrency bounds how many files are hashed/thumbnailed at once.
	Concurrency int
}

// FileRef is the minimal description of an indexed file the pipeline needs
// to process it.
type FileRef struct {
	EntryID      int64
	AbsolutePath string
	MIMEType     string
}

// Run hashes and thumbnails every file in refs concurrently, bounded by
// Concurrency, continuing past individual failures (recorded via
// RecordNonCriticalError) rather than aborting the whole batch - mirroring
// the job system's non-critical error policy for long-running operations.
func (p *Pipeline) Run(ctx context.Context, refs []FileRef) error {
	concurrency := p.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	group, groupCtx := errgroup.WithContext(ctx)
	sem := make(chan struct{}, concurrency)

	for _, ref := range refs {
		ref := ref
		sem <- struct{}{}
		group.Go(func() error {
			defer func() { <-sem }()
			p.processOne(groupCtx, ref)
			return nil
		})
	}

	return group.Wait()
}

// processOne hashes a single file and attaches its content identity,
// recording (but not propagating) any failure.
func (p *Pipeline) processOne(ctx context.Context, ref FileRef) {
	f, err := os.Open(ref.AbsolutePath)
	if err != nil {
		p.Store.RecordNonCriticalError(ctx, ref.EntryID, fmt.Errorf("open: %w", err))
		return
	}
	defer f.Close()

	contentID, err := hash.Hash(f)
	if err != nil {
		p.Store.RecordNonCriticalError(ctx, ref.EntryID, fmt.Errorf("hash: %w", err))
		return
	}

	created, err := p.Store.EnsureIdentity(ctx, contentID)
	if err != nil {
		p.Store.RecordNonCriticalError(ctx, ref.EntryID, fmt.Errorf("ensure identity: %w", err))
		return
	}

	if err := p.Store.AttachEntry(ctx, ref.EntryID, contentID); err != nil {
		p.Store.RecordNonCriticalError(ctx, ref.EntryID, fmt.Errorf("attach entry: %w", err))
		return
	}

	if !created || p.Thumbnails == nil || ref.MIMEType == "" {
		// Either another entry already hashed to this identity (so a
		// sidecar already exists or is already being generated), or there
		// is no recognizable media type to thumbnail.
		return
	}

	data, err := os.ReadFile(ref.AbsolutePath)
	if err != nil {
		p.Store.RecordNonCriticalError(ctx, ref.EntryID, fmt.Errorf("read for thumbnail: %w", err))
		return
	}
	if _, err := p.Thumbnails.Generate(thumbnail.Request{MIMEType: ref.MIMEType, Data: data}); err != nil {
		// Unsupported media is an expected outcome for most files, not a
		// failure worth recording as a per-entry error.
		if err != thumbnail.ErrUnsupportedMedia {
			p.Store.RecordNonCriticalError(ctx, ref.EntryID, fmt.Errorf("thumbnail: %w", err))
		}
	}
}
