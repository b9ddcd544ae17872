package library

import (
	"context"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/content"
	"github.com/sd-io/sdcore/pkg/content/thumbnail"
	"github.com/sd-io/sdcore/pkg/index"
	"github.com/sd-io/sdcore/pkg/index/dbindex"
	"github.com/sd-io/sdcore/pkg/index/rules"
	"github.com/sd-io/sdcore/pkg/job"
)

// IndexLocationJobType is the job.Submission.Type recorded for a location
// indexing run, so "job list"/"job info" can distinguish it from action
// jobs the same way they distinguish "action.copy" from "action.move".
const IndexLocationJobType = "index.location"

// indexJobInterrupter adapts a job.Context's cooperative-interruption check
// to index.Interrupter, so Walker.Run can honor pause/cancel without
// pkg/index importing pkg/job.
type indexJobInterrupter struct {
	jc *job.Context
}

func (i indexJobInterrupter) Check() error { return i.jc.CheckInterrupt() }

// jobReportingIdentityStore decorates sqlIdentityStore so a per-entry
// hashing/attach failure is recorded against the driving job's report, in
// addition to the library logger, per the indexer's non-critical error
// policy.
type jobReportingIdentityStore struct {
	*sqlIdentityStore
	jc *job.Context
}

func (s jobReportingIdentityStore) RecordNonCriticalError(ctx context.Context, entryID int64, err error) {
	s.sqlIdentityStore.RecordNonCriticalError(ctx, entryID, err)
	s.jc.AddNonCriticalError(fmt.Sprintf("content identification: entry %d: %v", entryID, err))
}

// indexLocationHandler returns a job.Handler that walks locationRoot (an
// absolute filesystem path) rooted at locationID - the location's internal
// row id - then, for index.ModeDeep, hashes and thumbnails every file the
// walk left pending a content id through a content.Pipeline wired against
// this library's own sqlite-backed IdentityStore. AddLocation submits one
// of these per newly registered location, which is the Indexer's and
// Content ID & Sidecars' only entry point reachable from a running daemon.
func (l *Library) indexLocationHandler(locationID int64, locationRoot string, mode index.Mode) job.Handler {
	return job.HandlerFunc(func(ctx context.Context, jc *job.Context) (any, error) {
		backend := dbindex.New(l.db)
		walker := &index.Walker{
			Reader:      index.OSDirectoryReader(),
			Persistence: backend,
			Rules:       rules.NewSet(),
			Logger:      l.logger,
		}

		result, err := walker.Run(ctx, locationID, locationRoot, "", indexJobInterrupter{jc: jc})
		if err != nil {
			return nil, fmt.Errorf("index: walking %s: %w", locationRoot, err)
		}
		for _, walkErr := range result.Errors {
			jc.AddNonCriticalError(walkErr)
		}
		jc.Log(fmt.Sprintf("walked %s: %d inserted, %d updated, %d deleted, %d skipped",
			locationRoot, result.Inserted, result.Updated, result.Deleted, result.Skipped))

		if _, _, err := index.Aggregate(ctx, backend, locationID, 0); err != nil {
			jc.AddNonCriticalError(fmt.Sprintf("aggregate: %v", err))
		}

		if mode != index.ModeDeep {
			return result, nil
		}

		refs, err := l.pendingContentRefs(ctx, locationID, locationRoot)
		if err != nil {
			return nil, fmt.Errorf("index: listing files pending content identification: %w", err)
		}
		if len(refs) == 0 {
			return result, nil
		}

		pipeline := &content.Pipeline{
			Store:       jobReportingIdentityStore{sqlIdentityStore: newSQLIdentityStore(l.db, l.localLibraryID, l.logger), jc: jc},
			Thumbnails:  thumbnail.NewRegistry(),
			Concurrency: 4,
		}
		if err := pipeline.Run(ctx, refs); err != nil {
			return nil, fmt.Errorf("index: content pipeline: %w", err)
		}
		jc.Log(fmt.Sprintf("content-identified %d files", len(refs)))

		return result, nil
	})
}

// pendingContentRefs lists every file entry under locationID that has not
// yet been hashed (content_id is still empty), reconstructing each one's
// absolute path from its stored relative_path and name the same way
// dbindex.ExistingEntries does, and guessing a MIME type from its extension
// so the content pipeline knows whether to attempt thumbnailing.
func (l *Library) pendingContentRefs(ctx context.Context, locationID int64, locationRoot string) ([]content.FileRef, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT id, relative_path, name, extension
		FROM entries
		WHERE location_id = ? AND kind = ? AND content_id = '' AND size > 0`,
		locationID, int(index.KindFile),
	)
	if err != nil {
		return nil, errors.Wrap(err, "library: querying entries pending content identification")
	}
	defer rows.Close()

	var refs []content.FileRef
	for rows.Next() {
		var id int64
		var relativePath, name, extension string
		if err := rows.Scan(&id, &relativePath, &name, &extension); err != nil {
			return nil, errors.Wrap(err, "library: scanning pending entry")
		}
		absolutePath := filepath.Join(locationRoot, relativePath, name)
		refs = append(refs, content.FileRef{
			EntryID:      id,
			AbsolutePath: absolutePath,
			MIMEType:     mimeTypeFor(extension),
		})
	}
	return refs, rows.Err()
}

// mimeTypeFor guesses a MIME type from a lowercased extension (without the
// leading dot, matching index.Entry.Extension), using the standard
// library's extension table - no example in this project's dependency set
// brings in a dedicated content-sniffing library, so this stays a thin
// wrapper around mime.TypeByExtension rather than hand-rolling one.
func mimeTypeFor(extension string) string {
	if extension == "" {
		return ""
	}
	t := mime.TypeByExtension("." + extension)
	if semi := strings.IndexByte(t, ';'); semi >= 0 {
		t = t[:semi]
	}
	return strings.TrimSpace(t)
}
