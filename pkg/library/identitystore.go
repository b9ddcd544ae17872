package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/content/hash"
	"github.com/sd-io/sdcore/pkg/logging"
)

// sqlIdentityStore implements content.IdentityStore against a library's
// sqlite database, the same way sqlJobStore and sqlFKResolver wire their
// respective interfaces against the same handle.
type sqlIdentityStore struct {
	db        *sql.DB
	libraryID func(ctx context.Context) (int64, error)
	logger    *logging.Logger
}

// newSQLIdentityStore wraps db, resolving the owning library's internal id
// lazily through libraryID (typically Library.localLibraryID) on every
// call, since content_identities rows are scoped per-library.
func newSQLIdentityStore(db *sql.DB, libraryID func(context.Context) (int64, error), logger *logging.Logger) *sqlIdentityStore {
	return &sqlIdentityStore{db: db, libraryID: libraryID, logger: logger}
}

// EnsureIdentity implements content.IdentityStore.
func (s *sqlIdentityStore) EnsureIdentity(ctx context.Context, contentID string) (bool, error) {
	libraryID, err := s.libraryID(ctx)
	if err != nil {
		return false, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO content_identities (content_id, library_id, algorithm, size, first_seen_at)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT(content_id) DO NOTHING`,
		contentID, libraryID, hash.Algorithm, time.Now().UnixMilli(),
	)
	if err != nil {
		return false, errors.Wrap(err, "library: ensuring content identity")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, errors.Wrap(err, "library: reading content identity insert result")
	}
	return affected > 0, nil
}

// AttachEntry implements content.IdentityStore: it records contentID
// against entryID and, per spec.md §4.2's content-hash-completion UUID
// path, assigns the entry a UUID now if it doesn't already have one (every
// non-empty file reaches this point only once its bytes are known, since
// directories and zero-size files are assigned their UUID immediately by
// the walker instead).
func (s *sqlIdentityStore) AttachEntry(ctx context.Context, entryID int64, contentID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "library: begin attach entry tx")
	}
	defer tx.Rollback()

	var existingUUID string
	if err := tx.QueryRowContext(ctx, `SELECT uuid FROM entries WHERE id = ?`, entryID).Scan(&existingUUID); err != nil {
		return errors.Wrapf(err, "library: loading entry %d", entryID)
	}

	assignedUUID := existingUUID
	if assignedUUID == "" {
		assignedUUID = uuid.NewString()
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE entries SET content_id = ?, uuid = ? WHERE id = ?`,
		contentID, assignedUUID, entryID,
	); err != nil {
		return errors.Wrapf(err, "library: attaching entry %d to content %s", entryID, contentID)
	}

	return errors.Wrap(tx.Commit(), "library: commit attach entry")
}

// RecordNonCriticalError implements content.IdentityStore by logging the
// failure; the content pipeline runs detached from any single job's
// context (one pipeline run serves every file discovered by a walk), so
// per-entry failures are surfaced through the library logger rather than a
// specific job.Context.
func (s *sqlIdentityStore) RecordNonCriticalError(_ context.Context, entryID int64, err error) {
	s.logger.Warn(fmt.Errorf("content identification: entry %d: %w", entryID, err))
}
