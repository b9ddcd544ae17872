// Package dbindex implements index.Persistence against the library's
// sqlite database, maintaining a closure table (entries_closure) that is
// updated transactionally alongside every entry insert and delete. This
// resolves the indexer spec's Open Question on closure-table maintenance
// in favor of per-write upkeep rather than a periodic rebuild pass: a
// rebuild would leave Aggregate's Children-based rollup briefly
// inconsistent with an in-flight walk, where transactional maintenance
// keeps every committed write immediately queryable.
//
// The backend assumes the schema created by pkg/db's migrations:
//
//	CREATE TABLE entries (
//	    id INTEGER PRIMARY KEY AUTOINCREMENT,
//	    location_id INTEGER NOT NULL,
//	    parent_id INTEGER,
//	    kind INTEGER NOT NULL,
//	    name TEXT NOT NULL,
//	    extension TEXT NOT NULL DEFAULT '',
//	    relative_path TEXT NOT NULL DEFAULT '',
//	    size INTEGER NOT NULL DEFAULT 0,
//	    inode INTEGER NOT NULL DEFAULT 0,
//	    modified_time INTEGER NOT NULL DEFAULT 0,
//	    change_time INTEGER NOT NULL DEFAULT 0,
//	    aggregate_size INTEGER NOT NULL DEFAULT 0,
//	    child_count INTEGER NOT NULL DEFAULT 0,
//	    file_count INTEGER NOT NULL DEFAULT 0,
//	    content_id TEXT NOT NULL DEFAULT '',
//	    uuid TEXT NOT NULL DEFAULT ''
//	);
//	CREATE TABLE entries_closure (
//	    ancestor_id INTEGER NOT NULL,
//	    descendant_id INTEGER NOT NULL,
//	    depth INTEGER NOT NULL,
//	    PRIMARY KEY (ancestor_id, descendant_id)
//	);
package dbindex

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/sd-io/sdcore/pkg/index"
)

// DB is the subset of *sql.DB this package needs, so callers can pass a
// transaction-scoped wrapper in tests without pulling in a real database.
type DB interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}

// Backend implements index.Persistence against a sqlite-backed library
// database.
type Backend struct {
	db DB
}

// New wraps an already-migrated database handle.
func New(db DB) *Backend {
	return &Backend{db: db}
}

// ExistingEntries loads every row presently filed under subtreeAbsolutePath
// for locationID, keyed by absolute path. The absolute path is reconstructed
// from relative_path and name since entries are stored location-relative.
func (b *Backend) ExistingEntries(ctx context.Context, locationID int64, subtreeAbsolutePath string) (map[string]index.ExistingEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT id, relative_path, name, inode, modified_time, size, uuid
		FROM entries
		WHERE location_id = ?
	`, locationID)
	if err != nil {
		return nil, fmt.Errorf("dbindex: query existing entries: %w", err)
	}
	defer rows.Close()

	result := make(map[string]index.ExistingEntry)
	for rows.Next() {
		var (
			id, inode, modifiedTime, size int64
			relativePath, name, uuid      string
		)
		if err := rows.Scan(&id, &relativePath, &name, &inode, &modifiedTime, &size, &uuid); err != nil {
			return nil, fmt.Errorf("dbindex: scan existing entry: %w", err)
		}
		absolutePath := subtreeAbsolutePath
		if relativePath != "" {
			absolutePath = joinRoot(subtreeAbsolutePath, relativePath, name)
		} else {
			absolutePath = joinRoot(subtreeAbsolutePath, "", name)
		}
		result[absolutePath] = index.ExistingEntry{ID: id, Inode: uint64(inode), ModifiedTime: modifiedTime, Size: size, UUID: uuid}
	}
	return result, rows.Err()
}

// joinRoot reconstructs an absolute path from the location's walk root, a
// location-relative directory, and a base name. The walker always scopes
// ExistingEntries to a single location's subtree, so the root passed in is
// stable for the duration of one walk.
func joinRoot(root, relativeDir, name string) string {
	if relativeDir == "" {
		return root + "/" + name
	}
	return root + "/" + relativeDir + "/" + name
}

// Insert writes a new entry row and links it into the closure table: a
// self-reference at depth zero, plus one row per ancestor (copied from the
// parent's closure row set, depth incremented by one). Both happen in a
// single transaction so a crash between them can never leave an entry
// without full closure coverage.
func (b *Backend) Insert(ctx context.Context, locationID int64, e *index.Entry) (int64, error) {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("dbindex: begin insert tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO entries (
			location_id, parent_id, kind, name, extension, relative_path,
			size, inode, modified_time, change_time, content_id, uuid
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, locationID, nullableParent(e.ParentID), e.Kind, e.Name, e.Extension, e.RelativePath,
		e.Size, int64(e.Inode), e.ModifiedTime.Unix(), e.ChangeTime.Unix(), e.ContentID, e.UUID)
	if err != nil {
		return 0, fmt.Errorf("dbindex: insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("dbindex: read inserted id: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries_closure (ancestor_id, descendant_id, depth) VALUES (?, ?, 0)
	`, id, id); err != nil {
		return 0, fmt.Errorf("dbindex: insert self closure: %w", err)
	}

	if e.ParentID != 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO entries_closure (ancestor_id, descendant_id, depth)
			SELECT ancestor_id, ?, depth + 1
			FROM entries_closure
			WHERE descendant_id = ?
		`, id, e.ParentID); err != nil {
			return 0, fmt.Errorf("dbindex: insert ancestor closure: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("dbindex: commit insert: %w", err)
	}
	return id, nil
}

// Update overwrites an entry's mutable fields. Entries are never
// reparented in place (a move is a delete-then-insert at the action
// layer), so the closure table needs no adjustment here.
func (b *Backend) Update(ctx context.Context, e *index.Entry) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE entries
		SET size = ?, inode = ?, modified_time = ?, change_time = ?, content_id = ?, uuid = ?
		WHERE id = ?
	`, e.Size, int64(e.Inode), e.ModifiedTime.Unix(), e.ChangeTime.Unix(), e.ContentID, e.UUID, e.ID)
	if err != nil {
		return fmt.Errorf("dbindex: update entry %d: %w", e.ID, err)
	}
	return nil
}

// Delete removes an entry and every closure row that references it, either
// as ancestor or descendant, within a single transaction.
func (b *Backend) Delete(ctx context.Context, id int64) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("dbindex: begin delete tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM entries_closure WHERE ancestor_id = ? OR descendant_id = ?
	`, id, id); err != nil {
		return fmt.Errorf("dbindex: delete closure rows for %d: %w", id, err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM entries WHERE id = ?`, id); err != nil {
		return fmt.Errorf("dbindex: delete entry %d: %w", id, err)
	}

	return tx.Commit()
}

// SetAggregate persists a directory's rolled-up size and counts.
func (b *Backend) SetAggregate(ctx context.Context, id int64, aggregateSize, childCount, fileCount int64) error {
	_, err := b.db.ExecContext(ctx, `
		UPDATE entries SET aggregate_size = ?, child_count = ?, file_count = ? WHERE id = ?
	`, aggregateSize, childCount, fileCount, id)
	if err != nil {
		return fmt.Errorf("dbindex: set aggregate for %d: %w", id, err)
	}
	return nil
}

// Children returns the direct children of parentID using the closure table
// (depth-1 descendants of parentID within locationID), rather than a
// parent_id equality scan, so the same accessor can later serve
// variable-depth queries (e.g. "all descendants") without a schema change.
func (b *Backend) Children(ctx context.Context, locationID, parentID int64) ([]*index.Entry, error) {
	const selectColumns = `
		e.id, e.kind, e.name, e.extension, e.relative_path, e.size, e.inode,
		e.modified_time, e.change_time, e.parent_id, e.aggregate_size,
		e.child_count, e.file_count, e.content_id, e.uuid`

	var rows *sql.Rows
	var err error
	if parentID == 0 {
		// The location root has no closure row naming it as an ancestor
		// (parent_id zero is stored as NULL, never as a real entry id), so
		// its direct children are found by a plain parent_id scan instead.
		rows, err = b.db.QueryContext(ctx, `
			SELECT `+selectColumns+`
			FROM entries e
			WHERE e.location_id = ? AND e.parent_id IS NULL
		`, locationID)
	} else {
		rows, err = b.db.QueryContext(ctx, `
			SELECT `+selectColumns+`
			FROM entries e
			JOIN entries_closure c ON c.descendant_id = e.id
			WHERE c.ancestor_id = ? AND c.depth = 1 AND e.location_id = ?
		`, parentID, locationID)
	}
	if err != nil {
		return nil, fmt.Errorf("dbindex: query children of %d: %w", parentID, err)
	}
	defer rows.Close()

	var children []*index.Entry
	for rows.Next() {
		e := &index.Entry{}
		var modifiedTime, changeTime int64
		var parent sql.NullInt64
		var inode int64
		if err := rows.Scan(&e.ID, &e.Kind, &e.Name, &e.Extension, &e.RelativePath, &e.Size, &inode,
			&modifiedTime, &changeTime, &parent, &e.AggregateSize, &e.ChildCount, &e.FileCount,
			&e.ContentID, &e.UUID); err != nil {
			return nil, fmt.Errorf("dbindex: scan child: %w", err)
		}
		e.Inode = uint64(inode)
		e.ModifiedTime = time.Unix(modifiedTime, 0).UTC()
		e.ChangeTime = time.Unix(changeTime, 0).UTC()
		if parent.Valid {
			e.ParentID = parent.Int64
		}
		children = append(children, e)
	}
	return children, rows.Err()
}

// EmitsSyncEvents always returns true: writes through the library database
// are exactly the writes the sync engine needs to propagate to peers.
func (b *Backend) EmitsSyncEvents() bool { return true }

func nullableParent(parentID int64) sql.NullInt64 {
	if parentID == 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: parentID, Valid: true}
}

var _ index.Persistence = (*Backend)(nil)
