package syncengine

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"
)

// PeerLogEntry is one append-only record of a shared-model commit, keyed
// for total order by its HLC.
type PeerLogEntry struct {
	HLC        HLC
	Model      ModelType
	UUID       string
	ChangeType ChangeType
	Data       json.RawMessage
}

// PeerLog is the append-only, watermark-pruned log of shared-model commits
// that paired devices exchange to converge. spec.md §4.6 allows backing it
// with the library database directly; SQLitePeerLog below does exactly
// that, the way pkg/index/dbindex backs the content index with the same
// database handle.
type PeerLog interface {
	// Append adds entry to the log. Entries must be appended in increasing
	// HLC order by a single committing device, which TransactionManager
	// guarantees by minting entry.HLC from its own monotonic Clock.
	Append(ctx context.Context, entry PeerLogEntry) error

	// EntriesSince returns entries with an HLC strictly after after, for
	// model if model is non-empty (all models otherwise), oldest first, up
	// to limit entries.
	EntriesSince(ctx context.Context, after HLC, model ModelType, limit int) ([]PeerLogEntry, error)

	// Watermark returns the highest HLC every paired peer has acknowledged
	// receiving, or the zero HLC if no watermark has been recorded yet.
	Watermark(ctx context.Context) (HLC, error)

	// AdvanceWatermark records that every paired peer has now acknowledged
	// through at least hlc, and prunes entries at or before it.
	AdvanceWatermark(ctx context.Context, hlc HLC) error
}

// SQLitePeerLog is a PeerLog backed by a *sql.DB, mirroring the
// single-table, prepared-statement style pkg/index/dbindex uses for the
// content index. The caller is responsible for running the sync_peer_log
// and sync_watermark migrations (see pkg/db) before first use.
type SQLitePeerLog struct {
	db *sql.DB
}

// NewSQLitePeerLog wraps db as a PeerLog.
func NewSQLitePeerLog(db *sql.DB) *SQLitePeerLog {
	return &SQLitePeerLog{db: db}
}

func (l *SQLitePeerLog) Append(ctx context.Context, entry PeerLogEntry) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_peer_log (physical_ms, counter, device, model, uuid, change_type, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		entry.HLC.PhysicalMS, entry.HLC.Counter, entry.HLC.Device,
		string(entry.Model), entry.UUID, entry.ChangeType.String(), []byte(entry.Data),
	)
	if err != nil {
		return errors.Wrap(err, "syncengine: inserting peer log entry")
	}
	return nil
}

func (l *SQLitePeerLog) EntriesSince(ctx context.Context, after HLC, model ModelType, limit int) ([]PeerLogEntry, error) {
	query := `
		SELECT physical_ms, counter, device, model, uuid, change_type, data
		FROM sync_peer_log
		WHERE (physical_ms, counter, device) > (?, ?, ?)`
	args := []any{after.PhysicalMS, after.Counter, after.Device}
	if model != "" {
		query += " AND model = ?"
		args = append(args, string(model))
	}
	query += " ORDER BY physical_ms, counter, device LIMIT ?"
	args = append(args, limit)

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "syncengine: querying peer log")
	}
	defer rows.Close()

	var entries []PeerLogEntry
	for rows.Next() {
		var e PeerLogEntry
		var modelStr, changeStr string
		var data []byte
		if err := rows.Scan(&e.HLC.PhysicalMS, &e.HLC.Counter, &e.HLC.Device, &modelStr, &e.UUID, &changeStr, &data); err != nil {
			return nil, errors.Wrap(err, "syncengine: scanning peer log row")
		}
		e.Model = ModelType(modelStr)
		e.ChangeType = parseChangeType(changeStr)
		e.Data = json.RawMessage(data)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (l *SQLitePeerLog) Watermark(ctx context.Context) (HLC, error) {
	var physical int64
	var counter uint32
	var device string
	err := l.db.QueryRowContext(ctx, `
		SELECT physical_ms, counter, device FROM sync_watermark WHERE id = 1`,
	).Scan(&physical, &counter, &device)
	if errors.Is(err, sql.ErrNoRows) {
		return HLC{}, nil
	}
	if err != nil {
		return HLC{}, errors.Wrap(err, "syncengine: reading watermark")
	}
	return HLC{PhysicalMS: physical, Counter: counter, Device: device}, nil
}

func (l *SQLitePeerLog) AdvanceWatermark(ctx context.Context, hlc HLC) error {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO sync_watermark (id, physical_ms, counter, device) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET physical_ms = excluded.physical_ms, counter = excluded.counter, device = excluded.device`,
		hlc.PhysicalMS, hlc.Counter, hlc.Device,
	)
	if err != nil {
		return errors.Wrap(err, "syncengine: advancing watermark")
	}

	_, err = l.db.ExecContext(ctx, `
		DELETE FROM sync_peer_log WHERE (physical_ms, counter, device) <= (?, ?, ?)`,
		hlc.PhysicalMS, hlc.Counter, hlc.Device,
	)
	if err != nil {
		return errors.Wrap(err, "syncengine: pruning peer log")
	}
	return nil
}

func parseChangeType(s string) ChangeType {
	switch s {
	case "insert":
		return ChangeInsert
	case "update":
		return ChangeUpdate
	case "delete":
		return ChangeDelete
	default:
		return ChangeInsert
	}
}
