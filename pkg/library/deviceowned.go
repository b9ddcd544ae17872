package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/syncengine"
)

// sqlDeviceOwnedStore implements syncengine.DeviceOwnedStore against the
// sync_device_owned table: one row per (model, uuid, device), replicated
// by last-value-wins gossip rather than the append-only peer log, per
// spec.md §4.6's device-owned classification. The upsert is unconditional
// (last writer always wins locally); physical_ms is recorded only so a
// receiving peer's apply side can compare staleness against its own copy.
type sqlDeviceOwnedStore struct {
	db *sql.DB
}

func newSQLDeviceOwnedStore(db *sql.DB) *sqlDeviceOwnedStore {
	return &sqlDeviceOwnedStore{db: db}
}

func (s *sqlDeviceOwnedStore) Upsert(ctx context.Context, model syncengine.ModelType, uuid, device string, data json.RawMessage) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_device_owned (model, uuid, device, physical_ms, counter, data)
		VALUES (?, ?, ?, ?, 0, ?)
		ON CONFLICT(model, uuid, device) DO UPDATE SET
			physical_ms = excluded.physical_ms,
			counter = sync_device_owned.counter + 1,
			data = excluded.data`,
		string(model), uuid, device, time.Now().UnixMilli(), []byte(data),
	)
	if err != nil {
		return errors.Wrap(err, "library: upserting device-owned row")
	}
	return nil
}
