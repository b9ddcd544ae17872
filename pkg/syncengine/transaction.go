package syncengine

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pkg/errors"
)

// ForeignKeyMapping declares that a field of a record, as it arrives at the
// Transaction Manager, holds a local integer id that must be resolved to the
// target model's UUID before the row is serialized into the peer log. This
// is how library code (which still indexes related rows by integer primary
// key, the way pkg/index/dbindex does) hands the Transaction Manager rows
// without pkg/syncengine ever needing to know about SQL schemas.
type ForeignKeyMapping struct {
	// LocalField is the key of the field in Record.Data holding the integer
	// foreign key to resolve.
	LocalField string
	// TargetModel names the model the foreign key points at, used to pick
	// the right resolver table.
	TargetModel ModelType
}

// Record is one row a caller wants committed through the Transaction
// Manager. Data holds the row's columns keyed by name; integer values named
// in ForeignKeys are rewritten to UUID strings during serialization.
type Record struct {
	Model ModelType
	UUID  string
	Data  map[string]any

	ForeignKeys []ForeignKeyMapping

	// LocationRootPath, when non-empty, marks this entry as a location
	// root: the Transaction Manager attaches it to the serialized row under
	// "directory_path" so a receiving peer can resolve the entry without a
	// round trip, per spec.md §4.6's "For entries that are location
	// roots... attach the absolute directory path" rule.
	LocationRootPath string
}

// FKResolver converts between a model's local integer id and its UUID. The
// Transaction Manager uses it only in the UUIDForID direction; IDForUUID is
// the reverse mapping, and nothing in this package calls it.
type FKResolver interface {
	UUIDForID(ctx context.Context, model ModelType, id int64) (string, error)
	IDForUUID(ctx context.Context, model ModelType, uuid string) (int64, error)
}

// DeviceOwnedStore persists the latest value of a device-owned row. Unlike
// shared models, device-owned state is never appended to the peer log: each
// device keeps (and syncs) only its own current value per spec.md §4.6.
type DeviceOwnedStore interface {
	Upsert(ctx context.Context, model ModelType, uuid, device string, data json.RawMessage) error
}

// TransactionManager is the single path every library write passes through,
// per spec.md §4.6. It resolves foreign keys, serializes the row, and routes
// the commit to the shared peer log or the device-owned store depending on
// IsDeviceOwned(record.Model).
type TransactionManager struct {
	clock       *Clock
	peerLog     PeerLog
	resolver    FKResolver
	deviceOwned DeviceOwnedStore
	events      EventEmitter
	device      string
}

// NewTransactionManager constructs a TransactionManager. device is the
// local device id attributed to every HLC this manager mints.
func NewTransactionManager(clock *Clock, peerLog PeerLog, resolver FKResolver, deviceOwned DeviceOwnedStore, events EventEmitter, device string) *TransactionManager {
	return &TransactionManager{
		clock:       clock,
		peerLog:     peerLog,
		resolver:    resolver,
		deviceOwned: deviceOwned,
		events:      events,
		device:      device,
	}
}

// serialize resolves rec's foreign keys to UUIDs, attaches the location-root
// directory path if set, and marshals the result to JSON.
func (tm *TransactionManager) serialize(ctx context.Context, rec Record) (json.RawMessage, error) {
	row := make(map[string]any, len(rec.Data)+1)
	for k, v := range rec.Data {
		row[k] = v
	}

	for _, fk := range rec.ForeignKeys {
		raw, ok := row[fk.LocalField]
		if !ok {
			continue
		}
		id, err := toInt64(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "syncengine: foreign key field %q", fk.LocalField)
		}
		uuid, err := tm.resolver.UUIDForID(ctx, fk.TargetModel, id)
		if err != nil {
			return nil, errors.Wrapf(err, "syncengine: resolving %s foreign key %d", fk.TargetModel, id)
		}
		row[fk.LocalField] = uuid
	}

	if rec.LocationRootPath != "" {
		row["directory_path"] = rec.LocationRootPath
	}

	data, err := json.Marshal(row)
	if err != nil {
		return nil, errors.Wrap(err, "syncengine: marshaling record")
	}
	return data, nil
}

func toInt64(v any) (int64, error) {
	switch n := v.(type) {
	case int64:
		return n, nil
	case int:
		return int64(n), nil
	case int32:
		return int64(n), nil
	case float64:
		return int64(n), nil
	default:
		return 0, fmt.Errorf("value %v is not an integer foreign key", v)
	}
}

// CommitShared appends rec to the peer log as a new shared-log entry and
// returns the HLC it was stamped with. Callers must not pass a record whose
// model IsDeviceOwned; use CommitDeviceOwned instead.
func (tm *TransactionManager) CommitShared(ctx context.Context, rec Record, changeType ChangeType) (HLC, error) {
	if IsDeviceOwned(rec.Model) {
		return HLC{}, fmt.Errorf("syncengine: %s is a device-owned model, use CommitDeviceOwned", rec.Model)
	}

	data, err := tm.serialize(ctx, rec)
	if err != nil {
		return HLC{}, err
	}

	stamp := tm.clock.Next()
	entry := PeerLogEntry{
		HLC:        stamp,
		Model:      rec.Model,
		UUID:       rec.UUID,
		ChangeType: changeType,
		Data:       data,
	}
	if err := tm.peerLog.Append(ctx, entry); err != nil {
		return HLC{}, errors.Wrap(err, "syncengine: appending to peer log")
	}

	tm.events.EmitShared(SharedChange{
		Model:      rec.Model,
		UUID:       rec.UUID,
		ChangeType: changeType,
		HLC:        stamp,
		Data:       data,
	})
	return stamp, nil
}

// CommitDeviceOwned upserts rec into the device-owned store under the local
// device id. It never touches the peer log or the HLC clock: device-owned
// state replicates by last-value-wins gossip, not a shared append-only log.
func (tm *TransactionManager) CommitDeviceOwned(ctx context.Context, rec Record) error {
	if !IsDeviceOwned(rec.Model) {
		return fmt.Errorf("syncengine: %s is a shared model, use CommitShared", rec.Model)
	}

	data, err := tm.serialize(ctx, rec)
	if err != nil {
		return err
	}

	if err := tm.deviceOwned.Upsert(ctx, rec.Model, rec.UUID, tm.device, data); err != nil {
		return errors.Wrap(err, "syncengine: upserting device-owned row")
	}

	tm.events.EmitDeviceOwned(DeviceOwnedChange{
		Model:  rec.Model,
		UUID:   rec.UUID,
		Device: tm.device,
		Data:   data,
	})
	return nil
}

// Commit routes rec to CommitShared or CommitDeviceOwned according to
// IsDeviceOwned(rec.Model), the single predicate spec.md §4.6 says every
// write is gated on. It returns the minted HLC for a shared commit, or the
// zero HLC for a device-owned one.
func (tm *TransactionManager) Commit(ctx context.Context, rec Record, changeType ChangeType) (HLC, error) {
	if IsDeviceOwned(rec.Model) {
		return HLC{}, tm.CommitDeviceOwned(ctx, rec)
	}
	return tm.CommitShared(ctx, rec, changeType)
}

// SyncModelsBatch commits every record in recs, in order, sharing the same
// ChangeType, and emits a single ResourceChangedBatch in addition to each
// record's individual Commit event. A failure partway through returns the
// records already committed alongside the error so the caller can decide
// whether to retry only the remainder.
func (tm *TransactionManager) SyncModelsBatch(ctx context.Context, recs []Record, changeType ChangeType) ([]HLC, error) {
	stamps := make([]HLC, 0, len(recs))
	rows := make([]json.RawMessage, 0, len(recs))

	var model ModelType
	if len(recs) > 0 {
		model = recs[0].Model
	}

	for _, rec := range recs {
		stamp, err := tm.Commit(ctx, rec, changeType)
		if err != nil {
			return stamps, err
		}
		stamps = append(stamps, stamp)

		data, err := tm.serialize(ctx, rec)
		if err == nil {
			rows = append(rows, data)
		}
	}

	if len(recs) > 0 {
		batch, err := json.Marshal(rows)
		if err == nil {
			tm.events.EmitBatch(ResourceChangedBatch{Model: model, Changes: batch})
		}
	}
	return stamps, nil
}
