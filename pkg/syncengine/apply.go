package syncengine

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
)

// IncomingShared is a shared-model commit received from a remote peer,
// still bearing the sender's foreign keys (peer-local UUIDs already, since
// the Transaction Manager resolves them before appending to the log).
type IncomingShared struct {
	HLC        HLC
	Model      ModelType
	UUID       string
	ChangeType ChangeType
	Data       json.RawMessage
}

// IncomingDeviceOwned is a device-owned row received from a remote peer,
// tagged with the HLC the sender's Transaction Manager stamped it with at
// commit time (used only to pick a winner on conflict; it is recorded as the
// applied version, not written into the row).
type IncomingDeviceOwned struct {
	HLC    HLC
	Model  ModelType
	UUID   string
	Device string
	Data   json.RawMessage
}

// AppliedVersionStore lets Applier look up what it has already applied, so
// it can resolve conflicts without re-deriving state from the full log on
// every message.
type AppliedVersionStore interface {
	// SharedVersion returns the HLC last applied for (model, uuid), or the
	// zero HLC if nothing has been applied yet.
	SharedVersion(ctx context.Context, model ModelType, uuid string) (HLC, error)
	// DeviceOwnedVersion returns the HLC last applied for (model, uuid,
	// device), or the zero HLC if nothing has been applied yet.
	DeviceOwnedVersion(ctx context.Context, model ModelType, uuid, device string) (HLC, error)
	// RecordSharedVersion persists hlc as the new last-applied version for
	// (model, uuid).
	RecordSharedVersion(ctx context.Context, model ModelType, uuid string, hlc HLC) error
	// RecordDeviceOwnedVersion persists hlc as the new last-applied version
	// for (model, uuid, device).
	RecordDeviceOwnedVersion(ctx context.Context, model ModelType, uuid, device string, hlc HLC) error
}

// RowWriter applies a resolved write to local storage, after the Applier has
// already decided it's the winning version.
type RowWriter interface {
	WriteShared(ctx context.Context, model ModelType, uuid string, changeType ChangeType, data json.RawMessage) error
	WriteDeviceOwned(ctx context.Context, model ModelType, uuid, device string, data json.RawMessage) error
}

// Applier applies incoming shared and device-owned commits from remote
// peers, in HLC order, resolving conflicts per spec.md §4.6: shared models
// use last-writer-wins (the higher HLC simply wins, since HLC total-orders
// every write across every device); device-owned models use
// highest-watermark-wins (a device's own writes about itself always beat a
// stale copy a third peer forwarded, so the tiebreak is against the version
// already recorded locally for that specific device, not the sender).
type Applier struct {
	clock    *Clock
	versions AppliedVersionStore
	writer   RowWriter
}

// NewApplier constructs an Applier. clock is advanced via Clock.Receive on
// every applied shared commit, keeping the local clock from ever minting a
// value that would sort before one it has just observed.
func NewApplier(clock *Clock, versions AppliedVersionStore, writer RowWriter) *Applier {
	return &Applier{clock: clock, versions: versions, writer: writer}
}

// ApplyShared applies an incoming shared commit if, and only if, its HLC is
// strictly after the last version already applied for that (model, uuid).
// It reports whether the write was applied (false means a stale or
// duplicate delivery was discarded).
func (a *Applier) ApplyShared(ctx context.Context, in IncomingShared) (bool, error) {
	a.clock.Receive(in.HLC)

	current, err := a.versions.SharedVersion(ctx, in.Model, in.UUID)
	if err != nil {
		return false, errors.Wrap(err, "syncengine: reading applied shared version")
	}
	if !in.HLC.After(current) {
		return false, nil
	}

	if err := a.writer.WriteShared(ctx, in.Model, in.UUID, in.ChangeType, in.Data); err != nil {
		return false, errors.Wrap(err, "syncengine: writing shared row")
	}
	if err := a.versions.RecordSharedVersion(ctx, in.Model, in.UUID, in.HLC); err != nil {
		return false, errors.Wrap(err, "syncengine: recording applied shared version")
	}
	return true, nil
}

// ApplyDeviceOwned applies an incoming device-owned row if its HLC is
// strictly after the highest watermark already recorded for that specific
// (model, uuid, device) triple. Because device-owned rows are keyed by the
// owning device rather than by sender, this correctly lets device A's own
// update win over a stale copy of device A's state that device B forwards.
func (a *Applier) ApplyDeviceOwned(ctx context.Context, in IncomingDeviceOwned) (bool, error) {
	current, err := a.versions.DeviceOwnedVersion(ctx, in.Model, in.UUID, in.Device)
	if err != nil {
		return false, errors.Wrap(err, "syncengine: reading applied device-owned version")
	}
	if !in.HLC.After(current) {
		return false, nil
	}

	if err := a.writer.WriteDeviceOwned(ctx, in.Model, in.UUID, in.Device, in.Data); err != nil {
		return false, errors.Wrap(err, "syncengine: writing device-owned row")
	}
	if err := a.versions.RecordDeviceOwnedVersion(ctx, in.Model, in.UUID, in.Device, in.HLC); err != nil {
		return false, errors.Wrap(err, "syncengine: recording applied device-owned version")
	}
	return true, nil
}
