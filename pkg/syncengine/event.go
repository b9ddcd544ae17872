package syncengine

import "encoding/json"

// SharedChange is emitted whenever a shared-log commit is appended to the
// peer log, carrying enough information for a subscriber (the event bus, a
// connected sync partner) to apply or display the change.
type SharedChange struct {
	Model      ModelType
	UUID       string
	ChangeType ChangeType
	HLC        HLC
	Data       json.RawMessage
}

// DeviceOwnedChange is emitted whenever a device-owned upsert is applied.
type DeviceOwnedChange struct {
	Model  ModelType
	UUID   string
	Device string
	Data   json.RawMessage
}

// ResourceChangedBatch carries a raw JSON array of changed resources for a
// single batched UI notification, per spec.md §4.9's event bus contract.
// The Transaction Manager emits one of these per SyncModelsBatch call in
// addition to the individual SharedChange/DeviceOwnedChange events each
// record still produces.
type ResourceChangedBatch struct {
	Model   ModelType
	Changes json.RawMessage
}

// EventEmitter is the seam between the Transaction Manager and whatever
// broadcasts changes onward (pkg/eventbus, in this system). Kept as a
// narrow interface here so pkg/syncengine has no import-time dependency on
// pkg/eventbus.
type EventEmitter interface {
	EmitShared(change SharedChange)
	EmitDeviceOwned(change DeviceOwnedChange)
	EmitBatch(batch ResourceChangedBatch)
}
