package eventbus

import (
	"github.com/sd-io/sdcore/pkg/syncengine"
)

// SyncEmitter adapts a Bus to satisfy syncengine.EventEmitter, so a
// TransactionManager built with eventbus.NewSyncEmitter(bus) publishes
// every commit onto the shared process-wide bus instead of needing its own
// notification mechanism.
type SyncEmitter struct {
	bus *Bus
}

// NewSyncEmitter wraps bus as a syncengine.EventEmitter.
func NewSyncEmitter(bus *Bus) *SyncEmitter {
	return &SyncEmitter{bus: bus}
}

func (e *SyncEmitter) EmitShared(change syncengine.SharedChange) {
	e.bus.Emit(Event{Kind: KindSyncSharedChange, Payload: change})
}

func (e *SyncEmitter) EmitDeviceOwned(change syncengine.DeviceOwnedChange) {
	e.bus.Emit(Event{Kind: KindSyncDeviceOwnedChange, Payload: change})
}

func (e *SyncEmitter) EmitBatch(batch syncengine.ResourceChangedBatch) {
	e.bus.Emit(Event{
		Kind: KindResourceChangedBatch,
		Payload: ResourceChangedBatch{
			Resource: string(batch.Model),
			Changes:  batch.Changes,
		},
	})
}

var _ syncengine.EventEmitter = (*SyncEmitter)(nil)
