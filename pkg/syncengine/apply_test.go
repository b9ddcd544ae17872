package syncengine

import (
	"context"
	"encoding/json"
	"testing"
)

type fakeVersionStore struct {
	shared      map[string]HLC
	deviceOwned map[string]HLC
}

func newFakeVersionStore() *fakeVersionStore {
	return &fakeVersionStore{shared: map[string]HLC{}, deviceOwned: map[string]HLC{}}
}

func sharedKey(model ModelType, uuid string) string { return string(model) + "/" + uuid }

func deviceOwnedKey(model ModelType, uuid, device string) string {
	return string(model) + "/" + uuid + "/" + device
}

func (s *fakeVersionStore) SharedVersion(_ context.Context, model ModelType, uuid string) (HLC, error) {
	return s.shared[sharedKey(model, uuid)], nil
}

func (s *fakeVersionStore) DeviceOwnedVersion(_ context.Context, model ModelType, uuid, device string) (HLC, error) {
	return s.deviceOwned[deviceOwnedKey(model, uuid, device)], nil
}

func (s *fakeVersionStore) RecordSharedVersion(_ context.Context, model ModelType, uuid string, hlc HLC) error {
	s.shared[sharedKey(model, uuid)] = hlc
	return nil
}

func (s *fakeVersionStore) RecordDeviceOwnedVersion(_ context.Context, model ModelType, uuid, device string, hlc HLC) error {
	s.deviceOwned[deviceOwnedKey(model, uuid, device)] = hlc
	return nil
}

type fakeRowWriter struct {
	shared      []IncomingShared
	deviceOwned []IncomingDeviceOwned
}

func (w *fakeRowWriter) WriteShared(_ context.Context, model ModelType, uuid string, changeType ChangeType, data json.RawMessage) error {
	w.shared = append(w.shared, IncomingShared{Model: model, UUID: uuid, ChangeType: changeType, Data: data})
	return nil
}

func (w *fakeRowWriter) WriteDeviceOwned(_ context.Context, model ModelType, uuid, device string, data json.RawMessage) error {
	w.deviceOwned = append(w.deviceOwned, IncomingDeviceOwned{Model: model, UUID: uuid, Device: device, Data: data})
	return nil
}

func TestApplySharedAppliesNewerAndDiscardsStale(t *testing.T) {
	versions := newFakeVersionStore()
	writer := &fakeRowWriter{}
	applier := NewApplier(NewClock("local-device"), versions, writer)

	older := HLC{PhysicalMS: 100, Counter: 0, Device: "remote"}
	newer := HLC{PhysicalMS: 200, Counter: 0, Device: "remote"}

	applied, err := applier.ApplyShared(context.Background(), IncomingShared{HLC: newer, Model: ModelTag, UUID: "t1", ChangeType: ChangeInsert, Data: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("ApplyShared: %v", err)
	}
	if !applied {
		t.Fatal("expected the newer entry to apply")
	}

	applied, err = applier.ApplyShared(context.Background(), IncomingShared{HLC: older, Model: ModelTag, UUID: "t1", ChangeType: ChangeInsert, Data: json.RawMessage(`{}`)})
	if err != nil {
		t.Fatalf("ApplyShared: %v", err)
	}
	if applied {
		t.Error("expected a stale entry to be discarded")
	}
	if len(writer.shared) != 1 {
		t.Errorf("expected exactly 1 write, got %d", len(writer.shared))
	}
}

func TestApplyDeviceOwnedWinsByOwningDeviceNotSender(t *testing.T) {
	versions := newFakeVersionStore()
	writer := &fakeRowWriter{}
	applier := NewApplier(NewClock("local-device"), versions, writer)

	ownerFresh := HLC{PhysicalMS: 500, Counter: 0, Device: "device-a"}
	forwardedStale := HLC{PhysicalMS: 100, Counter: 0, Device: "device-a"}

	if _, err := applier.ApplyDeviceOwned(context.Background(), IncomingDeviceOwned{HLC: ownerFresh, Model: ModelDevicePreference, UUID: "pref-1", Device: "device-a", Data: json.RawMessage(`{"theme":"dark"}`)}); err != nil {
		t.Fatalf("ApplyDeviceOwned: %v", err)
	}

	applied, err := applier.ApplyDeviceOwned(context.Background(), IncomingDeviceOwned{HLC: forwardedStale, Model: ModelDevicePreference, UUID: "pref-1", Device: "device-a", Data: json.RawMessage(`{"theme":"light"}`)})
	if err != nil {
		t.Fatalf("ApplyDeviceOwned: %v", err)
	}
	if applied {
		t.Error("expected a stale forwarded copy of device-a's own state to be discarded")
	}
	if len(writer.deviceOwned) != 1 || string(writer.deviceOwned[0].Data) != `{"theme":"dark"}` {
		t.Errorf("expected device-a's own fresher write to stick, got %+v", writer.deviceOwned)
	}
}

func TestApplySharedAdvancesLocalClockPastReceived(t *testing.T) {
	versions := newFakeVersionStore()
	writer := &fakeRowWriter{}
	clock := NewClock("local-device")
	applier := NewApplier(clock, versions, writer)

	remote := HLC{PhysicalMS: 999999, Counter: 5, Device: "remote"}
	if _, err := applier.ApplyShared(context.Background(), IncomingShared{HLC: remote, Model: ModelTag, UUID: "t1", Data: json.RawMessage(`{}`)}); err != nil {
		t.Fatalf("ApplyShared: %v", err)
	}

	next := clock.Next()
	if !next.After(remote) {
		t.Errorf("expected local clock to have advanced past the received remote HLC, got %+v vs %+v", next, remote)
	}
}
