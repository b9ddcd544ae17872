package syncengine

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

type fakePeerLog struct {
	entries []PeerLogEntry
}

func (l *fakePeerLog) Append(_ context.Context, entry PeerLogEntry) error {
	l.entries = append(l.entries, entry)
	return nil
}

func (l *fakePeerLog) EntriesSince(_ context.Context, after HLC, model ModelType, limit int) ([]PeerLogEntry, error) {
	var out []PeerLogEntry
	for _, e := range l.entries {
		if e.HLC.After(after) && (model == "" || e.Model == model) {
			out = append(out, e)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (l *fakePeerLog) Watermark(context.Context) (HLC, error) { return HLC{}, nil }

func (l *fakePeerLog) AdvanceWatermark(context.Context, HLC) error { return nil }

type fakeResolver struct {
	uuids map[int64]string
}

func (r *fakeResolver) UUIDForID(_ context.Context, _ ModelType, id int64) (string, error) {
	return r.uuids[id], nil
}

func (r *fakeResolver) IDForUUID(context.Context, ModelType, string) (int64, error) { return 0, nil }

type fakeDeviceOwnedStore struct {
	rows map[string]json.RawMessage
}

func (s *fakeDeviceOwnedStore) Upsert(_ context.Context, model ModelType, uuid, device string, data json.RawMessage) error {
	if s.rows == nil {
		s.rows = make(map[string]json.RawMessage)
	}
	s.rows[string(model)+"/"+uuid+"/"+device] = data
	return nil
}

type fakeEventEmitter struct {
	shared      []SharedChange
	deviceOwned []DeviceOwnedChange
	batches     []ResourceChangedBatch
}

func (e *fakeEventEmitter) EmitShared(change SharedChange)           { e.shared = append(e.shared, change) }
func (e *fakeEventEmitter) EmitDeviceOwned(change DeviceOwnedChange) { e.deviceOwned = append(e.deviceOwned, change) }
func (e *fakeEventEmitter) EmitBatch(batch ResourceChangedBatch)     { e.batches = append(e.batches, batch) }

func newTestTransactionManager() (*TransactionManager, *fakePeerLog, *fakeDeviceOwnedStore, *fakeEventEmitter) {
	clock := NewClock("device-a")
	clock.now = func() time.Time { return time.UnixMilli(1000) }
	peerLog := &fakePeerLog{}
	resolver := &fakeResolver{uuids: map[int64]string{42: "album-uuid-42"}}
	deviceOwned := &fakeDeviceOwnedStore{}
	events := &fakeEventEmitter{}
	tm := NewTransactionManager(clock, peerLog, resolver, deviceOwned, events, "device-a")
	return tm, peerLog, deviceOwned, events
}

func TestCommitSharedResolvesForeignKeysAndAppendsToLog(t *testing.T) {
	tm, peerLog, _, events := newTestTransactionManager()

	rec := Record{
		Model: ModelTag,
		UUID:  "tag-uuid-1",
		Data:  map[string]any{"name": "vacation", "album_id": int64(42)},
		ForeignKeys: []ForeignKeyMapping{
			{LocalField: "album_id", TargetModel: ModelAlbum},
		},
	}

	hlc, err := tm.CommitShared(context.Background(), rec, ChangeInsert)
	if err != nil {
		t.Fatalf("CommitShared: %v", err)
	}
	if hlc.IsZero() {
		t.Fatal("expected a non-zero HLC")
	}
	if len(peerLog.entries) != 1 {
		t.Fatalf("expected 1 peer log entry, got %d", len(peerLog.entries))
	}

	var decoded map[string]any
	if err := json.Unmarshal(peerLog.entries[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["album_id"] != "album-uuid-42" {
		t.Errorf("expected album_id to be resolved to a uuid, got %v", decoded["album_id"])
	}
	if len(events.shared) != 1 {
		t.Fatalf("expected 1 shared event emitted, got %d", len(events.shared))
	}
}

func TestCommitSharedAttachesLocationRootDirectoryPath(t *testing.T) {
	tm, peerLog, _, _ := newTestTransactionManager()

	rec := Record{
		Model:            ModelLocation,
		UUID:             "loc-uuid-1",
		Data:             map[string]any{"name": "Photos"},
		LocationRootPath: "/Volumes/Photos",
	}

	if _, err := tm.CommitShared(context.Background(), rec, ChangeInsert); err != nil {
		t.Fatalf("CommitShared: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(peerLog.entries[0].Data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded["directory_path"] != "/Volumes/Photos" {
		t.Errorf("expected directory_path to be attached, got %v", decoded["directory_path"])
	}
}

func TestCommitSharedRejectsDeviceOwnedModel(t *testing.T) {
	tm, _, _, _ := newTestTransactionManager()
	_, err := tm.CommitShared(context.Background(), Record{Model: ModelDevicePreference, UUID: "x"}, ChangeUpdate)
	if err == nil {
		t.Fatal("expected an error committing a device-owned model as shared")
	}
}

func TestCommitDeviceOwnedUpsertsAndEmits(t *testing.T) {
	tm, _, deviceOwned, events := newTestTransactionManager()

	rec := Record{Model: ModelDevicePreference, UUID: "pref-1", Data: map[string]any{"theme": "dark"}}
	if err := tm.CommitDeviceOwned(context.Background(), rec); err != nil {
		t.Fatalf("CommitDeviceOwned: %v", err)
	}

	if _, ok := deviceOwned.rows["device_preference/pref-1/device-a"]; !ok {
		t.Error("expected the row to be upserted under the local device id")
	}
	if len(events.deviceOwned) != 1 {
		t.Fatalf("expected 1 device-owned event, got %d", len(events.deviceOwned))
	}
}

func TestCommitRoutesByModelClassification(t *testing.T) {
	tm, peerLog, deviceOwned, _ := newTestTransactionManager()

	if _, err := tm.Commit(context.Background(), Record{Model: ModelTag, UUID: "t1"}, ChangeInsert); err != nil {
		t.Fatalf("Commit shared: %v", err)
	}
	if _, err := tm.Commit(context.Background(), Record{Model: ModelDeviceOnlineState, UUID: "d1"}, ChangeUpdate); err != nil {
		t.Fatalf("Commit device-owned: %v", err)
	}

	if len(peerLog.entries) != 1 {
		t.Errorf("expected only the shared commit in the peer log, got %d entries", len(peerLog.entries))
	}
	if len(deviceOwned.rows) != 1 {
		t.Errorf("expected only the device-owned commit in the device store, got %d rows", len(deviceOwned.rows))
	}
}

func TestSyncModelsBatchEmitsOneBatchEventForManyCommits(t *testing.T) {
	tm, peerLog, _, events := newTestTransactionManager()

	recs := []Record{
		{Model: ModelTag, UUID: "t1", Data: map[string]any{"name": "a"}},
		{Model: ModelTag, UUID: "t2", Data: map[string]any{"name": "b"}},
		{Model: ModelTag, UUID: "t3", Data: map[string]any{"name": "c"}},
	}

	stamps, err := tm.SyncModelsBatch(context.Background(), recs, ChangeInsert)
	if err != nil {
		t.Fatalf("SyncModelsBatch: %v", err)
	}
	if len(stamps) != 3 {
		t.Fatalf("expected 3 stamps, got %d", len(stamps))
	}
	if len(peerLog.entries) != 3 {
		t.Fatalf("expected 3 peer log entries, got %d", len(peerLog.entries))
	}
	if len(events.batches) != 1 {
		t.Fatalf("expected exactly 1 batch event, got %d", len(events.batches))
	}
}
