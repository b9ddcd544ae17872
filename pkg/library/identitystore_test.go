package library

import (
	"context"
	"testing"

	"github.com/sd-io/sdcore/pkg/content"
)

// identityStore must satisfy content.IdentityStore so pkg/content's
// Pipeline can run against it without a test fake standing in for real
// persistence.
var _ content.IdentityStore = (*sqlIdentityStore)(nil)

func newTestIdentityStore(t *testing.T) (*Library, *sqlIdentityStore) {
	t.Helper()
	manager := newTestManager(t)
	lib, err := manager.Create(context.Background(), "Photos")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return lib, newSQLIdentityStore(lib.db, lib.localLibraryID, lib.logger)
}

func (l *Library) insertTestEntry(t *testing.T, name string) int64 {
	t.Helper()
	libraryID, err := l.localLibraryID(context.Background())
	if err != nil {
		t.Fatalf("localLibraryID: %v", err)
	}
	var locationID int64
	if err := l.db.QueryRowContext(context.Background(), `
		SELECT id FROM locations WHERE library_id = ? LIMIT 1`, libraryID).Scan(&locationID); err != nil {
		// No location registered yet for this test library; create a
		// minimal one to satisfy entries.location_id's foreign key.
		var deviceID int64
		if err := l.db.QueryRowContext(context.Background(), "SELECT id FROM devices LIMIT 1").Scan(&deviceID); err != nil {
			t.Fatalf("resolving a device id: %v", err)
		}
		res, err := l.db.ExecContext(context.Background(), `
			INSERT INTO locations (uuid, library_id, owning_device_id, directory_path, name, created_at)
			VALUES (?, ?, ?, ?, ?, 0)`, "loc-"+name, libraryID, deviceID, "/tmp", "test")
		if err != nil {
			t.Fatalf("inserting test location: %v", err)
		}
		locationID, err = res.LastInsertId()
		if err != nil {
			t.Fatalf("reading inserted location id: %v", err)
		}
	}

	res, err := l.db.ExecContext(context.Background(), `
		INSERT INTO entries (location_id, kind, name) VALUES (?, 0, ?)`, locationID, name)
	if err != nil {
		t.Fatalf("inserting test entry: %v", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		t.Fatalf("reading inserted entry id: %v", err)
	}
	return id
}

func TestSQLIdentityStoreEnsureIdentityCreatesOnlyOnce(t *testing.T) {
	_, store := newTestIdentityStore(t)
	ctx := context.Background()

	created, err := store.EnsureIdentity(ctx, "abc123")
	if err != nil {
		t.Fatalf("EnsureIdentity: %v", err)
	}
	if !created {
		t.Error("expected the first EnsureIdentity call to report created=true")
	}

	created, err = store.EnsureIdentity(ctx, "abc123")
	if err != nil {
		t.Fatalf("EnsureIdentity (second call): %v", err)
	}
	if created {
		t.Error("expected the second EnsureIdentity call for the same content id to report created=false")
	}
}

func TestSQLIdentityStoreAttachEntryAssignsUUIDOnce(t *testing.T) {
	lib, store := newTestIdentityStore(t)
	ctx := context.Background()
	entryID := lib.insertTestEntry(t, "a.txt")

	if err := store.AttachEntry(ctx, entryID, "content1"); err != nil {
		t.Fatalf("AttachEntry: %v", err)
	}

	var uuidA, contentIDA string
	if err := lib.db.QueryRowContext(ctx, "SELECT uuid, content_id FROM entries WHERE id = ?", entryID).Scan(&uuidA, &contentIDA); err != nil {
		t.Fatalf("querying entry: %v", err)
	}
	if uuidA == "" {
		t.Fatal("expected AttachEntry to assign a UUID to a previously unassigned entry")
	}
	if contentIDA != "content1" {
		t.Errorf("expected content_id to be recorded, got %q", contentIDA)
	}

	// Attaching again (e.g. a re-hash after a no-op content change) must not
	// reassign the UUID, since it is immutable once assigned.
	if err := store.AttachEntry(ctx, entryID, "content2"); err != nil {
		t.Fatalf("AttachEntry (second call): %v", err)
	}
	var uuidB string
	if err := lib.db.QueryRowContext(ctx, "SELECT uuid FROM entries WHERE id = ?", entryID).Scan(&uuidB); err != nil {
		t.Fatalf("querying entry after second attach: %v", err)
	}
	if uuidB != uuidA {
		t.Errorf("expected UUID to remain immutable across attaches, got %q then %q", uuidA, uuidB)
	}
}
