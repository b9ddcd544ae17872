package library

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"

	"github.com/sd-io/sdcore/pkg/backup"
)

// Manager must satisfy backup.LibraryRegistry so pkg/backup.Restore can
// refuse already-present libraries and register newly restored ones
// without depending on this package directly.
var _ backup.LibraryRegistry = (*Manager)(nil)

func TestManagerSatisfiesBackupLibraryRegistryRoundTrip(t *testing.T) {
	source := newTestManager(t)
	ctx := context.Background()

	lib, err := source.Create(ctx, "Archive")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	libraryID := lib.Config().LibraryUUID
	if err := lib.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	delete(source.libraries, libraryID)

	var archive bytes.Buffer
	header := backup.Header{
		BackupID:    uuid.New(),
		TimestampMS: 1700000000000,
		LibraryID:   libraryID,
		LibraryName: "Archive",
	}
	if err := backup.Create(&archive, header, source.configPath(libraryID), source.dbPath(libraryID)); err != nil {
		t.Fatalf("backup.Create: %v", err)
	}

	dest := newTestManager(t)
	restoredHeader, err := backup.Restore(&archive, dest.librariesDir(), t.TempDir(), dest)
	if err != nil {
		t.Fatalf("backup.Restore: %v", err)
	}
	if restoredHeader.LibraryID != libraryID {
		t.Errorf("restored header library id mismatch: %s != %s", restoredHeader.LibraryID, libraryID)
	}
	if !dest.Exists(libraryID) {
		t.Error("expected the restored library to exist in the destination manager")
	}

	restoredLib, err := dest.Open(ctx, libraryID)
	if err != nil {
		t.Fatalf("Open restored library: %v", err)
	}
	if restoredLib.Config().Name != "Archive" {
		t.Errorf("unexpected restored library name: %s", restoredLib.Config().Name)
	}
}

func TestManagerRestoreRejectsAlreadyPresentLibrary(t *testing.T) {
	source := newTestManager(t)
	ctx := context.Background()

	lib, err := source.Create(ctx, "Archive")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	libraryID := lib.Config().LibraryUUID
	if err := lib.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	delete(source.libraries, libraryID)

	var archive bytes.Buffer
	header := backup.Header{BackupID: uuid.New(), LibraryID: libraryID, LibraryName: "Archive"}
	if err := backup.Create(&archive, header, source.configPath(libraryID), source.dbPath(libraryID)); err != nil {
		t.Fatalf("backup.Create: %v", err)
	}

	if _, err := backup.Restore(&archive, source.librariesDir(), t.TempDir(), source); err != backup.ErrLibraryAlreadyExists {
		t.Errorf("expected ErrLibraryAlreadyExists, got %v", err)
	}
}
