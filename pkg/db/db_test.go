package db

import (
	"context"
	"testing"

	"github.com/sd-io/sdcore/pkg/logging"
)

func TestOpenAppliesMigrationsAndCreatesExpectedTables(t *testing.T) {
	dbPath := t.TempDir() + "/library.db"

	conn, err := Open(context.Background(), dbPath, logging.RootLogger.Sublogger("db-test"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	expectedTables := []string{
		"devices", "libraries", "library_members", "locations",
		"entries", "entries_closure", "content_identities",
		"media_image_data", "media_video_data", "media_document_data",
		"tags", "entry_tags", "job_reports", "audit_log",
		"sync_peer_log", "sync_watermark", "sync_device_owned",
		"pairing_sessions",
	}
	for _, table := range expectedTables {
		var name string
		row := conn.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table)
		if err := row.Scan(&name); err != nil {
			t.Errorf("expected table %q to exist: %v", table, err)
		}
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	dbPath := t.TempDir() + "/library.db"
	ctx := context.Background()
	logger := logging.RootLogger.Sublogger("db-test")

	conn, err := Open(ctx, dbPath, logger)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer conn.Close()

	if err := Migrate(ctx, conn, logger); err != nil {
		t.Fatalf("second Migrate call should be a no-op, got: %v", err)
	}
}
