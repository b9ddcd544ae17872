package library

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	sqldb "github.com/sd-io/sdcore/pkg/db"
	"github.com/sd-io/sdcore/pkg/job"
)

func newTestJobStore(t *testing.T) *sqlJobStore {
	t.Helper()
	ctx := context.Background()
	db, err := sqldb.Open(ctx, filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("sqldb.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return newSQLJobStore(db)
}

func TestSQLJobStoreSaveLoadRoundTrip(t *testing.T) {
	store := newTestJobStore(t)

	now := time.Now().UTC()
	report := &job.Report{
		ID:                "job_test1",
		Type:              "test",
		Status:            job.StatusCompletedWithErrors,
		Log:               []string{"started"},
		NonCriticalErrors: []string{"item 2: permission denied"},
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := store.Save(report); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded, err := store.Load("job_test1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Type != "test" || len(loaded.Log) != 1 || loaded.Log[0] != "started" {
		t.Errorf("unexpected loaded report: %+v", loaded)
	}
	if loaded.Status != job.StatusCompletedWithErrors {
		t.Errorf("expected status to round-trip, got %s", loaded.Status)
	}
	if len(loaded.NonCriticalErrors) != 1 || loaded.NonCriticalErrors[0] != "item 2: permission denied" {
		t.Errorf("expected non-critical errors to round-trip, got %v", loaded.NonCriticalErrors)
	}
}

func TestSQLJobStoreListAndDelete(t *testing.T) {
	store := newTestJobStore(t)
	now := time.Now().UTC()

	for _, id := range []string{"job_a", "job_b"} {
		report := &job.Report{ID: id, Type: "test", Status: job.StatusCompleted, CreatedAt: now, UpdatedAt: now}
		if err := store.Save(report); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	reports, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports, got %d", len(reports))
	}

	if err := store.Delete("job_a"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	reports, err = store.List()
	if err != nil {
		t.Fatalf("List after delete: %v", err)
	}
	if len(reports) != 1 || reports[0].ID != "job_b" {
		t.Fatalf("expected only job_b to remain, got %+v", reports)
	}
}

func TestSQLJobStoreLoadResumableExcludesTerminal(t *testing.T) {
	store := newTestJobStore(t)
	now := time.Now().UTC()

	paused := &job.Report{ID: "job_paused", Type: "test", Status: job.StatusPaused, Resumable: true, CreatedAt: now, UpdatedAt: now}
	done := &job.Report{ID: "job_done", Type: "test", Status: job.StatusCompleted, Resumable: true, CreatedAt: now, UpdatedAt: now}
	doneWithErrors := &job.Report{ID: "job_done_errors", Type: "test", Status: job.StatusCompletedWithErrors, Resumable: true, CreatedAt: now, UpdatedAt: now}
	if err := store.Save(paused); err != nil {
		t.Fatalf("Save(paused): %v", err)
	}
	if err := store.Save(done); err != nil {
		t.Fatalf("Save(done): %v", err)
	}
	if err := store.Save(doneWithErrors); err != nil {
		t.Fatalf("Save(doneWithErrors): %v", err)
	}

	resumable, err := store.LoadResumable()
	if err != nil {
		t.Fatalf("LoadResumable: %v", err)
	}
	if len(resumable) != 1 || resumable[0].ID != "job_paused" {
		t.Fatalf("expected only job_paused to be resumable, got %+v", resumable)
	}
}
