package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sd-io/sdcore/pkg/job"
)

func TestLibraryAddAndListLocations(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	lib, err := manager.Create(ctx, "Photos")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var deviceID int64
	if err := lib.DB().QueryRowContext(ctx, "SELECT id FROM devices WHERE uuid = ?", manager.NodeState().DeviceUUID.String()).Scan(&deviceID); err != nil {
		t.Fatalf("resolving local device id: %v", err)
	}

	locationID, err := lib.AddLocation(ctx, deviceID, "/home/user/Pictures", "Pictures")
	if err != nil {
		t.Fatalf("AddLocation: %v", err)
	}

	locations, err := lib.ListLocations(ctx)
	if err != nil {
		t.Fatalf("ListLocations: %v", err)
	}
	if len(locations) != 1 {
		t.Fatalf("expected 1 location, got %d", len(locations))
	}
	if locations[0].UUID != locationID {
		t.Errorf("location uuid mismatch: %s != %s", locations[0].UUID, locationID)
	}
	if locations[0].DirectoryPath != "/home/user/Pictures" {
		t.Errorf("unexpected directory path: %s", locations[0].DirectoryPath)
	}
}

func waitForJobTerminal(t *testing.T, lib *Library, jobID string) *job.Report {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		report, err := lib.Jobs().List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, r := range report {
			if r.ID == jobID && r.Status.IsTerminal() {
				return r
			}
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s never reached a terminal status", jobID)
	return nil
}

func TestAddLocationSubmitsIndexJobThatWalksAndIdentifies(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	lib, err := manager.Create(ctx, "Photos")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	var deviceID int64
	if err := lib.DB().QueryRowContext(ctx, "SELECT id FROM devices WHERE uuid = ?", manager.NodeState().DeviceUUID.String()).Scan(&deviceID); err != nil {
		t.Fatalf("resolving local device id: %v", err)
	}

	root := t.TempDir()
	if err := os.WriteFile(filepath.Join(root, "a.txt"), []byte("hello"), 0644); err != nil {
		t.Fatalf("writing sample file: %v", err)
	}
	if err := os.Mkdir(filepath.Join(root, "sub"), 0755); err != nil {
		t.Fatalf("making sub directory: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "empty.bin"), nil, 0644); err != nil {
		t.Fatalf("writing empty sample file: %v", err)
	}

	if _, err := lib.AddLocation(ctx, deviceID, root, "Test"); err != nil {
		t.Fatalf("AddLocation: %v", err)
	}

	var jobID string
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		reports, err := lib.Jobs().List()
		if err != nil {
			t.Fatalf("List: %v", err)
		}
		for _, r := range reports {
			if r.Type == IndexLocationJobType {
				jobID = r.ID
			}
		}
		if jobID != "" {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if jobID == "" {
		t.Fatal("AddLocation did not submit an index job")
	}

	report := waitForJobTerminal(t, lib, jobID)
	if report.Status != job.StatusCompleted {
		t.Fatalf("expected the index job to complete, got status %s (errors: %v)", report.Status, report.NonCriticalErrors)
	}

	var dirUUID, emptyUUID, dataUUID, dataContentID string
	if err := lib.DB().QueryRowContext(ctx, "SELECT uuid FROM entries WHERE name = 'sub'").Scan(&dirUUID); err != nil {
		t.Fatalf("querying directory entry: %v", err)
	}
	if dirUUID == "" {
		t.Error("expected the directory entry to have a UUID assigned immediately")
	}
	if err := lib.DB().QueryRowContext(ctx, "SELECT uuid FROM entries WHERE name = 'empty.bin'").Scan(&emptyUUID); err != nil {
		t.Fatalf("querying empty file entry: %v", err)
	}
	if emptyUUID == "" {
		t.Error("expected the zero-byte file entry to have a UUID assigned immediately")
	}
	if err := lib.DB().QueryRowContext(ctx, "SELECT uuid, content_id FROM entries WHERE name = 'a.txt'").Scan(&dataUUID, &dataContentID); err != nil {
		t.Fatalf("querying data file entry: %v", err)
	}
	if dataUUID == "" || dataContentID == "" {
		t.Error("expected the non-empty file entry to be content-identified and assigned a UUID once hashed")
	}
}

func TestLibraryJobManagerRunsSubmittedJob(t *testing.T) {
	manager := newTestManager(t)
	ctx := context.Background()

	lib, err := manager.Create(ctx, "Photos")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	ran := make(chan struct{})
	handler := job.HandlerFunc(func(ctx context.Context, jc *job.Context) (any, error) {
		close(ran)
		return "done", nil
	})

	id, err := lib.Jobs().Submit(job.Submission{
		Type:    "test",
		Handler: handler,
		Library: lib,
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("job handler never ran")
	}

	deadline := time.Now().Add(2 * time.Second)
	var report *job.Report
	for time.Now().Before(deadline) {
		report, err = lib.Jobs().Report(id)
		if err != nil {
			t.Fatalf("Report: %v", err)
		}
		if report.Status.IsTerminal() {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if report.Status != job.StatusCompleted {
		t.Errorf("expected the job to complete, got status %v", report.Status)
	}
}
