package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/sdpath"
)

func TestMoveActionRenamesWithinSameVolume(t *testing.T) {
	root := t.TempDir()
	srcDir := filepath.Join(root, "src")
	destDir := filepath.Join(root, "dest")
	os.Mkdir(srcDir, 0o755)
	os.Mkdir(destDir, 0o755)
	src := filepath.Join(srcDir, "a.txt")
	os.WriteFile(src, []byte("hello"), 0o644)

	action, err := NewMoveBuilder(testDeviceID).
		Sources(sdpath.Physical(testDeviceID, src)).
		Destination(sdpath.Physical(testDeviceID, destDir)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mgr, _ := newTestManager(t)
	am := NewManager(mgr)
	am.Register(&MoveHandler{CurrentDeviceID: testDeviceID})

	out, err := am.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	report := waitForJob(t, mgr, out.JobID)
	if report.Status != job.StatusCompleted {
		t.Fatalf("expected move job to complete, got %s: %s", report.Status, report.Error)
	}

	if _, err := os.Stat(src); !os.IsNotExist(err) {
		t.Errorf("expected source to be gone after a move, stat returned: %v", err)
	}
	got, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	if err != nil {
		t.Fatalf("read moved file: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected moved contents %q, got %q", "hello", got)
	}
}

func TestMoveBuilderRejectsEmptySources(t *testing.T) {
	dir := t.TempDir()
	b := NewMoveBuilder(testDeviceID).Destination(sdpath.Physical(testDeviceID, dir))
	if _, err := b.Build(); err == nil {
		t.Error("expected Build to fail with no sources")
	}
}
