package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/sdpath"
)

const testDeviceID = "device-under-test"

func TestCopyBuilderRejectsMissingSource(t *testing.T) {
	dir := t.TempDir()
	b := NewCopyBuilder(testDeviceID).
		Sources(sdpath.Physical(testDeviceID, filepath.Join(dir, "missing.txt"))).
		Destination(sdpath.Physical(testDeviceID, dir))

	if _, err := b.Build(); err == nil {
		t.Error("expected Build to fail for a nonexistent source")
	}
}

func TestCopyBuilderRejectsMissingDestination(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.txt")
	os.WriteFile(src, []byte("hi"), 0o644)

	b := NewCopyBuilder(testDeviceID).
		Sources(sdpath.Physical(testDeviceID, src)).
		Destination(sdpath.Physical(testDeviceID, filepath.Join(dir, "nope")))

	if _, err := b.Build(); err == nil {
		t.Error("expected Build to fail for a nonexistent destination directory")
	}
}

func TestCopyActionDuplicatesFileContents(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	if err := os.WriteFile(src, []byte("hello"), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}

	action, err := NewCopyBuilder(testDeviceID).
		Sources(sdpath.Physical(testDeviceID, src)).
		Destination(sdpath.Physical(testDeviceID, destDir)).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mgr, _ := newTestManager(t)
	am := NewManager(mgr)
	am.Register(&CopyHandler{CurrentDeviceID: testDeviceID})

	out, err := am.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	report := waitForJob(t, mgr, out.JobID)
	if report.Status != job.StatusCompleted {
		t.Fatalf("expected copy job to complete, got %s: %s", report.Status, report.Error)
	}

	got, err := os.ReadFile(filepath.Join(destDir, "a.txt"))
	if err != nil {
		t.Fatalf("read copied file: %v", err)
	}
	if string(got) != "hello" {
		t.Errorf("expected copied contents %q, got %q", "hello", got)
	}
	// The original must still exist after a copy.
	if _, err := os.Stat(src); err != nil {
		t.Errorf("expected source to survive a copy: %v", err)
	}
}

func TestCopyActionSkipsOnConflictWhenPolicyIsSkip(t *testing.T) {
	srcDir := t.TempDir()
	destDir := t.TempDir()
	src := filepath.Join(srcDir, "a.txt")
	os.WriteFile(src, []byte("new"), 0o644)
	dest := filepath.Join(destDir, "a.txt")
	os.WriteFile(dest, []byte("old"), 0o644)

	action, err := NewCopyBuilder(testDeviceID).
		Sources(sdpath.Physical(testDeviceID, src)).
		Destination(sdpath.Physical(testDeviceID, destDir)).
		OnConflict(ConflictSkip).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mgr, _ := newTestManager(t)
	am := NewManager(mgr)
	am.Register(&CopyHandler{CurrentDeviceID: testDeviceID})

	out, err := am.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitForJob(t, mgr, out.JobID)

	got, _ := os.ReadFile(dest)
	if string(got) != "old" {
		t.Errorf("expected destination to be left untouched under ConflictSkip, got %q", got)
	}
}
