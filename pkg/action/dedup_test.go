package action

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/sdpath"
)

type fakeDedupLister struct {
	byContentID map[string][]sdpath.SdPath
}

func (l *fakeDedupLister) EntriesByContentID(_ context.Context, contentID string) ([]sdpath.SdPath, error) {
	return l.byContentID[contentID], nil
}

func TestDedupActionHardlinksRedundantCopiesOnSameVolume(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "a.txt")
	redundant := filepath.Join(dir, "b.txt")
	os.WriteFile(canonical, []byte("same bytes"), 0o644)
	os.WriteFile(redundant, []byte("same bytes"), 0o644)

	lister := &fakeDedupLister{byContentID: map[string][]sdpath.SdPath{
		"content-1": {
			sdpath.Physical(testDeviceID, canonical),
			sdpath.Physical(testDeviceID, redundant),
		},
	}}

	action, err := NewDedupBuilder().ContentIDs("content-1").Strategy(DedupHardlink).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mgr, _ := newTestManager(t)
	am := NewManager(mgr)
	am.Register(&DedupHandler{CurrentDeviceID: testDeviceID, Lister: lister})

	out, err := am.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	report := waitForJob(t, mgr, out.JobID)
	if report.Status != job.StatusCompleted {
		t.Fatalf("expected dedup job to complete, got %s: %s", report.Status, report.Error)
	}

	canonicalInfo, err := os.Stat(canonical)
	if err != nil {
		t.Fatalf("stat canonical: %v", err)
	}
	redundantInfo, err := os.Stat(redundant)
	if err != nil {
		t.Fatalf("stat redundant: %v", err)
	}
	if !os.SameFile(canonicalInfo, redundantInfo) {
		t.Error("expected redundant path to be hardlinked to canonical after dedup")
	}
}

func TestDedupActionDeletesRedundantCopiesUnderDeleteStrategy(t *testing.T) {
	dir := t.TempDir()
	canonical := filepath.Join(dir, "a.txt")
	redundant := filepath.Join(dir, "b.txt")
	os.WriteFile(canonical, []byte("same bytes"), 0o644)
	os.WriteFile(redundant, []byte("same bytes"), 0o644)

	lister := &fakeDedupLister{byContentID: map[string][]sdpath.SdPath{
		"content-1": {
			sdpath.Physical(testDeviceID, canonical),
			sdpath.Physical(testDeviceID, redundant),
		},
	}}

	action, err := NewDedupBuilder().ContentIDs("content-1").Strategy(DedupDelete).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	mgr, _ := newTestManager(t)
	am := NewManager(mgr)
	am.Register(&DedupHandler{CurrentDeviceID: testDeviceID, Lister: lister})

	out, err := am.Dispatch(context.Background(), action)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	waitForJob(t, mgr, out.JobID)

	if _, err := os.Stat(redundant); !os.IsNotExist(err) {
		t.Errorf("expected redundant copy to be deleted, stat returned: %v", err)
	}
	if _, err := os.Stat(canonical); err != nil {
		t.Errorf("expected canonical copy to survive: %v", err)
	}
}

func TestDedupInputRequiresContentIDs(t *testing.T) {
	if _, err := NewDedupBuilder().Build(); err == nil {
		t.Error("expected Build to fail with no content identities")
	}
}
