package content

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/sd-io/sdcore/pkg/content/thumbnail"
)

type fakeStore struct {
	mu       sync.Mutex
	created  map[string]bool
	attached map[int64]string
	errors   map[int64]error
}

func newFakeStore() *fakeStore {
	return &fakeStore{created: map[string]bool{}, attached: map[int64]string{}, errors: map[int64]error{}}
}

func (s *fakeStore) EnsureIdentity(_ context.Context, contentID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created[contentID] {
		return false, nil
	}
	s.created[contentID] = true
	return true, nil
}

func (s *fakeStore) AttachEntry(_ context.Context, entryID int64, contentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attached[entryID] = contentID
	return nil
}

func (s *fakeStore) RecordNonCriticalError(_ context.Context, entryID int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors[entryID] = err
}

func TestPipelineHashesAndAttachesIdenticalFilesToSameIdentity(t *testing.T) {
	dir := t.TempDir()
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	os.WriteFile(pathA, []byte("identical content"), 0o644)
	os.WriteFile(pathB, []byte("identical content"), 0o644)

	store := newFakeStore()
	pipeline := &Pipeline{Store: store, Thumbnails: thumbnail.NewRegistry(), Concurrency: 2}

	err := pipeline.Run(context.Background(), []FileRef{
		{EntryID: 1, AbsolutePath: pathA},
		{EntryID: 2, AbsolutePath: pathB},
	})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(store.errors) != 0 {
		t.Fatalf("expected no errors, got %+v", store.errors)
	}
	if store.attached[1] == "" || store.attached[1] != store.attached[2] {
		t.Errorf("expected both entries attached to the same content id, got %+v", store.attached)
	}
	if len(store.created) != 1 {
		t.Errorf("expected exactly one identity created, got %d", len(store.created))
	}
}

func TestPipelineRecordsNonCriticalErrorOnMissingFile(t *testing.T) {
	store := newFakeStore()
	pipeline := &Pipeline{Store: store}

	err := pipeline.Run(context.Background(), []FileRef{
		{EntryID: 7, AbsolutePath: "/does/not/exist"},
	})
	if err != nil {
		t.Fatalf("Run should not fail the batch for one bad file: %v", err)
	}
	if store.errors[7] == nil {
		t.Error("expected a recorded error for the missing file")
	}
	if _, attached := store.attached[7]; attached {
		t.Error("expected no attachment for a file that failed to open")
	}
}
