package job

import (
	"testing"
	"time"
)

type purgingMemStore struct {
	*memStore
}

func (s *purgingMemStore) ListAll() ([]*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Report
	for _, r := range s.reports {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *purgingMemStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.reports, id)
	return nil
}

func TestRetentionPolicyPurgesOldTerminalReports(t *testing.T) {
	store := &purgingMemStore{memStore: newMemStore()}
	old := &Report{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := &Report{ID: "fresh", Status: StatusCompleted, UpdatedAt: time.Now().UTC()}
	running := &Report{ID: "running", Status: StatusRunning, UpdatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	store.Save(old)
	store.Save(fresh)
	store.Save(running)

	RetentionPolicy{MaxAge: 24 * time.Hour}.Run(store, nil)

	if _, err := store.Load("old"); err == nil {
		t.Error("expected old terminal report to be purged")
	}
	if _, err := store.Load("fresh"); err != nil {
		t.Error("expected fresh terminal report to survive")
	}
	if _, err := store.Load("running"); err != nil {
		t.Error("expected non-terminal report to survive regardless of age")
	}
}

func TestRetentionPolicyKeepsOnlyMaxCount(t *testing.T) {
	store := &purgingMemStore{memStore: newMemStore()}
	base := time.Now().UTC()
	for i := 0; i < 5; i++ {
		store.Save(&Report{
			ID:        string(rune('a' + i)),
			Status:    StatusCompleted,
			UpdatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	RetentionPolicy{MaxCount: 2}.Run(store, nil)

	reports, _ := store.ListAll()
	if len(reports) != 2 {
		t.Fatalf("expected 2 reports to remain, got %d", len(reports))
	}
	for _, r := range reports {
		if r.ID != "d" && r.ID != "e" {
			t.Errorf("expected only the 2 most recent reports to survive, found %q", r.ID)
		}
	}
}
