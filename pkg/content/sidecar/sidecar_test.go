package sidecar

import (
	"os"
	"path/filepath"
	"testing"
)

func TestManagedPathShardsByContentID(t *testing.T) {
	path := ManagedPath("/lib", "abcdef0123456789", KindThumbnail, "grid@1x", "webp")
	want := filepath.Join("/lib", "sidecars", "ab", "cd", "ef0123456789", "thumbnails", "grid@1x.webp")
	if path != want {
		t.Errorf("got %q, want %q", path, want)
	}
}

func TestTranscriptDirectoryNameIsNotDoublePluralized(t *testing.T) {
	if KindTranscript.directoryName() != "transcripts" {
		t.Errorf("expected transcripts, got %q", KindTranscript.directoryName())
	}
}

func TestCacheMarkUnmarkHas(t *testing.T) {
	c := NewCache()
	if c.Has("u1", KindThumbnail, "grid@1x") {
		t.Fatal("expected not present before Mark")
	}
	c.Mark("u1", KindThumbnail, "grid@1x")
	if !c.Has("u1", KindThumbnail, "grid@1x") {
		t.Fatal("expected present after Mark")
	}
	c.Unmark("u1", KindThumbnail, "grid@1x")
	if c.Has("u1", KindThumbnail, "grid@1x") {
		t.Fatal("expected not present after Unmark")
	}
}

func TestSeedFromEphemeralRootReconstructsCache(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uuid-1", "thumbnails")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "grid@1x.webp"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	c := NewCache()
	if err := SeedFromEphemeralRoot(c, root); err != nil {
		t.Fatalf("SeedFromEphemeralRoot: %v", err)
	}
	if !c.Has("uuid-1", KindThumbnail, "grid@1x") {
		t.Error("expected seeded cache to report the on-disk sidecar as present")
	}
}

func TestCleanOrphansRemovesDeadUUIDs(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "uuid-dead", "thumbnails")
	os.MkdirAll(dir, 0o755)
	os.WriteFile(filepath.Join(dir, "grid@1x.webp"), []byte("x"), 0o644)

	c := NewCache()
	c.Mark("uuid-dead", KindThumbnail, "grid@1x")
	c.Mark("uuid-live", KindThumbnail, "grid@1x")

	if err := CleanOrphans(c, root, func(uuid string) bool { return uuid == "uuid-live" }); err != nil {
		t.Fatalf("CleanOrphans: %v", err)
	}
	if c.Has("uuid-dead", KindThumbnail, "grid@1x") {
		t.Error("expected dead UUID removed from cache")
	}
	if !c.Has("uuid-live", KindThumbnail, "grid@1x") {
		t.Error("expected live UUID to remain cached")
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("expected on-disk directory for dead UUID to be removed")
	}
}
