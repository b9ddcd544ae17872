package sdcore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestBaseDirectoryCreatesSubpath(t *testing.T) {
	home := t.TempDir()
	originalHome := userHomeDirectory
	userHomeDirectory = home
	defer func() { userHomeDirectory = originalHome }()

	path, err := BaseDirectory("daemon")
	if err != nil {
		t.Fatalf("BaseDirectory: %v", err)
	}

	expected := filepath.Join(home, DirectoryName, "daemon")
	if path != expected {
		t.Errorf("expected %q, got %q", expected, path)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat created directory: %v", err)
	}
	if !info.IsDir() {
		t.Error("expected BaseDirectory to create a directory")
	}
}
