package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGlobRejectSkipsSubtree(t *testing.T) {
	set := NewSet(NewGlobRejectRule("node_modules"))
	decision, err := set.Evaluate("/root/node_modules", "node_modules", true)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision.Indexed || !decision.SkipSubtree {
		t.Errorf("expected reject with subtree skip, got %+v", decision)
	}
}

func TestGlobAcceptOnlyIndexesMatches(t *testing.T) {
	set := NewSet(NewGlobAcceptRule("*.go"))
	decision, err := set.Evaluate("/root/main.go", "main.go", false)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !decision.Indexed {
		t.Error("expected main.go to be accepted")
	}

	decision, err = set.Evaluate("/root/readme.md", "readme.md", false)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision.Indexed {
		t.Error("expected readme.md to be rejected by omission from accept rule")
	}
}

func TestNoRulesIndexesEverything(t *testing.T) {
	set := NewSet()
	decision, err := set.Evaluate("/root/anything", "anything", false)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !decision.Indexed {
		t.Error("expected path to be indexed when no rules are configured")
	}
}

func TestChildPresenceReject(t *testing.T) {
	root := t.TempDir()
	repo := filepath.Join(root, "repo")
	if err := os.MkdirAll(filepath.Join(repo, ".git"), 0755); err != nil {
		t.Fatal(err)
	}

	set := NewSet(NewChildPresenceRejectRule(".git"))
	decision, err := set.Evaluate(repo, "repo", true)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision.Indexed || !decision.SkipSubtree {
		t.Errorf("expected directory containing .git to be rejected, got %+v", decision)
	}
}

func TestComposedAcceptAndReject(t *testing.T) {
	set := NewSet(NewGlobAcceptRule("*.txt"), NewGlobRejectRule("secret.txt"))
	decision, err := set.Evaluate("/root/secret.txt", "secret.txt", false)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if decision.Indexed {
		t.Error("expected reject rule to take priority over accept rule")
	}

	decision, err = set.Evaluate("/root/notes.txt", "notes.txt", false)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if !decision.Indexed {
		t.Error("expected notes.txt to be accepted")
	}
}
