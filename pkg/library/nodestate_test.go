package library

import "testing"

func TestLoadOrCreateNodeStatePersistsAcrossCalls(t *testing.T) {
	root := t.TempDir()

	first, err := LoadOrCreateNodeState(root, "laptop")
	if err != nil {
		t.Fatalf("LoadOrCreateNodeState (first): %v", err)
	}
	if first.Name != "laptop" {
		t.Errorf("unexpected name: %s", first.Name)
	}

	second, err := LoadOrCreateNodeState(root, "ignored-on-reload")
	if err != nil {
		t.Fatalf("LoadOrCreateNodeState (second): %v", err)
	}

	if first.DeviceUUID != second.DeviceUUID {
		t.Error("expected the device uuid to persist across reloads")
	}
	if second.Name != "laptop" {
		t.Error("expected the original name to persist rather than being overwritten")
	}
}

func TestNewNodeStateGeneratesDistinctKeypairs(t *testing.T) {
	state, err := newNodeState("device")
	if err != nil {
		t.Fatalf("newNodeState: %v", err)
	}

	signingPrivate, signingPublic := state.SigningKeypair()
	if len(signingPrivate) == 0 || len(signingPublic) == 0 {
		t.Error("expected a non-empty signing keypair")
	}

	static := state.StaticKeypair()
	if len(static.Private) == 0 || len(static.Public) == 0 {
		t.Error("expected a non-empty static keypair")
	}
}
