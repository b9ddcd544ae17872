package pairing

import (
	"bytes"
	"os"
	"testing"
)

func TestStoreRoundTripsDeviceRecordEncrypted(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "correct horse battery staple")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	_, pub, err := GenerateSigningKeypair()
	if err != nil {
		t.Fatalf("GenerateSigningKeypair: %v", err)
	}
	device := PairedDevice{
		DeviceUUID:         "device-1",
		Name:               "Laptop",
		OS:                 "linux",
		AppVersion:         "1.2.3",
		NetworkFingerprint: "aa:bb:cc",
		SigningPublicKey:   pub,
	}
	if err := store.SaveDevice(device); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}

	loaded, err := store.LoadDevice("device-1")
	if err != nil {
		t.Fatalf("LoadDevice: %v", err)
	}
	if loaded.Name != device.Name || loaded.OS != device.OS {
		t.Errorf("loaded device record does not match: %+v", loaded)
	}
	if !bytes.Equal(loaded.SigningPublicKey, device.SigningPublicKey) {
		t.Error("loaded signing public key does not match")
	}
}

func TestStoreRejectsWrongPassphrase(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "correct horse battery staple")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if err := store.SaveDevice(PairedDevice{DeviceUUID: "device-2"}); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}

	wrongStore, err := NewStore(dir, "wrong passphrase")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := wrongStore.LoadDevice("device-2"); err == nil {
		t.Error("expected loading with the wrong passphrase to fail")
	}
}

func TestStoreRoundTripsConnectionSecret(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "passphrase")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	key, err := GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("GenerateStaticKeypair: %v", err)
	}
	connection := ConnectionSecret{PeerDeviceUUID: "peer-1", StaticKey: key}
	if err := store.SaveConnection("self-1", connection); err != nil {
		t.Fatalf("SaveConnection: %v", err)
	}

	loaded, err := store.LoadConnection("self-1", "peer-1")
	if err != nil {
		t.Fatalf("LoadConnection: %v", err)
	}
	if !bytes.Equal(loaded.StaticKey.Private, key.Private) || !bytes.Equal(loaded.StaticKey.Public, key.Public) {
		t.Error("loaded connection secret does not match")
	}
}

func TestLoadDeviceReportsNotExistForMissingRecord(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "passphrase")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := store.LoadDevice("does-not-exist"); !os.IsNotExist(err) {
		t.Errorf("expected a not-exist error loading a nonexistent device record, got %v", err)
	}
}

func TestListDevicesReturnsEveryPairedDevice(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "passphrase")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if devices, err := store.ListDevices(); err != nil || len(devices) != 0 {
		t.Fatalf("expected no devices initially, got %+v, err %v", devices, err)
	}

	for _, uuid := range []string{"device-a", "device-b"} {
		if err := store.SaveDevice(PairedDevice{DeviceUUID: uuid, Name: uuid}); err != nil {
			t.Fatalf("SaveDevice(%s): %v", uuid, err)
		}
	}

	devices, err := store.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 2 {
		t.Fatalf("expected 2 devices, got %d", len(devices))
	}
}

func TestRevokeDeviceRemovesDeviceAndConnectionSecret(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(dir, "passphrase")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}

	if err := store.SaveDevice(PairedDevice{DeviceUUID: "device-c"}); err != nil {
		t.Fatalf("SaveDevice: %v", err)
	}
	key, err := GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("GenerateStaticKeypair: %v", err)
	}
	if err := store.SaveConnection("self-1", ConnectionSecret{PeerDeviceUUID: "device-c", StaticKey: key}); err != nil {
		t.Fatalf("SaveConnection: %v", err)
	}

	if err := store.RevokeDevice("self-1", "device-c"); err != nil {
		t.Fatalf("RevokeDevice: %v", err)
	}

	if _, err := store.LoadDevice("device-c"); err == nil {
		t.Error("expected the revoked device record to be gone")
	}
	if _, err := store.LoadConnection("self-1", "device-c"); err == nil {
		t.Error("expected the revoked connection secret to be gone")
	}

	// Revoking an already-revoked (or never-paired) device must not error.
	if err := store.RevokeDevice("self-1", "device-c"); err != nil {
		t.Errorf("RevokeDevice on an already-revoked device: %v", err)
	}
}
