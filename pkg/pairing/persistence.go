package pairing

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sd-io/sdcore/pkg/crypto"
	"github.com/sd-io/sdcore/pkg/encoding"
)

// PairedDevice is the durable record written once a pairing session reaches
// StateCompleted: the remote device's identity and the keys needed to trust
// it and resume encrypted connections with it in the future.
type PairedDevice struct {
	DeviceUUID         string
	Name               string
	OS                 string
	AppVersion         string
	NetworkFingerprint string
	SigningPublicKey   ed25519.PublicKey
	StaticPublicKey    []byte
}

// ConnectionSecret is the durable per-peer record of the Noise static
// keypair a device used with a specific peer, so that future connections to
// that peer can be authenticated against the same identity without
// re-running pairing.
type ConnectionSecret struct {
	PeerDeviceUUID string
	StaticKey      StaticKeypair
}

// encryptedEnvelope is the on-disk shape for both PairedDevice and
// ConnectionSecret records: a PBKDF2 salt, an AES-256-GCM ciphertext (which
// already carries its own prepended nonce, per pkg/crypto.Encrypt), and
// nothing else in the clear.
type encryptedEnvelope struct {
	Salt       []byte
	Ciphertext []byte
}

// Store persists paired-device and connection records under a base
// directory, encrypting each record at rest with a key derived from a
// passphrase, per spec.md §4.8's persistence requirements. Layout:
//
//	<base>/devices/<uuid>.json
//	<base>/connections/<self>/<peer>.json
type Store struct {
	base       string
	passphrase string
}

// NewStore creates a Store rooted at base, creating the devices and
// connections directories if they do not already exist.
func NewStore(base, passphrase string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(base, "devices"), 0700); err != nil {
		return nil, fmt.Errorf("pairing: creating devices directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(base, "connections"), 0700); err != nil {
		return nil, fmt.Errorf("pairing: creating connections directory: %w", err)
	}
	return &Store{base: base, passphrase: passphrase}, nil
}

func (s *Store) devicePath(deviceUUID string) string {
	return filepath.Join(s.base, "devices", deviceUUID+".json")
}

func (s *Store) connectionPath(self, peer string) string {
	return filepath.Join(s.base, "connections", self, peer+".json")
}

func (s *Store) save(path string, value any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("pairing: creating directory for %s: %w", path, err)
	}
	return encoding.MarshalAndSave(path, func() ([]byte, error) {
		plaintext, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("pairing: marshaling record: %w", err)
		}
		salt, err := crypto.NewSalt()
		if err != nil {
			return nil, fmt.Errorf("pairing: generating salt: %w", err)
		}
		key := crypto.DeriveKey(s.passphrase, salt)
		defer key.Zero()
		ciphertext, err := crypto.Encrypt(key, plaintext)
		if err != nil {
			return nil, fmt.Errorf("pairing: encrypting record: %w", err)
		}
		return json.Marshal(encryptedEnvelope{Salt: salt, Ciphertext: ciphertext})
	})
}

func (s *Store) load(path string, value any) error {
	return encoding.LoadAndUnmarshal(path, func(data []byte) error {
		var envelope encryptedEnvelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			return fmt.Errorf("pairing: unmarshaling envelope: %w", err)
		}
		key := crypto.DeriveKey(s.passphrase, envelope.Salt)
		defer key.Zero()
		plaintext, err := crypto.Decrypt(key, envelope.Ciphertext)
		if err != nil {
			return fmt.Errorf("pairing: decrypting record: %w", err)
		}
		return json.Unmarshal(plaintext, value)
	})
}

// SaveDevice persists a paired device record.
func (s *Store) SaveDevice(device PairedDevice) error {
	return s.save(s.devicePath(device.DeviceUUID), device)
}

// LoadDevice loads a previously persisted paired device record.
func (s *Store) LoadDevice(deviceUUID string) (PairedDevice, error) {
	var device PairedDevice
	err := s.load(s.devicePath(deviceUUID), &device)
	return device, err
}

// SaveConnection persists the Noise static keypair used between self and
// peer.
func (s *Store) SaveConnection(self string, connection ConnectionSecret) error {
	return s.save(s.connectionPath(self, connection.PeerDeviceUUID), connection)
}

// LoadConnection loads a previously persisted connection secret.
func (s *Store) LoadConnection(self, peer string) (ConnectionSecret, error) {
	var connection ConnectionSecret
	err := s.load(s.connectionPath(self, peer), &connection)
	return connection, err
}

// ListDevices returns every paired device record, for "device list".
func (s *Store) ListDevices() ([]PairedDevice, error) {
	entries, err := os.ReadDir(filepath.Join(s.base, "devices"))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("pairing: reading devices directory: %w", err)
	}

	var devices []PairedDevice
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		deviceUUID := entry.Name()[:len(entry.Name())-len(".json")]
		device, err := s.LoadDevice(deviceUUID)
		if err != nil {
			return nil, fmt.Errorf("pairing: loading device %s: %w", deviceUUID, err)
		}
		devices = append(devices, device)
	}
	return devices, nil
}

// RevokeDevice removes a paired device's record and any connection secret
// self holds for it, so that "device revoke" leaves no trust material
// behind for a device that must no longer be allowed to sync or receive
// drops.
func (s *Store) RevokeDevice(self, deviceUUID string) error {
	if err := os.Remove(s.devicePath(deviceUUID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pairing: removing device record: %w", err)
	}
	if err := os.Remove(s.connectionPath(self, deviceUUID)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("pairing: removing connection secret: %w", err)
	}
	return nil
}
