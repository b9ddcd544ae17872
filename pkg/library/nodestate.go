// Package library implements the device and library lifecycle layer that
// hosts every model spec.md's Job System, Index, Sync Core, and Action
// layer operate on: it owns the sqlite database pkg/db provisions for
// each library, wires pkg/syncengine's Transaction Manager and peer log
// against that database, and persists the device's own identity and each
// library's metadata as YAML, mirroring mutagen's persisted
// identifier/configuration files under its data directory.
package library

import (
	"crypto/ed25519"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/sd-io/sdcore/pkg/encoding"
	"github.com/sd-io/sdcore/pkg/pairing"
)

// nodeStateFileName is the name of the device identity file within
// sdcore's root directory, per spec.md's persisted layout
// ("node_state.sdconfig").
const nodeStateFileName = "node_state.sdconfig"

// NodeState is this device's own persistent identity: a stable UUID and
// the long-lived keypairs pkg/pairing uses to sign and encrypt pairing
// exchanges. It is distinct from any particular library's member row,
// since one device can belong to zero or more libraries.
type NodeState struct {
	DeviceUUID uuid.UUID `yaml:"deviceUuid"`
	Name       string    `yaml:"name"`

	// SigningPrivateKey/SigningPublicKey are the ed25519 identity used to
	// sign DeviceInfo records exchanged during pairing (pkg/pairing.
	// SignDeviceInfo), kept separate from the Noise static keypair per
	// pkg/pairing's own design: a Noise DH keypair cannot itself produce a
	// verifiable signature.
	SigningPrivateKey []byte `yaml:"signingPrivateKey"`
	SigningPublicKey  []byte `yaml:"signingPublicKey"`

	// StaticPrivateKey/StaticPublicKey are this device's Noise-XX static
	// keypair, generated once and reused across every pairing handshake
	// this device initiates or joins.
	StaticPrivateKey []byte `yaml:"staticPrivateKey"`
	StaticPublicKey  []byte `yaml:"staticPublicKey"`
}

// newNodeState generates a fresh device identity: a random UUID, a new
// ed25519 signing keypair, and a new Noise static keypair.
func newNodeState(name string) (*NodeState, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("library: generating device uuid: %w", err)
	}

	signingPrivate, signingPublic, err := pairing.GenerateSigningKeypair()
	if err != nil {
		return nil, fmt.Errorf("library: generating signing keypair: %w", err)
	}

	staticKey, err := pairing.GenerateStaticKeypair()
	if err != nil {
		return nil, fmt.Errorf("library: generating static keypair: %w", err)
	}

	return &NodeState{
		DeviceUUID:        id,
		Name:              name,
		SigningPrivateKey: []byte(signingPrivate),
		SigningPublicKey:  []byte(signingPublic),
		StaticPrivateKey:  staticKey.Private,
		StaticPublicKey:   staticKey.Public,
	}, nil
}

// SigningKeypair returns the device's ed25519 signing keypair.
func (n *NodeState) SigningKeypair() (ed25519.PrivateKey, ed25519.PublicKey) {
	return ed25519.PrivateKey(n.SigningPrivateKey), ed25519.PublicKey(n.SigningPublicKey)
}

// StaticKeypair returns the device's Noise-XX static keypair.
func (n *NodeState) StaticKeypair() pairing.StaticKeypair {
	return pairing.StaticKeypair{Private: n.StaticPrivateKey, Public: n.StaticPublicKey}
}

// LoadOrCreateNodeState loads the device identity from root, generating
// and persisting a new one (under the given display name) if none exists
// yet. root is sdcore's base directory, not a library-specific one.
func LoadOrCreateNodeState(root, name string) (*NodeState, error) {
	path := root + "/" + nodeStateFileName

	state := &NodeState{}
	err := encoding.LoadAndUnmarshalYAML(path, state)
	if err == nil {
		return state, nil
	}
	if !os.IsNotExist(err) {
		return nil, fmt.Errorf("library: loading node state: %w", err)
	}

	state, err = newNodeState(name)
	if err != nil {
		return nil, err
	}
	if err := encoding.MarshalAndSaveYAML(path, state); err != nil {
		return nil, fmt.Errorf("library: saving node state: %w", err)
	}
	return state, nil
}
