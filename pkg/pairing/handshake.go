package pairing

import (
	"crypto/rand"
	"fmt"
	"io"

	"github.com/flynn/noise"

	"github.com/sd-io/sdcore/pkg/overlay"
)

// ALPN is the protocol identifier the pairing handshake negotiates over
// pkg/overlay, per spec.md §4.8's "Noise XX over the pairing ALPN".
const ALPN = "sdcore/pairing/1"

// cipherSuite fixes the Noise cipher suite for every pairing handshake:
// Curve25519 DH, AES-256-GCM, SHA-256.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherAESGCM, noise.HashSHA256)

// StaticKeypair is a device's long-lived Noise static keypair, used to
// authenticate it across pairing sessions.
type StaticKeypair = noise.DHKey

// GenerateStaticKeypair creates a new Curve25519 static keypair.
func GenerateStaticKeypair() (StaticKeypair, error) {
	return cipherSuite.GenerateKeypair(rand.Reader)
}

// HandshakeResult is the outcome of a completed Noise XX handshake: the two
// directional cipher states for the resulting transport secret, and the
// remote party's authenticated static public key.
type HandshakeResult struct {
	Send         *noise.CipherState
	Receive      *noise.CipherState
	RemoteStatic []byte
}

// RunHandshake performs the three-message Noise XX handshake described by
// spec.md §4.8 over stream, framed with pkg/overlay's length-prefixed
// encoder/decoder (the same framing the sync and block-transfer protocols
// use, just carrying raw handshake messages here instead of JSON or
// MessagePack payloads):
//
//  1. Initiator → Joiner: e
//  2. Joiner → Initiator: e, ee, s, es
//  3. Initiator → Joiner: s, se
func RunHandshake(stream io.ReadWriter, role Role, staticKey StaticKeypair) (*HandshakeResult, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Pattern:       noise.HandshakeXX,
		Initiator:     role == RoleInitiator,
		StaticKeypair: staticKey,
	})
	if err != nil {
		return nil, fmt.Errorf("pairing: initializing handshake state: %w", err)
	}

	encoder := overlay.NewEncoder(stream)
	decoder := overlay.NewDecoder(stream)

	var c1, c2 *noise.CipherState

	if role == RoleInitiator {
		msg, _, _, err := hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("pairing: writing message 1 (e): %w", err)
		}
		if err := encoder.Encode(msg); err != nil {
			return nil, fmt.Errorf("pairing: sending message 1: %w", err)
		}

		incoming, err := decoder.Decode()
		if err != nil {
			return nil, fmt.Errorf("pairing: receiving message 2: %w", err)
		}
		if _, _, _, err = hs.ReadMessage(nil, incoming); err != nil {
			return nil, fmt.Errorf("pairing: reading message 2 (e, ee, s, es): %w", err)
		}

		msg, c1, c2, err = hs.WriteMessage(nil, nil)
		if err != nil {
			return nil, fmt.Errorf("pairing: writing message 3 (s, se): %w", err)
		}
		if err := encoder.Encode(msg); err != nil {
			return nil, fmt.Errorf("pairing: sending message 3: %w", err)
		}

		return &HandshakeResult{Send: c1, Receive: c2, RemoteStatic: hs.PeerStatic()}, nil
	}

	incoming, err := decoder.Decode()
	if err != nil {
		return nil, fmt.Errorf("pairing: receiving message 1: %w", err)
	}
	if _, _, _, err = hs.ReadMessage(nil, incoming); err != nil {
		return nil, fmt.Errorf("pairing: reading message 1 (e): %w", err)
	}

	msg, _, _, err := hs.WriteMessage(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("pairing: writing message 2 (e, ee, s, es): %w", err)
	}
	if err := encoder.Encode(msg); err != nil {
		return nil, fmt.Errorf("pairing: sending message 2: %w", err)
	}

	incoming, err = decoder.Decode()
	if err != nil {
		return nil, fmt.Errorf("pairing: receiving message 3: %w", err)
	}
	if _, c1, c2, err = hs.ReadMessage(nil, incoming); err != nil {
		return nil, fmt.Errorf("pairing: reading message 3 (s, se): %w", err)
	}

	return &HandshakeResult{Send: c2, Receive: c1, RemoteStatic: hs.PeerStatic()}, nil
}
