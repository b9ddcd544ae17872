// Package pairing implements the device-pairing protocol described by
// spec.md §4.8: a BIP39 mnemonic code, a three-strategy discovery chain, a
// Noise XX handshake, signed DeviceInfo exchange, a full pairing state
// machine, and encrypted-at-rest persistence.
package pairing

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/tyler-smith/go-bip39"
)

// codeEntropyBytes is 128 bits, per spec.md §4.8 ("128 bits of entropy are
// expanded via BIP39 to 12 English words").
const codeEntropyBytes = 16

// CodeLifetime is how long a generated pairing code remains valid before
// discovery and handshake attempts against it must be rejected.
const CodeLifetime = 5 * time.Minute

// Code is a pairing code: the BIP39 mnemonic shown to the user, the raw
// entropy it encodes (the "secret", 16 bytes), and the session id both
// sides derive from that entropy without a round trip.
type Code struct {
	Mnemonic  string
	Entropy   [codeEntropyBytes]byte
	SessionID string
	ExpiresAt time.Time
}

// GenerateCode creates a new pairing code with freshly generated entropy.
func GenerateCode() (*Code, error) {
	var entropy [codeEntropyBytes]byte
	if _, err := rand.Read(entropy[:]); err != nil {
		return nil, fmt.Errorf("pairing: generating entropy: %w", err)
	}
	return codeFromEntropy(entropy)
}

// ParseCode reconstructs a Code from a mnemonic a joiner typed in.
func ParseCode(mnemonic string) (*Code, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return nil, fmt.Errorf("pairing: invalid mnemonic")
	}
	entropySlice, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return nil, fmt.Errorf("pairing: decoding mnemonic: %w", err)
	}
	if len(entropySlice) != codeEntropyBytes {
		return nil, fmt.Errorf("pairing: expected %d bytes of entropy, got %d", codeEntropyBytes, len(entropySlice))
	}
	var entropy [codeEntropyBytes]byte
	copy(entropy[:], entropySlice)
	return codeFromEntropy(entropy)
}

func codeFromEntropy(entropy [codeEntropyBytes]byte) (*Code, error) {
	mnemonic, err := bip39.NewMnemonic(entropy[:])
	if err != nil {
		return nil, fmt.Errorf("pairing: encoding mnemonic: %w", err)
	}
	return &Code{
		Mnemonic:  mnemonic,
		Entropy:   entropy,
		SessionID: sessionIDFromEntropy(entropy),
		ExpiresAt: time.Now().Add(CodeLifetime),
	}, nil
}

// sessionIDFromEntropy derives the session id both pairing sides compute
// independently from the shared entropy, so discovery (mDNS/DHT/relay) can
// key on it without a prior round trip.
func sessionIDFromEntropy(entropy [codeEntropyBytes]byte) string {
	sum := sha256.Sum256(entropy[:])
	return fmt.Sprintf("%x", sum[:8])
}

// Expired reports whether the code has outlived its lifetime.
func (c *Code) Expired() bool {
	return time.Now().After(c.ExpiresAt)
}
