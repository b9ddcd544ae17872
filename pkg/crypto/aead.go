package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the iteration count used for password-based key
	// derivation, per the pairing persistence spec (100k iterations).
	PBKDF2Iterations = 100000
	// SaltLength is the length, in bytes, of the PBKDF2 salt.
	SaltLength = 32
	// NonceLength is the length, in bytes, of the AES-GCM nonce.
	NonceLength = 12
	// KeyLength is the length, in bytes, of the derived AES-256 key.
	KeyLength = 32
)

// DeriveKey derives a 32-byte AES-256 key from a password and salt using
// PBKDF2-HMAC-SHA256 with 100,000 iterations, as specified for pairing
// persistence. The caller owns the returned Secret and must Zero it when
// done.
func DeriveKey(password string, salt []byte) *Secret {
	key := pbkdf2.Key([]byte(password), salt, PBKDF2Iterations, KeyLength, sha256.New)
	return NewSecret(key)
}

// NewSalt generates a new cryptographically random PBKDF2 salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("unable to generate salt: %w", err)
	}
	return salt, nil
}

// Encrypt encrypts plaintext under key using AES-256-GCM with a freshly
// generated random nonce. The nonce is prepended to the returned
// ciphertext.
func Encrypt(key *Secret, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("unable to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("unable to create AES-GCM wrapper: %w", err)
	}
	nonce := make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("unable to generate nonce: %w", err)
	}
	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return ciphertext, nil
}

// Decrypt decrypts data previously produced by Encrypt under key. It returns
// an error if authentication fails or the wrong key is used.
func Decrypt(key *Secret, data []byte) ([]byte, error) {
	if len(data) < NonceLength {
		return nil, fmt.Errorf("ciphertext too short")
	}
	block, err := aes.NewCipher(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("unable to create AES cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("unable to create AES-GCM wrapper: %w", err)
	}
	nonce, ciphertext := data[:NonceLength], data[NonceLength:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("unable to decrypt: %w", err)
	}
	return plaintext, nil
}
