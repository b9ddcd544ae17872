package crypto

import (
	"bytes"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}
	key := DeriveKey("correct horse battery staple", salt)
	defer key.Zero()

	plaintext := []byte("a device info payload")
	ciphertext, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	decrypted, err := Decrypt(key, ciphertext)
	if err != nil {
		t.Fatalf("Decrypt failed: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("decrypted plaintext mismatch: %q != %q", decrypted, plaintext)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	salt, _ := NewSalt()
	key := DeriveKey("password-one", salt)
	defer key.Zero()
	wrongKey := DeriveKey("password-two", salt)
	defer wrongKey.Zero()

	ciphertext, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt failed: %v", err)
	}

	if _, err := Decrypt(wrongKey, ciphertext); err == nil {
		t.Error("expected decryption with the wrong key to fail")
	}
}

func TestSecretZero(t *testing.T) {
	s := NewSecret([]byte{1, 2, 3})
	s.Zero()
	for _, b := range s.Bytes() {
		if b != 0 {
			t.Error("expected secret bytes to be zeroed")
		}
	}
}
