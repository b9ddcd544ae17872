// Package crypto implements the primitives shared by sdcore's pairing
// persistence and content/sidecar encryption: PBKDF2-HMAC-SHA256 key
// derivation, AES-256-GCM encryption, and zeroizing key containers. Both
// call sites are specified to use identical parameters, so they share this
// one package rather than duplicating the primitive.
package crypto

// Secret wraps sensitive byte material (derived keys, shared transport
// secrets) so that callers can explicitly zero it once it is no longer
// needed, rather than relying on the garbage collector to scrub it.
type Secret struct {
	bytes []byte
}

// NewSecret wraps the given bytes as a Secret. The caller should not retain
// other references to data; ownership transfers to the Secret.
func NewSecret(data []byte) *Secret {
	return &Secret{bytes: data}
}

// Bytes returns the underlying secret bytes. The returned slice aliases the
// Secret's storage and must not be retained past a call to Zero.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.bytes
}

// Zero overwrites the secret's backing array with zeroes. It is safe to call
// multiple times and safe to call on a nil Secret.
func (s *Secret) Zero() {
	if s == nil {
		return
	}
	for i := range s.bytes {
		s.bytes[i] = 0
	}
}
