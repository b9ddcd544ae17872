package pairing

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
	"io"

	"github.com/tinylib/msgp/msgp"

	"github.com/sd-io/sdcore/pkg/overlay"
)

// GenerateSigningKeypair generates a new ed25519 keypair for signing
// DeviceInfo records. This identity is long-lived and distinct from the
// ephemeral Noise static keypair used to authenticate a single pairing
// session: it is what lets a persisted PairedDevice record remain
// verifiable long after the handshake that carried it is gone.
func GenerateSigningKeypair() (ed25519.PrivateKey, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("pairing: generating signing keypair: %w", err)
	}
	return priv, pub, nil
}

// DeviceInfo is what each side of a pairing session tells the other about
// itself, per spec.md §4.8 ("name, OS, app version, device UUID, network
// fingerprint").
type DeviceInfo struct {
	DeviceUUID         string
	Name               string
	OS                 string
	AppVersion         string
	NetworkFingerprint string
}

func (d DeviceInfo) marshalFields(o []byte) []byte {
	o = msgp.AppendMapHeader(o, 5)
	o = msgp.AppendString(o, "device_uuid")
	o = msgp.AppendString(o, d.DeviceUUID)
	o = msgp.AppendString(o, "name")
	o = msgp.AppendString(o, d.Name)
	o = msgp.AppendString(o, "os")
	o = msgp.AppendString(o, d.OS)
	o = msgp.AppendString(o, "app_version")
	o = msgp.AppendString(o, d.AppVersion)
	o = msgp.AppendString(o, "network_fingerprint")
	o = msgp.AppendString(o, d.NetworkFingerprint)
	return o
}

func (d *DeviceInfo) unmarshalFields(bts []byte) ([]byte, error) {
	count, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, fmt.Errorf("pairing: reading device info map header: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, fmt.Errorf("pairing: reading device info field name: %w", err)
		}
		var value string
		switch field {
		case "device_uuid":
			value, bts, err = msgp.ReadStringBytes(bts)
			d.DeviceUUID = value
		case "name":
			value, bts, err = msgp.ReadStringBytes(bts)
			d.Name = value
		case "os":
			value, bts, err = msgp.ReadStringBytes(bts)
			d.OS = value
		case "app_version":
			value, bts, err = msgp.ReadStringBytes(bts)
			d.AppVersion = value
		case "network_fingerprint":
			value, bts, err = msgp.ReadStringBytes(bts)
			d.NetworkFingerprint = value
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, fmt.Errorf("pairing: reading device info field %q: %w", field, err)
		}
	}
	return bts, nil
}

// SignedDeviceInfo pairs a DeviceInfo with an ed25519 signature over it and
// the signer's public key, so the record remains independently verifiable
// after persistence, not just authenticated for the duration of the Noise
// session that carried it.
type SignedDeviceInfo struct {
	Info      DeviceInfo
	Signature []byte
	PublicKey ed25519.PublicKey
}

// SignDeviceInfo signs info with priv.
func SignDeviceInfo(priv ed25519.PrivateKey, info DeviceInfo) *SignedDeviceInfo {
	payload := info.marshalFields(nil)
	return &SignedDeviceInfo{
		Info:      info,
		Signature: ed25519.Sign(priv, payload),
		PublicKey: priv.Public().(ed25519.PublicKey),
	}
}

// Verify checks that Signature is a valid ed25519 signature by PublicKey
// over Info.
func (s *SignedDeviceInfo) Verify() error {
	payload := s.Info.marshalFields(nil)
	if !ed25519.Verify(s.PublicKey, payload, s.Signature) {
		return fmt.Errorf("pairing: device info signature verification failed")
	}
	return nil
}

func (s SignedDeviceInfo) MarshalMsg(o []byte) ([]byte, error) {
	o = msgp.AppendMapHeader(o, 3)
	o = msgp.AppendString(o, "info")
	o = s.Info.marshalFields(o)
	o = msgp.AppendString(o, "signature")
	o = msgp.AppendBytes(o, s.Signature)
	o = msgp.AppendString(o, "public_key")
	o = msgp.AppendBytes(o, s.PublicKey)
	return o, nil
}

func (s *SignedDeviceInfo) UnmarshalMsg(bts []byte) ([]byte, error) {
	count, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, fmt.Errorf("pairing: reading signed device info map header: %w", err)
	}
	for i := uint32(0); i < count; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, fmt.Errorf("pairing: reading signed device info field name: %w", err)
		}
		switch field {
		case "info":
			bts, err = s.Info.unmarshalFields(bts)
		case "signature":
			var sig []byte
			sig, bts, err = msgp.ReadBytesBytes(bts, nil)
			s.Signature = sig
		case "public_key":
			var key []byte
			key, bts, err = msgp.ReadBytesBytes(bts, nil)
			s.PublicKey = ed25519.PublicKey(key)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, fmt.Errorf("pairing: reading signed device info field %q: %w", field, err)
		}
	}
	return bts, nil
}

// ExchangeDeviceInfo sends local over stream, encrypted under the Noise
// transport secret handshake produced, and receives and verifies the
// remote side's equivalent, implementing spec.md §4.8's "each side sends a
// signed DeviceInfo... verifies the... signature and vice versa". The
// initiator sends first so that both sides observe the same message order
// regardless of role, matching the handshake's own message ordering.
func ExchangeDeviceInfo(stream io.ReadWriter, role Role, handshake *HandshakeResult, local *SignedDeviceInfo) (*SignedDeviceInfo, error) {
	encoder := overlay.NewEncoder(stream)
	decoder := overlay.NewDecoder(stream)

	send := func() error {
		plaintext, err := local.MarshalMsg(nil)
		if err != nil {
			return fmt.Errorf("pairing: marshaling device info: %w", err)
		}
		ciphertext, err := handshake.Send.Encrypt(nil, nil, plaintext)
		if err != nil {
			return fmt.Errorf("pairing: encrypting device info: %w", err)
		}
		return encoder.Encode(ciphertext)
	}

	receive := func() (*SignedDeviceInfo, error) {
		ciphertext, err := decoder.Decode()
		if err != nil {
			return nil, fmt.Errorf("pairing: receiving device info: %w", err)
		}
		plaintext, err := handshake.Receive.Decrypt(nil, nil, ciphertext)
		if err != nil {
			return nil, fmt.Errorf("pairing: decrypting device info: %w", err)
		}
		var remote SignedDeviceInfo
		if _, err := remote.UnmarshalMsg(plaintext); err != nil {
			return nil, fmt.Errorf("pairing: unmarshaling device info: %w", err)
		}
		if err := remote.Verify(); err != nil {
			return nil, err
		}
		return &remote, nil
	}

	if role == RoleInitiator {
		if err := send(); err != nil {
			return nil, err
		}
		return receive()
	}

	remote, err := receive()
	if err != nil {
		return nil, err
	}
	if err := send(); err != nil {
		return nil, err
	}
	return remote, nil
}
