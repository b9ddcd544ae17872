package pairing

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/sd-io/sdcore/pkg/eventbus"
	"github.com/sd-io/sdcore/pkg/overlay"
)

// EventKindPeerAvailable is the eventbus.Kind a Manager emits once a
// pairing session reaches StateCompleted on either side, carrying a
// PeerAvailable payload, per spec.md §4.8's "both write paired-device rows
// and emit PeerAvailable events."
const EventKindPeerAvailable eventbus.Kind = "pairing.peer_available"

// PeerAvailable is the eventbus payload for EventKindPeerAvailable.
type PeerAvailable struct {
	Device PairedDevice
}

// Identity is the local device's pairing-relevant identity: the keys it
// authenticates sessions with and the info it shows the remote side.
type Identity struct {
	DeviceUUID string
	Name       string
	OS         string
	AppVersion string
	Signing    ed25519.PrivateKey
	Static     StaticKeypair
}

func (id Identity) deviceInfo() DeviceInfo {
	return DeviceInfo{
		DeviceUUID: id.DeviceUUID,
		Name:       id.Name,
		OS:         id.OS,
		AppVersion: id.AppVersion,
	}
}

// outcome is what a completed (or failed) authentication produces.
type outcome struct {
	device PairedDevice
	err    error
}

// Manager orchestrates end-to-end pairing attempts against a live
// pkg/overlay.Endpoint, a discovery Chain, and an at-rest Store,
// implementing both the Initiator and Joiner sides of spec.md §4.8's full
// state machine. It registers itself as the Endpoint's ALPN handler: a
// joiner dials in and sends the session id as the stream's first frame, so
// an inbound connection can be correlated back to the Initiate call
// waiting for it.
type Manager struct {
	endpoint *overlay.Endpoint
	chain    *Chain
	store    *Store
	identity Identity
	bus      *eventbus.Bus

	mu      sync.Mutex
	pending map[string]chan outcome
}

// NewManager constructs a Manager. identity's keys authenticate every
// session this Manager participates in, on either side.
func NewManager(endpoint *overlay.Endpoint, chain *Chain, store *Store, identity Identity, bus *eventbus.Bus) *Manager {
	return &Manager{
		endpoint: endpoint,
		chain:    chain,
		store:    store,
		identity: identity,
		bus:      bus,
		pending:  make(map[string]chan outcome),
	}
}

// ALPN implements overlay.ProtocolHandler.
func (m *Manager) ALPN() string { return ALPN }

// Store returns the Manager's at-rest paired-device store, for callers
// (such as a daemon's device.list/device.revoke handlers) that need to
// inspect or modify persisted pairing state directly rather than through
// an Initiate/Join round trip.
func (m *Manager) Store() *Store { return m.store }

// Identity returns the local identity this Manager authenticates sessions
// with.
func (m *Manager) Identity() Identity { return m.identity }

// OpenDeviceStream resolves deviceUUID via the discovery chain and opens a
// stream to it negotiating alpn, for callers (such as the block-transfer/
// drop protocol) that need to reach an already-paired device outside of
// the pairing handshake itself. It relies on the peer continuing to
// advertise itself under its own device uuid for as long as it wants to
// remain reachable, the same way Initiate advertises a session id.
func (m *Manager) OpenDeviceStream(ctx context.Context, deviceUUID, alpn string) (quic.Stream, error) {
	address, err := m.chain.Resolve(ctx, deviceUUID)
	if err != nil {
		return nil, fmt.Errorf("pairing: resolving device %s: %w", deviceUUID, err)
	}
	stream, err := m.endpoint.OpenStream(ctx, deviceUUID, address, alpn)
	if err != nil {
		return nil, fmt.Errorf("pairing: connecting to device %s: %w", deviceUUID, err)
	}
	return stream, nil
}

// HandleStream implements overlay.ProtocolHandler: it reads the session id
// a joiner sends as the stream's first frame and, if an Initiate call is
// waiting for that session, runs the initiator side of the handshake and
// device-info exchange against the stream and delivers the result to it.
// An inbound connection for a session nobody is waiting on is rejected.
func (m *Manager) HandleStream(ctx context.Context, peer string, stream quic.Stream) error {
	decoder := overlay.NewDecoder(stream)
	frame, err := decoder.Decode()
	if err != nil {
		return fmt.Errorf("pairing: reading session id frame: %w", err)
	}
	sessionID := string(frame)

	m.mu.Lock()
	ch, ok := m.pending[sessionID]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("pairing: no pending session for %s", sessionID)
	}

	device, err := m.authenticate(ctx, stream, RoleInitiator)
	ch <- outcome{device: device, err: err}
	return err
}

// Result is the outcome of a completed (or failed) pairing attempt,
// delivered asynchronously by Initiate so a caller can display the
// pairing code before the remote side has even connected.
type Result struct {
	Session *Session
	Device  PairedDevice
	Err     error
}

// Initiate generates a fresh pairing code and advertises its session via
// the discovery chain, returning immediately so the caller can display the
// code's mnemonic. The returned channel receives exactly one Result once a
// joiner connects and completes the handshake and device-info exchange,
// the code expires, or ctx is canceled.
func (m *Manager) Initiate(ctx context.Context) (*Code, <-chan Result, error) {
	code, err := GenerateCode()
	if err != nil {
		return nil, nil, fmt.Errorf("pairing: generating code: %w", err)
	}
	session := NewSession(RoleInitiator, code)
	if err := session.Transition(StateGeneratingCode); err != nil {
		return code, nil, err
	}

	resultCh := make(chan outcome, 1)
	m.mu.Lock()
	m.pending[code.SessionID] = resultCh
	m.mu.Unlock()

	advertiseCtx, stopAdvertise := context.WithDeadline(ctx, code.ExpiresAt)
	if err := m.chain.Advertise(advertiseCtx, code.SessionID); err != nil {
		stopAdvertise()
		m.mu.Lock()
		delete(m.pending, code.SessionID)
		m.mu.Unlock()
		session.Fail(err.Error())
		return code, nil, fmt.Errorf("pairing: advertising session: %w", err)
	}
	if err := session.Transition(StateBroadcasting); err != nil {
		stopAdvertise()
		return code, nil, err
	}
	if err := session.Transition(StateWaitingForConnection); err != nil {
		stopAdvertise()
		return code, nil, err
	}

	out := make(chan Result, 1)
	go func() {
		defer stopAdvertise()
		defer func() {
			m.mu.Lock()
			delete(m.pending, code.SessionID)
			m.mu.Unlock()
		}()

		select {
		case result := <-resultCh:
			if result.err != nil {
				session.Fail(result.err.Error())
				out <- Result{Session: session, Err: result.err}
				return
			}
			if err := advanceTo(session,
				StateConnecting,
				StateAuthenticating,
				StateExchangingKeys,
				StateAwaitingConfirmation,
				StateEstablishingSession,
				StateCompleted,
			); err != nil {
				out <- Result{Session: session, Err: err}
				return
			}
			if err := m.store.SaveDevice(result.device); err != nil {
				session.Fail(err.Error())
				out <- Result{Session: session, Err: fmt.Errorf("pairing: persisting paired device: %w", err)}
				return
			}
			m.bus.Emit(eventbus.Event{Kind: EventKindPeerAvailable, Payload: PeerAvailable{Device: result.device}})
			out <- Result{Session: session, Device: result.device}
		case <-time.After(time.Until(code.ExpiresAt)):
			session.Fail("pairing code expired")
			out <- Result{Session: session, Err: fmt.Errorf("pairing: code expired before a joiner connected")}
		case <-ctx.Done():
			session.Fail(ctx.Err().Error())
			out <- Result{Session: session, Err: ctx.Err()}
		}
	}()

	return code, out, nil
}

// Join consumes a mnemonic generated by an Initiate call elsewhere,
// resolves the initiator's address via the discovery chain, dials in, and
// runs the joiner side of the handshake and device-info exchange. On
// success it returns the initiator's now-persisted PairedDevice record
// alongside the completed Session.
func (m *Manager) Join(ctx context.Context, mnemonic string) (*Session, PairedDevice, error) {
	code, err := ParseCode(mnemonic)
	if err != nil {
		return nil, PairedDevice{}, fmt.Errorf("pairing: %w", err)
	}
	session := NewSession(RoleJoiner, code)
	if err := session.Transition(StateGeneratingCode); err != nil {
		return session, PairedDevice{}, err
	}
	if err := session.Transition(StateBroadcasting); err != nil {
		return session, PairedDevice{}, err
	}
	if err := session.Transition(StateWaitingForConnection); err != nil {
		return session, PairedDevice{}, err
	}

	address, err := m.chain.Resolve(ctx, code.SessionID)
	if err != nil {
		session.Fail(err.Error())
		return session, PairedDevice{}, fmt.Errorf("pairing: resolving session: %w", err)
	}
	if err := session.Transition(StateConnecting); err != nil {
		return session, PairedDevice{}, err
	}

	stream, err := m.endpoint.OpenStream(ctx, code.SessionID, address, ALPN)
	if err != nil {
		session.Fail(err.Error())
		return session, PairedDevice{}, fmt.Errorf("pairing: connecting to initiator: %w", err)
	}
	defer stream.Close()

	encoder := overlay.NewEncoder(stream)
	if err := encoder.Encode([]byte(code.SessionID)); err != nil {
		session.Fail(err.Error())
		return session, PairedDevice{}, fmt.Errorf("pairing: sending session id: %w", err)
	}

	device, err := m.authenticate(ctx, stream, RoleJoiner)
	if err != nil {
		session.Fail(err.Error())
		return session, PairedDevice{}, err
	}
	if err := advanceTo(session,
		StateAuthenticating,
		StateExchangingKeys,
		StateAwaitingConfirmation,
		StateEstablishingSession,
		StateCompleted,
	); err != nil {
		return session, PairedDevice{}, err
	}
	if err := m.store.SaveDevice(device); err != nil {
		session.Fail(err.Error())
		return session, PairedDevice{}, fmt.Errorf("pairing: persisting paired device: %w", err)
	}
	m.bus.Emit(eventbus.Event{Kind: EventKindPeerAvailable, Payload: PeerAvailable{Device: device}})
	return session, device, nil
}

// advanceTo drives session through each of states in order, once its
// handshake and device-info exchange have already succeeded.
func advanceTo(session *Session, states ...State) error {
	for _, state := range states {
		if err := session.Transition(state); err != nil {
			return err
		}
	}
	return nil
}

// authenticate runs the Noise XX handshake over stream, then exchanges and
// verifies signed DeviceInfo, encrypted under the handshake's resulting
// transport secrets. It returns the remote side's authenticated,
// persistable PairedDevice record.
func (m *Manager) authenticate(ctx context.Context, stream quic.Stream, role Role) (PairedDevice, error) {
	result, err := RunHandshake(stream, role, m.identity.Static)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("pairing: handshake: %w", err)
	}

	local := SignDeviceInfo(m.identity.Signing, m.identity.deviceInfo())
	localPayload, err := json.Marshal(local)
	if err != nil {
		return PairedDevice{}, fmt.Errorf("pairing: marshaling local device info: %w", err)
	}

	encoder := overlay.NewEncoder(stream)
	decoder := overlay.NewDecoder(stream)

	sendInfo := func() error {
		ciphertext, err := result.Send.Encrypt(nil, nil, localPayload)
		if err != nil {
			return fmt.Errorf("pairing: encrypting device info: %w", err)
		}
		return encoder.Encode(ciphertext)
	}
	recvInfo := func() (*SignedDeviceInfo, error) {
		frame, err := decoder.Decode()
		if err != nil {
			return nil, fmt.Errorf("pairing: receiving device info: %w", err)
		}
		plaintext, err := result.Receive.Decrypt(nil, nil, frame)
		if err != nil {
			return nil, fmt.Errorf("pairing: decrypting device info: %w", err)
		}
		var remote SignedDeviceInfo
		if err := json.Unmarshal(plaintext, &remote); err != nil {
			return nil, fmt.Errorf("pairing: unmarshaling device info: %w", err)
		}
		if err := remote.Verify(); err != nil {
			return nil, fmt.Errorf("pairing: %w", err)
		}
		return &remote, nil
	}

	// The initiator writes first and the joiner reads first, so neither
	// side blocks waiting for the other to read before it writes.
	var remote *SignedDeviceInfo
	if role == RoleInitiator {
		if err := sendInfo(); err != nil {
			return PairedDevice{}, err
		}
		remote, err = recvInfo()
	} else {
		remote, err = recvInfo()
		if err == nil {
			err = sendInfo()
		}
	}
	if err != nil {
		return PairedDevice{}, err
	}

	return PairedDevice{
		DeviceUUID:         remote.Info.DeviceUUID,
		Name:               remote.Info.Name,
		OS:                 remote.Info.OS,
		AppVersion:         remote.Info.AppVersion,
		NetworkFingerprint: remote.Info.NetworkFingerprint,
		SigningPublicKey:   remote.PublicKey,
		StaticPublicKey:    result.RemoteStatic,
	}, nil
}
