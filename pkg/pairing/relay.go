package pairing

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/sd-io/sdcore/pkg/overlay"
)

// RelayALPN is the protocol identifier a relay server and its clients
// negotiate over pkg/overlay, distinct from ALPN (the pairing handshake
// itself), since a relay connection never carries Noise traffic: it only
// ever carries the small Register/Resolve control protocol below.
const RelayALPN = "sdcore/pairing/relay/1"

// relayMessageKind tags the variant of a relayMessage, mirroring the
// Register/RegisterAck/Connect/ConnectAck/Data/Error message shape the
// original relay transport used over a WebSocket, adapted here to a small
// JSON protocol framed with pkg/overlay's length-prefixed encoder/decoder
// over a QUIC stream instead, since this module has no WebSocket or bincode
// dependency to reuse.
type relayMessageKind string

const (
	relayMessageRegister relayMessageKind = "register"
	relayMessageAck      relayMessageKind = "ack"
	relayMessageResolve  relayMessageKind = "resolve"
	relayMessageResolved relayMessageKind = "resolved"
	relayMessageError    relayMessageKind = "error"
)

// relayMessage is the wire shape for every message a relay client exchanges
// with a relay server.
type relayMessage struct {
	Kind      relayMessageKind `json:"kind"`
	SessionID string           `json:"session_id,omitempty"`
	Address   string           `json:"address,omitempty"`
	Message   string           `json:"message,omitempty"`
}

func sendRelayMessage(encoder *overlay.Encoder, msg relayMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("pairing: marshaling relay message: %w", err)
	}
	return encoder.Encode(payload)
}

func receiveRelayMessage(decoder *overlay.Decoder) (relayMessage, error) {
	var msg relayMessage
	payload, err := decoder.Decode()
	if err != nil {
		return msg, fmt.Errorf("pairing: receiving relay message: %w", err)
	}
	if err := json.Unmarshal(payload, &msg); err != nil {
		return msg, fmt.Errorf("pairing: unmarshaling relay message: %w", err)
	}
	return msg, nil
}

// QUICRelayClient implements RelayClient against a relay server reachable
// over pkg/overlay: Advertise opens a stream, registers the session's own
// dialable address, and holds the stream open for the lifetime of ctx so
// the registration stays live; Resolve opens a separate stream and asks the
// relay server for whatever address the session id was last registered
// under.
type QUICRelayClient struct {
	Endpoint *overlay.Endpoint
	// ServerNode is the relay server's node id, used only to key the
	// Endpoint's connection cache.
	ServerNode string
	// ServerAddress is the relay server's dialable address.
	ServerAddress overlay.Addr
	// LocalAddress is this process's own dialable address, advertised to
	// the relay server so a peer resolving the session id learns where to
	// reach it.
	LocalAddress string
}

// Advertise registers sessionID with the relay server under c.LocalAddress
// and keeps the registration alive until ctx is canceled.
func (c *QUICRelayClient) Advertise(ctx context.Context, sessionID string) error {
	stream, err := c.Endpoint.OpenStream(ctx, c.ServerNode, c.ServerAddress, RelayALPN)
	if err != nil {
		return fmt.Errorf("pairing: dialing relay server: %w", err)
	}

	encoder := overlay.NewEncoder(stream)
	decoder := overlay.NewDecoder(stream)

	if err := sendRelayMessage(encoder, relayMessage{
		Kind:      relayMessageRegister,
		SessionID: sessionID,
		Address:   c.LocalAddress,
	}); err != nil {
		stream.Close()
		return err
	}

	resp, err := receiveRelayMessage(decoder)
	if err != nil {
		stream.Close()
		return err
	}
	if resp.Kind == relayMessageError {
		stream.Close()
		return fmt.Errorf("pairing: relay server rejected registration: %s", resp.Message)
	}
	if resp.Kind != relayMessageAck {
		stream.Close()
		return fmt.Errorf("pairing: relay server sent unexpected response %q to registration", resp.Kind)
	}

	// The stream stays open for as long as the registration should remain
	// live; the relay server drops it once the peer side disconnects.
	go func() {
		<-ctx.Done()
		stream.Close()
	}()
	return nil
}

// Resolve asks the relay server for the address last registered for
// sessionID.
func (c *QUICRelayClient) Resolve(ctx context.Context, sessionID string) (PeerAddress, error) {
	stream, err := c.Endpoint.OpenStream(ctx, c.ServerNode, c.ServerAddress, RelayALPN)
	if err != nil {
		return nil, fmt.Errorf("pairing: dialing relay server: %w", err)
	}
	defer stream.Close()

	encoder := overlay.NewEncoder(stream)
	decoder := overlay.NewDecoder(stream)

	if err := sendRelayMessage(encoder, relayMessage{
		Kind:      relayMessageResolve,
		SessionID: sessionID,
	}); err != nil {
		return nil, err
	}

	resp, err := receiveRelayMessage(decoder)
	if err != nil {
		return nil, err
	}
	if resp.Kind == relayMessageError {
		return nil, fmt.Errorf("pairing: relay server could not resolve session: %s", resp.Message)
	}
	if resp.Kind != relayMessageResolved {
		return nil, fmt.Errorf("pairing: relay server sent unexpected response %q to resolve", resp.Kind)
	}
	return hostPort(resp.Address), nil
}

// relayServerHandler is a pkg/overlay.ProtocolHandler implementing the
// server side of the relay protocol: an in-memory registry of session id to
// advertised address, serving Resolve requests until the registering stream
// closes. A standalone relay server process (not part of this module's
// scope, per spec.md's non-goal on hosting shared infrastructure) would
// register this handler on its own Endpoint; it's kept here so a test
// client can exercise QUICRelayClient end-to-end without a real network.
type relayServerHandler struct {
	registry *relayRegistry
}

// NewRelayServerHandler constructs the server side of the relay protocol
// for use in tests or a self-hosted relay.
func NewRelayServerHandler() overlay.ProtocolHandler {
	return &relayServerHandler{registry: newRelayRegistry()}
}

func (h *relayServerHandler) ALPN() string { return RelayALPN }

func (h *relayServerHandler) HandleStream(ctx context.Context, peer string, stream quic.Stream) error {
	decoder := overlay.NewDecoder(stream)
	encoder := overlay.NewEncoder(stream)

	msg, err := receiveRelayMessage(decoder)
	if err != nil {
		return err
	}

	switch msg.Kind {
	case relayMessageRegister:
		h.registry.register(msg.SessionID, msg.Address)
		defer h.registry.unregister(msg.SessionID, msg.Address)
		if err := sendRelayMessage(encoder, relayMessage{Kind: relayMessageAck}); err != nil {
			return err
		}
		// Hold the stream open until the client closes its end (the next
		// Decode then fails) or the server shuts down, keeping the
		// registration alive for as long as QUICRelayClient.Advertise holds
		// its end open.
		closed := make(chan struct{})
		go func() {
			defer close(closed)
			for {
				if _, err := decoder.Decode(); err != nil {
					return
				}
			}
		}()
		select {
		case <-ctx.Done():
		case <-closed:
		}
		return nil
	case relayMessageResolve:
		address, ok := h.registry.lookup(msg.SessionID)
		if !ok {
			return sendRelayMessage(encoder, relayMessage{
				Kind:    relayMessageError,
				Message: fmt.Sprintf("no registration for session %s", msg.SessionID),
			})
		}
		return sendRelayMessage(encoder, relayMessage{Kind: relayMessageResolved, Address: address})
	default:
		return sendRelayMessage(encoder, relayMessage{
			Kind:    relayMessageError,
			Message: fmt.Sprintf("unexpected message kind %q", msg.Kind),
		})
	}
}
