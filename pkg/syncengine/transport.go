package syncengine

import (
	"context"
	"encoding/json"
)

// MessageKind distinguishes a one-shot notification from a request that
// expects a response.
type MessageKind int

const (
	MessageSync MessageKind = iota
	MessageRequest
)

// SyncMessage is the unit of communication between paired devices' sync
// engines, carried over pkg/overlay's ALPN-multiplexed QUIC streams.
type SyncMessage struct {
	Kind    MessageKind
	Model   ModelType
	Payload json.RawMessage
}

// SyncResponse answers a MessageRequest-kind SyncMessage.
type SyncResponse struct {
	Payload json.RawMessage
	Err     string
}

// NetworkTransport is the seam between the sync engine and the transport
// layer (pkg/overlay), named directly after spec.md §4.6's four operations:
// send a one-shot message, send a request and await its response, list
// currently connected sync partners, and check whether a specific device is
// reachable at all (including through a relay).
type NetworkTransport interface {
	SendSyncMessage(ctx context.Context, device string, msg SyncMessage) error
	SendSyncRequest(ctx context.Context, device string, msg SyncMessage) (SyncResponse, error)
	ConnectedSyncPartners(ctx context.Context) ([]string, error)
	IsDeviceReachable(ctx context.Context, device string) bool
}
