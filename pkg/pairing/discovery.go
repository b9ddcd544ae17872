package pairing

import (
	"context"
	"fmt"
)

// PeerAddress is whatever a discovery strategy resolves a session id to: an
// address the overlay endpoint can dial. It's an interface rather than a
// concrete net.Addr so that each strategy can supply its own address type.
type PeerAddress interface {
	String() string
}

// hostPort is the plain "host:port" PeerAddress QUICRelayClient.Resolve
// returns: the address the peer registered with the relay server.
type hostPort string

func (h hostPort) String() string { return string(h) }

// Discoverer advertises or resolves a pairing session.
type Discoverer interface {
	// Advertise makes sessionID discoverable until ctx is canceled.
	Advertise(ctx context.Context, sessionID string) error
	// Resolve looks up an address for sessionID, blocking until found or
	// ctx is canceled.
	Resolve(ctx context.Context, sessionID string) (PeerAddress, error)
}

// ErrNotImplemented is returned by the mDNS and DHT discoverer stubs: their
// interfaces exist so a future implementation plugs in without touching the
// pairing state machine, but spec.md's non-goal on "NAT-piercing beyond a
// relay-assisted overlay" means only the relay strategy ships real logic.
var ErrNotImplemented = fmt.Errorf("pairing: discovery strategy not implemented")

// MDNSDiscoverer is the local-network discovery strategy's interface seam.
// It is not backed by an implementation in this build.
type MDNSDiscoverer struct{}

func (MDNSDiscoverer) Advertise(context.Context, string) error { return ErrNotImplemented }
func (MDNSDiscoverer) Resolve(context.Context, string) (PeerAddress, error) {
	return nil, ErrNotImplemented
}

// DHTDiscoverer is the session-id-keyed DHT discovery strategy's interface
// seam. It is not backed by an implementation in this build.
type DHTDiscoverer struct{}

func (DHTDiscoverer) Advertise(context.Context, string) error { return ErrNotImplemented }
func (DHTDiscoverer) Resolve(context.Context, string) (PeerAddress, error) {
	return nil, ErrNotImplemented
}

// RelayClient is the seam to the overlay's relay component: a rendezvous
// service neither side needs to be directly reachable through.
type RelayClient interface {
	Advertise(ctx context.Context, sessionID string) error
	Resolve(ctx context.Context, sessionID string) (PeerAddress, error)
}

// RelayDiscoverer adapts a RelayClient to the Discoverer interface.
type RelayDiscoverer struct {
	Client RelayClient
}

func (d RelayDiscoverer) Advertise(ctx context.Context, sessionID string) error {
	return d.Client.Advertise(ctx, sessionID)
}

func (d RelayDiscoverer) Resolve(ctx context.Context, sessionID string) (PeerAddress, error) {
	return d.Client.Resolve(ctx, sessionID)
}

// Chain tries a priority-ordered list of Discoverers: local mDNS, then a
// session-keyed DHT, then the relay fallback, per spec.md §4.8. A relay-
// only configuration (NewRelayOnlyChain) skips straight to the relay strategy,
// since the mDNS/DHT stubs above cannot succeed in this build anyway.
type Chain struct {
	strategies []Discoverer
}

// NewChain builds the full three-strategy discovery chain.
func NewChain(mdns, dht Discoverer, relay Discoverer) *Chain {
	return &Chain{strategies: []Discoverer{mdns, dht, relay}}
}

// NewRelayOnlyChain builds a chain that only ever uses relay, for
// environments where mDNS/DHT discovery isn't available or desired.
func NewRelayOnlyChain(relay Discoverer) *Chain {
	return &Chain{strategies: []Discoverer{relay}}
}

// Advertise calls Advertise on every strategy in the chain, continuing past
// a strategy that returns an error (an unimplemented stub, or a local
// network without mDNS) so the remaining strategies still get a chance.
func (c *Chain) Advertise(ctx context.Context, sessionID string) error {
	var lastErr error
	advertised := false
	for _, strategy := range c.strategies {
		if err := strategy.Advertise(ctx, sessionID); err != nil {
			lastErr = err
			continue
		}
		advertised = true
	}
	if !advertised {
		return fmt.Errorf("pairing: no discovery strategy could advertise the session: %w", lastErr)
	}
	return nil
}

// Resolve tries each strategy in priority order, returning the first
// successful resolution.
func (c *Chain) Resolve(ctx context.Context, sessionID string) (PeerAddress, error) {
	var lastErr error
	for _, strategy := range c.strategies {
		addr, err := strategy.Resolve(ctx, sessionID)
		if err == nil {
			return addr, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("pairing: no discovery strategy resolved the session: %w", lastErr)
}
