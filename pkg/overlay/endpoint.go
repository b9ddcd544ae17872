package overlay

import (
	"context"
	"crypto/tls"
	"sync"

	"github.com/pkg/errors"
	"github.com/quic-go/quic-go"
)

// ProtocolHandler serves one ALPN-negotiated protocol over an Endpoint. Each
// protocol gets its own ALPN value, so a QUIC connection carries exactly one
// protocol for its lifetime; streams opened on that connection are simply
// successive message exchanges within it.
type ProtocolHandler interface {
	// ALPN is the protocol identifier this handler serves, negotiated during
	// the QUIC/TLS handshake (e.g. "sdcore/sync/1", "sdcore/block/1").
	ALPN() string
	// HandleStream processes one stream accepted on a connection that
	// negotiated this handler's ALPN. peer is the remote address the
	// connection was accepted from; the protocol itself is responsible for
	// authenticating who it's actually talking to.
	HandleStream(ctx context.Context, peer string, stream quic.Stream) error
}

// connKey identifies a cached outbound connection by the peer device and
// the protocol negotiated with it; one physical QUIC connection is kept per
// (node, protocol) pair, and each successive exchange with that peer opens
// a new stream on it.
type connKey struct {
	node string
	alpn string
}

// Endpoint is the single quic-go endpoint a process uses for every overlay
// protocol, per spec.md §4.7. It owns one UDP socket, dispatches inbound
// connections to registered ProtocolHandlers by negotiated ALPN, and caches
// outbound connections so repeated sync/block traffic to the same peer
// doesn't pay a fresh handshake each time.
type Endpoint struct {
	tlsConfig *tls.Config
	quicConfig *quic.Config

	handlersMu sync.RWMutex
	handlers   map[string]ProtocolHandler

	connMu sync.RWMutex
	conns  map[connKey]quic.Connection

	listener *quic.Listener
}

// NewEndpoint constructs an Endpoint. tlsConfig should carry the process's
// certificate; its NextProtos field is overwritten at ListenAndServe/Dial
// time with whatever ALPN is relevant to that call, so callers don't need
// to populate it themselves.
func NewEndpoint(tlsConfig *tls.Config) *Endpoint {
	return &Endpoint{
		tlsConfig:  tlsConfig,
		quicConfig: &quic.Config{},
		handlers:   make(map[string]ProtocolHandler),
		conns:      make(map[connKey]quic.Connection),
	}
}

// RegisterHandler adds h to the dispatch registry under h.ALPN(). It must be
// called before ListenAndServe for the protocol to be reachable.
func (e *Endpoint) RegisterHandler(h ProtocolHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers[h.ALPN()] = h
}

func (e *Endpoint) alpns() []string {
	e.handlersMu.RLock()
	defer e.handlersMu.RUnlock()
	out := make([]string, 0, len(e.handlers))
	for alpn := range e.handlers {
		out = append(out, alpn)
	}
	return out
}

// ListenAndServe binds address and serves incoming connections until ctx is
// canceled. Every registered handler's ALPN is advertised; an inbound
// connection is routed to the handler matching the ALPN the peer selected.
func (e *Endpoint) ListenAndServe(ctx context.Context, address string) error {
	cfg := e.tlsConfig.Clone()
	cfg.NextProtos = e.alpns()

	listener, err := quic.ListenAddr(address, cfg, e.quicConfig)
	if err != nil {
		return errors.Wrap(err, "overlay: unable to listen")
	}
	e.listener = listener
	defer listener.Close()

	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.Wrap(err, "overlay: unable to accept connection")
		}
		go e.serveConnection(ctx, conn)
	}
}

// ListenAddr returns the address ListenAndServe bound, or "" if it hasn't
// bound one yet (or this endpoint is client-only). Useful for tests and for
// advertising a dynamically chosen port (":0") to a relay or peer.
func (e *Endpoint) ListenAddr() string {
	if e.listener == nil {
		return ""
	}
	return e.listener.Addr().String()
}

func (e *Endpoint) serveConnection(ctx context.Context, conn quic.Connection) {
	alpn := conn.ConnectionState().TLS.NegotiatedProtocol
	e.handlersMu.RLock()
	handler, ok := e.handlers[alpn]
	e.handlersMu.RUnlock()
	if !ok {
		conn.CloseWithError(0, "overlay: no handler for negotiated protocol")
		return
	}

	peer := conn.RemoteAddr().String()
	for {
		stream, err := conn.AcceptStream(ctx)
		if err != nil {
			return
		}
		go func() {
			defer stream.Close()
			if err := handler.HandleStream(ctx, peer, stream); err != nil && ctx.Err() == nil {
				stream.CancelWrite(1)
			}
		}()
	}
}

// Addr is satisfied both by net.Addr and by whatever resolver hands back a
// dialable endpoint for a device (pkg/pairing's discovery chain, or a
// direct host:port).
type Addr interface {
	String() string
}

// Dial returns a connection negotiating alpn with node at address, reusing
// a cached connection if one is already open and alive.
func (e *Endpoint) Dial(ctx context.Context, node string, address Addr, alpn string) (quic.Connection, error) {
	key := connKey{node: node, alpn: alpn}

	e.connMu.RLock()
	if conn, ok := e.conns[key]; ok && conn.Context().Err() == nil {
		e.connMu.RUnlock()
		return conn, nil
	}
	e.connMu.RUnlock()

	cfg := e.tlsConfig.Clone()
	cfg.NextProtos = []string{alpn}

	conn, err := quic.DialAddr(ctx, address.String(), cfg, e.quicConfig)
	if err != nil {
		return nil, errors.Wrapf(err, "overlay: unable to dial %s", node)
	}

	e.connMu.Lock()
	e.conns[key] = conn
	e.connMu.Unlock()
	return conn, nil
}

// OpenStream opens a new stream on a (possibly freshly dialed, possibly
// cached) connection to node over alpn.
func (e *Endpoint) OpenStream(ctx context.Context, node string, address Addr, alpn string) (quic.Stream, error) {
	conn, err := e.Dial(ctx, node, address, alpn)
	if err != nil {
		return nil, err
	}
	stream, err := conn.OpenStreamSync(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "overlay: unable to open stream to %s", node)
	}
	return stream, nil
}

// ConnectedPeers returns the node ids of every peer with a live cached
// outbound connection, satisfying the "get connected sync partners" half of
// spec.md §4.6's NetworkTransport from the transport side.
func (e *Endpoint) ConnectedPeers() []string {
	e.connMu.RLock()
	defer e.connMu.RUnlock()

	seen := make(map[string]bool)
	var out []string
	for key, conn := range e.conns {
		if conn.Context().Err() != nil || seen[key.node] {
			continue
		}
		seen[key.node] = true
		out = append(out, key.node)
	}
	return out
}

// Close shuts down the listener and every cached outbound connection.
func (e *Endpoint) Close() error {
	var firstErr error
	if e.listener != nil {
		if err := e.listener.Close(); err != nil {
			firstErr = err
		}
	}

	e.connMu.Lock()
	defer e.connMu.Unlock()
	for key, conn := range e.conns {
		conn.CloseWithError(0, "overlay: endpoint closing")
		delete(e.conns, key)
	}
	return firstErr
}
