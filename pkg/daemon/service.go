package daemon

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/sd-io/sdcore/pkg/sdcore"
)

// Request is a single daemon IPC request, framed with pkg/overlay's
// length-prefixed encoder/decoder and JSON-encoded, per SPEC_FULL's
// substitution of the peer overlay's framing for mutagen's gRPC-based
// daemon API. Params carries a method-specific JSON-encoded payload as a
// plain string, rather than json.RawMessage, so Request stays a
// comparable struct (useful in tests and for simple equality checks).
type Request struct {
	// Method names the operation: "version", "terminate", or one of the
	// methods registered with Service.RegisterHandler.
	Method string
	Params string
}

// Response is a single daemon IPC response. Result carries a
// method-specific JSON-encoded payload, for the same reason Params does
// on Request.
type Response struct {
	Error   string `json:"error,omitempty"`
	Version string `json:"version,omitempty"`
	Result  string `json:"result,omitempty"`
}

// HandlerFunc answers one registered method, given its request's raw JSON
// params string, returning a raw JSON result string.
type HandlerFunc func(params string) (string, error)

// Service is the daemon's IPC service implementation: it answers version
// queries, honors termination requests from the CLI, and dispatches every
// other method to a handler registered by the daemon's own run command
// (job/pair/device/drop), keeping this package itself free of any
// dependency on pkg/library or pkg/pairing.
type Service struct {
	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	handlers map[string]HandlerFunc
}

// NewService creates a new daemon service instance.
func NewService() *Service {
	return &Service{done: make(chan struct{}), handlers: make(map[string]HandlerFunc)}
}

// Done returns a channel that is closed once a client has requested
// termination.
func (s *Service) Done() <-chan struct{} {
	return s.done
}

// RegisterHandler wires a method name to the handler that answers it. It
// must be called before Serve starts accepting connections.
func (s *Service) RegisterHandler(method string, fn HandlerFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[method] = fn
}

// Handle dispatches a single decoded request and returns its response.
func (s *Service) Handle(req Request) Response {
	switch req.Method {
	case "version":
		return Response{Version: sdcore.VersionCurrent.String()}
	case "terminate":
		s.doneOnce.Do(func() { close(s.done) })
		return Response{}
	default:
		s.mu.Lock()
		fn, ok := s.handlers[req.Method]
		s.mu.Unlock()
		if !ok {
			return Response{Error: fmt.Sprintf("daemon: unknown method %q", req.Method)}
		}
		result, err := fn(req.Params)
		if err != nil {
			return Response{Error: err.Error()}
		}
		return Response{Result: result}
	}
}

// MarshalRequest and UnmarshalRequest are small JSON helpers kept next to
// the types they serialize, rather than inlined at each call site, since
// both the server and every CLI command need them.
func MarshalRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("daemon: marshaling request: %w", err)
	}
	return data, nil
}

func UnmarshalRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return req, fmt.Errorf("daemon: unmarshaling request: %w", err)
	}
	return req, nil
}

func MarshalResponse(resp Response) ([]byte, error) {
	data, err := json.Marshal(resp)
	if err != nil {
		return nil, fmt.Errorf("daemon: marshaling response: %w", err)
	}
	return data, nil
}

func UnmarshalResponse(data []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return resp, fmt.Errorf("daemon: unmarshaling response: %w", err)
	}
	return resp, nil
}
