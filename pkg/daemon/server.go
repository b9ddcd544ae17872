package daemon

import (
	"net"

	"github.com/sd-io/sdcore/pkg/logging"
	"github.com/sd-io/sdcore/pkg/overlay"
)

// Serve accepts connections on listener and dispatches each framed request
// it receives to service, until listener is closed. Each connection is
// served by its own goroutine, mirroring the one-goroutine-per-connection
// pattern pkg/overlay.Endpoint uses for the peer protocol.
func Serve(listener net.Listener, service *Service, logger *logging.Logger) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			logger.Debugf("daemon: listener closed: %v", err)
			return
		}
		go serveConnection(conn, service, logger)
	}
}

func serveConnection(conn net.Conn, service *Service, logger *logging.Logger) {
	defer conn.Close()

	encoder := overlay.NewEncoder(conn)
	decoder := overlay.NewDecoder(conn)

	for {
		frame, err := decoder.Decode()
		if err != nil {
			return
		}

		req, err := UnmarshalRequest(frame)
		if err != nil {
			logger.Warn(err)
			return
		}

		resp := service.Handle(req)

		payload, err := MarshalResponse(resp)
		if err != nil {
			logger.Warn(err)
			return
		}
		if err := encoder.Encode(payload); err != nil {
			return
		}
	}
}

// Call performs a single request/response round trip over conn.
func Call(conn net.Conn, req Request) (Response, error) {
	encoder := overlay.NewEncoder(conn)
	decoder := overlay.NewDecoder(conn)

	payload, err := MarshalRequest(req)
	if err != nil {
		return Response{}, err
	}
	if err := encoder.Encode(payload); err != nil {
		return Response{}, err
	}

	frame, err := decoder.Decode()
	if err != nil {
		return Response{}, err
	}
	return UnmarshalResponse(frame)
}
