package main

import (
	"net"

	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/daemon"
)

// createDaemonConnection dials the daemon's IPC endpoint, the CLI-side
// counterpart to every daemon_*.go/job.go/pair.go/device.go/drop.go command
// that needs to reach a running daemon.
func createDaemonConnection() (net.Conn, error) {
	conn, err := daemon.DialTimeout(daemon.RecommendedDialTimeout)
	if err != nil {
		return nil, errors.Wrap(err, "unable to connect to daemon (is it running?)")
	}
	return conn, nil
}

// callDaemon dials the daemon, performs a single JSON request/response
// round trip for method, and closes the connection.
func callDaemon(method string, params, result any) error {
	conn, err := createDaemonConnection()
	if err != nil {
		return err
	}
	defer conn.Close()
	return daemon.CallJSON(conn, method, params, result)
}
