// Package daemon implements the sdcore background daemon's lifecycle:
// a single-instance file lock, a local IPC endpoint the CLI dials to reach
// it, and the small request/response protocol carried over that endpoint.
// It is a direct generalization of mutagen's pkg/daemon, with one
// deliberate substitution: where mutagen's daemon speaks gRPC (for the
// synchronization session API) or, in its newer generations, an HTTP API
// via httprouter, sdcore's daemon speaks the same length-prefixed framing
// pkg/overlay already uses for the peer protocol, since that is the
// framing this module's dependency set actually provides - there is no
// grpc or HTTP router dependency in this module's stack to reach for.
package daemon

import (
	"fmt"
	"path/filepath"

	"github.com/sd-io/sdcore/pkg/sdcore"
)

const (
	// lockName is the name of the daemon lock file.
	lockName = "daemon.lock"
	// socketName is the name of the daemon's IPC Unix domain socket.
	socketName = "daemon.sock"
	// logName is the name of the daemon's log file.
	logName = "daemon.log"
)

// subpath computes a path within the daemon subdirectory of sdcore's root
// directory, creating that subdirectory if necessary.
func subpath(name string) (string, error) {
	daemonRoot, err := sdcore.BaseDirectory("daemon")
	if err != nil {
		return "", fmt.Errorf("daemon: computing daemon directory: %w", err)
	}
	return filepath.Join(daemonRoot, name), nil
}

// lockPath computes the path to the daemon lock file.
func lockPath() (string, error) {
	return subpath(lockName)
}

// EndpointPath computes the path to the daemon IPC endpoint.
func EndpointPath() (string, error) {
	return subpath(socketName)
}

// LogPath computes the path to the daemon log file.
func LogPath() (string, error) {
	return subpath(logName)
}
