package daemon

import (
	"fmt"
	"io"
	"os"
)

// OpenLog opens the daemon log file for writing, truncating any previous
// contents. The caller is responsible for closing it.
func OpenLog() (io.WriteCloser, error) {
	path, err := LogPath()
	if err != nil {
		return nil, fmt.Errorf("daemon: computing log path: %w", err)
	}
	return os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
}
