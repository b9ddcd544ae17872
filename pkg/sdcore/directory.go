package sdcore

import (
	"fmt"
	"os"
	"path/filepath"
)

// DirectoryName is the name of sdcore's root configuration and state
// directory, rooted under the current user's home directory.
const DirectoryName = ".sdcore"

// userHomeDirectory is the cached home directory path, computed once since
// the lookup is comparatively expensive and the result never changes for
// the lifetime of the process.
var userHomeDirectory string

func init() {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		panic(fmt.Sprintf("sdcore: unable to determine home directory: %v", err))
	}
	userHomeDirectory = home
}

// TestSetUserHomeDirectory overrides the cached home directory used by
// BaseDirectory and returns the previous value, so that other packages'
// tests can exercise code built on BaseDirectory (such as pkg/daemon's
// lock and IPC paths) against a scratch directory instead of the real
// user home. It is exported, rather than test-only, since it is called
// from other packages' test files.
func TestSetUserHomeDirectory(home string) string {
	previous := userHomeDirectory
	userHomeDirectory = home
	return previous
}

// BaseDirectory returns the path to a subdirectory of sdcore's root
// directory (~/.sdcore), creating it (and the root) if necessary.
func BaseDirectory(subpath ...string) (string, error) {
	components := make([]string, 0, 2+len(subpath))
	components = append(components, userHomeDirectory, DirectoryName)
	components = append(components, subpath...)
	result := filepath.Join(components...)

	if err := os.MkdirAll(result, 0700); err != nil {
		return "", fmt.Errorf("sdcore: unable to create subpath: %w", err)
	}

	return result, nil
}
