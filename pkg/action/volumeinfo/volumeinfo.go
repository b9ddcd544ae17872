// Package volumeinfo provides the filesystem capability checks the action
// layer needs to choose between a same-volume rename and a stream copy:
// querying the device (volume) a path resides on, the way mutagen's
// pkg/filesystem queries st_dev to detect cross-filesystem synchronization
// boundaries.
package volumeinfo

import (
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// DeviceID returns the identifier of the filesystem volume on which path
// resides. On POSIX systems this is the st_dev field of the path's stat
// structure; two paths with equal DeviceID values are known to reside on
// the same volume and can be linked or renamed directly rather than copied
// byte-for-byte.
func DeviceID(path string) (uint64, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return 0, errors.Wrap(err, "unable to query filesystem information")
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, errors.New("unable to extract raw filesystem information")
	}
	return uint64(stat.Dev), nil
}

// SameVolume reports whether source and destination reside on the same
// filesystem volume, and are therefore eligible for a same-volume rename (or
// hardlink, for dedup) instead of a stream copy. Any error probing either
// path is treated as "not the same volume" so callers fall back to the
// always-correct stream-copy strategy.
func SameVolume(source, destination string) bool {
	sourceDevice, err := DeviceID(source)
	if err != nil {
		return false
	}
	destinationDevice, err := DeviceID(destination)
	if err != nil {
		return false
	}
	return sourceDevice == destinationDevice
}
