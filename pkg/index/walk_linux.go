//go:build linux

package index

import (
	"os"
	"syscall"
)

// platformSysStat carries the platform-specific metadata fields the
// generic walker needs beyond what os.FileInfo exposes directly.
type platformSysStat struct {
	Inode      uint64
	ChangeTime int64
}

// platformStat extracts inode and change-time information from a FileInfo
// using the platform's underlying syscall.Stat_t, mirroring mutagen's use
// of platform-specific stat augmentation for fields Go's standard library
// doesn't surface portably.
func platformStat(info os.FileInfo) (platformSysStat, bool) {
	sys, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return platformSysStat{}, false
	}
	return platformSysStat{
		Inode:      sys.Ino,
		ChangeTime: sys.Ctim.Sec,
	}, true
}
