//go:build !linux && !darwin

package index

import "os"

// platformSysStat carries the platform-specific metadata fields the
// generic walker needs beyond what os.FileInfo exposes directly. On
// platforms without a syscall.Stat_t-style inode/ctime, these fields are
// simply unavailable.
type platformSysStat struct {
	Inode      uint64
	ChangeTime int64
}

// platformStat is a no-op on platforms without inode/ctime support.
func platformStat(info os.FileInfo) (platformSysStat, bool) {
	return platformSysStat{}, false
}
