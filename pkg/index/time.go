package index

import "time"

// unixToTime converts a Unix timestamp in seconds to a time.Time. A zero
// input yields the zero time.Time, rather than the Unix epoch, since a zero
// ChangeTime on platforms without ctime support should read as "unknown"
// rather than 1970.
func unixToTime(seconds int64) time.Time {
	if seconds == 0 {
		return time.Time{}
	}
	return time.Unix(seconds, 0).UTC()
}
