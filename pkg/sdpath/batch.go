package sdpath

// contentBucketKey is the ByDevice bucket under which unresolved
// content-addressed paths are grouped, since they have no fixed device.
const contentBucketKey = ""

// Batch groups a set of SdPaths for bulk operations such as copy and dedup,
// which need to segregate local work from remote work before dispatching
// jobs.
type Batch struct {
	paths []SdPath
}

// NewBatch constructs a Batch from a slice of paths.
func NewBatch(paths ...SdPath) *Batch {
	return &Batch{paths: append([]SdPath(nil), paths...)}
}

// Add appends a path to the batch.
func (b *Batch) Add(p SdPath) {
	b.paths = append(b.paths, p)
}

// Paths returns the batch's paths in insertion order.
func (b *Batch) Paths() []SdPath {
	return append([]SdPath(nil), b.paths...)
}

// Len returns the number of paths in the batch.
func (b *Batch) Len() int {
	return len(b.paths)
}

// ByDevice buckets the batch's paths by owning device, so that a consumer
// such as the copy or dedup action can segregate paths local to the current
// device from paths that must be routed to a remote device. Unresolved
// content-addressed paths are bucketed together under the empty string key.
func (b *Batch) ByDevice() map[string][]SdPath {
	buckets := make(map[string][]SdPath)
	for _, p := range b.paths {
		key := contentBucketKey
		if p.Kind == KindPhysical {
			key = p.DeviceID
		}
		buckets[key] = append(buckets[key], p)
	}
	return buckets
}

// Local returns the subset of paths that are Physical and rooted at
// currentDeviceID.
func (b *Batch) Local(currentDeviceID string) []SdPath {
	var local []SdPath
	for _, p := range b.paths {
		if p.Kind == KindPhysical && p.DeviceID == currentDeviceID {
			local = append(local, p)
		}
	}
	return local
}

// Remote returns the subset of paths that are Physical but not rooted at
// currentDeviceID, plus any unresolved Content paths (which may turn out to
// be remote once resolved).
func (b *Batch) Remote(currentDeviceID string) []SdPath {
	var remote []SdPath
	for _, p := range b.paths {
		if p.Kind == KindContent || (p.Kind == KindPhysical && p.DeviceID != currentDeviceID) {
			remote = append(remote, p)
		}
	}
	return remote
}
