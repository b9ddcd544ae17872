package sdpath

import (
	"context"
	"errors"
	"fmt"
)

// Resolution errors, as enumerated by the addressing spec.
var (
	// ErrNoOnlineInstancesFound indicates that no device is known to hold the
	// content a content-addressed path names.
	ErrNoOnlineInstancesFound = errors.New("no online instances found for content")
	// ErrDeviceOffline indicates that a content-addressed path's content is
	// held only by remote devices, none of which is currently reachable.
	ErrDeviceOffline = errors.New("device is offline")
	// ErrNoActiveLibrary indicates that resolution was attempted without an
	// active library context.
	ErrNoActiveLibrary = errors.New("no active library")
	// ErrDatabaseError wraps an underlying persistence failure encountered
	// during resolution.
	ErrDatabaseError = errors.New("database error during path resolution")
)

// Resolver supplies the device and content location information needed to
// resolve an SdPath into a routable Physical path. Implementations are
// expected to be backed by the library database and the device registry.
type Resolver interface {
	// LocalDeviceID returns the UUID of the device running this process.
	LocalDeviceID() string
	// ActiveLibraryID returns the currently open library's identifier, or
	// false if no library is active.
	ActiveLibraryID() (string, bool)
	// InstancesForContent returns the device UUIDs holding an entry with the
	// given content identity, in the order they should be preferred: the
	// local device first (if present), then connected devices ordered by
	// most-recently-seen.
	InstancesForContent(ctx context.Context, contentID string) ([]string, error)
	// IsDeviceOnline reports whether the device with the given UUID currently
	// has a live overlay connection.
	IsDeviceOnline(deviceID string) bool
	// PathOnDevice returns the absolute path under which the given content
	// identity is indexed on the given device.
	PathOnDevice(ctx context.Context, deviceID, contentID string) (string, error)
}

// Resolve converts the SdPath into a Physical SdPath routable to a specific
// device. Physical inputs are returned unchanged. Content inputs are
// resolved by consulting resolver for known instances, preferring the local
// device, then connected devices in last-seen order.
func (p SdPath) Resolve(ctx context.Context, resolver Resolver) (SdPath, error) {
	if p.Kind == KindPhysical {
		return p, nil
	}

	if _, ok := resolver.ActiveLibraryID(); !ok {
		return SdPath{}, ErrNoActiveLibrary
	}

	instances, err := resolver.InstancesForContent(ctx, p.ContentID)
	if err != nil {
		return SdPath{}, errWrap(ErrDatabaseError, err)
	}
	if len(instances) == 0 {
		return SdPath{}, ErrNoOnlineInstancesFound
	}

	local := resolver.LocalDeviceID()
	ordered := make([]string, 0, len(instances))
	for _, deviceID := range instances {
		if deviceID == local {
			ordered = append([]string{deviceID}, ordered...)
		} else {
			ordered = append(ordered, deviceID)
		}
	}

	for _, deviceID := range ordered {
		if deviceID != local && !resolver.IsDeviceOnline(deviceID) {
			continue
		}
		absolutePath, err := resolver.PathOnDevice(ctx, deviceID, p.ContentID)
		if err != nil {
			return SdPath{}, errWrap(ErrDatabaseError, err)
		}
		return Physical(deviceID, absolutePath), nil
	}

	return SdPath{}, ErrDeviceOffline
}

// errWrap wraps inner beneath sentinel so that errors.Is(result, sentinel)
// still succeeds while preserving the underlying error text.
func errWrap(sentinel, inner error) error {
	return fmt.Errorf("%w: %v", sentinel, inner)
}
