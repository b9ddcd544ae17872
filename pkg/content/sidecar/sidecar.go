// Package sidecar implements the on-disk layout and in-memory existence
// cache for derivative artifacts (thumbnails, previews, transcripts) that
// accompany an indexed file.
package sidecar

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/sd-io/sdcore/pkg/content/hash"
)

// Kind identifies a category of sidecar artifact. The on-disk directory
// name for a kind is its pluralized form, except "transcript" (whose
// directory is "transcripts" too - the one irregular case called out by
// the layout spec is written out explicitly below rather than derived).
type Kind string

const (
	KindThumbnail  Kind = "thumbnail"
	KindPreview    Kind = "preview"
	KindTranscript Kind = "transcript"
)

func (k Kind) directoryName() string {
	switch k {
	case KindTranscript:
		return "transcripts"
	default:
		return string(k) + "s"
	}
}

// ManagedPath returns the path of a managed sidecar (keyed by content ID)
// under libraryRoot: a sharded tree by the first four hex characters of
// the content ID, then "<variant>.<format>".
func ManagedPath(libraryRoot, contentID string, kind Kind, variant, format string) string {
	shard1, shard2, rest := hash.ShardOf(contentID)
	return filepath.Join(libraryRoot, "sidecars", shard1, shard2, rest, kind.directoryName(), variant+"."+format)
}

// EphemeralPath returns the path of an ephemeral sidecar (keyed by entry
// UUID) under a per-library temp directory.
func EphemeralPath(tempRoot, entryUUID string, kind Kind, variant, format string) string {
	return filepath.Join(tempRoot, entryUUID, kind.directoryName(), variant+"."+format)
}

// variantKey identifies one cached sidecar artifact.
type variantKey struct {
	uuid    string
	kind    Kind
	variant string
}

// Cache is the in-memory existence index described by the sidecar
// layout's caching requirement: entry_uuid -> kind -> set<variant>,
// flattened here into a single map keyed by the triple for simplicity.
// It is seeded at startup by walking the ephemeral temp directory and kept
// up to date as sidecars are generated.
type Cache struct {
	mu      sync.RWMutex
	present map[variantKey]struct{}
	// uuids tracks which UUIDs currently have at least one cached entry, to
	// make orphan cleanup (entries whose UUID left the ephemeral index) an
	// O(known UUIDs) scan rather than an O(cache size) one.
	uuids map[string]int
}

// NewCache constructs an empty Cache.
func NewCache() *Cache {
	return &Cache{
		present: make(map[variantKey]struct{}),
		uuids:   make(map[string]int),
	}
}

// Mark records that a sidecar exists.
func (c *Cache) Mark(uuid string, kind Kind, variant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := variantKey{uuid, kind, variant}
	if _, ok := c.present[key]; ok {
		return
	}
	c.present[key] = struct{}{}
	c.uuids[uuid]++
}

// Unmark removes a sidecar record, e.g. after its backing file is deleted.
func (c *Cache) Unmark(uuid string, kind Kind, variant string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := variantKey{uuid, kind, variant}
	if _, ok := c.present[key]; !ok {
		return
	}
	delete(c.present, key)
	c.uuids[uuid]--
	if c.uuids[uuid] <= 0 {
		delete(c.uuids, uuid)
	}
}

// Has reports whether a specific sidecar variant is cached as present.
func (c *Cache) Has(uuid string, kind Kind, variant string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.present[variantKey{uuid, kind, variant}]
	return ok
}

// KnownUUIDs returns every entry UUID the cache currently has at least one
// sidecar for.
func (c *Cache) KnownUUIDs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	uuids := make([]string, 0, len(c.uuids))
	for uuid := range c.uuids {
		uuids = append(uuids, uuid)
	}
	return uuids
}

// SeedFromEphemeralRoot walks tempRoot (laid out as
// "<uuid>/<kind-dir>/<variant>.<format>") and marks every artifact found,
// reconstructing the cache after a daemon restart.
func SeedFromEphemeralRoot(c *Cache, tempRoot string) error {
	entries, err := os.ReadDir(tempRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	kindByDir := map[string]Kind{
		"thumbnails":  KindThumbnail,
		"previews":    KindPreview,
		"transcripts": KindTranscript,
	}

	for _, uuidEntry := range entries {
		if !uuidEntry.IsDir() {
			continue
		}
		uuid := uuidEntry.Name()
		kindDirs, err := os.ReadDir(filepath.Join(tempRoot, uuid))
		if err != nil {
			continue
		}
		for _, kindDir := range kindDirs {
			kind, ok := kindByDir[kindDir.Name()]
			if !ok || !kindDir.IsDir() {
				continue
			}
			variantFiles, err := os.ReadDir(filepath.Join(tempRoot, uuid, kindDir.Name()))
			if err != nil {
				continue
			}
			for _, variantFile := range variantFiles {
				variant := variantFile.Name()
				if ext := filepath.Ext(variant); ext != "" {
					variant = variant[:len(variant)-len(ext)]
				}
				c.Mark(uuid, kind, variant)
			}
		}
	}
	return nil
}

// CleanOrphans removes every cached UUID's on-disk directory under
// tempRoot if isLive reports the UUID is no longer in the ephemeral index
// (e.g. the entry it belonged to was deleted), clearing the cache entries
// for anything removed.
func CleanOrphans(c *Cache, tempRoot string, isLive func(uuid string) bool) error {
	for _, uuid := range c.KnownUUIDs() {
		if isLive(uuid) {
			continue
		}
		if err := os.RemoveAll(filepath.Join(tempRoot, uuid)); err != nil && !os.IsNotExist(err) {
			return err
		}
		c.mu.Lock()
		for key := range c.present {
			if key.uuid == uuid {
				delete(c.present, key)
			}
		}
		delete(c.uuids, uuid)
		c.mu.Unlock()
	}
	return nil
}
