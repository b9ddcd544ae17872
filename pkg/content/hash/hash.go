// Package hash implements the content-addressing primitive: streaming a
// file through a BLAKE3 hasher in fixed-size chunks and reducing the
// digest to a canonical content ID string.
package hash

import (
	"encoding/hex"
	"io"

	"lukechampine.com/blake3"
)

// ChunkSize is the read buffer size used while streaming a file through the
// hasher. 1 MiB balances syscall overhead against peak memory for the
// worker pool hashing several files concurrently.
const ChunkSize = 1 << 20

// DigestSize is the number of bytes of BLAKE3 output kept as the canonical
// content ID, chosen to keep IDs short while remaining collision-resistant
// at library scale (32 bytes of BLAKE3 output, i.e. the full default
// output size, rather than a truncated variant).
const DigestSize = 32

// Algorithm names the hashing algorithm recorded against every content
// identity row, so a future migration to a different algorithm can tell
// old rows apart from new ones.
const Algorithm = "blake3"

// Hash streams r through BLAKE3 in ChunkSize reads and returns the
// lowercase-hex canonical content ID. An empty reader hashes to the
// well-defined BLAKE3 digest of the empty string, giving every zero-byte
// file the same content ID.
func Hash(r io.Reader) (string, error) {
	hasher := blake3.New(DigestSize, nil)
	buf := make([]byte, ChunkSize)
	if _, err := io.CopyBuffer(hasher, r, buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// ShardOf splits a content ID into a shard prefix and the remaining suffix,
// for use as the first two path components of the sidecar sharded tree
// (e.g. "ab/cd/abcdef0123...").
func ShardOf(contentID string) (shard1, shard2, rest string) {
	if len(contentID) < 4 {
		return contentID, "", ""
	}
	return contentID[0:2], contentID[2:4], contentID[4:]
}
