// Package backup implements creation and restoration of sdcore library
// backup archives, per spec.md §4.10: a small self-describing binary header
// followed by a tar.gz payload containing the library's config and
// database files.
package backup

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/google/uuid"
)

// magic is the format identifier written at the start of every backup
// archive. The trailing digit is a format version; a future incompatible
// revision bumps it and ReadHeader rejects mismatches.
const magic = "sdbkp1"

// Header is the self-describing prefix of a backup archive: enough
// information to identify and validate the archive without unpacking its
// tar.gz payload.
type Header struct {
	BackupID    uuid.UUID
	TimestampMS uint64
	LibraryID   uuid.UUID
	LibraryName string
}

// toBytesLE converts a UUID's standard (RFC 4122, big-endian) byte layout
// into the mixed-endian "bytes_le" layout used by this format: the first
// three fields (time_low, time_mid, time_hi_and_version) are
// byte-reversed, and the remaining eight bytes (clock_seq and node) are
// left as-is. This matches the convention used elsewhere in the original
// implementation's backup encoding.
func toBytesLE(id uuid.UUID) [16]byte {
	var out [16]byte
	out[0], out[1], out[2], out[3] = id[3], id[2], id[1], id[0]
	out[4], out[5] = id[5], id[4]
	out[6], out[7] = id[7], id[6]
	copy(out[8:], id[8:])
	return out
}

// fromBytesLE is the inverse of toBytesLE.
func fromBytesLE(b [16]byte) uuid.UUID {
	var id uuid.UUID
	id[0], id[1], id[2], id[3] = b[3], b[2], b[1], b[0]
	id[4], id[5] = b[5], b[4]
	id[6], id[7] = b[7], b[6]
	copy(id[8:], b[8:])
	return id
}

// Write serializes the header to w in the exact layout specified by
// spec.md §4.10: 6-byte magic, 16-byte LE backup id, 16-byte (u128) LE
// timestamp in milliseconds, 16-byte LE library id, then a u32 LE length
// followed by the library name bytes.
func (h Header) Write(w io.Writer) error {
	if _, err := w.Write([]byte(magic)); err != nil {
		return fmt.Errorf("backup: writing magic: %w", err)
	}

	backupIDBytes := toBytesLE(h.BackupID)
	if _, err := w.Write(backupIDBytes[:]); err != nil {
		return fmt.Errorf("backup: writing backup id: %w", err)
	}

	// The format specifies a u128 LE timestamp; milliseconds-since-epoch
	// fits comfortably in 64 bits, so the upper 8 bytes are always zero.
	timestamp := make([]byte, 16)
	binary.LittleEndian.PutUint64(timestamp[:8], h.TimestampMS)
	if _, err := w.Write(timestamp); err != nil {
		return fmt.Errorf("backup: writing timestamp: %w", err)
	}

	libraryIDBytes := toBytesLE(h.LibraryID)
	if _, err := w.Write(libraryIDBytes[:]); err != nil {
		return fmt.Errorf("backup: writing library id: %w", err)
	}

	nameBytes := []byte(h.LibraryName)
	length := make([]byte, 4)
	binary.LittleEndian.PutUint32(length, uint32(len(nameBytes)))
	if _, err := w.Write(length); err != nil {
		return fmt.Errorf("backup: writing library name length: %w", err)
	}
	if _, err := w.Write(nameBytes); err != nil {
		return fmt.Errorf("backup: writing library name: %w", err)
	}

	return nil
}

// ReadHeader parses a Header from the front of r, per the layout written by
// Header.Write. After it returns successfully, r is positioned at the
// start of the tar.gz payload.
func ReadHeader(r io.Reader) (Header, error) {
	var header Header

	magicBuf := make([]byte, len(magic))
	if _, err := io.ReadFull(r, magicBuf); err != nil {
		return header, fmt.Errorf("backup: reading magic: %w", err)
	}
	if string(magicBuf) != magic {
		return header, fmt.Errorf("backup: unrecognized magic %q (expected %q)", magicBuf, magic)
	}

	var backupIDBytes [16]byte
	if _, err := io.ReadFull(r, backupIDBytes[:]); err != nil {
		return header, fmt.Errorf("backup: reading backup id: %w", err)
	}
	header.BackupID = fromBytesLE(backupIDBytes)

	timestampBuf := make([]byte, 16)
	if _, err := io.ReadFull(r, timestampBuf); err != nil {
		return header, fmt.Errorf("backup: reading timestamp: %w", err)
	}
	header.TimestampMS = binary.LittleEndian.Uint64(timestampBuf[:8])

	var libraryIDBytes [16]byte
	if _, err := io.ReadFull(r, libraryIDBytes[:]); err != nil {
		return header, fmt.Errorf("backup: reading library id: %w", err)
	}
	header.LibraryID = fromBytesLE(libraryIDBytes)

	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(r, lengthBuf); err != nil {
		return header, fmt.Errorf("backup: reading library name length: %w", err)
	}
	length := binary.LittleEndian.Uint32(lengthBuf)

	nameBuf := make([]byte, length)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return header, fmt.Errorf("backup: reading library name: %w", err)
	}
	header.LibraryName = string(nameBuf)

	return header, nil
}
