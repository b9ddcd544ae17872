// Package overlay implements the peer-to-peer networking layer described by
// spec.md §4.7: a single quic-go endpoint per process, ALPN-based protocol
// dispatch, a connection cache keyed by (node id, protocol), length-prefixed
// message framing, and the block-transfer side protocol used for direct
// content transfer between devices.
package overlay

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
)

const (
	// maximumMessageSize bounds how large a single framed message may be, the
	// same defensive role mutagen's framing.maximumMessageSize plays.
	maximumMessageSize = 64 * 1024 * 1024
	// headerSize is the width of the length prefix: spec.md §4.7 calls for
	// "4-byte big-endian length-prefixed framing", unlike mutagen's framing
	// package (which uses a variable-width uvarint header since it only ever
	// carries protobuf messages off a single stream type).
	headerSize = 4
	// reusableBufferSize mirrors mutagen's framing.reusableBufferSize: large
	// enough to avoid allocating for most messages, small enough not to cost
	// much per open Encoder/Decoder pair.
	reusableBufferSize = 64 * 1024
)

// Encoder writes 4-byte big-endian length-prefixed frames to an underlying
// stream. The payload encoding (JSON or MessagePack) is the caller's
// concern; Encoder only owns the framing.
type Encoder struct {
	writer io.Writer
	header [headerSize]byte
}

// NewEncoder creates a framing encoder writing to writer.
func NewEncoder(writer io.Writer) *Encoder {
	return &Encoder{writer: writer}
}

// Encode writes one frame containing payload.
func (e *Encoder) Encode(payload []byte) error {
	if len(payload) > maximumMessageSize {
		return errors.New("overlay: encoded message too large to frame")
	}
	binary.BigEndian.PutUint32(e.header[:], uint32(len(payload)))
	if _, err := e.writer.Write(e.header[:]); err != nil {
		return errors.Wrap(err, "overlay: unable to write frame header")
	}
	if _, err := e.writer.Write(payload); err != nil {
		return errors.Wrap(err, "overlay: unable to write frame body")
	}
	return nil
}

// Decoder reads 4-byte big-endian length-prefixed frames from an underlying
// stream, reusing an internal buffer the way mutagen's framing.Decoder
// does.
type Decoder struct {
	reader *bufio.Reader
	buffer []byte
}

// NewDecoder creates a framing decoder reading from reader.
func NewDecoder(reader io.Reader) *Decoder {
	return &Decoder{
		reader: bufio.NewReader(reader),
		buffer: make([]byte, reusableBufferSize),
	}
}

// Decode reads and returns the next frame's payload. The returned slice is
// only valid until the next call to Decode if it was served from the
// decoder's internal buffer; callers that need to retain it should copy.
func (d *Decoder) Decode() ([]byte, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(d.reader, header[:]); err != nil {
		return nil, errors.Wrap(err, "overlay: unable to read frame header")
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > maximumMessageSize {
		return nil, errors.New("overlay: frame too large to receive")
	}

	buffer := d.buffer
	if int(size) > len(buffer) {
		buffer = make([]byte, size)
	}
	if _, err := io.ReadFull(d.reader, buffer[:size]); err != nil {
		return nil, errors.Wrap(err, "overlay: unable to read frame body")
	}
	return buffer[:size], nil
}
