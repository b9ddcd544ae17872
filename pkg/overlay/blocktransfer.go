package overlay

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"github.com/tinylib/msgp/msgp"
)

// BlockALPN is the ALPN value the block-transfer/Spacedrop side protocol
// negotiates, per spec.md §4.7.
const BlockALPN = "sdcore/block/1"

// defaultBlockSize is used when SendFile isn't given an explicit size; it's
// small enough to keep per-block latency low over a relayed connection but
// large enough to amortize the framing and ack round trip.
const defaultBlockSize = 256 * 1024

// ackKind is the receiver's per-block reply, hand-coded against msgp's
// low-level helpers rather than generated, the same approach
// pkg/syncengine's LastSeenKeeper uses for its MessagePack persistence.
type ackKind uint8

const (
	ackContinue ackKind = iota
	ackCancel
	ackDone
)

// block is one (offset, size, data) unit of a file transfer.
type block struct {
	Offset int64
	Size   uint32
	Data   []byte
}

func (b block) MarshalMsg(o []byte) ([]byte, error) {
	o = msgp.AppendMapHeader(o, 3)
	o = msgp.AppendString(o, "offset")
	o = msgp.AppendInt64(o, b.Offset)
	o = msgp.AppendString(o, "size")
	o = msgp.AppendUint32(o, b.Size)
	o = msgp.AppendString(o, "data")
	o = msgp.AppendBytes(o, b.Data)
	return o, nil
}

func (b *block) UnmarshalMsg(bts []byte) ([]byte, error) {
	count, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, errors.Wrap(err, "overlay: reading block map header")
	}
	for i := uint32(0); i < count; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, errors.Wrap(err, "overlay: reading block field name")
		}
		switch field {
		case "offset":
			b.Offset, bts, err = msgp.ReadInt64Bytes(bts)
		case "size":
			b.Size, bts, err = msgp.ReadUint32Bytes(bts)
		case "data":
			b.Data, bts, err = msgp.ReadBytesBytes(bts, nil)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, errors.Wrapf(err, "overlay: reading block field %q", field)
		}
	}
	return bts, nil
}

type ack struct {
	Kind ackKind
}

func (a ack) MarshalMsg(o []byte) ([]byte, error) {
	o = msgp.AppendMapHeader(o, 1)
	o = msgp.AppendString(o, "kind")
	o = msgp.AppendUint8(o, uint8(a.Kind))
	return o, nil
}

func (a *ack) UnmarshalMsg(bts []byte) ([]byte, error) {
	count, bts, err := msgp.ReadMapHeaderBytes(bts)
	if err != nil {
		return bts, errors.Wrap(err, "overlay: reading ack map header")
	}
	for i := uint32(0); i < count; i++ {
		var field string
		field, bts, err = msgp.ReadStringBytes(bts)
		if err != nil {
			return bts, errors.Wrap(err, "overlay: reading ack field name")
		}
		switch field {
		case "kind":
			var kind uint8
			kind, bts, err = msgp.ReadUint8Bytes(bts)
			a.Kind = ackKind(kind)
		default:
			bts, err = msgp.Skip(bts)
		}
		if err != nil {
			return bts, errors.Wrapf(err, "overlay: reading ack field %q", field)
		}
	}
	return bts, nil
}

// SendFile sends the contents of source (exactly size bytes) over stream in
// blockSize chunks, per spec.md §4.7's block-transfer protocol: after every
// block the receiver replies continue, cancel, or done; a cancel from
// either side aborts the transfer, and completion is declared once size
// bytes have been delivered and a final done is received.
func SendFile(ctx context.Context, stream io.ReadWriter, source io.Reader, size int64, blockSize int) error {
	if blockSize <= 0 {
		blockSize = defaultBlockSize
	}
	encoder := NewEncoder(stream)
	decoder := NewDecoder(stream)

	buf := make([]byte, blockSize)
	var sent int64
	for sent < size {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := io.ReadFull(source, buf)
		if err == io.ErrUnexpectedEOF {
			// Last, short block.
		} else if err != nil && err != io.EOF {
			return errors.Wrap(err, "overlay: reading source data")
		}
		if n == 0 {
			break
		}

		b := block{Offset: sent, Size: uint32(n), Data: buf[:n]}
		payload, err := b.MarshalMsg(nil)
		if err != nil {
			return errors.Wrap(err, "overlay: marshaling block")
		}
		if err := encoder.Encode(payload); err != nil {
			return err
		}
		sent += int64(n)

		replyBytes, err := decoder.Decode()
		if err != nil {
			return errors.Wrap(err, "overlay: reading block ack")
		}
		var reply ack
		if _, err := reply.UnmarshalMsg(replyBytes); err != nil {
			return errors.Wrap(err, "overlay: unmarshaling block ack")
		}
		switch reply.Kind {
		case ackCancel:
			return errors.New("overlay: transfer canceled by receiver")
		case ackDone:
			return nil
		}
	}
	return nil
}

// ReceiveFile reads blocks from stream into destination until size bytes
// have been written, acking each block as continue and the final block as
// done. It returns an error, without sending a cancel ack itself, if the
// caller's ctx is canceled or a write to destination fails; callers that
// want to actively cancel an in-progress transfer should send a cancel ack
// via SendCancel before returning.
func ReceiveFile(ctx context.Context, stream io.ReadWriter, destination io.Writer, size int64) error {
	encoder := NewEncoder(stream)
	decoder := NewDecoder(stream)

	var received int64
	for received < size {
		if err := ctx.Err(); err != nil {
			return err
		}

		payload, err := decoder.Decode()
		if err != nil {
			return errors.Wrap(err, "overlay: reading block")
		}
		var b block
		if _, err := b.UnmarshalMsg(payload); err != nil {
			return errors.Wrap(err, "overlay: unmarshaling block")
		}

		if _, err := destination.Write(b.Data); err != nil {
			return errors.Wrap(err, "overlay: writing block to destination")
		}
		received += int64(b.Size)

		kind := ackContinue
		if received >= size {
			kind = ackDone
		}
		replyPayload, err := ack{Kind: kind}.MarshalMsg(nil)
		if err != nil {
			return errors.Wrap(err, "overlay: marshaling ack")
		}
		if err := encoder.Encode(replyPayload); err != nil {
			return err
		}
	}
	return nil
}

// SendCancel sends a cancel ack on stream, for a receiver that wants to
// abort an in-progress transfer before size bytes have arrived.
func SendCancel(stream io.Writer) error {
	encoder := NewEncoder(stream)
	payload, err := ack{Kind: ackCancel}.MarshalMsg(nil)
	if err != nil {
		return errors.Wrap(err, "overlay: marshaling cancel ack")
	}
	return encoder.Encode(payload)
}
