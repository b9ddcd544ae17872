// Package drop implements spec.md §6's "drop send" feature (Spacedrop): a
// direct file transfer to an already-paired, currently-reachable device,
// layered on top of pkg/overlay's block-transfer primitives with a small
// JSON header carrying the file's name and size ahead of the block stream.
package drop

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/quic-go/quic-go"

	"github.com/sd-io/sdcore/pkg/overlay"
)

// header is the first frame exchanged on a drop stream, before the raw
// block-transfer protocol begins.
type header struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
}

// Send opens path, announces its name and size to stream, and transfers its
// contents in blocks, per overlay.SendFile.
func Send(ctx context.Context, stream io.ReadWriter, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("drop: opening %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("drop: stating %s: %w", path, err)
	}

	encoder := overlay.NewEncoder(stream)
	headerBytes, err := json.Marshal(header{Name: filepath.Base(path), Size: info.Size()})
	if err != nil {
		return fmt.Errorf("drop: marshaling header: %w", err)
	}
	if err := encoder.Encode(headerBytes); err != nil {
		return fmt.Errorf("drop: sending header: %w", err)
	}

	return overlay.SendFile(ctx, stream, file, info.Size(), 0)
}

// Handler is the overlay.ProtocolHandler receiving side of Spacedrop: it
// reads the header a Send call wrote, then receives the file's contents
// into DestinationDir, named after whatever the sender called it.
type Handler struct {
	// DestinationDir is the directory incoming drops are written into. It
	// must already exist.
	DestinationDir string
	// OnReceived, if non-nil, is called with the path of each file once a
	// transfer completes successfully, so a caller can emit an eventbus
	// notification or update a UI.
	OnReceived func(peer, path string)
}

// ALPN implements overlay.ProtocolHandler.
func (h *Handler) ALPN() string { return overlay.BlockALPN }

// HandleStream implements overlay.ProtocolHandler.
func (h *Handler) HandleStream(ctx context.Context, peer string, stream quic.Stream) error {
	decoder := overlay.NewDecoder(stream)
	frame, err := decoder.Decode()
	if err != nil {
		return fmt.Errorf("drop: reading header: %w", err)
	}
	var hdr header
	if err := json.Unmarshal(frame, &hdr); err != nil {
		return fmt.Errorf("drop: unmarshaling header: %w", err)
	}
	if hdr.Name == "" || filepath.Base(hdr.Name) != hdr.Name {
		return fmt.Errorf("drop: rejecting unsafe file name %q", hdr.Name)
	}

	destPath := filepath.Join(h.DestinationDir, hdr.Name)
	destFile, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("drop: creating %s: %w", destPath, err)
	}
	defer destFile.Close()

	var destination io.Writer = destFile
	if err := overlay.ReceiveFile(ctx, stream, destination, hdr.Size); err != nil {
		os.Remove(destPath)
		return fmt.Errorf("drop: receiving %s: %w", hdr.Name, err)
	}

	if h.OnReceived != nil {
		h.OnReceived(peer, destPath)
	}
	return nil
}
