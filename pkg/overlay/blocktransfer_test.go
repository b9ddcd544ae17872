package overlay

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

func TestSendReceiveFileRoundTripsAcrossBlocks(t *testing.T) {
	senderConn, receiverConn := net.Pipe()
	defer senderConn.Close()
	defer receiverConn.Close()

	payload := make([]byte, 10*1024)
	for i := range payload {
		payload[i] = byte(i % 251)
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- SendFile(context.Background(), senderConn, bytes.NewReader(payload), int64(len(payload)), 4096)
	}()

	var received bytes.Buffer
	go func() {
		errCh <- ReceiveFile(context.Background(), receiverConn, &received, int64(len(payload)))
	}()

	for i := 0; i < 2; i++ {
		select {
		case err := <-errCh:
			if err != nil {
				t.Fatalf("transfer error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("timed out waiting for transfer to complete")
		}
	}

	if !bytes.Equal(received.Bytes(), payload) {
		t.Errorf("received payload did not match, got %d bytes, want %d", received.Len(), len(payload))
	}
}

func TestSendFileStopsOnReceiverCancel(t *testing.T) {
	senderConn, receiverConn := net.Pipe()
	defer senderConn.Close()
	defer receiverConn.Close()

	payload := make([]byte, 20*1024)

	errCh := make(chan error, 1)
	go func() {
		errCh <- SendFile(context.Background(), senderConn, bytes.NewReader(payload), int64(len(payload)), 4096)
	}()

	decoder := NewDecoder(receiverConn)
	if _, err := decoder.Decode(); err != nil {
		t.Fatalf("decode first block: %v", err)
	}
	if err := SendCancel(receiverConn); err != nil {
		t.Fatalf("SendCancel: %v", err)
	}

	select {
	case err := <-errCh:
		if err == nil {
			t.Fatal("expected SendFile to report the cancellation")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for SendFile to observe the cancel")
	}
}
