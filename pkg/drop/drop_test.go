package drop

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sd-io/sdcore/pkg/overlay"
)

func generateLoopbackTLSConfig(t *testing.T) *tls.Config {
	t.Helper()

	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	template := x509.Certificate{SerialNumber: big.NewInt(1)}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("creating certificate: %v", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyBytes, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		t.Fatalf("marshaling key: %v", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyBytes})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		t.Fatalf("building key pair: %v", err)
	}

	return &tls.Config{Certificates: []tls.Certificate{cert}, InsecureSkipVerify: true}
}

type addr string

func (a addr) String() string { return string(a) }

func TestSendReceiveOverHandlerRoundTrips(t *testing.T) {
	destDir := t.TempDir()
	received := make(chan string, 1)

	serverEndpoint := overlay.NewEndpoint(generateLoopbackTLSConfig(t))
	serverEndpoint.RegisterHandler(&Handler{
		DestinationDir: destDir,
		OnReceived:     func(peer, path string) { received <- path },
	})
	defer serverEndpoint.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go serverEndpoint.ListenAndServe(ctx, "127.0.0.1:0")

	var serverAddr string
	for i := 0; i < 50; i++ {
		if a := serverEndpoint.ListenAddr(); a != "" {
			serverAddr = a
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if serverAddr == "" {
		t.Fatal("server endpoint never bound a listen address")
	}

	sourceDir := t.TempDir()
	sourcePath := filepath.Join(sourceDir, "photo.jpg")
	payload := make([]byte, 100*1024)
	for i := range payload {
		payload[i] = byte(i % 253)
	}
	if err := os.WriteFile(sourcePath, payload, 0600); err != nil {
		t.Fatalf("writing source file: %v", err)
	}

	clientEndpoint := overlay.NewEndpoint(generateLoopbackTLSConfig(t))
	defer clientEndpoint.Close()

	stream, err := clientEndpoint.OpenStream(ctx, "server", addr(serverAddr), overlay.BlockALPN)
	if err != nil {
		t.Fatalf("OpenStream: %v", err)
	}
	defer stream.Close()

	if err := Send(ctx, stream, sourcePath); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case path := <-received:
		got, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("reading received file: %v", err)
		}
		if string(got) != string(payload) {
			t.Errorf("received content did not match sent content")
		}
		if filepath.Base(path) != "photo.jpg" {
			t.Errorf("expected received file named photo.jpg, got %s", filepath.Base(path))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for file to be received")
	}
}
