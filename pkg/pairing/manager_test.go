package pairing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/sd-io/sdcore/pkg/eventbus"
	"github.com/sd-io/sdcore/pkg/overlay"
)

func newTestIdentity(t *testing.T, deviceUUID, name string) Identity {
	t.Helper()

	staticKey, err := GenerateStaticKeypair()
	if err != nil {
		t.Fatalf("GenerateStaticKeypair: %v", err)
	}
	signingPriv, _, err := GenerateSigningKeypair()
	if err != nil {
		t.Fatalf("GenerateSigningKeypair: %v", err)
	}

	return Identity{
		DeviceUUID: deviceUUID,
		Name:       name,
		OS:         "linux",
		AppVersion: "0.1.0",
		Signing:    signingPriv,
		Static:     staticKey,
	}
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "pairing"), "test-passphrase")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store
}

// TestManagerInitiateAndJoinCompleteBothSides exercises spec.md §4.8's
// success scenario end to end: an Initiator advertises a code over a relay,
// a Joiner resolves and connects, both complete the Noise XX handshake and
// signed DeviceInfo exchange, and both persist a PairedDevice record for
// the other side.
func TestManagerInitiateAndJoinCompleteBothSides(t *testing.T) {
	relayEndpoint := overlay.NewEndpoint(generateLoopbackTLSConfig(t))
	relayEndpoint.RegisterHandler(NewRelayServerHandler())
	defer relayEndpoint.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go relayEndpoint.ListenAndServe(ctx, "127.0.0.1:0")

	var relayAddr string
	for i := 0; i < 50; i++ {
		if addr := relayEndpoint.ListenAddr(); addr != "" {
			relayAddr = addr
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if relayAddr == "" {
		t.Fatal("relay server never bound a listen address")
	}

	initiatorIdentity := newTestIdentity(t, "initiator-uuid", "Initiator's Mac")
	joinerIdentity := newTestIdentity(t, "joiner-uuid", "Joiner's Phone")

	initiatorEndpoint := overlay.NewEndpoint(generateLoopbackTLSConfig(t))
	defer initiatorEndpoint.Close()

	initiatorManager := NewManager(initiatorEndpoint, nil, newTestStore(t), initiatorIdentity, eventbus.NewBus())
	initiatorEndpoint.RegisterHandler(initiatorManager)

	go initiatorEndpoint.ListenAndServe(ctx, "127.0.0.1:0")
	var initiatorAddr string
	for i := 0; i < 50; i++ {
		if addr := initiatorEndpoint.ListenAddr(); addr != "" {
			initiatorAddr = addr
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if initiatorAddr == "" {
		t.Fatal("initiator endpoint never bound a listen address")
	}

	initiatorManager.chain = NewRelayOnlyChain(RelayDiscoverer{Client: &QUICRelayClient{
		Endpoint:      initiatorEndpoint,
		ServerNode:    "relay",
		ServerAddress: loopbackAddr(relayAddr),
		LocalAddress:  initiatorAddr,
	}})

	joinerEndpoint := overlay.NewEndpoint(generateLoopbackTLSConfig(t))
	defer joinerEndpoint.Close()
	joinerChain := NewRelayOnlyChain(RelayDiscoverer{Client: &QUICRelayClient{
		Endpoint:      joinerEndpoint,
		ServerNode:    "relay",
		ServerAddress: loopbackAddr(relayAddr),
	}})
	joinerManager := NewManager(joinerEndpoint, joinerChain, newTestStore(t), joinerIdentity, eventbus.NewBus())

	code, resultCh, err := initiatorManager.Initiate(ctx)
	if err != nil {
		t.Fatalf("Initiate: %v", err)
	}

	joinerSession, joinedDevice, joinErr := joinerManager.Join(ctx, code.Mnemonic)

	select {
	case initiatorResult := <-resultCh:
		if initiatorResult.Err != nil {
			t.Fatalf("initiator pairing failed: %v", initiatorResult.Err)
		}
		if initiatorResult.Session.State() != StateCompleted {
			t.Errorf("expected initiator session to complete, got %s", initiatorResult.Session.State())
		}
		if initiatorResult.Device.DeviceUUID != joinerIdentity.DeviceUUID {
			t.Errorf("initiator recorded wrong peer uuid: got %s", initiatorResult.Device.DeviceUUID)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for initiator pairing result")
	}

	if joinErr != nil {
		t.Fatalf("Join: %v", joinErr)
	}
	if joinerSession.State() != StateCompleted {
		t.Errorf("expected joiner session to complete, got %s", joinerSession.State())
	}
	if joinedDevice.DeviceUUID != initiatorIdentity.DeviceUUID {
		t.Errorf("joiner recorded wrong peer uuid: got %s", joinedDevice.DeviceUUID)
	}

	devices, err := initiatorManager.store.ListDevices()
	if err != nil {
		t.Fatalf("ListDevices: %v", err)
	}
	if len(devices) != 1 || devices[0].DeviceUUID != joinerIdentity.DeviceUUID {
		t.Errorf("expected initiator to persist the joiner's device, got %+v", devices)
	}
}
