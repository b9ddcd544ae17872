package main

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/sd-io/sdcore/cmd"
	"github.com/sd-io/sdcore/pkg/daemon"
	"github.com/sd-io/sdcore/pkg/drop"
	"github.com/sd-io/sdcore/pkg/eventbus"
	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/library"
	"github.com/sd-io/sdcore/pkg/logging"
	"github.com/sd-io/sdcore/pkg/overlay"
	"github.com/sd-io/sdcore/pkg/pairing"
	"github.com/sd-io/sdcore/pkg/sdcore"
)

// pendingPairing tracks the single most recent Initiate call this daemon
// process has driven, so pair.status has something to report. Only one
// pairing attempt is meaningful at a time: a fresh "pair init" supersedes
// whatever came before it, per spec.md §4.8's code lifetime model.
type pendingPairing struct {
	mu     sync.Mutex
	active bool
	status pairStatusResult
}

func (p *pendingPairing) start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = true
	p.status = pairStatusResult{Active: true, State: "waiting_for_connection"}
}

func (p *pendingPairing) finish(device pairing.PairedDevice, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = false
	if err != nil {
		p.status = pairStatusResult{Active: false, State: "failed", Error: err.Error()}
		return
	}
	p.status = pairStatusResult{
		Active:     false,
		State:      "completed",
		DeviceUUID: device.DeviceUUID,
		Name:       device.Name,
	}
}

func (p *pendingPairing) snapshot() pairStatusResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

// derivePairingPassphrase derives the at-rest encryption passphrase for
// pkg/pairing's Store from this device's own signing key: both live under
// the same 0700 home-directory tree as node_state.sdconfig, so this adds no
// new trust boundary, only protects the peer store's bytes the same way
// the node state file's permissions already do.
func derivePairingPassphrase(node *library.NodeState) string {
	signingPrivate, _ := node.SigningKeypair()
	return hex.EncodeToString(signingPrivate)
}

func toJobSummary(r *job.Report) jobSummary {
	return jobSummary{
		ID:                r.ID,
		Type:              r.Type,
		Status:            r.Status.String(),
		Completed:         r.Progress.CompletedTaskCount,
		Total:             r.Progress.TaskCount,
		Message:           r.Progress.Message,
		NonCriticalErrors: r.NonCriticalErrors,
		Error:             r.Error,
		CreatedAt:         r.CreatedAt,
		UpdatedAt:         r.UpdatedAt,
	}
}

func daemonRunMain(command *cobra.Command, arguments []string) error {
	if len(arguments) != 0 {
		return errors.New("unexpected arguments provided")
	}

	lock, err := daemon.AcquireLock()
	if err != nil {
		return errors.Wrap(err, "unable to acquire daemon lock")
	}
	defer lock.Release()

	logger := logging.RootLogger.Sublogger("daemon")
	if !daemonRunConfiguration.foreground {
		logFile, err := daemon.OpenLog()
		if err != nil {
			return errors.Wrap(err, "unable to open daemon log")
		}
		defer logFile.Close()
		log.SetOutput(logFile)
	}

	root, err := sdcore.BaseDirectory()
	if err != nil {
		return errors.Wrap(err, "unable to compute sdcore root directory")
	}

	instanceName := daemonRunConfiguration.instance
	if instanceName == "" {
		if hostname, err := os.Hostname(); err == nil {
			instanceName = hostname
		} else {
			instanceName = "sdcore"
		}
	}

	bus := eventbus.NewBus()

	libManager, err := library.NewManager(root, instanceName, bus, runtime.NumCPU(), logger.Sublogger("library"))
	if err != nil {
		return errors.Wrap(err, "unable to construct library manager")
	}
	defer libManager.Close()

	// The CLI surface never exposes library management directly: job, pair,
	// and device commands all anchor against one implicit default library,
	// created on first run.
	libraryIDs, err := libManager.List()
	if err != nil {
		return errors.Wrap(err, "unable to list libraries")
	}
	var lib *library.Library
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if len(libraryIDs) == 0 {
		lib, err = libManager.Create(ctx, "default")
		if err != nil {
			return errors.Wrap(err, "unable to create default library")
		}
	} else {
		lib, err = libManager.Open(ctx, libraryIDs[0])
		if err != nil {
			return errors.Wrap(err, "unable to open default library")
		}
	}

	service := daemon.NewService()
	registerJobHandlers(service, lib)

	var endpoint *overlay.Endpoint
	var pairingManager *pairing.Manager
	pending := &pendingPairing{}

	if daemonRunConfiguration.enableNetworking {
		endpoint, pairingManager, err = startNetworking(ctx, libManager, bus, logger)
		if err != nil {
			return errors.Wrap(err, "unable to start networking overlay")
		}
		defer endpoint.Close()
	}
	registerPairHandlers(service, pairingManager, pending)
	registerDeviceHandlers(service, pairingManager)
	registerDropHandlers(service, pairingManager)

	listener, err := daemon.NewListener()
	if err != nil {
		return errors.Wrap(err, "unable to create daemon IPC listener")
	}
	defer listener.Close()

	go daemon.Serve(listener, service, logger)

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	select {
	case <-service.Done():
	case <-signals:
	}

	return nil
}

// startNetworking wires the overlay Endpoint and pairing Manager used by
// pair.*/device.*/drop.* handlers, per SPEC_FULL.md's Networking Overlay
// and Pairing sections. A relay address is required for discovery to
// succeed, since this build's mDNS/DHT strategies are unimplemented stubs
// (spec.md's non-goal on NAT-piercing beyond a relay-assisted overlay).
func startNetworking(ctx context.Context, libManager *library.Manager, bus *eventbus.Bus, logger *logging.Logger) (*overlay.Endpoint, *pairing.Manager, error) {
	tlsConfig, err := overlay.GenerateSelfSignedTLSConfig()
	if err != nil {
		return nil, nil, err
	}
	endpoint := overlay.NewEndpoint(tlsConfig)

	node := libManager.NodeState()
	signingPrivate, _ := node.SigningKeypair()
	identity := pairing.Identity{
		DeviceUUID: node.DeviceUUID.String(),
		Name:       node.Name,
		OS:         runtime.GOOS,
		AppVersion: sdcore.VersionCurrent.String(),
		Signing:    signingPrivate,
		Static:     node.StaticKeypair(),
	}

	networkingRoot, err := sdcore.BaseDirectory("networking")
	if err != nil {
		return nil, nil, err
	}
	store, err := pairing.NewStore(networkingRoot, derivePairingPassphrase(node))
	if err != nil {
		return nil, nil, err
	}

	var relay pairing.Discoverer = pairing.DHTDiscoverer{}
	if daemonRunConfiguration.relayAddress != "" {
		relay = pairing.RelayDiscoverer{Client: &pairing.QUICRelayClient{
			Endpoint:      endpoint,
			ServerNode:    "relay",
			ServerAddress: hostPortAddr(daemonRunConfiguration.relayAddress),
		}}
	}
	chain := pairing.NewChain(pairing.MDNSDiscoverer{}, pairing.DHTDiscoverer{}, relay)

	manager := pairing.NewManager(endpoint, chain, store, identity, bus)
	endpoint.RegisterHandler(manager)

	dropsDir, err := sdcore.BaseDirectory("drops")
	if err != nil {
		return nil, nil, err
	}
	endpoint.RegisterHandler(&drop.Handler{
		DestinationDir: dropsDir,
		OnReceived: func(peer, path string) {
			logger.Printf("received drop from %s: %s", peer, path)
		},
	})

	listenAddress := daemonRunConfiguration.listenAddress
	go func() {
		if err := endpoint.ListenAndServe(ctx, listenAddress); err != nil {
			logger.Warn(fmt.Errorf("networking overlay stopped: %w", err))
		}
	}()

	// ListenAndServe binds asynchronously; wait briefly for it so the relay
	// advertisement below carries a real dialable address.
	var boundAddr string
	for i := 0; i < 50; i++ {
		if addr := endpoint.ListenAddr(); addr != "" {
			boundAddr = addr
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	if rd, ok := relay.(pairing.RelayDiscoverer); ok && boundAddr != "" {
		if client, ok := rd.Client.(*pairing.QUICRelayClient); ok {
			client.LocalAddress = boundAddr
			// Keep this device resolvable under its own uuid for as long as
			// the daemon runs, so a previously paired peer can reach it for
			// a drop without a fresh pairing round.
			go chain.Advertise(ctx, node.DeviceUUID.String())
		}
	}

	return endpoint, manager, nil
}

// hostPortAddr adapts a plain "host:port" string to overlay.Addr.
type hostPortAddr string

func (h hostPortAddr) String() string { return string(h) }

func registerJobHandlers(service *daemon.Service, lib *library.Library) {
	jobs := lib.Jobs()

	service.RegisterHandler(methodJobList, jsonHandler(func(p jobListParams) (jobListResult, error) {
		reports, err := jobs.List()
		if err != nil {
			return jobListResult{}, err
		}
		var result jobListResult
		for _, r := range reports {
			if p.Status != "" && r.Status.String() != p.Status {
				continue
			}
			result.Jobs = append(result.Jobs, toJobSummary(r))
		}
		if p.Recent && len(result.Jobs) > 10 {
			result.Jobs = result.Jobs[:10]
		}
		return result, nil
	}))

	service.RegisterHandler(methodJobInfo, jsonHandler(func(p jobIDParams) (jobInfoResult, error) {
		report, err := jobs.Report(p.ID)
		if err != nil {
			return jobInfoResult{}, err
		}
		return jobInfoResult{Job: toJobSummary(report)}, nil
	}))

	service.RegisterHandler(methodJobPause, jsonHandler(func(p jobIDParams) (struct{}, error) {
		return struct{}{}, jobs.Pause(p.ID)
	}))

	service.RegisterHandler(methodJobResume, jsonHandler(func(p jobIDParams) (struct{}, error) {
		return struct{}{}, jobs.Resume(p.ID, lib)
	}))

	service.RegisterHandler(methodJobCancel, jsonHandler(func(p jobIDParams) (struct{}, error) {
		return struct{}{}, jobs.Cancel(p.ID)
	}))

	service.RegisterHandler(methodJobClear, jsonHandler(func(p jobClearParams) (jobClearResult, error) {
		match := func(r *job.Report) bool {
			if p.Failed {
				return r.Status == job.StatusFailed
			}
			return true
		}
		removed, err := jobs.Clear(match)
		return jobClearResult{Removed: removed}, err
	}))
}

func registerPairHandlers(service *daemon.Service, manager *pairing.Manager, pending *pendingPairing) {
	service.RegisterHandler(methodPairInit, jsonHandler(func(p struct{}) (pairInitResult, error) {
		if manager == nil {
			return pairInitResult{}, errors.New("networking is not enabled on this daemon")
		}
		code, resultCh, err := manager.Initiate(context.Background())
		if err != nil {
			return pairInitResult{}, err
		}
		pending.start()
		go func() {
			result := <-resultCh
			pending.finish(result.Device, result.Err)
		}()
		return pairInitResult{Mnemonic: code.Mnemonic, ExpiresAt: code.ExpiresAt}, nil
	}))

	service.RegisterHandler(methodPairJoin, jsonHandler(func(p pairJoinParams) (pairJoinResult, error) {
		if manager == nil {
			return pairJoinResult{}, errors.New("networking is not enabled on this daemon")
		}
		_, joined, err := manager.Join(context.Background(), p.Mnemonic)
		if err != nil {
			return pairJoinResult{}, err
		}
		return pairJoinResult{DeviceUUID: joined.DeviceUUID, Name: joined.Name}, nil
	}))

	service.RegisterHandler(methodPairStatus, jsonHandler(func(p struct{}) (pairStatusResult, error) {
		return pending.snapshot(), nil
	}))
}

func registerDeviceHandlers(service *daemon.Service, manager *pairing.Manager) {
	service.RegisterHandler(methodDeviceList, jsonHandler(func(p struct{}) (deviceListResult, error) {
		if manager == nil {
			return deviceListResult{}, errors.New("networking is not enabled on this daemon")
		}
		devices, err := manager.Store().ListDevices()
		if err != nil {
			return deviceListResult{}, err
		}
		var result deviceListResult
		for _, d := range devices {
			result.Devices = append(result.Devices, deviceSummary{
				DeviceUUID: d.DeviceUUID,
				Name:       d.Name,
				OS:         d.OS,
				AppVersion: d.AppVersion,
			})
		}
		return result, nil
	}))

	service.RegisterHandler(methodDeviceRevoke, jsonHandler(func(p deviceRevokeParams) (struct{}, error) {
		if manager == nil {
			return struct{}{}, errors.New("networking is not enabled on this daemon")
		}
		return struct{}{}, manager.Store().RevokeDevice(manager.Identity().DeviceUUID, p.DeviceUUID)
	}))
}

func registerDropHandlers(service *daemon.Service, manager *pairing.Manager) {
	service.RegisterHandler(methodDropSend, jsonHandler(func(p dropSendParams) (struct{}, error) {
		if manager == nil {
			return struct{}{}, errors.New("networking is not enabled on this daemon")
		}
		return struct{}{}, sendDrop(manager, p.DeviceUUID, p.FilePath)
	}))
}

// sendDrop resolves deviceUUID through the pairing Manager's discovery
// chain (the peer must still be advertising itself under its own uuid, per
// startNetworking) and transfers filePath to it over the block-transfer
// protocol.
func sendDrop(manager *pairing.Manager, deviceUUID, filePath string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stream, err := manager.OpenDeviceStream(ctx, deviceUUID, overlay.BlockALPN)
	if err != nil {
		return err
	}
	defer stream.Close()

	return drop.Send(ctx, stream, filePath)
}

// jsonHandler adapts a typed function to daemon.HandlerFunc, marshaling and
// unmarshaling its JSON params/result so each registerXHandlers function
// above stays free of repetitive encoding boilerplate.
func jsonHandler[P any, R any](fn func(P) (R, error)) daemon.HandlerFunc {
	return func(params string) (string, error) {
		var p P
		if params != "" {
			if err := json.Unmarshal([]byte(params), &p); err != nil {
				return "", fmt.Errorf("unmarshaling params: %w", err)
			}
		}
		result, err := fn(p)
		if err != nil {
			return "", err
		}
		data, err := json.Marshal(result)
		if err != nil {
			return "", fmt.Errorf("marshaling result: %w", err)
		}
		return string(data), nil
	}
}

var daemonRunCommand = &cobra.Command{
	Use:    "run",
	Short:  "Runs the sdcore daemon (not intended to be invoked directly)",
	Hidden: true,
	Run:    cmd.Mainify(daemonRunMain),
}

var daemonRunConfiguration struct {
	help             bool
	foreground       bool
	enableNetworking bool
	instance         string
	relayAddress     string
	listenAddress    string
}

func init() {
	flags := daemonRunCommand.Flags()
	flags.SortFlags = false
	flags.BoolVarP(&daemonRunConfiguration.help, "help", "h", false, "Show help information")
	flags.BoolVar(&daemonRunConfiguration.foreground, "foreground", false, "Log to standard output/error instead of the daemon log file")
	flags.BoolVar(&daemonRunConfiguration.enableNetworking, "enable-networking", false, "Enable the peer-to-peer networking overlay (pairing, sync, drops)")
	flags.StringVar(&daemonRunConfiguration.instance, "instance", "", "Name this device uses to identify itself to peers")
	flags.StringVar(&daemonRunConfiguration.relayAddress, "relay-address", "", "Dialable host:port of a pairing/discovery relay server")
	flags.StringVar(&daemonRunConfiguration.listenAddress, "listen-address", ":0", "Address the networking overlay listens on")
}
