package library

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sd-io/sdcore/pkg/eventbus"
	"github.com/sd-io/sdcore/pkg/logging"
)

// Manager owns every opened Library, and the device's own persistent
// identity, under a single root directory laid out per spec.md's
// persisted-layout tree (a "libraries" subdirectory holding each
// library's ".sdlibrary" config and ".db" database side by side).
type Manager struct {
	mu        sync.Mutex
	root      string
	node      *NodeState
	bus       *eventbus.Bus
	logger    *logging.Logger
	workers   int
	libraries map[uuid.UUID]*Library
}

// NewManager constructs a Manager rooted at root (sdcore's base
// directory), loading or creating the device's node state under the
// given display name.
func NewManager(root, deviceName string, bus *eventbus.Bus, workerCount int, logger *logging.Logger) (*Manager, error) {
	node, err := LoadOrCreateNodeState(root, deviceName)
	if err != nil {
		return nil, err
	}
	if workerCount < 1 {
		workerCount = 1
	}

	librariesDir := filepath.Join(root, "libraries")
	if err := os.MkdirAll(librariesDir, 0700); err != nil {
		return nil, fmt.Errorf("library: creating libraries directory: %w", err)
	}

	return &Manager{
		root:      root,
		node:      node,
		bus:       bus,
		logger:    logger,
		workers:   workerCount,
		libraries: make(map[uuid.UUID]*Library),
	}, nil
}

// NodeState returns the device's own persistent identity.
func (m *Manager) NodeState() *NodeState { return m.node }

func (m *Manager) librariesDir() string {
	return filepath.Join(m.root, "libraries")
}

func (m *Manager) configPath(id uuid.UUID) string {
	return filepath.Join(m.librariesDir(), id.String()+".sdlibrary")
}

func (m *Manager) dbPath(id uuid.UUID) string {
	return filepath.Join(m.librariesDir(), id.String()+".db")
}

// Create provisions a brand-new library: a fresh uuid, an empty sqlite
// database (migrated by pkg/db), a config row naming the local device as
// its first member, and a corresponding row in the library's own
// "devices"/"libraries" tables so foreign keys (location ownership,
// locally-resolved ids) have something to reference.
func (m *Manager) Create(ctx context.Context, name string) (*Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, err := uuid.NewRandom()
	if err != nil {
		return nil, fmt.Errorf("library: generating library uuid: %w", err)
	}

	config := &Config{LibraryUUID: id, Name: name}
	config.AddMember(m.node.DeviceUUID, m.node.Name, true)
	if err := saveConfig(m.configPath(id), config); err != nil {
		return nil, fmt.Errorf("library: saving new library config: %w", err)
	}

	lib, err := openLibrary(ctx, m.configPath(id), m.dbPath(id), m.node.DeviceUUID.String(), m.bus, m.workers, m.logger)
	if err != nil {
		os.Remove(m.configPath(id))
		return nil, err
	}

	if err := m.provisionLocalRows(ctx, lib); err != nil {
		lib.Close()
		os.Remove(m.configPath(id))
		os.Remove(m.dbPath(id))
		return nil, err
	}

	m.libraries[id] = lib
	return lib, nil
}

// provisionLocalRows inserts the local device's row and this library's own
// row into its freshly migrated database, so sqlFKResolver and AddLocation
// have rows to resolve against from the very first write.
func (m *Manager) provisionLocalRows(ctx context.Context, lib *Library) error {
	now := time.Now().UnixMilli()

	_, signingPublic := m.node.SigningKeypair()
	_, err := lib.db.ExecContext(ctx, `
		INSERT INTO devices (uuid, name, signing_public_key, created_at)
		VALUES (?, ?, ?, ?)`,
		m.node.DeviceUUID.String(), m.node.Name, []byte(signingPublic), now,
	)
	if err != nil {
		return fmt.Errorf("library: provisioning local device row: %w", err)
	}

	_, err = lib.db.ExecContext(ctx, `
		INSERT INTO libraries (uuid, name, created_at) VALUES (?, ?, ?)`,
		lib.config.LibraryUUID.String(), lib.config.Name, now,
	)
	if err != nil {
		return fmt.Errorf("library: provisioning library row: %w", err)
	}

	var libraryID, deviceID int64
	if err := lib.db.QueryRowContext(ctx, "SELECT id FROM libraries WHERE uuid = ?", lib.config.LibraryUUID.String()).Scan(&libraryID); err != nil {
		return fmt.Errorf("library: resolving provisioned library id: %w", err)
	}
	if err := lib.db.QueryRowContext(ctx, "SELECT id FROM devices WHERE uuid = ?", m.node.DeviceUUID.String()).Scan(&deviceID); err != nil {
		return fmt.Errorf("library: resolving provisioned device id: %w", err)
	}
	_, err = lib.db.ExecContext(ctx, `
		INSERT INTO library_members (library_id, device_id, joined_at) VALUES (?, ?, ?)`,
		libraryID, deviceID, now,
	)
	if err != nil {
		return fmt.Errorf("library: provisioning library membership row: %w", err)
	}
	return nil
}

// Open opens an already-provisioned library by id, caching the result for
// subsequent calls.
func (m *Manager) Open(ctx context.Context, id uuid.UUID) (*Library, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if lib, ok := m.libraries[id]; ok {
		return lib, nil
	}

	lib, err := openLibrary(ctx, m.configPath(id), m.dbPath(id), m.node.DeviceUUID.String(), m.bus, m.workers, m.logger)
	if err != nil {
		return nil, err
	}
	m.libraries[id] = lib
	return lib, nil
}

// List returns the uuids of every library present under the manager's
// libraries directory, whether or not currently open.
func (m *Manager) List() ([]uuid.UUID, error) {
	entries, err := os.ReadDir(m.librariesDir())
	if err != nil {
		return nil, fmt.Errorf("library: listing libraries directory: %w", err)
	}

	var ids []uuid.UUID
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".sdlibrary" {
			continue
		}
		id, err := uuid.Parse(entry.Name()[:len(entry.Name())-len(".sdlibrary")])
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Exists implements backup.LibraryRegistry.
func (m *Manager) Exists(libraryID uuid.UUID) bool {
	_, err := os.Stat(m.configPath(libraryID))
	return err == nil
}

// Register implements backup.LibraryRegistry: it is invoked by
// backup.Restore once a backup archive's config and database files have
// already been copied into place at the paths Register receives. It checks
// that those paths are the ones the manager itself uses and drops any
// cached instance of the library; List, Exists and Open find the restored
// library from its files on disk. The manager's own configPath/dbPath
// naming convention already matches where
// backup.Restore places the restored files, since both name files after
// the library's uuid.
func (m *Manager) Register(libraryID uuid.UUID, configPath, dbPath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if configPath != m.configPath(libraryID) || dbPath != m.dbPath(libraryID) {
		return fmt.Errorf("library: restored library files are not in the expected location")
	}
	delete(m.libraries, libraryID)
	return nil
}

// Close closes every currently open library.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for id, lib := range m.libraries {
		if err := lib.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.libraries, id)
	}
	return firstErr
}
