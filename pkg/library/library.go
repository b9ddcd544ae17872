package library

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sd-io/sdcore/pkg/action"
	sqldb "github.com/sd-io/sdcore/pkg/db"
	"github.com/sd-io/sdcore/pkg/eventbus"
	"github.com/sd-io/sdcore/pkg/index"
	"github.com/sd-io/sdcore/pkg/job"
	"github.com/sd-io/sdcore/pkg/logging"
	"github.com/sd-io/sdcore/pkg/syncengine"
)

// Library is one opened library: its sqlite database, its YAML config,
// and the Sync Core and Job Manager wired against that database, per
// SPEC_FULL.md's Library/Database layer.
type Library struct {
	configPath string
	dbPath     string

	config *Config
	db     *sql.DB

	clock   *syncengine.Clock
	peerLog *syncengine.SQLitePeerLog
	txn     *syncengine.TransactionManager
	jobs    *job.Manager

	logger *logging.Logger
}

// LibraryID implements job.LibraryAccessor.
func (l *Library) LibraryID() string {
	return l.config.LibraryUUID.String()
}

// Config returns the library's persisted configuration.
func (l *Library) Config() *Config { return l.config }

// DB returns the library's underlying database handle, for index and
// content-pipeline code that queries it directly.
func (l *Library) DB() *sql.DB { return l.db }

// Transactions returns the library's Transaction Manager, the single path
// every write passes through per spec.md §4.6.
func (l *Library) Transactions() *syncengine.TransactionManager { return l.txn }

// Jobs returns the library's Job Manager.
func (l *Library) Jobs() *job.Manager { return l.jobs }

// AuditLogger returns an action.AuditLogger that records actions dispatched
// by currentDeviceID against this library's audit_log table. Callers
// constructing action.CopyHandler/MoveHandler/DedupHandler for this library
// pass the result as each handler's Audit field.
func (l *Library) AuditLogger(currentDeviceID string) action.AuditLogger {
	return newSQLAuditLog(l.db, l.localLibraryID, currentDeviceID)
}

// openLibrary opens db at dbPath (running migrations), loads config from
// configPath, and wires the Sync Core and Job Manager for the given
// device identity and event bus.
func openLibrary(ctx context.Context, configPath, dbPath, device string, bus *eventbus.Bus, workerCount int, logger *logging.Logger) (*Library, error) {
	config, err := loadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("library: loading config: %w", err)
	}

	conn, err := sqldb.Open(ctx, dbPath, logger)
	if err != nil {
		return nil, fmt.Errorf("library: opening database: %w", err)
	}

	clock := syncengine.NewClock(device)
	peerLog := syncengine.NewSQLitePeerLog(conn)
	resolver := newSQLFKResolver(conn)
	deviceOwned := newSQLDeviceOwnedStore(conn)
	emitter := eventbus.NewSyncEmitter(bus)
	txn := syncengine.NewTransactionManager(clock, peerLog, resolver, deviceOwned, emitter, device)

	jobs := job.NewManager(workerCount, newSQLJobStore(conn), logger.Sublogger("job"))

	lib := &Library{
		configPath: configPath,
		dbPath:     dbPath,
		config:     config,
		db:         conn,
		clock:      clock,
		peerLog:    peerLog,
		txn:        txn,
		jobs:       jobs,
		logger:     logger.Sublogger(config.LibraryUUID.String()),
	}

	if err := jobs.Start(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("library: starting job manager: %w", err)
	}

	return lib, nil
}

// Close stops the library's Job Manager and closes its database handle.
func (l *Library) Close() error {
	l.jobs.Stop()
	return l.db.Close()
}

// AddLocation registers a new location row under this library and submits
// an indexing job for it, returning the location's assigned UUID. The job
// runs asynchronously through the Job Manager; its id can be found via
// "job list" filtered to IndexLocationJobType, mirroring how pkg/action's
// handlers hand long-running work off to a job rather than blocking the
// caller.
func (l *Library) AddLocation(ctx context.Context, ownerDeviceID int64, directoryPath, name string) (uuid.UUID, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return uuid.Nil, fmt.Errorf("library: generating location uuid: %w", err)
	}

	libraryID, err := l.localLibraryID(ctx)
	if err != nil {
		return uuid.Nil, err
	}

	res, err := l.db.ExecContext(ctx, `
		INSERT INTO locations (uuid, library_id, owning_device_id, directory_path, name, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		id.String(), libraryID, ownerDeviceID, directoryPath, name, time.Now().UnixMilli(),
	)
	if err != nil {
		return uuid.Nil, fmt.Errorf("library: inserting location: %w", err)
	}
	locationID, err := res.LastInsertId()
	if err != nil {
		return uuid.Nil, fmt.Errorf("library: reading inserted location id: %w", err)
	}

	handler := l.indexLocationHandler(locationID, directoryPath, index.ModeDeep)
	if _, err := l.jobs.Submit(job.Submission{Type: IndexLocationJobType, Handler: handler, Library: l}); err != nil {
		return uuid.Nil, fmt.Errorf("library: submitting index job for new location: %w", err)
	}

	return id, nil
}

// LocationRow is one row of the locations table, returned by ListLocations.
type LocationRow struct {
	UUID          uuid.UUID
	DirectoryPath string
	Name          string
}

// ListLocations returns every location registered under this library.
func (l *Library) ListLocations(ctx context.Context) ([]LocationRow, error) {
	libraryID, err := l.localLibraryID(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT uuid, directory_path, name FROM locations WHERE library_id = ? ORDER BY created_at`,
		libraryID)
	if err != nil {
		return nil, fmt.Errorf("library: querying locations: %w", err)
	}
	defer rows.Close()

	var result []LocationRow
	for rows.Next() {
		var idStr string
		var row LocationRow
		if err := rows.Scan(&idStr, &row.DirectoryPath, &row.Name); err != nil {
			return nil, fmt.Errorf("library: scanning location: %w", err)
		}
		parsed, err := uuid.Parse(idStr)
		if err != nil {
			return nil, fmt.Errorf("library: parsing location uuid: %w", err)
		}
		row.UUID = parsed
		result = append(result, row)
	}
	return result, rows.Err()
}

// localLibraryID resolves this library's own integer id from its uuid, for
// queries against tables that key on the integer foreign key rather than
// the uuid directly.
func (l *Library) localLibraryID(ctx context.Context) (int64, error) {
	var id int64
	err := l.db.QueryRowContext(ctx, "SELECT id FROM libraries WHERE uuid = ?", l.config.LibraryUUID.String()).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("library: resolving local library id: %w", err)
	}
	return id, nil
}
