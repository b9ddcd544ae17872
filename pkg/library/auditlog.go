package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/action"
)

// auditEnvelope is what sqlAuditLog marshals into audit_log.data. A
// dispatched-but-not-yet-completed row has Phase "dispatched" and a nil
// Result/Error; RecordCompletion overwrites the same row with Phase
// "completed" or "failed".
type auditEnvelope struct {
	Phase  string `json:"phase"`
	Detail any    `json:"detail,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// sqlAuditLog implements action.AuditLogger against the audit_log table,
// the same table spec.md §4.5 names for every filesystem action, following
// the one-writer-per-concern shape sqlJobStore and sqlIdentityStore already
// use for their own tables.
type sqlAuditLog struct {
	db              *sql.DB
	libraryID       func(ctx context.Context) (int64, error)
	currentDeviceID string
}

// newSQLAuditLog wraps db. currentDeviceID is the UUID of the device
// dispatching the audited actions, resolved to its internal id per write.
func newSQLAuditLog(db *sql.DB, libraryID func(context.Context) (int64, error), currentDeviceID string) *sqlAuditLog {
	return &sqlAuditLog{db: db, libraryID: libraryID, currentDeviceID: currentDeviceID}
}

var _ action.AuditLogger = (*sqlAuditLog)(nil)

// RecordDispatch implements action.AuditLogger.
func (a *sqlAuditLog) RecordDispatch(ctx context.Context, act, subjectType, subjectUUID string, detail any) (int64, error) {
	libraryID, err := a.libraryID(ctx)
	if err != nil {
		return 0, err
	}
	var deviceID int64
	if err := a.db.QueryRowContext(ctx, "SELECT id FROM devices WHERE uuid = ?", a.currentDeviceID).Scan(&deviceID); err != nil {
		return 0, errors.Wrap(err, "library: resolving audit device id")
	}

	data, err := json.Marshal(auditEnvelope{Phase: "dispatched", Detail: detail})
	if err != nil {
		return 0, errors.Wrap(err, "library: marshaling audit detail")
	}

	res, err := a.db.ExecContext(ctx, `
		INSERT INTO audit_log (library_id, device_id, action, subject_type, subject_uuid, data, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		libraryID, deviceID, act, subjectType, subjectUUID, data, time.Now().UnixMilli(),
	)
	if err != nil {
		return 0, errors.Wrap(err, "library: inserting audit log row")
	}
	return res.LastInsertId()
}

// RecordCompletion implements action.AuditLogger.
func (a *sqlAuditLog) RecordCompletion(ctx context.Context, auditID int64, result any, runErr error) error {
	phase := "completed"
	var errMessage string
	if runErr != nil {
		phase = "failed"
		errMessage = runErr.Error()
	}

	data, err := json.Marshal(auditEnvelope{Phase: phase, Result: result, Error: errMessage})
	if err != nil {
		return errors.Wrap(err, "library: marshaling audit outcome")
	}

	if _, err := a.db.ExecContext(ctx, "UPDATE audit_log SET data = ? WHERE id = ?", data, auditID); err != nil {
		return errors.Wrap(err, "library: updating audit log row")
	}
	return nil
}
