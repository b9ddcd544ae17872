package action

import "context"

// AuditLogger records that a Handler's job-backed action was dispatched
// and, once the job finishes, how it concluded. CopyHandler, MoveHandler,
// and DedupHandler each write through an AuditLogger the same way every
// other library write passes through syncengine.TransactionManager: one
// call when the work is handed to the job system, one more when the job
// reaches a terminal state.
//
// A Handler with a nil AuditLogger runs exactly as before; wiring one in
// is opt-in so existing callers (and tests) that construct handlers
// directly aren't required to supply one.
type AuditLogger interface {
	// RecordDispatch inserts an audit row for the named action against
	// subjectType/subjectUUID - identifying what the action targets, e.g.
	// ("destination", a directory path) or ("content_id", a joined list of
	// content identities) - with detail marshaled into the row for later
	// inspection. It returns an opaque id used to update that same row
	// once the job completes.
	RecordDispatch(ctx context.Context, action, subjectType, subjectUUID string, detail any) (int64, error)

	// RecordCompletion updates the row created by RecordDispatch with the
	// job's outcome: its result on success, or runErr's message on
	// failure.
	RecordCompletion(ctx context.Context, auditID int64, result any, runErr error) error
}
