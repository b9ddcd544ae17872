package library

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/sd-io/sdcore/pkg/job"
)

// sqlJobStore implements job.Store against the job_reports table, so a
// library's Job Manager survives a daemon restart by replaying resumable
// reports, per spec.md §4.4's crash-recovery rule.
type sqlJobStore struct {
	db *sql.DB
}

func newSQLJobStore(db *sql.DB) *sqlJobStore {
	return &sqlJobStore{db: db}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *sqlJobStore) Save(report *job.Report) error {
	logData, err := json.Marshal(report.Log)
	if err != nil {
		return fmt.Errorf("library: marshaling job log: %w", err)
	}
	nonCriticalData, err := json.Marshal(report.NonCriticalErrors)
	if err != nil {
		return fmt.Errorf("library: marshaling job non-critical errors: %w", err)
	}

	_, err = s.db.Exec(`
		INSERT INTO job_reports (
			id, type, priority, resumable, status, completed_task_count,
			task_count, progress_message, log, non_critical_errors, error,
			checkpoint, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			type = excluded.type,
			priority = excluded.priority,
			resumable = excluded.resumable,
			status = excluded.status,
			completed_task_count = excluded.completed_task_count,
			task_count = excluded.task_count,
			progress_message = excluded.progress_message,
			log = excluded.log,
			non_critical_errors = excluded.non_critical_errors,
			error = excluded.error,
			checkpoint = excluded.checkpoint,
			updated_at = excluded.updated_at`,
		report.ID, report.Type, boolToInt(report.Priority), boolToInt(report.Resumable),
		int(report.Status), report.Progress.CompletedTaskCount, report.Progress.TaskCount,
		report.Progress.Message, logData, nonCriticalData, report.Error, report.Checkpoint,
		report.CreatedAt.UnixMilli(), report.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return errors.Wrap(err, "library: saving job report")
	}
	return nil
}

// scanner is the subset of *sql.Row/*sql.Rows scanReport needs, so a
// single scanning routine serves both Load (one row) and LoadResumable
// (many rows).
type scanner interface {
	Scan(dest ...any) error
}

func scanReport(row scanner) (*job.Report, error) {
	var report job.Report
	var status, priority, resumable int
	var completedTaskCount, taskCount int64
	var logData, nonCriticalData []byte
	var createdAtMS, updatedAtMS int64

	err := row.Scan(
		&report.ID, &report.Type, &priority, &resumable, &status,
		&completedTaskCount, &taskCount, &report.Progress.Message,
		&logData, &nonCriticalData, &report.Error, &report.Checkpoint,
		&createdAtMS, &updatedAtMS,
	)
	if err != nil {
		return nil, err
	}

	report.Priority = priority != 0
	report.Resumable = resumable != 0
	report.Status = job.Status(status)
	report.Progress.CompletedTaskCount = completedTaskCount
	report.Progress.TaskCount = taskCount
	report.CreatedAt = time.UnixMilli(createdAtMS).UTC()
	report.UpdatedAt = time.UnixMilli(updatedAtMS).UTC()
	if err := json.Unmarshal(logData, &report.Log); err != nil {
		return nil, fmt.Errorf("library: unmarshaling job log: %w", err)
	}
	if err := json.Unmarshal(nonCriticalData, &report.NonCriticalErrors); err != nil {
		return nil, fmt.Errorf("library: unmarshaling job non-critical errors: %w", err)
	}
	return &report, nil
}

const reportColumns = `id, type, priority, resumable, status, completed_task_count,
	task_count, progress_message, log, non_critical_errors, error, checkpoint,
	created_at, updated_at`

func (s *sqlJobStore) Load(id string) (*job.Report, error) {
	row := s.db.QueryRow("SELECT "+reportColumns+" FROM job_reports WHERE id = ?", id)
	report, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("library: no such job report %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "library: loading job report")
	}
	return report, nil
}

func (s *sqlJobStore) LoadResumable() ([]*job.Report, error) {
	rows, err := s.db.Query(
		"SELECT "+reportColumns+" FROM job_reports WHERE resumable = 1 AND status NOT IN (?, ?, ?, ?)",
		int(job.StatusCompleted), int(job.StatusCompletedWithErrors), int(job.StatusFailed), int(job.StatusCanceled))
	if err != nil {
		return nil, errors.Wrap(err, "library: querying resumable job reports")
	}
	defer rows.Close()

	var reports []*job.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, errors.Wrap(err, "library: scanning resumable job report")
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// List returns every persisted report, newest first, for "job list".
func (s *sqlJobStore) List() ([]*job.Report, error) {
	rows, err := s.db.Query("SELECT " + reportColumns + " FROM job_reports ORDER BY created_at DESC")
	if err != nil {
		return nil, errors.Wrap(err, "library: listing job reports")
	}
	defer rows.Close()

	var reports []*job.Report
	for rows.Next() {
		report, err := scanReport(rows)
		if err != nil {
			return nil, errors.Wrap(err, "library: scanning job report")
		}
		reports = append(reports, report)
	}
	return reports, rows.Err()
}

// Delete removes a persisted report, for "job clear".
func (s *sqlJobStore) Delete(id string) error {
	if _, err := s.db.Exec("DELETE FROM job_reports WHERE id = ?", id); err != nil {
		return errors.Wrap(err, "library: deleting job report")
	}
	return nil
}
