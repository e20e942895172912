package dispatch

import (
	"database/sql"
	"time"

	"github.com/oneprompt/agentd/errors"
)

// Store handles persistence of dispatch jobs.
//
// All status transitions are compare-and-swap: the UPDATE carries the
// expected current status in its WHERE clause. Zero affected rows means
// either the job is gone (ErrNotFound) or another writer moved it first
// (ErrConflict); the two are disambiguated with a follow-up read.
type Store struct {
	db *sql.DB
}

// NewStore creates a new job store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateJob inserts a new job into the database
func (s *Store) CreateJob(job *Job) error {
	waitingOnJSON, err := MarshalWaitingOn(job.WaitingOn)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO jobs (
			id, kind, input, status,
			result, error, waiting_on,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result := sql.NullString{String: job.Result, Valid: job.Result != ""}
	errorMsg := sql.NullString{String: job.Error, Valid: job.Error != ""}
	waitingOn := sql.NullString{String: waitingOnJSON, Valid: waitingOnJSON != ""}

	_, err = s.db.Exec(query,
		job.ID,
		job.Kind,
		job.Input,
		job.Status,
		result,
		errorMsg,
		waitingOn,
		job.CreatedAt,
		job.UpdatedAt,
	)

	if err != nil {
		return errors.Wrap(err, "failed to create job")
	}

	return nil
}

// GetJob retrieves a job by ID
func (s *Store) GetJob(id string) (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs WHERE id = ?`

	var job Job
	err := ScanJobFromRow(s.db.QueryRow(query, id), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewNotFound("job %s", id)
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get job")
	}

	return &job, nil
}

// NextPending returns the oldest pending job, or nil when none are runnable
func (s *Store) NextPending() (*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC
		LIMIT 1`

	var job Job
	err := ScanJobFromRow(s.db.QueryRow(query), &job)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // No jobs available
	}
	if err != nil {
		return nil, errors.Wrap(err, "failed to get next pending job")
	}

	return &job, nil
}

// ListJobs returns jobs, optionally filtered by status
func (s *Store) ListJobs(status *JobStatus, limit int) ([]*Job, error) {
	var query string
	var args []interface{}

	baseQuery := `SELECT ` + StandardJobSelectColumns() + ` FROM jobs`
	if status != nil {
		query = baseQuery + ` WHERE status = ? ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{*status, limit}
	} else {
		query = baseQuery + ` ORDER BY created_at DESC LIMIT ?`
		args = []interface{}{limit}
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "jobs")
}

// ListBlocked returns all blocked jobs, oldest first.
// Used for index rebuild on startup and by the watchdog.
func (s *Store) ListBlocked() ([]*Job, error) {
	query := `SELECT ` + StandardJobSelectColumns() + `
		FROM jobs
		WHERE status = 'blocked'
		ORDER BY created_at ASC`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list blocked jobs")
	}
	defer rows.Close()

	return scanJobs(rows, "blocked jobs")
}

// scanJobs is a helper that scans multiple jobs from query rows
func scanJobs(rows *sql.Rows, context string) ([]*Job, error) {
	var jobs []*Job
	for rows.Next() {
		var job Job
		if err := ScanJobFromRows(rows, &job); err != nil {
			return nil, errors.Wrap(err, "failed to scan job")
		}
		jobs = append(jobs, &job)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrapf(err, "error iterating %s", context)
	}

	return jobs, nil
}

// MarkRunning transitions a job from pending to running.
// Returns ErrConflict if another worker claimed the job first.
func (s *Store) MarkRunning(id string) error {
	now := time.Now()
	query := `
		UPDATE jobs
		SET status = 'running', started_at = COALESCE(started_at, ?), updated_at = ?
		WHERE id = ? AND status = 'pending'
	`

	result, err := s.db.Exec(query, now, now, id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s running", id)
	}
	return s.checkTransition(result, id, JobStatusPending)
}

// MarkBlocked transitions a job from running to blocked, recording the
// wait set in declaration order
func (s *Store) MarkBlocked(id string, waitingOn []string) error {
	waitingOnJSON, err := MarshalWaitingOn(waitingOn)
	if err != nil {
		return err
	}

	query := `
		UPDATE jobs
		SET status = 'blocked', waiting_on = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`

	waiting := sql.NullString{String: waitingOnJSON, Valid: waitingOnJSON != ""}
	result, err := s.db.Exec(query, waiting, time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s blocked", id)
	}
	return s.checkTransition(result, id, JobStatusRunning)
}

// MarkPending re-admits a blocked job to the runnable set. The wait set
// column is kept so the worker can assemble resumption input.
func (s *Store) MarkPending(id string) error {
	query := `
		UPDATE jobs
		SET status = 'pending', updated_at = ?
		WHERE id = ? AND status = 'blocked'
	`

	result, err := s.db.Exec(query, time.Now(), id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s pending", id)
	}
	return s.checkTransition(result, id, JobStatusBlocked)
}

// MarkCompleted transitions a job from running to completed with its result.
// The result is written exactly once: a second attempt fails the CAS guard.
func (s *Store) MarkCompleted(id string, jobResult string) error {
	now := time.Now()
	query := `
		UPDATE jobs
		SET status = 'completed', result = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = 'running'
	`

	result, err := s.db.Exec(query, jobResult, now, now, id)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s completed", id)
	}
	return s.checkTransition(result, id, JobStatusRunning)
}

// MarkFailed transitions a job to failed with an error message.
// from names the expected current status: running for worker failures,
// blocked for watchdog timeouts.
func (s *Store) MarkFailed(id string, errMsg string, from JobStatus) error {
	now := time.Now()
	query := `
		UPDATE jobs
		SET status = 'failed', error = ?, finished_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.Exec(query, errMsg, now, now, id, from)
	if err != nil {
		return errors.Wrapf(err, "failed to mark job %s failed", id)
	}
	return s.checkTransition(result, id, from)
}

// checkTransition disambiguates a zero-row CAS update: the job either
// does not exist (ErrNotFound) or is not in the expected status (ErrConflict)
func (s *Store) checkTransition(result sql.Result, id string, expected JobStatus) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to get rows affected")
	}
	if rows > 0 {
		return nil
	}

	job, err := s.GetJob(id)
	if err != nil {
		return err // ErrNotFound from GetJob
	}

	err = errors.Newf("job %s is not %s (status: %s)", id, expected, job.Status)
	return errors.Mark(err, errors.ErrConflict)
}

// RequeueOrphans moves jobs stuck in running back to pending.
// Called on startup: a running row with no live worker means the previous
// process died mid-execution.
func (s *Store) RequeueOrphans() (int, error) {
	query := `
		UPDATE jobs
		SET status = 'pending', updated_at = ?
		WHERE status = 'running'
	`

	result, err := s.db.Exec(query, time.Now())
	if err != nil {
		return 0, errors.Wrap(err, "failed to requeue orphaned jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// CleanupOldJobs removes completed/failed jobs older than the specified duration
func (s *Store) CleanupOldJobs(olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	query := `
		DELETE FROM jobs
		WHERE status IN ('completed', 'failed')
		  AND updated_at < ?
	`

	result, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to cleanup old jobs")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get rows affected")
	}

	return int(rows), nil
}

// CountByStatus returns the number of jobs per status
func (s *Store) CountByStatus() (map[JobStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, errors.Wrap(err, "failed to count jobs")
	}
	defer rows.Close()

	counts := make(map[JobStatus]int)
	for rows.Next() {
		var status JobStatus
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.Wrap(err, "failed to scan job count")
		}
		counts[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "error iterating job counts")
	}

	return counts, nil
}
