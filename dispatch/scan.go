package dispatch

import (
	"database/sql"
	"fmt"
)

// JobScanArgs holds all the variables needed for scanning a job from a
// database row.
type JobScanArgs struct {
	Result     sql.NullString
	ErrorMsg   sql.NullString
	WaitingOn  sql.NullString
	StartedAt  sql.NullTime
	FinishedAt sql.NullTime
}

// GetJobScanArgs returns a JobScanArgs struct with all variables ready for scanning
func GetJobScanArgs() *JobScanArgs {
	return &JobScanArgs{}
}

// GetJobScanTargets returns a slice of interface{} pointers for the job and
// scan args, in the order expected by the standard job SELECT query
func GetJobScanTargets(job *Job, args *JobScanArgs) []interface{} {
	return []interface{}{
		&job.ID,
		&job.Kind,
		&job.Input,
		&job.Status,
		&args.Result,
		&args.ErrorMsg,
		&args.WaitingOn,
		&job.CreatedAt,
		&args.StartedAt,
		&args.FinishedAt,
		&job.UpdatedAt,
	}
}

// ProcessJobScanArgs processes the scanned arguments and populates the job
// struct. Returns an error if JSON unmarshaling fails.
func ProcessJobScanArgs(job *Job, args *JobScanArgs) error {
	if args.Result.Valid {
		job.Result = args.Result.String
	}
	if args.ErrorMsg.Valid {
		job.Error = args.ErrorMsg.String
	}

	if args.WaitingOn.Valid {
		waitingOn, err := UnmarshalWaitingOn(args.WaitingOn.String)
		if err != nil {
			return fmt.Errorf("failed to unmarshal waiting_on for job %s: %w", job.ID, err)
		}
		job.WaitingOn = waitingOn
	}

	if args.StartedAt.Valid {
		job.StartedAt = &args.StartedAt.Time
	}
	if args.FinishedAt.Valid {
		job.FinishedAt = &args.FinishedAt.Time
	}

	return nil
}

// ScanJobFromRow scans a single job from a sql.Row
func ScanJobFromRow(row *sql.Row, job *Job) error {
	args := GetJobScanArgs()
	targets := GetJobScanTargets(job, args)

	if err := row.Scan(targets...); err != nil {
		return err
	}

	return ProcessJobScanArgs(job, args)
}

// ScanJobFromRows scans a single job from sql.Rows (for use in loops)
func ScanJobFromRows(rows *sql.Rows, job *Job) error {
	args := GetJobScanArgs()
	targets := GetJobScanTargets(job, args)

	if err := rows.Scan(targets...); err != nil {
		return err
	}

	return ProcessJobScanArgs(job, args)
}

// StandardJobSelectColumns returns the standard column list for job SELECT queries
func StandardJobSelectColumns() string {
	return `id, kind, input, status,
		result, error, waiting_on,
		created_at, started_at, finished_at, updated_at`
}
