package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/3leaps/seqsubmit/pkg/job"
)

// timeLayout is UTC with millisecond precision.
const timeLayout = "2006-01-02T15:04:05.000Z07:00"

const jobColumns = `job_id, project_id, username, status, start_time, end_time, accession, submission_accession`

const activeFilter = `status NOT IN ('FINISHED', 'FAILED', 'STOPPED')`

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		// Rows written by other tools may use plain RFC3339.
		t, err = time.Parse(time.RFC3339Nano, s)
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

// Insert stores a new job row. A zero StartTime is stamped with the current
// time and an empty status defaults to CREATED.
func (s *Store) Insert(ctx context.Context, j *job.Job) error {
	if j == nil {
		return job.NewError("insert job", job.ErrStorage, errors.New("job is nil"))
	}
	if j.ID == "" {
		j.ID = job.NewID()
	}
	if j.Status == "" {
		j.Status = job.StatusCreated
	}
	if j.StartTime.IsZero() {
		j.StartTime = time.Now().UTC()
	}
	// Round-trip precision matches what reads will return.
	j.StartTime = j.StartTime.UTC().Truncate(time.Millisecond)

	var endTime sql.NullString
	if j.Status.IsTerminal() {
		if j.EndTime == nil {
			now := time.Now().UTC().Truncate(time.Millisecond)
			j.EndTime = &now
		}
		endTime = sql.NullString{String: formatTime(*j.EndTime), Valid: true}
	} else {
		j.EndTime = nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return job.NewError("insert job", job.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO jobs (job_id, project_id, username, status, start_time, end_time, accession, submission_accession)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.ProjectID, j.Owner, string(j.Status), formatTime(j.StartTime), endTime,
		nullString(j.Accession), nullString(j.SubmissionAccession))
	if err != nil {
		return classifyInsertError(j, err)
	}
	if err := appendHistory(ctx, tx, j.ID, j.Status, j.StartTime); err != nil {
		return job.NewError("insert job", job.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return job.NewError("insert job", job.ErrStorage, err)
	}
	return nil
}

func classifyInsertError(j *job.Job, err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "jobs.job_id"):
		e := job.NewError("insert job", job.ErrDuplicateID, err)
		e.JobID = j.ID
		return e
	case strings.Contains(msg, "jobs.project_id"):
		e := job.NewError("insert job", job.ErrActiveJobExists, fmt.Errorf("project %s: %w", j.ProjectID, err))
		e.JobID = j.ID
		return e
	default:
		return job.NewError("insert job", job.ErrStorage, err)
	}
}

// GetByID returns the job with the given id.
func (s *Store) GetByID(ctx context.Context, id string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE job_id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.NewError("get job", job.ErrNotFound, fmt.Errorf("job %s", id))
	}
	if err != nil {
		return nil, job.NewError("get job", job.ErrStorage, err)
	}
	return j, nil
}

// GetByProjectID returns the job for a project. The active job wins; when
// none is active the most recently started one is returned.
func (s *Store) GetByProjectID(ctx context.Context, projectID string) (*job.Job, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE project_id = ?
		ORDER BY (`+activeFilter+`) DESC, start_time DESC, job_id DESC LIMIT 1`, projectID)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, job.NewError("get job by project", job.ErrNotFound, fmt.Errorf("no job for project %s", projectID))
	}
	if err != nil {
		return nil, job.NewError("get job by project", job.ErrStorage, err)
	}
	return j, nil
}

// ListAll returns every job, newest first.
func (s *Store) ListAll(ctx context.Context) ([]*job.Job, error) {
	return s.list(ctx, "list jobs", `SELECT `+jobColumns+` FROM jobs ORDER BY start_time DESC, job_id DESC`)
}

// ListForOwner returns the jobs of one owner, newest first.
func (s *Store) ListForOwner(ctx context.Context, owner string) ([]*job.Job, error) {
	return s.list(ctx, "list jobs for owner",
		`SELECT `+jobColumns+` FROM jobs WHERE username = ? ORDER BY start_time DESC, job_id DESC`, owner)
}

// ListActive returns non-terminal jobs, oldest first so that earlier jobs
// are launched first.
func (s *Store) ListActive(ctx context.Context) ([]*job.Job, error) {
	return s.list(ctx, "list active jobs",
		`SELECT `+jobColumns+` FROM jobs WHERE `+activeFilter+` ORDER BY start_time ASC, job_id ASC`)
}

// CountRunning returns the number of jobs past CREATED and not yet terminal.
func (s *Store) CountRunning(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM jobs WHERE `+activeFilter+` AND status <> 'CREATED'`).Scan(&n)
	if err != nil {
		return 0, job.NewError("count running jobs", job.ErrStorage, err)
	}
	return n, nil
}

// UpdateStatus sets a job's status in one statement. end_time is set to at
// when status is terminal and cleared otherwise. The returned pointer is the
// stored end time (nil for non-terminal statuses).
func (s *Store) UpdateStatus(ctx context.Context, id string, status job.Status, at time.Time) (*time.Time, error) {
	if !status.IsValid() {
		return nil, job.NewError("update job status", job.ErrInvalidTransition, fmt.Errorf("unknown status %q", status))
	}
	if at.IsZero() {
		at = time.Now()
	}
	at = at.UTC().Truncate(time.Millisecond)

	var (
		endTime sql.NullString
		end     *time.Time
	)
	if status.IsTerminal() {
		endTime = sql.NullString{String: formatTime(at), Valid: true}
		end = &at
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, job.NewError("update job status", job.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `UPDATE jobs SET status = ?, end_time = ? WHERE job_id = ?`,
		string(status), endTime, id)
	if err != nil {
		return nil, job.NewError("update job status", job.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, job.NewError("update job status", job.ErrStorage, err)
	}
	if n == 0 {
		return nil, job.NewError("update job status", job.ErrNotFound, fmt.Errorf("job %s", id))
	}
	if err := appendHistory(ctx, tx, id, status, at); err != nil {
		return nil, job.NewError("update job status", job.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, job.NewError("update job status", job.ErrStorage, err)
	}
	return end, nil
}

// SetAccessions records the archive accessions assigned to a job.
func (s *Store) SetAccessions(ctx context.Context, id, accession, submissionAccession string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET accession = ?, submission_accession = ? WHERE job_id = ?`,
		nullString(accession), nullString(submissionAccession), id)
	if err != nil {
		return job.NewError("set job accessions", job.ErrStorage, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return job.NewError("set job accessions", job.ErrNotFound, fmt.Errorf("job %s", id))
	}
	return nil
}

// ResetActiveToStopped moves every non-terminal job to STOPPED and stamps
// its end time. Terminal rows are untouched. It returns the number of jobs
// stopped.
func (s *Store) ResetActiveToStopped(ctx context.Context) (int64, error) {
	now := formatTime(time.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, job.NewError("reset active jobs", job.ErrStorage, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO job_history (job_id, status, changed_at)
		 SELECT job_id, 'STOPPED', ? FROM jobs WHERE `+activeFilter, now); err != nil {
		return 0, job.NewError("reset active jobs", job.ErrStorage, err)
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = 'STOPPED', end_time = ? WHERE `+activeFilter, now)
	if err != nil {
		return 0, job.NewError("reset active jobs", job.ErrStorage, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, job.NewError("reset active jobs", job.ErrStorage, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, job.NewError("reset active jobs", job.ErrStorage, err)
	}
	return n, nil
}

func (s *Store) list(ctx context.Context, op, query string, args ...any) ([]*job.Job, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, job.NewError(op, job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []*job.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, job.NewError(op, job.ErrStorage, err)
		}
		out = append(out, j)
	}
	if err := rows.Err(); err != nil {
		return nil, job.NewError(op, job.ErrStorage, err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*job.Job, error) {
	var (
		j                   job.Job
		status, start       string
		end, acc, submitAcc sql.NullString
	)
	if err := row.Scan(&j.ID, &j.ProjectID, &j.Owner, &status, &start, &end, &acc, &submitAcc); err != nil {
		return nil, err
	}
	j.Status = job.Status(status)

	t, err := parseTime(start)
	if err != nil {
		return nil, err
	}
	j.StartTime = t

	if end.Valid && end.String != "" {
		et, err := parseTime(end.String)
		if err != nil {
			return nil, err
		}
		j.EndTime = &et
	}
	j.Accession = acc.String
	j.SubmissionAccession = submitAcc.String
	return &j, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
