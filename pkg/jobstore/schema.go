package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

const SchemaVersion = 2

// Migrate creates (or upgrades) the job schema in-place.
//
// v1: jobs table (job_id, project_id, username, status, start_time, end_time).
// v2: accession columns, transition history, one active job per project.
func Migrate(ctx context.Context, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if db == nil {
		return fmt.Errorf("db is nil")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS schema_meta (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			schema_version INTEGER NOT NULL
		);`,
		`INSERT INTO schema_meta (id, schema_version)
			VALUES (1, 0)
			ON CONFLICT(id) DO NOTHING;`,

		`CREATE TABLE IF NOT EXISTS jobs (
			job_id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			username TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL CHECK (status IN (
				'CREATED', 'INITIALIZING', 'STAGING_INPUTS', 'SUBMITTING',
				'SUBMITTED', 'FINISHED', 'FAILED', 'STOPPED'
			)),
			start_time TEXT NOT NULL,
			end_time TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_project_id ON jobs(project_id);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_username ON jobs(username);`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);`,

		`CREATE TABLE IF NOT EXISTS job_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			job_id TEXT NOT NULL,
			status TEXT NOT NULL,
			changed_at TEXT NOT NULL,
			FOREIGN KEY(job_id) REFERENCES jobs(job_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_job_history_job_id ON job_history(job_id);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}

	var current int
	if err := tx.QueryRowContext(ctx, `SELECT schema_version FROM schema_meta WHERE id=1`).Scan(&current); err != nil {
		return fmt.Errorf("read schema_version: %w", err)
	}

	if current < 2 {
		alters := []string{
			`ALTER TABLE jobs ADD COLUMN accession TEXT;`,
			`ALTER TABLE jobs ADD COLUMN submission_accession TEXT;`,
		}
		for _, stmt := range alters {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				msg := err.Error()
				// SQLite/libsql report duplicate columns as an error; treat as idempotent.
				if strings.Contains(msg, "duplicate column name") || strings.Contains(msg, "already exists") {
					continue
				}
				return fmt.Errorf("exec migration statement: %w", err)
			}
		}

		// Stores written before v2 may hold several active rows for a project;
		// keep the newest active and stop the rest before enforcing uniqueness.
		if _, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'STOPPED', end_time = COALESCE(end_time, start_time)
			WHERE status NOT IN ('FINISHED', 'FAILED', 'STOPPED')
			AND EXISTS (
				SELECT 1 FROM jobs newer
				WHERE newer.project_id = jobs.project_id
				AND newer.status NOT IN ('FINISHED', 'FAILED', 'STOPPED')
				AND (newer.start_time > jobs.start_time
					OR (newer.start_time = jobs.start_time AND newer.job_id > jobs.job_id))
			);`); err != nil {
			return fmt.Errorf("dedupe active jobs: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_active_project
		ON jobs(project_id) WHERE status NOT IN ('FINISHED', 'FAILED', 'STOPPED');`); err != nil {
		return fmt.Errorf("create active project index: %w", err)
	}

	if current != SchemaVersion {
		if _, err := tx.ExecContext(ctx, `UPDATE schema_meta SET schema_version=? WHERE id=1`, SchemaVersion); err != nil {
			return fmt.Errorf("update schema_version: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
