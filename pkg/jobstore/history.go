package jobstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/3leaps/seqsubmit/pkg/job"
)

func appendHistory(ctx context.Context, tx *sql.Tx, id string, status job.Status, at time.Time) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO job_history (job_id, status, changed_at) VALUES (?, ?, ?)`,
		id, string(status), formatTime(at))
	if err != nil {
		return fmt.Errorf("append job history: %w", err)
	}
	return nil
}

// History returns the persisted status changes of a job in the order they
// were written.
func (s *Store) History(ctx context.Context, id string) ([]job.HistoryEntry, error) {
	if _, err := s.GetByID(ctx, id); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, status, changed_at FROM job_history WHERE job_id = ? ORDER BY id ASC`, id)
	if err != nil {
		return nil, job.NewError("job history", job.ErrStorage, err)
	}
	defer func() { _ = rows.Close() }()

	var out []job.HistoryEntry
	for rows.Next() {
		var (
			e         job.HistoryEntry
			status    string
			changedAt string
		)
		if err := rows.Scan(&e.JobID, &status, &changedAt); err != nil {
			return nil, job.NewError("job history", job.ErrStorage, err)
		}
		e.Status = job.Status(status)
		if e.ChangedAt, err = parseTime(changedAt); err != nil {
			return nil, job.NewError("job history", job.ErrStorage, err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, job.NewError("job history", job.ErrStorage, err)
	}
	return out, nil
}
