package database

import (
	"context"
	"database/sql"
	"time"
)

// RecordJobResult upserts the latest outcome for a job key. It returns
// ErrNotFound and writes nothing when the video no longer exists, so a job
// finishing after its record was deleted cannot leave an orphaned row.
func (d *Database) RecordJobResult(ctx context.Context, run JobRun) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("record_job_result", start, err) }()

	if run.UpdatedAt.IsZero() {
		run.UpdatedAt = time.Now()
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var res sql.Result
	res, err = d.db.ExecContext(ctx, `
		INSERT INTO job_runs (job_key, kind, video_id, param, status, attempts, last_error, updated_at)
		SELECT ?, ?, ?, ?, ?, ?, ?, ?
		WHERE EXISTS (SELECT 1 FROM videos WHERE id = ?)
		ON CONFLICT(job_key) DO UPDATE SET
			status = excluded.status,
			attempts = excluded.attempts,
			last_error = excluded.last_error,
			updated_at = excluded.updated_at
	`, run.Key, run.Kind, run.VideoID, run.Param, run.Status, run.Attempts, run.LastError, run.UpdatedAt.Unix(), run.VideoID)
	if err != nil {
		return err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListJobRuns returns ledger entries, most recently updated first. An empty
// status returns every entry.
func (d *Database) ListJobRuns(ctx context.Context, status string) ([]JobRun, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list_job_runs", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `SELECT job_key, kind, video_id, param, status, attempts, last_error, updated_at FROM job_runs`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY updated_at DESC, job_key`

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []JobRun{}
	for rows.Next() {
		var (
			r         JobRun
			updatedAt int64
		)
		if err = rows.Scan(&r.Key, &r.Kind, &r.VideoID, &r.Param, &r.Status, &r.Attempts, &r.LastError, &updatedAt); err != nil {
			return nil, err
		}
		r.UpdatedAt = time.Unix(updatedAt, 0)
		runs = append(runs, r)
	}
	err = rows.Err()
	return runs, err
}

// GetStats counts videos, categories and ledger entries by status.
func (d *Database) GetStats(ctx context.Context) (Stats, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("stats", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	stats := Stats{JobsByStatus: map[string]int{}}
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM videos`).Scan(&stats.TotalVideos); err != nil {
		return stats, err
	}
	if err = d.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM categories`).Scan(&stats.TotalCategories); err != nil {
		return stats, err
	}

	var rows *sql.Rows
	rows, err = d.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM job_runs GROUP BY status`)
	if err != nil {
		return stats, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int
		)
		if err = rows.Scan(&status, &n); err != nil {
			return stats, err
		}
		stats.JobsByStatus[status] = n
	}
	err = rows.Err()
	return stats, err
}
