package audit

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// ErrNoPreviousAudit is returned when no completed audit exists for a target.
var ErrNoPreviousAudit = errors.New("no previous completed audit for target")

// Store persists terminal jobs in SQLite so results survive restarts and
// drift comparison can look up the previous run.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the audit database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open audit store: %w", err)
	}
	// modernc.org/sqlite serializes writes; one connection avoids lock churn.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply audit schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveJob upserts a terminal job.
func (s *Store) SaveJob(ctx context.Context, job *Job) error {
	stepsJSON, err := json.Marshal(job.Steps)
	if err != nil {
		return fmt.Errorf("encode steps: %w", err)
	}

	var finishedAt any
	if job.FinishedAt != nil {
		finishedAt = job.FinishedAt.UTC().Format(time.RFC3339Nano)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audits (id, target_url, status, progress, aggregate_score,
			documentation, page_title, page_text, steps_json, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			progress = excluded.progress,
			aggregate_score = excluded.aggregate_score,
			documentation = excluded.documentation,
			page_title = excluded.page_title,
			page_text = excluded.page_text,
			steps_json = excluded.steps_json,
			finished_at = excluded.finished_at`,
		job.ID, job.TargetURL, string(job.Status), job.Progress, job.AggregateScore,
		job.Documentation, job.PageTitle, job.PageText, string(stepsJSON),
		job.CreatedAt.UTC().Format(time.RFC3339Nano), finishedAt)
	if err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

// GetJob returns one persisted audit by id.
func (s *Store) GetJob(ctx context.Context, jobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_url, status, progress, aggregate_score,
			documentation, page_title, page_text, steps_json, created_at, finished_at
		FROM audits
		WHERE id = ?`, jobID)

	return scanJob(row)
}

// LastCompletedForURL returns the most recent completed audit of targetURL,
// excluding excludeJobID (the job currently running).
func (s *Store) LastCompletedForURL(ctx context.Context, targetURL, excludeJobID string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, target_url, status, progress, aggregate_score,
			documentation, page_title, page_text, steps_json, created_at, finished_at
		FROM audits
		WHERE target_url = ? AND status = ? AND id != ?
		ORDER BY created_at DESC
		LIMIT 1`,
		targetURL, string(StatusCompleted), excludeJobID)

	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoPreviousAudit
	}
	return job, err
}

// ListRecent returns up to limit persisted audits, newest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]*Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, target_url, status, progress, aggregate_score,
			documentation, page_title, page_text, steps_json, created_at, finished_at
		FROM audits
		ORDER BY created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list audits: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// PurgeOlderThan deletes audits created before cutoff and reports how many
// rows were removed.
func (s *Store) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM audits WHERE created_at < ?`,
		cutoff.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("purge audits: %w", err)
	}
	return res.RowsAffected()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var (
		job        Job
		status     string
		stepsJSON  string
		createdAt  string
		finishedAt sql.NullString
	)
	err := row.Scan(&job.ID, &job.TargetURL, &status, &job.Progress, &job.AggregateScore,
		&job.Documentation, &job.PageTitle, &job.PageText, &stepsJSON, &createdAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	job.Status = JobStatus(status)
	if err := json.Unmarshal([]byte(stepsJSON), &job.Steps); err != nil {
		return nil, fmt.Errorf("decode steps for %s: %w", job.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = t
	}
	if finishedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, finishedAt.String); err == nil {
			job.FinishedAt = &t
		}
	}
	return &job, nil
}
