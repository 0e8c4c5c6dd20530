package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iconidentify/ytgrabba/internal/domain"
)

// SQLiteJobRepository implements JobRepository on a SQLite database file.
type SQLiteJobRepository struct {
	db *sql.DB
}

// NewSQLiteJobRepository opens (creating if needed) the database at path.
func NewSQLiteJobRepository(path string) (*SQLiteJobRepository, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// SQLite allows a single writer.
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			source_url TEXT NOT NULL,
			kind TEXT NOT NULL,
			quality TEXT NOT NULL,
			strategy TEXT,
			format_id TEXT,
			dir TEXT NOT NULL,
			files TEXT,
			status TEXT NOT NULL,
			error TEXT,
			size_bytes INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			finished_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_jobs_created_at ON jobs(created_at);
		CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create table: %w", err)
	}

	return &SQLiteJobRepository{db: db}, nil
}

// Close closes the database.
func (r *SQLiteJobRepository) Close() error {
	return r.db.Close()
}

// Save inserts or replaces the job record.
func (r *SQLiteJobRepository) Save(ctx context.Context, job *domain.DownloadJob) error {
	files, err := json.Marshal(job.Files)
	if err != nil {
		return fmt.Errorf("encode files: %w", err)
	}

	var finished sql.NullInt64
	if job.FinishedAt != nil {
		finished = sql.NullInt64{Int64: job.FinishedAt.UnixNano(), Valid: true}
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO jobs
			(id, source_url, kind, quality, strategy, format_id, dir, files, status, error, size_bytes, created_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(job.ID),
		job.Source.String(),
		string(job.Kind),
		job.Quality,
		string(job.Strategy),
		job.FormatID,
		job.Dir,
		string(files),
		string(job.Status),
		job.Error,
		job.SizeBytes,
		job.CreatedAt.UnixNano(),
		finished,
	)
	if err != nil {
		return fmt.Errorf("save job: %w", err)
	}
	return nil
}

const jobColumns = `id, source_url, kind, quality, strategy, format_id, dir, files, status, error, size_bytes, created_at, finished_at`

// Get retrieves a job by ID.
func (r *SQLiteJobRepository) Get(ctx context.Context, id domain.JobID) (*domain.DownloadJob, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, string(id))
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	return job, err
}

// List returns the most recent jobs, newest first.
func (r *SQLiteJobRepository) List(ctx context.Context, limit int) ([]*domain.DownloadJob, error) {
	if limit <= 0 {
		limit = -1 // no limit
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.DownloadJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

// Stats returns job counts by lifecycle stage.
func (r *SQLiteJobRepository) Stats(ctx context.Context) (*JobStats, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM jobs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("job stats: %w", err)
	}
	defer rows.Close()

	stats := &JobStats{}
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		countStatus(stats, domain.JobStatus(status), n)
	}
	return stats, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(s scanner) (*domain.DownloadJob, error) {
	var (
		job                      domain.DownloadJob
		id, source, kind, status string
		strategy, formatID, errS sql.NullString
		files                    sql.NullString
		created                  int64
		finished                 sql.NullInt64
	)
	err := s.Scan(&id, &source, &kind, &job.Quality, &strategy, &formatID, &job.Dir,
		&files, &status, &errS, &job.SizeBytes, &created, &finished)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan job: %w", err)
	}

	job.ID = domain.JobID(id)
	job.Source = domain.SourceReference(source)
	job.Kind = domain.MediaKind(kind)
	job.Strategy = domain.VideoStrategy(strategy.String)
	job.FormatID = formatID.String
	job.Status = domain.JobStatus(status)
	job.Error = errS.String
	job.CreatedAt = time.Unix(0, created)
	if finished.Valid {
		t := time.Unix(0, finished.Int64)
		job.FinishedAt = &t
	}
	if files.Valid && files.String != "" {
		if err := json.Unmarshal([]byte(files.String), &job.Files); err != nil {
			return nil, fmt.Errorf("decode files: %w", err)
		}
	}

	return &job, nil
}
