// Package store is an optional worker-side ledger of encode runs. It
// exists for operators replaying failed jobs; the backend's own video
// records are never written here.
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const (
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

type Store struct {
	db *sql.DB
}

type Run struct {
	RunID       string
	VideoID     string
	CourseID    string
	SourceURI   string
	Status      string
	Error       sql.NullString
	PlaybackURL sql.NullString
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func New(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Init(ctx context.Context) error {
	const schema = `
CREATE TABLE IF NOT EXISTS encode_runs (
	run_id UUID PRIMARY KEY,
	video_id TEXT NOT NULL,
	course_id TEXT NOT NULL,
	source_uri TEXT NOT NULL,
	status TEXT NOT NULL,
	error TEXT,
	playback_url TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS encode_runs_video_id_idx ON encode_runs (video_id);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func (s *Store) CreateRun(ctx context.Context, r Run) error {
	const q = `
INSERT INTO encode_runs (run_id, video_id, course_id, source_uri, status, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
`
	_, err := s.db.ExecContext(ctx, q, r.RunID, r.VideoID, r.CourseID, r.SourceURI, r.Status)
	return err
}

func (s *Store) FinishRun(ctx context.Context, runID, status string, errMsg, playbackURL *string) error {
	const q = `
UPDATE encode_runs
SET status = $2, error = $3, playback_url = $4, updated_at = NOW()
WHERE run_id = $1
`
	_, err := s.db.ExecContext(ctx, q, runID, status, errMsg, playbackURL)
	return err
}

// RunsForVideo lists past runs for one video, newest first. Used by the
// republish tooling to decide whether a job already completed.
func (s *Store) RunsForVideo(ctx context.Context, videoID string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const q = `
SELECT run_id, video_id, course_id, source_uri, status, error, playback_url, created_at, updated_at
FROM encode_runs
WHERE video_id = $1
ORDER BY created_at DESC
LIMIT $2
`
	rows, err := s.db.QueryContext(ctx, q, videoID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		if err := rows.Scan(
			&r.RunID,
			&r.VideoID,
			&r.CourseID,
			&r.SourceURI,
			&r.Status,
			&r.Error,
			&r.PlaybackURL,
			&r.CreatedAt,
			&r.UpdatedAt,
		); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return runs, nil
}
