package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqliteTime is the stored timestamp layout; it sorts lexically.
const sqliteTime = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore is a JobStore backed by a local SQLite file.
type SQLiteStore struct {
	conn *sql.DB
}

var _ JobStore = (*SQLiteStore)(nil)

// OpenSQLite opens (creating if needed) the ledger at dbPath, applies
// migrations, and marks jobs left running by a previous process as failed.
func OpenSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	s := &SQLiteStore{conn: conn}
	if err := s.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	n, err := s.markInterrupted()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to mark interrupted jobs")
	} else if n > 0 {
		log.Warn().Int64("jobs", n).Msg("Marked interrupted jobs as failed")
	}
	return s, nil
}

func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

func (s *SQLiteStore) migrate() error {
	migrations, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("failed to read migrations: %w", err)
	}
	for _, m := range migrations {
		if m.IsDir() {
			continue
		}
		name := m.Name()
		if s.isMigrationApplied(name) {
			continue
		}
		content, err := migrationsFS.ReadFile("migrations/" + name)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec(string(content)); err != nil {
			return fmt.Errorf("failed to execute migration %s: %w", name, err)
		}
		if _, err := s.conn.Exec("INSERT INTO _migrations (name) VALUES (?)", name); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", name, err)
		}
		log.Debug().Str("name", name).Msg("Applied migration")
	}
	return nil
}

func (s *SQLiteStore) isMigrationApplied(name string) bool {
	var exists int
	if err := s.conn.QueryRow("SELECT 1 FROM sqlite_master WHERE type='table' AND name='_migrations'").Scan(&exists); err != nil {
		return false
	}
	var applied int
	err := s.conn.QueryRow("SELECT 1 FROM _migrations WHERE name = ?", name).Scan(&applied)
	return err == nil && applied == 1
}

func (s *SQLiteStore) markInterrupted() (int64, error) {
	res, err := s.conn.ExecContext(context.Background(),
		`UPDATE jobs SET status = ?, error = 'interrupted by restart', updated_at = ? WHERE status = ?`,
		StatusFailed, formatTime(time.Now()), StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(sqliteTime)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(sqliteTime, s)
	return t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (s *SQLiteStore) PutJob(ctx context.Context, job *Job) error {
	now := time.Now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = now

	_, err := s.conn.ExecContext(ctx, `
		INSERT INTO jobs (id, video_id, source, status, error, record_path, shot_count, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			video_id = excluded.video_id,
			source = excluded.source,
			status = excluded.status,
			error = excluded.error,
			record_path = excluded.record_path,
			shot_count = excluded.shot_count,
			updated_at = excluded.updated_at
	`, job.ID, job.VideoID, job.Source, job.Status, nullString(job.Error), nullString(job.RecordPath),
		job.ShotCount, formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return fmt.Errorf("put job %s: %w", job.ID, err)
	}
	log.Debug().Str("jobId", job.ID).Str("status", job.Status).Msg("Job persisted")
	return nil
}

const jobColumns = `id, video_id, source, status, error, record_path, shot_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var j Job
	var errMsg, recordPath sql.NullString
	var createdAt, updatedAt string
	if err := row.Scan(&j.ID, &j.VideoID, &j.Source, &j.Status, &errMsg, &recordPath, &j.ShotCount, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	j.Error = errMsg.String
	j.RecordPath = recordPath.String
	j.CreatedAt = parseTime(createdAt)
	j.UpdatedAt = parseTime(updatedAt)
	return &j, nil
}

func (s *SQLiteStore) GetJob(ctx context.Context, id string) (*Job, error) {
	row := s.conn.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return j, nil
}

func (s *SQLiteStore) UpdateJobStatus(ctx context.Context, id, status, errMsg string) error {
	res, err := s.conn.ExecContext(ctx,
		`UPDATE jobs SET status = ?, error = ?, updated_at = ? WHERE id = ?`,
		status, nullString(errMsg), formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("update job status %s -> %s: %w", id, status, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update job status %s: job not found", id)
	}
	log.Debug().Str("jobId", id).Str("status", status).Msg("Job status updated")
	return nil
}

func (s *SQLiteStore) ListJobs(ctx context.Context, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM jobs ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}
