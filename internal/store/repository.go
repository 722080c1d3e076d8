// Package store persists agent settings and render history in the local
// SQLite database.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/clipdesk/internal/db"
	"github.com/heimdex/clipdesk/internal/render"
)

const (
	KeyDeviceID  = "device_id"
	KeyAuthToken = "auth_token"

	timeLayout = db.TimeLayout
)

type Repository interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error

	SaveRender(ctx context.Context, job render.Job) error
	GetRender(ctx context.Context, id string) (*render.Job, error)
	ListRenders(ctx context.Context, limit int) ([]*render.Job, error)
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

// SaveRender inserts or updates the row for job.ID. Jobs without a request
// snapshot are ignored.
func (r *SQLiteRepository) SaveRender(ctx context.Context, job render.Job) error {
	if job.ID == "" || job.Request == nil {
		return nil
	}
	req, err := json.Marshal(job.Request)
	if err != nil {
		return fmt.Errorf("encode render request: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO renders (id, project_id, asset_id, status, request, output_url, message, submitted_at, finished_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, datetime('now'))
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			output_url = excluded.output_url,
			message = excluded.message,
			finished_at = excluded.finished_at,
			updated_at = excluded.updated_at
	`, job.ID, job.Request.ProjectID, job.Request.AssetID, string(job.Status), string(req),
		nullString(job.OutputURL), nullString(job.Message), formatTime(job.SubmittedAt), nullTime(job.FinishedAt))
	return err
}

func (r *SQLiteRepository) GetRender(ctx context.Context, id string) (*render.Job, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, request, output_url, message, submitted_at, finished_at
		FROM renders WHERE id = ?
	`, id)
	if err != nil {
		return nil, err
	}
	jobs, err := scanRenders(rows)
	if err != nil || len(jobs) == 0 {
		return nil, err
	}
	return jobs[0], nil
}

// ListRenders returns the most recent renders first.
func (r *SQLiteRepository) ListRenders(ctx context.Context, limit int) ([]*render.Job, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, request, output_url, message, submitted_at, finished_at
		FROM renders ORDER BY submitted_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	return scanRenders(rows)
}

func scanRenders(rows *sql.Rows) ([]*render.Job, error) {
	defer rows.Close()

	var jobs []*render.Job
	for rows.Next() {
		var j render.Job
		var status, req, submittedAt string
		var outputURL, message, finishedAt sql.NullString
		if err := rows.Scan(&j.ID, &status, &req, &outputURL, &message, &submittedAt, &finishedAt); err != nil {
			return nil, err
		}
		j.Status = render.Status(status)
		j.OutputURL = outputURL.String
		j.Message = message.String
		j.SubmittedAt, _ = time.Parse(time.RFC3339Nano, submittedAt)
		if finishedAt.Valid {
			j.FinishedAt, _ = time.Parse(time.RFC3339Nano, finishedAt.String)
		}
		var request render.Request
		if err := json.Unmarshal([]byte(req), &request); err != nil {
			return nil, fmt.Errorf("decode render %s request: %w", j.ID, err)
		}
		j.Request = &request
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// EnsureDeviceID returns the stored device ID, creating one on first use.
func EnsureDeviceID(ctx context.Context, repo Repository) (string, error) {
	return ensure(ctx, repo, KeyDeviceID, func() (string, error) {
		return uuid.NewString(), nil
	})
}

// EnsureAuthToken returns the stored control API token, creating one on
// first use.
func EnsureAuthToken(ctx context.Context, repo Repository) (string, error) {
	return ensure(ctx, repo, KeyAuthToken, func() (string, error) {
		b := make([]byte, 32)
		if _, err := rand.Read(b); err != nil {
			return "", err
		}
		return hex.EncodeToString(b), nil
	})
}

func ensure(ctx context.Context, repo Repository, key string, gen func() (string, error)) (string, error) {
	existing, err := repo.GetConfig(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	if existing != "" {
		return existing, nil
	}
	value, err := gen()
	if err != nil {
		return "", fmt.Errorf("generate %s: %w", key, err)
	}
	if err := repo.SetConfig(ctx, key, value); err != nil {
		return "", fmt.Errorf("store %s: %w", key, err)
	}
	return value, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func nullTime(t time.Time) sql.NullString {
	if t.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
