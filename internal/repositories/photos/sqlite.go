package photos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/dbx"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectColumns = `id, survey_id, filename, content_type, blob_key, size, status, attempts,
	last_error, retryable, next_attempt_at, remote_url, created_at, updated_at`

func scanItem(row interface{ Scan(dest ...any) error }) (*models.PhotoQueueItem, error) {
	var (
		it                       models.PhotoQueueItem
		status                   string
		nextAt, created, updated int64
	)
	err := row.Scan(&it.ID, &it.SurveyID, &it.Filename, &it.ContentType, &it.BlobKey, &it.Size, &status,
		&it.Attempts, &it.LastError, &it.Retryable, &nextAt, &it.RemoteURL, &created, &updated)
	if err != nil {
		return nil, err
	}
	it.Status = models.PhotoStatus(status)
	it.NextAttemptAt = dbx.FromUnixNano(nextAt)
	it.CreatedAt = dbx.FromUnixNano(created)
	it.UpdatedAt = dbx.FromUnixNano(updated)
	return &it, nil
}

func (r *SQLiteRepository) Insert(ctx context.Context, it *models.PhotoQueueItem) error {
	query := `INSERT INTO photos (id, survey_id, filename, content_type, blob_key, size, status, attempts,
			last_error, retryable, next_attempt_at, remote_url, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, it.ID, it.SurveyID, it.Filename, it.ContentType, it.BlobKey, it.Size,
		string(it.Status), it.Attempts, it.LastError, it.Retryable, dbx.UnixNano(it.NextAttemptAt), it.RemoteURL,
		dbx.UnixNano(it.CreatedAt), dbx.UnixNano(it.UpdatedAt))
	if err != nil {
		return fmt.Errorf("failed to insert photo: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.PhotoQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM photos WHERE id = ?`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("photo %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return it, nil
}

func (r *SQLiteRepository) Oldest(ctx context.Context, status models.PhotoStatus) (*models.PhotoQueueItem, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM photos WHERE status = ? ORDER BY seq LIMIT 1`, string(status))
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select oldest %s photo: %w", status, err)
	}
	return it, nil
}

func (r *SQLiteRepository) ListByStatus(ctx context.Context, statuses ...models.PhotoStatus) ([]*models.PhotoQueueItem, error) {
	query := `SELECT ` + selectColumns + ` FROM photos`
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(", ?", len(statuses)-1) + `)`
		for _, s := range statuses {
			args = append(args, string(s))
		}
	}
	query += ` ORDER BY seq`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select photos: %w", err)
	}
	defer rows.Close()

	var result []*models.PhotoQueueItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo row: %w", err)
		}
		result = append(result, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate photo rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) CountByStatus(ctx context.Context) (models.PhotoCounts, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM photos GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count photos: %w", err)
	}
	defer rows.Close()

	counts := models.PhotoCounts{}
	for _, s := range models.AllPhotoStatuses {
		counts[s] = 0
	}
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		counts[models.PhotoStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate count rows: %w", err)
	}
	return counts, nil
}

// transition runs a guarded UPDATE and turns a miss into the right error.
func (r *SQLiteRepository) transition(ctx context.Context, id string, from models.PhotoStatus, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update photo %s: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 1 {
		return nil
	}

	it, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("photo %s is %s, expected %s: %w", id, it.Status, from, common.ErrInvalidTransition)
}

func (r *SQLiteRepository) SetUploading(ctx context.Context, id string, now time.Time) error {
	return r.transition(ctx, id, models.PhotoPending,
		`UPDATE photos SET status = 'uploading', updated_at = ? WHERE id = ? AND status = 'pending'`,
		dbx.UnixNano(now), id)
}

func (r *SQLiteRepository) SetUploaded(ctx context.Context, id string, remoteURL string, now time.Time) error {
	return r.transition(ctx, id, models.PhotoUploading,
		`UPDATE photos SET status = 'uploaded', attempts = attempts + 1, last_error = '', remote_url = ?,
			updated_at = ? WHERE id = ? AND status = 'uploading'`,
		remoteURL, dbx.UnixNano(now), id)
}

func (r *SQLiteRepository) SetFailed(ctx context.Context, id string, u FailedUpdate, now time.Time) error {
	return r.transition(ctx, id, models.PhotoUploading,
		`UPDATE photos SET status = 'failed', attempts = attempts + 1, last_error = ?, retryable = ?,
			next_attempt_at = ?, updated_at = ? WHERE id = ? AND status = 'uploading'`,
		u.Error, u.Retryable, dbx.UnixNano(u.NextAttemptAt), dbx.UnixNano(now), id)
}

func (r *SQLiteRepository) exec(ctx context.Context, what string, query string, args ...any) (int64, error) {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to %s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) ResetFailed(ctx context.Context, now time.Time) (int64, error) {
	return r.exec(ctx, "reset failed photos",
		`UPDATE photos SET status = 'pending', next_attempt_at = 0, updated_at = ? WHERE status = 'failed'`,
		dbx.UnixNano(now))
}

func (r *SQLiteRepository) RequeueDue(ctx context.Context, now time.Time) (int64, error) {
	ts := dbx.UnixNano(now)
	return r.exec(ctx, "requeue due photos",
		`UPDATE photos SET status = 'pending', updated_at = ?
			WHERE status = 'failed' AND retryable = 1 AND next_attempt_at <= ?`,
		ts, ts)
}

func (r *SQLiteRepository) RecoverStale(ctx context.Context, reason string, maxAttempts int, now time.Time) (int64, error) {
	return r.exec(ctx, "recover stale photos",
		`UPDATE photos SET status = 'failed', attempts = attempts + 1, last_error = ?,
			retryable = CASE WHEN attempts + 1 < ? THEN 1 ELSE 0 END,
			next_attempt_at = 0, updated_at = ? WHERE status = 'uploading'`,
		reason, maxAttempts, dbx.UnixNano(now))
}

func (r *SQLiteRepository) DeleteFailed(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.PhotoFailed, `DELETE FROM photos WHERE id = ? AND status = 'failed'`, id)
}

func (r *SQLiteRepository) DeleteUploaded(ctx context.Context, id string) error {
	return r.transition(ctx, id, models.PhotoUploaded, `DELETE FROM photos WHERE id = ? AND status = 'uploaded'`, id)
}
