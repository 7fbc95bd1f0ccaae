package drafts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
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

const selectColumns = `id, content, dirty, version, last_saved_at, synced_at`

func scanDraft(row interface{ Scan(dest ...any) error }) (*models.SurveyDraft, error) {
	var (
		d               models.SurveyDraft
		savedAt, synced int64
	)
	if err := row.Scan(&d.ID, &d.Content, &d.Dirty, &d.Version, &savedAt, &synced); err != nil {
		return nil, err
	}
	d.LastSavedAt = dbx.FromUnixNano(savedAt)
	d.SyncedAt = dbx.FromUnixNano(synced)
	return &d, nil
}

func (r *SQLiteRepository) Save(ctx context.Context, id string, content []byte, now time.Time) (*models.SurveyDraft, error) {
	if content == nil {
		content = []byte{}
	}
	query := `INSERT INTO drafts (id, content, dirty, version, last_saved_at, synced_at)
			VALUES (?, ?, 1, 1, ?, 0)
			ON CONFLICT(id) DO UPDATE SET content = excluded.content,
				dirty = 1,
				version = drafts.version + 1,
				last_saved_at = excluded.last_saved_at
	`
	if _, err := r.db.ExecContext(ctx, query, id, content, dbx.UnixNano(now)); err != nil {
		return nil, fmt.Errorf("failed to save draft: %w", err)
	}
	return r.Get(ctx, id)
}

func (r *SQLiteRepository) Get(ctx context.Context, id string) (*models.SurveyDraft, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("draft %s: %w", id, common.ErrorNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get draft: %w", err)
	}
	return d, nil
}

func (r *SQLiteRepository) ListDirty(ctx context.Context) ([]*models.SurveyDraft, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM drafts WHERE dirty = 1 ORDER BY last_saved_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select dirty drafts: %w", err)
	}
	defer rows.Close()

	var result []*models.SurveyDraft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan draft row: %w", err)
		}
		result = append(result, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate draft rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) CountDirty(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM drafts WHERE dirty = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count dirty drafts: %w", err)
	}
	return n, nil
}

func (r *SQLiteRepository) MarkSynced(ctx context.Context, id string, version int64, now time.Time) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE drafts SET dirty = 0, synced_at = ? WHERE id = ? AND version = ? AND dirty = 1`,
		dbx.UnixNano(now), id, version)
	if err != nil {
		return false, fmt.Errorf("failed to mark draft synced: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return n == 1, nil
}
