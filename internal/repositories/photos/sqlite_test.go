package photos

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "modernc.org/sqlite"
)

func setupDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Exec(`
CREATE TABLE photos (
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  survey_id TEXT NOT NULL,
  filename TEXT NOT NULL,
  content_type TEXT NOT NULL DEFAULT '',
  blob_key TEXT NOT NULL,
  size INTEGER NOT NULL DEFAULT 0,
  status TEXT NOT NULL,
  attempts INTEGER NOT NULL DEFAULT 0,
  last_error TEXT NOT NULL DEFAULT '',
  retryable INTEGER NOT NULL DEFAULT 1,
  next_attempt_at INTEGER NOT NULL DEFAULT 0,
  remote_url TEXT NOT NULL DEFAULT '',
  created_at INTEGER NOT NULL DEFAULT 0,
  updated_at INTEGER NOT NULL DEFAULT 0
);
`)
	require.NoError(t, err)
	return db
}

func insert(t *testing.T, r *SQLiteRepository, id string, status models.PhotoStatus) {
	t.Helper()
	require.NoError(t, r.Insert(context.Background(), &models.PhotoQueueItem{
		ID:        id,
		SurveyID:  "s1",
		Filename:  id + ".jpg",
		BlobKey:   "photo/" + id,
		Size:      3,
		Status:    status,
		Retryable: true,
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}))
}

func TestInsertAndGet(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	insert(t, r, "p1", models.PhotoPending)

	got, err := r.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, "s1", got.SurveyID)
	assert.Equal(t, "p1.jpg", got.Filename)
	assert.Equal(t, "photo/p1", got.BlobKey)
	assert.Equal(t, models.PhotoPending, got.Status)
	assert.True(t, got.Retryable)
	assert.Equal(t, 0, got.Attempts)

	_, err = r.GetByID(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestOldest_FIFOAndNone(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()

	none, err := r.Oldest(ctx, models.PhotoPending)
	require.NoError(t, err)
	require.Nil(t, none)

	// ids deliberately not in lexical order
	for _, id := range []string{"z", "a", "m"} {
		insert(t, r, id, models.PhotoPending)
	}

	got, err := r.Oldest(ctx, models.PhotoPending)
	require.NoError(t, err)
	assert.Equal(t, "z", got.ID)

	list, err := r.ListByStatus(ctx, models.PhotoPending)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{"z", "a", "m"}, []string{list[0].ID, list[1].ID, list[2].ID})
}

func TestTransitions_HappyPath(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()
	insert(t, r, "p1", models.PhotoPending)

	require.NoError(t, r.SetUploading(ctx, "p1", now))
	require.NoError(t, r.SetUploaded(ctx, "p1", "https://cdn/p1.jpg", now))

	got, err := r.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhotoUploaded, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "https://cdn/p1.jpg", got.RemoteURL)
}

func TestTransitions_Guarded(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()
	insert(t, r, "p1", models.PhotoPending)

	err := r.SetUploaded(ctx, "p1", "", now)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	err = r.SetFailed(ctx, "p1", FailedUpdate{Error: "x"}, now)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	require.NoError(t, r.SetUploading(ctx, "p1", now))
	err = r.SetUploading(ctx, "p1", now)
	require.ErrorIs(t, err, common.ErrInvalidTransition)

	err = r.SetUploading(ctx, "ghost", now)
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestSetFailed_CountsAttemptAndStoresRetryInfo(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()
	next := now.Add(time.Minute)
	insert(t, r, "p1", models.PhotoPending)

	require.NoError(t, r.SetUploading(ctx, "p1", now))
	require.NoError(t, r.SetFailed(ctx, "p1", FailedUpdate{Error: "503", Retryable: true, NextAttemptAt: next}, now))

	got, err := r.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, models.PhotoFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.Equal(t, "503", got.LastError)
	assert.True(t, got.Retryable)
	assert.True(t, next.Equal(got.NextAttemptAt))
}

func TestResetFailed_KeepsAttempts(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()
	for i := 0; i < 3; i++ {
		id := fmt.Sprintf("p%d", i)
		insert(t, r, id, models.PhotoPending)
		require.NoError(t, r.SetUploading(ctx, id, now))
		require.NoError(t, r.SetFailed(ctx, id, FailedUpdate{Error: "e"}, now))
	}
	insert(t, r, "ok", models.PhotoPending)

	n, err := r.ResetFailed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, counts[models.PhotoPending])
	assert.Equal(t, 0, counts[models.PhotoFailed])

	got, err := r.GetByID(ctx, "p0")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
}

func TestRequeueDue_OnlyRetryableAndDue(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	fail := func(id string, u FailedUpdate) {
		insert(t, r, id, models.PhotoPending)
		require.NoError(t, r.SetUploading(ctx, id, now))
		require.NoError(t, r.SetFailed(ctx, id, u, now))
	}
	fail("due", FailedUpdate{Retryable: true, NextAttemptAt: now.Add(-time.Second)})
	fail("later", FailedUpdate{Retryable: true, NextAttemptAt: now.Add(time.Hour)})
	fail("frozen", FailedUpdate{Retryable: false})

	n, err := r.RequeueDue(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := r.GetByID(ctx, "due")
	require.NoError(t, err)
	assert.Equal(t, models.PhotoPending, got.Status)

	for _, id := range []string{"later", "frozen"} {
		got, err := r.GetByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.PhotoFailed, got.Status, id)
	}
}

func TestRecoverStale(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	insert(t, r, "fresh", models.PhotoPending)
	require.NoError(t, r.SetUploading(ctx, "fresh", now))

	insert(t, r, "worn", models.PhotoPending)
	for i := 0; i < 2; i++ {
		require.NoError(t, r.SetUploading(ctx, "worn", now))
		require.NoError(t, r.SetFailed(ctx, "worn", FailedUpdate{Retryable: true}, now))
		_, err := r.ResetFailed(ctx, now)
		require.NoError(t, err)
	}
	require.NoError(t, r.SetUploading(ctx, "worn", now))

	n, err := r.RecoverStale(ctx, "interrupted", 3, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	fresh, err := r.GetByID(ctx, "fresh")
	require.NoError(t, err)
	assert.Equal(t, models.PhotoFailed, fresh.Status)
	assert.Equal(t, 1, fresh.Attempts)
	assert.True(t, fresh.Retryable)
	assert.Equal(t, "interrupted", fresh.LastError)

	worn, err := r.GetByID(ctx, "worn")
	require.NoError(t, err)
	assert.Equal(t, 3, worn.Attempts)
	assert.False(t, worn.Retryable)
}

func TestDeleteFailedAndUploaded(t *testing.T) {
	r := NewSQLiteRepository(setupDB(t))
	ctx := context.Background()
	now := time.Now()

	insert(t, r, "f", models.PhotoPending)
	require.NoError(t, r.SetUploading(ctx, "f", now))
	require.NoError(t, r.SetFailed(ctx, "f", FailedUpdate{}, now))

	insert(t, r, "u", models.PhotoPending)
	require.NoError(t, r.SetUploading(ctx, "u", now))
	require.NoError(t, r.SetUploaded(ctx, "u", "url", now))

	insert(t, r, "p", models.PhotoPending)

	require.ErrorIs(t, r.DeleteFailed(ctx, "p"), common.ErrInvalidTransition)
	require.ErrorIs(t, r.DeleteUploaded(ctx, "f"), common.ErrInvalidTransition)
	require.NoError(t, r.DeleteFailed(ctx, "f"))
	require.NoError(t, r.DeleteUploaded(ctx, "u"))
	require.ErrorIs(t, r.DeleteFailed(ctx, "f"), common.ErrorNotFound)

	counts, err := r.CountByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Total())
}
