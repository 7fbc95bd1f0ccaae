package store

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func openTemp(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.db")
	s, err := Open(context.Background(), FileDSN(path), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, path
}

func TestOpen_CreatesSchema(t *testing.T) {
	s, _ := openTemp(t)

	for _, name := range []string{"goose_db_version", "blobs", "drafts", "photos", "metadata"} {
		assert.True(t, tableExists(t, s.db, name), "table %s", name)
	}
}

func TestRunMigrations_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "engine.db"))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(ctx, db))
	require.NoError(t, RunMigrations(ctx, db))
	assert.True(t, tableExists(t, db, "photos"))
}

func TestBlobs_SurviveReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "engine.db")

	s, err := Open(ctx, FileDSN(path), nil)
	require.NoError(t, err)
	require.NoError(t, s.Put(ctx, "photo/1", []byte{1, 2, 3}))
	_, err = s.SaveDraft(ctx, "survey-1", []byte(`{"rooms":2}`))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(ctx, FileDSN(path), nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Get(ctx, "photo/1")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got)

	pending, err := s.ListPendingSurveys(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "survey-1", pending[0].ID)
}

func TestGetDelete(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	_, err := s.Get(ctx, "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
	assert.False(t, errors.Is(err, common.ErrStorageUnavailable))

	require.NoError(t, s.Put(ctx, "k", []byte("v")))
	require.NoError(t, s.Delete(ctx, "k"))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err = s.Get(ctx, "k")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDraftLifecycle(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	s.WithClock(func() time.Time { return now })

	d, err := s.SaveDraft(ctx, "s1", []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, int64(1), d.Version)
	assert.True(t, d.Dirty)

	d, err = s.SaveDraft(ctx, "s1", []byte("b"))
	require.NoError(t, err)
	assert.Equal(t, int64(2), d.Version)

	n, err := s.CountPendingSurveys(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// An acknowledgement for an older version leaves the draft dirty.
	ok, err := s.MarkDraftSynced(ctx, "s1", 1)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.MarkDraftSynced(ctx, "s1", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	d, err = s.Draft(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, d.Dirty)
	assert.True(t, d.SyncedAt.Equal(now))

	n, err = s.CountPendingSurveys(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestInTx_RollsBackOnError(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.InTx(ctx, func(ctx context.Context, r Repos) error {
		require.NoError(t, r.Blobs.Put(ctx, "b", []byte("x")))
		require.NoError(t, r.Photos.Insert(ctx, &models.PhotoQueueItem{
			ID: "p1", SurveyID: "s1", Filename: "a.jpg", BlobKey: "b", Status: models.PhotoPending,
		}))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.Get(ctx, "b")
	require.ErrorIs(t, err, common.ErrorNotFound)
	list, err := s.ListPendingPhotos(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestListPendingPhotos_IncludesUploading(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()
	r := s.Repos()
	now := time.Now()

	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, r.Photos.Insert(ctx, &models.PhotoQueueItem{
			ID: id, SurveyID: "s1", Filename: id + ".jpg", BlobKey: id, Status: models.PhotoPending,
			CreatedAt: now, UpdatedAt: now,
		}))
	}
	require.NoError(t, r.Photos.SetUploading(ctx, "p1", now))
	require.NoError(t, r.Photos.SetUploading(ctx, "p2", now))
	require.NoError(t, r.Photos.SetUploaded(ctx, "p2", "https://cdn/p2", now))

	list, err := s.ListPendingPhotos(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "p1", list[0].ID)
	assert.Equal(t, "p3", list[1].ID)
}

func TestLastSyncAtAndDeviceID(t *testing.T) {
	s, _ := openTemp(t)
	ctx := context.Background()

	ts, err := s.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	want := time.Date(2026, 5, 4, 12, 30, 0, 0, time.UTC)
	require.NoError(t, s.SetLastSyncAt(ctx, want))
	ts, err = s.LastSyncAt(ctx)
	require.NoError(t, err)
	assert.True(t, ts.Equal(want))

	calls := 0
	gen := func() string { calls++; return "dev-1" }
	id, err := s.DeviceID(ctx, gen)
	require.NoError(t, err)
	assert.Equal(t, "dev-1", id)
	id, err = s.DeviceID(ctx, func() string { return "other" })
	require.NoError(t, err)
	assert.Equal(t, "dev-1", id)
	assert.Equal(t, 1, calls)
}

func TestClosedDatabase_IsStorageUnavailable(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, FileDSN(filepath.Join(t.TempDir(), "engine.db")), nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	err = s.Put(ctx, "k", []byte("v"))
	require.ErrorIs(t, err, common.ErrStorageUnavailable)

	_, err = s.ListPendingPhotos(ctx)
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestOpen_UnwritableLocation(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "missing", "deeper")
	_, err := Open(context.Background(), FileDSN(filepath.Join(dir, "engine.db")), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestConnDone_IsStorageUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT .+ FROM drafts WHERE dirty = 1`).WillReturnError(sql.ErrConnDone)

	s := New(db, nil)
	_, err = s.ListPendingSurveys(context.Background())
	require.ErrorIs(t, err, common.ErrStorageUnavailable)
}

func TestClassify(t *testing.T) {
	assert.NoError(t, Classify(nil))

	plain := errors.New("constraint failed")
	assert.Same(t, plain, Classify(plain))

	nf := common.ErrorNotFound
	assert.False(t, errors.Is(Classify(nf), common.ErrStorageUnavailable))

	wrapped := Classify(sql.ErrConnDone)
	require.ErrorIs(t, wrapped, common.ErrStorageUnavailable)
	require.ErrorIs(t, wrapped, sql.ErrConnDone)
	assert.Same(t, wrapped, Classify(wrapped))
}
