// Package store is the durable local store of the sync engine: a SQLite
// database holding survey drafts, the photo queue, photo blobs and engine
// metadata. It is the source of truth while the device is offline.
//
// Every error that means the store itself is failing is wrapped with
// common.ErrStorageUnavailable (see Classify) so callers can tell a threat to
// durability apart from ordinary lookup or network failures.
package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/dbx"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/repositories/blobs"
	"github.com/markahope-aag/hazardos-sub008/internal/repositories/drafts"
	"github.com/markahope-aag/hazardos-sub008/internal/repositories/metadata"
	"github.com/markahope-aag/hazardos-sub008/internal/repositories/photos"
)

// Repos bundles the repositories bound to one database handle.
type Repos struct {
	Blobs    blobs.Repository
	Drafts   drafts.Repository
	Photos   photos.Repository
	Metadata metadata.Repository
}

func reposFor(db dbx.DBTX) Repos {
	return Repos{
		Blobs:    blobs.NewSQLiteRepository(db),
		Drafts:   drafts.NewSQLiteRepository(db),
		Photos:   photos.NewSQLiteRepository(db),
		Metadata: metadata.NewSQLiteRepository(db),
	}
}

type Store struct {
	db  *sql.DB
	log logging.Logger
	now func() time.Time
}

// Open opens (creating if needed) the database behind dsn and migrates it.
func Open(ctx context.Context, dsn string, log logging.Logger) (*Store, error) {
	db, err := openDB(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return New(db, log), nil
}

// New wraps an already migrated database.
func New(db *sql.DB, log logging.Logger) *Store {
	if log == nil {
		log = logging.Nop()
	}
	return &Store{db: db, log: log, now: time.Now}
}

// WithClock replaces the time source used for timestamps.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Repos returns repositories bound to the database. Errors they return are
// not classified; use Classify on them.
func (s *Store) Repos() Repos {
	return reposFor(s.db)
}

// InTx runs fn in a single transaction.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, r Repos) error) error {
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return fn(ctx, reposFor(tx))
	})
	return Classify(err)
}

func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	return Classify(s.Repos().Blobs.Put(ctx, key, value))
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.Repos().Blobs.Get(ctx, key)
	return v, Classify(err)
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return Classify(s.Repos().Blobs.Delete(ctx, key))
}

// ListPendingSurveys returns drafts that have local edits not yet
// acknowledged by the remote.
func (s *Store) ListPendingSurveys(ctx context.Context) ([]*models.SurveyDraft, error) {
	list, err := s.Repos().Drafts.ListDirty(ctx)
	return list, Classify(err)
}

// ListPendingPhotos returns queue items not yet uploaded and not failed,
// in enqueue order.
func (s *Store) ListPendingPhotos(ctx context.Context) ([]*models.PhotoQueueItem, error) {
	list, err := s.Repos().Photos.ListByStatus(ctx, models.PhotoPending, models.PhotoUploading)
	return list, Classify(err)
}

func (s *Store) CountPendingSurveys(ctx context.Context) (int, error) {
	n, err := s.Repos().Drafts.CountDirty(ctx)
	return n, Classify(err)
}

// SaveDraft persists a local edit before any network attempt is made.
func (s *Store) SaveDraft(ctx context.Context, id string, content []byte) (*models.SurveyDraft, error) {
	d, err := s.Repos().Drafts.Save(ctx, id, content, s.now())
	if err != nil {
		s.log.Error(ctx, "saving draft locally failed", "survey_id", id, "err", err)
	}
	return d, Classify(err)
}

func (s *Store) Draft(ctx context.Context, id string) (*models.SurveyDraft, error) {
	d, err := s.Repos().Drafts.Get(ctx, id)
	return d, Classify(err)
}

// MarkDraftSynced clears the dirty flag for the acknowledged version.
func (s *Store) MarkDraftSynced(ctx context.Context, id string, version int64) (bool, error) {
	ok, err := s.Repos().Drafts.MarkSynced(ctx, id, version, s.now())
	return ok, Classify(err)
}

func (s *Store) LastSyncAt(ctx context.Context) (time.Time, error) {
	t, err := s.Repos().Metadata.GetTime(ctx, metadata.KeyLastSyncAt)
	return t, Classify(err)
}

func (s *Store) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return Classify(s.Repos().Metadata.SetTime(ctx, metadata.KeyLastSyncAt, t))
}

// DeviceID returns the persisted device id, creating it with newID on first use.
func (s *Store) DeviceID(ctx context.Context, newID func() string) (string, error) {
	repo := s.Repos().Metadata
	v, err := repo.Get(ctx, metadata.KeyDeviceID)
	if err != nil {
		return "", Classify(err)
	}
	if v != nil {
		return string(v), nil
	}
	id := newID()
	if err := repo.Set(ctx, metadata.KeyDeviceID, []byte(id)); err != nil {
		return "", Classify(err)
	}
	return id, nil
}
