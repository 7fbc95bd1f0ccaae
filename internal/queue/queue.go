// Package queue implements the photo upload queue on top of the local store.
//
// Items move strictly pending -> uploading -> uploaded|failed, and failed
// items return to pending only through a retry. None of the transitions
// change the number of items in the queue; only Enqueue adds and only
// Discard and PruneUploaded remove.
package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/repositories/photos"
	"github.com/markahope-aag/hazardos-sub008/internal/store"
	"github.com/oklog/ulid/v2"
)

const blobPrefix = "photo/"

// ErrEmptyPhoto is returned by Enqueue for a capture without data.
var ErrEmptyPhoto = errors.New("photo has no data")

// Photo is a captured image waiting to be queued.
type Photo struct {
	SurveyID    string
	Filename    string
	ContentType string
	Data        []byte
}

// Failure describes a failed upload attempt.
type Failure struct {
	Err       error
	Retryable bool
	// RetryAt is when a retryable item becomes eligible again.
	RetryAt time.Time
}

type Queue struct {
	st  *store.Store
	log logging.Logger
	now func() time.Time
}

func New(st *store.Store, log logging.Logger) *Queue {
	if log == nil {
		log = logging.Nop()
	}
	return &Queue{st: st, log: log, now: time.Now}
}

// WithClock replaces the time source.
func (q *Queue) WithClock(now func() time.Time) *Queue {
	q.now = now
	return q
}

func (q *Queue) repo() photos.Repository {
	return q.st.Repos().Photos
}

// Enqueue stores the photo blob and appends a pending item in a single
// transaction.
func (q *Queue) Enqueue(ctx context.Context, p Photo) (*models.PhotoQueueItem, error) {
	if len(p.Data) == 0 {
		return nil, ErrEmptyPhoto
	}
	if strings.TrimSpace(p.SurveyID) == "" {
		return nil, fmt.Errorf("enqueue photo %q: survey id is required", p.Filename)
	}

	now := q.now().UTC()
	id := ulid.Make().String()
	item := &models.PhotoQueueItem{
		ID:          id,
		SurveyID:    p.SurveyID,
		Filename:    p.Filename,
		ContentType: p.ContentType,
		BlobKey:     blobPrefix + id,
		Size:        int64(len(p.Data)),
		Status:      models.PhotoPending,
		Retryable:   true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	err := q.st.InTx(ctx, func(ctx context.Context, r store.Repos) error {
		// drafts are never deleted locally, so the survey must exist
		if _, err := r.Drafts.Get(ctx, p.SurveyID); err != nil {
			return fmt.Errorf("survey %s: %w", p.SurveyID, err)
		}
		if err := r.Blobs.Put(ctx, item.BlobKey, p.Data); err != nil {
			return err
		}
		return r.Photos.Insert(ctx, item)
	})
	if err != nil {
		return nil, fmt.Errorf("enqueue photo %q: %w", p.Filename, err)
	}

	q.log.Debug(ctx, "photo enqueued", "item_id", id, "survey_id", p.SurveyID, "size", item.Size)
	return item, nil
}

// DequeueNext returns the oldest pending item, or nil when there is none.
// The item stays pending until MarkUploading.
func (q *Queue) DequeueNext(ctx context.Context) (*models.PhotoQueueItem, error) {
	it, err := q.repo().Oldest(ctx, models.PhotoPending)
	return it, store.Classify(err)
}

func (q *Queue) Get(ctx context.Context, id string) (*models.PhotoQueueItem, error) {
	it, err := q.repo().GetByID(ctx, id)
	return it, store.Classify(err)
}

// Blob returns the captured bytes of the item.
func (q *Queue) Blob(ctx context.Context, it *models.PhotoQueueItem) ([]byte, error) {
	return q.st.Get(ctx, it.BlobKey)
}

func (q *Queue) MarkUploading(ctx context.Context, id string) error {
	return store.Classify(q.repo().SetUploading(ctx, id, q.now()))
}

func (q *Queue) MarkUploaded(ctx context.Context, id, remoteURL string) error {
	return store.Classify(q.repo().SetUploaded(ctx, id, remoteURL, q.now()))
}

// MarkFailed records a failed attempt. The attempt counter is incremented.
func (q *Queue) MarkFailed(ctx context.Context, id string, f Failure) error {
	msg := "unknown error"
	if f.Err != nil {
		msg = f.Err.Error()
	}
	u := photos.FailedUpdate{Error: msg, Retryable: f.Retryable}
	if f.Retryable {
		u.NextAttemptAt = f.RetryAt
	}
	return store.Classify(q.repo().SetFailed(ctx, id, u, q.now()))
}

// RetryFailed moves every failed item back to pending, keeping attempts.
func (q *Queue) RetryFailed(ctx context.Context) (int, error) {
	n, err := q.repo().ResetFailed(ctx, q.now())
	if err != nil {
		return 0, store.Classify(err)
	}
	if n > 0 {
		q.log.Info(ctx, "failed photos requeued", "count", n)
	}
	return int(n), nil
}

// RequeueDue moves retryable failed items whose backoff has elapsed back to
// pending.
func (q *Queue) RequeueDue(ctx context.Context) (int, error) {
	n, err := q.repo().RequeueDue(ctx, q.now())
	return int(n), store.Classify(err)
}

// RecoverStale fails items left uploading by a previous process.
func (q *Queue) RecoverStale(ctx context.Context, maxAttempts int) (int, error) {
	n, err := q.repo().RecoverStale(ctx, "interrupted before the upload was confirmed", maxAttempts, q.now())
	if err != nil {
		return 0, store.Classify(err)
	}
	if n > 0 {
		q.log.Warn(ctx, "recovered interrupted uploads", "count", n)
	}
	return int(n), nil
}

func (q *Queue) Counts(ctx context.Context) (models.PhotoCounts, error) {
	c, err := q.repo().CountByStatus(ctx)
	return c, store.Classify(err)
}

// PendingCount is the number of items not yet uploaded and not failed.
func (q *Queue) PendingCount(ctx context.Context) (int, error) {
	c, err := q.Counts(ctx)
	if err != nil {
		return 0, err
	}
	return c[models.PhotoPending] + c[models.PhotoUploading], nil
}

func (q *Queue) FailedCount(ctx context.Context) (int, error) {
	c, err := q.Counts(ctx)
	if err != nil {
		return 0, err
	}
	return c[models.PhotoFailed], nil
}

// Failed lists failed items in enqueue order.
func (q *Queue) Failed(ctx context.Context) ([]*models.PhotoQueueItem, error) {
	list, err := q.repo().ListByStatus(ctx, models.PhotoFailed)
	return list, store.Classify(err)
}

// Discard deletes a failed item and its blob. Only failed items can be
// discarded.
func (q *Queue) Discard(ctx context.Context, id string) error {
	err := q.st.InTx(ctx, func(ctx context.Context, r store.Repos) error {
		it, err := r.Photos.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if err := r.Photos.DeleteFailed(ctx, id); err != nil {
			return err
		}
		return r.Blobs.Delete(ctx, it.BlobKey)
	})
	if err != nil {
		return fmt.Errorf("discard photo %s: %w", id, err)
	}
	q.log.Info(ctx, "failed photo discarded", "item_id", id)
	return nil
}

// PruneUploaded removes uploaded items confirmed at or before cutoff along
// with their blobs.
func (q *Queue) PruneUploaded(ctx context.Context, cutoff time.Time) (int, error) {
	list, err := q.repo().ListByStatus(ctx, models.PhotoUploaded)
	if err != nil {
		return 0, store.Classify(err)
	}

	pruned := 0
	for _, it := range list {
		if it.UpdatedAt.After(cutoff) {
			continue
		}
		err := q.st.InTx(ctx, func(ctx context.Context, r store.Repos) error {
			if err := r.Photos.DeleteUploaded(ctx, it.ID); err != nil {
				return err
			}
			return r.Blobs.Delete(ctx, it.BlobKey)
		})
		if errors.Is(err, common.ErrorNotFound) {
			continue
		}
		if err != nil {
			return pruned, fmt.Errorf("prune photo %s: %w", it.ID, err)
		}
		pruned++
	}
	if pruned > 0 {
		q.log.Debug(ctx, "uploaded photos pruned", "count", pruned)
	}
	return pruned, nil
}
