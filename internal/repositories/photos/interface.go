package photos

import (
	"context"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/models"
)

// FailedUpdate describes the outcome of a failed attempt.
type FailedUpdate struct {
	Error         string
	Retryable     bool
	NextAttemptAt time.Time
}

// Repository describes queue persistence for photo items.
type Repository interface {
	Insert(ctx context.Context, item *models.PhotoQueueItem) error
	GetByID(ctx context.Context, id string) (*models.PhotoQueueItem, error)

	// Oldest returns the first item with the given status in enqueue order,
	// or nil when there is none.
	Oldest(ctx context.Context, status models.PhotoStatus) (*models.PhotoQueueItem, error)

	ListByStatus(ctx context.Context, statuses ...models.PhotoStatus) ([]*models.PhotoQueueItem, error)
	CountByStatus(ctx context.Context) (models.PhotoCounts, error)

	// SetUploading moves a pending item to uploading.
	SetUploading(ctx context.Context, id string, now time.Time) error

	// SetUploaded moves an uploading item to uploaded and counts the attempt.
	SetUploaded(ctx context.Context, id string, remoteURL string, now time.Time) error

	// SetFailed moves an uploading item to failed and counts the attempt.
	SetFailed(ctx context.Context, id string, u FailedUpdate, now time.Time) error

	// ResetFailed moves every failed item back to pending. Attempts are kept.
	ResetFailed(ctx context.Context, now time.Time) (int64, error)

	// RequeueDue moves retryable failed items whose next attempt time has
	// passed back to pending.
	RequeueDue(ctx context.Context, now time.Time) (int64, error)

	// RecoverStale turns items left in uploading into failed. Items whose
	// attempt count reaches maxAttempts are no longer retryable.
	RecoverStale(ctx context.Context, reason string, maxAttempts int, now time.Time) (int64, error)

	// DeleteFailed removes a failed item.
	DeleteFailed(ctx context.Context, id string) error

	// DeleteUploaded removes an uploaded item.
	DeleteUploaded(ctx context.Context, id string) error
}
