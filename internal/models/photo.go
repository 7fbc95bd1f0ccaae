package models

import "time"

// PhotoStatus is the upload state of a queued photo.
type PhotoStatus string

const (
	PhotoPending   PhotoStatus = "pending"
	PhotoUploading PhotoStatus = "uploading"
	PhotoUploaded  PhotoStatus = "uploaded"
	PhotoFailed    PhotoStatus = "failed"
)

// AllPhotoStatuses lists every status an item can hold.
var AllPhotoStatuses = []PhotoStatus{PhotoPending, PhotoUploading, PhotoUploaded, PhotoFailed}

// PhotoQueueItem is a photo awaiting upload together with its retry bookkeeping.
type PhotoQueueItem struct {
	ID string

	// SurveyID is a weak reference to the owning survey draft.
	SurveyID string

	Filename    string
	ContentType string

	// BlobKey points at the photo bytes in the durable store.
	BlobKey string
	Size    int64

	Status   PhotoStatus
	Attempts int

	// LastError is the message of the most recent failed attempt.
	LastError string

	// Retryable is false once the item must not be retried automatically
	// (permanent error or attempts exhausted).
	Retryable bool

	// NextAttemptAt is the earliest time an automatic retry may start.
	NextAttemptAt time.Time

	// RemoteURL and the stored size are set once the upload is confirmed.
	RemoteURL string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// PhotoCounts holds the number of queue items per status.
type PhotoCounts map[PhotoStatus]int

// Total returns the number of items across all statuses.
func (c PhotoCounts) Total() int {
	n := 0
	for _, v := range c {
		n += v
	}
	return n
}
