package models

import "time"

// SyncStatus is the aggregate indicator derived on every recomputation.
// It is never persisted.
type SyncStatus string

const (
	StatusSynced  SyncStatus = "synced"
	StatusSyncing SyncStatus = "syncing"
	StatusPending SyncStatus = "pending"
	StatusOffline SyncStatus = "offline"
	StatusError   SyncStatus = "error"
)

// StorageEstimate is a fresh read of device storage usage.
type StorageEstimate struct {
	Usage       int64
	Quota       int64
	PercentUsed float64
}

// NewStorageEstimate computes PercentUsed from usage and quota.
func NewStorageEstimate(usage, quota int64) StorageEstimate {
	e := StorageEstimate{Usage: usage, Quota: quota}
	if quota > 0 {
		e.PercentUsed = float64(usage) / float64(quota) * 100
	}
	return e
}

// Snapshot is the application-facing view of the engine state.
type Snapshot struct {
	Status   SyncStatus
	IsOnline bool

	PendingSurveys int
	PendingPhotos  int
	FailedPhotos   int

	StorageUsed        int64
	StorageQuota       int64
	StoragePercentUsed float64

	// StorageUnavailable is set when the durable store is failing. It is
	// reported separately from network errors.
	StorageUnavailable bool

	LastSyncAt    time.Time
	LastSyncError string
}
