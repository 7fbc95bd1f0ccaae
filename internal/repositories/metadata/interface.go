// Package metadata stores small engine facts that must survive a restart,
// such as the time of the last successful sync and the device identifier.
package metadata

import (
	"context"
	"time"
)

// Well-known keys.
const (
	KeyLastSyncAt = "last_sync_at"
	KeyDeviceID   = "device_id"
)

type Repository interface {
	// Get returns (nil, nil) when the key does not exist.
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context) (map[string][]byte, error)

	// GetTime and SetTime store a timestamp as RFC 3339 text. A missing key
	// reads as the zero time.
	GetTime(ctx context.Context, key string) (time.Time, error)
	SetTime(ctx context.Context, key string, t time.Time) error
}
