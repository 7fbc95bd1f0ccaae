package syncer

import "github.com/markahope-aag/hazardos-sub008/internal/models"

// statusInputs are the facts the aggregate status is derived from.
type statusInputs struct {
	online         bool
	syncing        bool
	failed         bool
	editing        bool
	pendingSurveys int
	pendingPhotos  int
}

// deriveStatus applies the precedence offline > syncing > error > pending >
// synced.
func deriveStatus(in statusInputs) models.SyncStatus {
	switch {
	case !in.online:
		return models.StatusOffline
	case in.syncing:
		return models.StatusSyncing
	case in.failed:
		return models.StatusError
	case in.editing || in.pendingSurveys > 0 || in.pendingPhotos > 0:
		return models.StatusPending
	default:
		return models.StatusSynced
	}
}
