package drafts

import (
	"context"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/models"
)

// Repository describes persistence operations for survey drafts.
type Repository interface {
	// Save records a local edit: creates the draft at version 1 or replaces the
	// content and increments the version. The draft is marked dirty.
	Save(ctx context.Context, id string, content []byte, now time.Time) (*models.SurveyDraft, error)

	// Get returns the draft or common.ErrorNotFound.
	Get(ctx context.Context, id string) (*models.SurveyDraft, error)

	// ListDirty returns drafts that still need a remote save, oldest edit first.
	ListDirty(ctx context.Context) ([]*models.SurveyDraft, error)

	// CountDirty returns the number of drafts awaiting a remote save.
	CountDirty(ctx context.Context) (int, error)

	// MarkSynced clears the dirty flag if version is still current. It reports
	// whether the flag was cleared.
	MarkSynced(ctx context.Context, id string, version int64, now time.Time) (bool, error)
}
