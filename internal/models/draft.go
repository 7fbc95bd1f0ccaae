// Package models defines the data types shared by the sync engine layers.
package models

import "time"

// SurveyDraft is the locally owned copy of a survey form. The remote copy is
// an eventually consistent replica of it.
type SurveyDraft struct {
	// ID identifies the survey.
	ID string

	// Content is the opaque form state.
	Content []byte

	// Dirty is set by every local edit and cleared only after the remote
	// endpoint acknowledged the same Version.
	Dirty bool

	// Version increases by one on every local edit.
	Version int64

	// LastSavedAt is the time of the last local write (UTC).
	LastSavedAt time.Time

	// SyncedAt is the time the remote last acknowledged this draft; zero if never.
	SyncedAt time.Time
}
