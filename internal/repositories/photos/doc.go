// Package photos provides the SQLite persistence layer behind the photo
// upload queue.
//
// Rows are ordered by an autoincrement sequence, which gives FIFO order
// independent of clock resolution. Status changes are guarded in SQL: each
// transition only matches rows in the expected source status, and a miss is
// reported as common.ErrInvalidTransition (or common.ErrorNotFound when the
// item does not exist).
package photos
