// Package common defines shared constants and sentinel errors used across
// the sync engine layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when a queue item is moved out of a
	// status that does not allow the requested transition.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorageUnavailable means the durable local store itself is failing
	// (disk full, permissions revoked, I/O error, closed database).
	ErrStorageUnavailable = errors.New("local storage unavailable")

	// ErrOffline is returned when a network operation is requested while the
	// device is offline.
	ErrOffline = errors.New("offline")

	// Upload error classes.
	ErrTransientUpload = errors.New("transient upload error")
	ErrPermanentUpload = errors.New("permanent upload error")

	// ErrDraftSave wraps any failure to save a survey draft remotely.
	ErrDraftSave = errors.New("draft save failed")
)

// Transient marks err as retryable. A nil err stays nil.
func Transient(err error) error {
	if err == nil || errors.Is(err, ErrTransientUpload) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransientUpload, err)
}

// Permanent marks err as non-retryable. A nil err stays nil.
func Permanent(err error) error {
	if err == nil || errors.Is(err, ErrPermanentUpload) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPermanentUpload, err)
}

// IsPermanent reports whether err was classified as non-retryable.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanentUpload)
}

// IsTransient reports whether err should be retried. Unclassified errors are
// treated as transient so that nothing is dropped by mistake.
func IsTransient(err error) bool {
	return err != nil && !IsPermanent(err)
}
