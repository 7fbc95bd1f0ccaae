// Package quota reports how much device storage the engine uses and how
// much it may use. Estimates are advisory: nothing in the engine refuses a
// write because of them.
package quota

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/markahope-aag/hazardos-sub008/internal/models"
)

var errUnsupported = errors.New("filesystem statistics are not supported on this platform")

// UsageFunc reports bytes used by the engine.
type UsageFunc func(ctx context.Context) (int64, error)

type Monitor struct {
	dir   string
	usage UsageFunc
	quota int64

	// free returns the bytes still available to the process on the
	// filesystem holding path.
	free func(path string) (int64, error)
}

// New builds a monitor for the data directory dir. When usage is nil the
// size of the files under dir is used. A positive quota overrides the
// filesystem-derived quota.
func New(dir string, usage UsageFunc, quota int64) *Monitor {
	m := &Monitor{dir: dir, usage: usage, quota: quota, free: availableBytes}
	if m.usage == nil {
		m.usage = func(ctx context.Context) (int64, error) { return DirSize(ctx, dir) }
	}
	return m
}

// Estimate reads usage and quota fresh. Without a configured quota the
// quota is usage plus the space still available on the filesystem.
func (m *Monitor) Estimate(ctx context.Context) (models.StorageEstimate, error) {
	usage, err := m.usage(ctx)
	if err != nil {
		return models.StorageEstimate{}, fmt.Errorf("storage usage: %w", err)
	}
	if m.quota > 0 {
		return models.NewStorageEstimate(usage, m.quota), nil
	}

	free, err := m.free(m.dir)
	if errors.Is(err, errUnsupported) {
		return models.NewStorageEstimate(usage, 0), nil
	}
	if err != nil {
		return models.StorageEstimate{}, fmt.Errorf("storage quota: %w", err)
	}
	return models.NewStorageEstimate(usage, usage+free), nil
}

// DirSize sums the sizes of regular files below dir. A missing dir is empty.
func DirSize(ctx context.Context, dir string) (int64, error) {
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !d.Type().IsRegular() {
			return nil
		}
		info, err := d.Info()
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		total += info.Size()
		return nil
	})
	return total, err
}
