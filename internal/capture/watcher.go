// Package capture ingests photos dropped into an inbox directory laid out as
// <inbox>/<surveyID>/<file>. Ingested files are removed from the inbox.
package capture

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/queue"
)

// Ingester stores a captured photo.
type Ingester interface {
	CapturePhoto(ctx context.Context, surveyID, filename, contentType string, data []byte) (*models.PhotoQueueItem, error)
}

const (
	defaultSettle = 500 * time.Millisecond
	// retryDelay is how long a file whose ingest failed waits before the
	// next attempt.
	retryDelay = 5 * time.Second
)

// Watcher watches the inbox. A file is ingested once no event was seen for it
// during the settle period, so partially written files are not picked up.
type Watcher struct {
	dir    string
	ing    Ingester
	log    logging.Logger
	settle time.Duration

	mu sync.Mutex
	// pending maps a path to the time it becomes ready for ingest.
	pending map[string]time.Time
}

func New(dir string, ing Ingester, settle time.Duration, log logging.Logger) *Watcher {
	if log == nil {
		log = logging.Nop()
	}
	if settle <= 0 {
		settle = defaultSettle
	}
	return &Watcher{
		dir:     dir,
		ing:     ing,
		log:     log.With("component", "capture"),
		settle:  settle,
		pending: make(map[string]time.Time),
	}
}

// Scan ingests every file already in the inbox and returns how many were
// ingested.
func (w *Watcher) Scan(ctx context.Context) (int, error) {
	n := 0
	err := filepath.WalkDir(w.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			if path != w.dir && w.depth(path) > 1 {
				return filepath.SkipDir
			}
			return nil
		}
		if ok, _ := w.ingest(ctx, path); ok {
			n++
		}
		return nil
	})
	if err != nil {
		return n, fmt.Errorf("scan inbox %s: %w", w.dir, err)
	}
	return n, nil
}

// Run creates the inbox if needed, ingests what is already there and then
// watches for new files until ctx is done.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o750); err != nil {
		return fmt.Errorf("create inbox %s: %w", w.dir, err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch inbox %s: %w", w.dir, err)
	}
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("read inbox %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() {
			w.watchDir(fw, filepath.Join(w.dir, e.Name()))
		}
	}

	if n, err := w.Scan(ctx); err != nil {
		w.log.Warn(ctx, "initial inbox scan failed", "err", err)
	} else if n > 0 {
		w.log.Info(ctx, "ingested photos from inbox", "count", n)
	}

	ticker := time.NewTicker(w.settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			w.handle(ctx, fw, event)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.log.Warn(ctx, "inbox watcher error", "err", err)

		case <-ticker.C:
			w.flush(ctx, time.Now())
		}
	}
}

func (w *Watcher) handle(ctx context.Context, fw *fsnotify.Watcher, event fsnotify.Event) {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) {
		return
	}
	info, err := os.Stat(event.Name)
	if err != nil {
		return
	}

	switch depth := w.depth(event.Name); {
	case info.IsDir() && depth == 1:
		w.watchDir(fw, event.Name)
		// files may have landed before the watch was in place
		entries, err := os.ReadDir(event.Name)
		if err != nil {
			w.log.Warn(ctx, "read survey inbox failed", "path", event.Name, "err", err)
			return
		}
		for _, e := range entries {
			if !e.IsDir() {
				w.touch(filepath.Join(event.Name, e.Name()), time.Now())
			}
		}
	case !info.IsDir() && depth == 2:
		w.touch(event.Name, time.Now())
	}
}

func (w *Watcher) watchDir(fw *fsnotify.Watcher, path string) {
	if err := fw.Add(path); err != nil {
		w.log.Warn(context.Background(), "failed to watch survey inbox", "path", path, "err", err)
	}
}

// touch records an event for path seen at at.
func (w *Watcher) touch(path string, at time.Time) {
	w.schedule(path, at.Add(w.settle))
}

func (w *Watcher) schedule(path string, readyAt time.Time) {
	w.mu.Lock()
	w.pending[path] = readyAt
	w.mu.Unlock()
}

// flush ingests files that have been quiet for the settle period. Files that
// failed with a retryable error are scheduled again.
func (w *Watcher) flush(ctx context.Context, now time.Time) {
	var ready []string
	w.mu.Lock()
	for path, readyAt := range w.pending {
		if !now.Before(readyAt) {
			ready = append(ready, path)
			delete(w.pending, path)
		}
	}
	w.mu.Unlock()

	for _, path := range ready {
		if _, retry := w.ingest(ctx, path); retry {
			w.schedule(path, now.Add(retryDelay))
		}
	}
}

// depth is the number of path elements below the inbox.
func (w *Watcher) depth(path string) int {
	rel, err := filepath.Rel(w.dir, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return 0
	}
	return len(strings.Split(rel, string(filepath.Separator)))
}

// ingest reports whether path was stored, and otherwise whether trying again
// later could succeed.
func (w *Watcher) ingest(ctx context.Context, path string) (ok, retry bool) {
	if w.depth(path) != 2 {
		return false, false
	}
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") {
		return false, false
	}
	surveyID := filepath.Base(filepath.Dir(path))

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, false
		}
		w.log.Warn(ctx, "read captured photo failed", "path", path, "err", err)
		return false, true
	}

	it, err := w.ing.CapturePhoto(ctx, surveyID, name, mime.TypeByExtension(filepath.Ext(name)), data)
	if err != nil {
		if errors.Is(err, queue.ErrEmptyPhoto) {
			return false, false
		}
		w.log.Error(ctx, "ingest captured photo failed", "path", path, "survey_id", surveyID, "err", err)
		return false, true
	}

	if err := os.Remove(path); err != nil {
		w.log.Warn(ctx, "remove ingested photo failed", "path", path, "item_id", it.ID, "err", err)
	}
	w.log.Debug(ctx, "photo ingested", "item_id", it.ID, "survey_id", surveyID, "filename", name)
	return true, false
}
