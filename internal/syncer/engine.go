// Package syncer is the sync orchestrator: the single application-facing
// object that schedules sync passes, keeps the counts shown to the user and
// derives the aggregate sync status.
//
// All pass triggers (timers, connectivity restoration, SyncNow, RetryFailed)
// go through one guard. At most one pass runs at a time; triggers that
// arrive while a pass runs coalesce into a single follow-up pass.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/connectivity"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/queue"
	"github.com/markahope-aag/hazardos-sub008/internal/store"
	"github.com/markahope-aag/hazardos-sub008/internal/worker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DraftClient saves a draft remotely and returns the acknowledged version.
type DraftClient interface {
	SaveDraft(ctx context.Context, d *models.SurveyDraft) (int64, error)
}

// Uploads runs one upload pass over the photo queue.
type Uploads interface {
	Process(ctx context.Context) (worker.Result, error)
}

// Connectivity reports and announces online/offline transitions.
type Connectivity interface {
	IsOnline() bool
	Subscribe(l connectivity.Listener) func()
}

// QuotaEstimator reads device storage usage.
type QuotaEstimator interface {
	Estimate(ctx context.Context) (models.StorageEstimate, error)
}

// Listener receives a snapshot after every recomputation.
type Listener func(models.Snapshot)

type Options struct {
	// PollInterval refreshes counts and the storage estimate. No network I/O.
	PollInterval time.Duration
	// SyncInterval starts a periodic pass while online.
	SyncInterval time.Duration
	// MaxAttempts is used to recover uploads interrupted by a restart.
	MaxAttempts int
	// UploadedRetention is how long uploaded items are kept before pruning.
	// A negative value disables pruning.
	UploadedRetention time.Duration
}

// DefaultOptions returns the standard scheduling.
func DefaultOptions() Options {
	return Options{
		PollInterval: 5 * time.Second,
		SyncInterval: 30 * time.Second,
		MaxAttempts:  3,
	}
}

// Deps are the collaborators of an Engine.
type Deps struct {
	Store        *store.Store
	Queue        *queue.Queue
	Drafts       DraftClient
	Uploads      Uploads
	Connectivity Connectivity
	Quota        QuotaEstimator
	Logger       logging.Logger
}

// pass is one scheduled sync pass. done is closed after the pass finished
// and the resulting snapshot was published.
type pass struct {
	done chan struct{}
	ok   bool
}

type Engine struct {
	store   *store.Store
	queue   *queue.Queue
	drafts  DraftClient
	uploads Uploads
	conn    Connectivity
	quota   QuotaEstimator
	opts    Options
	log     logging.Logger
	tracer  trace.Tracer
	now     func() time.Time

	mu          sync.Mutex
	baseCtx     context.Context
	current     *pass
	next        *pass
	passes      sync.WaitGroup
	stopped     bool
	editing     bool
	lastSyncAt  time.Time
	lastErr     string
	lastFailed  bool
	storageDown bool
	pendingSurv int
	counts      models.PhotoCounts
	estimate    models.StorageEstimate

	listeners map[int]Listener
	order     []int
	nextID    int
	notifyMu  sync.Mutex
}

func New(d Deps, opts Options) *Engine {
	log := d.Logger
	if log == nil {
		log = logging.Nop()
	}
	return &Engine{
		store:     d.Store,
		queue:     d.Queue,
		drafts:    d.Drafts,
		uploads:   d.Uploads,
		conn:      d.Connectivity,
		quota:     d.Quota,
		opts:      opts,
		log:       log.With("component", "syncer"),
		tracer:    otel.Tracer("fieldsync/syncer"),
		now:       time.Now,
		baseCtx:   context.Background(),
		listeners: make(map[int]Listener),
	}
}

// WithClock replaces the time source.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Start recovers state left by a previous run and then schedules polls and
// passes until ctx is done. It waits for a running pass before returning.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	e.baseCtx = ctx
	e.stopped = false
	e.mu.Unlock()

	if err := e.Recover(ctx); err != nil {
		return err
	}

	unsubscribe := e.conn.Subscribe(e.onConnectivity)
	defer unsubscribe()

	if e.conn.IsOnline() {
		e.trigger()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.tick(gctx, e.opts.PollInterval, func() { e.Refresh(gctx) })
		return nil
	})
	g.Go(func() error {
		e.tick(gctx, e.opts.SyncInterval, func() {
			if e.conn.IsOnline() {
				e.trigger()
			}
		})
		return nil
	})
	err := g.Wait()

	// no pass may start once the wait below begins
	e.mu.Lock()
	e.stopped = true
	e.mu.Unlock()
	e.passes.Wait()
	return err
}

func (e *Engine) tick(ctx context.Context, d time.Duration, fn func()) {
	if d <= 0 {
		return
	}
	ticker := time.NewTicker(d)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Recover loads persisted metadata, fails uploads interrupted by a restart
// and refreshes the counts.
func (e *Engine) Recover(ctx context.Context) error {
	last, err := e.store.LastSyncAt(ctx)
	if err != nil {
		e.noteStorageErr(err)
		return fmt.Errorf("load sync metadata: %w", err)
	}
	e.mu.Lock()
	e.lastSyncAt = last
	e.mu.Unlock()

	if _, err := e.queue.RecoverStale(ctx, e.opts.MaxAttempts); err != nil {
		e.noteStorageErr(err)
		return fmt.Errorf("recover interrupted uploads: %w", err)
	}
	e.Refresh(ctx)
	return nil
}

func (e *Engine) onConnectivity(online bool) {
	if online {
		e.log.Info(e.baseContext(), "online, starting sync")
		e.trigger()
		return
	}
	e.publish()
}

func (e *Engine) baseContext() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseCtx
}

// trigger schedules a pass and returns it. While a pass runs, every trigger
// returns the same follow-up pass. After Start has stopped the returned pass
// is already done and failed.
func (e *Engine) trigger() *pass {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		p := &pass{done: make(chan struct{})}
		close(p.done)
		return p
	}
	if e.current != nil {
		if e.next == nil {
			e.next = &pass{done: make(chan struct{})}
		}
		p := e.next
		e.mu.Unlock()
		return p
	}
	p := &pass{done: make(chan struct{})}
	e.current = p
	e.passes.Add(1)
	ctx := e.baseCtx
	e.mu.Unlock()

	e.publish()
	go e.run(ctx, p)
	return p
}

func (e *Engine) run(ctx context.Context, p *pass) {
	defer e.passes.Done()

	for p != nil {
		p.ok = e.runPass(ctx)

		e.mu.Lock()
		next := e.next
		e.next = nil
		e.current = next
		e.mu.Unlock()

		e.publish()
		close(p.done)
		p = next
	}
}

// SyncNow runs a full pass (draft save and queue drain) and reports whether
// it succeeded. Offline it returns false at once without touching the
// network. If a pass is already running, SyncNow waits for the follow-up
// pass.
func (e *Engine) SyncNow(ctx context.Context) bool {
	if !e.conn.IsOnline() {
		return false
	}
	p := e.trigger()
	select {
	case <-p.done:
		return p.ok
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) runPass(ctx context.Context) bool {
	ctx, span := e.tracer.Start(ctx, "sync.pass")
	defer span.End()

	if !e.conn.IsOnline() {
		span.SetAttributes(attribute.Bool("sync.skipped", true))
		e.Refresh(ctx)
		return false
	}

	var errs []error
	// Passes never overlap, so nothing is uploading yet. A row still in
	// that state was left by a pass whose store writes failed.
	if _, err := e.queue.RecoverStale(ctx, e.opts.MaxAttempts); err != nil {
		errs = append(errs, fmt.Errorf("recover photos: %w", err))
	}
	if _, err := e.queue.RequeueDue(ctx); err != nil {
		errs = append(errs, fmt.Errorf("requeue photos: %w", err))
	}
	if err := e.saveDrafts(ctx); err != nil {
		errs = append(errs, err)
	}

	res, err := e.uploads.Process(ctx)
	if err != nil && !errors.Is(err, worker.ErrBusy) {
		errs = append(errs, fmt.Errorf("upload photos: %w", err))
	}
	span.SetAttributes(
		attribute.Int("photos.uploaded", res.Uploaded),
		attribute.Int("photos.failed", res.Failed),
	)

	if e.opts.UploadedRetention >= 0 {
		if _, err := e.queue.PruneUploaded(ctx, e.now().Add(-e.opts.UploadedRetention)); err != nil {
			errs = append(errs, err)
		}
	}

	err = errors.Join(errs...)
	e.finishPass(ctx, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "sync pass failed")
	}

	e.Refresh(ctx)
	return err == nil
}

func (e *Engine) finishPass(ctx context.Context, err error) {
	if err != nil {
		e.log.Error(ctx, "sync pass failed", "err", err)
		e.mu.Lock()
		e.lastErr = err.Error()
		e.lastFailed = true
		e.mu.Unlock()
		e.noteStorageErr(err)
		return
	}

	now := e.now()
	e.mu.Lock()
	e.lastSyncAt = now
	e.lastErr = ""
	e.lastFailed = false
	e.mu.Unlock()

	if err := e.store.SetLastSyncAt(ctx, now); err != nil {
		e.log.Warn(ctx, "persisting last sync time failed", "err", err)
		e.noteStorageErr(err)
	}
	e.log.Debug(ctx, "sync pass finished")
}

// saveDrafts pushes every dirty draft. A failed draft stays dirty and is
// retried on the next pass.
func (e *Engine) saveDrafts(ctx context.Context) error {
	list, err := e.store.ListPendingSurveys(ctx)
	if err != nil {
		return fmt.Errorf("list pending surveys: %w", err)
	}

	var errs []error
	for _, d := range list {
		if !e.conn.IsOnline() {
			break
		}
		if err := e.saveDraft(ctx, d); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (e *Engine) saveDraft(ctx context.Context, d *models.SurveyDraft) error {
	ctx, span := e.tracer.Start(ctx, "draft.save", trace.WithAttributes(
		attribute.String("survey.id", d.ID),
		attribute.Int64("draft.version", d.Version),
	))
	defer span.End()

	version, err := e.drafts.SaveDraft(ctx, d)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "draft save failed")
		e.log.Warn(ctx, "draft save failed", "survey_id", d.ID, "version", d.Version, "err", err)
		return fmt.Errorf("%w: survey %s: %w", common.ErrDraftSave, d.ID, err)
	}

	cleared, err := e.store.MarkDraftSynced(ctx, d.ID, version)
	if err != nil {
		return fmt.Errorf("mark survey %s synced: %w", d.ID, err)
	}
	if !cleared {
		e.log.Debug(ctx, "draft edited during save, keeping it dirty", "survey_id", d.ID, "version", version)
	}
	return nil
}

// RetryFailed returns every failed photo to the queue and starts a pass if
// online.
func (e *Engine) RetryFailed(ctx context.Context) (int, error) {
	n, err := e.queue.RetryFailed(ctx)
	if err != nil {
		e.noteStorageErr(err)
		e.publish()
		return 0, err
	}
	e.Refresh(ctx)
	if n > 0 && e.conn.IsOnline() {
		e.trigger()
	}
	return n, nil
}

// SaveDraft persists a local edit. It never touches the network.
func (e *Engine) SaveDraft(ctx context.Context, id string, content []byte) (*models.SurveyDraft, error) {
	d, err := e.store.SaveDraft(ctx, id, content)
	if err != nil {
		e.noteStorageErr(err)
		e.publish()
		return nil, err
	}
	e.Refresh(ctx)
	return d, nil
}

func (e *Engine) Draft(ctx context.Context, id string) (*models.SurveyDraft, error) {
	return e.store.Draft(ctx, id)
}

// SetEditing reports whether the open form holds unsaved edits.
func (e *Engine) SetEditing(editing bool) {
	e.mu.Lock()
	changed := e.editing != editing
	e.editing = editing
	e.mu.Unlock()
	if changed {
		e.publish()
	}
}

// CapturePhoto stores a photo and queues it for upload.
func (e *Engine) CapturePhoto(ctx context.Context, surveyID, filename, contentType string, data []byte) (*models.PhotoQueueItem, error) {
	it, err := e.queue.Enqueue(ctx, queue.Photo{
		SurveyID:    surveyID,
		Filename:    filename,
		ContentType: contentType,
		Data:        data,
	})
	if err != nil {
		e.noteStorageErr(err)
		e.publish()
		return nil, err
	}
	e.Refresh(ctx)
	return it, nil
}

// DiscardPhoto removes a failed photo on explicit request.
func (e *Engine) DiscardPhoto(ctx context.Context, id string) error {
	if err := e.queue.Discard(ctx, id); err != nil {
		return err
	}
	e.Refresh(ctx)
	return nil
}

func (e *Engine) FailedPhotos(ctx context.Context) ([]*models.PhotoQueueItem, error) {
	return e.queue.Failed(ctx)
}

// Refresh rereads the counts and the storage estimate, publishes and
// returns the snapshot.
func (e *Engine) Refresh(ctx context.Context) models.Snapshot {
	pendingSurv, errS := e.store.CountPendingSurveys(ctx)
	counts, errC := e.queue.Counts(ctx)

	var est models.StorageEstimate
	var errQ error
	if e.quota != nil {
		est, errQ = e.quota.Estimate(ctx)
		if errQ != nil {
			e.log.Warn(ctx, "storage estimate failed", "err", errQ)
		}
	}

	e.mu.Lock()
	if errS == nil {
		e.pendingSurv = pendingSurv
	}
	if errC == nil {
		e.counts = counts
	}
	if errQ == nil && e.quota != nil {
		e.estimate = est
	}
	e.storageDown = isStorageErr(errS) || isStorageErr(errC)
	e.mu.Unlock()

	if err := errors.Join(errS, errC); err != nil {
		e.log.Error(ctx, "refreshing counts failed", "err", err)
	}
	return e.publish()
}

func isStorageErr(err error) bool {
	return errors.Is(err, common.ErrStorageUnavailable)
}

func (e *Engine) noteStorageErr(err error) {
	if !isStorageErr(err) {
		return
	}
	e.mu.Lock()
	e.storageDown = true
	e.mu.Unlock()
}

// Status returns the latest snapshot without touching the store.
func (e *Engine) Status() models.Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() models.Snapshot {
	online := e.conn.IsOnline()
	pendingPhotos := e.counts[models.PhotoPending] + e.counts[models.PhotoUploading]

	return models.Snapshot{
		Status: deriveStatus(statusInputs{
			online:         online,
			syncing:        e.current != nil,
			failed:         e.lastFailed || e.storageDown,
			editing:        e.editing,
			pendingSurveys: e.pendingSurv,
			pendingPhotos:  pendingPhotos,
		}),
		IsOnline:           online,
		PendingSurveys:     e.pendingSurv,
		PendingPhotos:      pendingPhotos,
		FailedPhotos:       e.counts[models.PhotoFailed],
		StorageUsed:        e.estimate.Usage,
		StorageQuota:       e.estimate.Quota,
		StoragePercentUsed: e.estimate.PercentUsed,
		StorageUnavailable: e.storageDown,
		LastSyncAt:         e.lastSyncAt,
		LastSyncError:      e.lastErr,
	}
}

// Subscribe registers l for every published snapshot and returns a function
// that removes it. Listeners must not block.
func (e *Engine) Subscribe(l Listener) func() {
	e.mu.Lock()
	id := e.nextID
	e.nextID++
	e.listeners[id] = l
	e.order = append(e.order, id)
	e.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			e.mu.Lock()
			defer e.mu.Unlock()
			delete(e.listeners, id)
			for i, v := range e.order {
				if v == id {
					e.order = append(e.order[:i], e.order[i+1:]...)
					break
				}
			}
		})
	}
}

// publish computes a snapshot and hands it to the listeners in order.
func (e *Engine) publish() models.Snapshot {
	e.notifyMu.Lock()
	defer e.notifyMu.Unlock()

	e.mu.Lock()
	snap := e.snapshotLocked()
	ls := make([]Listener, 0, len(e.order))
	for _, id := range e.order {
		ls = append(ls, e.listeners[id])
	}
	e.mu.Unlock()

	for _, l := range ls {
		l(snap)
	}
	return snap
}
