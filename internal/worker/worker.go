// Package worker drains the photo queue against the upload endpoint.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/queue"
	"github.com/markahope-aag/hazardos-sub008/internal/remote"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const releaseTimeout = 5 * time.Second

// ErrBusy is returned when a pass is requested while another one runs.
var ErrBusy = errors.New("upload pass already running")

// Queue is the part of the photo queue the worker drives.
type Queue interface {
	DequeueNext(ctx context.Context) (*models.PhotoQueueItem, error)
	MarkUploading(ctx context.Context, id string) error
	MarkUploaded(ctx context.Context, id, remoteURL string) error
	MarkFailed(ctx context.Context, id string, f queue.Failure) error
	Blob(ctx context.Context, it *models.PhotoQueueItem) ([]byte, error)
}

type Options struct {
	// MaxAttempts bounds automatic retries of transient failures.
	MaxAttempts int
	// Timeout bounds a single upload.
	Timeout time.Duration
	// BackoffBase and BackoffMax shape the exponential delay before an
	// automatic retry.
	BackoffBase time.Duration
	BackoffMax  time.Duration
}

// Result summarises one pass.
type Result struct {
	Uploaded int
	Failed   int
	// Frozen counts failures that will not be retried automatically.
	Frozen int
}

type Worker struct {
	queue    Queue
	uploader remote.Uploader
	online   func() bool
	opts     Options
	log      logging.Logger
	tracer   trace.Tracer
	now      func() time.Time

	running atomic.Bool
}

// New creates a worker. online is consulted before every item so a lost
// connection stops new uploads without cancelling the one in flight.
func New(q Queue, up remote.Uploader, online func() bool, opts Options, log logging.Logger) *Worker {
	if log == nil {
		log = logging.Nop()
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	return &Worker{
		queue:    q,
		uploader: up,
		online:   online,
		opts:     opts,
		log:      log.With("component", "upload_worker"),
		tracer:   otel.Tracer("fieldsync/worker"),
		now:      time.Now,
	}
}

// WithClock replaces the time source used for retry scheduling.
func (w *Worker) WithClock(now func() time.Time) *Worker {
	w.now = now
	return w
}

// Process runs one pass: it uploads pending items oldest first until the
// queue is empty, the device goes offline or ctx ends. Per-item upload
// failures are recorded on the item; the returned error is reserved for
// store failures and ErrBusy.
func (w *Worker) Process(ctx context.Context) (Result, error) {
	var res Result
	if !w.running.CompareAndSwap(false, true) {
		return res, ErrBusy
	}
	defer w.running.Store(false)

	for ctx.Err() == nil && w.online() {
		it, err := w.queue.DequeueNext(ctx)
		if err != nil {
			return res, fmt.Errorf("dequeue photo: %w", err)
		}
		if it == nil {
			break
		}
		if err := w.processItem(ctx, it, &res); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (w *Worker) processItem(ctx context.Context, it *models.PhotoQueueItem, res *Result) error {
	ctx, span := w.tracer.Start(ctx, "photo.upload", trace.WithAttributes(
		attribute.String("photo.id", it.ID),
		attribute.String("survey.id", it.SurveyID),
		attribute.Int("photo.attempt", it.Attempts+1),
	))
	defer span.End()

	log := w.log.With("item_id", it.ID, "survey_id", it.SurveyID, "attempt", it.Attempts+1)

	if err := w.queue.MarkUploading(ctx, it.ID); err != nil {
		return fmt.Errorf("mark photo %s uploading: %w", it.ID, err)
	}

	data, err := w.queue.Blob(ctx, it)
	if errors.Is(err, common.ErrorNotFound) {
		err = common.Permanent(fmt.Errorf("photo data missing: %w", err))
		return w.record(ctx, log, span, it, err, res)
	}
	if err != nil {
		err = fmt.Errorf("read photo %s: %w", it.ID, err)
		w.release(ctx, log, span, it, common.Transient(err), res)
		return err
	}

	upCtx, cancel := context.WithTimeout(ctx, w.opts.Timeout)
	out, err := w.uploader.Upload(upCtx, remote.UploadRequest{
		ID:          it.ID,
		SurveyID:    it.SurveyID,
		Filename:    it.Filename,
		ContentType: it.ContentType,
		Data:        data,
	})
	cancel()
	if err != nil {
		return w.record(ctx, log, span, it, err, res)
	}

	if err := w.queue.MarkUploaded(ctx, it.ID, out.URL); err != nil {
		// the upload may be repeated; the object key makes that harmless
		err = fmt.Errorf("mark photo %s uploaded: %w", it.ID, err)
		w.release(ctx, log, span, it, common.Transient(err), res)
		return err
	}
	res.Uploaded++
	log.Info(ctx, "photo uploaded", "url", out.URL, "size", out.Size)
	return nil
}

// record stores an upload failure. If that fails the item is released with
// the same cause and the store error ends the pass.
func (w *Worker) record(ctx context.Context, log logging.Logger, span trace.Span, it *models.PhotoQueueItem, cause error, res *Result) error {
	err := w.fail(ctx, log, span, it, cause, res)
	if err != nil {
		w.release(ctx, log, span, it, cause, res)
	}
	return err
}

func (w *Worker) fail(ctx context.Context, log logging.Logger, span trace.Span, it *models.PhotoQueueItem, cause error, res *Result) error {
	span.RecordError(cause)
	span.SetStatus(codes.Error, "upload failed")

	attempts := it.Attempts + 1
	f := queue.Failure{Err: cause}
	if !common.IsPermanent(cause) && attempts < w.opts.MaxAttempts {
		f.Retryable = true
		f.RetryAt = w.now().Add(w.backoff(attempts))
	}

	if err := w.queue.MarkFailed(ctx, it.ID, f); err != nil {
		return fmt.Errorf("mark photo %s failed: %w", it.ID, err)
	}

	res.Failed++
	if f.Retryable {
		log.Warn(ctx, "photo upload failed, will retry", "err", cause, "retry_at", f.RetryAt)
	} else {
		res.Frozen++
		log.Error(ctx, "photo upload failed", "err", cause, "permanent", common.IsPermanent(cause))
	}
	return nil
}

// release records cause on an item this pass claimed after a local error,
// so it leaves uploading and is retried instead of waiting for the next
// start. It uses a fresh context because ctx may be the reason for the error.
func (w *Worker) release(ctx context.Context, log logging.Logger, span trace.Span, it *models.PhotoQueueItem, cause error, res *Result) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := w.fail(rctx, log, span, it, cause, res); err != nil {
		log.Error(ctx, "photo left uploading", "err", err)
	}
}

// backoff is the delay before retry number attempt (1-based).
func (w *Worker) backoff(attempt int) time.Duration {
	if w.opts.BackoffBase <= 0 {
		return 0
	}
	b := retry.NewExponential(w.opts.BackoffBase)
	if w.opts.BackoffMax > 0 {
		b = retry.WithCappedDuration(w.opts.BackoffMax, b)
	}
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}
