package worker

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"github.com/markahope-aag/hazardos-sub008/internal/queue"
	"github.com/markahope-aag/hazardos-sub008/internal/remote"
	"github.com/markahope-aag/hazardos-sub008/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeUploader returns the queued errors in order, then succeeds.
type fakeUploader struct {
	mu    sync.Mutex
	errs  []error
	calls []remote.UploadRequest
	block chan struct{}
}

func (f *fakeUploader) Upload(ctx context.Context, req remote.UploadRequest) (remote.UploadResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	var err error
	if len(f.errs) > 0 {
		err, f.errs = f.errs[0], f.errs[1:]
	}
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return remote.UploadResult{}, ctx.Err()
		}
	}
	if err != nil {
		return remote.UploadResult{}, err
	}
	return remote.UploadResult{URL: "https://cdn/" + req.ID, Size: int64(len(req.Data))}, nil
}

func (f *fakeUploader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type env struct {
	q      *queue.Queue
	up     *fakeUploader
	w      *Worker
	online atomic.Bool
}

func newEnv(t *testing.T, opts Options) *env {
	t.Helper()
	st, err := store.Open(context.Background(), store.FileDSN(filepath.Join(t.TempDir(), "w.db")), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	_, err = st.SaveDraft(context.Background(), "s1", []byte("{}"))
	require.NoError(t, err)

	e := &env{q: queue.New(st, nil), up: &fakeUploader{}}
	e.online.Store(true)
	e.w = New(e.q, e.up, e.online.Load, opts, nil)
	return e
}

func (e *env) enqueue(t *testing.T, name string) *models.PhotoQueueItem {
	t.Helper()
	it, err := e.q.Enqueue(context.Background(), queue.Photo{SurveyID: "s1", Filename: name, Data: []byte(name)})
	require.NoError(t, err)
	return it
}

func (e *env) get(t *testing.T, id string) *models.PhotoQueueItem {
	t.Helper()
	it, err := e.q.Get(context.Background(), id)
	require.NoError(t, err)
	return it
}

// nextPass mimics the orchestrator: due retries are requeued before the pass.
func (e *env) nextPass(t *testing.T) Result {
	t.Helper()
	_, err := e.q.RequeueDue(context.Background())
	require.NoError(t, err)
	res, err := e.w.Process(context.Background())
	require.NoError(t, err)
	return res
}

var defaultOpts = Options{MaxAttempts: 3, Timeout: time.Second}

func TestProcess_UploadsFIFO(t *testing.T) {
	e := newEnv(t, defaultOpts)
	a := e.enqueue(t, "a.jpg")
	b := e.enqueue(t, "b.jpg")
	c := e.enqueue(t, "c.jpg")

	res := e.nextPass(t)
	assert.Equal(t, Result{Uploaded: 3}, res)

	require.Len(t, e.up.calls, 3)
	assert.Equal(t, []string{a.ID, b.ID, c.ID},
		[]string{e.up.calls[0].ID, e.up.calls[1].ID, e.up.calls[2].ID})
	assert.Equal(t, []byte("a.jpg"), e.up.calls[0].Data)

	got := e.get(t, b.ID)
	assert.Equal(t, models.PhotoUploaded, got.Status)
	assert.Equal(t, "https://cdn/"+b.ID, got.RemoteURL)
	assert.Equal(t, 1, got.Attempts)
}

func TestProcess_OfflineIsNoop(t *testing.T) {
	e := newEnv(t, defaultOpts)
	a := e.enqueue(t, "a.jpg")
	e.online.Store(false)

	res, err := e.w.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{}, res)
	assert.Zero(t, e.up.callCount())
	assert.Equal(t, models.PhotoPending, e.get(t, a.ID).Status)
}

// Two 5xx answers then success with MaxAttempts=3.
func TestProcess_TransientThenSuccess(t *testing.T) {
	e := newEnv(t, defaultOpts)
	e.up.errs = []error{
		common.Transient(errors.New("503 service unavailable")),
		common.Transient(errors.New("502 bad gateway")),
	}
	it := e.enqueue(t, "a.jpg")

	res := e.nextPass(t)
	assert.Equal(t, Result{Failed: 1}, res)
	got := e.get(t, it.ID)
	assert.Equal(t, models.PhotoFailed, got.Status)
	assert.True(t, got.Retryable)
	assert.Equal(t, 1, got.Attempts)

	res = e.nextPass(t)
	assert.Equal(t, Result{Failed: 1}, res)
	assert.Equal(t, 2, e.get(t, it.ID).Attempts)

	res = e.nextPass(t)
	assert.Equal(t, Result{Uploaded: 1}, res)
	got = e.get(t, it.ID)
	assert.Equal(t, models.PhotoUploaded, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.Equal(t, 3, e.up.callCount())
}

// A 4xx answer fails the item at once and it stays failed until a manual retry.
func TestProcess_PermanentFailure(t *testing.T) {
	e := newEnv(t, defaultOpts)
	e.up.errs = []error{common.Permanent(errors.New("400 bad request"))}
	it := e.enqueue(t, "a.jpg")

	res := e.nextPass(t)
	assert.Equal(t, Result{Failed: 1, Frozen: 1}, res)
	got := e.get(t, it.ID)
	assert.Equal(t, models.PhotoFailed, got.Status)
	assert.Equal(t, 1, got.Attempts)
	assert.False(t, got.Retryable)

	res = e.nextPass(t)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, e.up.callCount())

	failed, err := e.q.FailedCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, failed)

	_, err = e.q.RetryFailed(context.Background())
	require.NoError(t, err)
	res = e.nextPass(t)
	assert.Equal(t, Result{Uploaded: 1}, res)
	assert.Equal(t, 2, e.get(t, it.ID).Attempts)
}

func TestProcess_FreezesAfterMaxAttempts(t *testing.T) {
	e := newEnv(t, defaultOpts)
	boom := common.Transient(errors.New("500"))
	e.up.errs = []error{boom, boom, boom, boom}
	it := e.enqueue(t, "a.jpg")

	for i := 0; i < 5; i++ {
		e.nextPass(t)
	}
	got := e.get(t, it.ID)
	assert.Equal(t, models.PhotoFailed, got.Status)
	assert.Equal(t, 3, got.Attempts)
	assert.False(t, got.Retryable)
	assert.Equal(t, 3, e.up.callCount())
}

func TestProcess_TimeoutIsTransient(t *testing.T) {
	e := newEnv(t, Options{MaxAttempts: 3, Timeout: 20 * time.Millisecond})
	e.up.block = make(chan struct{})
	it := e.enqueue(t, "a.jpg")

	res := e.nextPass(t)
	assert.Equal(t, Result{Failed: 1}, res)
	got := e.get(t, it.ID)
	assert.True(t, got.Retryable)
	assert.Contains(t, got.LastError, "deadline exceeded")
}

func TestProcess_BackoffDelaysRetry(t *testing.T) {
	e := newEnv(t, Options{MaxAttempts: 5, Timeout: time.Second, BackoffBase: time.Minute, BackoffMax: 10 * time.Minute})
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	e.w.WithClock(func() time.Time { return now })
	e.q.WithClock(func() time.Time { return now })
	e.up.errs = []error{common.Transient(errors.New("503"))}
	it := e.enqueue(t, "a.jpg")

	e.nextPass(t)
	got := e.get(t, it.ID)
	assert.True(t, got.NextAttemptAt.Equal(now.Add(time.Minute)))

	// Not due yet.
	res := e.nextPass(t)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, 1, e.up.callCount())
}

func TestBackoff_ExponentialAndCapped(t *testing.T) {
	w := New(nil, nil, nil, Options{BackoffBase: time.Second, BackoffMax: 5 * time.Second}, nil)
	assert.Equal(t, time.Second, w.backoff(1))
	assert.Equal(t, 2*time.Second, w.backoff(2))
	assert.Equal(t, 4*time.Second, w.backoff(3))
	assert.Equal(t, 5*time.Second, w.backoff(4))

	w = New(nil, nil, nil, Options{}, nil)
	assert.Zero(t, w.backoff(3))
}

func TestProcess_GoingOfflineStopsNewUploads(t *testing.T) {
	e := newEnv(t, defaultOpts)
	e.enqueue(t, "a.jpg")
	b := e.enqueue(t, "b.jpg")

	e.w.uploader = uploaderFunc(func(ctx context.Context, req remote.UploadRequest) (remote.UploadResult, error) {
		e.online.Store(false)
		return e.up.Upload(ctx, req)
	})

	res, err := e.w.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Uploaded: 1}, res)
	assert.Equal(t, models.PhotoPending, e.get(t, b.ID).Status)
}

func TestProcess_Reentrancy(t *testing.T) {
	e := newEnv(t, defaultOpts)
	e.up.block = make(chan struct{})
	e.enqueue(t, "a.jpg")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = e.w.Process(context.Background())
	}()

	require.Eventually(t, func() bool { return e.up.callCount() == 1 }, time.Second, time.Millisecond)
	_, err := e.w.Process(context.Background())
	require.ErrorIs(t, err, ErrBusy)

	close(e.up.block)
	<-done
}

func TestProcess_MissingBlobIsPermanent(t *testing.T) {
	st, err := store.Open(context.Background(), store.FileDSN(filepath.Join(t.TempDir(), "w.db")), nil)
	require.NoError(t, err)
	defer st.Close()
	_, err = st.SaveDraft(context.Background(), "s1", []byte("{}"))
	require.NoError(t, err)
	q := queue.New(st, nil)
	it, err := q.Enqueue(context.Background(), queue.Photo{SurveyID: "s1", Filename: "a.jpg", Data: []byte{1}})
	require.NoError(t, err)
	require.NoError(t, st.Delete(context.Background(), it.BlobKey))

	up := &fakeUploader{}
	w := New(q, up, func() bool { return true }, defaultOpts, nil)
	res, err := w.Process(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 1, Frozen: 1}, res)
	assert.Zero(t, up.callCount())
}

type uploaderFunc func(ctx context.Context, req remote.UploadRequest) (remote.UploadResult, error)

func (f uploaderFunc) Upload(ctx context.Context, req remote.UploadRequest) (remote.UploadResult, error) {
	return f(ctx, req)
}

// flakyQueue fails selected queue calls a set number of times.
type flakyQueue struct {
	*queue.Queue
	blobErrs     int
	uploadedErrs int
	failedErrs   int
}

func (f *flakyQueue) Blob(ctx context.Context, it *models.PhotoQueueItem) ([]byte, error) {
	if f.blobErrs > 0 {
		f.blobErrs--
		return nil, common.ErrStorageUnavailable
	}
	return f.Queue.Blob(ctx, it)
}

func (f *flakyQueue) MarkUploaded(ctx context.Context, id, url string) error {
	if f.uploadedErrs > 0 {
		f.uploadedErrs--
		return common.ErrStorageUnavailable
	}
	return f.Queue.MarkUploaded(ctx, id, url)
}

func (f *flakyQueue) MarkFailed(ctx context.Context, id string, fl queue.Failure) error {
	if f.failedErrs > 0 {
		f.failedErrs--
		return common.ErrStorageUnavailable
	}
	return f.Queue.MarkFailed(ctx, id, fl)
}

func TestProcess_LocalErrorsReleaseTheItem(t *testing.T) {
	tests := []struct {
		name        string
		queue       flakyQueue
		uploadErrs  []error
		wantUploads int
		wantError   string
	}{
		{
			name:        "blob read fails",
			queue:       flakyQueue{blobErrs: 1},
			wantUploads: 1,
			wantError:   "read photo",
		},
		{
			name:        "mark uploaded fails",
			queue:       flakyQueue{uploadedErrs: 1},
			wantUploads: 2,
			wantError:   "mark photo",
		},
		{
			name:        "mark failed fails",
			queue:       flakyQueue{failedErrs: 1},
			uploadErrs:  []error{common.Transient(errors.New("503"))},
			wantUploads: 2,
			wantError:   "503",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t, defaultOpts)
			it := e.enqueue(t, "a.jpg")
			e.up.errs = tt.uploadErrs

			fq := tt.queue
			fq.Queue = e.q
			w := New(&fq, e.up, e.online.Load, defaultOpts, nil)

			_, err := w.Process(context.Background())
			require.Error(t, err)
			require.ErrorIs(t, err, common.ErrStorageUnavailable)

			got := e.get(t, it.ID)
			assert.Equal(t, models.PhotoFailed, got.Status)
			assert.True(t, got.Retryable)
			assert.Equal(t, 1, got.Attempts)
			assert.Contains(t, got.LastError, tt.wantError)

			_, err = e.q.RequeueDue(context.Background())
			require.NoError(t, err)
			res, err := w.Process(context.Background())
			require.NoError(t, err)
			assert.Equal(t, 1, res.Uploaded)

			got = e.get(t, it.ID)
			assert.Equal(t, models.PhotoUploaded, got.Status)
			assert.Equal(t, 2, got.Attempts)
			assert.Equal(t, tt.wantUploads, e.up.callCount())
		})
	}
}
