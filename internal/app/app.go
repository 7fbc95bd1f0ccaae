// Package app wires the field client together: local store, photo queue,
// upload worker, connectivity monitor, sync engine, capture inbox and the
// command line front end.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/markahope-aag/hazardos-sub008/internal/capture"
	"github.com/markahope-aag/hazardos-sub008/internal/cli"
	"github.com/markahope-aag/hazardos-sub008/internal/config"
	"github.com/markahope-aag/hazardos-sub008/internal/connectivity"
	"github.com/markahope-aag/hazardos-sub008/internal/filex"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/observability"
	"github.com/markahope-aag/hazardos-sub008/internal/queue"
	"github.com/markahope-aag/hazardos-sub008/internal/quota"
	"github.com/markahope-aag/hazardos-sub008/internal/remote"
	"github.com/markahope-aag/hazardos-sub008/internal/store"
	"github.com/markahope-aag/hazardos-sub008/internal/syncer"
	"github.com/markahope-aag/hazardos-sub008/internal/worker"
)

const serviceName = "fieldsync"

type App struct {
	config   *config.Config
	logger   logging.Logger
	deviceID string

	store   *store.Store
	client  *remote.DraftClient
	monitor *connectivity.Monitor
	engine  *syncer.Engine
	watcher *capture.Watcher

	closers []func(context.Context) error
}

// NewApp opens the local database and builds every component. Nothing runs
// until Run is called. On error everything opened so far is released.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	a := &App{config: c}
	if err := a.init(ctx); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	c := a.config

	logger, logCloser, err := logging.New(logging.Options{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("logger init error: %w", err)
	}
	a.logger = logger
	a.onClose(func(context.Context) error { return logCloser.Close() })

	shutdown, err := observability.InitTracing(observability.TracingOptions{
		Exporter: c.TraceExporter,
		Service:  serviceName,
	})
	if err != nil {
		return fmt.Errorf("tracing init error: %w", err)
	}
	a.onClose(shutdown)

	if _, err := filex.EnsureDir(c.DataDir); err != nil {
		return fmt.Errorf("data dir init error: %w", err)
	}

	a.store, err = store.Open(ctx, store.FileDSN(c.DBPath()), logger)
	if err != nil {
		return fmt.Errorf("error initializing database: %w", err)
	}
	a.onClose(func(context.Context) error { return a.store.Close() })

	a.deviceID = c.DeviceID
	if a.deviceID == "" {
		a.deviceID, err = a.store.DeviceID(ctx, uuid.NewString)
		if err != nil {
			return fmt.Errorf("device id: %w", err)
		}
	}

	a.client, err = remote.NewDraftClient(c.DraftServerAddr, a.deviceID, c.RequestTimeout)
	if err != nil {
		return err
	}
	a.onClose(func(context.Context) error { return a.client.Close() })

	prober := remote.NewHealthProber(a.client.Conn(), remote.DraftServiceName)
	a.monitor = connectivity.New(prober, c.OnlineCheckInterval, c.OnlineCheckTimeout, logger)

	uploader, err := newUploader(ctx, c, a.deviceID)
	if err != nil {
		return err
	}

	q := queue.New(a.store, logger)
	w := worker.New(q, uploader, a.monitor.IsOnline, worker.Options{
		MaxAttempts: c.MaxAttempts,
		Timeout:     c.UploadTimeout,
		BackoffBase: c.RetryBaseDelay,
		BackoffMax:  c.RetryMaxDelay,
	}, logger)

	a.engine = syncer.New(syncer.Deps{
		Store:        a.store,
		Queue:        q,
		Drafts:       a.client,
		Uploads:      w,
		Connectivity: a.monitor,
		Quota:        quota.New(c.DataDir, nil, c.StorageQuota),
		Logger:       logger,
	}, syncer.Options{
		PollInterval:      c.PollInterval,
		SyncInterval:      c.SyncInterval,
		MaxAttempts:       c.MaxAttempts,
		UploadedRetention: c.UploadedRetention,
	})

	if c.InboxDir != "" {
		a.watcher = capture.New(c.InboxDir, a.engine, 0, logger)
	}

	logger.Info(ctx, "client initialized", "device", a.deviceID, "backend", c.Upload.Backend, "db", c.DBPath())
	return nil
}

func newUploader(ctx context.Context, c *config.Config, deviceID string) (remote.Uploader, error) {
	switch c.Upload.Backend {
	case config.BackendS3:
		s := c.Upload.S3
		return remote.NewS3Uploader(ctx, remote.S3Config{
			Region:        s.Region,
			Endpoint:      s.Endpoint,
			AccessKey:     s.AccessKey,
			SecretKey:     s.SecretKey,
			Bucket:        s.Bucket,
			PublicBaseURL: s.PublicBaseURL,
		})
	case config.BackendMinio:
		m := c.Upload.Minio
		return remote.NewMinioUploader(remote.MinioConfig{
			Endpoint:      m.Endpoint,
			AccessKey:     m.AccessKey,
			SecretKey:     m.SecretKey,
			Bucket:        m.Bucket,
			Region:        m.Region,
			Secure:        m.Secure,
			PublicBaseURL: m.PublicBaseURL,
		})
	case config.BackendHTTP, "":
		return remote.NewHTTPUploader(c.Upload.HTTPEndpoint, deviceID, c.UploadTimeout), nil
	default:
		return nil, fmt.Errorf("unknown upload backend %q", c.Upload.Backend)
	}
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Engine exposes the sync engine, mainly for tests and embedding.
func (a *App) Engine() *syncer.Engine { return a.engine }

func (a *App) DeviceID() string { return a.deviceID }

// Run starts the background loops and drives the command line until the
// input ends, the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context, in io.Reader, out io.Writer, interactive bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.monitor.Run(ctx) })
	g.Go(func() error { return a.engine.Start(ctx) })
	if a.watcher != nil {
		g.Go(func() error { return a.watcher.Run(ctx) })
	}

	// The shell blocks on its input, so it stays outside the group and
	// the process may exit while a read is still pending.
	done := make(chan struct{})
	go func() {
		defer close(done)
		cli.NewREPL(a.engine, in, out, interactive).Run(ctx)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
	cancel()

	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close releases everything NewApp opened, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
