// Package server runs the reference backend: the gRPC draft service with
// health checks and the HTTP photo receiver. It exists for local development
// and end-to-end tests of the sync engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/markahope-aag/hazardos-sub008/internal/filex"
	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/server/config"
	"github.com/markahope-aag/hazardos-sub008/internal/server/httpapi"
	"golang.org/x/sync/errgroup"

	gs "github.com/markahope-aag/hazardos-sub008/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	logCloser io.Closer
	drafts    *gs.DraftStore
	grpc      *gs.GRPCServer
	http      *http.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger, closer, err := logging.New(logging.Options{Level: c.LogLevel, Format: c.LogFormat})
	if err != nil {
		return nil, fmt.Errorf("logger init error: %w", err)
	}

	photoDir, err := filex.EnsureDir(c.PhotoDir)
	if err != nil {
		return nil, fmt.Errorf("photo dir init error: %w", err)
	}

	drafts := gs.NewDraftStore()
	photos := httpapi.NewPhotoHandler(photoDir, c.PublicBaseURL, c.MaxPhotoBytes, logger)

	return &App{
		config:    c,
		logger:    logger,
		logCloser: closer,
		drafts:    drafts,
		grpc:      gs.NewGRPCServer(c.GRPCAddr, logger, drafts),
		http: &http.Server{
			Addr:    c.HTTPAddr,
			Handler: httpapi.NewRouter(photos, logger),
		},
	}, nil
}

// Run serves both listeners until ctx is cancelled, SIGINT/SIGTERM arrives
// or one of them fails.
func (app *App) Run(ctx context.Context) error {
	defer app.logCloser.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	app.logger.Info(ctx, "Starting app...")

	grpcLis, err := net.Listen("tcp", app.config.GRPCAddr)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	httpLis, err := net.Listen("tcp", app.config.HTTPAddr)
	if err != nil {
		_ = grpcLis.Close()
		return fmt.Errorf("listen http: %w", err)
	}
	return app.serve(ctx, grpcLis, httpLis)
}

func (app *App) serve(ctx context.Context, grpcLis, httpLis net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return app.grpc.Serve(ctx, grpcLis)
	})
	g.Go(func() error {
		app.logger.Info(ctx, "Starting HTTP server", "address", httpLis.Addr().String())
		if err := app.http.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), app.config.ShutdownTimeout)
		defer cancel()
		app.logger.Info(ctx, "Stopping HTTP server...")
		return app.http.Shutdown(sctx)
	})

	return g.Wait()
}
