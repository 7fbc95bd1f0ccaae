// Package grpc serves the draft service and the gRPC health service of the
// reference backend.
package grpc

import (
	"context"
	"net"

	"github.com/markahope-aag/hazardos-sub008/internal/logging"
	"github.com/markahope-aag/hazardos-sub008/internal/remote"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const draftServicePrefix = remote.DraftServiceName + "/"

type GRPCServer struct {
	address string
	drafts  remote.DraftServer
	health  *health.Server
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, drafts remote.DraftServer) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		drafts:  drafts,
		health:  health.NewServer(),
	}
}

// Health exposes the health server so callers can flip serving status.
func (s *GRPCServer) Health() *health.Server {
	return s.health
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.deviceIDInterceptor))
	remote.RegisterDraftServer(srv, s.drafts)
	healthpb.RegisterHealthServer(srv, s.health)
	s.health.SetServingStatus(remote.DraftServiceName, healthpb.HealthCheckResponse_SERVING)
	return srv
}

// Run listens on the configured address and serves until ctx is done.
func (s *GRPCServer) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is done.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		s.health.Shutdown()
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())
	return srv.Serve(lis)
}
