package remote

import (
	"context"
	"fmt"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// HealthProber checks reachability with the standard gRPC health service.
type HealthProber struct {
	client  grpc_health_v1.HealthClient
	service string
}

// NewHealthProber probes service on conn. An empty service checks the
// server as a whole.
func NewHealthProber(conn grpc.ClientConnInterface, service string) *HealthProber {
	return &HealthProber{client: grpc_health_v1.NewHealthClient(conn), service: service}
}

func (p *HealthProber) Probe(ctx context.Context) error {
	resp, err := p.client.Check(ctx, &grpc_health_v1.HealthCheckRequest{Service: p.service})
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrOffline, mapError(err))
	}
	if resp.GetStatus() != grpc_health_v1.HealthCheckResponse_SERVING {
		return fmt.Errorf("%w: service status %s", common.ErrOffline, resp.GetStatus())
	}
	return nil
}
