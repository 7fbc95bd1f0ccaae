package grpc

import (
	"context"
	"strings"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const deviceIDKey ctxKey = "deviceID"

func deviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(deviceIDKey).(string)
	return id
}

// deviceIDInterceptor requires a device id on draft service calls. Health
// checks stay anonymous.
func (s *GRPCServer) deviceIDInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	if !strings.HasPrefix(info.FullMethod, "/"+draftServicePrefix) {
		return handler(ctx, req)
	}

	var deviceID string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(common.DeviceIDHeaderName); len(values) > 0 {
			deviceID = values[0]
		}
	}
	if deviceID == "" {
		return nil, status.Error(codes.Unauthenticated, "missing device id")
	}

	ctx = context.WithValue(ctx, deviceIDKey, deviceID)
	resp, err := handler(ctx, req)
	if err != nil {
		s.logger.Warn(ctx, "request failed", "method", info.FullMethod, "device", deviceID, "err", err)
	}
	return resp, err
}
