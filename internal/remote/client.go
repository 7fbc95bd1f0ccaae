package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markahope-aag/hazardos-sub008/internal/common"
	"github.com/markahope-aag/hazardos-sub008/internal/models"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// DraftClient saves drafts on the remote draft service.
type DraftClient struct {
	conn     *grpc.ClientConn
	deviceID string
	timeout  time.Duration
}

// NewDraftClient creates a client for addr. The connection is established
// lazily on the first call. Extra dial options are appended to the defaults.
func NewDraftClient(addr, deviceID string, timeout time.Duration, opts ...grpc.DialOption) (*DraftClient, error) {
	c := &DraftClient{deviceID: deviceID, timeout: timeout}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.deviceIDInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("draft client: %w", err)
	}
	c.conn = conn
	return c, nil
}

func withDeviceID(ctx context.Context, id string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.DeviceIDHeaderName, id)
	return metadata.NewOutgoingContext(ctx, md)
}

func (c *DraftClient) deviceIDInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	if c.deviceID != "" {
		ctx = withDeviceID(ctx, c.deviceID)
	}
	return invoker(ctx, method, req, reply, cc, opts...)
}

// Conn exposes the connection so the health prober can share it.
func (c *DraftClient) Conn() *grpc.ClientConn {
	return c.conn
}

func (c *DraftClient) Close() error {
	return c.conn.Close()
}

// SaveDraft upserts d remotely and returns the version the server
// acknowledged. Errors are classified as transient or permanent.
func (c *DraftClient) SaveDraft(ctx context.Context, d *models.SurveyDraft) (int64, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	req := &SaveDraftRequest{
		SurveyID: d.ID,
		Version:  d.Version,
		Content:  d.Content,
		SavedAt:  d.LastSavedAt,
	}
	resp := new(SaveDraftResponse)

	err := c.conn.Invoke(ctx, saveDraftMethod, req, resp, grpc.CallContentSubtype(codecName))
	if err != nil {
		return 0, mapError(err)
	}
	if resp.Version < d.Version {
		return 0, common.Transient(fmt.Errorf("server acknowledged version %d of %d", resp.Version, d.Version))
	}
	return d.Version, nil
}

// mapError turns a gRPC status into a classified error.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return common.Transient(err)
	}

	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.PermissionDenied,
		codes.Unauthenticated, codes.NotFound, codes.AlreadyExists, codes.OutOfRange,
		codes.Unimplemented:
		return common.Permanent(fmt.Errorf("rpc error: %w", err))
	default:
		return common.Transient(fmt.Errorf("rpc error: %w", err))
	}
}
