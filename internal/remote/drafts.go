package remote

import (
	"context"
	"time"

	"google.golang.org/grpc"
)

const (
	DraftServiceName = "fieldsync.v1.Drafts"
	saveDraftMethod  = "/" + DraftServiceName + "/SaveDraft"
)

// SaveDraftRequest upserts a full draft. The server keeps the highest
// version per survey, so repeating a request is harmless.
type SaveDraftRequest struct {
	SurveyID string    `json:"survey_id"`
	Version  int64     `json:"version"`
	Content  []byte    `json:"content"`
	SavedAt  time.Time `json:"saved_at"`
}

type SaveDraftResponse struct {
	SurveyID string `json:"survey_id"`
	// Version is the version the server holds after the call.
	Version int64 `json:"version"`
	// Applied is false when the server already had this or a newer version.
	Applied bool `json:"applied"`
}

// DraftServer is implemented by the draft-save backend.
type DraftServer interface {
	SaveDraft(ctx context.Context, req *SaveDraftRequest) (*SaveDraftResponse, error)
}

// RegisterDraftServer registers srv on a gRPC server.
func RegisterDraftServer(s grpc.ServiceRegistrar, srv DraftServer) {
	s.RegisterService(&draftServiceDesc, srv)
}

var draftServiceDesc = grpc.ServiceDesc{
	ServiceName: DraftServiceName,
	HandlerType: (*DraftServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "SaveDraft", Handler: saveDraftHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "fieldsync/v1/drafts",
}

func saveDraftHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(SaveDraftRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(DraftServer).SaveDraft(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: saveDraftMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(DraftServer).SaveDraft(ctx, req.(*SaveDraftRequest))
	}
	return interceptor(ctx, in, info, handler)
}
