package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) Ping(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.StringValue, error) {

	return wrapperspb.String("OK"), nil

}

// Pull returns the caller's journal events after the given cursor as
// {"events": [...]}, shaped like the HTTP sync response.
func (s *GRPCServer) Pull(ctx context.Context, req *wrapperspb.Int64Value) (*structpb.Struct, error) {

	userID, ok := userIDFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	events, err := s.journal.Pull(ctx, userID, req.GetValue(), 0)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}

	out, err := eventsToStruct(events)
	if err != nil {
		s.logger.Error(ctx, "encode events", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return out, nil

}

func eventsToStruct(events []models.SyncEvent) (*structpb.Struct, error) {
	if events == nil {
		events = []models.SyncEvent{}
	}
	b, err := json.Marshal(map[string]any{"events": events})
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(b, out); err != nil {
		return nil, err
	}
	return out, nil
}

// toStatus maps service errors to gRPC status codes.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, common.ErrForbidden):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, common.ErrorUnauthorized), errors.Is(err, common.ErrInvalidToken), errors.Is(err, common.ErrTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrUnknownEntityType), errors.Is(err, common.ErrUnknownAction):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrBackendUnavailable):
		return status.Error(codes.Unavailable, err.Error())
	}
	s.logger.Error(ctx, "request failed", "error", err)
	return status.Error(codes.Internal, "internal error")
}
