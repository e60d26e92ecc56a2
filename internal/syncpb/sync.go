// Package syncpb describes the homecloud sync RPC service by hand with
// protobuf well-known types, so neither side needs generated stubs.
package syncpb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// The service, in proto terms:
//
//	service SyncService {
//	  rpc Pull(google.protobuf.Int64Value) returns (google.protobuf.Struct);
//	  rpc Ping(google.protobuf.Empty) returns (google.protobuf.StringValue);
//	}
const (
	ServiceName = "homecloud.sync.SyncService"
	MethodPull  = "/" + ServiceName + "/Pull"
	MethodPing  = "/" + ServiceName + "/Ping"
)

// SyncServer is the server API of the sync service.
type SyncServer interface {
	Pull(ctx context.Context, cursor *wrapperspb.Int64Value) (*structpb.Struct, error)
	Ping(ctx context.Context, in *emptypb.Empty) (*wrapperspb.StringValue, error)
}

var SyncServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SyncServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Pull", Handler: pullHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "homecloud/sync.proto",
}

func pullHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(wrapperspb.Int64Value)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).Pull(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodPull}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServer).Pull(ctx, req.(*wrapperspb.Int64Value))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: MethodPing}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServer).Ping(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

// SyncClient calls the sync service over an established connection.
type SyncClient struct {
	cc grpc.ClientConnInterface
}

func NewSyncClient(cc grpc.ClientConnInterface) *SyncClient {
	return &SyncClient{cc: cc}
}

func (c *SyncClient) Pull(ctx context.Context, cursor int64, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, MethodPull, wrapperspb.Int64(cursor), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *SyncClient) Ping(ctx context.Context, opts ...grpc.CallOption) (string, error) {
	out := new(wrapperspb.StringValue)
	if err := c.cc.Invoke(ctx, MethodPing, &emptypb.Empty{}, out, opts...); err != nil {
		return "", err
	}
	return out.GetValue(), nil
}
