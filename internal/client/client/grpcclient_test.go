package client

import (
	"context"
	"errors"
	"net"
	"testing"

	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/syncpb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

type fakeSyncServer struct {
	token  string
	cursor int64
	out    map[string]any
	err    error
}

func (f *fakeSyncServer) Pull(ctx context.Context, in *wrapperspb.Int64Value) (*structpb.Struct, error) {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if v := md.Get(common.AccessTokenHeaderName); len(v) > 0 {
			f.token = v[0]
		}
	}
	f.cursor = in.GetValue()
	if f.err != nil {
		return nil, f.err
	}
	return structpb.NewStruct(f.out)
}

func (f *fakeSyncServer) Ping(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String("OK"), nil
}

func newSyncClient(t *testing.T, fake *fakeSyncServer) *GRPCSyncClient {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	srv.RegisterService(&syncpb.SyncServiceDesc, fake)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	c, err := NewGRPCSyncClient("passthrough:///bufnet", "tok",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestWithAccessToken_ReplacesExisting(t *testing.T) {
	ctx := metadata.AppendToOutgoingContext(context.Background(), common.AccessTokenHeaderName, "old", "x", "y")

	ctx = withAccessToken(ctx, "new")

	md, ok := metadata.FromOutgoingContext(ctx)
	require.True(t, ok)
	assert.Equal(t, []string{"new"}, md.Get(common.AccessTokenHeaderName))
	assert.Equal(t, []string{"y"}, md.Get("x"))
}

func TestGRPCSyncClient_Pull(t *testing.T) {
	fake := &fakeSyncServer{out: map[string]any{"events": []any{
		map[string]any{"id": 9, "entityType": "file", "entityId": "f1", "action": "update", "data": map[string]any{"name": "a"}},
		map[string]any{"id": 10, "entityType": "file", "entityId": "f1", "action": "delete"},
	}}}
	c := newSyncClient(t, fake)

	require.NoError(t, c.Ping(context.Background()))

	events, err := c.Pull(context.Background(), 8)
	require.NoError(t, err)

	assert.Equal(t, "tok", fake.token)
	assert.Equal(t, int64(8), fake.cursor)
	require.Len(t, events, 2)
	assert.Equal(t, int64(9), events[0].ID)
	assert.Equal(t, "update", events[0].Action)
	assert.JSONEq(t, `{"name":"a"}`, string(events[0].Data))
	assert.Empty(t, events[1].Data)
}

func TestGRPCSyncClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		err  error
		want error
	}{
		{status.Error(codes.Unauthenticated, "token expired"), common.ErrTokenExpired},
		{status.Error(codes.Unauthenticated, "invalid token"), common.ErrorUnauthorized},
		{status.Error(codes.Unavailable, "down"), ErrUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			c := newSyncClient(t, &fakeSyncServer{err: tt.err})

			_, err := c.Pull(context.Background(), 0)

			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
