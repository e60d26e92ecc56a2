package client

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/homecloud/internal/client/models"
	"github.com/dmitrijs2005/homecloud/internal/common"
	"github.com/dmitrijs2005/homecloud/internal/syncpb"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
)

// GRPCSyncClient pulls the sync journal over gRPC.
type GRPCSyncClient struct {
	conn        *grpc.ClientConn
	client      *syncpb.SyncClient
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	md.Set(common.AccessTokenHeaderName, token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCSyncClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {

	ctx = withAccessToken(ctx, s.accessToken)

	err := invoker(ctx, method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.Unauthenticated:
		if st.Message() == common.ErrTokenExpired.Error() {
			return common.ErrTokenExpired
		}
		return fmt.Errorf("%w: %s", common.ErrorUnauthorized, st.Message())
	case codes.Unavailable:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	}
	return err
}

// NewGRPCSyncClient prepares a connection to addr. Extra dial options are
// appended after the defaults (insecure transport, token interceptor).
func NewGRPCSyncClient(addr, accessToken string, opts ...grpc.DialOption) (*GRPCSyncClient, error) {
	c := &GRPCSyncClient{accessToken: accessToken}

	opts = append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
	}, opts...)

	conn, err := grpc.NewClient(addr, opts...)
	if err != nil {
		return nil, err
	}

	c.conn = conn
	c.client = syncpb.NewSyncClient(conn)
	return c, nil
}

func (s *GRPCSyncClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCSyncClient) Ping(ctx context.Context) error {
	_, err := s.client.Ping(ctx)
	return err
}

// Pull returns the events after cursor. The Struct payload has the same
// shape as the HTTP sync response.
func (s *GRPCSyncClient) Pull(ctx context.Context, cursor int64) ([]models.SyncEvent, error) {
	st, err := s.client.Pull(ctx, cursor)
	if err != nil {
		return nil, err
	}

	b, err := protojson.Marshal(st)
	if err != nil {
		return nil, err
	}
	var out struct {
		Events []models.SyncEvent `json:"events"`
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("decode events: %w", err)
	}
	return out.Events, nil
}
