package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/homecloud/internal/logging"
	"github.com/dmitrijs2005/homecloud/internal/server/models"
	"github.com/dmitrijs2005/homecloud/internal/syncpb"
	"google.golang.org/grpc"
)

type journalSvc interface {
	Pull(ctx context.Context, ownerID string, cursor int64, limit int) ([]models.SyncEvent, error)
}

type GRPCServer struct {
	address   string
	journal   journalSvc
	logger    logging.Logger
	jwtSecret []byte
}

var _ syncpb.SyncServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, js journalSvc, secretKey string) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		journal:   js,
		jwtSecret: []byte(secretKey),
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))
	srv.RegisterService(&syncpb.SyncServiceDesc, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	srv := s.newServer()

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", s.address)

	// starts accepting incoming connections
	if err := srv.Serve(listen); err != nil {
		return err
	}

	return nil
}
