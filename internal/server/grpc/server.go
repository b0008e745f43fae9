// Package grpc serves the report store functions over a single gRPC method.
package grpc

import (
	"context"
	"net"

	"github.com/elecmate/certsync/internal/logging"
	pb "github.com/elecmate/certsync/internal/proto"
	"github.com/elecmate/certsync/internal/server/models"
	"github.com/elecmate/certsync/internal/server/services"
	"google.golang.org/grpc"
)

type userService interface {
	Register(ctx context.Context, username string, salt, verifier []byte) (*models.User, error)
	GetSalt(ctx context.Context, username string) ([]byte, error)
	Login(ctx context.Context, username string, verifier []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type reportService interface {
	Save(ctx context.Context, userID string, in services.SaveReportInput) (*models.Report, error)
	Get(ctx context.Context, userID, reportID string) (*models.Report, error)
	LinkCustomer(ctx context.Context, userID, reportID, customerID string) error
}

type certificateService interface {
	Generate(ctx context.Context, userID, reportType string) (string, error)
}

type GRPCServer struct {
	address   string
	users     userService
	reports   reportService
	certs     certificateService
	logger    logging.Logger
	jwtSecret []byte
}

func NewGRPCServer(a string, l logging.Logger, us userService, rs reportService, cs certificateService, secretKey string) *GRPCServer {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		users:     us,
		reports:   rs,
		certs:     cs,
		jwtSecret: []byte(secretKey),
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled, then stops
// gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.loggingInterceptor, s.accessTokenInterceptor))

	pb.RegisterFunctionServer(srv, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
