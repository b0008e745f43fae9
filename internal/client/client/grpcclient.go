package client

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/common"
	pb "github.com/elecmate/certsync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn
	fn          pb.FunctionClient

	mu     sync.RWMutex
	tokens Tokens
	// onRefresh is told about tokens issued by a transparent refresh so
	// they can be persisted.
	onRefresh func(Tokens)
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Delete(common.AccessTokenHeaderName)
	if token != "" {
		md.Set(common.AccessTokenHeaderName, token)
	}

	return metadata.NewOutgoingContext(ctx, md)
}

func functionOf(req any) string {
	if s, ok := req.(*structpb.Struct); ok {
		fn, _ := pb.ParseRequest(s)
		return fn
	}
	return ""
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	tokens := s.Tokens()

	err := invoker(withAccessToken(ctx, tokens.Access), method, req, reply, cc, opts...)
	if err == nil {
		return nil
	}

	st, ok := status.FromError(err)
	if !ok || st.Code() != codes.Unauthenticated || st.Message() != common.ErrTokenExpired.Error() {
		return err
	}
	if tokens.Refresh == "" || functionOf(req) == common.FnRefreshToken {
		return err
	}

	data, rerr := s.fn.Invoke(ctx, common.FnRefreshToken, map[string]any{"refresh_token": tokens.Refresh})
	if rerr != nil {
		return rerr
	}
	refreshed := Tokens{Access: pb.String(data, "access_token"), Refresh: pb.String(data, "refresh_token")}
	s.SetTokens(refreshed)
	if s.onRefresh != nil {
		s.onRefresh(refreshed)
	}

	return invoker(withAccessToken(ctx, refreshed.Access), method, req, reply, cc, opts...)
}

type Option func(*GRPCClient)

// WithTokenRefreshHook registers fn to receive tokens issued by a refresh.
func WithTokenRefreshHook(fn func(Tokens)) Option {
	return func(c *GRPCClient) { c.onRefresh = fn }
}

func NewGRPCClient(endpointURL string, opts ...Option) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: endpointURL}
	for _, opt := range opts {
		opt(c)
	}
	if err := c.initGRPCClient(grpc.WithTransportCredentials(insecure.NewCredentials())); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *GRPCClient) initGRPCClient(dialOpts ...grpc.DialOption) error {
	dialOpts = append(dialOpts, grpc.WithUnaryInterceptor(s.accessTokenInterceptor))
	conn, err := grpc.NewClient(s.endpointURL, dialOpts...)
	if err != nil {
		return fmt.Errorf("grpc client: %w", err)
	}
	s.conn = conn
	s.fn = pb.NewFunctionClient(conn)
	return nil
}

func (s *GRPCClient) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *GRPCClient) SetTokens(t Tokens) {
	s.mu.Lock()
	s.tokens = t
	s.mu.Unlock()
}

func (s *GRPCClient) Tokens() Tokens {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tokens
}

func (s *GRPCClient) invoke(ctx context.Context, function string, body map[string]any) (map[string]any, error) {
	data, err := s.fn.Invoke(ctx, function, body)
	if err != nil {
		return nil, s.mapError(err)
	}
	return data, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	data, err := s.invoke(ctx, common.FnPing, nil)
	if err != nil {
		return err
	}
	if pb.String(data, "status") != "OK" {
		return ErrUnavailable
	}
	return nil
}

func (s *GRPCClient) Register(ctx context.Context, username string, salt []byte, verifier string) error {
	_, err := s.invoke(ctx, common.FnRegister, map[string]any{
		"username": username,
		"salt":     hex.EncodeToString(salt),
		"verifier": verifier,
	})
	return err
}

func (s *GRPCClient) GetSalt(ctx context.Context, username string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, 12*time.Second)
	defer cancel()

	data, err := s.invoke(ctx, common.FnGetSalt, map[string]any{"username": username})
	if err != nil {
		return nil, err
	}
	salt, err := hex.DecodeString(pb.String(data, "salt"))
	if err != nil {
		return nil, fmt.Errorf("%w: malformed salt", ErrRemote)
	}
	return salt, nil
}

func (s *GRPCClient) Login(ctx context.Context, username string, verifier string) (Tokens, error) {
	data, err := s.invoke(ctx, common.FnLogin, map[string]any{
		"username": username,
		"verifier": verifier,
	})
	if err != nil {
		return Tokens{}, err
	}
	t := Tokens{Access: pb.String(data, "access_token"), Refresh: pb.String(data, "refresh_token")}
	s.SetTokens(t)
	return t, nil
}

func (s *GRPCClient) SaveReport(ctx context.Context, snap models.DraftSnapshot) (SaveResult, error) {
	data, err := s.invoke(ctx, common.FnSaveReport, saveReportBody(snap))
	if err != nil {
		return SaveResult{}, err
	}
	res := decodeSaveResult(data)
	if res.ReportID == "" {
		return SaveResult{}, fmt.Errorf("%w: save-report returned no report id", ErrRemote)
	}
	return res, nil
}

func (s *GRPCClient) GetReport(ctx context.Context, reportID string) (models.DraftSnapshot, error) {
	data, err := s.invoke(ctx, common.FnGetReport, map[string]any{"report_id": reportID})
	if err != nil {
		return models.DraftSnapshot{}, err
	}
	report := pb.Map(data, "report")
	if report == nil {
		return models.DraftSnapshot{}, ErrNotFound
	}
	return decodeReport(report), nil
}

func (s *GRPCClient) LinkCustomer(ctx context.Context, reportID, customerID string) error {
	_, err := s.invoke(ctx, common.FnLinkCustomer, map[string]any{
		"report_id":   reportID,
		"customer_id": customerID,
	})
	return err
}

func (s *GRPCClient) GenerateCertificateNumber(ctx context.Context, t models.ReportType) (string, error) {
	data, err := s.invoke(ctx, common.FnGenerateCertificateNumber, map[string]any{"report_type": string(t)})
	if err != nil {
		return "", err
	}
	n := pb.String(data, "certificate_number")
	if n == "" {
		return "", fmt.Errorf("%w: empty certificate number", ErrRemote)
	}
	return n, nil
}

func (s *GRPCClient) mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	st, ok := status.FromError(err)
	if !ok {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
		return ErrUnavailable
	case codes.InvalidArgument, codes.FailedPrecondition:
		return &ValidationError{Message: st.Message()}
	case codes.NotFound:
		return ErrNotFound
	default:
		return fmt.Errorf("%w: %s", ErrRemote, st.Message())
	}
}
