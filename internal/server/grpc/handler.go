package grpc

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/elecmate/certsync/internal/common"
	pb "github.com/elecmate/certsync/internal/proto"
	"github.com/elecmate/certsync/internal/server/models"
	"github.com/elecmate/certsync/internal/server/services"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

type handlerFunc func(ctx context.Context, body map[string]any) (map[string]any, error)

func (s *GRPCServer) handlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		common.FnPing:                      s.ping,
		common.FnRegister:                  s.register,
		common.FnGetSalt:                   s.getSalt,
		common.FnLogin:                     s.login,
		common.FnRefreshToken:              s.refreshToken,
		common.FnSaveReport:                s.saveReport,
		common.FnGetReport:                 s.getReport,
		common.FnLinkCustomer:              s.linkCustomer,
		common.FnGenerateCertificateNumber: s.generateCertificateNumber,
	}
}

// Invoke dispatches one function call.
func (s *GRPCServer) Invoke(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	function, body := pb.ParseRequest(req)

	h, ok := s.handlers()[function]
	if !ok {
		return nil, status.Errorf(codes.Unimplemented, "unknown function %q", function)
	}

	data, err := h(ctx, body)
	if err != nil {
		return nil, s.toStatus(ctx, function, err)
	}

	resp, err := pb.NewResponse(data)
	if err != nil {
		s.logger.Error(ctx, "failed to encode response", "function", function, "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}
	return resp, nil
}

// toStatus maps service errors to the codes the client classifies on.
// InvalidArgument and FailedPrecondition messages are shown to the user.
func (s *GRPCServer) toStatus(ctx context.Context, function string, err error) error {
	switch {
	case errors.Is(err, common.ErrorUnauthorized),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrRefreshTokenExpired):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, common.ErrBadRequest),
		errors.Is(err, common.ErrUnknownReportType),
		errors.Is(err, common.ErrCertificateNumberRequired),
		errors.Is(err, common.ErrInvalidPayload):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrCertificateNumberImmutable),
		errors.Is(err, common.ErrReportTypeImmutable):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, "not found")
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, "already exists")
	}

	s.logger.Error(ctx, "function failed", "function", function, "error", err)
	return status.Error(codes.Internal, "internal error")
}

func callerID(ctx context.Context) (string, error) {
	id, ok := UserIDFromContext(ctx)
	if !ok {
		return "", common.ErrorUnauthorized
	}
	return id, nil
}

func (s *GRPCServer) ping(ctx context.Context, body map[string]any) (map[string]any, error) {
	return map[string]any{"status": "OK"}, nil
}

func decodeHex(body map[string]any, key string) ([]byte, error) {
	b, err := hex.DecodeString(pb.String(body, key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be hex", common.ErrBadRequest, key)
	}
	return b, nil
}

func (s *GRPCServer) register(ctx context.Context, body map[string]any) (map[string]any, error) {
	username := pb.String(body, "username")

	salt, err := decodeHex(body, "salt")
	if err != nil {
		return nil, err
	}
	verifier, err := decodeHex(body, "verifier")
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Registration request", "username", username)

	user, err := s.users.Register(ctx, username, salt, verifier)
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Registered", "username", username)
	return map[string]any{"user_id": user.ID}, nil
}

func (s *GRPCServer) getSalt(ctx context.Context, body map[string]any) (map[string]any, error) {
	salt, err := s.users.GetSalt(ctx, pb.String(body, "username"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"salt": hex.EncodeToString(salt)}, nil
}

func (s *GRPCServer) login(ctx context.Context, body map[string]any) (map[string]any, error) {
	verifier, err := decodeHex(body, "verifier")
	if err != nil {
		return nil, err
	}

	tokens, err := s.users.Login(ctx, pb.String(body, "username"), verifier)
	if err != nil {
		return nil, err
	}
	return tokenData(tokens), nil
}

func (s *GRPCServer) refreshToken(ctx context.Context, body map[string]any) (map[string]any, error) {
	tokens, err := s.users.RefreshToken(ctx, pb.String(body, "refresh_token"))
	if err != nil {
		return nil, err
	}
	return tokenData(tokens), nil
}

func tokenData(t *services.TokenPair) map[string]any {
	return map[string]any{"access_token": t.AccessToken, "refresh_token": t.RefreshToken}
}

func (s *GRPCServer) saveReport(ctx context.Context, body map[string]any) (map[string]any, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := s.reports.Save(ctx, userID, services.SaveReportInput{
		ReportID:          pb.String(body, "report_id"),
		ClientRef:         pb.String(body, "client_ref"),
		ReportType:        pb.String(body, "report_type"),
		CustomerID:        pb.String(body, "customer_id"),
		CertificateNumber: pb.String(body, "certificate_number"),
		Status:            pb.String(body, "status"),
		Payload:           pb.Map(body, "payload"),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "Report saved", "report_id", rep.ID, "version", rep.Version)
	return map[string]any{
		"report_id":  rep.ID,
		"version":    rep.Version,
		"updated_at": rep.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (s *GRPCServer) getReport(ctx context.Context, body map[string]any) (map[string]any, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	rep, err := s.reports.Get(ctx, userID, pb.String(body, "report_id"))
	if err != nil {
		return nil, err
	}

	encoded, err := encodeReport(rep)
	if err != nil {
		return nil, err
	}
	return map[string]any{"report": encoded}, nil
}

func encodeReport(r *models.Report) (map[string]any, error) {
	var payload map[string]any
	if len(r.Payload) > 0 {
		if err := json.Unmarshal(r.Payload, &payload); err != nil {
			return nil, fmt.Errorf("decode stored payload of %s: %w", r.ID, err)
		}
	}
	if payload == nil {
		payload = map[string]any{}
	}
	return map[string]any{
		"report_id":          r.ID,
		"client_ref":         r.ClientRef,
		"report_type":        r.ReportType,
		"customer_id":        r.CustomerID,
		"certificate_number": r.CertificateNumber,
		"status":             r.Status,
		"version":            r.Version,
		"payload":            payload,
		"updated_at":         r.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}, nil
}

func (s *GRPCServer) linkCustomer(ctx context.Context, body map[string]any) (map[string]any, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	if err := s.reports.LinkCustomer(ctx, userID, pb.String(body, "report_id"), pb.String(body, "customer_id")); err != nil {
		return nil, err
	}
	return map[string]any{}, nil
}

func (s *GRPCServer) generateCertificateNumber(ctx context.Context, body map[string]any) (map[string]any, error) {
	userID, err := callerID(ctx)
	if err != nil {
		return nil, err
	}

	n, err := s.certs.Generate(ctx, userID, pb.String(body, "report_type"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"certificate_number": n}, nil
}
