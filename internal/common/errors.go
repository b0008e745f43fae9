package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrBadRequest     = errors.New("bad request")

	// Validation errors for report payloads.
	ErrUnknownReportType          = errors.New("unknown report type")
	ErrCertificateNumberRequired  = errors.New("certificate number is required")
	ErrCertificateNumberImmutable = errors.New("certificate number cannot be changed")
	ErrReportTypeImmutable        = errors.New("report type cannot be changed")
	ErrInvalidPayload             = errors.New("invalid payload")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
