package client

import (
	"errors"

	"github.com/elecmate/certsync/internal/common"
)

var (
	ErrUnavailable           = errors.New("server unavailable")
	ErrUnauthorized          = errors.New("unauthorized")
	ErrValidation            = errors.New("rejected by server")
	ErrRemote                = errors.New("remote error")
	ErrNotFound              = common.ErrorNotFound
	ErrLocalDataNotAvailable = errors.New("local data unavailable")
)

// ValidationError is a store-side rejection. Message is shown to the user
// as-is.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }
