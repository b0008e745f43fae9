package reportsync

import (
	"context"
	"errors"
	"fmt"

	"github.com/elecmate/certsync/internal/client/client"
)

var (
	// ErrOffline means a network call was not attempted because the
	// device is offline.
	ErrOffline = errors.New("offline")
	// ErrSignedOut means a network call was not attempted because there
	// is no session.
	ErrSignedOut = errors.New("not signed in")
	// ErrPushTimeout is returned when the store does not answer in time.
	ErrPushTimeout = errors.New("cloud push timed out")
	ErrClosed      = errors.New("report sync closed")
)

// ErrorKind is the sync error taxonomy.
type ErrorKind int

const (
	KindNone ErrorKind = iota
	// KindConnectivity: the store could not be reached or did not answer.
	KindConnectivity
	// KindDeferred: the call was not attempted (offline or signed out).
	KindDeferred
	// KindAuth: the store rejected the session.
	KindAuth
	// KindValidation: the store rejected the payload.
	KindValidation
	// KindLocalStorage: the device database failed.
	KindLocalStorage
	// KindRemote: any other store failure; treated as transient.
	KindRemote
)

func (k ErrorKind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindConnectivity:
		return "connectivity"
	case KindDeferred:
		return "deferred"
	case KindAuth:
		return "auth"
	case KindValidation:
		return "validation"
	case KindLocalStorage:
		return "local-storage"
	}
	return "remote"
}

// Retryable kinds go to the offline queue.
func (k ErrorKind) Retryable() bool {
	return k == KindConnectivity || k == KindDeferred || k == KindRemote
}

// LocalStorageError is a degraded-mode warning from the LocalStore.
type LocalStorageError struct {
	Op  string
	Err error
}

func (e *LocalStorageError) Error() string {
	return fmt.Sprintf("local storage %s: %v", e.Op, e.Err)
}

func (e *LocalStorageError) Unwrap() error { return e.Err }

func Classify(err error) ErrorKind {
	var lse *LocalStorageError
	switch {
	case err == nil:
		return KindNone
	case errors.As(err, &lse):
		return KindLocalStorage
	case errors.Is(err, ErrOffline), errors.Is(err, ErrSignedOut):
		return KindDeferred
	case errors.Is(err, ErrPushTimeout),
		errors.Is(err, client.ErrUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return KindConnectivity
	case errors.Is(err, client.ErrUnauthorized):
		return KindAuth
	case errors.Is(err, client.ErrValidation):
		return KindValidation
	}
	return KindRemote
}

const (
	msgSignIn        = "Please sign in to sync this report."
	msgSessionExpiry = "Your session has expired. Please sign in to sync this report."
)

// userMessage is what the status line shows for err.
func userMessage(err error) string {
	var ve *client.ValidationError
	switch Classify(err) {
	case KindNone, KindConnectivity:
		return ""
	case KindDeferred:
		if errors.Is(err, ErrSignedOut) {
			return msgSignIn
		}
		return ""
	case KindAuth:
		return msgSessionExpiry
	case KindValidation:
		if errors.As(err, &ve) {
			return ve.Message
		}
	}
	return err.Error()
}
