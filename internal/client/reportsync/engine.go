package reportsync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/elecmate/certsync/internal/client/client"
	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/logging"
)

// Remote is the part of the report store the engine uses.
type Remote interface {
	SaveReport(ctx context.Context, s models.DraftSnapshot) (client.SaveResult, error)
	GetReport(ctx context.Context, reportID string) (models.DraftSnapshot, error)
	LinkCustomer(ctx context.Context, reportID, customerID string) error
}

type Connectivity interface {
	IsOnline() bool
}

type AuthState interface {
	State() models.AuthState
	WaitResolved(ctx context.Context) (models.AuthState, error)
}

// Engine pushes and pulls reports. It re-checks connectivity and the session
// right before every call and never runs two pushes for the same draft at
// once.
type Engine struct {
	remote  Remote
	online  Connectivity
	auth    AuthState
	timeout time.Duration
	logger  logging.Logger

	locks keyedMutex
}

func NewEngine(remote Remote, online Connectivity, auth AuthState, timeout time.Duration, logger logging.Logger) *Engine {
	return &Engine{
		remote:  remote,
		online:  online,
		auth:    auth,
		timeout: timeout,
		logger:  logger.With("module", "engine"),
	}
}

// Preflight returns ErrOffline or ErrSignedOut when a call should not be
// attempted right now.
func (e *Engine) Preflight() error {
	if !e.online.IsOnline() {
		return ErrOffline
	}
	if e.auth.State() != models.AuthSignedIn {
		return ErrSignedOut
	}
	return nil
}

// Push saves the snapshot remotely. A snapshot without a report id creates
// the report and the result carries the new id. A call that outlives the
// push timeout fails with ErrPushTimeout.
func (e *Engine) Push(ctx context.Context, snap models.DraftSnapshot) (client.SaveResult, error) {
	unlock := e.locks.lock(snap.LocalID)
	defer unlock()

	if err := e.Preflight(); err != nil {
		return client.SaveResult{}, err
	}

	pctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	started := time.Now()
	res, err := e.remote.SaveReport(pctx, snap)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrPushTimeout, e.timeout, err)
		}
		e.logger.Warn(ctx, "push failed", "local_id", snap.LocalID, "report_id", snap.ReportID,
			"kind", Classify(err).String(), "error", err)
		return client.SaveResult{}, err
	}

	e.logger.Debug(ctx, "pushed report", "local_id", snap.LocalID, "report_id", res.ReportID,
		"version", res.Version, "took", time.Since(started))
	return res, nil
}

// Pull loads a report from the store. It waits for the session to be
// resolved instead of treating an unknown session as signed out.
func (e *Engine) Pull(ctx context.Context, reportID string) (models.DraftSnapshot, error) {
	state, err := e.auth.WaitResolved(ctx)
	if err != nil {
		return models.DraftSnapshot{}, err
	}
	if state != models.AuthSignedIn {
		return models.DraftSnapshot{}, ErrSignedOut
	}
	if !e.online.IsOnline() {
		return models.DraftSnapshot{}, ErrOffline
	}

	pctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	snap, err := e.remote.GetReport(pctx, reportID)
	if err != nil {
		if errors.Is(pctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s: %w", ErrPushTimeout, e.timeout, err)
		}
		return models.DraftSnapshot{}, err
	}
	if snap.ReportID == "" {
		snap.ReportID = reportID
	}
	return snap, nil
}

func (e *Engine) LinkCustomer(ctx context.Context, reportID, customerID string) error {
	if err := e.Preflight(); err != nil {
		return err
	}
	lctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()
	return e.remote.LinkCustomer(lctx, reportID, customerID)
}

// keyedMutex hands out one mutex per key and forgets it when unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedEntry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &keyedEntry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
