package reportsync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/elecmate/certsync/internal/client/client"
	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/repositories/drafts"
	"github.com/elecmate/certsync/internal/client/repositories/sqlitetest"
	"github.com/elecmate/certsync/internal/client/services"
	"github.com/elecmate/certsync/internal/logging"
	"github.com/stretchr/testify/require"
)

// ---- fake remote store ----

type fakeRemote struct {
	mu       sync.Mutex
	reports  map[string]models.DraftSnapshot
	byRef    map[string]string
	links    map[string]string
	inflight map[string]int
	overlaps int
	saves    int
	pulls    int
	delay    time.Duration
	// onSave runs before a save is applied; a non-nil error fails it.
	onSave func(ctx context.Context, s models.DraftSnapshot) error
	certs  int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		reports:  make(map[string]models.DraftSnapshot),
		byRef:    make(map[string]string),
		links:    make(map[string]string),
		inflight: make(map[string]int),
	}
}

func (r *fakeRemote) SaveReport(ctx context.Context, s models.DraftSnapshot) (client.SaveResult, error) {
	r.mu.Lock()
	r.inflight[s.LocalID]++
	if r.inflight[s.LocalID] > 1 {
		r.overlaps++
	}
	hook, delay := r.onSave, r.delay
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.inflight[s.LocalID]--
		r.mu.Unlock()
	}()

	if delay > 0 {
		time.Sleep(delay)
	}
	if hook != nil {
		if err := hook(ctx, s); err != nil {
			return client.SaveResult{}, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.saves++

	id := s.ReportID
	if id == "" {
		id = r.byRef[s.LocalID]
	}
	if id == "" {
		id = fmt.Sprintf("rep-%d", len(r.reports)+1)
		r.byRef[s.LocalID] = id
	} else if _, ok := r.reports[id]; !ok {
		return client.SaveResult{}, client.ErrNotFound
	}

	prev := r.reports[id]
	s.ReportID = id
	s.Version = prev.Version + 1
	s.Payload = s.Payload.Clone()
	s.UpdatedAt = time.Now().UTC()
	r.reports[id] = s
	return client.SaveResult{ReportID: id, Version: s.Version, UpdatedAt: s.UpdatedAt}, nil
}

func (r *fakeRemote) GetReport(ctx context.Context, reportID string) (models.DraftSnapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pulls++
	s, ok := r.reports[reportID]
	if !ok {
		return models.DraftSnapshot{}, client.ErrNotFound
	}
	s.Payload = s.Payload.Clone()
	return s, nil
}

func (r *fakeRemote) LinkCustomer(ctx context.Context, reportID, customerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.links[reportID] = customerID
	return nil
}

func (r *fakeRemote) GenerateCertificateNumber(ctx context.Context, t models.ReportType) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.certs++
	return fmt.Sprintf("%s-%06d", t.CertificatePrefix(), r.certs), nil
}

func (r *fakeRemote) seed(s models.DraftSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports[s.ReportID] = s
	r.byRef[s.LocalID] = s.ReportID
}

func (r *fakeRemote) report(id string) (models.DraftSnapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.reports[id]
	return s, ok
}

func (r *fakeRemote) setHook(fn func(ctx context.Context, s models.DraftSnapshot) error) {
	r.mu.Lock()
	r.onSave = fn
	r.mu.Unlock()
}

func (r *fakeRemote) stats() (saves, overlaps int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saves, r.overlaps
}

// ---- fake connectivity and auth ----

type fakeOnline struct {
	mu     sync.Mutex
	online bool
	fns    []func(bool)
}

func (o *fakeOnline) IsOnline() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.online
}

func (o *fakeOnline) Set(online bool) {
	o.mu.Lock()
	changed := o.online != online
	o.online = online
	fns := append(([]func(bool))(nil), o.fns...)
	o.mu.Unlock()
	if changed {
		for _, fn := range fns {
			fn(online)
		}
	}
}

func (o *fakeOnline) Watch(fn func(bool)) func() {
	o.mu.Lock()
	o.fns = append(o.fns, fn)
	o.mu.Unlock()
	return func() {}
}

type fakeAuth struct {
	mu          sync.Mutex
	state       models.AuthState
	resolved    chan struct{}
	once        sync.Once
	fns         []func(models.AuthState)
	invalidated int
}

func newFakeAuth(s models.AuthState) *fakeAuth {
	a := &fakeAuth{resolved: make(chan struct{})}
	if s != models.AuthUnknown {
		a.Set(s)
	}
	return a
}

func (a *fakeAuth) State() models.AuthState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *fakeAuth) Set(s models.AuthState) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	fns := append(([]func(models.AuthState))(nil), a.fns...)
	a.mu.Unlock()

	a.once.Do(func() { close(a.resolved) })
	if changed {
		for _, fn := range fns {
			fn(s)
		}
	}
}

func (a *fakeAuth) WaitResolved(ctx context.Context) (models.AuthState, error) {
	select {
	case <-a.resolved:
		return a.State(), nil
	case <-ctx.Done():
		return models.AuthUnknown, ctx.Err()
	}
}

func (a *fakeAuth) Watch(fn func(models.AuthState)) func() {
	a.mu.Lock()
	a.fns = append(a.fns, fn)
	a.mu.Unlock()
	return func() {}
}

func (a *fakeAuth) Invalidate(ctx context.Context) {
	a.mu.Lock()
	a.invalidated++
	a.mu.Unlock()
	a.Set(models.AuthSignedOut)
}

// ---- counting drafts repository ----

type countingDrafts struct {
	drafts.Repository
	upserts atomic.Int32
}

func (c *countingDrafts) Upsert(ctx context.Context, rec drafts.Record) error {
	c.upserts.Add(1)
	return c.Repository.Upsert(ctx, rec)
}

// ---- harness ----

type harness struct {
	remote *fakeRemote
	online *fakeOnline
	auth   *fakeAuth
	repos  *client.Repositories
	drafts *countingDrafts
	store  *LocalStore
	engine *Engine
	queue  *OfflineQueue
	certs  *services.CertificateService
	logger logging.Logger
}

type harnessOption func(h *harness, timeout *time.Duration)

func withPushTimeout(d time.Duration) harnessOption {
	return func(h *harness, timeout *time.Duration) { *timeout = d }
}

func newHarness(t *testing.T, opts ...harnessOption) *harness {
	t.Helper()

	db := sqlitetest.Open(t)
	h := &harness{
		remote: newFakeRemote(),
		online: &fakeOnline{online: true},
		auth:   newFakeAuth(models.AuthSignedIn),
		repos:  client.NewRepositories(db),
		logger: logging.NewDiscardLogger(),
	}
	timeout := 2 * time.Second
	for _, o := range opts {
		o(h, &timeout)
	}

	h.drafts = &countingDrafts{Repository: h.repos.Drafts}
	h.store = NewLocalStore(h.drafts, h.repos.Recovery, h.logger)
	h.engine = NewEngine(h.remote, h.online, h.auth, timeout, h.logger)
	h.queue = NewOfflineQueue(h.repos.Queue, h.engine, h.logger)
	h.certs = services.NewCertificateService(h.remote, h.repos.Metadata, h.online, h.auth, h.logger)
	return h
}

func (h *harness) manager(t *testing.T, cfg Config) *Manager {
	t.Helper()
	if cfg.ReportType == "" {
		cfg.ReportType = models.ReportTypeEIC
	}
	if cfg.DebounceWindow == 0 {
		cfg.DebounceWindow = 20 * time.Millisecond
	}
	m := NewManager(context.Background(), cfg, Deps{
		Store:  h.store,
		Engine: h.engine,
		Queue:  h.queue,
		Auth:   h.auth,
		Online: h.online,
		Certs:  h.certs,
		Logger: h.logger,
	})
	t.Cleanup(func() { _ = m.Close(context.Background()) })
	return m
}

func (h *harness) depth(t *testing.T) int {
	t.Helper()
	n, err := h.repos.Queue.Count(context.Background())
	require.NoError(t, err)
	return n
}

func waitStatus(t *testing.T, m *Manager, cond func(s models.SyncStatus) bool) models.SyncStatus {
	t.Helper()
	require.Eventually(t, func() bool { return cond(m.Status()) }, 5*time.Second, 5*time.Millisecond,
		"status never reached the expected state, last: %+v", m.Status())
	return m.Status()
}

func settled(s models.SyncStatus) bool {
	return s.Local == models.LocalSaved && s.Cloud == models.CloudSynced && s.QueuedChanges == 0
}
