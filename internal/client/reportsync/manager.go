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

type AuthProvider interface {
	AuthState
	Watch(fn func(models.AuthState)) func()
	// Invalidate drops a session the store has rejected.
	Invalidate(ctx context.Context)
}

type ConnectivitySignal interface {
	Connectivity
	Watch(fn func(online bool)) func()
}

// CertificateIssuer hands out certificate numbers. Ensure assigns one to a
// Draft that has none and is a no-op otherwise.
type CertificateIssuer interface {
	Ensure(ctx context.Context, d *models.Draft) (string, error)
	Generate(ctx context.Context, t models.ReportType) (string, error)
}

// Config describes the form a Manager serves.
type Config struct {
	ReportType models.ReportType
	// InitialReportID is set when the form was opened for an existing
	// cloud report.
	InitialReportID string
	DebounceWindow  time.Duration
}

type Deps struct {
	Store  *LocalStore
	Engine *Engine
	Queue  *OfflineQueue
	Auth   AuthProvider
	Online ConnectivitySignal
	Certs  CertificateIssuer
	Logger logging.Logger
}

// SaveResult is the outcome of SaveNow.
type SaveResult struct {
	// Success is true when the cloud holds the current draft.
	Success  bool
	ReportID string
}

// Manager keeps one open form's Draft saved locally and in the cloud. The
// UI reports every edit with NotifyChanged and reads Status.
type Manager struct {
	store    *LocalStore
	engine   *Engine
	queue    *OfflineQueue
	auth     AuthProvider
	online   ConnectivitySignal
	certs    CertificateIssuer
	logger   logging.Logger
	agg      *Aggregator
	sched    *Scheduler
	detector Detector

	reportType models.ReportType

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	initialReportID string
	localID         string
	reportID        string
	latest          *models.DraftSnapshot
	latestFP        string
	offer           *models.RecoverableDraft
	offerDecided    bool
	linkedCustomer  string
	degraded        bool
	unwatch         []func()
}

// NewManager builds a Manager. Timer-driven cycles run under ctx until
// Close.
func NewManager(ctx context.Context, cfg Config, deps Deps) *Manager {
	m := &Manager{
		store:           deps.Store,
		engine:          deps.Engine,
		queue:           deps.Queue,
		auth:            deps.Auth,
		online:          deps.Online,
		certs:           deps.Certs,
		logger:          deps.Logger.With("module", "reportsync", "report_type", string(cfg.ReportType)),
		reportType:      cfg.ReportType,
		initialReportID: cfg.InitialReportID,
		agg: NewAggregator(models.SyncStatus{
			Local: models.LocalIdle,
			Cloud: models.CloudNotCreated,
		}),
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.sched = NewScheduler(m.ctx, cfg.DebounceWindow, m.cycle)
	return m
}

// Start opens the form. With an initial report id the report is loaded
// from the cloud; otherwise a new Draft with a certificate number is
// returned and a recoverable draft, if any, is offered.
func (m *Manager) Start(ctx context.Context) (*models.Draft, error) {
	m.queue.SetAckHandler(m.onReplayed)
	m.queue.SetRejectHandler(m.onRejected)
	unwatchOnline := m.online.Watch(func(online bool) {
		if online {
			m.kick()
		}
	})
	unwatchAuth := m.auth.Watch(func(s models.AuthState) {
		if s == models.AuthSignedIn {
			m.kick()
		}
	})
	m.mu.Lock()
	m.unwatch = append(m.unwatch, unwatchOnline, unwatchAuth)
	initial := m.initialReportID
	m.mu.Unlock()

	depth := m.queue.PeekDepth(ctx)
	m.agg.Update(func(s *models.SyncStatus) { s.QueuedChanges = depth })
	if depth > 0 {
		m.kick()
	}

	if initial != "" {
		d, err := m.LoadReport(ctx, initial)
		if err == nil {
			return d, nil
		}
		if k := Classify(err); k != KindDeferred && k != KindConnectivity {
			return nil, err
		}
		return m.openLocal(ctx, initial, err)
	}

	d, err := m.newDraft(ctx)
	if err != nil {
		return nil, err
	}

	res, err := m.store.Load(ctx, m.reportType, "")
	if err != nil {
		m.warn(err)
	}
	if r := res.Recoverable; r != nil && r.LocalID != d.LocalID {
		m.mu.Lock()
		m.offer = r
		m.mu.Unlock()
		m.logger.Info(ctx, "recoverable draft found", "local_id", r.LocalID, "captured_at", r.CapturedAt)
	}
	return d, nil
}

// openLocal opens the device copy of a report that could not be pulled.
func (m *Manager) openLocal(ctx context.Context, reportID string, cause error) (*models.Draft, error) {
	res, err := m.store.Load(ctx, m.reportType, reportID)
	if err != nil || res.Draft == nil {
		return nil, cause
	}
	rec := res.Draft
	d := models.FromSnapshot(rec.Snapshot)

	m.mu.Lock()
	m.localID = d.LocalID
	m.reportID = reportID
	snap := d.Snapshot()
	m.latest = &snap
	m.latestFP = rec.Fingerprint
	m.linkedCustomer = d.CustomerID
	m.mu.Unlock()
	m.detector.Reset(rec.Fingerprint, rec.SyncedFingerprint)

	state, msg := deferredState(cause)
	m.agg.Update(func(s *models.SyncStatus) {
		s.Local = models.LocalSaved
		s.Cloud = state
		s.ErrorMessage = msg
		s.ReportID = reportID
		s.LastCloudSync = rec.SyncedAt
	})
	m.logger.Warn(ctx, "opened device copy of report", "report_id", reportID, "error", cause)
	return d, nil
}

func (m *Manager) newDraft(ctx context.Context) (*models.Draft, error) {
	d := models.NewDraft(m.reportType)
	if _, err := m.certs.Ensure(ctx, d); err != nil {
		return nil, fmt.Errorf("assign certificate number: %w", err)
	}
	m.switchTo(d.LocalID, "", "")
	return d, nil
}

// switchTo makes the Manager track a different Draft.
func (m *Manager) switchTo(localID, reportID, customerID string) {
	m.mu.Lock()
	m.localID = localID
	m.reportID = reportID
	m.latest = nil
	m.latestFP = ""
	m.linkedCustomer = customerID
	m.mu.Unlock()
	m.detector.Reset("", "")

	cloud := models.CloudNotCreated
	if reportID != "" {
		cloud = models.CloudSynced
	}
	m.agg.Update(func(s *models.SyncStatus) {
		s.Local = models.LocalIdle
		s.Cloud = cloud
		s.ErrorMessage = ""
		s.ReportID = reportID
		s.LastCloudSync = time.Time{}
	})
}

func (m *Manager) Status() models.SyncStatus { return m.agg.Status() }

func (m *Manager) Subscribe() <-chan models.SyncStatus { return m.agg.Subscribe() }

// ReportID returns the cloud id of the open report, or "".
func (m *Manager) ReportID() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reportID
}

// Identify copies the cloud id learned for the open report onto d. The UI
// calls it after SaveNow; NotifyChanged does it on every edit.
func (m *Manager) Identify(d *models.Draft) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.LocalID == m.localID && d.ReportID == "" {
		d.ReportID = m.reportID
	}
}

// NotifyChanged reports an edit of d. It never blocks on storage or the
// network.
func (m *Manager) NotifyChanged(d *models.Draft) {
	m.Identify(d)
	snap := d.Snapshot()
	fp, err := Fingerprint(snap)
	if err != nil {
		m.logger.Warn(m.ctx, "failed to fingerprint draft", "local_id", snap.LocalID, "error", err)
	}

	m.mu.Lock()
	if snap.LocalID != m.localID {
		m.mu.Unlock()
		m.logger.Warn(m.ctx, "ignoring change of a draft this form does not own", "local_id", snap.LocalID)
		return
	}
	if snap.ReportID == "" {
		snap.ReportID = m.reportID
	}
	m.latest = &snap
	m.latestFP = fp
	m.mu.Unlock()

	dirty := m.detector.Dirty(fp)
	synced := m.detector.Synced(fp)
	state, msg := m.pendingCloud()
	m.agg.Update(func(s *models.SyncStatus) {
		if dirty {
			s.Local = models.LocalUnsaved
		}
		if synced {
			s.Cloud = models.CloudSynced
			s.ErrorMessage = ""
			return
		}
		s.Cloud = state
		s.ErrorMessage = msg
	})
	m.sched.Notify(snap)
}

// cycle saves snap locally and then brings the cloud up to date.
func (m *Manager) cycle(ctx context.Context, snap models.DraftSnapshot) {
	fp, err := Fingerprint(snap)
	if err != nil {
		m.logger.Warn(ctx, "failed to fingerprint draft", "local_id", snap.LocalID, "error", err)
	}

	m.mu.Lock()
	if snap.ReportID == "" {
		snap.ReportID = m.reportID
	}
	degraded := m.degraded
	recovery := !m.detector.Synced(fp) && (m.offer == nil || m.offerDecided)
	m.mu.Unlock()

	if m.detector.Dirty(fp) || degraded {
		m.agg.Update(func(s *models.SyncStatus) { s.Local = models.LocalSaving })
		werr := m.store.Save(ctx, snap, fp, SaveOptions{UpdateRecovery: recovery})
		m.detector.MarkPersisted(fp)

		m.mu.Lock()
		m.degraded = werr != nil
		m.mu.Unlock()
		warning := ""
		if werr != nil {
			warning = werr.Error()
		}
		m.agg.Update(func(s *models.SyncStatus) { s.Warning = warning })
	}

	m.mu.Lock()
	latestFP := m.latestFP
	m.mu.Unlock()
	m.agg.Update(func(s *models.SyncStatus) {
		if latestFP == fp {
			s.Local = models.LocalSaved
		} else {
			s.Local = models.LocalUnsaved
		}
	})

	if m.detector.Synced(fp) {
		m.agg.Update(func(s *models.SyncStatus) {
			s.Cloud = models.CloudSynced
			s.ErrorMessage = ""
		})
		return
	}
	m.pushOrQueue(ctx, snap, fp)
}

// pushOrQueue sends snap, or appends it behind the changes of the same
// draft already waiting so that the cloud sees its edits in order. Changes
// of other drafts do not hold it back.
func (m *Manager) pushOrQueue(ctx context.Context, snap models.DraftSnapshot, fp string) {
	if tail := m.queue.Latest(ctx, snap.LocalID); tail != nil {
		if tfp, err := Fingerprint(tail.Snapshot); err != nil || tfp != fp {
			if err := m.queue.Enqueue(ctx, snap, nil); err != nil {
				m.warn(err)
			}
		}
		m.drain(ctx)
		return
	}

	if err := m.engine.Preflight(); err == nil {
		m.agg.Update(func(s *models.SyncStatus) {
			s.Cloud = models.CloudSyncing
			s.ErrorMessage = ""
		})
	}

	res, err := m.engine.Push(ctx, snap)
	if err != nil {
		m.pushFailed(ctx, snap, err)
		return
	}
	m.onPushed(ctx, snap, fp, res)
	if m.queue.PeekDepth(ctx) > 0 {
		m.afterFlush(ctx, m.queue.Flush(ctx))
	}
}

func (m *Manager) pushFailed(ctx context.Context, snap models.DraftSnapshot, err error) {
	kind := Classify(err)
	switch {
	case kind == KindAuth:
		m.auth.Invalidate(ctx)
		m.agg.Update(func(s *models.SyncStatus) {
			s.Cloud = models.CloudError
			s.ErrorMessage = msgSessionExpiry
		})
	case kind == KindValidation:
		m.agg.Update(func(s *models.SyncStatus) {
			s.Cloud = models.CloudError
			s.ErrorMessage = userMessage(err)
		})
	case kind.Retryable():
		if qerr := m.queue.Enqueue(ctx, snap, err); qerr != nil {
			m.warn(qerr)
		}
		depth := m.queue.PeekDepth(ctx)
		state, msg := deferredState(err)
		m.agg.Update(func(s *models.SyncStatus) {
			s.Cloud = state
			s.ErrorMessage = msg
			s.QueuedChanges = depth
		})
	default:
		m.warn(err)
	}
}

// onPushed applies a cloud acknowledgement of snap, either from a live push
// or a queue replay.
func (m *Manager) onPushed(ctx context.Context, snap models.DraftSnapshot, fp string, res client.SaveResult) {
	reportID := res.ReportID
	if reportID == "" {
		reportID = snap.ReportID
	}
	if err := m.store.MarkSynced(ctx, snap, reportID, res.Version, fp); err != nil {
		m.warn(err)
	}

	m.mu.Lock()
	current := snap.LocalID == m.localID
	if current && reportID != "" {
		m.reportID = reportID
	}
	latestFP := m.latestFP
	linked := m.linkedCustomer
	offer := m.offer
	m.mu.Unlock()

	if !current {
		if offer != nil && offer.LocalID == snap.LocalID {
			m.dropStaleOffer(ctx, offer)
		}
		return
	}

	m.detector.MarkSynced(fp)
	at := res.UpdatedAt
	if at.IsZero() {
		at = time.Now()
	}
	state, msg := models.CloudSynced, ""
	if latestFP != fp {
		state, msg = m.pendingCloud()
	}
	m.agg.Update(func(s *models.SyncStatus) {
		s.Cloud = state
		s.ErrorMessage = msg
		s.LastCloudSync = at
		s.ReportID = reportID
	})

	if snap.CustomerID != "" && snap.CustomerID != linked && reportID != "" {
		if err := m.engine.LinkCustomer(ctx, reportID, snap.CustomerID); err != nil {
			m.logger.Warn(ctx, "failed to link customer", "report_id", reportID,
				"customer_id", snap.CustomerID, "error", err)
			return
		}
		m.mu.Lock()
		m.linkedCustomer = snap.CustomerID
		m.mu.Unlock()
	}
}

// dropStaleOffer withdraws a recovery offer whose draft reached the cloud.
func (m *Manager) dropStaleOffer(ctx context.Context, offer *models.RecoverableDraft) {
	res, err := m.store.Load(ctx, m.reportType, "")
	if err != nil {
		return
	}
	if res.Recoverable == nil || res.Recoverable.LocalID != offer.LocalID {
		m.mu.Lock()
		if m.offer == offer {
			m.offer = nil
		}
		m.mu.Unlock()
		m.logger.Info(ctx, "recoverable draft reached the cloud", "local_id", offer.LocalID)
	}
}

// onRejected shows a replayed change the store refused on the draft it
// belongs to.
func (m *Manager) onRejected(ctx context.Context, c models.QueuedChange, err error) {
	m.mu.Lock()
	current := c.LocalID == m.localID
	m.mu.Unlock()
	if !current {
		return
	}
	msg := userMessage(err)
	m.agg.Update(func(s *models.SyncStatus) {
		s.Cloud = models.CloudError
		s.ErrorMessage = msg
	})
}

func (m *Manager) onReplayed(ctx context.Context, c models.QueuedChange, sent models.DraftSnapshot, res client.SaveResult) {
	fp, err := Fingerprint(sent)
	if err != nil {
		m.logger.Warn(ctx, "failed to fingerprint replayed change", "id", c.ID, "error", err)
	}
	m.onPushed(ctx, sent, fp, res)
}

// drain replays the offline queue and then schedules the open draft if the
// cloud still lacks its latest edit.
func (m *Manager) drain(ctx context.Context) {
	if m.queue.PeekDepth(ctx) > 0 {
		res := m.queue.Flush(ctx)
		m.afterFlush(ctx, res)
		if res.Err != nil {
			return
		}
	}

	m.mu.Lock()
	latest, fp := m.latest, m.latestFP
	m.mu.Unlock()
	if latest != nil && !m.detector.Synced(fp) && m.engine.Preflight() == nil {
		m.sched.Notify(*latest)
	}
}

// afterFlush publishes the outcome of a replay. A failure that stopped the
// pass only changes the cloud state of the open draft when that draft still
// has something to send.
func (m *Manager) afterFlush(ctx context.Context, res FlushResult) {
	if res.Sent > 0 || res.Dropped > 0 || res.Rejected > 0 {
		m.logger.Info(ctx, "offline queue replayed", "sent", res.Sent, "dropped", res.Dropped,
			"rejected", res.Rejected, "remaining", res.Remaining)
	}

	kind := Classify(res.Err)
	switch {
	case kind == KindNone:
	case kind == KindAuth:
		m.auth.Invalidate(ctx)
	case kind == KindLocalStorage:
		m.warn(res.Err)
	}

	affected := kind != KindNone && m.hasUnsent(ctx)
	m.agg.Update(func(s *models.SyncStatus) {
		s.QueuedChanges = res.Remaining
		if !affected {
			return
		}
		switch {
		case kind == KindAuth:
			s.Cloud = models.CloudError
			s.ErrorMessage = msgSessionExpiry
		case kind.Retryable():
			s.Cloud, s.ErrorMessage = deferredState(res.Err)
		}
	})
}

// hasUnsent reports whether the open draft has an edit the cloud lacks.
func (m *Manager) hasUnsent(ctx context.Context) bool {
	m.mu.Lock()
	localID, latest, fp := m.localID, m.latest, m.latestFP
	m.mu.Unlock()
	if latest != nil && !m.detector.Synced(fp) {
		return true
	}
	return localID != "" && m.queue.Latest(ctx, localID) != nil
}

// kick drains the queue in the background once connectivity or the session
// comes back.
func (m *Manager) kick() {
	go func() {
		err := m.sched.Do(m.ctx, m.drain)
		if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, context.Canceled) {
			m.logger.Warn(m.ctx, "failed to drain offline queue", "error", err)
		}
	}()
}

// pendingCloud is the cloud state of an edit that has not been pushed yet.
func (m *Manager) pendingCloud() (models.CloudState, string) {
	if err := m.engine.Preflight(); err != nil {
		return deferredState(err)
	}
	return models.CloudSyncing, ""
}

func deferredState(err error) (models.CloudState, string) {
	switch {
	case errors.Is(err, ErrSignedOut):
		return models.CloudQueued, msgSignIn
	case errors.Is(err, ErrOffline), Classify(err) == KindConnectivity:
		return models.CloudOffline, ""
	}
	return models.CloudQueued, userMessage(err)
}

func (m *Manager) warn(err error) {
	msg := err.Error()
	m.agg.Update(func(s *models.SyncStatus) { s.Warning = msg })
}

// flushCurrent runs the cycle for an edit still waiting in the quiet window.
func (m *Manager) flushCurrent(ctx context.Context) error {
	m.mu.Lock()
	latest := m.latest
	m.mu.Unlock()
	if latest == nil || !m.sched.Pending() {
		return nil
	}
	return m.sched.Flush(ctx, *latest)
}

// SaveNow saves the current draft locally and pushes it, skipping the
// quiet window.
func (m *Manager) SaveNow(ctx context.Context) (SaveResult, error) {
	m.mu.Lock()
	latest := m.latest
	m.mu.Unlock()

	if latest != nil {
		if err := m.sched.Flush(ctx, *latest); err != nil {
			return SaveResult{}, err
		}
	} else if err := m.sched.Do(ctx, m.drain); err != nil {
		return SaveResult{}, err
	}

	st := m.agg.Status()
	return SaveResult{
		Success:  st.Cloud == models.CloudSynced && st.Local != models.LocalUnsaved,
		ReportID: m.ReportID(),
	}, nil
}

// LoadReport replaces the open draft with the cloud copy of reportID. The
// cloud copy wins over whatever the device holds for the report.
func (m *Manager) LoadReport(ctx context.Context, reportID string) (*models.Draft, error) {
	if err := m.flushCurrent(ctx); err != nil {
		return nil, err
	}

	var (
		d    *models.Draft
		lerr error
	)
	err := m.sched.Do(ctx, func(ctx context.Context) {
		d, lerr = m.load(ctx, reportID)
	})
	if err != nil {
		return nil, err
	}
	if lerr != nil {
		state, msg := models.CloudError, userMessage(lerr)
		if k := Classify(lerr); k == KindDeferred || k == KindConnectivity {
			state, msg = deferredState(lerr)
		}
		m.agg.Update(func(s *models.SyncStatus) {
			s.Cloud = state
			s.ErrorMessage = msg
		})
		return nil, lerr
	}
	return d, nil
}

func (m *Manager) load(ctx context.Context, reportID string) (*models.Draft, error) {
	// Queued edits of this report go out first so the pull sees them.
	if m.queue.PeekDepth(ctx) > 0 {
		m.afterFlush(ctx, m.queue.Flush(ctx))
	}

	snap, err := m.engine.Pull(ctx, reportID)
	if err != nil {
		m.logger.Warn(ctx, "failed to load report", "report_id", reportID, "error", err)
		return nil, err
	}

	d := models.FromSnapshot(snap)
	snap = d.Snapshot()

	res, err := m.store.Load(ctx, m.reportType, reportID)
	if err != nil {
		m.warn(err)
	}
	if res.Draft != nil && res.Draft.Snapshot.LocalID != snap.LocalID {
		if err := m.store.Replace(ctx, res.Draft.Snapshot.LocalID); err != nil {
			m.warn(err)
		}
	}

	fp, err := Fingerprint(snap)
	if err != nil {
		return nil, err
	}
	var warning string
	if err := m.store.Save(ctx, snap, fp, SaveOptions{}); err != nil {
		warning = err.Error()
	}
	if err := m.store.MarkSynced(ctx, snap, reportID, snap.Version, fp); err != nil && warning == "" {
		warning = err.Error()
	}

	m.mu.Lock()
	m.localID = snap.LocalID
	m.reportID = reportID
	m.latest = &snap
	m.latestFP = fp
	m.linkedCustomer = snap.CustomerID
	m.offer = nil
	m.offerDecided = true
	m.degraded = warning != ""
	m.mu.Unlock()
	m.detector.Reset(fp, fp)

	m.agg.Update(func(s *models.SyncStatus) {
		s.Local = models.LocalSaved
		s.Cloud = models.CloudSynced
		s.ErrorMessage = ""
		s.Warning = warning
		s.ReportID = reportID
		s.LastCloudSync = snap.UpdatedAt
	})
	m.logger.Info(ctx, "report loaded", "report_id", reportID, "local_id", snap.LocalID, "version", snap.Version)
	return d, nil
}

// HasRecoverableDraft is true only while a recoverable draft of another
// Draft exists and the form is not showing an identified report.
func (m *Manager) HasRecoverableDraft() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hasOffer()
}

func (m *Manager) hasOffer() bool {
	return m.offer != nil && !m.offerDecided && m.reportID == "" && m.initialReportID == ""
}

// DraftPreview returns the offered recoverable draft, or nil.
func (m *Manager) DraftPreview() *models.RecoverableDraft {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasOffer() {
		return nil
	}
	r := *m.offer
	r.Payload = r.Payload.Clone()
	return &r
}

// RecoverDraft accepts the offer and returns its payload for the UI to
// merge into the open draft, or nil when nothing is offered.
func (m *Manager) RecoverDraft(ctx context.Context) models.Payload {
	m.mu.Lock()
	if !m.hasOffer() {
		m.mu.Unlock()
		return nil
	}
	offer := m.offer
	m.offer = nil
	m.offerDecided = true
	m.mu.Unlock()

	if err := m.store.DiscardRecoverable(ctx, m.reportType); err != nil {
		m.warn(err)
	}
	m.logger.Info(ctx, "recoverable draft restored", "from_local_id", offer.LocalID)
	return offer.Payload.Clone()
}

// DiscardDraft declines the offer and deletes the recoverable draft.
func (m *Manager) DiscardDraft(ctx context.Context) {
	m.mu.Lock()
	offer := m.offer
	m.offer = nil
	m.offerDecided = true
	m.mu.Unlock()
	if offer == nil {
		return
	}

	if err := m.store.DiscardRecoverable(ctx, m.reportType); err != nil {
		m.warn(err)
	}
	m.logger.Info(ctx, "recoverable draft discarded", "local_id", offer.LocalID)
}

// StartNew finishes the open draft and begins a blank one with a new
// certificate number.
func (m *Manager) StartNew(ctx context.Context) (*models.Draft, error) {
	if err := m.flushCurrent(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.initialReportID = ""
	m.offer = nil
	m.offerDecided = true
	m.mu.Unlock()

	return m.newDraft(ctx)
}

// Duplicate forks d into a new draft with its own identity and certificate
// number, and makes the copy the open draft.
func (m *Manager) Duplicate(ctx context.Context, d *models.Draft) (*models.Draft, error) {
	if err := m.flushCurrent(ctx); err != nil {
		return nil, err
	}

	cert, err := m.certs.Generate(ctx, d.ReportType)
	if err != nil {
		return nil, fmt.Errorf("assign certificate number: %w", err)
	}
	dup, err := d.Duplicate(cert)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.initialReportID = ""
	m.offer = nil
	m.offerDecided = true
	m.mu.Unlock()

	m.switchTo(dup.LocalID, "", "")
	m.NotifyChanged(dup)
	return dup, nil
}

// Close runs a final cycle for a pending edit and waits for the running
// one. Nothing that Close started is left in flight.
func (m *Manager) Close(ctx context.Context) error {
	err := m.sched.Close(ctx)

	m.mu.Lock()
	unwatch := m.unwatch
	m.unwatch = nil
	m.mu.Unlock()
	for _, fn := range unwatch {
		fn()
	}
	m.queue.SetAckHandler(nil)
	m.cancel()
	return err
}
