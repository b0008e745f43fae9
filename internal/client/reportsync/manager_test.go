package reportsync

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/elecmate/certsync/internal/client/client"
	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/repositories/drafts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_OfflineEditReplaysOnReconnect(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.online.Set(false)

	m := h.manager(t, Config{ReportType: models.ReportTypeEIC})
	d, err := m.Start(ctx)
	require.NoError(t, err)
	require.True(t, d.HasCertificateNumber())

	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)

	st := waitStatus(t, m, func(s models.SyncStatus) bool {
		return s.Local == models.LocalSaved && s.QueuedChanges == 1
	})
	assert.Equal(t, models.CloudOffline, st.Cloud)
	assert.Empty(t, st.ErrorMessage)
	assert.False(t, st.SafeToClose())

	h.online.Set(true)

	st = waitStatus(t, m, settled)
	require.NotEmpty(t, st.ReportID)
	assert.False(t, st.LastCloudSync.IsZero())
	assert.True(t, st.SafeToClose())

	remote, ok := h.remote.report(st.ReportID)
	require.True(t, ok)
	assert.Equal(t, "Smith", remote.Payload["clientName"])
	assert.Equal(t, d.CertificateNumber(), remote.CertificateNumber)
	assert.Equal(t, 0, h.depth(t))
}

func TestManager_OfflineEditsReplayInOrder(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.online.Set(false)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	for _, name := range []string{"A", "B", "C", "D"} {
		require.NoError(t, d.Set("clientName", name))
		m.NotifyChanged(d)
		res, err := m.SaveNow(ctx)
		require.NoError(t, err)
		assert.False(t, res.Success)
	}
	assert.Equal(t, 4, h.depth(t))
	assert.Equal(t, 4, m.Status().QueuedChanges)

	h.online.Set(true)
	st := waitStatus(t, m, settled)

	remote, ok := h.remote.report(st.ReportID)
	require.True(t, ok)
	assert.Equal(t, "D", remote.Payload["clientName"])
	assert.EqualValues(t, 4, remote.Version)

	saves, overlaps := h.remote.stats()
	assert.Equal(t, 4, saves)
	assert.Zero(t, overlaps)

	h.remote.mu.Lock()
	defer h.remote.mu.Unlock()
	assert.Len(t, h.remote.byRef, 1)
}

func TestManager_EditsQueueBehindWaitingChanges(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.auth.Set(models.AuthSignedOut)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "first"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)

	st := m.Status()
	assert.Equal(t, models.CloudQueued, st.Cloud)
	assert.Equal(t, msgSignIn, st.ErrorMessage)
	assert.Equal(t, 1, st.QueuedChanges)

	h.auth.Set(models.AuthSignedIn)
	st = waitStatus(t, m, settled)

	remote, _ := h.remote.report(st.ReportID)
	assert.Equal(t, "first", remote.Payload["clientName"])
}

func TestManager_DebounceCoalescesRapidEdits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{DebounceWindow: 800 * time.Millisecond})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("installationDate", "2024-03-01"))
	m.NotifyChanged(d)
	assert.Equal(t, models.LocalUnsaved, m.Status().Local)

	time.Sleep(150 * time.Millisecond)
	require.NoError(t, d.Set("installationDate", "2024-03-02"))
	m.NotifyChanged(d)

	st := waitStatus(t, m, settled)

	assert.EqualValues(t, 1, h.drafts.upserts.Load())
	rec, err := h.repos.Drafts.Get(ctx, d.LocalID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "2024-03-02", rec.Snapshot.Payload["installationDate"])
	assert.True(t, rec.Synced())

	saves, _ := h.remote.stats()
	assert.Equal(t, 1, saves)
	remote, _ := h.remote.report(st.ReportID)
	assert.Equal(t, "2024-03-02", remote.Payload["installationDate"])
}

func TestManager_DebounceCoalescesManyEdits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{DebounceWindow: 300 * time.Millisecond})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	for i := 0; i < 25; i++ {
		require.NoError(t, d.Set("circuits", i))
		m.NotifyChanged(d)
		time.Sleep(2 * time.Millisecond)
	}
	waitStatus(t, m, settled)

	assert.EqualValues(t, 1, h.drafts.upserts.Load())
	rec, err := h.repos.Drafts.Get(ctx, d.LocalID)
	require.NoError(t, err)
	assert.EqualValues(t, 24, rec.Snapshot.Payload["circuits"])
}

func TestManager_UnchangedContentIsNotSavedAgain(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)

	// Volatile keys do not count as edits.
	require.NoError(t, d.Set("updated_at", "2024-01-01T00:00:00Z"))
	m.NotifyChanged(d)
	res, err := m.SaveNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)

	assert.EqualValues(t, 1, h.drafts.upserts.Load())
	saves, _ := h.remote.stats()
	assert.Equal(t, 1, saves)
}

func TestManager_LoadWithInitialReportIgnoresStaleLocalCopies(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	h.remote.seed(models.DraftSnapshot{
		LocalID:           "cloud-device",
		ReportID:          "abc",
		ReportType:        models.ReportTypeEIC,
		CertificateNumber: "EIC-000042",
		Status:            models.StatusDraft,
		Version:           3,
		Payload:           models.Payload{"clientName": "Cloud"},
		UpdatedAt:         time.Now().UTC(),
	})
	require.NoError(t, h.repos.Recovery.Put(ctx, models.RecoverableDraft{
		ReportType:        models.ReportTypeEIC,
		LocalID:           "stale",
		CertificateNumber: "EIC-LOCAL",
		Payload:           models.Payload{"clientName": "Stale"},
		CapturedAt:        time.Now().UTC(),
	}))
	require.NoError(t, h.repos.Drafts.Upsert(ctx, drafts.Record{
		Snapshot: models.DraftSnapshot{
			LocalID:           "other",
			ReportID:          "abc",
			ReportType:        models.ReportTypeEIC,
			CertificateNumber: "EIC-000042",
			Status:            models.StatusDraft,
			Payload:           models.Payload{"clientName": "Stale"},
		},
		Fingerprint: "old",
		SavedAt:     time.Now().UTC(),
	}))

	m := h.manager(t, Config{ReportType: models.ReportTypeEIC, InitialReportID: "abc"})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	assert.False(t, m.HasRecoverableDraft())
	assert.Nil(t, m.DraftPreview())
	assert.Nil(t, m.RecoverDraft(ctx))

	assert.Equal(t, "abc", d.ReportID)
	assert.Equal(t, "cloud-device", d.LocalID)
	assert.Equal(t, "EIC-000042", d.CertificateNumber())
	v, _ := d.Get("clientName")
	assert.Equal(t, "Cloud", v)

	st := m.Status()
	assert.True(t, settled(st))
	assert.Equal(t, "abc", st.ReportID)

	old, err := h.repos.Drafts.Get(ctx, "other")
	require.NoError(t, err)
	assert.Nil(t, old)

	// The stale record is left alone for the form that can offer it.
	r, err := h.repos.Recovery.Get(ctx, models.ReportTypeEIC)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "stale", r.LocalID)
}

func TestManager_LoadReportWaitsForAuth(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.auth = newFakeAuth(models.AuthUnknown)
	h.engine = NewEngine(h.remote, h.online, h.auth, time.Second, h.logger)
	h.queue = NewOfflineQueue(h.repos.Queue, h.engine, h.logger)

	h.remote.seed(models.DraftSnapshot{
		LocalID:           "dev",
		ReportID:          "r1",
		ReportType:        models.ReportTypeEICR,
		CertificateNumber: "EICR-1",
		Payload:           models.Payload{"clientName": "Jones"},
	})

	m := h.manager(t, Config{ReportType: models.ReportTypeEICR, InitialReportID: "r1"})

	go func() {
		time.Sleep(50 * time.Millisecond)
		h.auth.Set(models.AuthSignedIn)
	}()

	d, err := m.Start(ctx)
	require.NoError(t, err)
	v, _ := d.Get("clientName")
	assert.Equal(t, "Jones", v)
}

func TestManager_LoadReportSignedOut(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.auth.Set(models.AuthSignedOut)

	m := h.manager(t, Config{ReportType: models.ReportTypeEIC, InitialReportID: "missing"})
	_, err := m.Start(ctx)
	require.ErrorIs(t, err, ErrSignedOut)
	assert.False(t, m.HasRecoverableDraft())
}

func TestManager_LoadReportNotFound(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	_, err := m.Start(ctx)
	require.NoError(t, err)

	_, err = m.LoadReport(ctx, "nope")
	require.ErrorIs(t, err, client.ErrNotFound)
	assert.Equal(t, models.CloudError, m.Status().Cloud)
}

func TestManager_OfflineOpenFallsBackToDeviceCopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.online.Set(false)

	require.NoError(t, h.repos.Drafts.Upsert(ctx, drafts.Record{
		Snapshot: models.DraftSnapshot{
			LocalID:           "dev",
			ReportID:          "r9",
			ReportType:        models.ReportTypeEIC,
			CertificateNumber: "EIC-9",
			Status:            models.StatusDraft,
			Payload:           models.Payload{"clientName": "Device"},
		},
		Fingerprint: "fp",
		SavedAt:     time.Now().UTC(),
	}))

	m := h.manager(t, Config{ReportType: models.ReportTypeEIC, InitialReportID: "r9"})
	d, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Equal(t, "r9", d.ReportID)
	assert.Equal(t, models.CloudOffline, m.Status().Cloud)
	assert.False(t, m.HasRecoverableDraft())
}

func TestManager_AuthErrorIsNotQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.setHook(func(ctx context.Context, s models.DraftSnapshot) error {
		return client.ErrUnauthorized
	})

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)
	res, err := m.SaveNow(ctx)
	require.NoError(t, err)
	assert.False(t, res.Success)

	st := m.Status()
	assert.Equal(t, models.CloudError, st.Cloud)
	assert.Equal(t, msgSessionExpiry, st.ErrorMessage)
	assert.Equal(t, models.LocalSaved, st.Local)
	assert.Zero(t, st.QueuedChanges)
	assert.Equal(t, 0, h.depth(t))
	assert.Equal(t, models.AuthSignedOut, h.auth.State())

	// Signing in again pushes the draft.
	h.remote.setHook(nil)
	h.auth.Set(models.AuthSignedIn)
	st = waitStatus(t, m, settled)
	remote, _ := h.remote.report(st.ReportID)
	assert.Equal(t, "Smith", remote.Payload["clientName"])
}

func TestManager_ValidationErrorIsShownVerbatim(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.setHook(func(ctx context.Context, s models.DraftSnapshot) error {
		return &client.ValidationError{Message: "installation date is in the future"}
	})

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("installationDate", "2999-01-01"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)

	st := m.Status()
	assert.Equal(t, models.CloudError, st.Cloud)
	assert.Equal(t, "installation date is in the future", st.ErrorMessage)
	assert.Equal(t, 0, h.depth(t))
	assert.Equal(t, models.AuthSignedIn, h.auth.State())
}

func TestManager_PushTimeoutIsQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, withPushTimeout(50*time.Millisecond))
	h.remote.setHook(func(ctx context.Context, s models.DraftSnapshot) error {
		<-ctx.Done()
		return ctx.Err()
	})

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Slow"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)

	st := m.Status()
	assert.Equal(t, models.CloudOffline, st.Cloud)
	assert.False(t, st.IsSaving())
	assert.Equal(t, 1, st.QueuedChanges)

	list, err := h.repos.Queue.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 1, list[0].AttemptCount)
	assert.Contains(t, list[0].LastError, ErrPushTimeout.Error())
}

func TestManager_RemoteErrorIsQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.setHook(func(ctx context.Context, s models.DraftSnapshot) error {
		return client.ErrRemote
	})

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "X"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)

	st := m.Status()
	assert.Equal(t, models.CloudQueued, st.Cloud)
	assert.Equal(t, 1, st.QueuedChanges)
}

func TestManager_SingleWriterUnderRapidEdits(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.remote.delay = 5 * time.Millisecond

	m := h.manager(t, Config{DebounceWindow: 3 * time.Millisecond})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 20; i++ {
			h.online.Set(i%4 != 0)
			time.Sleep(3 * time.Millisecond)
		}
		h.online.Set(true)
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			_, _ = m.SaveNow(ctx)
			time.Sleep(4 * time.Millisecond)
		}
	}()

	// Edits stay on one goroutine, like a UI.
	for i := 0; i < 60; i++ {
		require.NoError(t, d.Set("circuits", i))
		m.NotifyChanged(d)
		time.Sleep(time.Millisecond)
	}
	wg.Wait()

	_, err = m.SaveNow(ctx)
	require.NoError(t, err)
	st := waitStatus(t, m, settled)

	_, overlaps := h.remote.stats()
	assert.Zero(t, overlaps)
	remote, _ := h.remote.report(st.ReportID)
	assert.EqualValues(t, 59, remote.Payload["circuits"])
}

func TestManager_CertificateNumberAssignedOncePerDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)
	first := d.CertificateNumber()
	require.NotEmpty(t, first)

	again, err := h.certs.Ensure(ctx, d)
	require.NoError(t, err)
	assert.Equal(t, first, again)
	assert.Equal(t, first, d.CertificateNumber())

	next, err := m.StartNew(ctx)
	require.NoError(t, err)
	assert.NotEqual(t, first, next.CertificateNumber())
	assert.NotEqual(t, d.LocalID, next.LocalID)
}

func TestManager_RecoveryOffer(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.repos.Recovery.Put(ctx, models.RecoverableDraft{
		ReportType: models.ReportTypeEIC,
		LocalID:    "crashed",
		Payload:    models.Payload{"clientName": "Before crash"},
		CapturedAt: time.Now().UTC(),
	}))

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.True(t, m.HasRecoverableDraft())
	preview := m.DraftPreview()
	require.NotNil(t, preview)
	assert.Equal(t, "crashed", preview.LocalID)

	p := m.RecoverDraft(ctx)
	require.NotNil(t, p)
	assert.Equal(t, "Before crash", p["clientName"])
	assert.False(t, m.HasRecoverableDraft())

	require.NoError(t, d.Merge(p))
	m.NotifyChanged(d)
	waitStatus(t, m, settled)

	// The merged draft is synced, so nothing is left to recover.
	r, err := h.repos.Recovery.Get(ctx, models.ReportTypeEIC)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestManager_RecoveryOfferWithdrawnOnceReportIdentified(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.repos.Recovery.Put(ctx, models.RecoverableDraft{
		ReportType: models.ReportTypeEIC,
		LocalID:    "crashed",
		Payload:    models.Payload{"clientName": "Before crash"},
		CapturedAt: time.Now().UTC(),
	}))

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)
	require.True(t, m.HasRecoverableDraft())

	require.NoError(t, d.Set("clientName", "Fresh"))
	m.NotifyChanged(d)
	waitStatus(t, m, settled)

	assert.NotEmpty(t, m.ReportID())
	assert.False(t, m.HasRecoverableDraft())
	assert.Nil(t, m.DraftPreview())
	assert.Nil(t, m.RecoverDraft(ctx))

	// The undecided offer was not overwritten by the new draft.
	r, err := h.repos.Recovery.Get(ctx, models.ReportTypeEIC)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, "crashed", r.LocalID)
}

func TestManager_DiscardDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	require.NoError(t, h.repos.Recovery.Put(ctx, models.RecoverableDraft{
		ReportType: models.ReportTypeMinorWorks,
		LocalID:    "crashed",
		Payload:    models.Payload{"clientName": "Old"},
		CapturedAt: time.Now().UTC(),
	}))

	m := h.manager(t, Config{ReportType: models.ReportTypeMinorWorks})
	_, err := m.Start(ctx)
	require.NoError(t, err)
	require.True(t, m.HasRecoverableDraft())

	m.DiscardDraft(ctx)
	assert.False(t, m.HasRecoverableDraft())

	r, err := h.repos.Recovery.Get(ctx, models.ReportTypeMinorWorks)
	require.NoError(t, err)
	assert.Nil(t, r)
}

func TestManager_UnsyncedEditLeavesRecoverableDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.online.Set(false)

	m := h.manager(t, Config{ReportType: models.ReportTypeEICR})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Unsent"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)
	require.NoError(t, m.Close(ctx))

	r, err := h.repos.Recovery.Get(ctx, models.ReportTypeEICR)
	require.NoError(t, err)
	require.NotNil(t, r)
	assert.Equal(t, d.LocalID, r.LocalID)
	assert.Equal(t, "Unsent", r.Payload["clientName"])

	// A later form offers it back.
	next := h.manager(t, Config{ReportType: models.ReportTypeEICR})
	_, err = next.Start(ctx)
	require.NoError(t, err)
	assert.True(t, next.HasRecoverableDraft())
}

func TestManager_DuplicateForksNewDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Original"))
	require.NoError(t, d.Set("pdf_url", "https://example.test/a.pdf"))
	m.NotifyChanged(d)
	st := waitStatus(t, m, settled)
	origID := st.ReportID

	dup, err := m.Duplicate(ctx, d)
	require.NoError(t, err)
	assert.NotEqual(t, d.LocalID, dup.LocalID)
	assert.NotEqual(t, d.CertificateNumber(), dup.CertificateNumber())
	assert.Empty(t, dup.ReportID)
	_, ok := dup.Get("pdf_url")
	assert.False(t, ok)

	st = waitStatus(t, m, func(s models.SyncStatus) bool {
		return settled(s) && s.ReportID != "" && s.ReportID != origID
	})
	remote, _ := h.remote.report(st.ReportID)
	assert.Equal(t, "Original", remote.Payload["clientName"])
	assert.Equal(t, dup.CertificateNumber(), remote.CertificateNumber)
}

func TestManager_LinksCustomerAfterFirstPush(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	d.CustomerID = "cust-1"
	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)
	st := waitStatus(t, m, settled)

	require.Eventually(t, func() bool {
		h.remote.mu.Lock()
		defer h.remote.mu.Unlock()
		return h.remote.links[st.ReportID] == "cust-1"
	}, 5*time.Second, 5*time.Millisecond)
}

func TestManager_PushThenPullRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{ReportType: models.ReportTypeEICR})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	d.CustomerID = "cust-9"
	require.NoError(t, d.Set("clientName", "Round"))
	require.NoError(t, d.Set("circuits", []any{map[string]any{"ref": "1", "rating": 32}}))
	m.NotifyChanged(d)
	res, err := m.SaveNow(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)

	other := h.manager(t, Config{ReportType: models.ReportTypeEICR, InitialReportID: res.ReportID})
	loaded, err := other.Start(ctx)
	require.NoError(t, err)

	want, got := d.Snapshot(), loaded.Snapshot()
	assert.Equal(t, want.LocalID, got.LocalID)
	assert.Equal(t, want.CertificateNumber, got.CertificateNumber)
	assert.Equal(t, want.CustomerID, got.CustomerID)
	assert.Equal(t, want.Status, got.Status)
	assert.Equal(t, want.Payload, got.Payload)

	wantFP, err := Fingerprint(want)
	require.NoError(t, err)
	gotFP, err := Fingerprint(got)
	require.NoError(t, err)
	assert.Equal(t, wantFP, gotFP)
}

func TestManager_CloseFlushesPendingEdit(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{DebounceWindow: time.Hour})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Last"))
	m.NotifyChanged(d)
	require.NoError(t, m.Close(ctx))

	rec, err := h.repos.Drafts.Get(ctx, d.LocalID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Last", rec.Snapshot.Payload["clientName"])
	assert.True(t, rec.Synced())

	// Edits after Close are ignored.
	require.NoError(t, d.Set("clientName", "Too late"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.ErrorIs(t, err, ErrClosed)
}

func TestManager_QueueFromEarlierSessionDrainsOnStart(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	_, err := h.repos.Queue.Append(ctx, models.QueuedChange{
		LocalID:    "earlier",
		ReportType: models.ReportTypeEIC,
		Snapshot: models.DraftSnapshot{
			LocalID:           "earlier",
			ReportType:        models.ReportTypeEIC,
			CertificateNumber: "EIC-OLD",
			Status:            models.StatusDraft,
			Payload:           models.Payload{"clientName": "Yesterday"},
		},
		EnqueuedAt: time.Now().UTC(),
	})
	require.NoError(t, err)

	m := h.manager(t, Config{})
	_, err = m.Start(ctx)
	require.NoError(t, err)

	waitStatus(t, m, func(s models.SyncStatus) bool { return s.QueuedChanges == 0 })
	assert.Equal(t, 0, h.depth(t))

	h.remote.mu.Lock()
	id := h.remote.byRef["earlier"]
	h.remote.mu.Unlock()
	remote, ok := h.remote.report(id)
	require.True(t, ok)
	assert.Equal(t, "Yesterday", remote.Payload["clientName"])
}

func TestManager_RejectedQueuedChangeDoesNotBlockOtherDrafts(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	require.NoError(t, h.queue.Enqueue(ctx, draftSnap("rejected", "Old"), ErrOffline))
	h.remote.setHook(func(ctx context.Context, s models.DraftSnapshot) error {
		if s.LocalID == "rejected" {
			return &client.ValidationError{Message: "installation date is in the future"}
		}
		return nil
	})

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Jones"))
	m.NotifyChanged(d)
	res, err := m.SaveNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)

	st := waitStatus(t, m, settled)
	assert.Empty(t, st.ErrorMessage)
	assert.Equal(t, 0, h.depth(t))

	require.NoError(t, d.Set("clientName", "Jones Ltd"))
	m.NotifyChanged(d)
	res, err = m.SaveNow(ctx)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 0, h.depth(t))

	remote, _ := h.remote.report(res.ReportID)
	assert.Equal(t, "Jones Ltd", remote.Payload["clientName"])
}

func TestManager_RejectedReplayShownOnOwnDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.online.Set(false)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("installationDate", "2999-01-01"))
	m.NotifyChanged(d)
	waitStatus(t, m, func(s models.SyncStatus) bool { return s.QueuedChanges == 1 })

	h.remote.setHook(func(ctx context.Context, s models.DraftSnapshot) error {
		return &client.ValidationError{Message: "installation date is in the future"}
	})
	h.online.Set(true)

	waitStatus(t, m, func(s models.SyncStatus) bool {
		return s.Cloud == models.CloudError && s.QueuedChanges == 0 &&
			s.ErrorMessage == "installation date is in the future"
	})
	assert.Equal(t, 0, h.depth(t))
}

func TestManager_RepeatedSaveDoesNotQueueSameContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.auth.Set(models.AuthSignedOut)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)

	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)
	for i := 0; i < 3; i++ {
		_, err = m.SaveNow(ctx)
		require.NoError(t, err)
	}
	assert.Equal(t, 1, h.depth(t))

	require.NoError(t, d.Set("clientName", "Smyth"))
	m.NotifyChanged(d)
	_, err = m.SaveNow(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, h.depth(t))
	assert.Equal(t, 2, m.Status().QueuedChanges)
}

func TestManager_ReportIDReachesDraft(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	d, err := m.Start(ctx)
	require.NoError(t, err)
	assert.Empty(t, d.ReportID)

	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)
	res, err := m.SaveNow(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.NotEmpty(t, res.ReportID)

	m.Identify(d)
	assert.Equal(t, res.ReportID, d.ReportID)

	foreign := models.NewDraft(models.ReportTypeEIC)
	m.Identify(foreign)
	assert.Empty(t, foreign.ReportID)

	t.Run("on next edit", func(t *testing.T) {
		d.ReportID = ""
		require.NoError(t, d.Set("clientName", "Smyth"))
		m.NotifyChanged(d)
		assert.Equal(t, res.ReportID, d.ReportID)
	})
}

func TestManager_NewDraftHasNoCloudCopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)

	m := h.manager(t, Config{})
	_, err := m.Start(ctx)
	require.NoError(t, err)

	st := m.Status()
	assert.Equal(t, models.CloudNotCreated, st.Cloud)
	assert.Empty(t, st.ReportID)
	assert.True(t, st.SafeToClose())

	d, err := m.StartNew(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.CloudNotCreated, m.Status().Cloud)

	require.NoError(t, d.Set("clientName", "Smith"))
	m.NotifyChanged(d)
	assert.False(t, m.Status().SafeToClose())
	st = waitStatus(t, m, settled)
	assert.NotEmpty(t, st.ReportID)
}
