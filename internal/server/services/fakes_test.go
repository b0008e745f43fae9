package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/elecmate/certsync/internal/common"
	"github.com/elecmate/certsync/internal/dbx"
	"github.com/elecmate/certsync/internal/server/config"
	"github.com/elecmate/certsync/internal/server/models"
	"github.com/elecmate/certsync/internal/server/repositories/certificates"
	"github.com/elecmate/certsync/internal/server/repositories/refreshtokens"
	"github.com/elecmate/certsync/internal/server/repositories/reports"
	"github.com/elecmate/certsync/internal/server/repositories/users"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:                    "k",
		AccessTokenValidityDuration:  time.Hour,
		RefreshTokenValidityDuration: 2 * time.Hour,
	}
}

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	consumeOut *models.RefreshToken
	consumeErr error
	createErr  error
	purged     int64

	created []string
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, expires time.Time) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, token)
	return nil
}

func (f *fakeRefreshRepo) Consume(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	return f.consumeOut, nil
}

func (f *fakeRefreshRepo) PurgeExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.purged, nil
}

// memReports is an in-memory reports.Repository.
type memReports struct {
	mu      sync.Mutex
	byID    map[string]*models.Report
	err     error
	creates int
	// raceOnCreate makes the next Create lose to a concurrent insert.
	raceOnCreate *models.Report
}

func newMemReports() *memReports {
	return &memReports{byID: map[string]*models.Report{}}
}

func (m *memReports) put(r *models.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *r
	m.byID[r.ID] = &cp
}

func (m *memReports) Create(ctx context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if m.raceOnCreate != nil {
		cp := *m.raceOnCreate
		m.byID[cp.ID] = &cp
		m.raceOnCreate = nil
		return common.ErrorAlreadyExists
	}
	for _, e := range m.byID {
		if e.UserID == r.UserID && e.ClientRef == r.ClientRef {
			return common.ErrorAlreadyExists
		}
	}
	m.creates++
	r.Version = 1
	r.CreatedAt = time.Now()
	r.UpdatedAt = r.CreatedAt
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memReports) GetByID(ctx context.Context, id string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	r, ok := m.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memReports) GetForUpdate(ctx context.Context, id string) (*models.Report, error) {
	return m.GetByID(ctx, id)
}

func (m *memReports) GetByClientRef(ctx context.Context, userID, clientRef string) (*models.Report, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, r := range m.byID {
		if r.UserID == userID && r.ClientRef == clientRef {
			cp := *r
			return &cp, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memReports) Update(ctx context.Context, r *models.Report) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.byID[r.ID]
	if !ok {
		return common.ErrorNotFound
	}
	r.Version = stored.Version + 1
	r.UpdatedAt = time.Now()
	cp := *r
	m.byID[r.ID] = &cp
	return nil
}

func (m *memReports) SetCustomer(ctx context.Context, id, customerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	r.CustomerID = customerID
	return nil
}

type fakeCertificates struct {
	next map[string]int64
	err  error
}

func (f *fakeCertificates) Next(ctx context.Context, userID, reportType string) (int64, error) {
	if f.err != nil {
		return 0, f.err
	}
	if f.next == nil {
		f.next = map[string]int64{}
	}
	f.next[userID+"/"+reportType]++
	return f.next[userID+"/"+reportType], nil
}

type fakeRepoManager struct {
	u     *fakeUsersRepo
	r     *fakeRefreshRepo
	rep   *memReports
	certs *fakeCertificates
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error         { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) users.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokens.Repository { return m.r }
func (m *fakeRepoManager) Reports(db dbx.DBTX) reports.Repository             { return m.rep }
func (m *fakeRepoManager) Certificates(db dbx.DBTX) certificates.Repository   { return m.certs }

type recordingArchiver struct {
	mu       sync.Mutex
	archived []*models.Report
	err      error
}

func (a *recordingArchiver) Archive(ctx context.Context, r *models.Report) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.archived = append(a.archived, r)
	return a.err
}
