package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/elecmate/certsync/internal/client/client"
	"github.com/elecmate/certsync/internal/client/config"
	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/reportsync"
	"github.com/elecmate/certsync/internal/client/services"
	"github.com/elecmate/certsync/internal/filex"
	"github.com/elecmate/certsync/internal/logging"
)

type authService interface {
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) error
	Logout(ctx context.Context) error
	State() models.AuthState
	CurrentUser() string
}

type connectivity interface {
	Run(ctx context.Context)
	IsOnline() bool
	ForceOffline(ctx context.Context, on bool)
}

// form is the part of reportsync.Manager the commands drive.
type form interface {
	Start(ctx context.Context) (*models.Draft, error)
	Status() models.SyncStatus
	NotifyChanged(d *models.Draft)
	Identify(d *models.Draft)
	SaveNow(ctx context.Context) (reportsync.SaveResult, error)
	HasRecoverableDraft() bool
	DraftPreview() *models.RecoverableDraft
	RecoverDraft(ctx context.Context) models.Payload
	DiscardDraft(ctx context.Context)
	StartNew(ctx context.Context) (*models.Draft, error)
	Duplicate(ctx context.Context, d *models.Draft) (*models.Draft, error)
	Close(ctx context.Context) error
}

type App struct {
	config  *config.Config
	auth    authService
	online  connectivity
	newForm func(cfg reportsync.Config) form
	logger  logging.Logger
	reader  *bufio.Reader
	out     io.Writer
	closers []func() error

	form  form
	draft *models.Draft
}

// NewApp opens the local database and wires the sync stack. The session
// saved by an earlier run is restored.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	if err := filex.EnsureParentDir(c.LogFile); err != nil {
		return nil, err
	}
	logFile, err := os.OpenFile(c.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logger := logging.NewTextLogger(logFile, c.LogLevel)

	if err := filex.EnsureParentDir(c.DatabasePath); err != nil {
		_ = logFile.Close()
		return nil, err
	}
	db, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		logger.Error(ctx, "error initializing database", "error", err)
		_ = logFile.Close()
		return nil, err
	}
	repos := client.NewRepositories(db)

	var auth *services.AuthService
	api, err := client.NewGRPCClient(c.ServerEndpointAddr, client.WithTokenRefreshHook(func(t client.Tokens) {
		auth.PersistTokens(t)
	}))
	if err != nil {
		_ = db.Close()
		_ = logFile.Close()
		return nil, err
	}
	auth = services.NewAuthService(api, db, logger)
	watcher := services.NewConnectivityWatcher(api, c.OnlineCheckInterval, logger)
	certs := services.NewCertificateService(api, repos.Metadata, watcher, auth, logger)

	store := reportsync.NewLocalStore(repos.Drafts, repos.Recovery, logger)
	engine := reportsync.NewEngine(api, watcher, auth, c.PushTimeout, logger)
	queue := reportsync.NewOfflineQueue(repos.Queue, engine, logger)
	deps := reportsync.Deps{
		Store:  store,
		Engine: engine,
		Queue:  queue,
		Auth:   auth,
		Online: watcher,
		Certs:  certs,
		Logger: logger,
	}

	if err := auth.Restore(ctx); err != nil {
		logger.Warn(ctx, "failed to restore session", "error", err)
	}

	return &App{
		config: c,
		auth:   auth,
		online: watcher,
		newForm: func(fc reportsync.Config) form {
			return reportsync.NewManager(ctx, fc, deps)
		},
		logger:  logger,
		reader:  bufio.NewReader(os.Stdin),
		out:     os.Stdout,
		closers: []func() error{api.Close, db.Close, logFile.Close},
	}, nil
}

// Run starts the connectivity watcher and the REPL, and blocks until the
// user exits. The open form is closed before Run returns.
func (a *App) Run(ctx context.Context) {
	defer a.Close(ctx)

	fmt.Fprintln(a.out, "Elec-Mate certificate sync (type 'help' for commands)")
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go a.online.Run(wctx)

	runREPL(ctx, a, a.prompt, a.reader, a.out)
}

// Close closes the open form, then the client, database and log file.
func (a *App) Close(ctx context.Context) {
	a.closeForm(ctx)
	for _, c := range a.closers {
		_ = c()
	}
	a.closers = nil
}

func (a *App) isLoggedIn() bool {
	return a.auth.State() == models.AuthSignedIn
}

func (a *App) prompt() string {
	mode := "offline"
	if a.online.IsOnline() {
		mode = "online"
	}
	s := mode
	if u := a.auth.CurrentUser(); u != "" && a.isLoggedIn() {
		s = u + " " + mode
	}
	s = "(" + s + ")"

	if a.draft != nil && a.form != nil {
		s += fmt.Sprintf(" [%s %s | %s]", a.draft.ReportType,
			a.draft.CertificateNumber(), formatStatus(a.form.Status()))
	}
	return s
}
