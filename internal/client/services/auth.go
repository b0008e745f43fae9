// Package services holds the client application services that sit between
// the REPL and the transport: the session, connectivity and certificate
// numbering.
package services

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/elecmate/certsync/internal/client/client"
	"github.com/elecmate/certsync/internal/client/models"
	"github.com/elecmate/certsync/internal/client/repositories/metadata"
	"github.com/elecmate/certsync/internal/common"
	"github.com/elecmate/certsync/internal/cryptox"
	"github.com/elecmate/certsync/internal/dbx"
	"github.com/elecmate/certsync/internal/logging"
)

const (
	metaUsername     = "username"
	metaAccessToken  = "access_token"
	metaRefreshToken = "refresh_token"
)

// AuthService owns the session. Its state starts as AuthUnknown and is
// resolved by Restore, Login or Logout.
type AuthService struct {
	client client.Client
	db     *sql.DB
	logger logging.Logger

	mu       sync.RWMutex
	state    models.AuthState
	user     string
	resolved chan struct{}
	once     sync.Once

	watchers listeners[models.AuthState]
}

func NewAuthService(c client.Client, db *sql.DB, logger logging.Logger) *AuthService {
	return &AuthService{
		client:   c,
		db:       db,
		logger:   logger.With("module", "auth"),
		resolved: make(chan struct{}),
	}
}

func (a *AuthService) metadataRepo(db dbx.DBTX) metadata.Repository {
	return metadata.NewSQLiteRepository(db)
}

func (a *AuthService) setState(ctx context.Context, s models.AuthState, user string) {
	a.mu.Lock()
	changed := a.state != s
	a.state = s
	a.user = user
	a.mu.Unlock()

	a.once.Do(func() { close(a.resolved) })

	if changed {
		a.logger.Info(ctx, "auth state changed", "state", s.String(), "user", user)
		a.watchers.notify(s)
	}
}

// Restore resumes a session persisted by an earlier Login. The tokens are
// trusted until the store rejects them.
func (a *AuthService) Restore(ctx context.Context) error {
	repo := a.metadataRepo(a.db)
	access, err := repo.GetString(ctx, metaAccessToken)
	if err != nil {
		a.setState(ctx, models.AuthSignedOut, "")
		return fmt.Errorf("restore session: %w", err)
	}
	if access == "" {
		a.setState(ctx, models.AuthSignedOut, "")
		return nil
	}
	refresh, err := repo.GetString(ctx, metaRefreshToken)
	if err != nil {
		a.setState(ctx, models.AuthSignedOut, "")
		return fmt.Errorf("restore session: %w", err)
	}
	user, err := repo.GetString(ctx, metaUsername)
	if err != nil {
		a.setState(ctx, models.AuthSignedOut, "")
		return fmt.Errorf("restore session: %w", err)
	}

	a.client.SetTokens(client.Tokens{Access: access, Refresh: refresh})
	a.setState(ctx, models.AuthSignedIn, user)
	return nil
}

func (a *AuthService) Register(ctx context.Context, username string, password []byte) error {
	salt := common.GenerateRandByteArray(cryptox.SaltLen)
	verifier := cryptox.VerifierHex(password, salt)

	if err := a.client.Register(ctx, username, salt, verifier); err != nil {
		return fmt.Errorf("register: %w", err)
	}
	return nil
}

func (a *AuthService) Login(ctx context.Context, username string, password []byte) error {
	salt, err := a.client.GetSalt(ctx, username)
	if err != nil {
		return fmt.Errorf("get salt: %w", err)
	}

	tokens, err := a.client.Login(ctx, username, cryptox.VerifierHex(password, salt))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	err = dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.metadataRepo(tx)
		if err := repo.SetString(ctx, metaUsername, username); err != nil {
			return err
		}
		if err := repo.SetString(ctx, metaAccessToken, tokens.Access); err != nil {
			return err
		}
		return repo.SetString(ctx, metaRefreshToken, tokens.Refresh)
	})
	if err != nil {
		// the session still works for this run
		a.logger.Warn(ctx, "could not persist session", "error", err)
	}

	a.setState(ctx, models.AuthSignedIn, username)
	return nil
}

func (a *AuthService) Logout(ctx context.Context) error {
	a.client.SetTokens(client.Tokens{})

	err := dbx.WithTx(ctx, a.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := a.metadataRepo(tx)
		for _, k := range []string{metaAccessToken, metaRefreshToken, metaUsername} {
			if err := repo.Delete(ctx, k); err != nil {
				return err
			}
		}
		return nil
	})

	a.setState(ctx, models.AuthSignedOut, "")
	if err != nil {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// Invalidate is called when the store rejects the session. The stored
// tokens are kept so a later refresh-capable login can reuse the username.
func (a *AuthService) Invalidate(ctx context.Context) {
	a.setState(ctx, models.AuthSignedOut, a.CurrentUser())
}

// PersistTokens stores tokens issued by a transparent refresh.
func (a *AuthService) PersistTokens(t client.Tokens) {
	ctx := context.Background()
	repo := a.metadataRepo(a.db)
	if err := repo.SetString(ctx, metaAccessToken, t.Access); err != nil {
		a.logger.Warn(ctx, "could not persist refreshed token", "error", err)
		return
	}
	if err := repo.SetString(ctx, metaRefreshToken, t.Refresh); err != nil {
		a.logger.Warn(ctx, "could not persist refreshed token", "error", err)
	}
}

func (a *AuthService) State() models.AuthState {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.state
}

func (a *AuthService) CurrentUser() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.user
}

// WaitResolved blocks until the state is no longer AuthUnknown.
func (a *AuthService) WaitResolved(ctx context.Context) (models.AuthState, error) {
	select {
	case <-a.resolved:
		return a.State(), nil
	case <-ctx.Done():
		return models.AuthUnknown, ctx.Err()
	}
}

// Watch calls fn after every state change until the returned func is called.
func (a *AuthService) Watch(fn func(models.AuthState)) func() {
	return a.watchers.add(fn)
}
