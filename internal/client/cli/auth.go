package cli

import (
	"context"
	"fmt"

	"github.com/elecmate/certsync/internal/common"
)

func (a *App) readCredentials() (string, []byte, error) {
	userName, err := getSimpleText(a.reader, "-Enter email", a.out)
	if err != nil {
		return "", nil, err
	}
	password, err := getPassword(a.out)
	if err != nil {
		return "", nil, err
	}
	return userName, password, nil
}

func (a *App) Register(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Register(ctx, userName, password); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	fmt.Fprintln(a.out, "Registered. You can log in now.")
	return nil
}

// Login signs in. Changes queued while signed out start syncing as soon as
// the session is established.
func (a *App) Login(ctx context.Context) error {
	userName, password, err := a.readCredentials()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	if err := a.auth.Login(ctx, userName, password); err != nil {
		a.logger.Warn(ctx, "login failed", "user", userName, "error", err)
		return fmt.Errorf("login unsuccessful: %w", err)
	}
	fmt.Fprintln(a.out, "Login successful")
	return nil
}

func (a *App) Logout(ctx context.Context) error {
	if err := a.auth.Logout(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Logged out. Edits stay on this device until you log in again.")
	return nil
}
