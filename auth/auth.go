package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
)

func (a *API) registerInternal(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if !validEmailBasic(email) {
		return User{}, ErrInvalidEmail
	}
	if err := validatePasswordPolicy(password, a.cfg.MinPasswordLength, a.cfg.RequireStrongPasswords); err != nil {
		return User{}, err
	}

	hash, err := a.hasher.Hash(password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	rec := UserRecord{
		ID:             uuid.NewString(),
		Email:          email,
		HashedPassword: hash,
		CreatedAt:      a.now().UTC().Truncate(timeResolution),
	}
	if err := a.users.AddUser(ctx, rec); err != nil {
		if errors.Is(err, ErrUserExists) {
			return User{}, err
		}
		return User{}, fmt.Errorf("add user: %w", err)
	}
	a.log.Info().Str("user_id", rec.ID).Msg("user registered")
	return rec.User(), nil
}

// checkCredentials looks the user up by exact email and verifies password.
// A miss and a mismatch are both ok=false.
func (a *API) checkCredentials(ctx context.Context, email, password string) (UserRecord, bool, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return UserRecord{}, false, nil
	}
	rec, ok, err := a.users.FindUser(ctx, ByEmail, email)
	if err != nil {
		return UserRecord{}, false, fmt.Errorf("find user: %w", err)
	}
	if !ok || !a.hasher.Verify(rec.HashedPassword, password) {
		return UserRecord{}, false, nil
	}
	return rec, true, nil
}

func (a *API) loginInternal(w http.ResponseWriter, r *http.Request, email, password string) (User, error) {
	ctx := r.Context()
	sm, ok := a.strategy.(SessionManager)
	if !ok {
		return User{}, ErrSessionsUnsupported
	}

	rec, ok, err := a.checkCredentials(ctx, email, password)
	if err != nil {
		a.metrics.login("error")
		return User{}, err
	}
	if !ok {
		a.metrics.login("invalid")
		return User{}, ErrInvalidCredentials
	}

	sessionID, ok, err := sm.CreateSession(ctx, rec.ID)
	if err != nil {
		a.metrics.login("error")
		return User{}, fmt.Errorf("create session: %w", err)
	}
	if !ok {
		// The user vanished between lookup and session creation.
		a.metrics.login("invalid")
		return User{}, ErrInvalidCredentials
	}
	a.setCookie(w, sessionID)
	a.metrics.login("success")
	return rec.User(), nil
}

func (a *API) logoutInternal(w http.ResponseWriter, r *http.Request) (bool, error) {
	sm, ok := a.strategy.(SessionManager)
	if !ok {
		return false, nil
	}
	destroyed, err := sm.DestroySession(r)
	a.clearCookie(w)
	if err != nil {
		return destroyed, fmt.Errorf("destroy session: %w", err)
	}
	return destroyed, nil
}

func (a *API) currentUserInternal(w http.ResponseWriter, r *http.Request) (User, bool, error) {
	user, ok, err := a.strategy.CurrentUser(r)
	if err != nil {
		return User{}, false, fmt.Errorf("current user: %w", err)
	}
	if ok {
		return user, true, nil
	}
	if _, isSession := a.strategy.(SessionManager); isSession && w != nil {
		if _, hasCookie := a.strategy.SessionCookie(r); hasCookie {
			a.clearCookie(w)
		}
	}
	return User{}, false, nil
}

// revokeSessionInternal destroys the session the user's back-reference
// names. Sessions the user no longer references are left to expire.
func (a *API) revokeSessionInternal(ctx context.Context, userID string) error {
	rec, ok, err := a.users.FindUser(ctx, ByID, userID)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return ErrUserNotFound
	}
	if rec.SessionID == "" || a.sessions == nil {
		return nil
	}
	deleted, err := a.sessions.Delete(ctx, rec.SessionID)
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	empty := ""
	if err := a.users.UpdateUser(ctx, userID, UserUpdate{SessionID: &empty}); err != nil && !errors.Is(err, ErrUserNotFound) {
		return fmt.Errorf("clear session reference: %w", err)
	}
	if deleted {
		a.metrics.sessionDestroyed()
	}
	return nil
}

func (a *API) changePasswordInternal(ctx context.Context, userID, newPassword string) error {
	if err := validatePasswordPolicy(newPassword, a.cfg.MinPasswordLength, a.cfg.RequireStrongPasswords); err != nil {
		return err
	}
	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := a.users.UpdateUser(ctx, userID, UserUpdate{HashedPassword: &hash}); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return err
		}
		return fmt.Errorf("update password: %w", err)
	}
	return a.revokeSessionInternal(ctx, userID)
}
