package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

func (a *API) getResetPasswordTokenInternal(ctx context.Context, email string) (string, error) {
	email = normalizeEmail(email)
	rec, ok, err := a.users.FindUser(ctx, ByEmail, email)
	if err != nil {
		return "", fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return "", ErrUserNotFound
	}

	token := uuid.NewString()
	if err := a.users.UpdateUser(ctx, rec.ID, UserUpdate{ResetToken: &token}); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return "", err
		}
		return "", fmt.Errorf("store reset token: %w", err)
	}
	a.log.Info().Str("user_id", rec.ID).Msg("reset token issued")
	return token, nil
}

// updatePasswordInternal consumes token. The write only applies while the
// stored token still equals token, so a token is accepted at most once.
func (a *API) updatePasswordInternal(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return ErrInvalidToken
	}
	rec, ok, err := a.users.FindUser(ctx, ByResetToken, token)
	if err != nil {
		return fmt.Errorf("find user: %w", err)
	}
	if !ok {
		return ErrInvalidToken
	}
	if err := validatePasswordPolicy(newPassword, a.cfg.MinPasswordLength, a.cfg.RequireStrongPasswords); err != nil {
		return err
	}

	hash, err := a.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	cleared := ""
	err = a.users.UpdateUser(ctx, rec.ID, UserUpdate{
		HashedPassword:  &hash,
		ResetToken:      &cleared,
		MatchResetToken: &token,
	})
	if errors.Is(err, ErrUserNotFound) {
		return ErrInvalidToken
	}
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	a.log.Info().Str("user_id", rec.ID).Msg("password reset")
	return nil
}
