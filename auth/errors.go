package auth

import "errors"

var (
	// ErrUserNotFound is returned by GetResetPasswordToken when no user has
	// the given email, and by UserStore.UpdateUser when no row matched.
	ErrUserNotFound = errors.New("user not found")

	// ErrInvalidToken is returned by UpdatePassword when no user holds the token.
	ErrInvalidToken = errors.New("invalid reset token")

	// ErrUserExists is returned on registration of an email already stored.
	ErrUserExists = errors.New("email already registered")

	// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionExists signals a session id collision in SessionStore.Put.
	ErrSessionExists = errors.New("session id already exists")

	// ErrInvalidEmail is returned by Register for a malformed address.
	ErrInvalidEmail = errors.New("invalid email")

	// ErrWeakPassword wraps password policy failures.
	ErrWeakPassword = errors.New("password does not meet policy")

	// ErrSessionsUnsupported is returned by session operations when the
	// configured strategy does not manage sessions (none, basic).
	ErrSessionsUnsupported = errors.New("strategy does not manage sessions")
)
