package auth

import (
	"context"
	"net/http"
)

// Strategy decides who, if anyone, a request is authenticated as.
// Every variant shares header/cookie extraction and path matching; they
// differ only in CurrentUser.
type Strategy interface {
	// AuthorizationHeader returns the raw Authorization header value.
	AuthorizationHeader(r *http.Request) (string, bool)

	// SessionCookie returns the value of the configured session cookie.
	// It reports false when the cookie is missing or no name is configured.
	SessionCookie(r *http.Request) (string, bool)

	// CurrentUser resolves the principal. A missing or invalid credential is
	// reported as ok=false; err is reserved for storage failures.
	CurrentUser(r *http.Request) (User, bool, error)

	// RequireAuth reports whether path needs authentication.
	RequireAuth(path string, excluded []string) bool
}

// SessionManager is a Strategy that issues server-side sessions.
type SessionManager interface {
	Strategy

	// CreateSession issues a new session for userID. It reports false for an
	// empty or unknown user id.
	CreateSession(ctx context.Context, userID string) (string, bool, error)

	// UserIDForSessionID resolves a live session. Expired sessions are
	// reported as missing.
	UserIDForSessionID(ctx context.Context, sessionID string) (string, bool, error)

	// DestroySession removes the session named by the request's cookie and
	// reports whether one existed.
	DestroySession(r *http.Request) (bool, error)
}

// baseAuth holds the behavior common to all strategies.
type baseAuth struct {
	cookieName string
}

func (b baseAuth) AuthorizationHeader(r *http.Request) (string, bool) {
	if r == nil {
		return "", false
	}
	values, ok := r.Header["Authorization"]
	if !ok || len(values) == 0 {
		return "", false
	}
	return values[0], true
}

func (b baseAuth) SessionCookie(r *http.Request) (string, bool) {
	if r == nil || b.cookieName == "" {
		return "", false
	}
	c, err := r.Cookie(b.cookieName)
	if err != nil {
		return "", false
	}
	return c.Value, true
}

func (b baseAuth) RequireAuth(path string, excluded []string) bool {
	return requiresAuth(path, excluded)
}

// NullAuth authenticates nobody.
type NullAuth struct {
	baseAuth
}

func NewNullAuth(cookieName string) *NullAuth {
	return &NullAuth{baseAuth{cookieName: cookieName}}
}

func (NullAuth) CurrentUser(*http.Request) (User, bool, error) {
	return User{}, false, nil
}

var (
	_ Strategy       = (*NullAuth)(nil)
	_ Strategy       = (*BasicAuth)(nil)
	_ SessionManager = (*SessionAuth)(nil)
)

func (a *API) buildStrategy() Strategy {
	base := baseAuth{cookieName: a.cfg.SessionName}
	switch a.cfg.Strategy {
	case StrategyBasic:
		return NewBasicAuth(base.cookieName, a.users, a.hasher)
	case StrategySession:
		a.ttl = 0
	case StrategySessionExp, StrategySessionDB:
		a.ttl = a.cfg.SessionDuration
	default:
		return NewNullAuth(base.cookieName)
	}
	return &SessionAuth{
		baseAuth: base,
		users:    a.users,
		sessions: a.sessions,
		ttl:      a.ttl,
		now:      a.now,
		log:      a.log.With().Str("component", "session").Logger(),
		metrics:  a.metrics,
	}
}
