// Package auth is a pluggable request-authentication and session-lifecycle
// layer for Go web services. Per request it decides whether the caller is
// anonymous, must be challenged, or is an authenticated principal, and it
// owns the server-side session state and a password-reset token workflow.
//
// Strategies (Config.Strategy):
//   - none:        authentication disabled; every request is anonymous
//   - basic:       "Authorization: Basic base64(email:password)" on every request
//   - session:     cookie sessions held in process memory, no expiry
//   - session_exp: cookie sessions held in process memory, expiring after SessionDuration
//   - session_db:  cookie sessions persisted in SQL (SQLite/PostgreSQL) or Redis,
//     expiring after SessionDuration
//
// Users live in SQL when Config.DSN is set and in memory otherwise. Passwords
// are hashed with bcrypt (default) or argon2id.
//
// Quick start:
//
//	api, err := auth.New(auth.Config{
//	  Strategy:        auth.StrategySessionDB,
//	  DSN:             "app.db",
//	  SessionName:     "session_id",
//	  SessionDuration: 24 * time.Hour,
//	  CookieSecure:    true,
//	})
//	if err != nil {
//	  log.Fatal(err)
//	}
//	defer api.Close()
//
//	mux := http.NewServeMux()
//	mux.HandleFunc("POST /sessions", func(w http.ResponseWriter, r *http.Request) {
//	  if _, err := api.Login(w, r, r.FormValue("email"), r.FormValue("password")); err != nil {
//	    http.Error(w, "invalid credentials", http.StatusUnauthorized)
//	    return
//	  }
//	})
//	mux.HandleFunc("GET /profile", func(w http.ResponseWriter, r *http.Request) {
//	  user, _ := auth.FromContext(r.Context())
//	  _, _ = w.Write([]byte(user.Email))
//	})
//	log.Fatal(http.ListenAndServe(":8080", api.Gate(mux)))
//
// Security notes:
//   - Set CookieSecure=true in production (HTTPS).
//   - Choose an appropriate BcryptCost (10–14 typical). Higher cost => more CPU.
//   - Session ids are random 32-byte values, stored server-side.
//   - Sessions are never renewed; a session past its TTL is gone.
//
// API overview:
//   - type Config, API, User, Verdict
//   - func New(Config) (*API, error)
//   - func (*API) Close() error
//   - func (*API) Strategy() Strategy
//   - func (*API) Register(ctx, email, password) (User, error)
//   - func (*API) Login(w, r, email, password) (User, error)
//   - func (*API) ValidLogin(ctx, email, password) bool
//   - func (*API) Logout(w, r) (bool, error)
//   - func (*API) CurrentUser(w, r) (User, bool, error)
//   - func (*API) CreateSession(ctx, userID) (string, bool, error)
//   - func (*API) DestroySession(r) (bool, error)
//   - func (*API) GetResetPasswordToken(ctx, email) (string, error)
//   - func (*API) UpdatePassword(ctx, token, newPassword) error
//   - func (*API) Authenticate(r) (Verdict, error)
//   - func (*API) Gate(next http.Handler) http.Handler
//   - func (*API) Middleware(next http.Handler) http.Handler
//   - func (*API) RequireAuth(next http.Handler) http.Handler
//   - func FromContext(ctx) (User, bool)
//   - func WithUser(ctx, User) context.Context
//   - func (*API) PruneExpiredSessions(ctx) (int64, error)
//   - func (*API) RevokeSession(ctx, userID) error
//   - func (*API) ChangePassword(ctx, userID, newPassword) error
package auth

import (
	"context"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Config controls the behavior of the auth package.
// All fields are optional; defaults are applied in New.
type Config struct {
	// Strategy selects how requests are authenticated. Default: none.
	Strategy StrategyKind `validate:"oneof=none basic session session_exp session_db"`

	// SessionName is the cookie name for the session id. Default: "session_id".
	SessionName string `validate:"required"`

	// SessionDuration is the session TTL for session_exp and session_db.
	// Zero or negative means sessions never expire.
	SessionDuration time.Duration

	// ExcludedPaths bypass authentication in Gate. Entries may end in "*"
	// to match by prefix. Default: DefaultExcludedPaths.
	ExcludedPaths []string

	// DSN of the SQL database holding users (and session_db sessions with
	// the sql backend). Empty keeps users in memory.
	DSN string

	// DBDriver is "sqlite3" or "pgx". Default: "sqlite3".
	DBDriver string `validate:"oneof=sqlite3 pgx"`

	// SessionBackend selects where session_db keeps sessions. Default: sql.
	SessionBackend SessionBackend `validate:"oneof=sql redis"`

	// Redis connection for the redis session backend.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int    `validate:"min=0"`
	RedisKeyPrefix string // Default: "session".

	// CookieDomain sets the cookie domain (empty => host-only).
	CookieDomain string

	// CookieSecure should be true in production (HTTPS). Default: false.
	CookieSecure bool

	// CookieHTTPOnly controls HttpOnly on the cookie. Default: true if nil.
	// Tri-state: nil => default true; &true or &false to force.
	CookieHTTPOnly *bool

	// CookieSameSite controls the SameSite attribute. Default: http.SameSiteLaxMode.
	CookieSameSite http.SameSite

	// HashAlgorithm is "bcrypt" or "argon2id". Default: bcrypt.
	HashAlgorithm HashAlgorithm `validate:"oneof=bcrypt argon2id"`

	// BcryptCost controls password hashing difficulty (4..31). Typical: 10–14.
	// Default: bcrypt.DefaultCost.
	BcryptCost int

	// Password policy (optional).
	// Default MinPasswordLength=8, RequireStrongPasswords=false.
	MinPasswordLength      int `validate:"min=1"`
	RequireStrongPasswords bool

	// Now allows overriding the time source (useful in tests). Default: time.Now.
	Now func() time.Time `validate:"-"`

	// PruneInterval is how often expired sessions are deleted in the
	// background. Default: 1h; negative disables the sweep.
	PruneInterval time.Duration

	// SQL pool tuning. Defaults suitable for SQLite: 1/1.
	MaxOpenConns int
	MaxIdleConns int

	// Logger receives structured logs. Default: disabled.
	Logger *zerolog.Logger `validate:"-"`

	// Metrics, if set, registers the auth collectors.
	Metrics prometheus.Registerer `validate:"-"`

	// Users and Sessions replace the stores New would otherwise open. A
	// custom Users store cannot back session_db sessions kept in SQL, whose
	// rows reference the SQL users table; supply Sessions as well.
	Users    UserStore    `validate:"-"`
	Sessions SessionStore `validate:"-"`
}

// API is the main entry point for authentication operations.
// It is safe to share a single instance across handlers.
type API struct {
	cfg      Config
	log      zerolog.Logger
	hasher   Hasher
	users    UserStore
	sessions SessionStore
	strategy Strategy
	ttl      time.Duration
	metrics  *metrics
	closers  []io.Closer

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// User is a minimal representation returned by the API (no password fields).
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// New opens the configured stores, runs migrations and returns an API.
func New(cfg Config) (*API, error) {
	return newAPI(cfg)
}

// Close stops background jobs and releases stores opened by New.
func (a *API) Close() error {
	return a.closeInternal()
}

// Strategy returns the active authentication strategy.
func (a *API) Strategy() Strategy {
	return a.strategy
}

// Register creates a new user with a hashed password.
// - Email is trimmed and stored as given (lookups are case-sensitive).
// - Password must meet configured policy (min length, optional strength).
func (a *API) Register(ctx context.Context, email, password string) (User, error) {
	return a.registerInternal(ctx, email, password)
}

// Login verifies credentials, creates a server-side session, and sets the
// session cookie. Unknown email and wrong password both yield ErrInvalidCredentials.
func (a *API) Login(w http.ResponseWriter, r *http.Request, email, password string) (User, error) {
	return a.loginInternal(w, r, email, password)
}

// ValidLogin reports whether email/password match a stored user.
func (a *API) ValidLogin(ctx context.Context, email, password string) bool {
	_, ok, _ := a.checkCredentials(ctx, email, password)
	return ok
}

// Logout destroys the request's session (if any) and clears the cookie.
// It reports whether a live session was destroyed.
func (a *API) Logout(w http.ResponseWriter, r *http.Request) (bool, error) {
	return a.logoutInternal(w, r)
}

// CurrentUser resolves the request through the active strategy and returns:
//   - User: the associated user
//   - ok: whether a valid principal was found
//   - err: unexpected errors (db, etc.)
//
// A session cookie that no longer resolves is cleared.
func (a *API) CurrentUser(w http.ResponseWriter, r *http.Request) (User, bool, error) {
	return a.currentUserInternal(w, r)
}

// CreateSession issues a session for userID. ok is false for an empty or
// unknown user id. Fails with ErrSessionsUnsupported for none and basic.
func (a *API) CreateSession(ctx context.Context, userID string) (string, bool, error) {
	sm, ok := a.strategy.(SessionManager)
	if !ok {
		return "", false, ErrSessionsUnsupported
	}
	return sm.CreateSession(ctx, userID)
}

// DestroySession removes the session named by the request cookie.
func (a *API) DestroySession(r *http.Request) (bool, error) {
	sm, ok := a.strategy.(SessionManager)
	if !ok {
		return false, nil
	}
	return sm.DestroySession(r)
}

// GetResetPasswordToken issues a single-use reset token for email,
// invalidating any earlier one. Fails with ErrUserNotFound.
func (a *API) GetResetPasswordToken(ctx context.Context, email string) (string, error) {
	return a.getResetPasswordTokenInternal(ctx, email)
}

// UpdatePassword consumes token and sets newPassword. Fails with ErrInvalidToken.
func (a *API) UpdatePassword(ctx context.Context, token, newPassword string) error {
	return a.updatePasswordInternal(ctx, token, newPassword)
}

// Authenticate computes the gate verdict for r without writing a response.
func (a *API) Authenticate(r *http.Request) (Verdict, error) {
	return a.authenticateInternal(r)
}

// Gate enforces authentication: 401 without credentials, 403 when they do
// not resolve to a user, 500 on storage errors. Principals are injected into
// the request context.
func (a *API) Gate(next http.Handler) http.Handler {
	return a.gateInternal(next)
}

// Middleware resolves the current user (if any) and injects it into the
// request context without rejecting anything.
func (a *API) Middleware(next http.Handler) http.Handler {
	return a.middlewareInternal(next)
}

// RequireAuth ensures a valid user is present in context (e.g., after Middleware).
// If not authenticated, it returns 401 and stops the chain.
func (a *API) RequireAuth(next http.Handler) http.Handler {
	return a.requireAuthInternal(next)
}

// FromContext retrieves the current user injected by Gate or Middleware.
func FromContext(ctx context.Context) (User, bool) {
	return fromContext(ctx)
}

// PruneExpiredSessions deletes expired sessions immediately and returns how
// many were removed. It is a no-op without a TTL or a prunable store.
func (a *API) PruneExpiredSessions(ctx context.Context) (int64, error) {
	return a.pruneExpiredSessionsInternal(ctx)
}

// RevokeSession destroys the user's current session, if any.
func (a *API) RevokeSession(ctx context.Context, userID string) error {
	return a.revokeSessionInternal(ctx, userID)
}

// ChangePassword updates the user's password hash and revokes their session.
func (a *API) ChangePassword(ctx context.Context, userID, newPassword string) error {
	return a.changePasswordInternal(ctx, userID, newPassword)
}
