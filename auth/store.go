package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// UserRecord is the stored shape of a user. SessionID and ResetToken are
// empty when unset.
type UserRecord struct {
	ID             string
	Email          string
	HashedPassword string
	SessionID      string
	ResetToken     string
	CreatedAt      time.Time
}

// User returns the public view of the record (no credential fields).
func (u UserRecord) User() User {
	return User{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt}
}

// LookupKey selects the indexed field FindUser matches on.
type LookupKey int

const (
	ByID LookupKey = iota
	ByEmail
	BySessionID
	ByResetToken
)

func (k LookupKey) String() string {
	switch k {
	case ByID:
		return "id"
	case ByEmail:
		return "email"
	case BySessionID:
		return "session_id"
	case ByResetToken:
		return "reset_token"
	default:
		return fmt.Sprintf("LookupKey(%d)", int(k))
	}
}

// UserUpdate lists the fields UpdateUser changes; nil fields are left as is.
// An empty string clears SessionID or ResetToken.
type UserUpdate struct {
	HashedPassword *string
	SessionID      *string
	ResetToken     *string

	// MatchResetToken, when set, makes the update conditional on the stored
	// reset token being equal to it.
	MatchResetToken *string
}

// UserStore is the user-lookup collaborator.
type UserStore interface {
	// AddUser inserts rec. A duplicate email yields ErrUserExists.
	AddUser(ctx context.Context, rec UserRecord) error

	// FindUser returns the user whose field key equals value exactly.
	// An empty value never matches.
	FindUser(ctx context.Context, key LookupKey, value string) (UserRecord, bool, error)

	// UpdateUser applies upd to user id. It returns ErrUserNotFound when no
	// user matched (including a failed MatchResetToken condition).
	UpdateUser(ctx context.Context, id string, upd UserUpdate) error
}

// timeResolution is the precision persisted timestamps keep.
const timeResolution = time.Millisecond

// storedTime rounds t up to timeResolution. Rounding up means a session
// measured from its stored created_at never expires before a full TTL has
// passed since the real creation instant.
func storedTime(t time.Time) time.Time {
	r := t.Truncate(timeResolution)
	if r.Before(t) {
		r = r.Add(timeResolution)
	}
	return r
}

// SessionRecord is one server-side session. CreatedAt is the creation
// instant rounded up to timeResolution.
type SessionRecord struct {
	SessionID string
	UserID    string
	CreatedAt time.Time
}

// SessionStore holds session records keyed by session id.
type SessionStore interface {
	// Put inserts rec. It never overwrites: an existing id yields ErrSessionExists.
	Put(ctx context.Context, rec SessionRecord) error
	Get(ctx context.Context, sessionID string) (SessionRecord, bool, error)
	// Delete reports whether a record existed and was removed.
	Delete(ctx context.Context, sessionID string) (bool, error)
}

// SessionBinder is implemented by stores that can insert a session and point
// the owner's SessionID at it in one transaction.
type SessionBinder interface {
	BindSession(ctx context.Context, rec SessionRecord) error
}

// Pruner is implemented by stores that can drop every session created at or
// before cutoff.
type Pruner interface {
	PruneExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// newAPI applies defaults, opens the configured stores and builds the strategy.
func newAPI(cfg Config) (*API, error) {
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	a := &API{
		cfg:    cfg,
		log:    *cfg.Logger,
		hasher: newHasher(cfg),
		stopCh: make(chan struct{}),
	}
	m, err := newMetrics(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	a.metrics = m

	if err := a.openStores(); err != nil {
		_ = a.closeStores()
		return nil, err
	}
	a.strategy = a.buildStrategy()

	if cfg.PruneInterval > 0 && a.ttl > 0 {
		if p, ok := a.sessions.(Pruner); ok {
			a.startPruner(p)
		}
	}

	a.log.Info().
		Str("strategy", string(cfg.Strategy)).
		Dur("session_duration", cfg.SessionDuration).
		Str("session_store", a.sessionBackendName()).
		Msg("auth initialized")
	return a, nil
}

func (a *API) openStores() error {
	cfg := a.cfg

	needSQLUsers := cfg.Users == nil
	needSQLSessions := cfg.Strategy == StrategySessionDB && cfg.SessionBackend == BackendSQL && cfg.Sessions == nil

	var sqlStore *SQLStore
	if cfg.DSN != "" && (needSQLUsers || needSQLSessions) {
		s, err := OpenSQLStore(context.Background(), cfg.DBDriver, cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return err
		}
		sqlStore = s
		a.closers = append(a.closers, s)
	}

	switch {
	case cfg.Users != nil:
		a.users = cfg.Users
	case sqlStore != nil:
		a.users = sqlStore
	default:
		a.users = NewMemoryUserStore()
	}

	if cfg.Sessions != nil {
		a.sessions = cfg.Sessions
		return nil
	}
	switch cfg.Strategy {
	case StrategySession, StrategySessionExp:
		a.sessions = NewMemorySessionStore()
	case StrategySessionDB:
		switch cfg.SessionBackend {
		case BackendRedis:
			client := goredis.NewClient(&goredis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
			rs := NewRedisSessionStore(client, cfg.RedisKeyPrefix, cfg.SessionDuration)
			a.closers = append(a.closers, rs)
			a.sessions = rs
		default:
			if sqlStore == nil {
				return fmt.Errorf("session_db with sql backend requires a DSN")
			}
			a.sessions = sqlStore
		}
	}
	return nil
}

func (a *API) closeStores() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *API) sessionBackendName() string {
	switch a.sessions.(type) {
	case nil:
		return "none"
	case *MemorySessionStore:
		return "memory"
	case *SQLStore:
		return "sql"
	case *RedisSessionStore:
		return "redis"
	default:
		return "custom"
	}
}

func (a *API) closeInternal() error {
	a.stopOnce.Do(func() { close(a.stopCh) })
	a.wg.Wait()
	return a.closeStores()
}

// nopLogger is the default when Config.Logger is nil.
func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}
