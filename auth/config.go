package auth

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/crypto/bcrypt"
)

// StrategyKind names an authentication strategy.
type StrategyKind string

const (
	StrategyNone       StrategyKind = "none"
	StrategyBasic      StrategyKind = "basic"
	StrategySession    StrategyKind = "session"
	StrategySessionExp StrategyKind = "session_exp"
	StrategySessionDB  StrategyKind = "session_db"
)

// SessionBackend names where session_db persists sessions.
type SessionBackend string

const (
	BackendSQL   SessionBackend = "sql"
	BackendRedis SessionBackend = "redis"
)

// DefaultExcludedPaths are reachable without authentication unless
// Config.ExcludedPaths says otherwise.
var DefaultExcludedPaths = []string{
	"/api/v1/status/",
	"/api/v1/unauthorized/",
	"/api/v1/forbidden/",
	"/api/v1/auth_session/login/",
}

var strategyAliases = map[string]StrategyKind{
	"":                 StrategyNone,
	"none":             StrategyNone,
	"auth":             StrategyNone,
	"basic":            StrategyBasic,
	"basic_auth":       StrategyBasic,
	"session":          StrategySession,
	"session_auth":     StrategySession,
	"session_exp":      StrategySessionExp,
	"session_exp_auth": StrategySessionExp,
	"session_db":       StrategySessionDB,
	"session_db_auth":  StrategySessionDB,
}

// ParseStrategy maps a configured name to a StrategyKind. Besides the
// canonical names it accepts the *_auth spellings (basic_auth, session_auth, ...).
func ParseStrategy(s string) (StrategyKind, error) {
	k, ok := strategyAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown auth strategy %q", s)
	}
	return k, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Strategy == "" {
		cfg.Strategy = StrategyNone
	}
	if cfg.SessionName == "" {
		cfg.SessionName = "session_id"
	}
	if cfg.SessionDuration < 0 {
		cfg.SessionDuration = 0
	}
	if cfg.ExcludedPaths == nil {
		cfg.ExcludedPaths = append([]string(nil), DefaultExcludedPaths...)
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = DriverSQLite
	}
	if cfg.SessionBackend == "" {
		cfg.SessionBackend = BackendSQL
	}
	if cfg.RedisKeyPrefix == "" {
		cfg.RedisKeyPrefix = "session"
	}
	if cfg.CookieSameSite == 0 {
		cfg.CookieSameSite = http.SameSiteLaxMode
	}
	if cfg.CookieHTTPOnly == nil {
		t := true
		cfg.CookieHTTPOnly = &t
	}
	if cfg.HashAlgorithm == "" {
		cfg.HashAlgorithm = HashBcrypt
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = 8
	}
	// RequireStrongPasswords defaults to false; leave as-is.

	if cfg.PruneInterval == 0 {
		cfg.PruneInterval = time.Hour
	}
	if cfg.DBDriver == DriverSQLite {
		if cfg.MaxOpenConns <= 0 {
			cfg.MaxOpenConns = 1
		}
		if cfg.MaxIdleConns <= 0 {
			cfg.MaxIdleConns = 1
		}
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger()
	}
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

func validateConfig(cfg Config) error {
	if err := configValidator.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if err := validateBcryptCost(cfg.BcryptCost); err != nil {
		return err
	}
	if cfg.Strategy == StrategySessionDB && cfg.Sessions == nil {
		switch cfg.SessionBackend {
		case BackendSQL:
			if cfg.DSN == "" {
				return fmt.Errorf("session_db with sql backend requires DSN")
			}
			// user_sessions references users(id) in the same database.
			if cfg.Users != nil {
				return fmt.Errorf("session_db with sql backend requires the SQL user store; set Sessions too or leave Users unset")
			}
		case BackendRedis:
			if cfg.RedisAddr == "" {
				return fmt.Errorf("session_db with redis backend requires RedisAddr")
			}
		}
	}
	return nil
}

func validateBcryptCost(cost int) error {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return fmt.Errorf("bcrypt cost must be in [%d,%d]; got %d", bcrypt.MinCost, bcrypt.MaxCost, cost)
	}
	return nil
}
