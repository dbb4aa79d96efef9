// Package config loads process configuration for authd from the environment,
// an optional .env file and an optional YAML file, and maps it onto the
// auth and logging packages.
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Brandon689/authgate/auth"
	"github.com/Brandon689/authgate/logging"
)

// Config is the flat process configuration. Keys match the environment
// variable names, lower-cased.
type Config struct {
	AuthType        string        `mapstructure:"auth_type"`
	SessionName     string        `mapstructure:"session_name" validate:"required"`
	SessionDuration int           `mapstructure:"session_duration"` // seconds; <= 0 never expires
	SessionStore    string        `mapstructure:"session_store" validate:"oneof=sql redis"`
	ExcludedPaths   string        `mapstructure:"excluded_paths"` // comma separated
	PruneInterval   time.Duration `mapstructure:"prune_interval"`
	CookieSecure    bool          `mapstructure:"cookie_secure"`
	CookieDomain    string        `mapstructure:"cookie_domain"`

	DatabaseDriver string `mapstructure:"database_driver" validate:"oneof=sqlite3 pgx"`
	DatabaseURL    string `mapstructure:"database_url"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"min=0"`

	HashAlgorithm string `mapstructure:"hash_algorithm" validate:"oneof=bcrypt argon2id"`
	BcryptCost    int    `mapstructure:"bcrypt_cost" validate:"min=4,max=31"`

	APIHost        string `mapstructure:"api_host"`
	APIPort        int    `mapstructure:"api_port" validate:"min=1,max=65535"`
	MetricsEnabled bool   `mapstructure:"metrics_enabled"`
	CSRFProtection bool   `mapstructure:"csrf_protection"`

	LogLevel  string `mapstructure:"log_level" validate:"oneof=trace debug info warn error fatal disabled"`
	LogFormat string `mapstructure:"log_format" validate:"oneof=json console"`
}

var defaults = map[string]any{
	"auth_type":        "",
	"session_name":     "session_id",
	"session_duration": 0,
	"session_store":    string(auth.BackendSQL),
	"excluded_paths":   "",
	"prune_interval":   "1h",
	"cookie_secure":    false,
	"cookie_domain":    "",
	"database_driver":  auth.DriverSQLite,
	"database_url":     "",
	"redis_addr":       "",
	"redis_password":   "",
	"redis_db":         0,
	"hash_algorithm":   string(auth.HashBcrypt),
	"bcrypt_cost":      10,
	"api_host":         "0.0.0.0",
	"api_port":         5000,
	"metrics_enabled":  true,
	"csrf_protection":  false,
	"log_level":        "info",
	"log_format":       "json",
}

// LoaderConfig holds optional file overrides.
type LoaderConfig struct {
	ConfigFile string // YAML file (optional)
	EnvFile    string // .env file (optional)
}

// LoaderOption is a functional option for Load.
type LoaderOption func(*LoaderConfig)

// WithConfigFile sets an explicit YAML config file path.
func WithConfigFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.ConfigFile = path }
}

// WithEnvFile sets an explicit .env file path.
func WithEnvFile(path string) LoaderOption {
	return func(lc *LoaderConfig) { lc.EnvFile = path }
}

// Load resolves configuration with precedence environment > .env > YAML >
// defaults, then validates it. Without WithEnvFile a ./.env is used if present.
func Load(opts ...LoaderOption) (Config, error) {
	lc := LoaderConfig{}
	for _, opt := range opts {
		opt(&lc)
	}
	if lc.EnvFile == "" {
		if _, err := os.Stat(".env"); err == nil {
			lc.EnvFile = ".env"
		}
	}

	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}

	if lc.ConfigFile != "" {
		v.SetConfigFile(lc.ConfigFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config file %s: %w", lc.ConfigFile, err)
		}
	}

	v.AutomaticEnv()

	if lc.EnvFile != "" {
		values, err := godotenv.Read(lc.EnvFile)
		if err != nil {
			return Config{}, fmt.Errorf("read env file %s: %w", lc.EnvFile, err)
		}
		for name, val := range values {
			key := strings.ToLower(name)
			if _, known := defaults[key]; !known {
				continue
			}
			// Real environment variables win over the file.
			if _, set := os.LookupEnv(strings.ToUpper(key)); set {
				continue
			}
			v.Set(key, val)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and the auth type spelling.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if _, err := auth.ParseStrategy(c.AuthType); err != nil {
		return err
	}
	return nil
}

// Addr returns host:port for the HTTP listener.
func (c Config) Addr() string {
	return net.JoinHostPort(c.APIHost, strconv.Itoa(c.APIPort))
}

// AuthConfig maps the process configuration onto auth.Config. Logger and
// Metrics are left for the caller.
func (c Config) AuthConfig() (auth.Config, error) {
	strategy, err := auth.ParseStrategy(c.AuthType)
	if err != nil {
		return auth.Config{}, err
	}
	interval := c.PruneInterval
	if interval == 0 {
		// Zero means "default" in auth.Config; an explicit 0 here disables.
		interval = -1
	}
	return auth.Config{
		Strategy:        strategy,
		SessionName:     c.SessionName,
		SessionDuration: time.Duration(c.SessionDuration) * time.Second,
		ExcludedPaths:   splitList(c.ExcludedPaths),
		DSN:             c.DatabaseURL,
		DBDriver:        c.DatabaseDriver,
		SessionBackend:  auth.SessionBackend(c.SessionStore),
		RedisAddr:       c.RedisAddr,
		RedisPassword:   c.RedisPassword,
		RedisDB:         c.RedisDB,
		CookieDomain:    c.CookieDomain,
		CookieSecure:    c.CookieSecure,
		HashAlgorithm:   auth.HashAlgorithm(c.HashAlgorithm),
		BcryptCost:      c.BcryptCost,
		PruneInterval:   interval,
	}, nil
}

// LogConfig maps the process configuration onto logging.Config.
func (c Config) LogConfig() logging.Config {
	return logging.Config{Level: c.LogLevel, Format: c.LogFormat}
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
