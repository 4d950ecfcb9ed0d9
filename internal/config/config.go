package config

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	ListenAddr string `env:"LISTEN_ADDR" envDefault:":8080"`
	AppEnv     string `env:"APP_ENV" envDefault:"development"`

	DBDriver             string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN                string `env:"DB_DSN"`
	DBPath               string `env:"APP_DB_PATH" envDefault:"./data/console.db"`
	DBMaxOpenConns       int    `env:"APP_DB_MAX_OPEN_CONNS" envDefault:"4"`
	DBMaxIdleConns       int    `env:"APP_DB_MAX_IDLE_CONNS" envDefault:"2"`
	DBConnMaxLifetimeMin int    `env:"APP_DB_CONN_MAX_LIFETIME_MIN" envDefault:"30"`

	SessionCookieName  string   `env:"SESSION_COOKIE_NAME" envDefault:"session"`
	SessionMaxAgeSec   int      `env:"SESSION_MAX_AGE_SEC" envDefault:"604800"`
	CookieSecureMode   string   `env:"COOKIE_SECURE_MODE" envDefault:"auto"`
	CSRFCookieName     string   `env:"CSRF_COOKIE_NAME" envDefault:"linkora_csrf"`
	TrustProxy         bool     `env:"TRUST_PROXY" envDefault:"false"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	BackendBaseURL    string `env:"BACKEND_BASE_URL"`
	BackendTimeoutSec int    `env:"BACKEND_TIMEOUT_SEC" envDefault:"10"`
	ListMode          string `env:"LIST_MODE" envDefault:"server"`
	ListPageSize      int    `env:"LIST_PAGE_SIZE" envDefault:"10"`
	ListCacheTTLSec   int    `env:"LIST_CACHE_TTL_SEC" envDefault:"30"`
	ViewIdleMinutes   int    `env:"VIEW_IDLE_MINUTES" envDefault:"30"`
	RedisURL          string `env:"REDIS_URL"`
	SearchDebounceMS  int    `env:"SEARCH_DEBOUNCE_MS" envDefault:"500"`
	ProfileDebounceMS int    `env:"PROFILE_DEBOUNCE_MS" envDefault:"500"`

	IdentityProvider    string `env:"IDENTITY_PROVIDER" envDefault:"local"`
	IdentityAPIKey      string `env:"IDENTITY_API_KEY"`
	IdentityBaseURL     string `env:"IDENTITY_BASE_URL" envDefault:"https://identitytoolkit.googleapis.com/v1"`
	IdentityRefreshURL  string `env:"IDENTITY_REFRESH_URL" envDefault:"https://securetoken.googleapis.com/v1"`
	IdentitySigningKey  string `env:"IDENTITY_SIGNING_KEY"`
	IdentityTokenTTLMin int    `env:"IDENTITY_TOKEN_TTL_MIN" envDefault:"60"`
	TokenRetryAttempts  int    `env:"TOKEN_RETRY_ATTEMPTS" envDefault:"3"`
	TokenRetryDelayMS   int    `env:"TOKEN_RETRY_DELAY_MS" envDefault:"1000"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	HTTPReadTimeoutSec       int `env:"HTTP_READ_TIMEOUT_SEC" envDefault:"10"`
	HTTPReadHeaderTimeoutSec int `env:"HTTP_READ_HEADER_TIMEOUT_SEC" envDefault:"5"`
	HTTPWriteTimeoutSec      int `env:"HTTP_WRITE_TIMEOUT_SEC" envDefault:"30"`
	HTTPIdleTimeoutSec       int `env:"HTTP_IDLE_TIMEOUT_SEC" envDefault:"60"`

	BootstrapAdminEmail    string `env:"BOOTSTRAP_ADMIN_EMAIL"`
	BootstrapAdminPassword string `env:"BOOTSTRAP_ADMIN_PASSWORD"`
	BootstrapAdminName     string `env:"BOOTSTRAP_ADMIN_NAME" envDefault:"Administrator"`
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.AppEnv = strings.ToLower(strings.TrimSpace(c.AppEnv))
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	c.CookieSecureMode = strings.ToLower(strings.TrimSpace(c.CookieSecureMode))
	c.ListMode = strings.ToLower(strings.TrimSpace(c.ListMode))
	c.IdentityProvider = strings.ToLower(strings.TrimSpace(c.IdentityProvider))
	c.BackendBaseURL = strings.TrimRight(strings.TrimSpace(c.BackendBaseURL), "/")

	switch c.DBDriver {
	case "sqlite":
		if strings.TrimSpace(c.DBPath) == "" && strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("APP_DB_PATH or DB_DSN is required for sqlite")
		}
	case "pgx", "mysql":
		if strings.TrimSpace(c.DBDSN) == "" {
			return fmt.Errorf("DB_DSN is required when DB_DRIVER=%s", c.DBDriver)
		}
	default:
		return fmt.Errorf("DB_DRIVER must be one of: sqlite, pgx, mysql")
	}
	if c.DBMaxOpenConns <= 0 || c.DBMaxIdleConns < 0 {
		return fmt.Errorf("invalid DB pool config")
	}
	if c.SessionMaxAgeSec <= 0 {
		return fmt.Errorf("SESSION_MAX_AGE_SEC must be positive")
	}
	if strings.TrimSpace(c.SessionCookieName) == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}
	switch c.CookieSecureMode {
	case "auto", "always", "never":
	default:
		return fmt.Errorf("COOKIE_SECURE_MODE must be one of: auto, always, never")
	}
	switch c.ListMode {
	case "client", "server":
	default:
		return fmt.Errorf("LIST_MODE must be one of: client, server")
	}
	if c.ListPageSize < 1 || c.ListPageSize > 100 {
		return fmt.Errorf("LIST_PAGE_SIZE must be between 1 and 100")
	}
	if c.TokenRetryAttempts < 1 {
		return fmt.Errorf("TOKEN_RETRY_ATTEMPTS must be >= 1")
	}
	if c.TokenRetryDelayMS < 0 || c.SearchDebounceMS < 0 || c.ProfileDebounceMS < 0 {
		return fmt.Errorf("delays must not be negative")
	}
	switch c.IdentityProvider {
	case "local":
		if len(strings.TrimSpace(c.IdentitySigningKey)) < 32 {
			return fmt.Errorf("IDENTITY_SIGNING_KEY must be set (>=32 chars) when IDENTITY_PROVIDER=local")
		}
	case "firebase":
		if strings.TrimSpace(c.IdentityAPIKey) == "" {
			return fmt.Errorf("IDENTITY_API_KEY is required when IDENTITY_PROVIDER=firebase")
		}
	default:
		return fmt.Errorf("IDENTITY_PROVIDER must be one of: local, firebase")
	}
	return nil
}

func (c Config) IsProduction() bool {
	return c.AppEnv == "production" || c.AppEnv == "prod"
}

// ResolveCookieSecure reports whether cookies issued for r carry the Secure flag.
func (c Config) ResolveCookieSecure(r *http.Request) bool {
	switch c.CookieSecureMode {
	case "always":
		return true
	case "never":
		return false
	}
	if c.IsProduction() {
		return true
	}
	if r == nil {
		return false
	}
	if r.TLS != nil {
		return true
	}
	if c.TrustProxy && strings.EqualFold(strings.TrimSpace(r.Header.Get("X-Forwarded-Proto")), "https") {
		return true
	}
	return false
}

func (c Config) SessionMaxAge() time.Duration {
	return time.Duration(c.SessionMaxAgeSec) * time.Second
}

func (c Config) DBConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeMin) * time.Minute
}

func (c Config) BackendTimeout() time.Duration {
	return time.Duration(c.BackendTimeoutSec) * time.Second
}

func (c Config) ListCacheTTL() time.Duration {
	return time.Duration(c.ListCacheTTLSec) * time.Second
}

func (c Config) ViewIdleTimeout() time.Duration {
	return time.Duration(c.ViewIdleMinutes) * time.Minute
}

func (c Config) SearchDebounce() time.Duration {
	return time.Duration(c.SearchDebounceMS) * time.Millisecond
}

func (c Config) ProfileDebounce() time.Duration {
	return time.Duration(c.ProfileDebounceMS) * time.Millisecond
}

func (c Config) TokenRetryDelay() time.Duration {
	return time.Duration(c.TokenRetryDelayMS) * time.Millisecond
}

func (c Config) IdentityTokenTTL() time.Duration {
	return time.Duration(c.IdentityTokenTTLMin) * time.Minute
}
