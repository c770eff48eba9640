package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ggoodman/edgeauth/auth"
	"github.com/ggoodman/edgeauth/edge"
	"github.com/joeshaw/envdecode"
)

// Config is the process configuration. Every field can be set from the
// environment; defaults are the Firebase deployment constants.
type Config struct {
	// ProjectID selects the Firebase project. ENV: EDGEAUTH_PROJECT_ID
	ProjectID string `env:"EDGEAUTH_PROJECT_ID,default=semaia"`
	// Issuer and Audience override the values derived from ProjectID.
	Issuer   string `env:"EDGEAUTH_ISSUER"`
	Audience string `env:"EDGEAUTH_AUDIENCE"`

	JWKSURL    string `env:"EDGEAUTH_JWKS_URL,default=https://www.googleapis.com/service_accounts/v1/jwk/securetoken@system.gserviceaccount.com"`
	Discover   bool   `env:"EDGEAUTH_DISCOVER,default=false"`
	KeySetFile string `env:"EDGEAUTH_JWKS_FILE"`
	Managed    bool   `env:"EDGEAUTH_JWKS_MANAGED,default=false"`

	AllowedAlgs        []string      `env:"EDGEAUTH_ALLOWED_ALGS,default=RS256"`
	Leeway             time.Duration `env:"EDGEAUTH_LEEWAY,default=0s"`
	MaxAge             time.Duration `env:"EDGEAUTH_JWKS_MAX_AGE,default=0s"`
	UnknownKIDInterval time.Duration `env:"EDGEAUTH_UNKNOWN_KID_INTERVAL,default=1m"`
	FetchTimeout       time.Duration `env:"EDGEAUTH_FETCH_TIMEOUT,default=5s"`

	// Store selects where fetched key set documents are kept besides the
	// in-process cache: "none", "memory" or "redis". Empty means "redis" when
	// RedisAddr is set and "none" otherwise. ENV: EDGEAUTH_STORE
	Store          string        `env:"EDGEAUTH_STORE"`
	RedisAddr      string        `env:"EDGEAUTH_REDIS_ADDR"`
	RedisKeyPrefix string        `env:"EDGEAUTH_REDIS_KEY_PREFIX,default=edgeauth:keyset:"`
	StoreTTL       time.Duration `env:"EDGEAUTH_STORE_TTL,default=1h"`

	// CORS values fall back to edge.DefaultCORS when empty.
	CORSAllowOrigin  string `env:"EDGEAUTH_CORS_ALLOW_ORIGIN"`
	CORSAllowMethods string `env:"EDGEAUTH_CORS_ALLOW_METHODS"`
	CORSAllowHeaders string `env:"EDGEAUTH_CORS_ALLOW_HEADERS"`

	ListenAddr string `env:"EDGEAUTH_LISTEN_ADDR,default=:8080"`
	Upstream   string `env:"EDGEAUTH_UPSTREAM"`

	LogLevel  string `env:"EDGEAUTH_LOG_LEVEL,default=info"`
	LogFormat string `env:"EDGEAUTH_LOG_FORMAT,default=json"`
}

// Load decodes the environment into a Config and validates it.
func Load() (*Config, error) {
	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports settings that cannot work together.
func (c *Config) Validate() error {
	if c.Managed && c.KeySetFile != "" {
		return errors.New("config: EDGEAUTH_JWKS_MANAGED cannot be combined with EDGEAUTH_JWKS_FILE")
	}
	switch c.StoreKind() {
	case StoreNone, StoreMemory:
	case StoreRedis:
		if c.RedisAddr == "" {
			return errors.New("config: EDGEAUTH_STORE=redis requires EDGEAUTH_REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	switch strings.ToLower(c.LogFormat) {
	case "json", "text":
	default:
		return fmt.Errorf("config: unknown log format %q", c.LogFormat)
	}
	if c.Upstream != "" {
		u, err := url.Parse(c.Upstream)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("config: invalid upstream %q", c.Upstream)
		}
	}
	return nil
}

const (
	StoreNone   = "none"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// StoreKind resolves Store, applying the RedisAddr fallback.
func (c *Config) StoreKind() string {
	if c.Store != "" {
		return strings.ToLower(c.Store)
	}
	if c.RedisAddr != "" {
		return StoreRedis
	}
	return StoreNone
}

// Level parses LogLevel.
func (c *Config) Level() (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return lvl, nil
}

// Security returns the token validation settings.
func (c *Config) Security() auth.SecurityConfig {
	sec := auth.SecurityConfig{
		ProjectID:          c.ProjectID,
		Issuer:             c.Issuer,
		Audience:           c.Audience,
		AllowedAlgs:        append([]string(nil), c.AllowedAlgs...),
		Leeway:             c.Leeway,
		Discover:           c.Discover,
		KeySetFile:         c.KeySetFile,
		Managed:            c.Managed,
		MaxAge:             c.MaxAge,
		UnknownKIDInterval: c.UnknownKIDInterval,
		FetchTimeout:       c.FetchTimeout,
	}
	if !c.Discover && c.KeySetFile == "" {
		sec.JWKSURL = c.JWKSURL
	}
	return sec
}

// CORS returns the pre-flight response headers.
func (c *Config) CORS() edge.CORS {
	cors := edge.DefaultCORS()
	if c.CORSAllowOrigin != "" {
		cors.AllowOrigin = c.CORSAllowOrigin
	}
	if c.CORSAllowMethods != "" {
		cors.AllowMethods = c.CORSAllowMethods
	}
	if c.CORSAllowHeaders != "" {
		cors.AllowHeaders = c.CORSAllowHeaders
	}
	return cors
}
