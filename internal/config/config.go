package config

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// DefaultJWTSecret is the development fallback. Load rejects it when Env is "prod".
const DefaultJWTSecret = "supersecretkey"

type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	// DatabaseDriver is "postgres" (lib/pq, default) or "pgx" (jackc/pgx stdlib).
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"postgres"`

	DBHost string `env:"DB_HOST" envDefault:"localhost"`
	DBPort string `env:"DB_PORT" envDefault:"5432"`
	DBName string `env:"DB_NAME" envDefault:"authdb"`
	DBUser string `env:"DB_USER" envDefault:"authuser"`
	DBPass string `env:"DB_PASS" envDefault:"authpass"`

	// DBMaxOpenConns is the maximum number of open connections to the database (default 25).
	DBMaxOpenConns int `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	// DBMaxIdleConns is the maximum number of idle connections (default 5).
	DBMaxIdleConns int `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"supersecretkey"`
	JWTIssuer string `env:"JWT_ISSUER" envDefault:"hci-auth"`

	// Env is "dev" (default) or "prod". When "prod", JWT_SECRET must be set and not the default.
	Env string `env:"ENV" envDefault:"dev"`

	// TokenTTL is the access token lifetime (default 3h). Set via TOKEN_TTL, e.g. "3h" or "90m".
	TokenTTL time.Duration `env:"TOKEN_TTL" envDefault:"3h"`

	// RevocationInterval is how often every user's token version is bumped (default 3h).
	RevocationInterval time.Duration `env:"REVOCATION_INTERVAL" envDefault:"3h"`

	// RateLimitQuota requests are allowed per RateLimitWindow per key (default 100 per hour).
	RateLimitQuota  int           `env:"RATE_LIMIT_QUOTA" envDefault:"100"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1h"`

	// RateLimitBackend is "memory" (default, per process) or "redis" (shared across instances).
	RateLimitBackend string `env:"RATE_LIMIT_BACKEND" envDefault:"memory"`
	RedisAddr        string `env:"REDIS_ADDR" envDefault:"localhost:6379"`

	// BcryptCost is the bcrypt work factor. Zero means bcrypt.DefaultCost.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"0"`

	// TLSCertFile and TLSKeyFile enable HTTPS when both are set.
	// When empty, the API listens with plain HTTP.
	TLSCertFile string `env:"TLS_CERT_FILE"`
	TLSKeyFile  string `env:"TLS_KEY_FILE"`

	// LogFormat is "text" (default) or "json" for structured logging.
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	// CORSAllowedOrigins is a list of origins allowed for CORS (e.g. https://app.example.com, http://localhost:3000).
	// Set via CORS_ALLOWED_ORIGINS (comma-separated). When empty, no CORS headers are sent (same-origin only).
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`

	// TrustedProxies lists the IPs or CIDRs (e.g. 10.0.0.0/8) of reverse proxies whose
	// X-Forwarded-For / X-Real-IP headers are believed. Empty means the TCP peer is the client.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`
}

func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.CORSAllowedOrigins = trimList(cfg.CORSAllowedOrigins)
	cfg.TrustedProxies = trimList(cfg.TrustedProxies)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c Config) Validate() error {
	if c.Env == "prod" && (c.JWTSecret == "" || c.JWTSecret == DefaultJWTSecret) {
		return errors.New("JWT_SECRET must be set to a non-default value when ENV=prod")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET must not be empty")
	}
	if c.TokenTTL <= 0 {
		return errors.New("TOKEN_TTL must be positive")
	}
	if c.RevocationInterval <= 0 {
		return errors.New("REVOCATION_INTERVAL must be positive")
	}
	if c.RateLimitQuota <= 0 || c.RateLimitWindow <= 0 {
		return errors.New("RATE_LIMIT_QUOTA and RATE_LIMIT_WINDOW must be positive")
	}
	switch c.RateLimitBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("RATE_LIMIT_BACKEND %q: must be memory or redis", c.RateLimitBackend)
	}
	switch c.DatabaseDriver {
	case "postgres", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER %q: must be postgres or pgx", c.DatabaseDriver)
	}
	if _, err := c.TrustedProxyPrefixes(); err != nil {
		return err
	}
	return nil
}

// TrustedProxyPrefixes parses TrustedProxies. A bare IP becomes a single-address prefix.
func (c Config) TrustedProxyPrefixes() ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, p := range c.TrustedProxies {
		if strings.Contains(p, "/") {
			prefix, err := netip.ParsePrefix(p)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES %q: %w", p, err)
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(p)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES %q: %w", p, err)
		}
		out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
	}
	return out, nil
}

// DSN builds a key/value Postgres connection string understood by both lib/pq and pgx.
func (c Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s dbname=%s user=%s password=%s sslmode=disable",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPass,
	)
}

// trimList trims spaces around each entry. Empty strings are omitted.
func trimList(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	for _, p := range in {
		if o := strings.TrimSpace(p); o != "" {
			out = append(out, o)
		}
	}
	return out
}
