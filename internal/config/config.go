package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Cheertaboi/storefront-order-service/pkg/db"
)

const (
	defaultEnvFile        = ".env"
	defaultPort           = "8080"
	defaultReadTimeout    = 10 * time.Second
	defaultWriteTimeout   = 15 * time.Second
	defaultIdleTimeout    = 60 * time.Second
	defaultShutdown       = 15 * time.Second
	defaultDBHost         = "localhost"
	defaultDBPort         = 5432
	defaultDBUser         = "postgres"
	defaultDBName         = "storefront"
	defaultDBSSLMode      = "disable"
	defaultSessionCookie  = "checkout_session_id"
	defaultSignatureHdr   = "X-Signature"
	defaultCouponCacheTTL = 30 * time.Second
	defaultLogLevel       = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server   ServerConfig
	Database db.PostgresConfig
	Auth     AuthConfig
	Webhooks WebhookConfig
	Coupons  CouponConfig
	Log      LogConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	AutoMigrate     bool
}

// AuthConfig controls how caller identity is resolved.
type AuthConfig struct {
	JWTSecret     string
	SessionCookie string
	CookieSecure  bool
}

// WebhookConfig holds the shared secret payment webhooks are signed with.
type WebhookConfig struct {
	PaymentSecret   string
	SignatureHeader string
}

type CouponConfig struct {
	CacheTTL time.Duration
}

type LogConfig struct {
	Level string
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence
// over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles configuration from defaults, a .env file, the process environment and
// an optional explicit map, in increasing order of precedence.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if dotEnv != nil {
			if value, ok := dotEnv[key]; ok {
				return value, true
			}
		}
		return "", false
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "APP_SERVER_PORT", defaultPort),
			ReadTimeout:     durationWithDefault(lookup, "APP_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "APP_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "APP_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "APP_SERVER_SHUTDOWN_TIMEOUT", defaultShutdown),
			AutoMigrate:     boolWithDefault(lookup, "APP_SERVER_AUTO_MIGRATE", true),
		},
		Database: db.PostgresConfig{
			Host:            stringWithDefault(lookup, "DB_HOST", defaultDBHost),
			Port:            intWithDefault(lookup, "DB_PORT", defaultDBPort),
			User:            stringWithDefault(lookup, "DB_USER", defaultDBUser),
			Password:        stringWithDefault(lookup, "DB_PASSWORD", ""),
			DBName:          stringWithDefault(lookup, "DB_NAME", defaultDBName),
			SSLMode:         stringWithDefault(lookup, "DB_SSLMODE", defaultDBSSLMode),
			MaxOpenConns:    intWithDefault(lookup, "DB_MAX_OPEN_CONNS", db.DefaultMaxOpenConns),
			MaxIdleConns:    intWithDefault(lookup, "DB_MAX_IDLE_CONNS", db.DefaultMaxIdleConns),
			ConnMaxLifetime: durationWithDefault(lookup, "DB_CONN_MAX_LIFETIME", db.DefaultConnMaxLifetime),
		},
		Auth: AuthConfig{
			JWTSecret:     stringWithDefault(lookup, "APP_AUTH_JWT_SECRET", ""),
			SessionCookie: stringWithDefault(lookup, "APP_AUTH_SESSION_COOKIE", defaultSessionCookie),
			CookieSecure:  boolWithDefault(lookup, "APP_AUTH_COOKIE_SECURE", false),
		},
		Webhooks: WebhookConfig{
			PaymentSecret:   stringWithDefault(lookup, "APP_WEBHOOK_PAYMENT_SECRET", ""),
			SignatureHeader: stringWithDefault(lookup, "APP_WEBHOOK_SIGNATURE_HEADER", defaultSignatureHdr),
		},
		Coupons: CouponConfig{
			CacheTTL: durationWithDefault(lookup, "APP_COUPON_CACHE_TTL", defaultCouponCacheTTL),
		},
		Log: LogConfig{
			Level: stringWithDefault(lookup, "LOG_LEVEL", defaultLogLevel),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if strings.TrimSpace(cfg.Server.Port) == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Database.Host == "" {
		missing = append(missing, "Database.Host")
	}
	if cfg.Database.Port <= 0 || cfg.Database.Port > 65535 {
		missing = append(missing, "Database.Port")
	}
	if cfg.Database.DBName == "" {
		missing = append(missing, "Database.DBName")
	}
	if len(cfg.Auth.JWTSecret) < 16 {
		missing = append(missing, "Auth.JWTSecret")
	}
	if strings.TrimSpace(cfg.Auth.SessionCookie) == "" {
		missing = append(missing, "Auth.SessionCookie")
	}
	if cfg.Coupons.CacheTTL < 0 {
		missing = append(missing, "Coupons.CacheTTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		switch strings.ToLower(value) {
		case "true", "1", "yes", "on":
			return true
		case "false", "0", "no", "off":
			return false
		}
	}
	return fallback
}
