package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverBadger   = "badger"
)

type Config struct {
	Env        string `envconfig:"ENV" default:"development"`
	ServerPort string `envconfig:"SERVER_PORT" default:"8080"`
	LogLevel   string `envconfig:"LOG_LEVEL" default:"info"`

	StoreDriver  string        `envconfig:"STORE_DRIVER" default:"postgres"`
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`
	DBHost       string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort       string        `envconfig:"DB_PORT" default:"5432"`
	DBUser       string        `envconfig:"DB_USER" default:"duet"`
	DBPassword   string        `envconfig:"DB_PASSWORD" default:"duet_dev_password"`
	DBName       string        `envconfig:"DB_NAME" default:"duet"`
	BadgerPath   string        `envconfig:"BADGER_PATH" default:"./data/badger"`

	// Empty disables send rate limiting.
	RedisURL       string        `envconfig:"REDIS_URL"`
	SendRateLimit  int64         `envconfig:"SEND_RATE_LIMIT" default:"30"`
	SendRateWindow time.Duration `envconfig:"SEND_RATE_WINDOW" default:"1m"`

	JWTSecret string        `envconfig:"JWT_SECRET" default:"dev-secret-change-me"`
	TokenTTL  time.Duration `envconfig:"TOKEN_TTL" default:"24h"`
	// Accounts registered with one of these emails get the admin role.
	AdminEmails []string `envconfig:"ADMIN_EMAILS"`

	UploadMaxBytes     int64    `envconfig:"UPLOAD_MAX_BYTES" default:"10485760"`
	UploadAllowedTypes []string `envconfig:"UPLOAD_ALLOWED_TYPES" default:"image/png,image/jpeg,image/gif,image/webp,application/pdf,text/plain"`
	BlobDir            string   `envconfig:"BLOB_DIR" default:"./data/uploads"`

	// Route path the server serves stored blobs under.
	BlobMountPath string `envconfig:"BLOB_MOUNT_PATH" default:"/files"`
	// Public prefix of attachment URLs, e.g. a CDN in front of the mount
	// path. Empty means the mount path itself.
	BlobBaseURL   string `envconfig:"BLOB_BASE_URL"`

	WSWorkers    int `envconfig:"WS_WORKERS" default:"8"`
	WSQueueSize  int `envconfig:"WS_QUEUE_SIZE" default:"1024"`
	WSSendBuffer int `envconfig:"WS_SEND_BUFFER" default:"256"`

	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"*"`

	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres, StoreDriverBadger:
	default:
		return fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StoreDriverPostgres, StoreDriverBadger, c.StoreDriver)
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if !c.IsDevelopment() && c.JWTSecret == "dev-secret-change-me" {
		return errors.New("JWT_SECRET must be changed outside development")
	}
	if c.UploadMaxBytes <= 0 {
		return errors.New("UPLOAD_MAX_BYTES must be positive")
	}
	if len(c.UploadAllowedTypes) == 0 {
		return errors.New("UPLOAD_ALLOWED_TYPES must list at least one media type")
	}
	if c.WSWorkers <= 0 || c.WSQueueSize <= 0 || c.WSSendBuffer <= 0 {
		return errors.New("WS_WORKERS, WS_QUEUE_SIZE and WS_SEND_BUFFER must be positive")
	}
	if c.StoreTimeout <= 0 || c.TokenTTL <= 0 {
		return errors.New("STORE_TIMEOUT and TOKEN_TTL must be positive")
	}
	if err := validateMountPath(c.BlobMountPath); err != nil {
		return err
	}
	if err := validateBaseURL(c.BlobBaseURL); err != nil {
		return err
	}
	if c.RedisURL != "" && (c.SendRateLimit <= 0 || c.SendRateWindow <= 0) {
		return errors.New("SEND_RATE_LIMIT and SEND_RATE_WINDOW must be positive when REDIS_URL is set")
	}
	return nil
}

func validateMountPath(p string) error {
	if !strings.HasPrefix(p, "/") || p == "/" || strings.ContainsAny(p, "*{}?#: ") {
		return fmt.Errorf("BLOB_MOUNT_PATH must be a route path like /files, got %q", p)
	}
	return nil
}

func validateBaseURL(raw string) error {
	if raw == "" || (strings.HasPrefix(raw, "/") && !strings.HasPrefix(raw, "//")) {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("BLOB_BASE_URL must be an http(s) URL or a path, got %q", raw)
	}
	return nil
}

// FileBaseURL is the prefix attachment URLs are built from.
func (c *Config) FileBaseURL() string {
	if c.BlobBaseURL != "" {
		return c.BlobBaseURL
	}
	return c.BlobMountPath
}

func (c *Config) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) RateLimitEnabled() bool {
	return c.RedisURL != ""
}
