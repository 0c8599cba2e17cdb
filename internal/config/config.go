// Package config loads runtime settings from ESCALA_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"escala/internal/blob"
	"escala/internal/core"
)

// Config is the full process configuration.
type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR" envDefault:":8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	LogDevelopment  bool          `env:"LOG_DEVELOPMENT"`

	// Trace writes one JSON line per service operation to stderr.
	Trace bool `env:"TRACE"`

	Storage Storage `envPrefix:"STORAGE_"`
	Blob    Blob    `envPrefix:"BLOB_"`

	AdminPhone string `env:"ADMIN_PHONE"`

	// SessionHashKey authenticates the session cookie; SessionBlockKey
	// optionally encrypts it.
	SessionHashKey  string        `env:"SESSION_HASH_KEY"`
	SessionBlockKey string        `env:"SESSION_BLOCK_KEY"`
	SessionMaxAge   time.Duration `env:"SESSION_MAX_AGE" envDefault:"720h"`
	SecureCookies   bool          `env:"SECURE_COOKIES"`

	SlackWebhookURL string `env:"SLACK_WEBHOOK_URL"`

	// RegistrationRate is the number of registrations allowed per minute per
	// session; RegistrationBurst is the bucket size.
	RegistrationRate  float64 `env:"REGISTRATION_RATE" envDefault:"10"`
	RegistrationBurst int     `env:"REGISTRATION_BURST" envDefault:"5"`

	AuditLimit int `env:"AUDIT_LIMIT" envDefault:"1000"`
}

// Storage selects the snapshot backend.
type Storage struct {
	Driver      string `env:"DRIVER" envDefault:"sqlite"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"escala.db"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	Seed        bool   `env:"SEED" envDefault:"true"`
}

// Blob selects the avatar and export artifact backend.
type Blob struct {
	Driver        string `env:"DRIVER" envDefault:"fs"`
	FSRoot        string `env:"FS_ROOT" envDefault:"./blobdata"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
	S3            S3     `envPrefix:"S3_"`
}

// S3 carries bucket settings for the s3 blob driver.
type S3 struct {
	Region          string `env:"REGION"`
	Bucket          string `env:"BUCKET"`
	Endpoint        string `env:"ENDPOINT"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	SessionToken    string `env:"SESSION_TOKEN"`
	PathStyle       bool   `env:"PATH_STYLE"`
}

const envPrefix = "ESCALA_"

// LoadDotenv reads .env style files into the process environment without
// overriding variables that are already set. Missing files are ignored.
func LoadDotenv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load %s: %w", p, err)
		}
	}
	return nil
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{Prefix: envPrefix})
}

// LoadFrom parses the given variables instead of the process environment.
func LoadFrom(vars map[string]string) (Config, error) {
	return parse(env.Options{Prefix: envPrefix, Environment: vars})
}

func parse(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c Config) Validate() error {
	switch core.StorageDriver(c.Storage.Driver) {
	case core.StorageMemory, core.StorageSQLite:
	case core.StoragePostgres:
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			return fmt.Errorf("ESCALA_STORAGE_POSTGRES_DSN required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch blob.Driver(c.Blob.Driver) {
	case blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("ESCALA_BLOB_S3_BUCKET required for s3 blob driver")
		}
	default:
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if n := len(c.SessionHashKey); n != 0 && n < 32 {
		return fmt.Errorf("ESCALA_SESSION_HASH_KEY must be at least 32 bytes")
	}
	switch len(c.SessionBlockKey) {
	case 0, 16, 24, 32:
	default:
		return fmt.Errorf("ESCALA_SESSION_BLOCK_KEY must be 16, 24 or 32 bytes")
	}
	if c.RegistrationRate <= 0 || c.RegistrationBurst <= 0 {
		return fmt.Errorf("registration rate and burst must be positive")
	}
	return nil
}

// StorageConfig converts the storage section for core.OpenPersistentStore.
func (c Config) StorageConfig() core.StorageConfig {
	return core.StorageConfig{
		Driver:      core.StorageDriver(c.Storage.Driver),
		SQLitePath:  c.Storage.SQLitePath,
		PostgresDSN: c.Storage.PostgresDSN,
		Seed:        c.Storage.Seed,
	}
}

// BlobConfig converts the blob section for blob.Open.
func (c Config) BlobConfig() blob.Config {
	return blob.Config{
		Driver:        blob.Driver(c.Blob.Driver),
		FSRoot:        c.Blob.FSRoot,
		PublicBaseURL: c.Blob.PublicBaseURL,
		S3: blob.S3Config{
			Region:          c.Blob.S3.Region,
			Bucket:          c.Blob.S3.Bucket,
			Endpoint:        c.Blob.S3.Endpoint,
			AccessKeyID:     c.Blob.S3.AccessKeyID,
			SecretAccessKey: c.Blob.S3.SecretAccessKey,
			SessionToken:    c.Blob.S3.SessionToken,
			PathStyle:       c.Blob.S3.PathStyle,
		},
	}
}
