package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/hushline/hushline/internal/model"
	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port          string `env:"PORT" envDefault:"8080"`
	Env           string `env:"ENV" envDefault:"development"` // development, production
	SecureCookies bool   `env:"SECURE_COOKIES" envDefault:"false"`

	// Database
	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"` // sqlite, pgx
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"hushline.db?_time_format=sqlite"`

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Features
	RegistrationCodesRequired   bool      `env:"REGISTRATION_CODES_REQUIRED" envDefault:"true"`
	UserVerificationEnabled     bool      `env:"USER_VERIFICATION_ENABLED" envDefault:"false"`
	DirectoryVerifiedTabEnabled bool      `env:"DIRECTORY_VERIFIED_TAB_ENABLED" envDefault:"true"`
	AliasMode                   AliasMode `env:"ALIAS_MODE" envDefault:"always"`

	ProtonKeyLookupURL string `env:"PROTON_KEY_LOOKUP_URL" envDefault:"https://mail-api.proton.me/pks/lookup"`

	SMTP  SMTPConfig  `envPrefix:"SMTP_"`
	Blob  BlobConfig  `envPrefix:"BLOB_"`
	Redis RedisConfig `envPrefix:"REDIS_"`
	Seed  SeedConfig  `envPrefix:"SEED_ADMIN_"`

	// Extra holds everything supplied through the HL_CFG_ prefixes.
	Extra Values `env:"-"`
}

// SMTPConfig is the instance-wide notification relay. Users may override it
// with their own server.
type SMTPConfig struct {
	Host       string               `env:"HOST"`
	Port       int                  `env:"PORT" envDefault:"587"`
	Username   string               `env:"USERNAME"`
	Password   string               `env:"PASSWORD"`
	Sender     string               `env:"SENDER" envDefault:"notifications@hushline.app"`
	Encryption model.SMTPEncryption `env:"ENCRYPTION" envDefault:"StartTLS"`
}

func (c SMTPConfig) Enabled() bool { return c.Host != "" }

type BlobConfig struct {
	Driver    string `env:"DRIVER" envDefault:"file"` // file, s3
	FileRoot  string `env:"FILE_ROOT" envDefault:"data/public"`
	PublicURL string `env:"PUBLIC_URL" envDefault:"/assets"`

	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`
	S3UsePathStyle bool   `env:"S3_USE_PATH_STYLE" envDefault:"false"`
}

type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"5m"`
}

type SeedConfig struct {
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	// Load .env file if it exists (don't error if missing)
	_ = godotenv.Load()

	return LoadFrom(environMap(os.Environ()))
}

// LoadFrom builds a Config from an explicit environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	cfg := &Config{}
	if err := env.ParseWithOptions(cfg, env.Options{Environment: environ}); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	extra, err := ParseEnv(environ)
	if err != nil {
		return nil, err
	}
	cfg.Extra = extra

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "pgx":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be sqlite or pgx, got %q", c.DatabaseDriver)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if len(c.EncryptionKey) < 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be at least 32 characters")
	}

	switch c.Blob.Driver {
	case "file":
		if c.Blob.FileRoot == "" {
			return fmt.Errorf("BLOB_FILE_ROOT is required for the file driver")
		}
	case "s3":
		if c.Blob.S3Bucket == "" {
			return fmt.Errorf("BLOB_S3_BUCKET is required for the s3 driver")
		}
	default:
		return fmt.Errorf("BLOB_DRIVER must be file or s3, got %q", c.Blob.Driver)
	}

	if (c.Seed.Username == "") != (c.Seed.Password == "") {
		return fmt.Errorf("SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD must be set together")
	}
	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func environMap(environ []string) map[string]string {
	m := make(map[string]string, len(environ))
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok {
			m[k] = v
		}
	}
	return m
}
