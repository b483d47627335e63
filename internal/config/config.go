package config

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"

	"github.com/carecrypt/carecrypt-server/internal/httputil"
)

var knownWeakSecrets = []string{
	"change-me", "fallback-secret", "dev-secret-change-me", "secret", "admin", "password",
}

type Config struct {
	Port        int    `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	AppBaseURL  string `env:"APP_BASE_URL" envDefault:"http://localhost:8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`
	RedisURL    string `env:"REDIS_URL"`
	StaticDir   string `env:"STATIC_DIR"`

	// TrustedProxies lists CIDRs or addresses whose forwarding headers are
	// believed. Empty keys clients on the socket address.
	TrustedProxies []string `env:"TRUSTED_PROXIES" envSeparator:","`

	EncryptionKey string `env:"ENCRYPTION_KEY,required"`
	SessionSecret string `env:"SESSION_SECRET,required"`
	BcryptCost    int    `env:"BCRYPT_COST" envDefault:"12"`

	SessionIdleTimeoutSeconds int `env:"SESSION_IDLE_TIMEOUT_SECONDS" envDefault:"900"`
	ResetTokenTTLMinutes      int `env:"RESET_TOKEN_TTL_MINUTES" envDefault:"60"`

	StorageBackend string `env:"STORAGE_BACKEND" envDefault:"local"`
	UploadDir      string `env:"UPLOAD_DIR" envDefault:"uploads"`
	MaxUploadBytes int64  `env:"MAX_UPLOAD_BYTES" envDefault:"16777216"`
	S3Bucket       string `env:"S3_BUCKET"`
	S3Region       string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint     string `env:"S3_ENDPOINT"`
	S3AccessKey    string `env:"S3_ACCESS_KEY"`
	S3SecretKey    string `env:"S3_SECRET_KEY"`

	OrphanGraceMinutes int `env:"ORPHAN_GRACE_MINUTES" envDefault:"60"`

	MailBackend  string `env:"MAIL_BACKEND" envDefault:"log"`
	MailFrom     string `env:"MAIL_FROM"`
	MailFromName string `env:"MAIL_FROM_NAME" envDefault:"CareCrypt"`
	SMTPHost     string `env:"SMTP_HOST" envDefault:"smtp.gmail.com"`
	SMTPPort     int    `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPTLSMode  string `env:"SMTP_TLS_MODE" envDefault:"starttls"`
	AWSRegion    string `env:"AWS_REGION" envDefault:"us-east-1"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.SessionIdleTimeoutSeconds) * time.Second
}

func (c *Config) ResetTokenTTL() time.Duration {
	return time.Duration(c.ResetTokenTTLMinutes) * time.Minute
}

func (c *Config) OrphanGrace() time.Duration {
	return time.Duration(c.OrphanGraceMinutes) * time.Minute
}

// Validate checks values env tags cannot express. The encryption key is
// checked here so a bad key stops the process before anything is served.
func (c *Config) Validate() error {
	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil || len(key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be 32 bytes hex-encoded (generate with: go run scripts/generate-key.go)")
	}

	switch c.StorageBackend {
	case "local":
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for the local storage backend")
		}
	case "s3":
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.StorageBackend)
	}

	switch c.MailBackend {
	case "log":
	case "smtp", "ses":
		if c.MailFrom == "" {
			return fmt.Errorf("MAIL_FROM is required for the %s mail backend", c.MailBackend)
		}
	default:
		return fmt.Errorf("unsupported MAIL_BACKEND %q", c.MailBackend)
	}

	if _, err := httputil.ParseTrustedProxies(c.TrustedProxies); err != nil {
		return fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}

	if c.SessionIdleTimeoutSeconds <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT_SECONDS must be positive")
	}

	if c.IsProduction() {
		if err := validateSecret("SESSION_SECRET", c.SessionSecret); err != nil {
			return err
		}
		if c.MailBackend == "log" {
			log.Warn().Msg("MAIL_BACKEND=log in production: password reset emails will not be delivered")
		}
		if c.RedisURL == "" {
			log.Warn().Msg("REDIS_URL is empty in production: rate limits are kept in process memory")
		} else if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func validateSecret(name, value string) error {
	if len(value) < 32 {
		return fmt.Errorf("%s must be at least 32 characters in production (generate with: openssl rand -base64 32)", name)
	}
	for _, weak := range knownWeakSecrets {
		if value == weak {
			return fmt.Errorf("%s is a known weak default; set a strong secret in production", name)
		}
	}
	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
