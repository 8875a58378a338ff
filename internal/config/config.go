package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// DevSecret signs sessions when no secret is configured outside production.
const DevSecret = "loggym-dev-secret-change-me"

type Config struct {
	Env             string        `env:"LOGGYM_ENV,default=development"`
	Addr            string        `env:"LOGGYM_ADDR,default=:5000"`
	DatabasePath    string        `env:"LOGGYM_DATABASE,default=loggym.db"`
	SecretKey       string        `env:"LOGGYM_SECRET_KEY"`
	SessionLifetime time.Duration `env:"LOGGYM_SESSION_LIFETIME,default=168h"`
	CookieSecure    bool          `env:"LOGGYM_COOKIE_SECURE,default=false"`
	LogLevel        string        `env:"LOGGYM_LOG_LEVEL,default=info"`
	LogFormat       string        `env:"LOGGYM_LOG_FORMAT,default=text"`
	MetricsAddr     string        `env:"LOGGYM_METRICS_ADDR"`

	// UsingDevSecret is set when SecretKey fell back to DevSecret.
	UsingDevSecret bool
}

// Load reads envFile (if it exists) into the process environment and decodes
// the configuration from it.
func Load(envFile string) (Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return Config{}, fmt.Errorf("decode environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

// Validate checks the configuration and fills in the development secret when
// allowed.
func (c *Config) Validate() error {
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	if c.Production() {
		if c.SecretKey == "" || c.SecretKey == DevSecret {
			return errors.New("LOGGYM_SECRET_KEY must be set to a private value in production")
		}
	} else if c.SecretKey == "" {
		c.SecretKey = DevSecret
		c.UsingDevSecret = true
	}

	if c.SessionLifetime <= 0 {
		return fmt.Errorf("LOGGYM_SESSION_LIFETIME must be positive, got %s", c.SessionLifetime)
	}
	if strings.TrimSpace(c.DatabasePath) == "" {
		return errors.New("LOGGYM_DATABASE must not be empty")
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOGGYM_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}
