package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains all runtime configuration, parsed from environment variables.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	AppEnv      string `env:"APP_ENV" envDefault:"development"`
	DatabaseURL string `env:"DATABASE_URL,notEmpty"`
	SentryDSN   string `env:"SENTRY_DSN"`

	Auth      Auth    `envPrefix:""`
	Database  Pool    `envPrefix:"DB_"`
	Storage   Storage `envPrefix:"MINIO_"`
	Processor Worker  `envPrefix:"PROCESSOR_"`
}

// Auth contains token, lockout and maintenance parameters.
type Auth struct {
	JWTSecret        string        `env:"JWT_SECRET,notEmpty"`
	AccessTTL        time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"15m"`
	RefreshTTL       time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"168h"`
	LockoutThreshold int           `env:"LOGIN_MAX_ATTEMPTS" envDefault:"5"`
	LockoutWindow    time.Duration `env:"LOGIN_LOCK_WINDOW" envDefault:"15m"`
	RedisURL         string        `env:"REDIS_URL"`
	CronSecret       string        `env:"CRON_SECRET"`
	SweepSchedule    string        `env:"REVOCATION_SWEEP_SCHEDULE" envDefault:"@hourly"`
}

// Pool contains database connection pool limits.
type Pool struct {
	MaxOpenConns    int           `env:"MAX_OPEN_CONNS" envDefault:"10"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS" envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"30m"`
	ConnMaxIdleTime time.Duration `env:"CONN_MAX_IDLE_TIME" envDefault:"10m"`
}

// Storage contains object storage parameters for document files.
type Storage struct {
	Endpoint  string `env:"ENDPOINT" envDefault:"localhost:9000"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Bucket    string `env:"BUCKET_NAME" envDefault:"docvault-files"`
	UseSSL    bool   `env:"USE_SSL" envDefault:"false"`
}

// Worker contains parameters of the external document processing service.
type Worker struct {
	URL     string        `env:"URL" envDefault:"http://localhost:5000"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// Load reads .env if present and parses configuration from the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Config{}
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Auth.AccessTTL <= 0 {
		return nil, fmt.Errorf("ACCESS_TOKEN_TTL must be positive, got %s", cfg.Auth.AccessTTL)
	}
	if cfg.Auth.RefreshTTL <= 0 {
		return nil, fmt.Errorf("REFRESH_TOKEN_TTL must be positive, got %s", cfg.Auth.RefreshTTL)
	}

	return &cfg, nil
}
