package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Addr          string        `env:"API_ADDR" envDefault:":3000"`
	DatabaseURL   string        `env:"DATABASE_URL"`
	MigrationsDir string        `env:"RETRO_MIGRATIONS_DIR" envDefault:"./db/migrations"`
	JWTSecret     string        `env:"RETRO_JWT_SECRET" envDefault:"retro-dev-secret"`
	CredentialTTL time.Duration `env:"RETRO_CREDENTIAL_TTL" envDefault:"168h"`
	ClientURL     string        `env:"RETRO_CLIENT_URL" envDefault:"http://localhost:5173"`
	CORSOrigin    string        `env:"RETRO_CORS_ORIGIN"`
	LogLevel      string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat     string        `env:"LOG_FORMAT" envDefault:"text"`
	// Redis - optional; credentials are stateless JWTs without it
	RedisURL string `env:"REDIS_URL"`
	// SMTP - empty by default, invitations are not mailed if not configured
	SMTPHost     string `env:"SMTP_HOST"`
	SMTPPort     string `env:"SMTP_PORT" envDefault:"587"`
	SMTPUsername string `env:"SMTP_USERNAME"`
	SMTPPassword string `env:"SMTP_PASSWORD"`
	SMTPFrom     string `env:"SMTP_FROM"`
	SMTPFromName string `env:"SMTP_FROM_NAME" envDefault:"Retro"`
	// Export archive (S3 compatible)
	ExportEndpoint  string `env:"EXPORT_BUCKET_ENDPOINT"`
	ExportBucket    string `env:"EXPORT_BUCKET_NAME" envDefault:"retro-exports"`
	ExportAccessKey string `env:"EXPORT_BUCKET_ACCESS_KEY"`
	ExportSecretKey string `env:"EXPORT_BUCKET_SECRET_KEY"`
	ExportUseSSL    bool   `env:"EXPORT_BUCKET_SSL" envDefault:"true"`
	// Realtime transport limits
	WSMaxPayloadBytes int           `env:"RETRO_WS_MAX_PAYLOAD_BYTES" envDefault:"16384"`
	WSMaxFramesPerSec int           `env:"RETRO_WS_MAX_FRAMES_PER_SECOND" envDefault:"40"`
	WSWriteTimeout    time.Duration `env:"RETRO_WS_WRITE_TIMEOUT" envDefault:"10s"`
}

// Load reads the configuration from the environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.ClientURL = strings.TrimRight(strings.TrimSpace(cfg.ClientURL), "/")
	if strings.TrimSpace(cfg.CORSOrigin) == "" {
		cfg.CORSOrigin = cfg.ClientURL
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return Config{}, fmt.Errorf("RETRO_JWT_SECRET is required")
	}
	if cfg.CredentialTTL <= 0 {
		return Config{}, fmt.Errorf("RETRO_CREDENTIAL_TTL must be positive")
	}
	if cfg.WSMaxPayloadBytes <= 0 || cfg.WSMaxFramesPerSec <= 0 {
		return Config{}, fmt.Errorf("websocket limits must be positive")
	}
	return cfg, nil
}
