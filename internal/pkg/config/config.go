package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	DatabaseDriver string `env:"DATABASE_DRIVER" envDefault:"sqlite"` // sqlite or postgres
	DatabaseURL    string `env:"DATABASE_URL" envDefault:"data/processed/taxi_data.db"`

	StagingDir           string        `env:"STAGING_DIR" envDefault:"data/raw"`
	BatchSize            int           `env:"BATCH_SIZE" envDefault:"100000"`
	IngestInterval       time.Duration `env:"INGEST_INTERVAL" envDefault:"0s"` // 0 runs once and exits
	ArchiveDir           string        `env:"ARCHIVE_DIR"`
	DeadLetterDir        string        `env:"DEAD_LETTER_DIR" envDefault:"data/deadletter"`
	DeadLetterSegment    int64         `env:"DEAD_LETTER_SEGMENT_SIZE_BYTES" envDefault:"104857600"` // 100MB
	DeadLetterMaxDisk    int64         `env:"DEAD_LETTER_MAX_DISK_SIZE_BYTES" envDefault:"1073741824"` // 1GB

	TransferMode      string `env:"TRANSFER_MODE" envDefault:"none"` // none, local or sftp
	TransferSourceDir string `env:"TRANSFER_SOURCE_DIR"`
	SFTPHost          string `env:"SFTP_HOST" envDefault:"sftp_server"`
	SFTPPort          int    `env:"SFTP_PORT" envDefault:"22"`
	SFTPUser          string `env:"SFTP_USER"`
	SFTPPassword      string `env:"SFTP_PASSWORD"`
	SFTPKeyPath       string `env:"SFTP_KEY_PATH"`
	SFTPRemotePath    string `env:"SFTP_REMOTE_PATH" envDefault:"/upload"`
	SFTPKnownHosts    string `env:"SFTP_KNOWN_HOSTS"` // empty skips host key verification

	APIServerAddr   string        `env:"API_SERVER_ADDR" envDefault:":8000"`
	AdminServerAddr string        `env:"ADMIN_SERVER_ADDR" envDefault:":9091"`
	APIKey          string        `env:"API_KEY"`
	APIKeySource    string        `env:"API_KEY_SOURCE" envDefault:"static"` // static or database
	APIKeyCacheTTL  time.Duration `env:"API_KEY_CACHE_TTL" envDefault:"5m"`

	RateLimitRequests int           `env:"RATE_LIMIT_REQUESTS" envDefault:"100"`
	RateLimitWindow   time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	RedisAddr         string        `env:"REDIS_ADDR"` // empty keeps rate limiting in-process

	QueryDefaultLimit int `env:"QUERY_DEFAULT_LIMIT" envDefault:"100"`
	QueryMaxLimit     int `env:"QUERY_MAX_LIMIT" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	// Attempt to load .env file for local development.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the rest of the program cannot work with.
func (c *Config) Validate() error {
	switch c.DatabaseDriver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("config: unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	switch c.TransferMode {
	case "none", "local", "sftp":
	default:
		return fmt.Errorf("config: unsupported TRANSFER_MODE %q", c.TransferMode)
	}
	if c.TransferMode == "local" && c.TransferSourceDir == "" {
		return fmt.Errorf("config: TRANSFER_SOURCE_DIR is required when TRANSFER_MODE=local")
	}
	switch c.APIKeySource {
	case "static", "database":
	default:
		return fmt.Errorf("config: unsupported API_KEY_SOURCE %q", c.APIKeySource)
	}
	if c.IngestInterval > 0 && c.ArchiveDir == "" {
		return fmt.Errorf("config: ARCHIVE_DIR is required when INGEST_INTERVAL is set")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("config: BATCH_SIZE must be positive, got %d", c.BatchSize)
	}
	if c.QueryDefaultLimit <= 0 || c.QueryMaxLimit < c.QueryDefaultLimit {
		return fmt.Errorf("config: need 0 < QUERY_DEFAULT_LIMIT (%d) <= QUERY_MAX_LIMIT (%d)", c.QueryDefaultLimit, c.QueryMaxLimit)
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("config: rate limit needs positive RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW")
	}
	return nil
}
