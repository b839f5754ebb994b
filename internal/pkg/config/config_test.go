package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DatabaseDriver != "sqlite" {
		t.Errorf("expected sqlite driver, got %q", cfg.DatabaseDriver)
	}
	if cfg.BatchSize != 100000 {
		t.Errorf("expected batch size 100000, got %d", cfg.BatchSize)
	}
	if cfg.QueryDefaultLimit != 100 || cfg.QueryMaxLimit != 500 {
		t.Errorf("unexpected query limits: %d/%d", cfg.QueryDefaultLimit, cfg.QueryMaxLimit)
	}
	if cfg.RateLimitRequests != 100 || cfg.RateLimitWindow != time.Minute {
		t.Errorf("unexpected rate limit: %d per %s", cfg.RateLimitRequests, cfg.RateLimitWindow)
	}
}

func TestLoad_FromEnv(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "postgres")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost/trips")
	t.Setenv("BATCH_SIZE", "500")
	t.Setenv("INGEST_INTERVAL", "15m")
	t.Setenv("ARCHIVE_DIR", "data/archive")
	t.Setenv("QUERY_MAX_LIMIT", "1000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DatabaseDriver != "postgres" || cfg.DatabaseURL != "postgres://u:p@localhost/trips" {
		t.Errorf("database settings not loaded: %+v", cfg)
	}
	if cfg.BatchSize != 500 {
		t.Errorf("expected batch size 500, got %d", cfg.BatchSize)
	}
	if cfg.IngestInterval != 15*time.Minute {
		t.Errorf("expected 15m interval, got %s", cfg.IngestInterval)
	}
	if cfg.QueryMaxLimit != 1000 {
		t.Errorf("expected max limit 1000, got %d", cfg.QueryMaxLimit)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DatabaseDriver:    "sqlite",
			TransferMode:      "none",
			APIKeySource:      "static",
			BatchSize:         10,
			QueryDefaultLimit: 100,
			QueryMaxLimit:     500,
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"unknown driver", func(c *Config) { c.DatabaseDriver = "mysql" }, true},
		{"unknown transfer mode", func(c *Config) { c.TransferMode = "ftp" }, true},
		{"local transfer without source", func(c *Config) { c.TransferMode = "local" }, true},
		{"local transfer with source", func(c *Config) { c.TransferMode = "local"; c.TransferSourceDir = "/in" }, false},
		{"unknown key source", func(c *Config) { c.APIKeySource = "ldap" }, true},
		{"interval without archive", func(c *Config) { c.IngestInterval = time.Minute }, true},
		{"interval with archive", func(c *Config) { c.IngestInterval = time.Minute; c.ArchiveDir = "/done" }, false},
		{"zero batch size", func(c *Config) { c.BatchSize = 0 }, true},
		{"default above max", func(c *Config) { c.QueryDefaultLimit = 600 }, true},
		{"zero rate window", func(c *Config) { c.RateLimitWindow = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := c.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
