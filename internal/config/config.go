// Package config handles application configuration management.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Base directory for all LangQuest data (defaults under XDG data home)
	BaseDir string

	// Debug enables GORM query logging and debug log lines.
	Debug bool

	// LogLevel is one of debug, info, warn, error.
	LogLevel string

	// API settings for live (online) queries
	API APIConfig

	// Remote object storage for attachments
	Storage StorageConfig

	// Attachment queue tuning, shared by the temporary and permanent queues
	Queue QueueConfig

	// Connectivity probing
	Network NetworkConfig
}

// APIConfig holds remote REST API settings.
type APIConfig struct {
	URL       string
	Token     string
	RateLimit int // requests per minute
	Timeout   time.Duration
}

// StorageConfig holds remote object storage settings.
type StorageConfig struct {
	// URL of an S3-compatible bucket endpoint. When empty, a local
	// directory under BaseDir stands in for the bucket.
	URL       string
	Token     string
	RateLimit int // requests per minute
}

// QueueConfig holds attachment transfer settings.
type QueueConfig struct {
	MaxRetries   int
	Concurrency  int
	BaseBackoff  time.Duration
	MaxBackoff   time.Duration
	PollInterval time.Duration
	// AbandonAfter is how long an unreferenced temporary attachment may sit
	// before CleanupAbandoned removes it.
	AbandonAfter time.Duration
	// SweepInterval is how often the queue loop reconciles attachments
	// against record refs.
	SweepInterval time.Duration
}

// NetworkConfig holds connectivity probe settings.
type NetworkConfig struct {
	HealthURL     string
	ProbeInterval time.Duration
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if home := os.Getenv("LANGQUEST_HOME"); home != "" {
		cfg.BaseDir = home
	}

	if v := os.Getenv("LANGQUEST_DEBUG"); v != "" {
		cfg.Debug = v == "1" || v == "true"
		if cfg.Debug {
			cfg.LogLevel = "debug"
		}
	}

	if level := os.Getenv("LANGQUEST_LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if url := os.Getenv("LANGQUEST_API_URL"); url != "" {
		cfg.API.URL = url
		if cfg.Network.HealthURL == "" {
			cfg.Network.HealthURL = url
		}
	}

	if token := os.Getenv("LANGQUEST_API_TOKEN"); token != "" {
		cfg.API.Token = token
		cfg.Storage.Token = token
	}

	if url := os.Getenv("LANGQUEST_STORAGE_URL"); url != "" {
		cfg.Storage.URL = url
	}

	if url := os.Getenv("LANGQUEST_HEALTH_URL"); url != "" {
		cfg.Network.HealthURL = url
	}

	if n, ok := envInt("LANGQUEST_MAX_RETRIES"); ok && n > 0 {
		cfg.Queue.MaxRetries = n
	}

	if n, ok := envInt("LANGQUEST_CONCURRENCY"); ok && n > 0 {
		cfg.Queue.Concurrency = n
	}

	// Ensure directories exist
	if err := ensureDirectories(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func envInt(key string) (int, bool) {
	v := os.Getenv(key)
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, false
	}
	return n, true
}

// ensureDirectories creates required directories if they don't exist.
func ensureDirectories(cfg *Config) error {
	paths := GetPaths(cfg)
	dirs := []string{
		cfg.BaseDir,
		paths.Attachments,
		paths.Backups,
		paths.Logs,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	if cfg.Storage.URL == "" {
		if err := os.MkdirAll(filepath.Clean(paths.RemoteMirror), 0755); err != nil {
			return err
		}
	}
	return nil
}
