package config

import "time"

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BaseDir:  DefaultBaseDir(),
		LogLevel: "info",

		API: APIConfig{
			RateLimit: 120,
			Timeout:   30 * time.Second,
		},

		Storage: StorageConfig{
			RateLimit: 60,
		},

		Queue: DefaultQueueConfig(),

		Network: NetworkConfig{
			ProbeInterval: 15 * time.Second,
		},
	}
}

// DefaultQueueConfig returns the attachment queue defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		MaxRetries:    3,
		Concurrency:   3,
		BaseBackoff:   2 * time.Second,
		MaxBackoff:    10 * time.Minute,
		PollInterval:  5 * time.Second,
		AbandonAfter:  7 * 24 * time.Hour,
		SweepInterval: time.Hour,
	}
}
