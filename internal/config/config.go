package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Store backends.
const (
	BackendMemory = "memory"
	BackendNATS   = "nats"
)

// Config holds lobbyd settings. Values come from environment variables
// (with defaults) and may be overridden by an optional YAML file named in
// LOBBYD_CONFIG.
type Config struct {
	Port         string        `yaml:"port"`
	StoreBackend string        `yaml:"store_backend"`
	NATSURL      string        `yaml:"nats_url"`
	NATSBucket   string        `yaml:"nats_bucket"`
	LogLevel     string        `yaml:"log_level"`
	ReapInterval time.Duration `yaml:"reap_interval"`
}

// Load reads configuration from the environment and the optional file.
func Load() (Config, error) {
	cfg := fromEnv()
	if path := os.Getenv("LOBBYD_CONFIG"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return Config{}, err
		}
	}
	if cfg.StoreBackend != BackendMemory && cfg.StoreBackend != BackendNATS {
		return Config{}, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
	return cfg, nil
}

func fromEnv() Config {
	return Config{
		Port:         getEnv("PORT", "8080"),
		StoreBackend: getEnv("STORE_BACKEND", BackendMemory),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSBucket:   getEnv("NATS_BUCKET", "fishbowl"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		ReapInterval: getEnvAsDuration("REAP_INTERVAL", time.Minute),
	}
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config: %w", err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvAsDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
