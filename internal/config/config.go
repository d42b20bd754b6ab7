package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server  ServerConfig
	Auth    AuthConfig
	Worker  WorkerConfig
	Expiry  ExpiryConfig
	DB      DatabaseConfig
	Logging LoggingConfig
}

type ServerConfig struct {
	Host         string
	Port         int
	RateLimitRPS int
}

type AuthConfig struct {
	// Token is the shared secret the correlation engine and the delivery
	// transport present as a bearer credential. Override the default in
	// any real deployment.
	Token string
}

type WorkerConfig struct {
	Count      int
	BufferSize int
}

type ExpiryConfig struct {
	Enabled   bool
	Interval  time.Duration
	BatchSize int
}

type DatabaseConfig struct {
	Path string
}

type LoggingConfig struct {
	Level string
}

func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "localhost"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			RateLimitRPS: getEnvInt("RATE_LIMIT_RPS", 50),
		},
		Auth: AuthConfig{
			Token: getEnv("AUTH_TOKEN", "dev-secret"),
		},
		Worker: WorkerConfig{
			Count:      getEnvInt("WORKER_COUNT", 2),
			BufferSize: getEnvInt("WORKER_BUFFER_SIZE", 64),
		},
		Expiry: ExpiryConfig{
			Enabled:   getEnvBool("EXPIRY_ENABLED", true),
			Interval:  getEnvDuration("EXPIRY_INTERVAL", 30*time.Second),
			BatchSize: getEnvInt("EXPIRY_BATCH_SIZE", 100),
		},
		DB: DatabaseConfig{
			Path: getEnv("DB_PATH", "./data/emergency-alerts.db"),
		},
		Logging: LoggingConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Server.RateLimitRPS < 1 {
		return fmt.Errorf("rate limit must be at least 1 rps")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	if c.Worker.Count < 1 {
		return fmt.Errorf("worker count must be at least 1")
	}
	if c.Expiry.Interval < time.Second {
		return fmt.Errorf("expiry interval must be at least 1 second")
	}
	if c.Expiry.BatchSize < 1 {
		return fmt.Errorf("expiry batch size must be at least 1")
	}

	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
