package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

const (
	DefaultTokenTTL = 60 * time.Minute
	DefaultAppPort  = "8087"
)

var ErrMissingSecret = errors.New("missing required secret")

type Config struct {
	AppName string
	AppEnv  string
	AppPort string

	DB       DBConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	JWT      JWTConfig
	APIKey   APIKeyConfig
}

type DBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	Host          string
	Port          string
	RedisPassword string
	RedisDB       string
}

// Enabled reports whether a Redis host was configured.
func (r RedisConfig) Enabled() bool {
	return r.Host != ""
}

type RabbitMQConfig struct {
	URL     string
	Queue   string
	Workers int
}

// Enabled reports whether a broker URL was configured.
func (r RabbitMQConfig) Enabled() bool {
	return r.URL != ""
}

type JWTConfig struct {
	Secret   string
	TokenTTL time.Duration
}

// APIKeyConfig holds the shared secret every protected request must carry.
type APIKeyConfig struct {
	Header string
	Value  string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first if present; real environment variables
// win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	ttl, err := minutesFromEnv("TOKEN_TTL_MINUTES", DefaultTokenTTL)
	if err != nil {
		return nil, err
	}

	workers, err := intFromEnv("WORKER_COUNT", 3)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		AppName: getEnv("APP_NAME", "task-tracker"),
		AppEnv:  getEnv("APP_ENV", "development"),
		AppPort: getEnv("APP_PORT", DefaultAppPort),

		DB: DBConfig{
			Host:     os.Getenv("DB_HOST"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
			Name:     os.Getenv("DB_NAME"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},

		Redis: RedisConfig{
			Host:          os.Getenv("REDIS_HOST"),
			Port:          getEnv("REDIS_PORT", "6379"),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			RedisDB:       getEnv("REDIS_DB", "0"),
		},

		RabbitMQ: RabbitMQConfig{
			URL:     os.Getenv("RABBITMQ_URL"),
			Queue:   getEnv("RABBITMQ_QUEUE", "task_events"),
			Workers: workers,
		},

		JWT: JWTConfig{
			Secret:   os.Getenv("JWT_SECRET"),
			TokenTTL: ttl,
		},

		APIKey: APIKeyConfig{
			Header: getEnv("API_KEY_HEADER", "X-API-Key"),
			Value:  os.Getenv("API_KEY"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate refuses to start without the signing key and the shared secret.
// There are no built-in fallbacks for either.
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingSecret)
	}
	if c.APIKey.Value == "" {
		return fmt.Errorf("%w: API_KEY", ErrMissingSecret)
	}
	if c.JWT.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", c.JWT.TokenTTL)
	}
	if c.RabbitMQ.Workers < 1 {
		return fmt.Errorf("worker count must be at least 1, got %d", c.RabbitMQ.Workers)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func intFromEnv(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func minutesFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return time.Duration(n) * time.Minute, nil
}
