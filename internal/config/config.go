// Package config loads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"

	"github.com/alanyang/portfolio-api/internal/domain/resource"
)

const (
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageBolt     = "bolt"
	StorageMemory   = "memory"

	EventBusMemory   = "memory"
	EventBusPostgres = "postgres"
	EventBusRabbitMQ = "rabbitmq"
)

// StorageConfig selects and configures the document store.
type StorageConfig struct {
	Driver         string        `env:"STORAGE_DRIVER" envDefault:"mongo"`
	MongoURI       string        `env:"MONGODB_URI"`
	MongoDatabase  string        `env:"MONGODB_DATABASE" envDefault:"ruhul-amin"`
	PostgresURL    string        `env:"DATABASE_URL"`
	BoltPath       string        `env:"BOLT_PATH" envDefault:"portfolio.db"`
	ConnectTimeout time.Duration `env:"STORAGE_CONNECT_TIMEOUT" envDefault:"10s"`
}

// EventsConfig selects where change events are published.
type EventsConfig struct {
	Driver         string `env:"EVENT_BUS" envDefault:"memory"`
	RabbitURL      string `env:"RABBITMQ_URL"`
	RabbitExchange string `env:"RABBITMQ_EXCHANGE" envDefault:"portfolio-events"`
}

// Config is the complete service configuration.
type Config struct {
	Port            string        `env:"PORT" envDefault:"5000"`
	APIMode         string        `env:"API_MODE" envDefault:"compat"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL  time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`

	Storage StorageConfig
	Events  EventsConfig
}

// Load reads an optional .env file, then parses and validates the environment.
// Variables already set in the environment win over the .env file.
func Load(envFiles ...string) (*Config, error) {
	cfg, err := Parse(envFiles...)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse is Load without validation, for commands that check only the
// settings they use.
func Parse(envFiles ...string) (*Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		slog.Debug("no .env file loaded", "error", err)
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}

// ValidateMigrate checks what the migrate command needs. The storage driver
// and event bus are not consulted.
func (c *Config) ValidateMigrate() error {
	var errs []error
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.PostgresURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required to run migrations"))
	}
	return errors.Join(errs...)
}

// Validate rejects unknown drivers and missing connection strings.
func (c *Config) Validate() error {
	var errs []error

	if _, err := resource.ParseMode(c.APIMode); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SlogLevel(); err != nil {
		errs = append(errs, err)
	}

	switch c.Storage.Driver {
	case StorageMongo:
		if c.Storage.MongoURI == "" {
			errs = append(errs, errors.New("MONGODB_URI is required for the mongo storage driver"))
		}
	case StoragePostgres:
		if c.Storage.PostgresURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres storage driver"))
		}
	case StorageBolt:
		if c.Storage.BoltPath == "" {
			errs = append(errs, errors.New("BOLT_PATH is required for the bolt storage driver"))
		}
	case StorageMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	switch c.Events.Driver {
	case EventBusMemory:
	case EventBusPostgres:
		if c.Storage.Driver != StoragePostgres {
			errs = append(errs, errors.New("the postgres event bus requires the postgres storage driver"))
		}
	case EventBusRabbitMQ:
		if c.Events.RabbitURL == "" {
			errs = append(errs, errors.New("RABBITMQ_URL is required for the rabbitmq event bus"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown event bus %q", c.Events.Driver))
	}

	return errors.Join(errs...)
}

// Mode returns the parsed API mode. Call after Validate.
func (c *Config) Mode() resource.Mode {
	m, _ := resource.ParseMode(c.APIMode)
	return m
}

// SlogLevel maps LOG_LEVEL onto a slog level.
func (c *Config) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(c.LogLevel))); err != nil {
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q", c.LogLevel)
	}
	return level, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}
