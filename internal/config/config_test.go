package config_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyang/portfolio-api/internal/config"
	"github.com/alanyang/portfolio-api/internal/domain/resource"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("MONGODB_URI", "mongodb://localhost:27017")

	cfg, err := config.Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "5000", cfg.Port)
	assert.Equal(t, ":5000", cfg.Addr())
	assert.Equal(t, resource.ModeCompat, cfg.Mode())
	assert.Equal(t, config.StorageMongo, cfg.Storage.Driver)
	assert.Equal(t, "ruhul-amin", cfg.Storage.MongoDatabase)
	assert.Equal(t, 10*time.Second, cfg.Storage.ConnectTimeout)
	assert.Equal(t, config.EventBusMemory, cfg.Events.Driver)
	assert.Equal(t, 24*time.Hour, cfg.IdempotencyTTL)

	level, err := cfg.SlogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, level)
}

func TestLoad_DotEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_DRIVER=memory\nPORT=7070\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("STORAGE_DRIVER")
		os.Unsetenv("PORT")
	})

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.StorageMemory, cfg.Storage.Driver)
	assert.Equal(t, "7070", cfg.Port)
}

func TestLoad_EnvironmentOverridesDotEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("STORAGE_DRIVER=memory\nPORT=7070\n"), 0o600))
	t.Setenv("STORAGE_DRIVER", "memory")
	t.Setenv("PORT", "9090")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
}

func TestValidate(t *testing.T) {
	valid := func() config.Config {
		return config.Config{
			APIMode:  "compat",
			LogLevel: "info",
			Storage:  config.StorageConfig{Driver: config.StorageMemory},
			Events:   config.EventsConfig{Driver: config.EventBusMemory},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantErr string
	}{
		{"memory is valid", func(c *config.Config) {}, ""},
		{"strict mode", func(c *config.Config) { c.APIMode = "strict" }, ""},
		{"unknown mode", func(c *config.Config) { c.APIMode = "yolo" }, "unknown api mode"},
		{"bad log level", func(c *config.Config) { c.LogLevel = "loud" }, "invalid LOG_LEVEL"},
		{"mongo needs uri", func(c *config.Config) { c.Storage.Driver = config.StorageMongo }, "MONGODB_URI"},
		{"postgres needs url", func(c *config.Config) { c.Storage.Driver = config.StoragePostgres }, "DATABASE_URL"},
		{"bolt needs path", func(c *config.Config) { c.Storage.Driver = config.StorageBolt }, "BOLT_PATH"},
		{"unknown storage", func(c *config.Config) { c.Storage.Driver = "sqlite" }, "unknown storage driver"},
		{"pg bus needs pg storage", func(c *config.Config) { c.Events.Driver = config.EventBusPostgres }, "requires the postgres storage"},
		{"rabbit needs url", func(c *config.Config) { c.Events.Driver = config.EventBusRabbitMQ }, "RABBITMQ_URL"},
		{"unknown bus", func(c *config.Config) { c.Events.Driver = "kafka" }, "unknown event bus"},
		{
			"pg storage and bus",
			func(c *config.Config) {
				c.Storage.Driver = config.StoragePostgres
				c.Storage.PostgresURL = "postgres://localhost/portfolio"
				c.Events.Driver = config.EventBusPostgres
			},
			"",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			c := valid()
			tc.mutate(&c)
			err := c.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestValidateMigrate_IgnoresStorageDriver(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/portfolio")
	t.Setenv("MONGODB_URI", "")

	cfg, err := config.Parse(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, config.StorageMongo, cfg.Storage.Driver)

	require.Error(t, cfg.Validate(), "serving with the default mongo driver needs MONGODB_URI")
	assert.NoError(t, cfg.ValidateMigrate())

	cfg.Storage.PostgresURL = ""
	err = cfg.ValidateMigrate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.NotContains(t, err.Error(), "MONGODB_URI")

	cfg.Storage.PostgresURL = "postgres://localhost/portfolio"
	cfg.LogLevel = "loud"
	assert.ErrorContains(t, cfg.ValidateMigrate(), "LOG_LEVEL")
}
