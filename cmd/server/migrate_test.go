package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateCmd_OnlyNeedsDatabaseURL(t *testing.T) {
	t.Setenv("STORAGE_DRIVER", "mongo")
	t.Setenv("MONGODB_URI", "")
	t.Setenv("EVENT_BUS", "rabbitmq")
	t.Setenv("RABBITMQ_URL", "")
	missing := filepath.Join(t.TempDir(), "missing.env")

	t.Run("without DATABASE_URL", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		rootCmd.SetArgs([]string{"migrate", "--env-file", missing})

		err := rootCmd.Execute()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
		assert.NotContains(t, err.Error(), "MONGODB_URI")
		assert.NotContains(t, err.Error(), "RABBITMQ_URL")
	})

	t.Run("with DATABASE_URL", func(t *testing.T) {
		// Nothing listens on port 1, so the run gets past configuration and
		// fails to connect.
		t.Setenv("DATABASE_URL", "postgres://portfolio@127.0.0.1:1/portfolio?connect_timeout=1")
		t.Setenv("STORAGE_CONNECT_TIMEOUT", "2s")
		rootCmd.SetArgs([]string{"migrate", "--env-file", missing})

		err := rootCmd.Execute()
		require.Error(t, err)
		assert.NotContains(t, err.Error(), "MONGODB_URI")
		assert.NotContains(t, err.Error(), "is required")
		require.NotNil(t, cfg)
		assert.Equal(t, "mongo", cfg.Storage.Driver)
	})
}
