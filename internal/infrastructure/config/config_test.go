package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Database:  DatabaseConfig{Host: "localhost", Port: 5432},
		FileStore: FileStoreConfig{Backend: "local", LocalRoot: "./data"},
		Currency:  CurrencyConfig{BaseCurrency: "CNY", LookbackDays: 7},
		Ingest:    IngestConfig{RowWorkers: 4},
		Refresh:   RefreshConfig{ScheduleHour: 2, ScheduleMinute: 0},
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Run("accepts a well-formed config", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	t.Run("requires a database host", func(t *testing.T) {
		cfg := validConfig()
		cfg.Database.Host = ""
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects a malformed base currency", func(t *testing.T) {
		cfg := validConfig()
		cfg.Currency.BaseCurrency = "YUAN"
		assert.Error(t, cfg.Validate())
	})

	t.Run("rejects negative lookback", func(t *testing.T) {
		cfg := validConfig()
		cfg.Currency.LookbackDays = -1
		assert.Error(t, cfg.Validate())
	})

	t.Run("requires at least one row worker", func(t *testing.T) {
		cfg := validConfig()
		cfg.Ingest.RowWorkers = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("s3 backend needs a bucket", func(t *testing.T) {
		cfg := validConfig()
		cfg.FileStore = FileStoreConfig{Backend: "s3"}
		assert.Error(t, cfg.Validate())

		cfg.FileStore.Bucket = "exports"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("unknown filestore backend", func(t *testing.T) {
		cfg := validConfig()
		cfg.FileStore.Backend = "ftp"
		assert.Error(t, cfg.Validate())
	})

	t.Run("refresh schedule bounds", func(t *testing.T) {
		cfg := validConfig()
		cfg.Refresh.ScheduleHour = 24
		assert.Error(t, cfg.Validate())

		cfg = validConfig()
		cfg.Refresh.ScheduleMinute = 60
		assert.Error(t, cfg.Validate())
	})
}

func TestLoad_Defaults(t *testing.T) {
	// No config file in the test working directory, so Load sees only
	// defaults and any INGEST_ environment overrides.
	t.Setenv("INGEST_DATABASE_HOST", "db.internal")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "datahub-ingest", cfg.App.Name)
	assert.Equal(t, "CNY", cfg.Currency.BaseCurrency)
	assert.Equal(t, 7, cfg.Currency.LookbackDays)
	assert.Equal(t, 4, cfg.Ingest.RowWorkers)
	assert.Equal(t, 30*time.Second, cfg.Ingest.PollInterval)
	assert.Equal(t, 50, cfg.Ingest.PollBatch)
	assert.Equal(t, "local", cfg.FileStore.Backend)
	assert.True(t, cfg.Refresh.ScheduleEnabled)
	assert.Equal(t, 30*time.Minute, cfg.Refresh.ViewTimeout)
	assert.False(t, cfg.IsProduction())
}
