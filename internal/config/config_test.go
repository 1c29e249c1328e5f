package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, DriverMemory, cfg.Catalog.Driver)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.False(t, cfg.Tracking.VerifyProject)
	assert.False(t, cfg.NeedsPostgres())
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("DYNAQ_ENV", "production")
	t.Setenv("DYNAQ_STORAGE_DRIVER", "badger")
	t.Setenv("DYNAQ_BADGER_PATH", "/var/lib/dynaq")
	t.Setenv("DYNAQ_CATALOG_DRIVER", "postgres")
	t.Setenv("DYNAQ_DB_PORT", "6543")
	t.Setenv("DYNAQ_SHUTDOWN_TIMEOUT", "5s")
	t.Setenv("DYNAQ_VERIFY_PROJECT", "true")
	t.Setenv("DYNAQ_TRUSTED_PROXIES", "10.0.0.0/8, 192.168.0.0/16,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "/var/lib/dynaq", cfg.Storage.BadgerPath)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.True(t, cfg.Tracking.VerifyProject)
	assert.Equal(t, []string{"10.0.0.0/8", "192.168.0.0/16"}, cfg.Tracking.TrustedProxies)
	assert.True(t, cfg.NeedsPostgres())
}

func TestLoadIgnoresMalformedValues(t *testing.T) {
	t.Setenv("DYNAQ_DB_PORT", "not-a-number")
	t.Setenv("DYNAQ_METRICS_ENABLED", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown storage", func(c *Config) { c.Storage.Driver = "dynamo" }, `unknown storage driver "dynamo"`},
		{"badger without path", func(c *Config) {
			c.Storage.Driver = DriverBadger
			c.Storage.BadgerPath = ""
		}, "DYNAQ_BADGER_PATH is required"},
		{"unknown catalog", func(c *Config) { c.Catalog.Driver = "redis" }, `unknown catalog driver "redis"`},
		{"geo without path", func(c *Config) { c.Geo.Enabled = true }, "DYNAQ_GEO_DB_PATH is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Storage: StorageConfig{Driver: DriverMemory, BadgerPath: "x"},
				Catalog: CatalogConfig{Driver: DriverMemory},
			}
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestDatabaseDSN(t *testing.T) {
	d := DatabaseConfig{User: "u", Password: "p", Host: "db", Port: 5432, DBName: "dynaq", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p@db:5432/dynaq?sslmode=disable", d.DSN())
}
