package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoaderConfig() aconfig.Config {
	return aconfig.Config{
		EnvPrefix: "KART",
		SkipFlags: true,
		SkipFiles: true,
	}
}

func clearPlatformEnv(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "")
}

func TestLoadConfig_Defaults(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("KART_STORAGE_DRIVER", "memory")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, 30*time.Second, cfg.Catalog.Timeout)
	assert.False(t, cfg.Catalog.RefreshLocalOnRemoteSuccess)
	assert.True(t, cfg.Catalog.SeedDefaults)
	assert.False(t, cfg.Catalog.Breaker.Enabled)
	assert.Equal(t, uint32(5), cfg.Catalog.Breaker.ConsecutiveFailures)
	assert.Equal(t, 3*time.Second, cfg.Graceful.ReadinessDelay)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestLoadConfig_Env(t *testing.T) {
	clearPlatformEnv(t)
	t.Setenv("KART_STORAGE_DATABASE_URL", "postgres://kart@localhost/kart")
	t.Setenv("KART_CATALOG_BASE_URL", "http://catalog:8080")
	t.Setenv("KART_CATALOG_TIMEOUT", "5s")
	t.Setenv("KART_CATALOG_REFRESH_LOCAL_ON_REMOTE_SUCCESS", "true")
	t.Setenv("KART_CATALOG_BREAKER_ENABLED", "true")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, DriverPostgres, cfg.Storage.Driver)
	assert.Equal(t, "postgres://kart@localhost/kart", cfg.Storage.DatabaseURL)
	assert.Equal(t, "http://catalog:8080", cfg.Catalog.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.Catalog.Timeout)
	assert.True(t, cfg.Catalog.RefreshLocalOnRemoteSuccess)
	assert.True(t, cfg.Catalog.Breaker.Enabled)
}

func TestLoadConfig_PlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("PORT", "9000")

	cfg, err := loadConfig(testLoaderConfig())
	require.NoError(t, err)

	assert.Equal(t, "postgres://platform/db", cfg.Storage.DatabaseURL)
	assert.Equal(t, "0.0.0.0:9000", cfg.Addr)
}

func TestLoadConfig_YAML(t *testing.T) {
	clearPlatformEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
addr: 127.0.0.1:7000
storage:
  driver: memory
catalog:
  base_url: http://remote
  seed_defaults: false
`), 0o600))

	cfg, err := loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		SkipFlags: true,
		Files:     []string{path},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, DriverMemory, cfg.Storage.Driver)
	assert.Equal(t, "http://remote", cfg.Catalog.BaseURL)
	assert.False(t, cfg.Catalog.SeedDefaults)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{
			name:    "postgres without url",
			cfg:     Config{Storage: StorageConfig{Driver: DriverPostgres}, Catalog: CatalogConfig{Timeout: time.Second}},
			wantErr: "database URL is required",
		},
		{
			name:    "unknown driver",
			cfg:     Config{Storage: StorageConfig{Driver: "sqlite"}, Catalog: CatalogConfig{Timeout: time.Second}},
			wantErr: "unknown storage driver",
		},
		{
			name:    "zero timeout",
			cfg:     Config{Storage: StorageConfig{Driver: DriverMemory}},
			wantErr: "timeout must be positive",
		},
		{
			name: "memory",
			cfg:  Config{Storage: StorageConfig{Driver: DriverMemory}, Catalog: CatalogConfig{Timeout: time.Second}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
