package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Storage drivers.
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config holds the complete application configuration, loadable from
// environment variables (KART_ prefix), flags, or YAML config files.
type Config struct {
	Addr     string `default:"0.0.0.0:8080" usage:"API server listen address"`
	Storage  StorageConfig
	Catalog  CatalogConfig
	Graceful GracefulConfig
}

// StorageConfig selects and configures the local store.
type StorageConfig struct {
	Driver      string `default:"postgres" usage:"Local store driver: postgres or memory"`
	DatabaseURL string `usage:"PostgreSQL connection URL (KART_STORAGE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
}

// CatalogConfig controls the remote catalog service and local seeding.
type CatalogConfig struct {
	BaseURL string        `usage:"Remote catalog base URL; empty serves the local store only" flag:"catalog-url"`
	Timeout time.Duration `default:"30s" usage:"Remote catalog call timeout"`

	RefreshLocalOnRemoteSuccess bool `default:"false" usage:"Write successful remote reads into the local store" flag:"refresh-local"`

	SeedDefaults bool   `default:"true" usage:"Seed the built-in products into an empty local catalog"`
	SeedFile     string `usage:"JSON seed file (optionally .gz) used instead of the built-in products"`

	Breaker BreakerConfig
}

// BreakerConfig controls the optional circuit breaker on remote calls.
type BreakerConfig struct {
	Enabled             bool          `default:"false" usage:"Guard remote catalog calls with a circuit breaker"`
	ConsecutiveFailures uint32        `default:"5" usage:"Consecutive failures that open the breaker"`
	OpenTimeout         time.Duration `default:"30s" usage:"How long the breaker stays open"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables and YAML config
// files, then validates it.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "KART",
		Files:     []string{"config.yaml", "/etc/kart/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case DriverPostgres:
		if c.Storage.DatabaseURL == "" {
			return errors.New("database URL is required: set KART_STORAGE_DATABASE_URL or DATABASE_URL")
		}
	case DriverMemory:
	default:
		return errors.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Catalog.Timeout <= 0 {
		return errors.New("catalog timeout must be positive")
	}
	return nil
}

// applyPlatformDefaults maps the DATABASE_URL and PORT variables set by
// hosting platforms onto the KART_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.Storage.DatabaseURL == "" {
		c.Storage.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
