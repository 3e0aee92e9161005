// Package config loads pulsectl settings from the environment.
package config

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

// EnvPrefix prefixes every variable, e.g. PULSE_DATA_DIR.
const EnvPrefix = "PULSE"

// Remote drivers.
const (
	DriverAuto      = "auto"
	DriverPostgres  = "postgres"
	DriverPostgREST = "postgrest"
	DriverNone      = "none"
)

// Config holds the configuration of the sync core.
type Config struct {
	// DataDir holds the SQLite file and the lock file.
	DataDir string `envconfig:"DATA_DIR" default:".pulse"`

	// RemoteDriver selects the remote store; "auto" derives it from the
	// connection settings present.
	RemoteDriver   string        `envconfig:"REMOTE_DRIVER" default:"auto"`
	PostgresDSN    string        `envconfig:"POSTGRES_DSN" default:""`
	PostgRESTURL   string        `envconfig:"POSTGREST_URL" default:""`
	PostgRESTKey   string        `envconfig:"POSTGREST_KEY" default:""`
	PostgRESTToken string        `envconfig:"POSTGREST_TOKEN" default:""`
	RemoteTimeout  time.Duration `envconfig:"REMOTE_TIMEOUT" default:"30s"`

	// AppVersion is written into backup documents.
	AppVersion string `envconfig:"APP_VERSION" default:"1.0.0"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	LogFile  string `envconfig:"LOG_FILE" default:""`
}

// ResolveDefaults derives RemoteDriver when set to "auto" or empty and
// validates the result against the connection settings.
func (c *Config) ResolveDefaults() error {
	if c.RemoteDriver == "" || c.RemoteDriver == DriverAuto {
		switch {
		case c.PostgresDSN != "":
			c.RemoteDriver = DriverPostgres
		case c.PostgRESTURL != "":
			c.RemoteDriver = DriverPostgREST
		default:
			c.RemoteDriver = DriverNone
		}
	}

	switch c.RemoteDriver {
	case DriverPostgres:
		if c.PostgresDSN == "" {
			return fmt.Errorf("REMOTE_DRIVER=postgres requires POSTGRES_DSN")
		}
	case DriverPostgREST:
		if c.PostgRESTURL == "" || c.PostgRESTKey == "" {
			return fmt.Errorf("REMOTE_DRIVER=postgrest requires POSTGREST_URL and POSTGREST_KEY")
		}
	case DriverNone:
	default:
		return fmt.Errorf("unsupported REMOTE_DRIVER: %s", c.RemoteDriver)
	}
	if c.RemoteTimeout <= 0 {
		return fmt.Errorf("REMOTE_TIMEOUT must be positive, got %s", c.RemoteTimeout)
	}
	return nil
}

// RemoteConfigured reports whether a remote store is available.
func (c *Config) RemoteConfigured() bool { return c.RemoteDriver != DriverNone }

// DatabasePath is the Local Store file inside DataDir.
func (c *Config) DatabasePath() string { return filepath.Join(c.DataDir, "pulse.db") }

// LockPath is the file that serialises pulsectl processes on DataDir.
func (c *Config) LockPath() string { return filepath.Join(c.DataDir, "pulse.lock") }

// New creates a Config by parsing environment variables. Files named in
// envFiles are loaded first without overriding variables already set; a
// missing file is ignored.
func New(log zerolog.Logger, envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			log.Debug().Err(err).Str("file", f).Msg("env file not loaded")
		}
	}

	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Debug().
		Str("data_dir", cfg.DataDir).
		Str("remote_driver", cfg.RemoteDriver).
		Bool("postgres_dsn_present", cfg.PostgresDSN != "").
		Str("postgrest_url", cfg.PostgRESTURL).
		Dur("remote_timeout", cfg.RemoteTimeout).
		Msg("Configuration loaded")

	return &cfg, nil
}

// NewForTesting returns a resolved config rooted at dataDir with no remote.
func NewForTesting(dataDir string) *Config {
	return &Config{
		DataDir:       dataDir,
		RemoteDriver:  DriverNone,
		RemoteTimeout: 5 * time.Second,
		AppVersion:    "test",
		LogLevel:      "debug",
	}
}
