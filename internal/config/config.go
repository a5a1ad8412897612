// Package config loads the geoassign service configuration from TOML files
// and GEOASSIGN_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/JaimeStill/geoassign/internal/assignment"
	"github.com/JaimeStill/geoassign/pkg/database"
	"github.com/JaimeStill/geoassign/pkg/storage"
)

const (
	BaseConfigFile       = "config.toml"
	OverlayConfigPattern = "config.%s.toml"

	EnvGeoassignEnv             = "GEOASSIGN_ENV"
	EnvGeoassignConfigDir       = "GEOASSIGN_CONFIG_DIR"
	EnvGeoassignShutdownTimeout = "GEOASSIGN_SHUTDOWN_TIMEOUT"
	EnvGeoassignVersion         = "GEOASSIGN_VERSION"
)

var databaseEnv = &database.Env{
	Host:            "GEOASSIGN_DB_HOST",
	Port:            "GEOASSIGN_DB_PORT",
	Name:            "GEOASSIGN_DB_NAME",
	User:            "GEOASSIGN_DB_USER",
	Password:        "GEOASSIGN_DB_PASSWORD",
	SSLMode:         "GEOASSIGN_DB_SSL_MODE",
	MaxOpenConns:    "GEOASSIGN_DB_MAX_OPEN_CONNS",
	MaxIdleConns:    "GEOASSIGN_DB_MAX_IDLE_CONNS",
	ConnMaxLifetime: "GEOASSIGN_DB_CONN_MAX_LIFETIME",
	ConnTimeout:     "GEOASSIGN_DB_CONN_TIMEOUT",
	ConnRetries:     "GEOASSIGN_DB_CONN_RETRIES",
}

var storageEnv = &storage.Env{
	ContainerName:    "GEOASSIGN_STORAGE_CONTAINER_NAME",
	ConnectionString: "GEOASSIGN_STORAGE_CONNECTION_STRING",
	ServiceURL:       "GEOASSIGN_STORAGE_SERVICE_URL",
	MaxListSize:      "GEOASSIGN_STORAGE_MAX_LIST_SIZE",
}

var assignmentEnv = &assignment.Env{
	Binary:        "GEOASSIGN_SCAT_BINARY",
	ReferenceDir:  "GEOASSIGN_SCAT_REFERENCE_DIR",
	GridFile:      "GEOASSIGN_SCAT_GRID_FILE",
	PosteriorFile: "GEOASSIGN_SCAT_POSTERIOR_FILE",
	Timeout:       "GEOASSIGN_SCAT_TIMEOUT",
	Iterations:    "GEOASSIGN_SCAT_ITERATIONS",
	Thin:          "GEOASSIGN_SCAT_THIN",
	Burn:          "GEOASSIGN_SCAT_BURN",
	SpawnRetries:  "GEOASSIGN_SCAT_SPAWN_RETRIES",
	SpawnBackoff:  "GEOASSIGN_SCAT_SPAWN_BACKOFF",
}

// Config is the root configuration for the geoassign service.
type Config struct {
	Server          ServerConfig      `toml:"server"`
	Database        database.Config   `toml:"database"`
	Storage         storage.Config    `toml:"storage"`
	API             APIConfig         `toml:"api"`
	Assignment      assignment.Config `toml:"assignment"`
	Region          RegionConfig      `toml:"region"`
	Inference       InferenceConfig   `toml:"inference"`
	ShutdownTimeout string            `toml:"shutdown_timeout"`
	Version         string            `toml:"version"`
}

// Env returns the GEOASSIGN_ENV value, defaulting to "local".
func (c *Config) Env() string {
	if env := os.Getenv(EnvGeoassignEnv); env != "" {
		return env
	}
	return "local"
}

// ShutdownTimeoutDuration returns ShutdownTimeout as a time.Duration.
func (c *Config) ShutdownTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.ShutdownTimeout)
	return d
}

// Load reads config.toml from GEOASSIGN_CONFIG_DIR (default: the working
// directory) if present, applies the config.<env>.toml overlay, and
// finalizes every section. Without any file, defaults and environment
// variables provide all configuration.
func Load() (*Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	if err := cfg.Finalize(); err != nil {
		return nil, fmt.Errorf("finalize config: %w", err)
	}

	return cfg, nil
}

// LoadDatabase reads the same files as Load but finalizes only the database
// section, for tools that need nothing else.
func LoadDatabase() (*database.Config, error) {
	cfg, err := read()
	if err != nil {
		return nil, err
	}

	if err := cfg.Database.Finalize(databaseEnv); err != nil {
		return nil, fmt.Errorf("finalize database config: %w", err)
	}

	return &cfg.Database, nil
}

func read() (*Config, error) {
	dir := os.Getenv(EnvGeoassignConfigDir)
	cfg := &Config{}

	base := filepath.Join(dir, BaseConfigFile)
	if _, err := os.Stat(base); err == nil {
		loaded, err := load(base)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if path := overlayPath(dir); path != "" {
		overlay, err := load(path)
		if err != nil {
			return nil, fmt.Errorf("load overlay %s: %w", path, err)
		}
		cfg.Merge(overlay)
	}

	return cfg, nil
}

// Merge overwrites non-zero fields from overlay across all sections.
func (c *Config) Merge(overlay *Config) {
	if overlay.ShutdownTimeout != "" {
		c.ShutdownTimeout = overlay.ShutdownTimeout
	}
	if overlay.Version != "" {
		c.Version = overlay.Version
	}
	c.Server.Merge(&overlay.Server)
	c.Database.Merge(&overlay.Database)
	c.Storage.Merge(&overlay.Storage)
	c.API.Merge(&overlay.API)
	c.Assignment.Merge(&overlay.Assignment)
	c.Region.Merge(&overlay.Region)
	c.Inference.Merge(&overlay.Inference)
}

// Finalize applies defaults, environment overrides, and validation to the
// root and every section.
func (c *Config) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}

	sections := []struct {
		name     string
		finalize func() error
	}{
		{"server", c.Server.Finalize},
		{"database", func() error { return c.Database.Finalize(databaseEnv) }},
		{"storage", func() error { return c.Storage.Finalize(storageEnv) }},
		{"api", c.API.Finalize},
		{"assignment", func() error { return c.Assignment.Finalize(assignmentEnv) }},
		{"region", c.Region.Finalize},
		{"inference", c.Inference.Finalize},
	}
	for _, s := range sections {
		if err := s.finalize(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

func (c *Config) loadDefaults() {
	if c.ShutdownTimeout == "" {
		c.ShutdownTimeout = "30s"
	}
	if c.Version == "" {
		c.Version = "0.1.0"
	}
}

func (c *Config) loadEnv() {
	if v := os.Getenv(EnvGeoassignShutdownTimeout); v != "" {
		c.ShutdownTimeout = v
	}
	if v := os.Getenv(EnvGeoassignVersion); v != "" {
		c.Version = v
	}
}

func (c *Config) validate() error {
	if _, err := time.ParseDuration(c.ShutdownTimeout); err != nil {
		return fmt.Errorf("invalid shutdown_timeout: %w", err)
	}
	return nil
}

func load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	return &cfg, nil
}

func overlayPath(dir string) string {
	env := os.Getenv(EnvGeoassignEnv)
	if env == "" {
		return ""
	}
	path := filepath.Join(dir, fmt.Sprintf(OverlayConfigPattern, env))
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}
