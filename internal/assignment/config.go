package assignment

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds assignment tool settings.
type Config struct {
	Binary        string `toml:"binary"`
	ReferenceDir  string `toml:"reference_dir"`
	GridFile      string `toml:"grid_file"`
	PosteriorFile string `toml:"posterior_file"`
	Timeout       string `toml:"timeout"`
	Iterations    int    `toml:"iterations"`
	Thin          int    `toml:"thin"`
	Burn          int    `toml:"burn"`
	SpawnRetries  int    `toml:"spawn_retries"`
	SpawnBackoff  string `toml:"spawn_backoff"`
}

// Env maps config fields to environment variable names for override injection.
type Env struct {
	Binary        string
	ReferenceDir  string
	GridFile      string
	PosteriorFile string
	Timeout       string
	Iterations    string
	Thin          string
	Burn          string
	SpawnRetries  string
	SpawnBackoff  string
}

// TimeoutDuration returns Timeout as a time.Duration.
func (c *Config) TimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(c.Timeout)
	return d
}

// SpawnBackoffDuration returns SpawnBackoff as a time.Duration.
func (c *Config) SpawnBackoffDuration() time.Duration {
	d, _ := time.ParseDuration(c.SpawnBackoff)
	return d
}

// Finalize applies defaults, environment variable overrides, and validation.
func (c *Config) Finalize(env *Env) error {
	c.loadDefaults()
	if env != nil {
		c.loadEnv(env)
	}
	return c.validate()
}

// Merge overwrites non-zero fields from overlay.
func (c *Config) Merge(overlay *Config) {
	if overlay.Binary != "" {
		c.Binary = overlay.Binary
	}
	if overlay.ReferenceDir != "" {
		c.ReferenceDir = overlay.ReferenceDir
	}
	if overlay.GridFile != "" {
		c.GridFile = overlay.GridFile
	}
	if overlay.PosteriorFile != "" {
		c.PosteriorFile = overlay.PosteriorFile
	}
	if overlay.Timeout != "" {
		c.Timeout = overlay.Timeout
	}
	if overlay.Iterations != 0 {
		c.Iterations = overlay.Iterations
	}
	if overlay.Thin != 0 {
		c.Thin = overlay.Thin
	}
	if overlay.Burn != 0 {
		c.Burn = overlay.Burn
	}
	if overlay.SpawnRetries != 0 {
		c.SpawnRetries = overlay.SpawnRetries
	}
	if overlay.SpawnBackoff != "" {
		c.SpawnBackoff = overlay.SpawnBackoff
	}
}

func (c *Config) loadDefaults() {
	if c.Binary == "" {
		c.Binary = "SCAT3"
	}
	if c.ReferenceDir == "" {
		c.ReferenceDir = "reference"
	}
	if c.GridFile == "" {
		c.GridFile = "grid.txt"
	}
	if c.PosteriorFile == "" {
		c.PosteriorFile = "LegadoSP"
	}
	if c.Timeout == "" {
		c.Timeout = "30m"
	}
	if c.Iterations == 0 {
		c.Iterations = 100
	}
	if c.Thin == 0 {
		c.Thin = 100
	}
	if c.Burn == 0 {
		c.Burn = 100
	}
	if c.SpawnRetries == 0 {
		c.SpawnRetries = 3
	}
	if c.SpawnBackoff == "" {
		c.SpawnBackoff = "200ms"
	}
}

func (c *Config) loadEnv(env *Env) {
	str := func(name string, dst *string) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}
	num := func(name string, dst *int) {
		if name == "" {
			return
		}
		if v := os.Getenv(name); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}

	str(env.Binary, &c.Binary)
	str(env.ReferenceDir, &c.ReferenceDir)
	str(env.GridFile, &c.GridFile)
	str(env.PosteriorFile, &c.PosteriorFile)
	str(env.Timeout, &c.Timeout)
	num(env.Iterations, &c.Iterations)
	num(env.Thin, &c.Thin)
	num(env.Burn, &c.Burn)
	num(env.SpawnRetries, &c.SpawnRetries)
	str(env.SpawnBackoff, &c.SpawnBackoff)
}

func (c *Config) validate() error {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return fmt.Errorf("invalid timeout: %w", err)
	}
	if d <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if _, err := time.ParseDuration(c.SpawnBackoff); err != nil {
		return fmt.Errorf("invalid spawn_backoff: %w", err)
	}
	if c.Iterations <= 0 || c.Thin <= 0 || c.Burn < 0 {
		return fmt.Errorf("iterations and thin must be positive, burn non-negative")
	}
	if c.SpawnRetries < 0 {
		return fmt.Errorf("spawn_retries must not be negative")
	}
	return nil
}
