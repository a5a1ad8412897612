package config

import (
	"fmt"

	"github.com/JaimeStill/geoassign/pkg/formatting"
	"github.com/JaimeStill/geoassign/pkg/middleware"
	"github.com/JaimeStill/geoassign/pkg/pagination"
)

const (
	EnvAPIBasePath      = "GEOASSIGN_API_BASE_PATH"
	EnvAPIMaxUploadSize = "GEOASSIGN_API_MAX_UPLOAD_SIZE"
)

var corsEnv = &middleware.CORSEnv{
	Enabled:          "GEOASSIGN_CORS_ENABLED",
	Origins:          "GEOASSIGN_CORS_ORIGINS",
	AllowedMethods:   "GEOASSIGN_CORS_ALLOWED_METHODS",
	AllowedHeaders:   "GEOASSIGN_CORS_ALLOWED_HEADERS",
	ExposedHeaders:   "GEOASSIGN_CORS_EXPOSED_HEADERS",
	AllowCredentials: "GEOASSIGN_CORS_ALLOW_CREDENTIALS",
	MaxAge:           "GEOASSIGN_CORS_MAX_AGE",
}

var paginationEnv = &pagination.ConfigEnv{
	DefaultPageSize: "GEOASSIGN_PAGINATION_DEFAULT_PAGE_SIZE",
	MaxPageSize:     "GEOASSIGN_PAGINATION_MAX_PAGE_SIZE",
}

// APIConfig holds API routing, upload limits, CORS, and pagination settings.
type APIConfig struct {
	BasePath      string                `toml:"base_path"`
	MaxUploadSize string                `toml:"max_upload_size"`
	CORS          middleware.CORSConfig `toml:"cors"`
	Pagination    pagination.Config     `toml:"pagination"`

	maxUploadBytes int64
}

// MaxUploadSizeBytes returns the parsed upload limit. Valid after Finalize.
func (c *APIConfig) MaxUploadSizeBytes() int64 {
	return c.maxUploadBytes
}

// Finalize applies defaults, environment variable overrides, and validation
// for the API config and its nested CORS and pagination configs.
func (c *APIConfig) Finalize() error {
	c.loadDefaults()
	c.loadEnv()

	if err := c.validate(); err != nil {
		return err
	}
	if err := c.CORS.Finalize(corsEnv); err != nil {
		return fmt.Errorf("cors: %w", err)
	}
	if err := c.Pagination.Finalize(paginationEnv); err != nil {
		return fmt.Errorf("pagination: %w", err)
	}
	return nil
}

// Merge overwrites non-zero fields from overlay across nested configs.
func (c *APIConfig) Merge(overlay *APIConfig) {
	mergeString(&c.BasePath, overlay.BasePath)
	mergeString(&c.MaxUploadSize, overlay.MaxUploadSize)
	c.CORS.Merge(&overlay.CORS)
	c.Pagination.Merge(&overlay.Pagination)
}

func (c *APIConfig) loadDefaults() {
	if c.BasePath == "" {
		c.BasePath = "/api"
	}
	if c.MaxUploadSize == "" {
		c.MaxUploadSize = "256MB"
	}
}

func (c *APIConfig) loadEnv() {
	envString(EnvAPIBasePath, &c.BasePath)
	envString(EnvAPIMaxUploadSize, &c.MaxUploadSize)
}

func (c *APIConfig) validate() error {
	size, err := formatting.ParseBytes(c.MaxUploadSize)
	if err != nil {
		return fmt.Errorf("invalid max_upload_size: %w", err)
	}
	if size <= 0 {
		return fmt.Errorf("invalid max_upload_size: must be positive")
	}
	c.maxUploadBytes = size
	return nil
}
