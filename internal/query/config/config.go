package config

import (
	"k-stock-insight/pkg/config"
)

// Query holds the paging limits of the read API.
type Query struct {
	DefaultLimit int `mapstructure:"default_limit"`
	MaxLimit     int `mapstructure:"max_limit"`
}

// Config holds the full configuration for the query service.
type Config struct {
	App      config.App      `mapstructure:"app"`
	Logger   config.Logger   `mapstructure:"logger"`
	Database config.Database `mapstructure:"database"`
	API      config.API      `mapstructure:"api"`
	Query    Query           `mapstructure:"query"`
}

var defaults = map[string]interface{}{
	"app.name":            "k-stock-query",
	"logger.level":        "info",
	"logger.encoding":     "json",
	"api.port":            8000,
	"query.default_limit": 100,
	"query.max_limit":     1000,
}

// Load loads the query service configuration from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.Load(path, &cfg, defaults); err != nil {
		return nil, err
	}
	return &cfg, nil
}
