package core

import (
	"fmt"
	"net/url"
	"strings"
)

type SearchConfig struct {
	DefaultLimit int `koanf:"default_limit" mapstructure:"default_limit"`
	MaxLimit     int `koanf:"max_limit" mapstructure:"max_limit"`
}

type Config struct {
	ServiceName       string       `koanf:"service_name" mapstructure:"service_name"`
	AdminNamespace    string       `koanf:"admin_namespace" mapstructure:"admin_namespace"`
	PersistentURLBase string       `koanf:"persistent_url_base" mapstructure:"persistent_url_base"`
	Search            SearchConfig `koanf:"search" mapstructure:"search"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:    "entitygraph",
		AdminNamespace: "admin",
		Search: SearchConfig{
			DefaultLimit: 20,
			MaxLimit:     1000,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.AdminNamespace) == "" {
		return fmt.Errorf("core: admin_namespace is required")
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit <= 0 {
		return fmt.Errorf("core: search limits must be positive")
	}
	if c.Search.DefaultLimit > c.Search.MaxLimit {
		return fmt.Errorf("core: search default_limit must be <= max_limit")
	}
	if base := strings.TrimSpace(c.PersistentURLBase); base != "" {
		parsed, err := url.Parse(base)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("core: persistent_url_base %q is invalid", base)
		}
	}
	return nil
}

// SearchLimit clamps a requested limit into the configured bounds.
func (c Config) SearchLimit(requested int) int {
	if requested <= 0 {
		return c.Search.DefaultLimit
	}
	if requested > c.Search.MaxLimit {
		return c.Search.MaxLimit
	}
	return requested
}
