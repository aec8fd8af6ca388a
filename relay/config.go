package relay

import (
	"github.com/hazyhaar/overlayrelay/relay/internal/config"
)

// Config is the top-level overlayrelay configuration. Re-exported from internal.
type Config = config.Config

// BrowserConfig controls Chrome.
type BrowserConfig = config.BrowserConfig

// PageConfig locates the overlay.
type PageConfig = config.PageConfig

// ReadyConfig controls load-ready detection.
type ReadyConfig = config.ReadyConfig

// EndpointConfig defines the control server.
type EndpointConfig = config.EndpointConfig

// BindingConfig maps an overlay label to a payload value.
type BindingConfig = config.BindingConfig

// StatusConfig enables the HTTP status surface.
type StatusConfig = config.StatusConfig

// LoadConfigFile reads a YAML configuration file.
func LoadConfigFile(path string) (*Config, error) {
	return config.LoadFile(path)
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return config.Default()
}
