// CLAUDE:SUMMARY Defines overlayrelay config structs, parses YAML files, applies defaults and validates.
// Package config handles overlayrelay configuration from YAML files.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hazyhaar/overlayrelay/relay/message"
)

// Compiled-in defaults.
const (
	DefaultURL          = "https://viz.flowics.com/public/ae704a85a5d4cad3798434fa4e0a4374/669abdc9681ab419a091ee46/live"
	DefaultRootSelector = "#root-container"
	DefaultEndpoint     = "http://localhost:3000/data-providers/ap/current-state"
	DefaultMaxPolls     = 240
)

// Config is the top-level overlayrelay configuration.
type Config struct {
	Browser  BrowserConfig   `yaml:"browser"`
	Page     PageConfig      `yaml:"page"`
	Ready    ReadyConfig     `yaml:"ready"`
	Endpoint EndpointConfig  `yaml:"endpoint"`
	Payload  PayloadConfig   `yaml:"payload"`
	Bindings []BindingConfig `yaml:"bindings"`
	Status   StatusConfig    `yaml:"status"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	Remote   string `yaml:"remote"`
	Headless bool   `yaml:"headless"`
	Stealth  bool   `yaml:"stealth"`
	Bin      string `yaml:"bin"`
}

// PageConfig locates the overlay.
type PageConfig struct {
	URL            string `yaml:"url"`
	RootSelector   string `yaml:"root_selector"`
	TickerSelector string `yaml:"ticker_selector"`
}

// ReadyConfig controls load-ready detection.
type ReadyConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"` // negative = poll forever
	Debounce     time.Duration `yaml:"debounce"`
}

// EndpointConfig defines the control server.
type EndpointConfig struct {
	Transport string        `yaml:"transport"` // websocket | http | stdout
	URL       string        `yaml:"url"`
	Retries   int           `yaml:"retries"`
	Backoff   time.Duration `yaml:"backoff"`
}

// PayloadConfig sets the default payload format of bindings.
type PayloadConfig struct {
	Format string `yaml:"format"` // state | legacy
}

// BindingConfig maps a label shown on the overlay to the value sent when
// its container is clicked.
type BindingConfig struct {
	Label  string `yaml:"label"`
	Value  string `yaml:"value"`
	Format string `yaml:"format"` // overrides payload.format
}

// StatusConfig enables the HTTP status surface. Empty Addr disables it.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the configuration used without a file.
func Default() *Config {
	cfg := &Config{
		Payload: PayloadConfig{Format: string(message.FormatLegacy)},
		Bindings: []BindingConfig{
			{Label: "State 1", Value: "1"},
			{Label: "State 2", Value: "2"},
			{Label: "State 3", Value: "3"},
		},
	}
	cfg.applyDefaults()
	return cfg
}

// LoadFile reads a YAML configuration file, applies defaults and
// validates the result.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML configuration.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Page.URL == "" {
		c.Page.URL = DefaultURL
	}
	if c.Page.RootSelector == "" {
		c.Page.RootSelector = DefaultRootSelector
	}
	if c.Ready.PollInterval <= 0 {
		c.Ready.PollInterval = 500 * time.Millisecond
	}
	if c.Ready.MaxPolls == 0 {
		c.Ready.MaxPolls = DefaultMaxPolls
	}
	if c.Ready.Debounce <= 0 {
		c.Ready.Debounce = time.Second
	}
	if c.Endpoint.Transport == "" {
		c.Endpoint.Transport = "websocket"
	}
	if c.Endpoint.URL == "" {
		c.Endpoint.URL = DefaultEndpoint
	}
	if c.Endpoint.Backoff <= 0 {
		c.Endpoint.Backoff = 500 * time.Millisecond
	}
	if c.Payload.Format == "" {
		c.Payload.Format = string(message.FormatState)
	}
	for i := range c.Bindings {
		if c.Bindings[i].Format == "" {
			c.Bindings[i].Format = c.Payload.Format
		}
	}
}

// BindingPayload builds the payload of binding i.
func (c *Config) BindingPayload(i int) (any, error) {
	b := c.Bindings[i]
	return message.Build(message.Format(b.Format), b.Value)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var errs []error
	if _, err := url.Parse(c.Page.URL); err != nil {
		errs = append(errs, fmt.Errorf("page.url: %w", err))
	}
	switch c.Endpoint.Transport {
	case "websocket", "http", "stdout":
	default:
		errs = append(errs, fmt.Errorf("endpoint.transport: unknown %q", c.Endpoint.Transport))
	}
	if c.Endpoint.Retries < 0 {
		errs = append(errs, fmt.Errorf("endpoint.retries: must not be negative"))
	}
	if len(c.Bindings) == 0 {
		errs = append(errs, errors.New("bindings: none configured"))
	}
	seen := make(map[string]bool)
	for i, b := range c.Bindings {
		if b.Label == "" {
			errs = append(errs, fmt.Errorf("bindings[%d]: empty label", i))
		}
		if seen[b.Label] {
			errs = append(errs, fmt.Errorf("bindings[%d]: duplicate label %q", i, b.Label))
		}
		seen[b.Label] = true
		if _, err := c.BindingPayload(i); err != nil {
			errs = append(errs, fmt.Errorf("bindings[%d]: %w", i, err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}
