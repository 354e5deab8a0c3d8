package proxy

import (
	"fmt"
	"os"
	"time"

	"github.com/randalmurphal/fedkit/client"
)

// Config holds configuration for creating a client proxy.
// Common fields apply to all transports; use Options for transport-specific settings.
type Config struct {
	// Transport is the name of the transport to use.
	// Required. Values: "inmemory", "rpc"
	Transport string `json:"transport" yaml:"transport" toml:"transport"`

	// CID identifies the client. Required and immutable once the proxy exists.
	// Uniqueness among registered proxies is enforced by clientmanager.
	CID string `json:"cid" yaml:"cid" toml:"cid"`

	// Address locates a remote client (e.g., "ws://10.0.0.7:8089/fedkit").
	// Required for "rpc", ignored by "inmemory".
	Address string `json:"address,omitempty" yaml:"address,omitempty" toml:"address,omitempty"`

	// Timeout bounds each call to a remote client. 0 means no limit.
	// The in-memory transport has no timeout policy and ignores it.
	Timeout time.Duration `json:"timeout,omitempty" yaml:"timeout,omitempty" toml:"timeout,omitempty"`

	// Client is the in-process client wrapped by the "inmemory" transport.
	Client client.Client `json:"-" yaml:"-" toml:"-"`

	// Options holds transport-specific configuration.
	//
	// RPC:
	//   - "dial_timeout": string duration for the WebSocket handshake
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty" toml:"options,omitempty"`
}

// DefaultConfig returns a Config with sensible defaults.
// Transport and CID must still be set before use.
func DefaultConfig() Config {
	return Config{
		Timeout: 10 * time.Minute,
	}
}

// LoadFromEnv populates config fields from environment variables.
// Environment variables use the FEDKIT_ prefix and take precedence over existing values.
//
// Supported variables:
//   - FEDKIT_TRANSPORT: Transport name
//   - FEDKIT_CID: Client identifier
//   - FEDKIT_ADDRESS: Remote client address
//   - FEDKIT_TIMEOUT: Call timeout (e.g., "30s")
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("FEDKIT_TRANSPORT"); v != "" {
		c.Transport = v
	}
	if v := os.Getenv("FEDKIT_CID"); v != "" {
		c.CID = v
	}
	if v := os.Getenv("FEDKIT_ADDRESS"); v != "" {
		c.Address = v
	}
	if v := os.Getenv("FEDKIT_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Timeout = d
		}
	}
}

// FromEnv creates a Config from environment variables with defaults.
func FromEnv() Config {
	cfg := DefaultConfig()
	cfg.LoadFromEnv()
	return cfg
}

// Validate checks the fields shared by all transports.
func (c *Config) Validate() error {
	if c.Transport == "" {
		return fmt.Errorf("%w: transport is required", ErrInvalidConfig)
	}
	if c.CID == "" {
		return fmt.Errorf("%w: cid is required", ErrInvalidConfig)
	}
	if c.Timeout < 0 {
		return fmt.Errorf("%w: timeout must be >= 0, got %v", ErrInvalidConfig, c.Timeout)
	}
	return nil
}

// WithTransport returns a copy of the config with the specified transport.
func (c Config) WithTransport(transport string) Config {
	c.Transport = transport
	return c
}

// WithCID returns a copy of the config with the specified client identifier.
func (c Config) WithCID(cid string) Config {
	c.CID = cid
	return c
}

// WithClient returns a copy of the config wrapping the given in-process client.
func (c Config) WithClient(cl client.Client) Config {
	c.Client = cl
	return c
}

// WithAddress returns a copy of the config with the specified remote address.
func (c Config) WithAddress(addr string) Config {
	c.Address = addr
	return c
}

// WithOption returns a copy of the config with the specified option set.
func (c Config) WithOption(key string, value any) Config {
	opts := make(map[string]any, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts[key] = value
	c.Options = opts
	return c
}

// GetDurationOption retrieves a duration option given either as a
// time.Duration or a string such as "5s". Returns defaultVal if not set
// or unparseable.
func (c Config) GetDurationOption(key string, defaultVal time.Duration) time.Duration {
	switch v := c.Options[key].(type) {
	case time.Duration:
		return v
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
