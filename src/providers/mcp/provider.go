package mcp

import (
	"errors"
	"fmt"
	"net/url"

	. "github.com/mcp-chatbot/mcp-manager/src/providers/base"
	"github.com/mcp-chatbot/mcp-manager/src/json"
)

// ErrInvalidConfig is returned for server configurations that match neither
// the stdio nor the remote shape, or that fail validation.
var ErrInvalidConfig = errors.New("invalid server config")

// ServerConfig is either a *StdioServerConfig or a *RemoteServerConfig.
// The two are told apart by the fields present on the wire, not by a
// discriminator.
type ServerConfig interface {
	Provider
	Validate() error
}

// StdioServerConfig describes a server started as a local process.
type StdioServerConfig struct {
	Command    string            `json:"command" yaml:"command" toml:"command"`
	Args       []string          `json:"args,omitempty" yaml:"args,omitempty" toml:"args,omitempty"`
	Env        map[string]string `json:"env,omitempty" yaml:"env,omitempty" toml:"env,omitempty"`
	WorkingDir string            `json:"cwd,omitempty" yaml:"cwd,omitempty" toml:"cwd,omitempty"`
}

// NewStdioServerConfig constructs a StdioServerConfig for command.
func NewStdioServerConfig(command string, args ...string) *StdioServerConfig {
	return &StdioServerConfig{
		Command: command,
		Args:    args,
		Env:     make(map[string]string),
	}
}

// Type returns the provider type.
func (c *StdioServerConfig) Type() ProviderType { return ProviderStdio }

// WithEnv sets an environment override for the server process.
func (c *StdioServerConfig) WithEnv(key, value string) *StdioServerConfig {
	if c.Env == nil {
		c.Env = make(map[string]string)
	}
	c.Env[key] = value
	return c
}

// WithWorkingDir sets the working directory for the server process.
func (c *StdioServerConfig) WithWorkingDir(dir string) *StdioServerConfig {
	c.WorkingDir = dir
	return c
}

// Validate ensures the configuration can be used to spawn a process.
func (c *StdioServerConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("%w: command cannot be empty", ErrInvalidConfig)
	}
	return nil
}

// RemoteServerConfig describes a server reachable over HTTP.
type RemoteServerConfig struct {
	URL     string            `json:"url" yaml:"url" toml:"url"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty" toml:"headers,omitempty"`
}

// NewRemoteServerConfig constructs a RemoteServerConfig for rawURL.
func NewRemoteServerConfig(rawURL string) *RemoteServerConfig {
	return &RemoteServerConfig{
		URL:     rawURL,
		Headers: make(map[string]string),
	}
}

// Type returns the provider type.
func (c *RemoteServerConfig) Type() ProviderType { return ProviderRemote }

// WithHeader sets a request header sent on every request to the server.
func (c *RemoteServerConfig) WithHeader(key, value string) *RemoteServerConfig {
	if c.Headers == nil {
		c.Headers = make(map[string]string)
	}
	c.Headers[key] = value
	return c
}

// Validate ensures the URL is an absolute http(s) URL.
func (c *RemoteServerConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("%w: url cannot be empty", ErrInvalidConfig)
	}
	u, err := url.Parse(c.URL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: unsupported url scheme %q", ErrInvalidConfig, u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url has no host", ErrInvalidConfig)
	}
	return nil
}

// IsStdio reports whether cfg is a stdio configuration.
func IsStdio(cfg ServerConfig) bool {
	_, ok := cfg.(*StdioServerConfig)
	return ok
}

// IsRemote reports whether cfg is a remote configuration.
func IsRemote(cfg ServerConfig) bool {
	_, ok := cfg.(*RemoteServerConfig)
	return ok
}

// UnmarshalServerConfig decodes a wire configuration. A document with a
// "command" field is a stdio config, otherwise one with a "url" field is a
// remote config. Null env values are dropped.
func UnmarshalServerConfig(data []byte) (ServerConfig, error) {
	var probe struct {
		Command *string            `json:"command"`
		Args    []string           `json:"args"`
		Env     map[string]*string `json:"env"`
		Cwd     string             `json:"cwd"`
		URL     *string            `json:"url"`
		Headers map[string]string  `json:"headers"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	var cfg ServerConfig
	switch {
	case probe.Command != nil:
		env := make(map[string]string, len(probe.Env))
		for k, v := range probe.Env {
			if v != nil {
				env[k] = *v
			}
		}
		cfg = &StdioServerConfig{
			Command:    *probe.Command,
			Args:       probe.Args,
			Env:        env,
			WorkingDir: probe.Cwd,
		}
	case probe.URL != nil:
		cfg = &RemoteServerConfig{URL: *probe.URL, Headers: probe.Headers}
	default:
		return nil, fmt.Errorf("%w: expected a command or a url", ErrInvalidConfig)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ServerConfigFromMap decodes a loosely typed document, as produced by yaml
// or toml decoders, into a ServerConfig.
func ServerConfigFromMap(m map[string]any) (ServerConfig, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return UnmarshalServerConfig(data)
}

// MarshalServerConfig encodes cfg in its wire shape.
func MarshalServerConfig(cfg ServerConfig) ([]byte, error) {
	switch c := cfg.(type) {
	case *StdioServerConfig:
		return json.Marshal(c)
	case *RemoteServerConfig:
		return json.Marshal(c)
	default:
		return nil, fmt.Errorf("%w: unsupported config type %T", ErrInvalidConfig, cfg)
	}
}

// ServerConfigToMap is the inverse of ServerConfigFromMap.
func ServerConfigToMap(cfg ServerConfig) (map[string]any, error) {
	data, err := MarshalServerConfig(cfg)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
