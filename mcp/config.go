package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Transport kinds accepted in ServerConfig.Transport.
const (
	TransportStdio          = "stdio"
	TransportSSE            = "sse"
	TransportStreamableHTTP = "streamable_http"
)

// Config is the Claude-desktop style server list:
//
//	{"mcpServers": {"docs": {"command": "uvx", "args": ["awslabs.aws-documentation-mcp-server@latest"]}}}
type Config struct {
	Servers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig describes one MCP server. Either Command (stdio) or URL (sse or
// streamable HTTP) must be set.
type ServerConfig struct {
	Command   string            `json:"command,omitempty"`
	Args      []string          `json:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty"`
	URL       string            `json:"url,omitempty"`
	Headers   map[string]string `json:"headers,omitempty"`
	Transport string            `json:"transport,omitempty"`
	Disabled  bool              `json:"disabled,omitempty"`
}

// LoadConfig reads and validates a server list from path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mcp config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes a server list. ${VAR} references in env values, headers and
// urls are expanded from the process environment.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse mcp config: %w", err)
	}
	if cfg.Servers == nil {
		cfg.Servers = map[string]ServerConfig{}
	}
	var errs []error
	for name, sc := range cfg.Servers {
		sc.URL = os.ExpandEnv(sc.URL)
		for k, v := range sc.Env {
			sc.Env[k] = os.ExpandEnv(v)
		}
		for k, v := range sc.Headers {
			sc.Headers[k] = os.ExpandEnv(v)
		}
		cfg.Servers[name] = sc
		if sc.Disabled {
			continue
		}
		if err := sc.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("server %q: %w", name, err))
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &cfg, nil
}

// Names returns the enabled server names in sorted order.
func (c *Config) Names() []string {
	names := make([]string, 0, len(c.Servers))
	for name, sc := range c.Servers {
		if !sc.Disabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Kind resolves the transport: stdio for commands, streamable HTTP for urls unless
// "sse" is requested.
func (s ServerConfig) Kind() string {
	if s.Transport != "" {
		return strings.ToLower(s.Transport)
	}
	if s.Command != "" {
		return TransportStdio
	}
	return TransportStreamableHTTP
}

// Validate checks that the fields required by the transport are present.
func (s ServerConfig) Validate() error {
	switch s.Kind() {
	case TransportStdio:
		if s.Command == "" {
			return errors.New("command is required for stdio transport")
		}
	case TransportSSE, TransportStreamableHTTP:
		if s.URL == "" {
			return fmt.Errorf("url is required for %s transport", s.Kind())
		}
		if !strings.HasPrefix(s.URL, "http://") && !strings.HasPrefix(s.URL, "https://") {
			return fmt.Errorf("url must be http or https: %s", s.URL)
		}
	default:
		return fmt.Errorf("unsupported transport: %s", s.Transport)
	}
	return nil
}

func envSlice(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
