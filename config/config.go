// Package config loads the on-disk configuration: MCP server definitions
// and path policy globs, merged from the per-user and per-project files.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/goccy/go-json"

	"github.com/semtexzv/termineer-sub001/errors"
)

// Dir is the project-local configuration directory.
const Dir = ".termineer"

// MCPServer is one configured tool server.
type MCPServer struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// Config is the merged configuration.
type Config struct {
	MCPServers map[string]MCPServer `json:"mcpServers,omitempty"`
	// HiddenPaths are glob patterns invisible to file tools.
	HiddenPaths []string `json:"hiddenPaths,omitempty"`
	// ReadOnlyPaths are glob patterns file tools may not write.
	ReadOnlyPaths []string `json:"readOnlyPaths,omitempty"`
}

// Load reads the per-user config at $HOME/.termineer/mcp/config.json and
// the project config at <workdir>/.termineer/config.json and merges them,
// project entries overriding user entries per server name. Missing files
// are not errors.
func Load(workdir string) (*Config, error) {
	cfg := &Config{MCPServers: make(map[string]MCPServer)}

	if home, err := os.UserHomeDir(); err == nil {
		if err := cfg.mergeFile(filepath.Join(home, Dir, "mcp", "config.json")); err != nil {
			return nil, err
		}
	}
	if err := cfg.mergeFile(filepath.Join(workdir, Dir, "config.json")); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) mergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return errors.Wrapf(err, "cannot read config %s", path)
	}
	var layer Config
	if err := json.Unmarshal(data, &layer); err != nil {
		return errors.Wrapf(err, "cannot parse config %s", path)
	}
	for name, srv := range layer.MCPServers {
		c.MCPServers[name] = srv
	}
	c.HiddenPaths = append(c.HiddenPaths, layer.HiddenPaths...)
	c.ReadOnlyPaths = append(c.ReadOnlyPaths, layer.ReadOnlyPaths...)
	return nil
}

// ServerEnv renders the server's environment as KEY=VALUE pairs appended to
// the current process environment.
func (s MCPServer) ServerEnv() []string {
	if len(s.Env) == 0 {
		return nil
	}
	env := os.Environ()
	for k, v := range s.Env {
		env = append(env, k+"="+v)
	}
	return env
}

// DefaultModel is used when neither the CLI flag nor AUTOSWE_MODEL selects
// a model.
const DefaultModel = "claude-sonnet-4-20250514"

// EnvModel returns the model from AUTOSWE_MODEL, else fallback, else the
// default.
func EnvModel(fallback string) string {
	if fallback != "" {
		return fallback
	}
	if m := os.Getenv("AUTOSWE_MODEL"); m != "" {
		return m
	}
	return DefaultModel
}

// EnvThinkingBudget returns AUTOSWE_THINKING_BUDGET when it parses, else
// fallback.
func EnvThinkingBudget(fallback int) int {
	if v := os.Getenv("AUTOSWE_THINKING_BUDGET"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			return n
		}
	}
	return fallback
}

// EnvToolsEnabled reports whether AUTOSWE_ENABLE_TOOLS leaves tools on.
// Anything but an explicit false value does.
func EnvToolsEnabled() bool {
	v := os.Getenv("AUTOSWE_ENABLE_TOOLS")
	if v == "" {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}
