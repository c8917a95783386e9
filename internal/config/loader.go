package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/taskrelay/taskrelay/internal/mcphost"
)

// ValidModelProviders lists known model channel names. Used by [Validate] to
// warn about unrecognised provider names.
var ValidModelProviders = []string{
	"ollama", "openai", "anthropic", "gemini", "deepseek",
	"mistral", "groq", "llamacpp", "llamafile",
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Model provider — warn about unknown names, a typo is more likely than
	// a new provider.
	if cfg.Model.Name != "" && !slices.Contains(ValidModelProviders, cfg.Model.Name) {
		slog.Warn("unknown model provider name — may be a typo or third-party provider",
			"name", cfg.Model.Name,
			"known", ValidModelProviders,
		)
	}

	// Tool availability
	if cfg.Agent.ManifestPath == "" && len(cfg.MCP.Servers) == 0 {
		slog.Warn("no manifest_path and no MCP servers configured; the agent will have no tools")
	}

	// MCP servers
	for i, srv := range cfg.MCP.Servers {
		prefix := fmt.Sprintf("mcp.servers[%d]", i)
		if srv.Name == "" {
			errs = append(errs, fmt.Errorf("%s.name is required", prefix))
		}
		if srv.Transport != "" && !srv.Transport.IsValid() {
			errs = append(errs, fmt.Errorf("%s.transport %q is invalid; valid values: stdio, streamable-http", prefix, srv.Transport))
		}
		if srv.Transport == mcphost.TransportStdio && srv.Command == "" {
			errs = append(errs, fmt.Errorf("%s.command is required when transport is stdio", prefix))
		}
		if srv.Transport == mcphost.TransportStreamableHTTP && srv.URL == "" {
			errs = append(errs, fmt.Errorf("%s.url is required when transport is streamable-http", prefix))
		}
	}

	// Backend store
	if cfg.Backend.Store != "" && !cfg.Backend.Store.IsValid() {
		errs = append(errs, fmt.Errorf("backend.store %q is invalid; valid values: memory, postgres", cfg.Backend.Store))
	}
	if cfg.Backend.Store == StorePostgres && cfg.Backend.PostgresDSN == "" {
		errs = append(errs, errors.New("backend.postgres_dsn is required when backend.store is postgres"))
	}

	return errors.Join(errs...)
}
