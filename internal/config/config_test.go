package config

import (
	"errors"
	"strings"
	"testing"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
	"github.com/taskrelay/taskrelay/pkg/provider/llm/mock"
)

const validYAML = `
server:
  listen_addr: ":8000"
  log_level: info
model:
  name: ollama
  model: llama3.2
  base_url: http://localhost:11434
agent:
  manifest_path: manifest.json
backend:
  store: memory
`

func TestLoadFromReaderValid(t *testing.T) {
	cfg, err := LoadFromReader(strings.NewReader(validYAML))
	if err != nil {
		t.Fatalf("LoadFromReader() error = %v", err)
	}
	if cfg.Server.ListenAddr != ":8000" {
		t.Errorf("ListenAddr = %q", cfg.Server.ListenAddr)
	}
	if cfg.Model.Name != "ollama" || cfg.Model.Model != "llama3.2" {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if cfg.Backend.Store != StoreMemory {
		t.Errorf("Store = %q, want memory", cfg.Backend.Store)
	}
}

func TestLoadFromReaderUnknownField(t *testing.T) {
	if _, err := LoadFromReader(strings.NewReader("bogus_field: 1\n")); err == nil {
		t.Fatal("LoadFromReader() should reject unknown fields")
	}
}

func TestValidateCollectsAllErrors(t *testing.T) {
	cfg := &Config{
		Server: ServerConfig{LogLevel: "loud"},
		Backend: BackendConfig{
			Store: StorePostgres, // missing DSN
		},
	}
	err := Validate(cfg)
	if err == nil {
		t.Fatal("Validate() = nil, want joined errors")
	}
	for _, want := range []string{"server.log_level", "backend.postgres_dsn"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Validate() error %q missing %q", err, want)
		}
	}
}

func TestValidateMCPServers(t *testing.T) {
	bad := `
mcp:
  servers:
    - name: docs
      transport: stdio
    - transport: carrier-pigeon
      name: x
    - name: web
      transport: streamable-http
`
	_, err := LoadFromReader(strings.NewReader(bad))
	if err == nil {
		t.Fatal("LoadFromReader() should reject invalid MCP server configs")
	}
	for _, want := range []string{"command is required", "transport", "url is required"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateTLS(t *testing.T) {
	cfg := &Config{Server: ServerConfig{TLS: &TLSConfig{CertFile: "cert.pem"}}}
	if err := Validate(cfg); err == nil {
		t.Fatal("Validate() should require both TLS files")
	}
}

func TestStoreKindIsValid(t *testing.T) {
	cases := map[StoreKind]bool{
		StoreMemory:       true,
		StorePostgres:     true,
		StoreKind("etcd"): false,
	}
	for kind, want := range cases {
		if got := kind.IsValid(); got != want {
			t.Errorf("StoreKind(%q).IsValid() = %v, want %v", kind, got, want)
		}
	}
}

func TestRegistryCreateChannel(t *testing.T) {
	reg := NewRegistry()
	reg.RegisterChannel("mock", func(entry ProviderEntry) (llm.Channel, error) {
		if entry.Model != "test-model" {
			t.Errorf("factory received entry %+v", entry)
		}
		return &mock.Channel{}, nil
	})

	ch, err := reg.CreateChannel(ProviderEntry{Name: "mock", Model: "test-model"})
	if err != nil {
		t.Fatalf("CreateChannel() error = %v", err)
	}
	if ch == nil {
		t.Fatal("CreateChannel() returned nil channel")
	}

	_, err = reg.CreateChannel(ProviderEntry{Name: "ghost"})
	if !errors.Is(err, ErrChannelNotRegistered) {
		t.Errorf("CreateChannel(ghost) error = %v, want ErrChannelNotRegistered", err)
	}
}
