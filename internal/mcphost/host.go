// Package mcphost connects taskrelay to external MCP servers and folds their
// tools into the agent's tool catalogue.
//
// It uses the official MCP Go SDK (github.com/modelcontextprotocol/go-sdk)
// over stdio or streamable-HTTP transports. Discovered tools are returned as
// [registry.Tool] values with [registry.OriginMCP] so the dispatcher can
// route their calls back through [Host.CallTool].
//
// Lifecycle:
//
//  1. Call [Host.RegisterServer] for each configured MCP server.
//  2. Merge the returned tools into the registry.
//  3. Hand the Host to the dispatcher as its MCP invoker.
//  4. Call [Host.Close] at shutdown.
//
// All methods are safe for concurrent use.
package mcphost

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/taskrelay/taskrelay/internal/registry"
)

// Transport selects the connection mechanism for an MCP server.
type Transport string

const (
	// TransportStdio spawns a subprocess and communicates over stdin/stdout.
	TransportStdio Transport = "stdio"

	// TransportStreamableHTTP communicates via the MCP Streamable HTTP protocol.
	TransportStreamableHTTP Transport = "streamable-http"
)

// IsValid reports whether t is a recognised transport.
func (t Transport) IsValid() bool {
	return t == TransportStdio || t == TransportStreamableHTTP
}

// ServerConfig describes how to connect to a single MCP server.
type ServerConfig struct {
	// Name identifies this server within the host. Must be unique; used in
	// log messages and carried on every imported tool.
	Name string `yaml:"name"`

	// Transport specifies the connection mechanism.
	Transport Transport `yaml:"transport"`

	// Command is the executable path plus optional arguments, used when
	// Transport is "stdio". Ignored otherwise.
	Command string `yaml:"command"`

	// URL is the endpoint address used when Transport is "streamable-http".
	// Ignored for stdio.
	URL string `yaml:"url"`

	// Env holds additional environment variables injected into the server
	// process for the stdio transport. May be nil.
	Env map[string]string `yaml:"env"`
}

// Host manages MCP server sessions and routes tool calls to them.
//
// The zero value is not usable; create instances with [New].
type Host struct {
	mu       sync.RWMutex
	sessions map[string]*mcpsdk.ClientSession

	// client is reused across all server connections; the SDK allows one
	// Client to manage multiple sessions.
	client *mcpsdk.Client
}

// New creates and returns a ready-to-use Host.
func New() *Host {
	client := mcpsdk.NewClient(
		&mcpsdk.Implementation{Name: "taskrelay-mcphost", Version: "1.0.0"},
		nil,
	)
	return &Host{
		sessions: make(map[string]*mcpsdk.ClientSession),
		client:   client,
	}
}

// RegisterServer connects to the MCP server described by cfg, lists its
// tools, and returns them as registry entries tagged with the server name.
// If a server with the same name is already registered, the old session is
// closed and replaced.
func (h *Host) RegisterServer(ctx context.Context, cfg ServerConfig) ([]registry.Tool, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("mcp host: server config must have a non-empty name")
	}
	if !cfg.Transport.IsValid() {
		return nil, fmt.Errorf("mcp host: unknown transport %q for server %q", cfg.Transport, cfg.Name)
	}

	var transport mcpsdk.Transport

	switch cfg.Transport {
	case TransportStdio:
		executable, args := splitCommand(cfg.Command)
		if executable == "" {
			return nil, fmt.Errorf("mcp host: stdio server %q requires a non-empty Command", cfg.Name)
		}
		cmd := exec.CommandContext(ctx, executable, args...)
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, k+"="+v)
		}
		transport = &mcpsdk.CommandTransport{Command: cmd}

	case TransportStreamableHTTP:
		if cfg.URL == "" {
			return nil, fmt.Errorf("mcp host: streamable-http server %q requires a non-empty URL", cfg.Name)
		}
		transport = &mcpsdk.StreamableClientTransport{Endpoint: cfg.URL}
	}

	session, err := h.client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("mcp host: failed to connect to server %q: %w", cfg.Name, err)
	}

	var tools []registry.Tool
	for tool, err := range session.Tools(ctx, nil) {
		if err != nil {
			_ = session.Close()
			return nil, fmt.Errorf("mcp host: failed to list tools for server %q: %w", cfg.Name, err)
		}
		tools = append(tools, registry.Tool{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters:  schemaToMap(tool.InputSchema),
			Origin:      registry.OriginMCP,
			Server:      cfg.Name,
		})
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if old, ok := h.sessions[cfg.Name]; ok {
		_ = old.Close()
	}
	h.sessions[cfg.Name] = session

	return tools, nil
}

// CallTool executes the named tool on the given server and returns its
// result as JSON. A tool that answers with plain text gets its text
// JSON-quoted so callers always receive a valid JSON value. An
// application-level tool error is returned as a Go error carrying the tool's
// own message.
func (h *Host) CallTool(ctx context.Context, server, tool string, args map[string]any) (json.RawMessage, error) {
	h.mu.RLock()
	session, ok := h.sessions[server]
	h.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("mcp host: server %q not registered", server)
	}

	result, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      tool,
		Arguments: args,
	})
	if err != nil {
		return nil, fmt.Errorf("mcp host: call to tool %q on server %q failed: %w", tool, server, err)
	}

	var sb strings.Builder
	for _, c := range result.Content {
		if tc, ok := c.(*mcpsdk.TextContent); ok {
			sb.WriteString(tc.Text)
		}
	}
	text := sb.String()

	if result.IsError {
		return nil, fmt.Errorf("mcp host: tool %q reported an error: %s", tool, text)
	}

	if json.Valid([]byte(text)) {
		return json.RawMessage(text), nil
	}
	quoted, err := json.Marshal(text)
	if err != nil {
		return nil, fmt.Errorf("mcp host: encode result of tool %q: %w", tool, err)
	}
	return quoted, nil
}

// Close shuts down all server sessions. After Close returns the Host must
// not be used again.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var firstErr error
	for name, session := range h.sessions {
		if err := session.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("mcp host: error closing server %q: %w", name, err)
		}
		delete(h.sessions, name)
	}
	return firstErr
}

// schemaToMap converts any schema value to a map[string]any, defaulting to a
// bare object schema when the value cannot be converted.
func schemaToMap(schema any) map[string]any {
	if schema == nil {
		return map[string]any{"type": "object"}
	}
	if m, ok := schema.(map[string]any); ok {
		return m
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return map[string]any{"type": "object"}
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return map[string]any{"type": "object"}
	}
	return m
}

// splitCommand splits a command string into executable and arguments.
// e.g. "/bin/foo --bar baz" → ("/bin/foo", ["--bar", "baz"]).
func splitCommand(command string) (executable string, args []string) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return "", nil
	}
	return parts[0], parts[1:]
}
