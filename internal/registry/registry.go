// Package registry builds the in-memory tool catalogue that drives the
// taskrelay agent.
//
// A [Registry] maps tool names to their invocation metadata (HTTP method,
// path, argument schema, origin) and maintains a normalized-name index so
// that the dispatcher can tolerate the case and separator mangling models
// routinely produce ("listTasks" for "list_tasks"). It also renders the
// model-facing tool list in whichever [llm.SchemaConvention] the active
// channel expects.
//
// A Registry is immutable after construction apart from [Registry.Register],
// which is intended for merging MCP-discovered tools at startup; after that
// it is read-only and safe for concurrent sharing across conversations.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

// Origin identifies which transport a tool is invoked over.
type Origin string

const (
	// OriginHTTP marks tools declared in the manifest and invoked as plain
	// HTTP endpoints under the manifest base URL.
	OriginHTTP Origin = "http"

	// OriginMCP marks tools imported from a connected MCP server and invoked
	// through its session.
	OriginMCP Origin = "mcp"
)

// Tool is the invocation metadata for a single registered tool.
// Values are immutable after registration.
type Tool struct {
	// Name is the canonical tool name, the stable lookup key.
	Name string

	// Description is shown to the model.
	Description string

	// Parameters is the JSON Schema for the tool's arguments.
	Parameters map[string]any

	// Method is "GET" or "POST". Only meaningful for [OriginHTTP] tools.
	Method string

	// Path is the endpoint route appended to the base URL. Only meaningful
	// for [OriginHTTP] tools.
	Path string

	// Origin selects the invocation transport.
	Origin Origin

	// Server names the MCP server a tool was imported from. Empty for
	// [OriginHTTP] tools.
	Server string
}

// Registry holds the tool catalogue for one agent process.
type Registry struct {
	baseURL string

	mu         sync.RWMutex
	tools      map[string]Tool   // canonical name → tool
	normalized map[string]string // normalized name → canonical name
}

// Build constructs a Registry from a manifest.
//
// Missing fields receive their defaults: base_url [DefaultBaseURL], method
// POST, path "/mcp/<name>", and an empty-object argument schema. Two tool
// names that normalize identically are a manifest error, not a precedence
// question — Build fails rather than letting one silently win.
func Build(m *Manifest) (*Registry, error) {
	if m == nil {
		return nil, fmt.Errorf("registry: manifest must not be nil")
	}

	baseURL := m.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	r := &Registry{
		baseURL:    baseURL,
		tools:      make(map[string]Tool, len(m.Tools)),
		normalized: make(map[string]string, len(m.Tools)),
	}

	for i, mt := range m.Tools {
		if mt.Name == "" {
			return nil, fmt.Errorf("registry: tools[%d] has no name", i)
		}
		if err := r.Register(toolFromManifest(mt)); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// toolFromManifest applies manifest defaults to produce a Tool.
func toolFromManifest(mt ManifestTool) Tool {
	params := mt.InputSchema
	if params == nil {
		params = map[string]any{
			"type":       "object",
			"properties": map[string]any{},
			"required":   []any{},
		}
	}

	method := strings.ToUpper(mt.Method)
	if method == "" {
		method = "POST"
	}

	path := mt.Path
	if path == "" {
		path = "/mcp/" + mt.Name
	}

	return Tool{
		Name:        mt.Name,
		Description: mt.Description,
		Parameters:  params,
		Method:      method,
		Path:        path,
		Origin:      OriginHTTP,
	}
}

// Register adds a tool to the registry. It fails when the tool's normalized
// name collides with an already-registered tool, naming both canonical forms
// so the operator can fix the manifest or server rather than guess which one
// the agent would have called.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("registry: tool must have a non-empty name")
	}

	norm := Normalize(t.Name)
	if norm == "" {
		return fmt.Errorf("registry: tool name %q normalizes to the empty string", t.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.normalized[norm]; ok {
		return fmt.Errorf("registry: tool name %q is ambiguous with %q (both normalize to %q)", t.Name, prev, norm)
	}

	r.tools[t.Name] = t
	r.normalized[norm] = t.Name
	return nil
}

// Resolve looks up a tool by any spelling that normalizes to a registered
// name. It reports false when no tool matches.
func (r *Registry) Resolve(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	canonical, ok := r.normalized[Normalize(name)]
	if !ok {
		return Tool{}, false
	}
	return r.tools[canonical], true
}

// Names returns all canonical tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// BaseURL returns the tool backend base URL with any trailing slash stripped.
func (r *Registry) BaseURL() string { return r.baseURL }

// ModelTools renders the model-facing tool list in the requested convention,
// ordered by canonical name so the payload is deterministic.
func (r *Registry) ModelTools(conv llm.SchemaConvention) []llm.ToolSchema {
	names := r.Names()

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]llm.ToolSchema, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		entry := llm.ToolSchema{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		}
		if conv == llm.ConventionWrapped {
			entry = llm.ToolSchema{
				"type":     "function",
				"function": map[string]any(entry),
			}
		}
		out = append(out, entry)
	}
	return out
}

// Normalize reduces a tool name to its lookup form: lower-cased with every
// character outside [a-z0-9] removed. Separators carry no meaning, so
// "listTasks", "List-Tasks", and "list_tasks" all collapse to "listtasks"
// and resolve to the same tool.
func Normalize(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		}
	}
	return b.String()
}
