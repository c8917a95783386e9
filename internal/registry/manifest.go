package registry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// DefaultBaseURL is used when a manifest omits base_url.
const DefaultBaseURL = "http://localhost:8000"

// Manifest is the declarative listing of available tools, their argument
// shapes, and routing metadata, as read from a manifest.json file.
type Manifest struct {
	// BaseURL is the root address of the tool backend. Optional; defaults to
	// [DefaultBaseURL].
	BaseURL string `json:"base_url,omitempty"`

	// Tools lists every tool the backend exposes.
	Tools []ManifestTool `json:"tools"`
}

// ManifestTool is a single tool entry in a manifest.
type ManifestTool struct {
	// Name is the tool's unique identifier. Required.
	Name string `json:"name"`

	// Description explains what the tool does; it is shown to the model.
	Description string `json:"description,omitempty"`

	// InputSchema is the JSON Schema describing the tool's arguments.
	// Optional; an empty-object schema is substituted when absent.
	InputSchema map[string]any `json:"input_schema,omitempty"`

	// Method is the HTTP method used to invoke the tool: "GET" or "POST".
	// Optional; defaults to POST.
	Method string `json:"method,omitempty"`

	// Path is the endpoint route appended to the base URL. Optional;
	// defaults to "/mcp/<name>".
	Path string `json:"path,omitempty"`
}

// LoadManifest reads and decodes the JSON manifest at path.
func LoadManifest(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("registry: open manifest %q: %w", path, err)
	}
	defer f.Close()

	m, err := LoadManifestFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("registry: parse manifest %q: %w", path, err)
	}
	return m, nil
}

// LoadManifestFromReader decodes a JSON manifest from r. Useful in tests
// where manifests are constructed from string literals.
func LoadManifestFromReader(r io.Reader) (*Manifest, error) {
	m := &Manifest{}
	dec := json.NewDecoder(r)
	if err := dec.Decode(m); err != nil {
		return nil, fmt.Errorf("registry: decode manifest: %w", err)
	}
	return m, nil
}
