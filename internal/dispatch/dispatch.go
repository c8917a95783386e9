// Package dispatch resolves extracted tool calls against the registry and
// executes them against their backends.
//
// The dispatcher is deliberately forgiving about the tool name (models mangle
// case and separators) and deliberately strict about everything else: a name
// that resolves to nothing, a non-mapping argument payload, or a backend that
// answers with a non-2xx status all produce typed errors the orchestrator
// feeds back to the model for one self-correction attempt. Only an
// unreachable backend is fatal for the turn.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/antzucaro/matchr"

	"github.com/taskrelay/taskrelay/internal/registry"
	"github.com/taskrelay/taskrelay/pkg/provider/llm"
)

const (
	// DefaultTimeout bounds a single tool backend call.
	DefaultTimeout = 60 * time.Second

	// suggestionThreshold is the minimum Jaro-Winkler similarity between a
	// mangled name and a registered one before the dispatcher proposes it.
	suggestionThreshold = 0.85

	// maxErrorDetail caps how much of an error body is carried into a
	// BackendError.
	maxErrorDetail = 2048
)

// MCPInvoker executes a tool call against a connected MCP server. Implemented
// by the mcphost package; a mock suffices for tests.
type MCPInvoker interface {
	CallTool(ctx context.Context, server, tool string, args map[string]any) (json.RawMessage, error)
}

// Dispatcher executes tool calls. Safe for concurrent use.
type Dispatcher struct {
	reg        *registry.Registry
	httpClient *http.Client
	mcp        MCPInvoker
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithTimeout overrides the backend call timeout.
func WithTimeout(d time.Duration) Option {
	return func(di *Dispatcher) { di.httpClient.Timeout = d }
}

// WithHTTPClient replaces the HTTP client, mainly for tests.
func WithHTTPClient(c *http.Client) Option {
	return func(di *Dispatcher) { di.httpClient = c }
}

// WithMCP wires the invoker used for MCP-origin tools. Without it, dispatching
// an MCP tool fails as a backend error.
func WithMCP(m MCPInvoker) Option {
	return func(di *Dispatcher) { di.mcp = m }
}

// New returns a Dispatcher over the given registry.
func New(reg *registry.Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		reg:        reg,
		httpClient: &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch resolves name against the registry and invokes the tool with the
// given arguments, returning the backend's JSON response body.
//
// Failure modes: [*UnknownToolError] when the name resolves to nothing,
// [*InvalidArgumentsError] when args is not a mapping, [*BackendError] when
// the backend answers unhappily, and [*llm.TransportError] when it does not
// answer at all. The first three are worth feeding back to the model; the
// last is not, per [llm.IsFatal].
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args any) (json.RawMessage, error) {
	tool, ok := d.reg.Resolve(name)
	if !ok {
		valid := d.reg.Names()
		return nil, &UnknownToolError{
			Name:       name,
			Valid:      valid,
			Suggestion: suggest(name, valid),
		}
	}

	mapping, ok := asMapping(args)
	if !ok {
		return nil, &InvalidArgumentsError{Tool: tool.Name, Value: args}
	}

	if tool.Origin == registry.OriginMCP {
		return d.dispatchMCP(ctx, tool, mapping)
	}
	return d.dispatchHTTP(ctx, tool, mapping)
}

func (d *Dispatcher) dispatchMCP(ctx context.Context, tool registry.Tool, args map[string]any) (json.RawMessage, error) {
	if d.mcp == nil {
		return nil, &BackendError{Tool: tool.Name, Detail: "no MCP session available"}
	}
	result, err := d.mcp.CallTool(ctx, tool.Server, tool.Name, args)
	if err != nil {
		return nil, &BackendError{Tool: tool.Name, Detail: err.Error()}
	}
	return result, nil
}

func (d *Dispatcher) dispatchHTTP(ctx context.Context, tool registry.Tool, args map[string]any) (json.RawMessage, error) {
	endpoint := d.reg.BaseURL() + tool.Path

	var req *http.Request
	var err error
	switch tool.Method {
	case http.MethodGet:
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err == nil {
			q := url.Values{}
			for k, v := range args {
				q.Set(k, queryValue(v))
			}
			req.URL.RawQuery = q.Encode()
		}
	default:
		var body []byte
		body, err = json.Marshal(args)
		if err != nil {
			return nil, fmt.Errorf("dispatch: encode arguments for %q: %w", tool.Name, err)
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err == nil {
			req.Header.Set("Content-Type", "application/json")
		}
	}
	if err != nil {
		return nil, fmt.Errorf("dispatch: build request for %q: %w", tool.Name, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, &llm.TransportError{Backend: "tool " + tool.Name, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &llm.TransportError{Backend: "tool " + tool.Name, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := string(body)
		if len(detail) > maxErrorDetail {
			detail = detail[:maxErrorDetail]
		}
		return nil, &BackendError{Tool: tool.Name, StatusCode: resp.StatusCode, Detail: detail}
	}

	if !json.Valid(body) {
		return nil, &BackendError{Tool: tool.Name, StatusCode: resp.StatusCode, Detail: "response body is not valid JSON"}
	}
	return json.RawMessage(body), nil
}

// asMapping accepts the argument payload shapes the extractor and tests
// produce. nil counts as the empty mapping.
func asMapping(args any) (map[string]any, bool) {
	switch v := args.(type) {
	case nil:
		return map[string]any{}, true
	case map[string]any:
		if v == nil {
			return map[string]any{}, true
		}
		return v, true
	default:
		return nil, false
	}
}

// queryValue renders an argument for a query string. Scalars keep their
// natural form; composites fall back to JSON.
func queryValue(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}

// suggest returns the registered name closest to the given one, or empty when
// none clears the similarity threshold. Comparison runs on normalized forms
// so separator noise does not drown the signal.
func suggest(name string, valid []string) string {
	norm := registry.Normalize(name)
	if norm == "" {
		return ""
	}

	best, bestScore := "", suggestionThreshold
	for _, candidate := range valid {
		score := matchr.JaroWinkler(norm, registry.Normalize(candidate), false)
		if score > bestScore {
			best, bestScore = candidate, score
		}
	}
	return best
}
